package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/ytgrab-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteTaskRepository implements domain.TaskRepository using SQLite.
// Every operation runs in its own short-lived transaction; nothing here
// holds a lock across calls.
type SQLiteTaskRepository struct {
	db *gorm.DB
}

// NewSQLiteTaskRepository creates a new SQLite repository at dbPath,
// creating the parent directory if needed
func NewSQLiteTaskRepository(dbPath string) (*SQLiteTaskRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Task{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteTaskRepository{db: db}, nil
}

// Create inserts a new task and assigns its id
func (r *SQLiteTaskRepository) Create(task *domain.Task) error {
	return r.db.Create(task).Error
}

// Update applies only the named fields. Empty field sets and unknown ids
// are silent no-ops, so a delete racing an update never errors.
func (r *SQLiteTaskRepository) Update(id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(&domain.Task{}).Where("id = ?", id).Updates(fields).Error
}

// Delete removes a task by id
func (r *SQLiteTaskRepository) Delete(id uint) error {
	return r.db.Delete(&domain.Task{}, id).Error
}

// Get finds a task by id
func (r *SQLiteTaskRepository) Get(id uint) (*domain.Task, error) {
	var task domain.Task
	err := r.db.First(&task, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// ListAll returns all tasks ordered by creation time, most recent first
func (r *SQLiteTaskRepository) ListAll() ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := r.db.Order("created_at DESC, id DESC").Find(&tasks).Error
	return tasks, err
}

// CountByStatus returns the number of tasks in the given status
func (r *SQLiteTaskRepository) CountByStatus(status domain.TaskStatus) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Task{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// ResetInterrupted marks tasks left downloading by a previous run as errored.
// Called once at startup, before any runner exists.
func (r *SQLiteTaskRepository) ResetInterrupted() (int64, error) {
	result := r.db.Model(&domain.Task{}).
		Where("status IN ?", []domain.TaskStatus{domain.StatusDownloading, domain.StatusMerging}).
		Updates(map[string]interface{}{
			"status": domain.StatusError,
			"speed":  "",
			"eta":    "",
		})
	return result.RowsAffected, result.Error
}

// Stats returns aggregate task counts
func (r *SQLiteTaskRepository) Stats() (*domain.TaskStats, error) {
	stats := &domain.TaskStats{}

	if err := r.db.Model(&domain.Task{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.TaskStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.Task{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StatusPending:
			stats.Pending = sc.Count
		case domain.StatusDownloading, domain.StatusMerging:
			stats.Downloading += sc.Count
		case domain.StatusFinished:
			stats.Finished = sc.Count
		case domain.StatusError:
			stats.Error = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteTaskRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
