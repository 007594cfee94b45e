package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Download DownloadConfig `mapstructure:"download"`
	Store    StoreConfig    `mapstructure:"store"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	SaveDir             string        `mapstructure:"save_dir"`
	FormatPreset        string        `mapstructure:"format_preset"`
	Proxy               string        `mapstructure:"proxy"`
	ConcurrentFragments int           `mapstructure:"concurrent_fragments"`
	WriteSubs           bool          `mapstructure:"write_subs"`
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	YTDLPBinary         string        `mapstructure:"ytdlp_binary"`
	SocketTimeout       time.Duration `mapstructure:"socket_timeout"`
	Retries             int           `mapstructure:"retries"`
	FragmentRetries     int           `mapstructure:"fragment_retries"`
	LogBufferSize       int           `mapstructure:"log_buffer_size"`
}

// StoreConfig contains task store configuration
type StoreConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// NotifyConfig contains desktop notification configuration
type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`
}

// DefaultFormat is used when a task carries no format preset
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// OutputTemplate is the engine output filename pattern
const OutputTemplate = "%(title)s [%(id)s].%(ext)s"

// FormatPresets maps display names to engine format selector strings.
// Each preset carries fallbacks so an unavailable resolution does not fail.
var FormatPresets = map[string]string{
	"Best quality (MP4)": "bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best",
	"Best quality (any)": "bestvideo+bestaudio/best",
	"1080p":              "bestvideo[height<=1080]+bestaudio/bestvideo+bestaudio/best",
	"720p":               "bestvideo[height<=720]+bestaudio/bestvideo+bestaudio/best",
	"480p":               "bestvideo[height<=480]+bestaudio/bestvideo+bestaudio/best",
	"Audio only (best)":  "bestaudio/best",
	"Audio only (M4A)":   "bestaudio[ext=m4a]/bestaudio/best",
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			SaveDir:         "$HOME/Downloads",
			FormatPreset:    DefaultFormat,
			MaxConcurrent:   3,
			YTDLPBinary:     "yt-dlp",
			SocketTimeout:   30 * time.Second,
			Retries:         10,
			FragmentRetries: 10,
			LogBufferSize:   500,
		},
		Store: StoreConfig{
			DatabasePath: "$HOME/.ytgrab/tasks.db",
		},
		Notify: NotifyConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.ytgrab/logs",
		},
	}
}
