package infrastructure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/yourusername/ytgrab-go/internal/domain"
)

// progressPrefix tags stdout lines carrying a JSON progress record
const progressPrefix = "progress-json:"

// progressTemplate makes yt-dlp emit one JSON record per progress update on
// stdout. Missing fields render as null and are skipped by the normalizer.
const progressTemplate = "download:" + progressPrefix +
	`{"status":%(progress.status)j,` +
	`"downloaded_bytes":%(progress.downloaded_bytes)j,` +
	`"total_bytes":%(progress.total_bytes)j,` +
	`"total_bytes_estimate":%(progress.total_bytes_estimate)j,` +
	`"speed":%(progress.speed)j,` +
	`"eta":%(progress.eta)j,` +
	`"filename":%(progress.filename)j,` +
	`"info_dict":{"title":%(info.title)j}}`

// YtdlpEngine implements domain.Engine by driving the yt-dlp binary.
// One Download call spawns one process; the process is killed when the
// progress hook asks to abort.
type YtdlpEngine struct {
	binary string
}

// NewYtdlpEngine creates an engine driver for the given yt-dlp binary
func NewYtdlpEngine(binary string) *YtdlpEngine {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtdlpEngine{binary: binary}
}

// BuildArgs translates engine options into yt-dlp command-line arguments
func BuildArgs(opts domain.EngineOptions, url string) []string {
	args := []string{
		"--newline",
		"--no-colors",
		"--progress",
		"--progress-template", progressTemplate,
		"-o", opts.OutputTemplate,
	}

	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}
	if opts.MergeOutputFormat != "" {
		args = append(args, "--merge-output-format", opts.MergeOutputFormat)
	}
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(opts.SocketTimeout.Seconds())))
	}
	if opts.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(opts.Retries))
	}
	if opts.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(opts.FragmentRetries))
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}
	if opts.ConcurrentFragments > 0 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(opts.ConcurrentFragments))
	}
	if opts.WriteSubtitles {
		args = append(args, "--write-subs")
		if len(opts.SubtitleLangs) > 0 {
			args = append(args, "--sub-langs", strings.Join(opts.SubtitleLangs, ","))
		}
	}

	if opts.NoPlaylist {
		args = append(args, "--no-playlist")
	} else {
		args = append(args, "--yes-playlist")
		if opts.PlaylistItems != "" {
			args = append(args, "--playlist-items", opts.PlaylistItems)
		}
		if opts.PlaylistRandom {
			args = append(args, "--playlist-random")
		}
		if opts.MaxDownloads > 0 {
			args = append(args, "--max-downloads", strconv.Itoa(opts.MaxDownloads))
		}
	}

	return append(args, url)
}

// ParseProgressLine decodes a progress-template stdout line into a raw event.
// Returns false for any other output line.
func ParseProgressLine(line string) (domain.RawEvent, bool) {
	idx := strings.Index(line, progressPrefix)
	if idx < 0 {
		return nil, false
	}
	payload := line[idx+len(progressPrefix):]

	var event domain.RawEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, false
	}
	return event, true
}

// Download runs yt-dlp to completion. Progress records go through the hook;
// all other output goes through the logger. A hook error kills the process
// and is returned as the call's result.
func (e *YtdlpEngine) Download(opts domain.EngineOptions, url string) error {
	cmd := exec.Command(e.binary, BuildArgs(opts, url)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.binary, err)
	}

	var (
		hookErr   error
		hookErrMu sync.Mutex
		lastError string
		wg        sync.WaitGroup
	)

	abort := func(err error) {
		hookErrMu.Lock()
		if hookErr == nil {
			hookErr = err
		}
		hookErrMu.Unlock()
		_ = cmd.Process.Kill()
	}

	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if event, ok := ParseProgressLine(line); ok {
				if opts.ProgressHook != nil {
					if err := opts.ProgressHook(event); err != nil {
						abort(err)
						return
					}
				}
				continue
			}
			logLine(opts.Logger, line)
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "ERROR:") {
				lastError = strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
			}
			logLine(opts.Logger, line)
		}
	}()

	// both pipes must be drained before Wait; Wait closes them on process
	// exit and would drop whatever is still buffered, typically the final
	// finished record or the trailing ERROR: line
	wg.Wait()
	waitErr := cmd.Wait()

	hookErrMu.Lock()
	defer hookErrMu.Unlock()
	if hookErr != nil {
		return hookErr
	}
	if waitErr != nil {
		if lastError != "" {
			return fmt.Errorf("%s: %s", e.binary, lastError)
		}
		return fmt.Errorf("%s failed: %w", e.binary, waitErr)
	}
	return nil
}

// logLine routes one raw output line to the engine logger by severity
func logLine(logger domain.EngineLogger, line string) {
	if logger == nil || line == "" {
		return
	}
	switch {
	case strings.HasPrefix(line, "ERROR:"):
		logger.Error(strings.TrimSpace(strings.TrimPrefix(line, "ERROR:")))
	case strings.HasPrefix(line, "WARNING:"):
		logger.Warning(strings.TrimSpace(strings.TrimPrefix(line, "WARNING:")))
	case strings.HasPrefix(line, "[debug]"):
		logger.Debug(line)
	default:
		logger.Info(line)
	}
}
