package domain

import "time"

// EngineLogger receives log messages from the engine. The runner installs a
// shim that filters progress-line noise before forwarding.
type EngineLogger interface {
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// ProgressHook is invoked by the engine with each raw progress record.
// Returning a non-nil error aborts the engine's current operation; this is
// the only reliable cancellation point the engine offers.
type ProgressHook func(event RawEvent) error

// EngineOptions is the configuration mapping accepted by the engine.
type EngineOptions struct {
	Format              string
	OutputTemplate      string
	Proxy               string
	ConcurrentFragments int
	WriteSubtitles      bool
	SubtitleLangs       []string
	NoPlaylist          bool
	PlaylistItems       string
	PlaylistRandom      bool
	MaxDownloads        int
	MergeOutputFormat   string
	SocketTimeout       time.Duration
	Retries             int
	FragmentRetries     int
	NoProgress          bool

	ProgressHook ProgressHook
	Logger       EngineLogger
}

// Engine is the external extraction/download/muxing collaborator. Download
// blocks until the URL is fully resolved and transferred, invoking the
// progress hook and logger along the way. A hook error aborts the operation
// and is returned (possibly wrapped) to the caller.
type Engine interface {
	Download(opts EngineOptions, url string) error
}
