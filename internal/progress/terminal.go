package progress

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Terminal is a Reporter that renders one progressbar per stream name and
// logs keyed errors through slog, following the teacher's
// progressbar.DefaultBytes-based progress UI.
type Terminal struct {
	logger *slog.Logger

	mu      sync.Mutex
	streams map[string]*terminalStream
}

// NewTerminal returns a Reporter backed by schollz/progressbar. A stream
// first requested via Stream gets a bar with no known total; use SetTotal
// to size a stream once its count is known.
func NewTerminal(logger *slog.Logger) *Terminal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminal{logger: logger, streams: make(map[string]*terminalStream)}
}

// SetTotal creates (or resizes) the bar for name ahead of the first
// increment, so the displayed percentage is accurate from the start.
func (t *Terminal) SetTotal(name string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.streams[name]; ok {
		s.bar.ChangeMax(total)
		return
	}
	t.streams[name] = &terminalStream{
		name:   name,
		bar:    progressbar.Default(int64(total), name),
		logger: t.logger,
	}
}

func (t *Terminal) Stream(name string) Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.streams[name]; ok {
		return s
	}
	s := &terminalStream{
		name:   name,
		bar:    progressbar.Default(-1, name),
		logger: t.logger,
	}
	t.streams[name] = s
	return s
}

type terminalStream struct {
	name   string
	bar    *progressbar.ProgressBar
	logger *slog.Logger

	mu     sync.Mutex
	errors []string
}

func (s *terminalStream) IncrementSuccess() {
	_ = s.bar.Add(1)
}

func (s *terminalStream) KeyedError(key, message string) {
	s.mu.Lock()
	s.errors = append(s.errors, fmt.Sprintf("%s: %s", key, message))
	s.mu.Unlock()
	s.logger.Error("progress stream error",
		slog.String("stream", s.name),
		slog.String("key", key),
		slog.String("message", message))
}

func (s *terminalStream) Close(successful bool) {
	_ = s.bar.Finish()
	fmt.Fprintln(os.Stderr)
	if !successful {
		s.logger.Warn("progress stream finished unsuccessfully", slog.String("stream", s.name))
	}
}
