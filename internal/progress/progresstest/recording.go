// Package progresstest provides a Reporter that records every call instead
// of rendering a progress bar, for asserting on keyed errors and stream
// close outcomes in tests.
package progresstest

import (
	"sync"

	"github.com/ccfrost/albumsync/internal/progress"
)

// KeyedError is one recorded Stream.KeyedError call.
type KeyedError struct {
	Stream  string
	Key     string
	Message string
}

// Recorder is a progress.Reporter that records increments, keyed errors,
// and close outcomes per stream name.
type Recorder struct {
	mu sync.Mutex

	successes map[string]int
	errors    []KeyedError
	closed    map[string]bool
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{successes: make(map[string]int), closed: make(map[string]bool)}
}

func (r *Recorder) Stream(name string) progress.Stream {
	return &recordedStream{name: name, r: r}
}

// Successes reports the number of IncrementSuccess calls on name.
func (r *Recorder) Successes(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes[name]
}

// Errors returns every KeyedError recorded across all streams.
func (r *Recorder) Errors() []KeyedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]KeyedError, len(r.errors))
	copy(out, r.errors)
	return out
}

// Closed reports whether Close was called on name, and with what outcome.
func (r *Recorder) Closed(name string) (closed, successful bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	successful, closed = r.closed[name]
	return closed, successful
}

type recordedStream struct {
	name string
	r    *Recorder
}

func (s *recordedStream) IncrementSuccess() {
	s.r.mu.Lock()
	s.r.successes[s.name]++
	s.r.mu.Unlock()
}

func (s *recordedStream) KeyedError(key, message string) {
	s.r.mu.Lock()
	s.r.errors = append(s.r.errors, KeyedError{Stream: s.name, Key: key, Message: message})
	s.r.mu.Unlock()
}

func (s *recordedStream) Close(successful bool) {
	s.r.mu.Lock()
	s.r.closed[s.name] = successful
	s.r.mu.Unlock()
}

var _ progress.Reporter = (*Recorder)(nil)
