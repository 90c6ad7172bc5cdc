// Package retrypolicy implements the two independent policy objects of
// spec §4.5: a backoff policy for retriable-transient errors, and an
// invalid-media-item policy for permanent item-level rejections. Both are
// side-effect free except for their internal counters.
package retrypolicy

import (
	"sync"
	"time"

	"github.com/ccfrost/albumsync/internal/apierr"
)

// Decision is what a policy advises the orchestrator to do next.
type Decision int

const (
	// DecisionRetry means: wait Delay, then retry the same action.
	DecisionRetry Decision = iota
	// DecisionPermanentItem means: the item is permanently rejected; do
	// not retry.
	DecisionPermanentItem
	// DecisionFatal means: the run has exhausted its retry budget or hit
	// an unclassified error; stop scheduling further work.
	DecisionFatal
)

// Backoff maintains a per-path exponential retry schedule, reset on every
// success, and converts to DecisionFatal after MaxConsecutiveRetries
// without success (§4.5).
//
// One Backoff is shared by the whole run; per-path state is tracked
// internally so unrelated files don't interfere with each other's
// schedules.
type Backoff struct {
	base       time.Duration
	max        time.Duration
	maxRetries int

	mu     sync.Mutex
	counts map[string]int
}

// NewBackoff returns a Backoff with the given base delay (doubled on each
// consecutive retry up to max) and retry budget.
func NewBackoff(base, max time.Duration, maxRetries int) *Backoff {
	return &Backoff{
		base:       base,
		max:        max,
		maxRetries: maxRetries,
		counts:     make(map[string]int),
	}
}

// Evaluate classifies err for path and returns what to do next. Only
// apierr.KindTransient errors are eligible for retry; everything else
// passes through unchanged as DecisionFatal for this policy's purposes
// (the orchestrator itself decides the outcome for other kinds).
func (b *Backoff) Evaluate(path string, classified *apierr.Error) (Decision, time.Duration) {
	if classified == nil || classified.Kind != apierr.KindTransient {
		return DecisionFatal, 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	count := b.counts[path]
	if count >= b.maxRetries {
		return DecisionFatal, 0
	}
	b.counts[path] = count + 1

	delay := b.base << count
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	return DecisionRetry, delay
}

// Success resets path's retry count after a successful action.
func (b *Backoff) Success(path string) {
	b.mu.Lock()
	delete(b.counts, path)
	b.mu.Unlock()
}

// InvalidMediaItem signals permanent, non-retriable item rejections:
// INVALID_ARGUMENT during media-item creation or binary upload (§4.5).
// It carries no state; it exists as a named policy object so the
// classification rule lives in one place and is unit-testable on its own.
type InvalidMediaItem struct{}

// Evaluate reports whether classified is a permanent item-level failure
// this policy owns.
func (InvalidMediaItem) Evaluate(classified *apierr.Error) (Decision, bool) {
	if classified == nil {
		return DecisionFatal, false
	}
	switch classified.Kind {
	case apierr.KindPermanentItemCreate, apierr.KindPermanentItemUpload:
		return DecisionPermanentItem, true
	default:
		return DecisionFatal, false
	}
}
