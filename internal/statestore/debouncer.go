package statestore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ccfrost/albumsync/internal/model"
)

// Debouncer coalesces bursts of "the state changed" signals into at most
// one Save per Interval, and guarantees exactly one final Save when Close
// is called (§4.1, §9 "Debounced state saver").
//
// Snapshot writes are totally ordered and non-overlapping: a single
// goroutine owns the actual Save call.
type Debouncer struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current *model.UploadState
	dirty   chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDebouncer starts the background writer goroutine. initial is the
// state loaded at run start; callers mutate the live state via Set before
// calling Mark to request a flush.
func NewDebouncer(store *Store, interval time.Duration, initial *model.UploadState, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Debouncer{
		store:    store,
		interval: interval,
		logger:   logger,
		current:  initial,
		dirty:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Set replaces the snapshot the debouncer will write on its next tick.
// Callers pass a fresh Clone so the writer never observes a structure
// that's still being mutated by the orchestrator.
func (d *Debouncer) Set(state *model.UploadState) {
	d.mu.Lock()
	d.current = state
	d.mu.Unlock()
}

// Mark signals that the state is dirty and should be flushed on the next
// tick. Non-blocking: bursts of Mark calls coalesce into a single pending
// signal.
func (d *Debouncer) Mark() {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

func (d *Debouncer) run() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-d.dirty:
			pending = true
		case <-ticker.C:
			if pending {
				d.flush()
				pending = false
			}
		case <-d.done:
			d.flush()
			return
		}
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	snapshot := d.current
	d.mu.Unlock()
	if snapshot == nil {
		return
	}
	if err := d.store.Save(snapshot); err != nil {
		d.logger.Error("failed to save upload state", slog.String("error", err.Error()))
	}
}

// Flush forces an immediate synchronous save, bypassing the ticker.
func (d *Debouncer) Flush() error {
	d.mu.Lock()
	snapshot := d.current
	d.mu.Unlock()
	if snapshot == nil {
		return nil
	}
	return d.store.Save(snapshot)
}

// Close performs one final Save of the current snapshot, whether or not a
// dirty signal is pending, and stops the background goroutine. Safe to call
// once.
func (d *Debouncer) Close(ctx context.Context) error {
	close(d.done)
	waited := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
