// Package runner implements the Run Controller (C9): wires the scanner,
// albums index, album manager, and upload orchestrator together into one
// run, and returns a single terminal outcome (spec §4.8). The runner closes
// the upload progress stream once, after the upload phase, flagged with
// whether that phase succeeded; a run that fails before the upload phase
// returns without closing it. Reconciliation streams are closed by the
// album manager, once per merged title, not by the runner.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ccfrost/albumsync/internal/albums"
	"github.com/ccfrost/albumsync/internal/clock"
	"github.com/ccfrost/albumsync/internal/config"
	"github.com/ccfrost/albumsync/internal/exiftags"
	"github.com/ccfrost/albumsync/internal/gphotos"
	"github.com/ccfrost/albumsync/internal/model"
	"github.com/ccfrost/albumsync/internal/orchestrator"
	"github.com/ccfrost/albumsync/internal/progress"
	"github.com/ccfrost/albumsync/internal/retrypolicy"
	"github.com/ccfrost/albumsync/internal/scanner"
	"github.com/ccfrost/albumsync/internal/statestore"
)

func toKeyAlbums(src []config.KeyAlbum) []exiftags.KeyAlbum {
	out := make([]exiftags.KeyAlbum, len(src))
	for i, ka := range src {
		out[i] = exiftags.KeyAlbum{Key: ka.Key, Album: ka.Album}
	}
	return out
}

// Outcome is the single terminal result of a run (§4.8).
type Outcome struct {
	Succeeded bool
	Err       error
	Failures  []orchestrator.Failure
}

// Runner executes one albumsync run end to end.
type Runner struct {
	Client   gphotos.Client
	Store    *statestore.Store
	Reporter progress.Reporter
	Clock    clock.Clock
	Logger   *slog.Logger
}

// New returns a Runner with a real clock and a logger, defaulting missing
// fields the way the teacher's command constructors do.
func New(client gphotos.Client, store *statestore.Store, reporter progress.Reporter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Client: client, Store: store, Reporter: reporter, Clock: clock.Real{}, Logger: logger}
}

// Run scans rootDir, reconciles it against the cloud album set, and
// uploads every file, resuming from the persisted UploadState unless
// resume is false (§4.8).
func (r *Runner) Run(ctx context.Context, rootDir string, resume bool, cfg config.Config) Outcome {
	ctx, cancel := context.WithTimeout(ctx, cfg.Run.Deadline)
	defer cancel()

	initial, err := r.Store.Load()
	if err != nil {
		return Outcome{Err: fmt.Errorf("loading upload state: %w", err)}
	}

	var dirs []model.AlbumDirectory
	var idx *albums.Index

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		scanned, err := scanner.Scan(rootDir)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", rootDir, err)
		}
		dirs = scanned
		return nil
	})
	group.Go(func() error {
		listed, err := albums.ListAll(gctx, r.Client.Albums())
		if err != nil {
			return fmt.Errorf("listing cloud albums: %w", err)
		}
		idx = listed
		return nil
	})
	if err := group.Wait(); err != nil {
		return Outcome{Err: err}
	}

	// One limiter shared by every outbound Google Photos call (album
	// binding, uploads, keyword albums): proactive pacing ahead of the
	// reactive backoff in §4.5, grounded on the teacher's upload_common.go.
	limiter := rate.NewLimiter(rate.Limit(cfg.Run.RateLimitPerSecond), cfg.Run.RateLimitBurst)

	manager := albums.NewManager(r.Client.Albums(), r.Reporter, limiter, cfg.Run.Parallelism)
	bindings, err := manager.Bind(ctx, dirs, idx)
	if err != nil {
		return Outcome{Err: fmt.Errorf("binding albums: %w", err)}
	}

	debouncer := statestore.NewDebouncer(r.Store, cfg.Run.StateDebounceInterval, initial.Clone(), r.Logger)
	backoff := retrypolicy.NewBackoff(backoffBase, maxBackoffDelay, cfg.Run.MaxConsecutiveRetries)
	orch := orchestrator.New(r.Client, debouncer, backoff, r.Reporter, r.Clock, limiter, cfg.Run.UploadTokenTTL, initial, resume)
	if len(cfg.GooglePhotos.LabelAlbums) > 0 || len(cfg.GooglePhotos.SubjectAlbums) > 0 {
		binder := albums.NewKeywordBinder(r.Client.Albums(), limiter)
		orch.SetKeywordAlbums(binder, toKeyAlbums(cfg.GooglePhotos.LabelAlbums), toKeyAlbums(cfg.GooglePhotos.SubjectAlbums), r.Logger)
	}

	// One pool task per album directory, files within it submitted
	// sequentially: distinct albums upload in parallel, but a single
	// album's files keep their creation-time submission order (§4.7).
	uploadPool := pool.New().WithContext(ctx).WithMaxGoroutines(cfg.Run.Parallelism)
	for _, dir := range dirs {
		dir := dir
		var binding *model.AlbumBinding
		if dir.HasAlbum() {
			b := bindings[dir.AlbumTitle]
			binding = &b
		}
		uploadPool.Go(func(ctx context.Context) error {
			for _, file := range dir.Files {
				if err := orch.UploadFile(ctx, file.Path, binding); err != nil {
					return err
				}
			}
			return nil
		})
	}
	runErr := uploadPool.Wait()

	r.Reporter.Stream(orchestrator.StreamName).Close(runErr == nil)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Run.ShutdownGracePeriod)
	defer closeCancel()
	if err := debouncer.Close(closeCtx); err != nil {
		r.Logger.Warn("state debouncer did not flush within grace period", slog.String("error", err.Error()))
	}
	// Close returns early if the grace period expires before the writer's
	// final save completes; save once more synchronously so the last state
	// is written either way.
	if err := debouncer.Flush(); err != nil {
		r.Logger.Error("final state flush failed", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return Outcome{Err: fmt.Errorf("run aborted: %w", runErr), Failures: orch.Failures()}
	}
	return Outcome{Succeeded: true, Failures: orch.Failures()}
}

// backoffBase is the starting delay for the exponential retry schedule
// (§4.5); doubled per consecutive retry up to maxBackoffDelay.
const (
	backoffBase     = 500 * time.Millisecond
	maxBackoffDelay = 5 * time.Minute
)
