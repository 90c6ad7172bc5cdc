// Package orchestrator implements the Upload Orchestrator (C7): the
// per-file state machine over the persisted UploadState, executed through
// a bounded worker pool with per-path coalescing and a debounced state
// saver (spec §4.6, §5, §9).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ccfrost/albumsync/internal/albums"
	"github.com/ccfrost/albumsync/internal/apierr"
	"github.com/ccfrost/albumsync/internal/clock"
	"github.com/ccfrost/albumsync/internal/exiftags"
	"github.com/ccfrost/albumsync/internal/gphotos"
	"github.com/ccfrost/albumsync/internal/model"
	"github.com/ccfrost/albumsync/internal/progress"
	"github.com/ccfrost/albumsync/internal/retrypolicy"
	"github.com/ccfrost/albumsync/internal/statestore"
)

// StreamName is the progress stream the orchestrator reports to (§6).
const StreamName = "Uploading media files"

// Failure records a file that ended in a permanent, run-absorbed error:
// reported to the caller for summary purposes but never a run-wide
// failure on its own (§7 propagation policy).
type Failure struct {
	Path string
	Err  error
}

// Orchestrator drives uploadFile for every submitted path against a
// shared, debounced UploadState.
type Orchestrator struct {
	client   gphotos.Client
	debounce *statestore.Debouncer
	backoff  *retrypolicy.Backoff
	invalid  retrypolicy.InvalidMediaItem
	reporter progress.Reporter
	clock    clock.Clock
	limiter  *rate.Limiter
	tokenTTL time.Duration
	resume   bool

	coalesce singleflight.Group

	mu    sync.Mutex
	state *model.UploadState

	failMu   sync.Mutex
	failures []Failure

	keywords      *albums.KeywordBinder
	labelAlbums   []exiftags.KeyAlbum
	subjectAlbums []exiftags.KeyAlbum
	logger        *slog.Logger
}

// SetKeywordAlbums enables the keyword-album supplement (SPEC_FULL.md
// "Supplemented features" #1): after a successful createMediaItem, o also
// extracts EXIF Label/Subject and adds the item to any matching album via
// binder. A nil binder or empty keyword lists disable the feature.
func (o *Orchestrator) SetKeywordAlbums(binder *albums.KeywordBinder, labelAlbums, subjectAlbums []exiftags.KeyAlbum, logger *slog.Logger) {
	o.keywords = binder
	o.labelAlbums = labelAlbums
	o.subjectAlbums = subjectAlbums
	o.logger = logger
}

// New returns an Orchestrator. initial is the UploadState loaded at run
// start (or an empty one); resume=false means loaded entries are ignored
// for skip decisions but the state is still mutated and persisted.
func New(
	client gphotos.Client,
	debounce *statestore.Debouncer,
	backoff *retrypolicy.Backoff,
	reporter progress.Reporter,
	clk clock.Clock,
	limiter *rate.Limiter,
	tokenTTL time.Duration,
	initial *model.UploadState,
	resume bool,
) *Orchestrator {
	return &Orchestrator{
		client:   client,
		debounce: debounce,
		backoff:  backoff,
		reporter: reporter,
		clock:    clk,
		limiter:  limiter,
		tokenTTL: tokenTTL,
		resume:   resume,
		state:    initial,
	}
}

// Failures returns every file that ended in a permanent, run-absorbed
// error, for the Run Controller's final summary.
func (o *Orchestrator) Failures() []Failure {
	o.failMu.Lock()
	defer o.failMu.Unlock()
	out := make([]Failure, len(o.failures))
	copy(out, o.failures)
	return out
}

// UploadFile runs the §4.6 state machine for path against binding (nil for
// the root, which has no album). Concurrent calls for the same path
// coalesce onto a single in-flight attempt (§5, §9).
func (o *Orchestrator) UploadFile(ctx context.Context, path string, binding *model.AlbumBinding) error {
	_, err, _ := o.coalesce.Do(path, func() (interface{}, error) {
		return nil, o.runStateMachine(ctx, path, binding)
	})
	return err
}

func (o *Orchestrator) currentState(path string) model.ItemState {
	if !o.resume {
		return model.ItemState{}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	item, _ := o.state.Get(path)
	return item
}

func (o *Orchestrator) setState(path string, item model.ItemState) {
	o.mu.Lock()
	o.state.Items[path] = item
	snapshot := o.state.Clone()
	o.mu.Unlock()
	// Hand the debouncer its own clone rather than the live map: the
	// writer goroutine must never observe a map still being mutated here.
	o.debounce.Set(snapshot)
	o.debounce.Mark()
}

func (o *Orchestrator) stream() progress.Stream {
	return o.reporter.Stream(StreamName)
}

// runStateMachine runs the §4.6 transition table to completion for one
// path. It returns an error only for run-wide abort conditions (context
// cancellation); every per-file outcome, including permanent rejections,
// is absorbed here per §7's propagation policy.
func (o *Orchestrator) runStateMachine(ctx context.Context, path string, binding *model.AlbumBinding) error {
	item := o.currentState(path)

	if item.IsCreated() {
		// No re-association even if the target album differs from
		// AlbumID: the open question in §9 leaves this as skip-only.
		o.stream().IncrementSuccess()
		return nil
	}

	token := ""
	var tokenUploadedAt time.Time
	needUpload := true
	if item.IsTokenised() {
		age := o.clock.Now().Sub(item.UploadState.UploadedAt)
		if age <= o.tokenTTL {
			token = item.UploadState.Token
			tokenUploadedAt = item.UploadState.UploadedAt
			needUpload = false
		}
	}

	targetAlbumID := ""
	if binding != nil {
		targetAlbumID = binding.Target.ID
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if needUpload {
			if err := o.limiter.Wait(ctx); err != nil {
				return err
			}
			uploaded, err := o.client.Uploader().UploadFile(ctx, path)
			if err != nil {
				classified := apierr.Classify(err, apierr.OpUploadBinary, false)
				switch classified.Kind {
				case apierr.KindTransient:
					decision, delay := o.backoff.Evaluate(path, classified)
					if decision == retrypolicy.DecisionRetry {
						if err := sleep(ctx, delay); err != nil {
							return err
						}
						continue
					}
					return o.absorb(path, classified)
				case apierr.KindPermanentItemUpload:
					o.stream().KeyedError(path, fmt.Sprintf("%s: %s", apierr.ReasonInvalidArgument, apierr.OpUploadBinary))
					return nil
				default:
					return o.absorb(path, classified)
				}
			}
			o.backoff.Success(path)
			token = uploaded
			tokenUploadedAt = o.clock.Now()
			needUpload = false
			o.setState(path, model.ItemState{
				UploadState: &model.UploadToken{Token: token, UploadedAt: tokenUploadedAt},
			})
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		simpleItem := gphotos.SimpleMediaItem{UploadToken: token, Filename: filepath.Base(path)}
		created, err := o.client.MediaItems().Create(ctx, simpleItem, targetAlbumID)
		if err != nil {
			classified := apierr.Classify(err, apierr.OpCreateMediaItem, targetAlbumID != "")
			switch classified.Kind {
			case apierr.KindTransient:
				decision, delay := o.backoff.Evaluate(path, classified)
				if decision == retrypolicy.DecisionRetry {
					if err := sleep(ctx, delay); err != nil {
						return err
					}
					continue
				}
				return o.absorb(path, classified)
			case apierr.KindPermanentItemCreate:
				// The item itself was rejected, but this is only a
				// within-this-call outcome: the token is kept and the
				// entry is left in a plain Tokenised shape so a later run
				// retries createMediaItems instead of skipping it forever
				// (the binary is not re-uploaded either way).
				o.setState(path, model.ItemState{
					UploadState: &model.UploadToken{Token: token, UploadedAt: tokenUploadedAt},
				})
				o.stream().KeyedError(path, fmt.Sprintf("%s: %s", apierr.ReasonInvalidArgument, apierr.OpCreateMediaItem))
				return nil
			case apierr.KindAlbumPermission:
				if targetAlbumID == "" {
					return o.absorb(path, classified)
				}
				o.stream().KeyedError(path, fmt.Sprintf("%s: No permission to add media items to this album", apierr.ReasonInvalidArgument))
				if created.ID != "" {
					// The item itself was created; only adding it to the
					// target album failed. Keep this one item with no
					// album rather than minting a duplicate via a fresh
					// createMediaItems call.
					o.backoff.Success(path)
					o.setState(path, model.ItemState{
						MediaID:     created.ID,
						UploadState: &model.UploadToken{Token: token, UploadedAt: tokenUploadedAt},
					})
					o.stream().IncrementSuccess()
					o.bindKeywordAlbums(ctx, path, created.ID)
					return nil
				}
				targetAlbumID = ""
				continue
			default:
				return o.absorb(path, classified)
			}
		}

		o.backoff.Success(path)
		o.setState(path, model.ItemState{
			MediaID:     created.ID,
			AlbumID:     targetAlbumID,
			UploadState: &model.UploadToken{Token: token, UploadedAt: tokenUploadedAt},
		})
		o.stream().IncrementSuccess()
		o.bindKeywordAlbums(ctx, path, created.ID)
		return nil
	}
}

// bindKeywordAlbums extracts EXIF Label/Subject for path and adds mediaID
// to every matching configured album. Best-effort: any failure here is
// logged and swallowed, never surfaced as a per-file or run-wide error.
func (o *Orchestrator) bindKeywordAlbums(ctx context.Context, path, mediaID string) {
	if o.keywords == nil || (len(o.labelAlbums) == 0 && len(o.subjectAlbums) == 0) {
		return
	}
	tags, err := exiftags.Read(ctx, path)
	if err != nil {
		return
	}
	for _, title := range exiftags.MatchingAlbums(tags, o.labelAlbums, o.subjectAlbums) {
		if err := o.keywords.Add(ctx, title, mediaID); err != nil && o.logger != nil {
			o.logger.Warn("failed to add media item to keyword album",
				slog.String("path", path), slog.String("album", title), slog.String("error", err.Error()))
		}
	}
}

// absorb records a permanent-global failure for path (§7 kind Fatal) and
// reports it on the progress stream, but never propagates it as a
// run-wide error: per-file failures stop scheduling further work only for
// that file (§4.6).
func (o *Orchestrator) absorb(path string, classified *apierr.Error) error {
	o.failMu.Lock()
	o.failures = append(o.failures, Failure{Path: path, Err: classified})
	o.failMu.Unlock()
	o.stream().KeyedError(path, classified.Error())
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
