package albums

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/ccfrost/albumsync/internal/apierr"
	"github.com/ccfrost/albumsync/internal/gphotos"
	"github.com/ccfrost/albumsync/internal/model"
	"github.com/ccfrost/albumsync/internal/progress"
)

// ReconcileStreamName formats the progress stream name used for merge
// keyed errors, e.g. "Reconciling 2 album(s) with Google Photos" (§4.4).
func ReconcileStreamName(secondaryCount int) string {
	return fmt.Sprintf("Reconciling %d album(s) with Google Photos", secondaryCount)
}

// Manager resolves local album titles to a single target cloud album per
// title, performing merges of duplicates (C5).
type Manager struct {
	client      gphotos.AlbumsService
	reporter    progress.Reporter
	limiter     *rate.Limiter
	parallelism int

	mu   sync.Mutex
	live map[string]model.CloudAlbum // title -> chosen target, built as bindings complete
}

// NewManager returns a Manager that issues at most parallelism concurrent
// album operations, each paced by limiter (shared with the orchestrator so
// every outbound Google Photos call obeys one budget).
func NewManager(client gphotos.AlbumsService, reporter progress.Reporter, limiter *rate.Limiter, parallelism int) *Manager {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Manager{
		client:      client,
		reporter:    reporter,
		limiter:     limiter,
		parallelism: parallelism,
		live:        make(map[string]model.CloudAlbum),
	}
}

// Bind resolves every distinct title among albumDirs against idx,
// returning a binding per title. Bindings for distinct titles run in
// parallel; merges within one title are sequential (§4.4 concurrency).
//
// Any permanent failure creating, listing, or merging an album aborts the
// whole operation (§4.4 failure semantics): the first such error is
// returned and no partial binding map is exposed.
func (m *Manager) Bind(ctx context.Context, dirs []model.AlbumDirectory, idx *Index) (map[string]model.AlbumBinding, error) {
	titles := distinctTitles(dirs)

	results := make(map[string]model.AlbumBinding, len(titles))
	var resultsMu sync.Mutex

	p := pool.New().WithContext(ctx).WithMaxGoroutines(m.parallelism).WithCancelOnError()
	for _, title := range titles {
		title := title
		p.Go(func(ctx context.Context) error {
			binding, err := m.bindOne(ctx, title, idx.Candidates(title))
			if err != nil {
				return fmt.Errorf("binding album %q: %w", title, err)
			}
			resultsMu.Lock()
			results[title] = binding
			resultsMu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Manager) bindOne(ctx context.Context, title string, candidates []model.CloudAlbum) (model.AlbumBinding, error) {
	if len(candidates) == 0 {
		if err := m.limiter.Wait(ctx); err != nil {
			return model.AlbumBinding{}, err
		}
		created, err := m.client.Create(ctx, title)
		if err != nil {
			return model.AlbumBinding{}, apierr.Classify(err, apierr.OpCreateAlbum, false)
		}
		target := model.CloudAlbum{ID: created.ID, Title: created.Title, MediaItemCount: created.MediaItemCount}
		m.recordLive(title, target)
		return model.AlbumBinding{Title: title, Target: target}, nil
	}

	if len(candidates) == 1 {
		m.recordLive(title, candidates[0])
		return model.AlbumBinding{Title: title, Target: candidates[0]}, nil
	}

	primary, secondaries := choosePrimary(candidates)
	stream := m.reporter.Stream(ReconcileStreamName(len(secondaries)))

	for _, secondary := range secondaries {
		if err := m.drain(ctx, secondary, primary.ID); err != nil {
			stream.Close(false)
			return model.AlbumBinding{}, err
		}
		stream.KeyedError(
			secondary.ID,
			fmt.Sprintf("Album '%s' may now be empty and will require manual deletion ...", secondary.Title),
		)
	}
	stream.Close(true)

	m.recordLive(title, primary)
	return model.AlbumBinding{Title: title, Target: primary, Drained: secondaries}, nil
}

// drain transfers every item of secondary into primaryID via
// batchAddMediaItems calls bounded to gphotos.MaxBatchSize items (§4.4,
// I4). The transfer is not atomic: a failed batch stops it, and items of
// earlier batches stay added to the primary. The secondary is never
// deleted; the API forbids it.
func (m *Manager) drain(ctx context.Context, secondary model.CloudAlbum, primaryID string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	items, err := m.client.GetItems(ctx, secondary.ID)
	if err != nil {
		return apierr.Classify(err, apierr.OpListAlbums, false)
	}
	if len(items) == 0 {
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := m.client.BatchAdd(ctx, primaryID, items); err != nil {
		// A merge batch-add failure always aborts the whole run (§4.4):
		// this is never the per-file "add to an already-bound album"
		// path that KindAlbumPermission exists for.
		return apierr.Classify(err, apierr.OpBatchAddToAlbum, false)
	}
	return nil
}

func (m *Manager) recordLive(title string, album model.CloudAlbum) {
	m.mu.Lock()
	m.live[title] = album
	m.mu.Unlock()
}

// choosePrimary picks the candidate with the highest MediaItemCount,
// tie-breaking by lexicographically smallest ID (§4.4 step 4). The
// remaining candidates are the secondaries, in a deterministic
// (ID-ascending) order so merges are reproducible across runs.
func choosePrimary(candidates []model.CloudAlbum) (primary model.CloudAlbum, secondaries []model.CloudAlbum) {
	sorted := make([]model.CloudAlbum, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].MediaItemCount != sorted[j].MediaItemCount {
			return sorted[i].MediaItemCount > sorted[j].MediaItemCount
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0], sorted[1:]
}

func distinctTitles(dirs []model.AlbumDirectory) []string {
	seen := make(map[string]bool)
	var titles []string
	for _, d := range dirs {
		if !d.HasAlbum() {
			continue
		}
		if seen[d.AlbumTitle] {
			continue
		}
		seen[d.AlbumTitle] = true
		titles = append(titles, d.AlbumTitle)
	}
	return titles
}
