package albums

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ccfrost/albumsync/internal/gphotos"
)

// KeywordBinder lazily creates/reuses the secondary albums named by
// label/subject keyword matches (SPEC_FULL.md "Supplemented features").
// Unlike Manager, it does not merge pre-existing duplicates: keyword
// albums are additive housekeeping, not the directory-mirroring mechanism
// spec.md's invariants apply to.
type KeywordBinder struct {
	client  gphotos.AlbumsService
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]string // title -> albumID
}

// NewKeywordBinder returns a KeywordBinder backed by client, pacing its
// calls through the same limiter as the orchestrator and album manager.
func NewKeywordBinder(client gphotos.AlbumsService, limiter *rate.Limiter) *KeywordBinder {
	return &KeywordBinder{client: client, limiter: limiter, cache: make(map[string]string)}
}

// Resolve returns the album id for title, creating it on first use. The
// lock is held across the create so concurrent callers never create the
// same title twice.
func (k *KeywordBinder) Resolve(ctx context.Context, title string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id, ok := k.cache[title]; ok {
		return id, nil
	}

	if err := k.limiter.Wait(ctx); err != nil {
		return "", err
	}
	created, err := k.client.Create(ctx, title)
	if err != nil {
		return "", fmt.Errorf("create keyword album %q: %w", title, err)
	}

	k.cache[title] = created.ID
	return created.ID, nil
}

// Add binds mediaID into the album named title, creating it if needed.
func (k *KeywordBinder) Add(ctx context.Context, title, mediaID string) error {
	albumID, err := k.Resolve(ctx, title)
	if err != nil {
		return err
	}
	if err := k.limiter.Wait(ctx); err != nil {
		return err
	}
	return k.client.BatchAdd(ctx, albumID, []string{mediaID})
}
