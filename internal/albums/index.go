// Package albums implements the Cloud Albums Index (C4) and the Album
// Manager (C5): resolving each local album title to a single target cloud
// album, merging pre-existing duplicates when necessary.
package albums

import (
	"context"
	"fmt"

	"github.com/ccfrost/albumsync/internal/gphotos"
	"github.com/ccfrost/albumsync/internal/model"
)

// Index is the immutable snapshot of all pre-existing cloud albums grouped
// by title, taken once at run start (§4.2). Concurrent album creation by
// the Manager updates a separate live view; it never re-queries Index.
type Index struct {
	byTitle map[string][]model.CloudAlbum
}

// ListAll fetches every cloud album and groups it by title.
func ListAll(ctx context.Context, client gphotos.AlbumsService) (*Index, error) {
	fetched, err := client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cloud albums: %w", err)
	}
	idx := &Index{byTitle: make(map[string][]model.CloudAlbum)}
	for _, a := range fetched {
		idx.byTitle[a.Title] = append(idx.byTitle[a.Title], model.CloudAlbum{
			ID:             a.ID,
			Title:          a.Title,
			MediaItemCount: a.MediaItemCount,
		})
	}
	return idx, nil
}

// Candidates returns the cloud albums sharing title, or nil if none exist.
func (idx *Index) Candidates(title string) []model.CloudAlbum {
	return idx.byTitle[title]
}
