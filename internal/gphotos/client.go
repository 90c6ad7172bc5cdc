// Package gphotos adapts the Cloud API Client contract of spec.md §6 to the
// gphotosuploader/google-photos-api-client-go/v3 library, mirroring the
// teacher's commands/gphotos_client_interface.go split between the
// interfaces the core consumes and the concrete library-backed
// implementation.
package gphotos

import (
	"context"
)

//go:generate go run github.com/golang/mock/mockgen -source=${GOFILE} -destination=zz_generated_mocks_test.go -package=gphotos Client,AlbumsService,MediaItemsService,Uploader

// Album is the core's view of a remote album.
type Album struct {
	ID             string
	Title          string
	MediaItemCount int
}

// MediaItem is the core's view of a created remote media item.
type MediaItem struct {
	ID string
}

// SimpleMediaItem describes a media item to create from an upload token.
type SimpleMediaItem struct {
	UploadToken string
	Filename    string
}

// Client is the Cloud API Client contract the orchestrator depends on
// (spec.md §6). Every operation is asynchronous (ctx-bound) and may fail
// with an error the caller classifies via internal/apierr.
type Client interface {
	Albums() AlbumsService
	MediaItems() MediaItemsService
	Uploader() Uploader
}

// AlbumsService is the subset of album operations the core uses.
type AlbumsService interface {
	List(ctx context.Context) ([]Album, error)
	Create(ctx context.Context, title string) (Album, error)
	// BatchAdd adds mediaIDs to albumID, splitting into requests of at
	// most 50 items each (I4), stopping at the first failed batch.
	BatchAdd(ctx context.Context, albumID string, mediaIDs []string) error
	// GetItems lists the media item ids currently in albumID, used when
	// merging duplicate albums (§4.4).
	GetItems(ctx context.Context, albumID string) ([]string, error)
}

// MediaItemsService is the subset of media-item operations the core uses.
type MediaItemsService interface {
	// Create exchanges item's upload token for a media item and, if albumID
	// is non-empty, adds it to that album. The two steps are not
	// guaranteed atomic: if the album add fails, implementations still
	// return the created MediaItem (non-zero ID) alongside the error, so
	// callers can keep the already-created item instead of retrying Create
	// and minting a duplicate.
	Create(ctx context.Context, item SimpleMediaItem, albumID string) (MediaItem, error)
}

// Uploader uploads a local file's bytes and returns an opaque upload token
// to be redeemed by MediaItemsService.Create.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
}

// MaxBatchSize is the API's hard cap on items per batchAddMediaItems call
// (I4).
const MaxBatchSize = 50
