package gphotos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	gphotosuploader "github.com/gphotosuploader/google-photos-api-client-go/v3"
	"github.com/gphotosuploader/google-photos-api-client-go/v3/albums"
	"github.com/gphotosuploader/google-photos-api-client-go/v3/media_items"
)

// photosBaseURL is the Google Photos Library API base, used for the one
// call (searching a specific album's media items) the v3 client library
// doesn't expose; the teacher's own repo already hits this same endpoint
// directly in commands/googlephotos/client.go.
const photosBaseURL = "https://photoslibrary.googleapis.com/v1"

// wrappedClient adapts *gphotosuploader.Client to the Client interface.
type wrappedClient struct {
	lib        *gphotosuploader.Client
	httpClient *http.Client
}

// NewClient wraps an authenticated gphotosuploader client so the
// orchestrator can depend on the small Client interface instead of the
// library directly.
func NewClient(lib *gphotosuploader.Client, httpClient *http.Client) Client {
	return &wrappedClient{lib: lib, httpClient: httpClient}
}

func (c *wrappedClient) Albums() AlbumsService {
	return &wrappedAlbums{lib: c.lib.Albums, httpClient: c.httpClient}
}

func (c *wrappedClient) MediaItems() MediaItemsService {
	return &wrappedMediaItems{lib: c.lib.MediaItems, albums: c.lib.Albums}
}

func (c *wrappedClient) Uploader() Uploader {
	return c.lib.Uploader()
}

type wrappedAlbums struct {
	lib        albums.Service
	httpClient *http.Client
}

func (a *wrappedAlbums) List(ctx context.Context) ([]Album, error) {
	fetched, err := a.lib.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	out := make([]Album, 0, len(fetched))
	for _, al := range fetched {
		out = append(out, Album{
			ID:             al.ID,
			Title:          al.Title,
			MediaItemCount: parseCount(al.MediaItemsCount),
		})
	}
	return out, nil
}

func (a *wrappedAlbums) Create(ctx context.Context, title string) (Album, error) {
	created, err := a.lib.Create(ctx, title)
	if err != nil {
		return Album{}, fmt.Errorf("create album %q: %w", title, err)
	}
	return Album{ID: created.ID, Title: created.Title, MediaItemCount: parseCount(created.MediaItemsCount)}, nil
}

func (a *wrappedAlbums) BatchAdd(ctx context.Context, albumID string, mediaIDs []string) error {
	for start := 0; start < len(mediaIDs); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(mediaIDs) {
			end = len(mediaIDs)
		}
		if err := a.lib.AddMediaItems(ctx, albumID, mediaIDs[start:end]); err != nil {
			return fmt.Errorf("batch add to album %s (items %d-%d): %w", albumID, start, end, err)
		}
	}
	return nil
}

// searchMediaItemsRequest/-Response mirror the Library API's
// mediaItems:search endpoint just enough to page through one album.
type searchMediaItemsRequest struct {
	AlbumID   string `json:"albumId"`
	PageSize  int    `json:"pageSize"`
	PageToken string `json:"pageToken,omitempty"`
}

type searchMediaItemsResponse struct {
	MediaItems    []struct {
		ID string `json:"id"`
	} `json:"mediaItems"`
	NextPageToken string `json:"nextPageToken"`
}

func (a *wrappedAlbums) GetItems(ctx context.Context, albumID string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		reqBody, err := json.Marshal(searchMediaItemsRequest{AlbumID: albumID, PageSize: 100, PageToken: pageToken})
		if err != nil {
			return nil, fmt.Errorf("encode search request for album %s: %w", albumID, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, photosBaseURL+"/mediaItems:search", bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("build search request for album %s: %w", albumID, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("search media items in album %s: %w", albumID, err)
		}
		var parsed searchMediaItemsResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("search media items in album %s: status %d", albumID, resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("decode search response for album %s: %w", albumID, decodeErr)
		}

		for _, item := range parsed.MediaItems {
			ids = append(ids, item.ID)
		}
		if parsed.NextPageToken == "" {
			break
		}
		pageToken = parsed.NextPageToken
	}
	return ids, nil
}

type wrappedMediaItems struct {
	lib    media_items.Service
	albums albums.Service
}

// Create is not atomic: the underlying library creates the media item and
// binds it to an album as two separate calls. If the album bind fails, the
// returned MediaItem is still valid (non-zero ID) alongside the error, so a
// caller that only wanted the item created with no album can use it as-is
// instead of calling Create again and minting a duplicate.
func (m *wrappedMediaItems) Create(ctx context.Context, item SimpleMediaItem, albumID string) (MediaItem, error) {
	created, err := m.lib.Create(ctx, media_items.SimpleMediaItem{
		UploadToken: item.UploadToken,
		Filename:    item.Filename,
	})
	if err != nil {
		return MediaItem{}, fmt.Errorf("create media item %q: %w", item.Filename, err)
	}
	result := MediaItem{ID: created.ID}
	if albumID == "" {
		return result, nil
	}
	if err := m.albums.AddMediaItems(ctx, albumID, []string{created.ID}); err != nil {
		return result, fmt.Errorf("add media item %q to album %s: %w", created.ID, albumID, err)
	}
	return result, nil
}

func parseCount(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
