// Package gphotosfake provides a hand-written, in-memory implementation of
// internal/gphotos.Client, modeled on the teacher's upload-videos_test.go
// mockAlbumsService/mockMediaItemsService/mockUploaderService fakes. It
// backs the end-to-end scenario tests so they don't depend on generated
// mock code existing at review/build time.
package gphotosfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/ccfrost/albumsync/internal/gphotos"
)

// Reason mirrors the remote reason codes internal/apierr classifies on.
type Reason string

// reasonedError implements the apierr.reasoner interface so Classify can
// route failures injected here through the real classification logic.
type reasonedError struct {
	reason Reason
	msg    string
}

func (e *reasonedError) Error() string  { return fmt.Sprintf("%s: %s", e.reason, e.msg) }
func (e *reasonedError) Reason() string { return string(e.reason) }

// NewError returns an error Classify will route to the Kind associated
// with reason, for injecting a specific failure mode into the fake.
func NewError(reason Reason, msg string) error {
	return &reasonedError{reason: reason, msg: msg}
}

// Client is an in-memory Cloud API Client. All fields are safe for
// concurrent use.
type Client struct {
	mu sync.Mutex

	albums       map[string]*gphotos.Album // id -> album
	albumOrder   []string
	albumItems   map[string][]string // albumID -> media item ids
	mediaItems   map[string]bool     // id -> exists
	nextAlbumID  int
	nextMediaID  int
	uploadTokens map[string]string // token -> path

	// Failure injection, keyed by a caller-chosen selector (path, title,
	// or album id depending on the call).
	uploadFailures      map[string]error
	createItemFailures  map[string]error
	createAlbumFailures map[string]error
	addToAlbumFailures  map[string]error
	listFailures        error
	getItemsFailures    map[string]error
}

// New returns an empty fake Client.
func New() *Client {
	return &Client{
		albums:              make(map[string]*gphotos.Album),
		albumItems:          make(map[string][]string),
		mediaItems:          make(map[string]bool),
		uploadTokens:        make(map[string]string),
		uploadFailures:      make(map[string]error),
		createItemFailures:  make(map[string]error),
		createAlbumFailures: make(map[string]error),
		addToAlbumFailures:  make(map[string]error),
		getItemsFailures:    make(map[string]error),
	}
}

// SeedAlbum pre-populates a cloud album, for simulating pre-existing
// duplicates the Album Manager must reconcile (§4.4).
func (c *Client) SeedAlbum(id, title string, mediaItemCount int, items ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.albums[id] = &gphotos.Album{ID: id, Title: title, MediaItemCount: mediaItemCount}
	c.albumOrder = append(c.albumOrder, id)
	c.albumItems[id] = append([]string{}, items...)
}

// FailUpload makes the next UploadFile call for path return err.
func (c *Client) FailUpload(path string, err error) {
	c.mu.Lock()
	c.uploadFailures[path] = err
	c.mu.Unlock()
}

// FailCreateItem makes the next MediaItems().Create call whose filename is
// name return err.
func (c *Client) FailCreateItem(name string, err error) {
	c.mu.Lock()
	c.createItemFailures[name] = err
	c.mu.Unlock()
}

// FailCreateAlbum makes the next Albums().Create call for title return err.
func (c *Client) FailCreateAlbum(title string, err error) {
	c.mu.Lock()
	c.createAlbumFailures[title] = err
	c.mu.Unlock()
}

// FailAddToAlbum makes BatchAdd calls, and the album-add step of
// MediaItems().Create, against albumID fail with err, for simulating an
// album-permission rejection (S5).
func (c *Client) FailAddToAlbum(albumID string, err error) {
	c.mu.Lock()
	c.addToAlbumFailures[albumID] = err
	c.mu.Unlock()
}

// MediaItemIDs returns the ids of every media item ever created, for
// assertions.
func (c *Client) MediaItemIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.mediaItems))
	for id := range c.mediaItems {
		ids = append(ids, id)
	}
	return ids
}

// AlbumItems returns the current member ids of albumID.
func (c *Client) AlbumItems(albumID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.albumItems[albumID]...)
}

// Albums implements gphotos.Client.
func (c *Client) Albums() gphotos.AlbumsService { return (*albumsFake)(c) }

// MediaItems implements gphotos.Client.
func (c *Client) MediaItems() gphotos.MediaItemsService { return (*mediaItemsFake)(c) }

// Uploader implements gphotos.Client.
func (c *Client) Uploader() gphotos.Uploader { return (*uploaderFake)(c) }

type albumsFake Client

func (a *albumsFake) List(ctx context.Context) ([]gphotos.Album, error) {
	c := (*Client)(a)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listFailures != nil {
		return nil, c.listFailures
	}
	out := make([]gphotos.Album, 0, len(c.albumOrder))
	for _, id := range c.albumOrder {
		out = append(out, *c.albums[id])
	}
	return out, nil
}

func (a *albumsFake) Create(ctx context.Context, title string) (gphotos.Album, error) {
	c := (*Client)(a)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.createAlbumFailures[title]; ok {
		delete(c.createAlbumFailures, title)
		return gphotos.Album{}, err
	}
	c.nextAlbumID++
	id := fmt.Sprintf("album-%d", c.nextAlbumID)
	album := gphotos.Album{ID: id, Title: title}
	c.albums[id] = &album
	c.albumOrder = append(c.albumOrder, id)
	return album, nil
}

func (a *albumsFake) BatchAdd(ctx context.Context, albumID string, mediaIDs []string) error {
	c := (*Client)(a)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.addToAlbumFailures[albumID]; ok {
		return err
	}
	for start := 0; start < len(mediaIDs); start += gphotos.MaxBatchSize {
		end := start + gphotos.MaxBatchSize
		if end > len(mediaIDs) {
			end = len(mediaIDs)
		}
		c.albumItems[albumID] = append(c.albumItems[albumID], mediaIDs[start:end]...)
		if album, ok := c.albums[albumID]; ok {
			album.MediaItemCount += end - start
		}
	}
	return nil
}

func (a *albumsFake) GetItems(ctx context.Context, albumID string) ([]string, error) {
	c := (*Client)(a)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.getItemsFailures[albumID]; ok {
		return nil, err
	}
	return append([]string{}, c.albumItems[albumID]...), nil
}

type mediaItemsFake Client

func (m *mediaItemsFake) Create(ctx context.Context, item gphotos.SimpleMediaItem, albumID string) (gphotos.MediaItem, error) {
	c := (*Client)(m)
	c.mu.Lock()
	if err, ok := c.createItemFailures[item.Filename]; ok {
		delete(c.createItemFailures, item.Filename)
		c.mu.Unlock()
		return gphotos.MediaItem{}, err
	}
	path, ok := c.uploadTokens[item.UploadToken]
	if !ok {
		c.mu.Unlock()
		return gphotos.MediaItem{}, fmt.Errorf("unknown upload token %q", item.UploadToken)
	}
	_ = path
	c.nextMediaID++
	id := fmt.Sprintf("item-%d", c.nextMediaID)
	c.mediaItems[id] = true
	c.mu.Unlock()

	if albumID == "" {
		return gphotos.MediaItem{ID: id}, nil
	}
	if err := m.addToAlbum(ctx, albumID, id); err != nil {
		// The item is already created server-side; mirror the real
		// wrapper and still return its ID alongside the error.
		return gphotos.MediaItem{ID: id}, err
	}
	return gphotos.MediaItem{ID: id}, nil
}

func (m *mediaItemsFake) addToAlbum(ctx context.Context, albumID, mediaID string) error {
	return (*albumsFake)(m).BatchAdd(ctx, albumID, []string{mediaID})
}

type uploaderFake Client

func (u *uploaderFake) UploadFile(ctx context.Context, path string) (string, error) {
	c := (*Client)(u)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.uploadFailures[path]; ok {
		delete(c.uploadFailures, path)
		return "", err
	}
	token := fmt.Sprintf("token:%s", path)
	c.uploadTokens[token] = path
	return token, nil
}

var _ gphotos.Client = (*Client)(nil)
