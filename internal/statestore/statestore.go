// Package statestore persists the upload orchestrator's UploadState (C2):
// a durable mapping of absolute path -> ItemState, written atomically via a
// sibling temp file + rename, and flushed by a debouncer that coalesces
// bursts into at most one write per tick and always performs a final write
// on shutdown.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ccfrost/albumsync/internal/model"
)

// photosUploaderDoc is the on-disk shape of the "photosUploader" key
// (§6 of spec.md).
type photosUploaderDoc struct {
	UploadedMediaItemIDByAbsolutePath map[string]itemDoc `json:"uploadedMediaItemIdByAbsolutePath"`
}

const photosUploaderKey = "photosUploader"

type itemDoc struct {
	MediaID     *string         `json:"mediaId,omitempty"`
	AlbumID     *string         `json:"albumId,omitempty"`
	UploadState *uploadTokenDoc `json:"uploadState,omitempty"`
}

type uploadTokenDoc struct {
	Token         string    `json:"token"`
	UploadInstant time.Time `json:"uploadInstant"`
}

// Store is a durable UploadState store backed by a single JSON file at Path.
type Store struct {
	Path string

	// unknownTopLevel holds any top-level document keys besides
	// "photosUploader" found on the last Load, so Save can write them back
	// verbatim (§6 forward compatibility).
	unknownTopLevel map[string]json.RawMessage
}

// New returns a Store backed by the JSON file at path (see DefaultPath).
func New(path string) *Store {
	return &Store{Path: path}
}

// DefaultPath returns the default per-user data-file path for the state
// store, mirroring the teacher's cache-dir convention.
func DefaultPath(cacheDir string) string {
	return filepath.Join(cacheDir, "upload_state.json")
}

// Load reads the state file. A missing file yields an empty UploadState,
// per §4.1. A corrupt file is fatal.
func (s *Store) Load() (*model.UploadState, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewUploadState(), nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", s.Path, err)
	}

	var topLevel map[string]json.RawMessage
	if err := json.Unmarshal(raw, &topLevel); err != nil {
		return nil, fmt.Errorf("state file %s is corrupt: %w", s.Path, err)
	}

	var uploader photosUploaderDoc
	if rawUploader, ok := topLevel[photosUploaderKey]; ok {
		if err := json.Unmarshal(rawUploader, &uploader); err != nil {
			return nil, fmt.Errorf("state file %s is corrupt: %w", s.Path, err)
		}
	}
	delete(topLevel, photosUploaderKey)
	s.unknownTopLevel = topLevel

	state := model.NewUploadState()
	for path, item := range uploader.UploadedMediaItemIDByAbsolutePath {
		state.Items[path] = fromDoc(item)
	}
	return state, nil
}

// Save writes state atomically: to a sibling temp file, then renames over
// Path. Idempotent: calling Save repeatedly with the same state produces
// the same document.
func (s *Store) Save(state *model.UploadState) error {
	uploader := photosUploaderDoc{
		UploadedMediaItemIDByAbsolutePath: make(map[string]itemDoc, len(state.Items)),
	}
	for path, item := range state.Items {
		if item.IsZero() {
			// §3 invariant: never persist a meaningless entry.
			continue
		}
		uploader.UploadedMediaItemIDByAbsolutePath[path] = toDoc(item)
	}

	rawUploader, err := json.Marshal(uploader)
	if err != nil {
		return fmt.Errorf("failed to encode upload state: %w", err)
	}

	topLevel := make(map[string]json.RawMessage, len(s.unknownTopLevel)+1)
	for k, v := range s.unknownTopLevel {
		topLevel[k] = v
	}
	topLevel[photosUploaderKey] = rawUploader

	encoded, err := json.MarshalIndent(topLevel, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode upload state: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload_state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	// If anything below fails before the rename, clean up the temp file
	// rather than leaving it behind.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, s.Path, err)
	}
	succeeded = true
	return nil
}

func toDoc(item model.ItemState) itemDoc {
	var doc itemDoc
	if item.MediaID != "" {
		id := item.MediaID
		doc.MediaID = &id
	}
	if item.AlbumID != "" {
		id := item.AlbumID
		doc.AlbumID = &id
	}
	if item.UploadState != nil {
		doc.UploadState = &uploadTokenDoc{
			Token:         item.UploadState.Token,
			UploadInstant: item.UploadState.UploadedAt,
		}
	}
	return doc
}

func fromDoc(doc itemDoc) model.ItemState {
	var item model.ItemState
	if doc.MediaID != nil {
		item.MediaID = *doc.MediaID
	}
	if doc.AlbumID != nil {
		item.AlbumID = *doc.AlbumID
	}
	if doc.UploadState != nil {
		item.UploadState = &model.UploadToken{
			Token:      doc.UploadState.Token,
			UploadedAt: doc.UploadState.UploadInstant,
		}
	}
	return item
}
