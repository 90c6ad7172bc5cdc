package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ccfrost/albumsync/internal/apierr"
	"github.com/ccfrost/albumsync/internal/clock"
	"github.com/ccfrost/albumsync/internal/gphotos/gphotosfake"
	"github.com/ccfrost/albumsync/internal/model"
	"github.com/ccfrost/albumsync/internal/progress/progresstest"
	"github.com/ccfrost/albumsync/internal/retrypolicy"
	"github.com/ccfrost/albumsync/internal/statestore"
)

func newOrchestrator(t *testing.T, client *gphotosfake.Client, clk clock.Clock, initial *model.UploadState, resume bool) (*Orchestrator, *progresstest.Recorder, *statestore.Debouncer) {
	t.Helper()
	store := statestore.New(filepath.Join(t.TempDir(), "state.json"))
	debounce := statestore.NewDebouncer(store, time.Hour, initial, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = debounce.Close(ctx)
	})
	backoff := retrypolicy.NewBackoff(time.Millisecond, time.Millisecond, 3)
	reporter := progresstest.New()
	limiter := rate.NewLimiter(rate.Inf, 1)
	o := New(client, debounce, backoff, reporter, clk, limiter, time.Hour, initial, resume)
	return o, reporter, debounce
}

func TestOrchestrator_FreshFile_UploadsAndCreates(t *testing.T) {
	client := gphotosfake.New()
	o, reporter, debounce := newOrchestrator(t, client, clock.Fixed{At: time.Unix(1000, 0)}, model.NewUploadState(), true)

	err := o.UploadFile(context.Background(), "/a.jpg", &model.AlbumBinding{Target: model.CloudAlbum{ID: "album-1"}})
	require.NoError(t, err)
	require.NoError(t, debounce.Flush())

	assert.Equal(t, 1, reporter.Successes(StreamName))
	assert.Contains(t, client.AlbumItems("album-1"), client.MediaItemIDs()[0])
	assert.Empty(t, o.Failures())
}

func TestOrchestrator_TokenisedWithinTTL_SkipsReupload(t *testing.T) {
	client := gphotosfake.New()
	// Seed the fake's token table directly so Create can redeem it without
	// an UploadFile call having happened in this run.
	client.Uploader().UploadFile(context.Background(), "/a.jpg")
	client.FailUpload("/a.jpg", gphotosfake.NewError(apierr.ReasonInvalidArgument, "must not be called"))

	initial := model.NewUploadState()
	initial.Items["/a.jpg"] = model.ItemState{
		UploadState: &model.UploadToken{Token: "token:/a.jpg", UploadedAt: time.Unix(1000, 0)},
	}

	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Unix(1000, 30)}, initial, true)

	err := o.UploadFile(context.Background(), "/a.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.Successes(StreamName))
}

func TestOrchestrator_TokenisedExpired_Reuploads(t *testing.T) {
	client := gphotosfake.New()

	initial := model.NewUploadState()
	initial.Items["/a.jpg"] = model.ItemState{
		UploadState: &model.UploadToken{Token: "stale-token", UploadedAt: time.Unix(0, 0)},
	}
	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Unix(100000, 0)}, initial, true)
	o.tokenTTL = time.Hour

	err := o.UploadFile(context.Background(), "/a.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.Successes(StreamName))
	assert.Len(t, client.MediaItemIDs(), 1)
}

func TestOrchestrator_AlreadyCreated_SkipsEntirely(t *testing.T) {
	client := gphotosfake.New()
	client.FailUpload("/a.jpg", gphotosfake.NewError(apierr.ReasonInvalidArgument, "must not upload"))

	initial := model.NewUploadState()
	initial.Items["/a.jpg"] = model.ItemState{MediaID: "item-1", AlbumID: "album-1"}
	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Now()}, initial, true)

	err := o.UploadFile(context.Background(), "/a.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.Successes(StreamName))
}

func TestOrchestrator_RejectedEntryReload_RetriesCreateWithoutReupload(t *testing.T) {
	client := gphotosfake.New()

	// Seed a real upload token for the path before injecting any failure,
	// standing in for the token a first run would have left behind after
	// a permanent createMediaItems rejection.
	token, err := client.Uploader().UploadFile(context.Background(), "/a.jpg")
	require.NoError(t, err)
	client.FailUpload("/a.jpg", gphotosfake.NewError(apierr.ReasonInvalidArgument, "must not be called"))

	initial := model.NewUploadState()
	initial.Items["/a.jpg"] = model.ItemState{
		UploadState: &model.UploadToken{Token: token, UploadedAt: time.Unix(1000, 0)},
	}
	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Unix(1000, 30)}, initial, true)

	err = o.UploadFile(context.Background(), "/a.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.Successes(StreamName))
	assert.Empty(t, reporter.Errors())
	assert.Len(t, client.MediaItemIDs(), 1)

	item, ok := o.state.Get("/a.jpg")
	require.True(t, ok)
	assert.True(t, item.IsCreated())
}

func TestOrchestrator_TransientUploadFailure_RetriesThenSucceeds(t *testing.T) {
	client := gphotosfake.New()
	client.FailUpload("/a.jpg", gphotosfake.NewError(apierr.ReasonResourceExhausted, "quota"))

	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Now()}, model.NewUploadState(), true)

	err := o.UploadFile(context.Background(), "/a.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.Successes(StreamName))
	assert.Empty(t, o.Failures())
}

func TestOrchestrator_PermanentItemCreateRejection_PersistsTokenisedEntry(t *testing.T) {
	client := gphotosfake.New()
	client.FailCreateItem("a.jpg", gphotosfake.NewError(apierr.ReasonInvalidArgument, "unsupported format"))

	o, reporter, debounce := newOrchestrator(t, client, clock.Fixed{At: time.Now()}, model.NewUploadState(), true)

	err := o.UploadFile(context.Background(), "/a.jpg", nil)
	require.NoError(t, err)
	require.NoError(t, debounce.Flush())

	assert.Equal(t, 0, reporter.Successes(StreamName))
	require.Len(t, reporter.Errors(), 1)

	item, ok := o.state.Get("/a.jpg")
	require.True(t, ok)
	assert.False(t, item.IsCreated())
	assert.True(t, item.IsTokenised())
	assert.NotEmpty(t, item.UploadState.Token)
}

func TestOrchestrator_PermanentUploadFailure_NoPersistence(t *testing.T) {
	client := gphotosfake.New()
	client.FailUpload("/a.jpg", gphotosfake.NewError(apierr.ReasonInvalidArgument, "corrupt file"))

	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Now()}, model.NewUploadState(), true)

	err := o.UploadFile(context.Background(), "/a.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reporter.Successes(StreamName))
	require.Len(t, reporter.Errors(), 1)

	_, ok := o.state.Get("/a.jpg")
	assert.False(t, ok)
}

func TestOrchestrator_AlbumPermissionDenied_KeepsSingleItemWithNoAlbum(t *testing.T) {
	client := gphotosfake.New()
	client.FailAddToAlbum("album-1", gphotosfake.NewError(apierr.ReasonInvalidArgument, "no access"))

	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Now()}, model.NewUploadState(), true)

	err := o.UploadFile(context.Background(), "/a.jpg", &model.AlbumBinding{Target: model.CloudAlbum{ID: "album-1"}})
	require.NoError(t, err)

	assert.Equal(t, 1, reporter.Successes(StreamName))
	errs := reporter.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "/a.jpg", errs[0].Key)
	assert.Empty(t, client.AlbumItems("album-1"))
	// The album-add failure must not cause a second, orphaned item: the
	// already-created item is kept with no album instead of being
	// recreated from scratch.
	assert.Len(t, client.MediaItemIDs(), 1)

	item, ok := o.state.Get("/a.jpg")
	require.True(t, ok)
	assert.True(t, item.IsCreated())
	assert.Empty(t, item.AlbumID)
}

func TestOrchestrator_ConcurrentCallsForSamePath_Coalesce(t *testing.T) {
	client := gphotosfake.New()
	o, reporter, _ := newOrchestrator(t, client, clock.Fixed{At: time.Now()}, model.NewUploadState(), true)

	done := make(chan error, 2)
	go func() { done <- o.UploadFile(context.Background(), "/a.jpg", nil) }()
	go func() { done <- o.UploadFile(context.Background(), "/a.jpg", nil) }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	assert.Len(t, client.MediaItemIDs(), 1)
	assert.Equal(t, 1, reporter.Successes(StreamName))
}
