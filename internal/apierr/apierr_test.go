package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeReasoner struct{ reason string }

func (f fakeReasoner) Error() string  { return "remote error: " + f.reason }
func (f fakeReasoner) Reason() string { return f.reason }

func TestClassify_Transient(t *testing.T) {
	for _, reason := range []string{ReasonResourceExhausted, ReasonRateLimited, ReasonTimeout} {
		c := Classify(fakeReasoner{reason: reason}, OpUploadBinary, false)
		assert.Equal(t, KindTransient, c.Kind, reason)
	}
}

func TestClassify_CreateMediaItem_NoAlbum(t *testing.T) {
	c := Classify(fakeReasoner{reason: ReasonInvalidArgument}, OpCreateMediaItem, false)
	assert.Equal(t, KindPermanentItemCreate, c.Kind)
}

func TestClassify_CreateMediaItem_WithAlbum_IsAlbumPermission(t *testing.T) {
	// createMediaItems bundles the target album into the same call, so an
	// INVALID_ARGUMENT when a target album is present means "no permission
	// to add to that album", not "item rejected" (S5 vs S4).
	c := Classify(fakeReasoner{reason: ReasonInvalidArgument}, OpCreateMediaItem, true)
	assert.Equal(t, KindAlbumPermission, c.Kind)
}

func TestClassify_UploadBinary_InvalidArgument(t *testing.T) {
	c := Classify(fakeReasoner{reason: ReasonInvalidArgument}, OpUploadBinary, false)
	assert.Equal(t, KindPermanentItemUpload, c.Kind)
}

func TestClassify_BatchAdd_ExistingVsFresh(t *testing.T) {
	existing := Classify(fakeReasoner{reason: ReasonInvalidArgument}, OpBatchAddToAlbum, true)
	assert.Equal(t, KindAlbumPermission, existing.Kind)

	fresh := Classify(fakeReasoner{reason: ReasonInvalidArgument}, OpBatchAddToAlbum, false)
	assert.Equal(t, KindAlbumFatal, fresh.Kind)
}

func TestClassify_CreateOrListAlbum_Unclassified_IsAlbumFatal(t *testing.T) {
	c := Classify(errors.New("boom"), OpCreateAlbum, false)
	assert.Equal(t, KindAlbumFatal, c.Kind)

	c = Classify(errors.New("boom"), OpListAlbums, false)
	assert.Equal(t, KindAlbumFatal, c.Kind)
}

func TestClassify_UnknownError_IsFatal(t *testing.T) {
	c := Classify(errors.New("boom"), OpUploadBinary, false)
	assert.Equal(t, KindFatal, c.Kind)
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil, OpUploadBinary, false))
}

func TestClassify_AlreadyClassified_PassesThrough(t *testing.T) {
	original := &Error{Kind: KindTransient, Op: OpUploadBinary, Cause: errors.New("x")}
	wrapped := errors.New("context: " + original.Error())
	// A plain wrap without errors.Is/As support still classifies fresh;
	// only an actual *Error in the chain passes through unchanged.
	c := Classify(wrapped, OpUploadBinary, false)
	assert.Equal(t, KindFatal, c.Kind)

	c = Classify(original, OpCreateAlbum, false)
	assert.Same(t, original, c)
}

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("underlying")
	e := &Error{Kind: KindTransient, Op: OpUploadBinary, Cause: cause}
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "uploadMediaData")
}
