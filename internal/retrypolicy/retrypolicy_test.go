package retrypolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ccfrost/albumsync/internal/apierr"
)

func transientErr() *apierr.Error {
	return &apierr.Error{Kind: apierr.KindTransient, Op: apierr.OpUploadBinary}
}

func TestBackoff_RetriesWithDoublingDelay(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 3)

	decision, delay := b.Evaluate("f.jpg", transientErr())
	assert.Equal(t, DecisionRetry, decision)
	assert.Equal(t, time.Second, delay)

	decision, delay = b.Evaluate("f.jpg", transientErr())
	assert.Equal(t, DecisionRetry, decision)
	assert.Equal(t, 2*time.Second, delay)

	decision, delay = b.Evaluate("f.jpg", transientErr())
	assert.Equal(t, DecisionRetry, decision)
	assert.Equal(t, 4*time.Second, delay)
}

func TestBackoff_FatalAfterBudgetExhausted(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 2)
	b.Evaluate("f.jpg", transientErr())
	b.Evaluate("f.jpg", transientErr())
	decision, _ := b.Evaluate("f.jpg", transientErr())
	assert.Equal(t, DecisionFatal, decision)
}

func TestBackoff_DelayCapsAtMax(t *testing.T) {
	b := NewBackoff(time.Minute, 90*time.Second, 5)
	b.Evaluate("f.jpg", transientErr())
	_, delay := b.Evaluate("f.jpg", transientErr())
	assert.Equal(t, 90*time.Second, delay)
}

func TestBackoff_SuccessResetsCount(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 1)
	b.Evaluate("f.jpg", transientErr())
	b.Success("f.jpg")
	decision, delay := b.Evaluate("f.jpg", transientErr())
	assert.Equal(t, DecisionRetry, decision)
	assert.Equal(t, time.Second, delay)
}

func TestBackoff_PerPathIndependence(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 1)
	b.Evaluate("a.jpg", transientErr())
	decision, _ := b.Evaluate("b.jpg", transientErr())
	assert.Equal(t, DecisionRetry, decision)
}

func TestBackoff_NonTransient_IsFatal(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 5)
	fatal := &apierr.Error{Kind: apierr.KindAlbumFatal}
	decision, _ := b.Evaluate("f.jpg", fatal)
	assert.Equal(t, DecisionFatal, decision)
}

func TestInvalidMediaItem_ClassifiesPermanentKinds(t *testing.T) {
	var p InvalidMediaItem
	decision, matched := p.Evaluate(&apierr.Error{Kind: apierr.KindPermanentItemCreate})
	assert.True(t, matched)
	assert.Equal(t, DecisionPermanentItem, decision)

	decision, matched = p.Evaluate(&apierr.Error{Kind: apierr.KindPermanentItemUpload})
	assert.True(t, matched)
	assert.Equal(t, DecisionPermanentItem, decision)

	decision, matched = p.Evaluate(&apierr.Error{Kind: apierr.KindTransient})
	assert.False(t, matched)
	assert.Equal(t, DecisionFatal, decision)
}
