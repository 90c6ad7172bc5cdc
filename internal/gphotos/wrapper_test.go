package gphotos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCount(t *testing.T) {
	assert.Equal(t, 0, parseCount(""))
	assert.Equal(t, 0, parseCount("not-a-number"))
	assert.Equal(t, 42, parseCount("42"))
	assert.Equal(t, -1, parseCount("-1"))
}

func TestMaxBatchSize(t *testing.T) {
	assert.Equal(t, 50, MaxBatchSize)
}
