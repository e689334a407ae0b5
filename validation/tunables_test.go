package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestTimeout(t *testing.T) {
	rt, err := NewRequestTimeout(30 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, rt.Duration())

	_, err = NewRequestTimeout(500 * time.Millisecond)
	assert.Error(t, err)

	_, err = NewRequestTimeout(301 * time.Second)
	assert.Error(t, err)

	_, err = NewRequestTimeout(time.Second)
	assert.NoError(t, err)

	_, err = NewRequestTimeout(300 * time.Second)
	assert.NoError(t, err)
}

func TestNewMaxBodySize(t *testing.T) {
	mb, err := NewMaxBodySize(1024)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, mb.Bytes())

	_, err = NewMaxBodySize(0)
	assert.Error(t, err)

	_, err = NewMaxBodySize(maxBodySizeUpperBound + 1)
	assert.Error(t, err)

	_, err = NewMaxBodySize(maxBodySizeUpperBound)
	assert.NoError(t, err)
}

func TestNewQueueSize(t *testing.T) {
	qs, err := NewQueueSize(10)
	require.NoError(t, err)
	assert.Equal(t, 10, qs.Int())

	_, err = NewQueueSize(0)
	assert.Error(t, err)

	_, err = NewQueueSize(-1)
	assert.Error(t, err)
}

func TestNewConcurrencyLimit(t *testing.T) {
	cl, err := NewConcurrencyLimit(4)
	require.NoError(t, err)
	assert.Equal(t, 4, cl.Int())

	_, err = NewConcurrencyLimit(0)
	assert.Error(t, err)
}

func TestNewLoadThreshold(t *testing.T) {
	lt, err := NewLoadThreshold(0.8)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, lt.Float(), 0.0001)

	_, err = NewLoadThreshold(-0.1)
	assert.Error(t, err)

	_, err = NewLoadThreshold(1.1)
	assert.Error(t, err)

	_, err = NewLoadThreshold(0.0)
	assert.NoError(t, err)

	_, err = NewLoadThreshold(1.0)
	assert.NoError(t, err)
}
