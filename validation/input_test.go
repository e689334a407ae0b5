package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatedInput(t *testing.T) {
	in, err := NewValidatedInput("hello world")
	require.NoError(t, err)
	assert.Equal(t, 11, in.Len())

	_, err = NewValidatedInput("")
	assert.Error(t, err)

	_, err = NewValidatedInput(strings.Repeat("a", MaxInputSize+1))
	assert.Error(t, err)
}

func TestNewValidatedInputRejectsBinaryHeuristic(t *testing.T) {
	binary := strings.Repeat("\x00\x01\x02\x03", 64)
	_, err := NewValidatedInput(binary)
	assert.Error(t, err)
}

func TestNewValidatedInputAllowsNewlinesAndTabs(t *testing.T) {
	text := "line one\nline two\tindented\r\n"
	_, err := NewValidatedInput(text)
	assert.NoError(t, err)
}
