package adminport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := encodeCursor(1234567890, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	pos, err := decodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1234567890), pos.EnqueuedAtNanos)
	assert.Equal(t, uint32(42), pos.UID)
}

func TestDecodeCursorRejectsMalformedToken(t *testing.T) {
	_, err := decodeCursor("not-a-valid-token!!!")
	assert.Error(t, err)
}
