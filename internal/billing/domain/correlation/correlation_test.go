package correlation

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subpay-io/subpay/internal/billing/domain/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	token, id := Encode(KindSubscription)

	assert.True(t, strings.HasPrefix(token, "sub:"))
	assert.NotContains(t, token, "-")

	kind, decoded, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "sub", kind)
	assert.Equal(t, id, decoded)
}

func TestDecodeBareIdentifier(t *testing.T) {
	id := uuid.New()

	kind, decoded, err := Decode(id.String())
	require.NoError(t, err)
	assert.Empty(t, kind)
	assert.Equal(t, id, decoded)

	// Dashless form, as minted by Encode.
	kind, decoded, err = Decode(strings.ReplaceAll(id.String(), "-", ""))
	require.NoError(t, err)
	assert.Empty(t, kind)
	assert.Equal(t, id, decoded)
}

func TestDecodeMalformed(t *testing.T) {
	tokens := []string{
		"",
		"not-a-uuid",
		"sub:not-a-uuid",
		"sub:" + uuid.New().String() + ":extra",
	}

	for _, token := range tokens {
		_, _, err := Decode(token)
		assert.ErrorIs(t, err, model.ErrMalformedCorrelationID, "token=%q", token)
	}
}
