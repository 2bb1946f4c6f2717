package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailRoundTrip(t *testing.T) {
	hours := 48

	tests := []struct {
		name   string
		detail Detail
	}{
		{"moderation", ModerationDetail{Severity: SeverityTemporarySuspension, DurationHours: &hours, Note: "harassment", WarningID: "w-1"}},
		{"takedown", TakedownDetail{Note: "stolen photo", OwnerID: "angler-2", Redelete: true}},
		{"clear", ClearDetail{Note: "appeal accepted", PreviousStatus: StatusBanned}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeDetail(tt.detail)
			require.NoError(t, err)

			decoded, err := DecodeDetail(data)
			require.NoError(t, err)
			assert.Equal(t, tt.detail, decoded)
			assert.Equal(t, tt.detail.Reason(), decoded.Reason())
		})
	}
}

func TestDecodeDetailUnknownKind(t *testing.T) {
	// A payload written by a future build must survive a round trip through
	// this one unchanged.
	data := []byte(`{"kind":"shadow","payload":{"reason":"testing the waters","depth":3}}`)

	decoded, err := DecodeDetail(data)
	require.NoError(t, err)

	raw, ok := decoded.(RawDetail)
	require.True(t, ok)
	assert.Equal(t, "shadow", raw.Kind())
	assert.Equal(t, "testing the waters", raw.Reason())

	reencoded, err := EncodeDetail(raw)
	require.NoError(t, err)
	again, err := DecodeDetail(reencoded)
	require.NoError(t, err)
	assert.Equal(t, raw.Kind(), again.Kind())
	assert.Equal(t, raw.Reason(), again.Reason())
}

func TestEncodeDetailNil(t *testing.T) {
	_, err := EncodeDetail(nil)
	assert.Error(t, err)
}
