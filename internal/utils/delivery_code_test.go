package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeliveryCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := NewDeliveryCode()
		require.NoError(t, err)
		assert.Len(t, code, DeliveryCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected rune %q", r)
		}
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestNormalizeDeliveryCode(t *testing.T) {
	assert.Equal(t, "ABCD23EFGH", NormalizeDeliveryCode(" abcd-23 efgh "))
}

func TestQRSignerRoundTrip(t *testing.T) {
	s, err := NewQRSigner("test-secret")
	require.NoError(t, err)

	payload := s.Payload(42, "ABCDEFGH23")
	assert.True(t, IsQRPayload(payload))
	assert.Equal(t, payload, s.Payload(42, "ABCDEFGH23"), "payload is deterministic")

	id, code, err := s.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, "ABCDEFGH23", code)
}

func TestQRSignerRejectsTampering(t *testing.T) {
	s, err := NewQRSigner("test-secret")
	require.NoError(t, err)
	other, err := NewQRSigner("other-secret")
	require.NoError(t, err)

	payload := s.Payload(42, "ABCDEFGH23")
	tampered := strings.Replace(payload, ".42.", ".43.", 1)

	tests := map[string]string{
		"other reservation": tampered,
		"foreign key":       other.Payload(42, "ABCDEFGH23"),
		"missing mac":       "MR1.42.ABCDEFGH23",
		"wrong version":     strings.Replace(payload, "MR1", "MR2", 1),
		"garbage":           "hello",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.Parse(raw)
			assert.ErrorIs(t, err, ErrInvalidQR)
		})
	}
}

func TestNewQRSignerKeyLength(t *testing.T) {
	_, err := NewQRSigner("")
	assert.Error(t, err)
	_, err = NewQRSigner(strings.Repeat("k", 65))
	assert.Error(t, err)
}
