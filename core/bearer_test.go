package core_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/chainsona/cpop-sub000/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerTokenRoundTripText(t *testing.T) {
	c, err := core.BuildChallenge("example.com", testAddress(t, 10), time.Now(), time.Hour)
	require.NoError(t, err)

	token := &core.BearerToken{
		Message:   core.TextChallenge{Text: c.Text()},
		Signature: "c2lnbmF0dXJl",
	}
	raw, err := token.Encode()
	require.NoError(t, err)

	decoded, err := core.DecodeBearerToken(raw)
	require.NoError(t, err)
	assert.Equal(t, core.MessageFormatText, decoded.MessageFormat)
	assert.Equal(t, "c2lnbmF0dXJl", decoded.Signature)
	assert.Equal(t, core.TextChallenge{Text: c.Text()}, decoded.Message)
}

func TestBearerTokenRoundTripStructured(t *testing.T) {
	c, err := core.BuildChallenge("example.com", testAddress(t, 11), time.Now(), time.Hour)
	require.NoError(t, err)
	msg, err := c.Structured()
	require.NoError(t, err)

	raw, err := (&core.BearerToken{Message: msg, Signature: "sig"}).Encode()
	require.NoError(t, err)

	decoded, err := core.DecodeBearerToken(raw)
	require.NoError(t, err)
	assert.Equal(t, core.MessageFormatJSON, decoded.MessageFormat)

	want, err := msg.Payload()
	require.NoError(t, err)
	got, err := decoded.Message.Payload()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeBearerTokenAcceptsBareJSON(t *testing.T) {
	decoded, err := core.DecodeBearerToken(`{"message":"hello","signature":"sig"}`)
	require.NoError(t, err)
	assert.Equal(t, core.TextChallenge{Text: "hello"}, decoded.Message)
	assert.Equal(t, core.MessageFormatText, decoded.MessageFormat)
}

func TestDecodeBearerTokenAcceptsUnpaddedBase64(t *testing.T) {
	raw := base64.RawStdEncoding.EncodeToString([]byte(`{"message":"hello","signature":"sig"}`))
	decoded, err := core.DecodeBearerToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "sig", decoded.Signature)
}

func TestDecodeBearerTokenMalformed(t *testing.T) {
	encode := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.StdEncoding.EncodeToString(b)
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "!!!not a token!!!"},
		{"base64 of non json", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"missing signature", encode(map[string]any{"message": "hello"})},
		{"empty signature", encode(map[string]any{"message": "hello", "signature": ""})},
		{"numeric signature", encode(map[string]any{"message": "hello", "signature": 12})},
		{"missing message", encode(map[string]any{"signature": "sig"})},
		{"empty message", encode(map[string]any{"message": "", "signature": "sig"})},
		{"numeric message", encode(map[string]any{"message": 42, "signature": "sig"})},
		{"array message", encode(map[string]any{"message": []int{1}, "signature": "sig"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.DecodeBearerToken(tt.raw)
			assert.ErrorIs(t, err, core.ErrInvalidToken)
		})
	}
}
