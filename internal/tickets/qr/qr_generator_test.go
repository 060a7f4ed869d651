package qr_test

import (
	"bytes"
	"testing"

	"ms-inventory/internal/models"
	"ms-inventory/internal/tickets/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTicket() models.Ticket {
	return models.Ticket{
		ID:           "ticket-1",
		TicketNumber: "TKT-0123456789ABCDEF",
		EventID:      "event-1",
		TierID:       "tier-1",
		BuyerID:      "user-1",
	}
}

func TestGenerateEncryptedQR_ProducesPNG(t *testing.T) {
	gen := qr.NewQRGenerator("test-secret")

	png, err := gen.GenerateEncryptedQR(sampleTicket())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected PNG header")
}

func TestTokenRoundTrip(t *testing.T) {
	gen := qr.NewQRGenerator("test-secret")
	payload := sampleTicket().QRPayload()

	token, err := gen.Token(payload)
	require.NoError(t, err)
	assert.NotContains(t, token, payload.TicketNumber, "payload must not be readable")

	other, err := gen.Token(payload)
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "fresh nonce per token")

	decoded, err := gen.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDecode_RejectsForeignAndTamperedTokens(t *testing.T) {
	gen := qr.NewQRGenerator("test-secret")
	token, err := gen.Token(sampleTicket().QRPayload())
	require.NoError(t, err)

	_, err = qr.NewQRGenerator("another-secret").Decode(token)
	assert.ErrorIs(t, err, qr.ErrInvalidToken)

	tampered := []byte(token)
	tampered[len(tampered)/2] ^= 0x01
	_, err = gen.Decode(string(tampered))
	assert.ErrorIs(t, err, qr.ErrInvalidToken)

	_, err = gen.Decode("%%%")
	assert.ErrorIs(t, err, qr.ErrInvalidToken)
}
