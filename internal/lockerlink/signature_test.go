package lockerlink

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign([]byte("what do ya want for nothing?"), "Jefe")
	raw, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", hex.EncodeToString(raw))
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{"orderId":42,"status":"loaded"}`),
		[]byte(""),
		[]byte("\x00\xff binary"),
	}
	for _, body := range bodies {
		sig := Sign(body, "k-123")
		assert.NoError(t, VerifySignature(body, sig, "k-123"))
		assert.ErrorIs(t, VerifySignature(body, sig, "k-124"), ErrSignatureMismatch)
	}
}

func TestVerifySignatureRejectsSingleByteMutation(t *testing.T) {
	body := []byte(`{"orderId":42,"status":"notified","lockerName":"A12"}`)
	sig := Sign(body, "secret")

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		assert.Error(t, VerifySignature(mutated, sig, "secret"), "body byte %d", i)
	}
	for i := range sig {
		mutated := []byte(sig)
		mutated[i] ^= 0x01
		assert.Error(t, VerifySignature(body, string(mutated), "secret"), "signature byte %d", i)
	}
}

func TestVerifySignatureEmptyInputs(t *testing.T) {
	body := []byte("{}")
	assert.ErrorIs(t, VerifySignature(body, "", "secret"), ErrSignatureMismatch)
	assert.ErrorIs(t, VerifySignature(body, Sign(body, ""), ""), ErrSignatureMismatch)
}
