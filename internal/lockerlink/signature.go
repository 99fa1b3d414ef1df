package lockerlink

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// Signature headers used in both directions.
const (
	HeaderCallbackSignature = "X-LockerLink-Signature"
	HeaderWebhookSignature  = "X-LockerLink-Webhook-Signature"
)

// ErrSignatureMismatch is returned by VerifySignature for any rejected signature.
// The reason is deliberately not distinguished.
var ErrSignatureMismatch = errors.New("signature verification failed")

// Sign returns base64(HMAC-SHA256(body, secret)).
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the exact bytes in body.
// Callers must pass the raw request body, never a re-encoded form of it.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrSignatureMismatch
	}
	expected := Sign(body, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
