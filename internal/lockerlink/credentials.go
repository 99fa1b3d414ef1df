package lockerlink

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Credentials are the integration settings shared by the outbound signer and
// the inbound verifier.
type Credentials struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

// Normalize trims both values and strips trailing slashes from the URL.
func (c Credentials) Normalize() Credentials {
	c.WebhookURL = strings.TrimRight(strings.TrimSpace(c.WebhookURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	return c
}

// Configured reports whether both the delivery URL and the shared secret are set.
func (c Credentials) Configured() bool {
	return c.WebhookURL != "" && c.APIKey != ""
}

// Active reports whether the integration is configured and switched on.
func (c Credentials) Active() bool {
	return c.Enabled && c.Configured()
}

// SameDelivery reports whether two credential sets sign and deliver identically.
func (c Credentials) SameDelivery(other Credentials) bool {
	return c.WebhookURL == other.WebhookURL && c.APIKey == other.APIKey
}

// Fingerprint identifies the delivery credentials without exposing the key.
func (c Credentials) Fingerprint() string {
	sum := blake3.Sum256([]byte(c.WebhookURL + "\x00" + c.APIKey))
	return hex.EncodeToString(sum[:])
}
