package lockerlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsNormalize(t *testing.T) {
	c := Credentials{WebhookURL: " https://hooks.example.com/wc/ll_id_1// ", APIKey: " ll_sk_1 "}.Normalize()
	assert.Equal(t, "https://hooks.example.com/wc/ll_id_1", c.WebhookURL)
	assert.Equal(t, "ll_sk_1", c.APIKey)
}

func TestCredentialsActive(t *testing.T) {
	c := Credentials{WebhookURL: "https://h", APIKey: "k", Enabled: true}
	assert.True(t, c.Configured())
	assert.True(t, c.Active())

	c.Enabled = false
	assert.True(t, c.Configured())
	assert.False(t, c.Active())

	assert.False(t, Credentials{APIKey: "k", Enabled: true}.Configured())
}

func TestCredentialsSameDelivery(t *testing.T) {
	a := Credentials{WebhookURL: "https://h", APIKey: "k", Enabled: true}
	b := Credentials{WebhookURL: "https://h", APIKey: "k", Enabled: false}
	assert.True(t, a.SameDelivery(b))

	b.APIKey = "k2"
	assert.False(t, a.SameDelivery(b))
}

func TestCredentialsFingerprint(t *testing.T) {
	a := Credentials{WebhookURL: "https://h", APIKey: "k", Enabled: true}
	b := Credentials{WebhookURL: "https://h", APIKey: "k"}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
	assert.NotContains(t, a.Fingerprint(), "k")

	assert.NotEqual(t, a.Fingerprint(), Credentials{WebhookURL: "https://h", APIKey: "k2"}.Fingerprint())
	// The separator keeps field boundaries distinct.
	assert.NotEqual(t,
		Credentials{WebhookURL: "ab", APIKey: "c"}.Fingerprint(),
		Credentials{WebhookURL: "a", APIKey: "bc"}.Fingerprint())
}
