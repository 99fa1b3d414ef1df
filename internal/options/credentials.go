package options

import (
	"context"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
)

// Option keys holding the integration credentials.
const (
	KeyWebhookURL = "lockerlink_webhook_url"
	KeyAPIKey     = "lockerlink_api_key"
	KeyEnabled    = "lockerlink_enabled"

	// Written by earlier releases, removed on every settings save.
	KeyLegacyServerURL = "lockerlink_server_url"
	KeyLegacyAPIID     = "lockerlink_api_id"
)

// Credentials reads the integration credentials. Enabled defaults to true.
func (s *Store) Credentials(ctx context.Context) (lockerlink.Credentials, error) {
	url, err := s.GetString(ctx, KeyWebhookURL, "")
	if err != nil {
		return lockerlink.Credentials{}, err
	}
	key, err := s.GetString(ctx, KeyAPIKey, "")
	if err != nil {
		return lockerlink.Credentials{}, err
	}
	enabled, err := s.GetString(ctx, KeyEnabled, "yes")
	if err != nil {
		return lockerlink.Credentials{}, err
	}
	return lockerlink.Credentials{WebhookURL: url, APIKey: key, Enabled: enabled == "yes"}, nil
}

// SaveCredentials writes all three credential options.
func (s *Store) SaveCredentials(ctx context.Context, c lockerlink.Credentials) error {
	if err := s.Set(ctx, KeyWebhookURL, c.WebhookURL); err != nil {
		return err
	}
	if err := s.Set(ctx, KeyAPIKey, c.APIKey); err != nil {
		return err
	}
	enabled := "no"
	if c.Enabled {
		enabled = "yes"
	}
	return s.Set(ctx, KeyEnabled, enabled)
}

// HasCredentials reports whether credentials were ever saved.
func (s *Store) HasCredentials(ctx context.Context) (bool, error) {
	var v string
	return s.Get(ctx, KeyAPIKey, &v)
}
