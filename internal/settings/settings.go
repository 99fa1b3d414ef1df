// Package settings is the only write path for the integration credentials.
// Saving re-registers the outbound webhooks when the delivery credentials change.
package settings

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/options"
)

const (
	CodeURLRequired        = "webhook_url_required"
	CodeConnectionFailed   = "connection_failed"
	CodeRegistrationFailed = "registration_failed"

	testTimeout = 15 * time.Second
)

// CredentialStore reads and writes the stored credentials.
type CredentialStore interface {
	Credentials(ctx context.Context) (lockerlink.Credentials, error)
	SaveCredentials(ctx context.Context, c lockerlink.Credentials) error
	HasCredentials(ctx context.Context) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Reconfigurer applies the re-registration policy. *registrar.Registrar satisfies it.
type Reconfigurer interface {
	Reconfigure(ctx context.Context, old, updated lockerlink.Credentials) error
}

// Status describes the stored credentials without exposing the key.
type Status struct {
	WebhookURL string `json:"webhook_url"`
	APIKeySet  bool   `json:"api_key_set"`
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Active     bool   `json:"active"`
}

func statusOf(c lockerlink.Credentials) Status {
	return Status{
		WebhookURL: c.WebhookURL,
		APIKeySet:  c.APIKey != "",
		Enabled:    c.Enabled,
		Configured: c.Configured(),
		Active:     c.Active(),
	}
}

type Service struct {
	store    CredentialStore
	registry Reconfigurer
	client   *http.Client
	logger   *slog.Logger
}

func New(store CredentialStore, registry Reconfigurer, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		client:   &http.Client{Timeout: testTimeout},
		logger:   logger,
	}
}

// Status reports the stored credentials.
func (s *Service) Status(ctx context.Context) (Status, error) {
	c, err := s.store.Credentials(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load credentials: %w", err)
	}
	return statusOf(c), nil
}

// Save normalises and stores c, removes options left by earlier releases and
// re-registers the webhooks when the URL or key changed. A malformed URL is
// stored as empty. The credentials stay saved even if re-registration fails.
func (s *Service) Save(ctx context.Context, c lockerlink.Credentials) (Status, error) {
	old, err := s.store.Credentials(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load credentials: %w", err)
	}

	c.WebhookURL = lockerlink.SanitizeURL(c.WebhookURL)
	c.APIKey = lockerlink.SanitizeText(c.APIKey)
	c = c.Normalize()

	if err := s.store.SaveCredentials(ctx, c); err != nil {
		return Status{}, fmt.Errorf("save credentials: %w", err)
	}
	for _, key := range []string{options.KeyLegacyServerURL, options.KeyLegacyAPIID} {
		if err := s.store.Delete(ctx, key); err != nil {
			return Status{}, fmt.Errorf("remove legacy option: %w", err)
		}
	}

	changed := !old.Normalize().SameDelivery(c)
	s.logger.Info("integration settings saved",
		"configured", c.Configured(),
		"enabled", c.Enabled,
		"credentials_changed", changed,
	)

	if err := s.registry.Reconfigure(ctx, old, c); err != nil {
		return statusOf(c), goerrors.Wrap(err, goerrors.CategoryExternal, "Settings saved but webhook registration failed.").
			WithCode(http.StatusBadGateway).
			WithTextCode(CodeRegistrationFailed)
	}
	return statusOf(c), nil
}

// Patch names the credential fields to change. Nil fields keep the stored value.
type Patch struct {
	WebhookURL *string
	APIKey     *string
	Enabled    *bool
}

// Update applies p over the stored credentials and saves the result like Save.
func (s *Service) Update(ctx context.Context, p Patch) (Status, error) {
	c, err := s.store.Credentials(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("load credentials: %w", err)
	}
	if p.WebhookURL != nil {
		c.WebhookURL = *p.WebhookURL
	}
	if p.APIKey != nil {
		c.APIKey = *p.APIKey
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	return s.Save(ctx, c)
}

// Seed stores c when no credentials were ever saved. It reports whether it wrote anything.
func (s *Service) Seed(ctx context.Context, c lockerlink.Credentials) (bool, error) {
	has, err := s.store.HasCredentials(ctx)
	if err != nil {
		return false, fmt.Errorf("check credentials: %w", err)
	}
	if has {
		return false, nil
	}
	c = c.Normalize()
	if err := s.store.SaveCredentials(ctx, c); err != nil {
		return false, fmt.Errorf("seed credentials: %w", err)
	}
	return true, nil
}

// TestConnection posts a ping to webhookURL. Any 2xx answer is success.
func (s *Service) TestConnection(ctx context.Context, webhookURL string) error {
	webhookURL = lockerlink.SanitizeURL(webhookURL)
	if webhookURL == "" {
		return goerrors.New("Webhook URL is required.", goerrors.CategoryValidation).
			WithCode(http.StatusBadRequest).
			WithTextCode(CodeURLRequired)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader([]byte(`{"ping":true}`)))
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, err.Error()).
			WithCode(http.StatusBadGateway).
			WithTextCode(CodeConnectionFailed)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return goerrors.New(fmt.Sprintf("Server returned HTTP %d", resp.StatusCode), goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(CodeConnectionFailed).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}
	return nil
}
