package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/options"
	"github.com/Jcapehart2/lockerlink/internal/storage"
)

type reconfigureCall struct {
	old, updated lockerlink.Credentials
}

type recordingReconfigurer struct {
	calls []reconfigureCall
	err   error
}

func (r *recordingReconfigurer) Reconfigure(_ context.Context, old, updated lockerlink.Credentials) error {
	r.calls = append(r.calls, reconfigureCall{old: old, updated: updated})
	return r.err
}

func newTestService(t *testing.T) (*Service, *options.Store, *recordingReconfigurer) {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := options.NewStore(db)
	reg := &recordingReconfigurer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, reg, logger), store, reg
}

func TestSaveNormalisesAndHandsBothSetsToRegistrar(t *testing.T) {
	ctx := context.Background()
	svc, store, reg := newTestService(t)

	status, err := svc.Save(ctx, lockerlink.Credentials{
		WebhookURL: "  https://lockers.example.com/wc/ ",
		APIKey:     " key-1 ",
		Enabled:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, Status{
		WebhookURL: "https://lockers.example.com/wc",
		APIKeySet:  true,
		Enabled:    true,
		Configured: true,
		Active:     true,
	}, status)

	stored, err := store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://lockers.example.com/wc", stored.WebhookURL)
	assert.Equal(t, "key-1", stored.APIKey)

	require.Len(t, reg.calls, 1)
	assert.False(t, reg.calls[0].old.Configured())
	assert.Equal(t, stored, reg.calls[0].updated)
}

func TestUpdateKeepsOmittedFields(t *testing.T) {
	ctx := context.Background()
	svc, store, reg := newTestService(t)
	_, err := svc.Save(ctx, lockerlink.Credentials{WebhookURL: "https://lockers.example.com/wc", APIKey: "key-1", Enabled: true})
	require.NoError(t, err)

	disabled := false
	status, err := svc.Update(ctx, Patch{Enabled: &disabled})
	require.NoError(t, err)
	assert.True(t, status.APIKeySet)
	assert.True(t, status.Configured)
	assert.False(t, status.Active)

	stored, err := store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, lockerlink.Credentials{WebhookURL: "https://lockers.example.com/wc", APIKey: "key-1", Enabled: false}, stored)

	// The delivery pair is unchanged, so the registrar sees no difference.
	require.Len(t, reg.calls, 2)
	assert.True(t, reg.calls[1].old.SameDelivery(reg.calls[1].updated))

	key := "key-2"
	_, err = svc.Update(ctx, Patch{APIKey: &key})
	require.NoError(t, err)
	stored, err = store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key-2", stored.APIKey)
	assert.Equal(t, "https://lockers.example.com/wc", stored.WebhookURL)
	assert.False(t, stored.Enabled)
}

func TestSaveDropsMalformedURL(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	status, err := svc.Save(ctx, lockerlink.Credentials{WebhookURL: "javascript:alert(1)", APIKey: "k", Enabled: true})
	require.NoError(t, err)
	assert.False(t, status.Configured)

	stored, err := store.Credentials(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored.WebhookURL)
}

func TestSaveRemovesLegacyOptions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	require.NoError(t, store.Set(ctx, options.KeyLegacyServerURL, "https://old.example.com"))
	require.NoError(t, store.Set(ctx, options.KeyLegacyAPIID, "abc"))

	_, err := svc.Save(ctx, lockerlink.Credentials{})
	require.NoError(t, err)

	var v string
	found, err := store.Get(ctx, options.KeyLegacyServerURL, &v)
	require.NoError(t, err)
	assert.False(t, found)
	found, err = store.Get(ctx, options.KeyLegacyAPIID, &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveKeepsCredentialsWhenRegistrationFails(t *testing.T) {
	ctx := context.Background()
	svc, store, reg := newTestService(t)
	reg.err = errors.New("bus down")

	_, err := svc.Save(ctx, lockerlink.Credentials{WebhookURL: "https://a.example.com", APIKey: "k", Enabled: true})
	require.Error(t, err)

	var ge *goerrors.Error
	require.True(t, goerrors.As(err, &ge))
	assert.Equal(t, CodeRegistrationFailed, ge.TextCode)
	assert.Equal(t, http.StatusBadGateway, ge.Code)

	stored, err := store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k", stored.APIKey)
}

func TestSeedOnlyWritesOnce(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	wrote, err := svc.Seed(ctx, lockerlink.Credentials{WebhookURL: "https://a.example.com/", APIKey: "k1", Enabled: true})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = svc.Seed(ctx, lockerlink.Credentials{WebhookURL: "https://b.example.com", APIKey: "k2", Enabled: true})
	require.NoError(t, err)
	assert.False(t, wrote)

	stored, err := store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com", stored.WebhookURL)
	assert.Equal(t, "k1", stored.APIKey)
}

func TestTestConnection(t *testing.T) {
	var gotBody string
	var gotType string
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	svc, _, _ := newTestService(t)
	require.NoError(t, svc.TestConnection(context.Background(), ok.URL))
	assert.Equal(t, `{"ping":true}`, gotBody)
	assert.Equal(t, "application/json", gotType)
}

func TestTestConnectionNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	svc, _, _ := newTestService(t)
	err := svc.TestConnection(context.Background(), srv.URL)
	require.Error(t, err)

	var ge *goerrors.Error
	require.True(t, goerrors.As(err, &ge))
	assert.Equal(t, "Server returned HTTP 403", ge.Message)
	assert.Equal(t, CodeConnectionFailed, ge.TextCode)
}

func TestTestConnectionRequiresURL(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, in := range []string{"", "   ", "not a url"} {
		err := svc.TestConnection(context.Background(), in)
		var ge *goerrors.Error
		require.True(t, goerrors.As(err, &ge), "input %q", in)
		assert.Equal(t, "Webhook URL is required.", ge.Message)
		assert.Equal(t, http.StatusBadRequest, ge.Code)
	}
}

func TestStatusNeverExposesKey(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	require.NoError(t, store.SaveCredentials(ctx, lockerlink.Credentials{WebhookURL: "https://a.example.com", APIKey: "secret", Enabled: false}))

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.APIKeySet)
	assert.True(t, status.Configured)
	assert.False(t, status.Active)
}
