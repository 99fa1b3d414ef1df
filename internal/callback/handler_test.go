package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/log"
	"github.com/Jcapehart2/lockerlink/internal/orders"
	"github.com/Jcapehart2/lockerlink/internal/storage"
)

const testKey = "shared-secret"

type staticCreds struct {
	creds lockerlink.Credentials
	err   error
}

func (s staticCreds) Credentials(context.Context) (lockerlink.Credentials, error) {
	return s.creds, s.err
}

// spyStore wraps the real order store and counts saves.
type spyStore struct {
	*orders.Store
	mu    sync.Mutex
	saves int
	fail  error
}

func (s *spyStore) Save(ctx context.Context, o *orders.Order) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	return s.Store.Save(ctx, o)
}

type recordingSink struct {
	mu     sync.Mutex
	events []lockerlink.PickupReady
}

func (s *recordingSink) PickupReady(_ context.Context, n lockerlink.PickupReady) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n)
	return nil
}

type harness struct {
	router http.Handler
	store  *spyStore
	sink   *recordingSink
	order  *orders.Order
}

func newHarness(t *testing.T, creds lockerlink.Credentials, cfg Config) *harness {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "callback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := &spyStore{Store: orders.NewStore(db, log.Discard())}
	o := &orders.Order{Number: "1001", BillingEmail: "sam@example.com"}
	o.SetShippingLines([]orders.ShippingLine{{MethodID: lockerlink.MethodID}})
	require.NoError(t, store.Store.Create(context.Background(), o))

	sink := &recordingSink{}
	h := New(cfg, store, staticCreds{creds: creds}, sink, log.Discard())
	r := chi.NewRouter()
	r.Mount("/lockerlink/v1", h.Routes())
	return &harness{router: r, store: store, sink: sink, order: o}
}

func (h *harness) post(t *testing.T, body []byte, signature string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/lockerlink/v1/assignment-update", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(lockerlink.HeaderCallbackSignature, signature)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func (h *harness) signedPost(t *testing.T, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	return h.post(t, []byte(body), lockerlink.Sign([]byte(body), testKey))
}

func (h *harness) reload(t *testing.T) *orders.Order {
	t.Helper()
	o, err := h.store.Get(context.Background(), h.order.ID)
	require.NoError(t, err)
	return o
}

func (h *harness) notes(t *testing.T) []orders.Note {
	t.Helper()
	notes, err := h.store.Notes(context.Background(), h.order.ID)
	require.NoError(t, err)
	return notes
}

var configured = lockerlink.Credentials{WebhookURL: "https://lockers.example.com", APIKey: testKey, Enabled: true}

func orderBody(id int64, rest string) string {
	b, _ := json.Marshal(id)
	if rest == "" {
		return `{"orderId":` + string(b) + `}`
	}
	return `{"orderId":` + string(b) + `,` + rest + `}`
}

func TestNotifiedUpdateStoresFieldsNotesAndNotifies(t *testing.T) {
	h := newHarness(t, configured, Config{})

	rec, resp := h.signedPost(t, orderBody(h.order.ID,
		`"status":"notified","lockerName":"A12","compartmentLabel":"3","pickupUrl":"https://lockers.example.com/p/abc","unlockToken":"tok-9"`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Response{Success: true, Message: "Assignment update received."}, resp)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	o := h.reload(t)
	assert.Equal(t, "notified", o.Field(lockerlink.FieldStatus))
	assert.Equal(t, "A12", o.Field(lockerlink.FieldLocker))
	assert.Equal(t, "3", o.Field(lockerlink.FieldCompartment))
	assert.Equal(t, "https://lockers.example.com/p/abc", o.Field(lockerlink.FieldPickupURL))
	assert.Equal(t, "tok-9", o.Field(lockerlink.FieldUnlockToken))

	notes := h.notes(t)
	require.Len(t, notes, 1)
	assert.Equal(t, "Pickup email sent to customer. Locker: A12, Compartment: 3.", notes[0].Text)
	assert.False(t, notes[0].CustomerVisible)

	require.Len(t, h.sink.events, 1)
	assert.Equal(t, lockerlink.PickupReady{
		OrderID:          h.order.ID,
		LockerName:       "A12",
		CompartmentLabel: "3",
		PickupURL:        "https://lockers.example.com/p/abc",
	}, h.sink.events[0])
	assert.Equal(t, 1, h.store.saves)
}

func TestStatusNotes(t *testing.T) {
	cases := []struct {
		status string
		extra  string
		note   string
	}{
		{"assigned", `,"lockerName":"L1"`, "Order assigned. Locker: L1."},
		{"loaded", `,"compartmentLabel":"7"`, "Order loaded into locker. Compartment: 7."},
		{"loaded", "", "Order loaded into locker."},
		{"picked_up", `,"lockerName":"L1"`, "Order picked up from locker."},
		{"cancelled", "", "Locker assignment cancelled."},
		{"expired", "", "LockerLink status updated: expired"},
	}
	for _, tc := range cases {
		t.Run(tc.status+tc.extra, func(t *testing.T) {
			h := newHarness(t, configured, Config{})
			rec, _ := h.signedPost(t, orderBody(h.order.ID, `"status":"`+tc.status+`"`+tc.extra))
			require.Equal(t, http.StatusOK, rec.Code)

			notes := h.notes(t)
			require.Len(t, notes, 1)
			assert.Equal(t, tc.note, notes[0].Text)
			assert.Equal(t, tc.status, h.reload(t).Field(lockerlink.FieldStatus))
			assert.Empty(t, h.sink.events)
		})
	}
}

func TestPartialUpdateKeepsEarlierFields(t *testing.T) {
	h := newHarness(t, configured, Config{})

	rec, _ := h.signedPost(t, orderBody(h.order.ID,
		`"status":"assigned","lockerName":"A12","compartmentLabel":"3","pickupUrl":"https://l.example.com/x"`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.signedPost(t, orderBody(h.order.ID, `"status":"loaded","lockerName":"","pickupUrl":"not a url"`))
	require.Equal(t, http.StatusOK, rec.Code)

	o := h.reload(t)
	assert.Equal(t, "loaded", o.Field(lockerlink.FieldStatus))
	assert.Equal(t, "A12", o.Field(lockerlink.FieldLocker))
	assert.Equal(t, "3", o.Field(lockerlink.FieldCompartment))
	assert.Equal(t, "https://l.example.com/x", o.Field(lockerlink.FieldPickupURL))

	notes := h.notes(t)
	require.Len(t, notes, 2)
	assert.Equal(t, "Order loaded into locker.", notes[1].Text)
}

func TestRepeatedCallsAppendNotesAndResendNotification(t *testing.T) {
	h := newHarness(t, configured, Config{})
	body := orderBody(h.order.ID, `"status":"notified","lockerName":"A12"`)

	for range 2 {
		rec, _ := h.signedPost(t, body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, h.notes(t), 2)
	assert.Len(t, h.sink.events, 2)
}

func TestSanitizesInput(t *testing.T) {
	h := newHarness(t, configured, Config{})

	rec, _ := h.signedPost(t, orderBody(h.order.ID,
		`"status":"assigned","lockerName":"<b>Lobby</b>\u0007 North","pickupUrl":"javascript:alert(1)"`))
	require.Equal(t, http.StatusOK, rec.Code)

	o := h.reload(t)
	assert.Equal(t, "Lobby North", o.Field(lockerlink.FieldLocker))
	assert.Empty(t, o.Field(lockerlink.FieldPickupURL))
	assert.Equal(t, "Order assigned. Locker: Lobby North.", h.notes(t)[0].Text)
}

func TestOrderIDAsString(t *testing.T) {
	h := newHarness(t, configured, Config{})
	id, _ := json.Marshal(h.order.ID)

	rec, _ := h.signedPost(t, `{"orderId":"`+string(id)+`","status":"assigned"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "assigned", h.reload(t).Field(lockerlink.FieldStatus))
}

func TestValidationFailuresDoNotMutate(t *testing.T) {
	cases := []struct {
		name    string
		body    func(id int64) string
		code    int
		message string
	}{
		{"missing status", func(id int64) string { return orderBody(id, "") }, http.StatusBadRequest, "orderId and status are required."},
		{"blank status", func(id int64) string { return orderBody(id, `"status":"  "`) }, http.StatusBadRequest, "orderId and status are required."},
		{"markup-only status", func(id int64) string { return orderBody(id, `"status":"<i></i>"`) }, http.StatusBadRequest, "orderId and status are required."},
		{"missing order id", func(int64) string { return `{"status":"loaded"}` }, http.StatusBadRequest, "orderId and status are required."},
		{"zero order id", func(int64) string { return `{"orderId":0,"status":"loaded"}` }, http.StatusBadRequest, "orderId and status are required."},
		{"negative order id", func(int64) string { return `{"orderId":-4,"status":"loaded"}` }, http.StatusBadRequest, "orderId and status are required."},
		{"unknown order", func(int64) string { return `{"orderId":987654,"status":"loaded"}` }, http.StatusNotFound, "Order not found."},
		{"not json", func(int64) string { return `orderId=1&status=loaded` }, http.StatusBadRequest, "Request body must be a JSON object."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, configured, Config{})
			rec, resp := h.signedPost(t, tc.body(h.order.ID))

			assert.Equal(t, tc.code, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.message, resp.Message)
			assert.Zero(t, h.store.saves)
			assert.Empty(t, h.notes(t))
			assert.Empty(t, h.reload(t).Fields())
			assert.Empty(t, h.sink.events)
		})
	}
}

func TestAuthenticationFailures(t *testing.T) {
	body := `{"orderId":1,"status":"loaded"}`

	t.Run("missing signature", func(t *testing.T) {
		h := newHarness(t, configured, Config{})
		rec, resp := h.post(t, []byte(body), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Missing x-lockerlink-signature header.", resp.Message)
		assert.Zero(t, h.store.saves)
	})

	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t, lockerlink.Credentials{WebhookURL: "https://x", Enabled: true}, Config{})
		rec, resp := h.post(t, []byte(body), lockerlink.Sign([]byte(body), testKey))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "LockerLink integration is not configured.", resp.Message)
		assert.Zero(t, h.store.saves)
	})

	t.Run("wrong key", func(t *testing.T) {
		h := newHarness(t, configured, Config{})
		rec, resp := h.post(t, []byte(body), lockerlink.Sign([]byte(body), "other-key"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid signature.", resp.Message)
		assert.False(t, resp.Success)
		assert.Zero(t, h.store.saves)
	})

	t.Run("signature checked before body is parsed", func(t *testing.T) {
		h := newHarness(t, configured, Config{})
		rec, resp := h.post(t, []byte("not json"), "bogus")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid signature.", resp.Message)
	})
}

func TestVerificationUsesRawBytes(t *testing.T) {
	h := newHarness(t, configured, Config{})
	id, _ := json.Marshal(h.order.ID)

	// Semantically equal to the canonical encoding but with different key
	// order and whitespace.
	raw := "{\n  \"status\" : \"loaded\",\n  \"orderId\" : " + string(id) + "\n}"
	sig := lockerlink.Sign([]byte(raw), testKey)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	reencoded, err := json.Marshal(parsed)
	require.NoError(t, err)
	require.NotEqual(t, raw, string(reencoded))
	assert.Error(t, lockerlink.VerifySignature(reencoded, sig, testKey),
		"re-encoded JSON must not verify against the signature of the raw body")

	rec, resp := h.post(t, []byte(raw), sig)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	assert.Equal(t, "loaded", h.reload(t).Field(lockerlink.FieldStatus))
}

func TestPayloadTooLarge(t *testing.T) {
	h := newHarness(t, configured, Config{MaxBodySize: 32})
	body := orderBody(h.order.ID, `"status":"loaded","lockerName":"`+strings.Repeat("x", 64)+`"`)

	rec, resp := h.signedPost(t, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, resp.Success)
	assert.Zero(t, h.store.saves)
}

func TestRateLimited(t *testing.T) {
	h := newHarness(t, configured, Config{RateLimit: 0.001, Burst: 1})
	body := orderBody(h.order.ID, `"status":"loaded"`)

	rec, _ := h.signedPost(t, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := h.signedPost(t, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, 1, h.store.saves)
}

func TestStorageFailureIsOpaque(t *testing.T) {
	h := newHarness(t, configured, Config{})
	h.store.fail = errors.New("disk I/O error")

	rec, resp := h.signedPost(t, orderBody(h.order.ID, `"status":"notified"`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error.", resp.Message)
	assert.NotContains(t, resp.Message, "disk")
	assert.Empty(t, h.notes(t))
	assert.Empty(t, h.sink.events)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, configured, Config{})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lockerlink/v1/assignment-update", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
