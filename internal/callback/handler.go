package callback

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/Jcapehart2/lockerlink/internal/lockerlink"
	"github.com/Jcapehart2/lockerlink/internal/metrics"
	"github.com/Jcapehart2/lockerlink/internal/orders"
)

// Handler serves the assignment-update endpoint.
type Handler struct {
	cfg     Config
	orders  OrderStore
	creds   CredentialSource
	sink    NotificationSink
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(cfg Config, orderStore OrderStore, creds CredentialSource, sink NotificationSink, logger *slog.Logger) *Handler {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	h := &Handler{
		cfg:    cfg,
		orders: orderStore,
		creds:  creds,
		sink:   sink,
		logger: logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return h
}

// Routes returns a router to be mounted under the callback prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post(Route, h.handleAssignmentUpdate)
	return r
}

func (h *Handler) handleAssignmentUpdate(w http.ResponseWriter, r *http.Request) {
	status, err := h.process(r)
	if err != nil {
		ce := asError(err)
		result := ce.TextCode
		if ce.TextCode == CodeInternal {
			h.logger.Error("assignment update failed", "error", err)
		} else {
			h.logger.Warn("assignment update rejected", "code", ce.TextCode, "status", ce.Code)
		}
		metrics.CallbackOutcomes.WithLabelValues(result, status).Inc()
		h.respondJSON(w, ce.Code, Response{Success: false, Message: publicMessage(ce)})
		return
	}
	metrics.CallbackOutcomes.WithLabelValues("ok", status).Inc()
	h.respondJSON(w, http.StatusOK, Response{Success: true, Message: MessageReceived})
}

// process runs the full callback pipeline and returns the reported status
// (empty if never parsed) for metrics.
func (h *Handler) process(r *http.Request) (string, error) {
	ctx := r.Context()

	if h.limiter != nil && !h.limiter.Allow() {
		return "", errRateLimited()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		return "", errInternal(err, "read request body")
	}
	if int64(len(body)) > h.cfg.MaxBodySize {
		return "", errPayloadTooLarge()
	}

	// Verification uses the bytes exactly as received; decoding comes after.
	signature := r.Header.Get(lockerlink.HeaderCallbackSignature)
	if signature == "" {
		return "", errMissingSignature()
	}
	creds, err := h.creds.Credentials(ctx)
	if err != nil {
		return "", errInternal(err, "load credentials")
	}
	if creds.APIKey == "" {
		return "", errNotConfigured()
	}
	if err := lockerlink.VerifySignature(body, signature, creds.APIKey); err != nil {
		return "", errInvalidSignature()
	}

	var upd Update
	if err := json.Unmarshal(body, &upd); err != nil {
		return "", errInvalidJSON()
	}
	upd = sanitize(upd)
	if upd.OrderID <= 0 || upd.Status == "" {
		return "", errMissingFields()
	}
	status := lockerlink.ParseStatus(upd.Status)
	label := metricStatus(status)

	order, err := h.orders.Get(ctx, int64(upd.OrderID))
	if errors.Is(err, orders.ErrNotFound) {
		return label, errOrderNotFound(int64(upd.OrderID))
	}
	if err != nil {
		return label, errInternal(err, "load order")
	}

	apply(order, upd, status)
	if err := h.orders.Save(ctx, order); err != nil {
		return label, errInternal(err, "save order")
	}

	log := h.logger.With("order_id", order.ID, "lockerlink_status", status.String())
	log.Info("assignment update applied")

	if status.Kind == lockerlink.StatusNotified && h.sink != nil {
		n := lockerlink.PickupReady{
			OrderID:          order.ID,
			LockerName:       order.Field(lockerlink.FieldLocker),
			CompartmentLabel: order.Field(lockerlink.FieldCompartment),
			PickupURL:        order.Field(lockerlink.FieldPickupURL),
		}
		if err := h.sink.PickupReady(ctx, n); err != nil {
			log.Error("pickup-ready notification not queued", "error", err)
		}
	}
	return label, nil
}

// sanitize cleans every string field. A malformed pickup URL becomes empty.
func sanitize(u Update) Update {
	u.Status = lockerlink.SanitizeText(u.Status)
	u.CompartmentLabel = lockerlink.SanitizeText(u.CompartmentLabel)
	u.LockerName = lockerlink.SanitizeText(u.LockerName)
	u.PickupURL = lockerlink.SanitizeURL(u.PickupURL)
	u.UnlockToken = lockerlink.SanitizeText(u.UnlockToken)
	return u
}

// apply stages the update on order. Optional fields are only written when
// present so earlier values survive partial updates.
func apply(order *orders.Order, u Update, status lockerlink.Status) {
	order.SetField(lockerlink.FieldStatus, status.String())
	for key, v := range map[string]string{
		lockerlink.FieldCompartment: u.CompartmentLabel,
		lockerlink.FieldLocker:      u.LockerName,
		lockerlink.FieldPickupURL:   u.PickupURL,
		lockerlink.FieldUnlockToken: u.UnlockToken,
	} {
		if v != "" {
			order.SetField(key, v)
		}
	}
	order.AddNote(lockerlink.NoteFor(status, u.LockerName, u.CompartmentLabel), false)
}

// metricStatus bounds label cardinality to the known statuses.
func metricStatus(s lockerlink.Status) string {
	if s.Kind == lockerlink.StatusOther {
		return "other"
	}
	return s.String()
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}
