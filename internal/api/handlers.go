package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/Jcapehart2/lockerlink/internal/eventbus"
	"github.com/Jcapehart2/lockerlink/internal/orders"
	"github.com/Jcapehart2/lockerlink/internal/settings"
)

const (
	maxRequestBody   = 1 << 20
	recentDeliveries = 10
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Database:      "ok",
	}
	code := http.StatusOK
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(r.Context()); err != nil {
			s.logger.Error("database ping failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, resp)
}

// handleGetOrder handles GET /orders/{orderID}.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	s.respondOrder(w, r, http.StatusOK, order)
}

// handleCreateOrder handles POST /orders.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	order := &orders.Order{
		Number:           strings.TrimSpace(req.Number),
		BillingEmail:     strings.TrimSpace(req.BillingEmail),
		BillingFirstName: strings.TrimSpace(req.BillingFirstName),
	}
	order.SetShippingLines(req.ShippingLines)
	if err := s.deps.Orders.Create(r.Context(), order); err != nil {
		s.logger.Error("failed to create order", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}
	s.respondOrder(w, r, http.StatusCreated, order)
}

// handleSetShipping handles PUT /orders/{orderID}/shipping. Saving publishes order.updated.
func (s *Server) handleSetShipping(w http.ResponseWriter, r *http.Request) {
	var req ShippingRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	order, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	order.SetShippingLines(req.ShippingLines)
	if err := s.deps.Orders.Save(r.Context(), order); err != nil {
		s.logger.Error("failed to save order", "order_id", order.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save order")
		return
	}
	s.respondOrder(w, r, http.StatusOK, order)
}

// handleGetSettings handles GET /settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Settings.Status(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleSaveSettings handles PUT /settings.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	status, err := s.deps.Settings.Update(r.Context(), settings.Patch{
		WebhookURL: req.WebhookURL,
		APIKey:     req.APIKey,
		Enabled:    req.Enabled,
	})
	var ge *goerrors.Error
	if err != nil && goerrors.As(err, &ge) && ge.TextCode == settings.CodeRegistrationFailed {
		s.logger.Error("settings saved but registration failed", "error", err)
		respondJSON(w, ge.Code, SettingsErrorResponse{
			ErrorResponse: ErrorResponse{Error: ge.Message, Code: ge.TextCode},
			Settings:      status,
		})
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleTestConnection handles POST /settings/test-connection.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req TestConnectionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Settings.TestConnection(r.Context(), req.WebhookURL); err != nil {
		s.writeErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TestConnectionResponse{Success: true, Message: "Connection successful"})
}

// handleListWebhooks handles GET /webhooks.
func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Webhooks.Owned(r.Context())
	if err != nil {
		s.logger.Error("failed to list webhooks", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	out := make([]WebhookResponse, 0, len(subs))
	for _, sub := range subs {
		deliveries, err := s.deps.Deliveries.ListDeliveries(r.Context(), sub.ID, recentDeliveries)
		if err != nil {
			s.logger.Error("failed to list deliveries", "subscription_id", sub.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to list deliveries")
			return
		}
		if deliveries == nil {
			deliveries = []eventbus.Delivery{}
		}
		out = append(out, WebhookResponse{Subscription: sub, Deliveries: deliveries})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) loadOrder(w http.ResponseWriter, r *http.Request) (*orders.Order, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid order id")
		return nil, false
	}
	order, err := s.deps.Orders.Get(r.Context(), id)
	if errors.Is(err, orders.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "order not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to load order", "order_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load order")
		return nil, false
	}
	return order, true
}

func (s *Server) respondOrder(w http.ResponseWriter, r *http.Request, code int, order *orders.Order) {
	notes, err := s.deps.Orders.Notes(r.Context(), order.ID)
	if err != nil {
		s.logger.Error("failed to load order notes", "order_id", order.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load order notes")
		return
	}
	respondJSON(w, code, orderResponse(order, notes))
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeErr maps coded errors to their status and message. Anything else is an opaque 500.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var ge *goerrors.Error
	if goerrors.As(err, &ge) && ge.Code != 0 {
		if ge.Code >= http.StatusInternalServerError {
			s.logger.Error("request failed", "code", ge.TextCode, "error", err)
		}
		respondJSON(w, ge.Code, ErrorResponse{Error: ge.Message, Code: ge.TextCode})
		return
	}
	s.logger.Error("request failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}
