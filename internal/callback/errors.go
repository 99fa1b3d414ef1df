package callback

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by callback errors.
const (
	CodeMissingSignature = "missing_signature"
	CodeNotConfigured    = "not_configured"
	CodeInvalidSignature = "invalid_signature"
	CodeInvalidJSON      = "invalid_json"
	CodeMissingFields    = "missing_fields"
	CodeOrderNotFound    = "order_not_found"
	CodePayloadTooLarge  = "payload_too_large"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
)

func newError(message string, category goerrors.Category, code int, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}

func errMissingSignature() *goerrors.Error {
	return newError("Missing x-lockerlink-signature header.", goerrors.CategoryAuth, http.StatusUnauthorized, CodeMissingSignature)
}

func errNotConfigured() *goerrors.Error {
	return newError("LockerLink integration is not configured.", goerrors.CategoryInternal, http.StatusInternalServerError, CodeNotConfigured)
}

func errInvalidSignature() *goerrors.Error {
	return newError("Invalid signature.", goerrors.CategoryAuth, http.StatusUnauthorized, CodeInvalidSignature)
}

func errInvalidJSON() *goerrors.Error {
	return newError("Request body must be a JSON object.", goerrors.CategoryBadInput, http.StatusBadRequest, CodeInvalidJSON)
}

func errMissingFields() *goerrors.Error {
	return newError("orderId and status are required.", goerrors.CategoryValidation, http.StatusBadRequest, CodeMissingFields)
}

func errOrderNotFound(orderID int64) *goerrors.Error {
	return newError("Order not found.", goerrors.CategoryNotFound, http.StatusNotFound, CodeOrderNotFound).
		WithMetadata(map[string]any{"order_id": orderID})
}

func errPayloadTooLarge() *goerrors.Error {
	return newError("Payload too large.", goerrors.CategoryBadInput, http.StatusRequestEntityTooLarge, CodePayloadTooLarge)
}

func errRateLimited() *goerrors.Error {
	return newError("Too many requests.", goerrors.CategoryRateLimit, http.StatusTooManyRequests, CodeRateLimited)
}

// errInternal wraps a storage or collaborator failure. The cause is kept for
// logging and never shown to the caller.
func errInternal(cause error, op string) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, op).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeInternal)
}

// asError maps any error to a callback error. Unknown errors become internal.
func asError(err error) *goerrors.Error {
	var ce *goerrors.Error
	if goerrors.As(err, &ce) && ce.Code != 0 {
		return ce
	}
	return errInternal(err, "unexpected error")
}

// publicMessage is the message shown in the response body.
func publicMessage(e *goerrors.Error) string {
	if e.TextCode == CodeInternal {
		return "Internal server error."
	}
	return e.Message
}
