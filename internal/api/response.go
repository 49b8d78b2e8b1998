// Package api holds the JSON envelope shared by the insight API handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/reviewpulse/internal/domain"
)

// Envelope wraps every successful body as {"data": ...}.
type Envelope struct {
	Data any `json:"data"`
}

// Problem is the body of every non-2xx response.
type Problem struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func write(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Data writes v inside the data envelope.
func Data(w http.ResponseWriter, status int, v any) {
	write(w, status, Envelope{Data: v})
}

// Fail writes a problem body with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Problem{Error: message, Code: code})
}

// StatusFor maps a domain error code to an HTTP status. Anything that is not
// a DomainError is a 500.
func StatusFor(err error) int {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}

	switch domainErr.Code {
	case domain.ErrCodeValidation, domain.ErrCodeInvalidOperation:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeStageLocked:
		return http.StatusConflict
	case domain.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case domain.ErrCodeSynthesisTransport, domain.ErrCodeSynthesisParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes err as a problem body. Non-domain errors are reported as
// a bare internal error so store details never reach the client.
func HandleError(w http.ResponseWriter, err error) {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		Fail(w, http.StatusInternalServerError, domain.ErrCodeInternalError, "internal error")
		return
	}
	Fail(w, StatusFor(err), domainErr.Code, domainErr.Message)
}
