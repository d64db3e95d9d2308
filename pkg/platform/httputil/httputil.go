// Package httputil holds the JSON response and request helpers shared by all
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dErrors "kycflow/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error       string         `json:"error"`
	Description string         `json:"error_description,omitempty"`
	Retryable   bool           `json:"retryable,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Validatable is implemented by request bodies that normalize and check
// themselves after decoding.
type Validatable interface {
	Validate() error
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into a status code and error body. Internal
// failures never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		de = dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
	resp := ErrorResponse{Error: string(de.Code)}
	if !hidden(de.Code) {
		resp.Description = de.Message
		resp.Retryable = de.Retryable()
		resp.Details = details(de.Context)
	}
	WriteJSON(w, StatusFor(de.Code), resp)
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidState:
		return http.StatusConflict
	case dErrors.CodeChainConfiguration:
		return http.StatusUnprocessableEntity
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func hidden(code dErrors.Code) bool {
	return code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation
}

func details(kv []any) map[string]any {
	if len(kv) < 2 {
		return nil
	}
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		switch v := kv[i+1].(type) {
		case fmt.Stringer:
			out[key] = v.String()
		default:
			out[key] = v
		}
	}
	return out
}

// DecodeAndPrepare decodes a JSON body into T and validates it. On failure it
// writes the error response and returns false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := PT(&req).Validate(); err != nil {
		logger.WarnContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return &req, true
}
