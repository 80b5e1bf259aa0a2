package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/router"
	"lumen-hq/relay/pkg/session"
)

// errorBody is the OpenAI error envelope.
type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError maps an internal error onto the OpenAI wire format. Unknown
// errors become opaque 500s; their detail stays in the logs.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body := classifyError(err)
	if status >= 500 {
		logger.Error("request failed", "status", status, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: body})
}

func classifyError(err error) (int, errorBody) {
	var aliasErr *router.AliasNotFoundError
	if errors.As(err, &aliasErr) {
		return http.StatusNotFound, errorBody{
			Message: err.Error(),
			Type:    "invalid_request_error",
			Code:    "model_not_found",
		}
	}

	var badReq *providers.BadRequestError
	if errors.As(err, &badReq) {
		return http.StatusBadRequest, errorBody{
			Message: badReq.Message,
			Type:    "invalid_request_error",
		}
	}

	var held *session.LeaseHeldError
	if errors.As(err, &held) {
		return http.StatusConflict, errorBody{
			Message: err.Error(),
			Type:    "invalid_request_error",
			Code:    "session_busy",
		}
	}

	var unsupported *engine.UnsupportedOperationError
	if errors.As(err, &unsupported) {
		return http.StatusBadRequest, errorBody{
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}

	var exhausted *engine.ChainExhaustedError
	if errors.As(err, &exhausted) {
		return http.StatusServiceUnavailable, errorBody{
			Message: "All upstream providers for this model are currently unavailable.",
			Type:    "server_error",
			Code:    "upstream_unavailable",
		}
	}

	var rateLimited *providers.RateLimitError
	if errors.As(err, &rateLimited) {
		return http.StatusTooManyRequests, errorBody{
			Message: err.Error(),
			Type:    "rate_limit_error",
		}
	}

	var timeout *providers.TimeoutError
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, errorBody{
			Message: "The upstream request timed out.",
			Type:    "server_error",
			Code:    "timeout",
		}
	}

	return http.StatusInternalServerError, errorBody{
		Message: "An internal error occurred. Please try again later.",
		Type:    "server_error",
	}
}

// badRequest writes a client error with the given message.
func badRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{
		Message: message,
		Type:    "invalid_request_error",
	}})
}

// writeJSON writes a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
