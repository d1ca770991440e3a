package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/HatiCode/shiftcast/pkg/planerr"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	// Interval is set for infeasible coverage tied to one interval.
	Interval *int `json:"interval,omitempty"`
	// Incumbent carries the best counts found before a solver stopped.
	Incumbent map[string]int `json:"incumbent,omitempty"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError replies with err's message plus the interval or incumbent
// counts attached to planning errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var ie *planerr.InfeasibleError
	if errors.As(err, &ie) && ie.Interval >= 0 {
		i := ie.Interval
		resp.Interval = &i
	}
	var se *planerr.SolverError
	if errors.As(err, &se) && se.HasIncumbent() {
		resp.Incumbent = se.Incumbent
	}

	if werr := WriteJSON(w, status, resp); werr != nil {
		slog.Error("error reply not written", "status", status, "error", werr, "cause", err)
	}
}

// WriteErrorMessage replies with a plain message.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	if err := WriteJSON(w, status, ErrorResponse{Error: message}); err != nil {
		slog.Error("error reply not written", "status", status, "error", err)
	}
}

// StatusFor maps planning errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, planerr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, planerr.ErrInfeasibleCoverage), errors.Is(err, planerr.ErrTargetUnreachable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, planerr.ErrSolverTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WritePlanError writes err with the status chosen by StatusFor.
func WritePlanError(w http.ResponseWriter, err error) {
	WriteError(w, StatusFor(err), err)
}

// DecodeJSON reads at most maxBytes of r's body into v, rejecting unknown
// fields and trailing data. Failures are planerr.ErrInvalidInput.
func DecodeJSON(r *http.Request, v any, maxBytes int64) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return planerr.Invalid("body", "%v", err)
	}
	if dec.More() {
		return planerr.Invalid("body", "unexpected data after JSON object")
	}
	return nil
}
