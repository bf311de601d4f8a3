package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"darkbet-backend/internal/market"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Kind  market.Kind `json:"kind"`
	Error string      `json:"error"`
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"kind":"Internal","error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError sends a JSON error of the given kind.
func writeError(w http.ResponseWriter, status int, kind market.Kind, msg string) {
	writeJSON(w, status, ErrorResponse{Kind: kind, Error: msg})
}

// StatusFor maps an error kind to its HTTP status code
func StatusFor(kind market.Kind) int {
	switch kind {
	case market.KindInvalidInput, market.KindInvalidExpiration, market.KindBetTooLow:
		return http.StatusBadRequest
	case market.KindNotFound, market.KindNoCommitmentFound, market.KindNoBetFound:
		return http.StatusNotFound
	case market.KindUnauthorized:
		return http.StatusForbidden
	case market.KindTransferFailed:
		return http.StatusServiceUnavailable
	case market.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

// fail writes err using its protocol kind
func (s *Server) fail(w http.ResponseWriter, err error) {
	kind := market.KindOf(err)
	if s.metrics != nil {
		s.metrics.ObserveError(err)
	}
	msg := market.Message(err)
	if kind == market.KindInternal {
		s.log.Error("internal error", zap.Error(err))
		msg = "internal server error"
	}
	writeError(w, StatusFor(kind), kind, msg)
}

// decode unmarshals a JSON request body. An empty body leaves v untouched.
func decode(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return market.Errorf(market.KindInvalidInput, "invalid request body: %v", err)
	}
	return nil
}

func marketID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, market.Errorf(market.KindInvalidInput, "invalid market id %q", raw)
	}
	return id, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, market.Errorf(market.KindInvalidInput, "invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// ParseOutcome accepts yes/no, true/false and 1/0
func ParseOutcome(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, market.Errorf(market.KindInvalidInput, "outcome must be yes or no, got %q", raw)
	}
}

// limitParam reads ?limit= with a default and an upper bound
func limitParam(r *http.Request, def, max int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
