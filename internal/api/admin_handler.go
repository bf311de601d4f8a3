package api

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"darkbet-backend/internal/market"
)

// Mirror is the off-protocol event store that admins may prune
type Mirror interface {
	PurgeMarket(ctx context.Context, marketID uint64) (int64, error)
}

// handlePause handles POST /api/admin/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	if err := s.markets.Pause(caller); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// handleUnpause handles POST /api/admin/unpause
func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	if err := s.markets.Unpause(caller); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// SetResolverRequest replaces the resolver identity
type SetResolverRequest struct {
	Resolver string `json:"resolver"`
}

// handleSetResolver handles POST /api/admin/resolver
func (s *Server) handleSetResolver(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req SetResolverRequest
	if err := decode(body, &req); err != nil {
		s.fail(w, err)
		return
	}
	resolver, err := parseAddress(req.Resolver)
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.markets.Roles().SetResolver(caller, resolver); err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("resolver changed", zap.String("resolver", resolver.Hex()), zap.String("by", caller.Hex()))

	writeJSON(w, http.StatusOK, map[string]string{"resolver": resolver.Hex()})
}

// WithdrawFeesRequest moves fee revenue to an account balance
type WithdrawFeesRequest struct {
	To     string `json:"to,omitempty"` // defaults to the caller
	Amount string `json:"amount"`
}

// handleWithdrawFees handles POST /api/admin/withdraw-fees
func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req WithdrawFeesRequest
	if err := decode(body, &req); err != nil {
		s.fail(w, err)
		return
	}
	var to common.Address
	if req.To != "" {
		addr, err := parseAddress(req.To)
		if err != nil {
			s.fail(w, err)
			return
		}
		to = addr
	}
	amount, err := market.ParseEther(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.vault.WithdrawFees(s.markets.Roles(), caller, to, amount); err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"withdrawn":   market.FormatEther(amount),
		"fee_balance": market.FormatEther(s.vault.FeeBalance()),
	})
}

// handlePurgeMirror handles DELETE /api/admin/mirror/{id}
func (s *Server) handlePurgeMirror(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	if err := s.markets.Roles().RequireOwner(caller); err != nil {
		s.fail(w, err)
		return
	}
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.mirror == nil {
		writeError(w, http.StatusNotFound, market.KindNotFound, "event mirror is not configured")
		return
	}

	n, err := s.mirror.PurgeMarket(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Warn("event mirror purged", zap.Uint64("market_id", id), zap.Int64("rows", n))

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "deleted": n})
}
