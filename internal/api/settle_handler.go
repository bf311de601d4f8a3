package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// handleClaimWinnings handles POST /api/markets/{id}/claim
func (s *Server) handleClaimWinnings(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	claim, err := s.settler.ClaimWinnings(r.Context(), id, caller)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim.ToJSON())
}

// handleClaimRefund handles POST /api/markets/{id}/refund
func (s *Server) handleClaimRefund(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	claim, err := s.settler.ClaimRefund(r.Context(), id, caller)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claim.ToJSON())
}
