package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/market"
)

// CommitBetRequest is the request to commit a hidden bet
type CommitBetRequest struct {
	CommitHash string `json:"commit_hash"`
	Amount     string `json:"amount"` // ether
}

// handleCommitBet handles POST /api/markets/{id}/commit
func (s *Server) handleCommitBet(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req CommitBetRequest
	if err := decode(body, &req); err != nil {
		s.fail(w, err)
		return
	}
	hash, err := engine.ParseCommitHash(req.CommitHash)
	if err != nil {
		s.fail(w, err)
		return
	}
	amount, err := market.ParseEther(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}

	c, err := s.engine.Commit(r.Context(), id, hash, amount, caller)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, engine.Position{Commitment: c}.ToJSON())
}

// RevealBetRequest is the request to reveal a committed bet
type RevealBetRequest struct {
	Outcome string `json:"outcome"` // "yes" or "no"
	Salt    string `json:"salt"`    // 32 bytes, hex
}

// handleRevealBet handles POST /api/markets/{id}/reveal
func (s *Server) handleRevealBet(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req RevealBetRequest
	if err := decode(body, &req); err != nil {
		s.fail(w, err)
		return
	}
	outcome, err := ParseOutcome(req.Outcome)
	if err != nil {
		s.fail(w, err)
		return
	}
	salt, err := engine.ParseSalt(req.Salt)
	if err != nil {
		s.fail(w, err)
		return
	}

	if _, err := s.engine.Reveal(r.Context(), id, outcome, salt, caller); err != nil {
		s.fail(w, err)
		return
	}

	pos, err := s.engine.Position(id, caller)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos.ToJSON())
}

// handleListPositions handles GET /api/markets/{id}/positions
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	positions, err := s.engine.Positions(id)
	if err != nil {
		s.fail(w, err)
		return
	}

	result := make([]engine.PositionJSON, 0, len(positions))
	for _, p := range positions {
		result = append(result, p.ToJSON())
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetPosition handles GET /api/markets/{id}/positions/{address}
func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	user, err := parseAddress(r.PathValue("address"))
	if err != nil {
		s.fail(w, err)
		return
	}

	pos, err := s.engine.Position(id, user)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pos.ToJSON())
}
