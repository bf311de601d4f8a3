package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/market"
)

// DepositRequest is the request to fund the caller's vault balance
type DepositRequest struct {
	Amount string `json:"amount"` // ether
}

// BalanceResponse is an account's vault balance with its open positions
type BalanceResponse struct {
	Address   string                `json:"address"`
	Balance   string                `json:"balance"`
	Positions []engine.PositionJSON `json:"positions"`
}

// handleDeposit handles POST /api/deposit
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req DepositRequest
	if err := decode(body, &req); err != nil {
		s.fail(w, err)
		return
	}
	amount, err := market.ParseEther(req.Amount)
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.vault.Deposit(caller, amount); err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.balance(caller))
}

// handleGetBalance handles GET /api/balance/{address}
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(r.PathValue("address"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.balance(user))
}

// handleGetVault handles GET /api/vault
func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.Snapshot())
}

func (s *Server) balance(user common.Address) BalanceResponse {
	positions := s.engine.UserPositions(user)
	result := make([]engine.PositionJSON, 0, len(positions))
	for _, p := range positions {
		result = append(result, p.ToJSON())
	}
	return BalanceResponse{
		Address:   user.Hex(),
		Balance:   market.FormatEther(s.vault.Balance(user)),
		Positions: result,
	}
}
