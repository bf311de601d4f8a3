package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/market"
)

// CreateMarketRequest is the request to create a new market
type CreateMarketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"` // name or numeric code
	ExpiresAt   string `json:"expires_at"`         // RFC3339 format
}

// handleCreateMarket handles POST /api/markets
func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req CreateMarketRequest
	if err := decode(body, &req); err != nil {
		s.fail(w, err)
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, market.KindInvalidInput, "invalid expires_at format, use RFC3339")
		return
	}
	category, err := market.ParseCategory(req.Category)
	if err != nil {
		s.fail(w, err)
		return
	}

	mkt, err := s.markets.Create(market.CreateMarketRequest{
		Title:       req.Title,
		Description: req.Description,
		Category:    category,
		ExpiresAt:   expiresAt,
		Creator:     caller,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, mkt.ToJSON())
}

// handleListMarkets handles GET /api/markets[?status=&category=]
func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *market.Status
	if raw := q.Get("status"); raw != "" {
		st, err := market.ParseStatus(strings.ToLower(raw))
		if err != nil {
			s.fail(w, err)
			return
		}
		status = &st
	}
	var category *market.Category
	if raw := q.Get("category"); raw != "" {
		c, err := market.ParseCategory(raw)
		if err != nil {
			s.fail(w, err)
			return
		}
		category = &c
	}

	markets := s.markets.List()
	result := make([]market.MarketJSON, 0, len(markets))
	for _, m := range markets {
		if status != nil && m.Status != *status {
			continue
		}
		if category != nil && m.Category != *category {
			continue
		}
		result = append(result, m.ToJSON())
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetMarket handles GET /api/markets/{id}
func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	mkt, err := s.markets.Get(id)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mkt.ToJSON())
}

// handleGetPrices handles GET /api/markets/{id}/prices
func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	view, err := s.engine.Prices(id)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleQuote handles GET /api/markets/{id}/quote?outcome=yes&amount=0.01
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	outcome, err := ParseOutcome(r.URL.Query().Get("outcome"))
	if err != nil {
		s.fail(w, err)
		return
	}
	amount, err := market.ParseEther(r.URL.Query().Get("amount"))
	if err != nil {
		s.fail(w, err)
		return
	}

	quote, err := s.settler.Quote(id, outcome, amount)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

// ResolveMarketRequest is the request to resolve a market
type ResolveMarketRequest struct {
	Outcome   string `json:"outcome"` // "yes", "no" or "undecided"
	Reasoning string `json:"reasoning,omitempty"`
}

// handleResolveMarket handles POST /api/markets/{id}/resolve
func (s *Server) handleResolveMarket(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	var req ResolveMarketRequest
	if err := decode(body, &req); err != nil {
		s.fail(w, err)
		return
	}

	var mkt *market.Market
	if strings.EqualFold(strings.TrimSpace(req.Outcome), "undecided") {
		mkt, err = s.coord.ResolveUndecided(r.Context(), id, req.Reasoning, caller)
	} else {
		var outcome bool
		if outcome, err = ParseOutcome(req.Outcome); err != nil {
			s.fail(w, err)
			return
		}
		mkt, err = s.coord.Resolve(r.Context(), id, outcome, req.Reasoning, caller)
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mkt.ToJSON())
}

// handleCancelMarket handles POST /api/markets/{id}/cancel
func (s *Server) handleCancelMarket(w http.ResponseWriter, r *http.Request, caller common.Address, _ []byte) {
	id, err := marketID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	mkt, err := s.coord.Cancel(r.Context(), id, caller)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, mkt.ToJSON())
}

// handlePendingResolutions handles GET /api/resolution/pending
func (s *Server) handlePendingResolutions(w http.ResponseWriter, r *http.Request) {
	pending := s.coord.Pending()
	result := make([]market.MarketJSON, 0, len(pending))
	for _, m := range pending {
		result = append(result, m.ToJSON())
	}
	writeJSON(w, http.StatusOK, result)
}

// handleResolutionHistory handles GET /api/resolution/history?limit=
func (s *Server) handleResolutionHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.History(limitParam(r, 50, 500)))
}
