package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/events"
	"darkbet-backend/internal/market"
	"darkbet-backend/internal/metrics"
	"darkbet-backend/internal/resolution"
	"darkbet-backend/internal/settlement"
	"darkbet-backend/internal/vault"
)

// Deps are the components served by the API
type Deps struct {
	Markets *market.Manager
	Engine  *engine.Engine
	Coord   *resolution.Coordinator
	Settler *settlement.Settler
	Vault   *vault.Vault
	History *events.History
	Hub     *Hub
	Mirror  Mirror           // optional
	Metrics *metrics.Metrics // optional
	Log     *zap.Logger
	MaxSkew time.Duration
}

// Server holds all dependencies for the HTTP server
type Server struct {
	markets *market.Manager
	engine  *engine.Engine
	coord   *resolution.Coordinator
	settler *settlement.Settler
	vault   *vault.Vault
	history *events.History
	wsHub   *Hub
	mirror  Mirror
	metrics *metrics.Metrics
	log     *zap.Logger
	maxSkew time.Duration
}

// NewServer creates a new API server
func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	history := d.History
	if history == nil {
		history = events.NewHistory(0)
	}
	hub := d.Hub
	if hub == nil {
		hub = NewHub(log)
	}
	return &Server{
		markets: d.Markets,
		engine:  d.Engine,
		coord:   d.Coord,
		settler: d.Settler,
		vault:   d.Vault,
		history: history,
		wsHub:   hub,
		mirror:  d.Mirror,
		metrics: d.Metrics,
		log:     log,
		maxSkew: d.MaxSkew,
	}
}

// Hub returns the WebSocket hub so it can be subscribed to the event bus
func (s *Server) Hub() *Hub { return s.wsHub }

// RegisterRoutes registers all HTTP routes
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Markets
	mux.HandleFunc("POST /api/markets", s.signed(s.handleCreateMarket))
	mux.HandleFunc("GET /api/markets", s.handleListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", s.handleGetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", s.handleGetPrices)
	mux.HandleFunc("GET /api/markets/{id}/quote", s.handleQuote)
	mux.HandleFunc("POST /api/markets/{id}/resolve", s.signed(s.handleResolveMarket))
	mux.HandleFunc("POST /api/markets/{id}/cancel", s.signed(s.handleCancelMarket))

	// Commit-reveal
	mux.HandleFunc("POST /api/markets/{id}/commit", s.signed(s.handleCommitBet))
	mux.HandleFunc("POST /api/markets/{id}/reveal", s.signed(s.handleRevealBet))
	mux.HandleFunc("GET /api/markets/{id}/positions", s.handleListPositions)
	mux.HandleFunc("GET /api/markets/{id}/positions/{address}", s.handleGetPosition)

	// Settlement
	mux.HandleFunc("POST /api/markets/{id}/claim", s.signed(s.handleClaimWinnings))
	mux.HandleFunc("POST /api/markets/{id}/refund", s.signed(s.handleClaimRefund))

	// Resolution views
	mux.HandleFunc("GET /api/resolution/pending", s.handlePendingResolutions)
	mux.HandleFunc("GET /api/resolution/history", s.handleResolutionHistory)

	// Vault
	mux.HandleFunc("POST /api/deposit", s.signed(s.handleDeposit))
	mux.HandleFunc("GET /api/balance/{address}", s.handleGetBalance)
	mux.HandleFunc("GET /api/vault", s.handleGetVault)

	// Admin
	mux.HandleFunc("POST /api/admin/pause", s.signed(s.handlePause))
	mux.HandleFunc("POST /api/admin/unpause", s.signed(s.handleUnpause))
	mux.HandleFunc("POST /api/admin/resolver", s.signed(s.handleSetResolver))
	mux.HandleFunc("POST /api/admin/withdraw-fees", s.signed(s.handleWithdrawFees))
	mux.HandleFunc("DELETE /api/admin/mirror/{id}", s.signed(s.handlePurgeMirror))

	// Events
	mux.HandleFunc("GET /api/events", s.handleGetEvents)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler returns the routed mux wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.loggingMiddleware(mux))
}

// handleHealth is the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"paused":  s.markets.Paused(),
		"markets": s.markets.Count(),
		"time":    s.markets.Now().UTC().Format(time.RFC3339),
	})
}
