package resolution

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/events"
	"darkbet-backend/internal/market"
)

// Record is one entry of the resolution history
type Record struct {
	MarketID   uint64        `json:"market_id"`
	Status     market.Status `json:"status"`
	Outcome    *bool         `json:"outcome,omitempty"`
	Reasoning  string        `json:"reasoning,omitempty"`
	By         string        `json:"by"`
	Automatic  bool          `json:"automatic"`
	ResolvedAt time.Time     `json:"resolved_at"`
}

// Coordinator moves markets into their terminal states
type Coordinator struct {
	markets *market.Manager
	book    *engine.Book
	events  events.Publisher
	log     *zap.Logger

	mu      sync.RWMutex
	history []Record
	maxLen  int
}

// NewCoordinator creates a resolution coordinator
func NewCoordinator(markets *market.Manager, book *engine.Book, pub events.Publisher, log *zap.Logger) *Coordinator {
	if pub == nil {
		pub = events.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		markets: markets,
		book:    book,
		events:  pub,
		log:     log,
		maxLen:  500,
	}
}

// Resolve settles a market on outcome. Only the resolver identity may call
// it, and only once the market has expired.
func (c *Coordinator) Resolve(ctx context.Context, marketID uint64, outcome bool, reasoning string, caller common.Address) (*market.Market, error) {
	return c.resolve(ctx, marketID, &outcome, reasoning, caller, false)
}

// ResolveUndecided closes a market the resolver could not decide. Claims
// are blocked and every stake becomes refundable.
func (c *Coordinator) ResolveUndecided(ctx context.Context, marketID uint64, reasoning string, caller common.Address) (*market.Market, error) {
	return c.resolve(ctx, marketID, nil, reasoning, caller, false)
}

func (c *Coordinator) resolve(ctx context.Context, marketID uint64, outcome *bool, reasoning string, caller common.Address, auto bool) (*market.Market, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.markets.Roles().RequireResolver(caller); err != nil {
		return nil, err
	}
	reasoning = strings.TrimSpace(reasoning)

	var now time.Time
	m, err := c.markets.Mutate(marketID, func(m *market.Market) error {
		switch m.Status {
		case market.StatusResolved, market.StatusResolvedUndecided:
			return market.Errorf(market.KindAlreadyResolved, "market %d is already %s", m.ID, m.Status)
		case market.StatusCancelled:
			return market.Errorf(market.KindMarketNotActive, "market %d is cancelled", m.ID)
		}
		now = c.markets.Now()
		if now.Before(m.ExpiresAt) {
			return market.Errorf(market.KindNotExpiredYet, "market %d expires at %s", m.ID, m.ExpiresAt.UTC())
		}

		if outcome != nil {
			o := *outcome
			m.Status = market.StatusResolved
			m.Outcome = &o
		} else {
			m.Status = market.StatusResolvedUndecided
			m.Outcome = nil
		}
		m.ResolutionReasoning = reasoning
		m.ResolvedAt = &now
		m.NextEventSeq()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("market resolved",
		zap.Uint64("market_id", m.ID),
		zap.Stringer("status", m.Status),
		zap.Boolp("outcome", m.Outcome),
		zap.Bool("automatic", auto))
	c.record(Record{
		MarketID:   m.ID,
		Status:     m.Status,
		Outcome:    m.Outcome,
		Reasoning:  reasoning,
		By:         caller.Hex(),
		Automatic:  auto,
		ResolvedAt: now,
	})
	ev := events.New(events.MarketResolved, m.ID, caller.Hex(), now).
		With("status", m.Status.String()).
		With("reasoning", reasoning)
	ev.Outcome = m.Outcome
	ev.Amount = market.FormatEther(m.TotalPool)
	ev.Seq = m.EventSeq
	c.events.Publish(ev)

	return m, nil
}

// Cancel lets the creator or the owner withdraw a market nobody else has
// revealed into. Once a second distinct revealer exists cancellation is
// permanently disabled.
func (c *Coordinator) Cancel(ctx context.Context, marketID uint64, caller common.Address) (*market.Market, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	owner := c.markets.Roles().Owner()

	var now time.Time
	m, err := c.markets.Mutate(marketID, func(m *market.Market) error {
		if caller == (common.Address{}) || (caller != m.Creator && caller != owner) {
			return market.Errorf(market.KindUnauthorized, "only the creator or owner may cancel market %d", m.ID)
		}
		switch m.Status {
		case market.StatusResolved, market.StatusResolvedUndecided:
			return market.Errorf(market.KindAlreadyResolved, "market %d is already %s", m.ID, m.Status)
		case market.StatusCancelled:
			return market.Errorf(market.KindMarketNotActive, "market %d is already cancelled", m.ID)
		}
		for _, p := range c.book.Market(m.ID) {
			if p.Bet != nil && p.Bet.User != m.Creator {
				return market.Errorf(market.KindCancellationDisabled,
					"market %d has a revealed bet from %s", m.ID, p.Bet.User.Hex())
			}
		}

		now = c.markets.Now()
		m.Status = market.StatusCancelled
		m.ResolvedAt = &now
		m.NextEventSeq()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("market cancelled",
		zap.Uint64("market_id", m.ID),
		zap.String("by", caller.Hex()))
	c.record(Record{
		MarketID:   m.ID,
		Status:     m.Status,
		By:         caller.Hex(),
		ResolvedAt: now,
	})
	ev := events.New(events.MarketCancelled, m.ID, caller.Hex(), now)
	ev.Seq = m.EventSeq
	c.events.Publish(ev)

	return m, nil
}

// MarkResolving moves an expired Active market to Resolving. It reports
// whether the market changed.
func (c *Coordinator) MarkResolving(marketID uint64) (bool, error) {
	changed := false
	_, err := c.markets.Mutate(marketID, func(m *market.Market) error {
		if m.Status == market.StatusActive && !c.markets.Now().Before(m.ExpiresAt) {
			m.Status = market.StatusResolving
			changed = true
		}
		return nil
	})
	return changed, err
}

// Pending returns markets past expiry that still await resolution
func (c *Coordinator) Pending() []*market.Market {
	now := c.markets.Now()
	var pending []*market.Market
	for _, m := range c.markets.List() {
		if m.Status.Open() && !now.Before(m.ExpiresAt) {
			pending = append(pending, m)
		}
	}
	return pending
}

func (c *Coordinator) record(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, r)
	if len(c.history) > c.maxLen {
		c.history = c.history[len(c.history)-c.maxLen:]
	}
}

// History returns the most recent n resolutions, newest first
func (c *Coordinator) History(n int) []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || n > len(c.history) {
		n = len(c.history)
	}
	result := make([]Record, 0, n)
	for i := len(c.history) - 1; i >= len(c.history)-n; i-- {
		result = append(result, c.history[i])
	}
	return result
}
