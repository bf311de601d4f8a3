package resolution

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"darkbet-backend/internal/market"
)

// ErrUndecidable is returned by a Resolver that cannot determine an outcome
var ErrUndecidable = errors.New("outcome undecidable")

// Decision is a resolver's verdict. A nil Outcome means undecidable.
type Decision struct {
	Outcome   *bool
	Reasoning string
}

// Resolver supplies outcomes for expired markets
type Resolver interface {
	Resolve(ctx context.Context, m *market.Market) (Decision, error)
}

// Poller handles automatic market status transitions
type Poller struct {
	coord    *Coordinator
	resolver Resolver
	identity common.Address
	interval time.Duration
	delay    time.Duration
	log      *zap.Logger

	// set while another address holds the resolver role
	demoted atomic.Bool
}

// NewPoller creates a poller resolving as identity. delay is how long after
// expiry the resolver is first consulted; reveals arriving in that window
// still count toward the pools.
func NewPoller(coord *Coordinator, resolver Resolver, identity common.Address, interval, delay time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		coord:    coord,
		resolver: resolver,
		identity: identity,
		interval: interval,
		delay:    delay,
		log:      log,
	}
}

// Run is the main loop; it returns when ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("resolution poller started",
		zap.Duration("interval", p.interval),
		zap.Duration("delay", p.delay),
		zap.String("identity", p.identity.Hex()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one pass: expired markets move to Resolving, and markets past
// the resolution delay are handed to the resolver. Safe to run while
// markets are being resolved manually. Markets are left for manual
// resolution while the poller's identity does not hold the resolver role.
func (p *Poller) Tick(ctx context.Context) {
	now := p.coord.markets.Now()
	canResolve := p.holdsResolverRole()

	for _, m := range p.coord.markets.List() {
		if ctx.Err() != nil {
			return
		}
		if m.Status == market.StatusActive && !now.Before(m.ExpiresAt) {
			changed, err := p.coord.MarkResolving(m.ID)
			if err != nil {
				p.log.Warn("failed to mark market resolving", zap.Uint64("market_id", m.ID), zap.Error(err))
				continue
			}
			if changed {
				p.log.Info("market expired, awaiting resolution", zap.Uint64("market_id", m.ID))
				m.Status = market.StatusResolving
			}
		}
		if !canResolve || m.Status != market.StatusResolving || now.Before(m.ExpiresAt.Add(p.delay)) {
			continue
		}
		p.resolveOne(ctx, m)
	}
}

func (p *Poller) holdsResolverRole() bool {
	current := p.coord.markets.Roles().Resolver()
	if current == p.identity {
		if p.demoted.Swap(false) {
			p.log.Info("resolver role restored, resuming automatic resolution",
				zap.String("identity", p.identity.Hex()))
		}
		return true
	}
	if !p.demoted.Swap(true) {
		p.log.Info("resolver role held by another address, automatic resolution paused",
			zap.String("identity", p.identity.Hex()),
			zap.String("resolver", current.Hex()))
	}
	return false
}

func (p *Poller) resolveOne(ctx context.Context, m *market.Market) {
	decision, err := p.resolver.Resolve(ctx, m)
	switch {
	case errors.Is(err, ErrUndecidable):
		decision = Decision{Reasoning: err.Error()}
	case err != nil:
		p.log.Warn("resolver failed, will retry",
			zap.Uint64("market_id", m.ID),
			zap.Error(err))
		return
	}

	_, err = p.coord.resolve(ctx, m.ID, decision.Outcome, decision.Reasoning, p.identity, true)
	switch {
	case err == nil:
	case errors.Is(err, market.ErrAlreadyResolved), errors.Is(err, market.ErrMarketNotActive):
		p.log.Debug("market settled concurrently", zap.Uint64("market_id", m.ID))
	default:
		p.log.Error("automatic resolution failed",
			zap.Uint64("market_id", m.ID),
			zap.Error(err))
	}
}
