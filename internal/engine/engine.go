package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"darkbet-backend/internal/events"
	"darkbet-backend/internal/market"
)

// Escrower takes stakes into custody
type Escrower interface {
	Escrow(marketID uint64, from common.Address, amount *big.Int) error
}

// Engine runs the commit-reveal protocol and maintains the AMM pools
type Engine struct {
	markets *market.Manager
	vault   Escrower
	book    *Book
	events  events.Publisher
	log     *zap.Logger
}

// New creates a commit-reveal engine
func New(markets *market.Manager, vault Escrower, pub events.Publisher, log *zap.Logger) *Engine {
	if pub == nil {
		pub = events.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		markets: markets,
		vault:   vault,
		book:    NewBook(),
		events:  pub,
		log:     log,
	}
}

// Book returns the position book shared with settlement
func (e *Engine) Book() *Book { return e.book }

// Commit stores a hidden wager and escrows its stake. Pools do not move
// until the wager is revealed.
func (e *Engine) Commit(ctx context.Context, marketID uint64, hash common.Hash, amount *big.Int, committer common.Address) (Commitment, error) {
	if err := ctx.Err(); err != nil {
		return Commitment{}, err
	}
	switch {
	case committer == (common.Address{}):
		return Commitment{}, market.Errorf(market.KindInvalidInput, "committer is required")
	case hash == (common.Hash{}):
		return Commitment{}, market.Errorf(market.KindInvalidInput, "commit hash is required")
	case amount == nil || amount.Sign() <= 0:
		return Commitment{}, market.Errorf(market.KindInvalidInput, "amount must be greater than 0")
	}
	if e.markets.Paused() {
		return Commitment{}, market.ErrPaused
	}

	params := e.markets.Params()
	var c Commitment
	snap, err := e.markets.Mutate(marketID, func(m *market.Market) error {
		now := e.markets.Now()
		if m.Status != market.StatusActive {
			return market.Errorf(market.KindMarketNotActive, "market %d is %s", m.ID, m.Status)
		}
		if !now.Before(m.ExpiresAt) {
			return market.Errorf(market.KindMarketExpired, "market %d expired at %s", m.ID, m.ExpiresAt.UTC())
		}
		if amount.Cmp(params.MinBet) < 0 {
			return market.Errorf(market.KindBetTooLow, "minimum bet is %s", market.FormatEther(params.MinBet))
		}
		if _, ok := e.book.Get(marketID, committer); ok {
			return market.Errorf(market.KindAlreadyCommitted, "%s already committed to market %d", committer.Hex(), m.ID)
		}
		if err := e.vault.Escrow(marketID, committer, amount); err != nil {
			return err
		}

		c = Commitment{
			MarketID:  marketID,
			User:      committer,
			Hash:      hash,
			Amount:    new(big.Int).Set(amount),
			Timestamp: now,
		}
		e.book.Put(Position{Commitment: c})
		m.NextEventSeq()
		return nil
	})
	if err != nil {
		e.log.Debug("commit rejected",
			zap.Uint64("market_id", marketID),
			zap.String("user", committer.Hex()),
			zap.Error(err))
		return Commitment{}, err
	}

	e.log.Info("bet committed",
		zap.Uint64("market_id", marketID),
		zap.String("user", committer.Hex()),
		zap.String("amount", market.FormatEther(amount)))
	ev := events.New(events.BetCommitted, marketID, committer.Hex(), c.Timestamp).
		With("commit_hash", hash.Hex())
	ev.Amount = market.FormatEther(amount)
	ev.Seq = snap.EventSeq
	e.events.Publish(ev)

	return c, nil
}

// Reveal opens a commitment. On a hash match the bet is priced against the
// pools before this reveal and the pools, shares and participant count are
// updated in one step.
func (e *Engine) Reveal(ctx context.Context, marketID uint64, outcome bool, salt Salt, revealer common.Address) (Bet, error) {
	if err := ctx.Err(); err != nil {
		return Bet{}, err
	}
	if e.markets.Paused() {
		return Bet{}, market.ErrPaused
	}

	params := e.markets.Params()
	var bet Bet
	snap, err := e.markets.Mutate(marketID, func(m *market.Market) error {
		pos, ok := e.book.Get(marketID, revealer)
		if !ok || pos.Commitment.Refunded {
			return market.Errorf(market.KindNoCommitmentFound, "no open commitment for %s in market %d", revealer.Hex(), m.ID)
		}
		if pos.Commitment.Revealed {
			return market.Errorf(market.KindAlreadyRevealed, "commitment already revealed")
		}
		if !m.Status.Open() {
			return market.Errorf(market.KindMarketNotActive, "market %d is %s", m.ID, m.Status)
		}
		now := e.markets.Now()
		if now.After(params.RevealDeadline(m)) {
			return market.Errorf(market.KindRevealWindowClosed, "reveal window closed at %s", params.RevealDeadline(m).UTC())
		}
		if CommitHash(outcome, salt, revealer) != pos.Commitment.Hash {
			return market.Errorf(market.KindInvalidReveal, "reveal does not match commitment")
		}

		amount := pos.Commitment.Amount
		shares := Shares(params.PriceConstant, amount, m.YesPool, m.NoPool, outcome)

		m.TotalPool.Add(m.TotalPool, amount)
		if outcome {
			m.YesPool.Add(m.YesPool, amount)
			m.YesShares.Add(m.YesShares, shares)
		} else {
			m.NoPool.Add(m.NoPool, amount)
			m.NoShares.Add(m.NoShares, shares)
		}
		m.Participants++

		bet = Bet{
			MarketID:   marketID,
			User:       revealer,
			Outcome:    outcome,
			Shares:     shares,
			Amount:     new(big.Int).Set(amount),
			RevealedAt: now,
		}
		pos.Commitment.Revealed = true
		pos.Bet = &bet
		e.book.Put(pos)
		m.NextEventSeq()
		return nil
	})
	if err != nil {
		e.log.Debug("reveal rejected",
			zap.Uint64("market_id", marketID),
			zap.String("user", revealer.Hex()),
			zap.Error(err))
		return Bet{}, err
	}

	e.log.Info("bet revealed",
		zap.Uint64("market_id", marketID),
		zap.String("user", revealer.Hex()),
		zap.Bool("outcome", outcome),
		zap.String("shares", market.FormatEther(bet.Shares)))
	ev := events.New(events.BetRevealed, marketID, revealer.Hex(), bet.RevealedAt).
		With("shares", market.FormatEther(bet.Shares))
	ev.Amount = market.FormatEther(bet.Amount)
	ev.Outcome = &outcome
	ev.Seq = snap.EventSeq
	e.events.Publish(ev)

	return bet, nil
}

// Position returns a user's position in a market
func (e *Engine) Position(marketID uint64, user common.Address) (Position, error) {
	if _, err := e.markets.Get(marketID); err != nil {
		return Position{}, err
	}
	pos, ok := e.book.Get(marketID, user)
	if !ok {
		return Position{}, market.Errorf(market.KindNoCommitmentFound, "no commitment for %s in market %d", user.Hex(), marketID)
	}
	return pos, nil
}

// Positions returns every position in a market
func (e *Engine) Positions(marketID uint64) ([]Position, error) {
	if _, err := e.markets.Get(marketID); err != nil {
		return nil, err
	}
	return e.book.Market(marketID), nil
}

// UserPositions returns every position a user holds
func (e *Engine) UserPositions(user common.Address) []Position {
	return e.book.User(user)
}

// PriceView is the JSON view of a market's AMM prices
type PriceView struct {
	MarketID  uint64 `json:"market_id"`
	YesPrice  string `json:"yes_price"`
	NoPrice   string `json:"no_price"`
	YesPool   string `json:"yes_pool"`
	NoPool    string `json:"no_pool"`
	TotalPool string `json:"total_pool"`
	Constant  string `json:"constant"`
	YesBps    int64  `json:"yes_probability_bps"`
}

// Prices returns the current AMM prices of a market
func (e *Engine) Prices(marketID uint64) (PriceView, error) {
	m, err := e.markets.Get(marketID)
	if err != nil {
		return PriceView{}, err
	}
	k := e.markets.Params().PriceConstant
	yes, no := Prices(k, m.YesPool, m.NoPool)

	// yes / k in basis points
	bps := new(big.Rat).Quo(yes, new(big.Rat).SetInt(k))
	bps.Mul(bps, big.NewRat(market.BpsDenominator, 1))
	yesBps := new(big.Int).Quo(bps.Num(), bps.Denom())

	return PriceView{
		MarketID:  m.ID,
		YesPrice:  FormatPrice(yes),
		NoPrice:   FormatPrice(no),
		YesPool:   market.FormatEther(m.YesPool),
		NoPool:    market.FormatEther(m.NoPool),
		TotalPool: market.FormatEther(m.TotalPool),
		Constant:  market.FormatEther(k),
		YesBps:    yesBps.Int64(),
	}, nil
}
