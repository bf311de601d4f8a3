package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/events"
	"darkbet-backend/internal/market"
)

// Treasury releases escrowed funds
type Treasury interface {
	Settle(marketID uint64, to common.Address, net, fee *big.Int) error
}

// Settler pays winnings and refunds out of market escrow
type Settler struct {
	markets *market.Manager
	book    *engine.Book
	vault   Treasury
	events  events.Publisher
	log     *zap.Logger
}

// New creates a settler
func New(markets *market.Manager, book *engine.Book, vault Treasury, pub events.Publisher, log *zap.Logger) *Settler {
	if pub == nil {
		pub = events.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Settler{
		markets: markets,
		book:    book,
		vault:   vault,
		events:  pub,
		log:     log,
	}
}

// Payout splits a winning position: gross = shares * totalPool /
// winningShares, fee = gross * feeBps / 10000, net = gross - fee. All
// divisions round down, so the sum over all winners never exceeds the pool.
func Payout(shares, totalPool, winningShares *big.Int, feeBps int64) (gross, fee, net *big.Int) {
	gross = new(big.Int).Mul(shares, totalPool)
	gross.Quo(gross, winningShares)
	fee = market.ApplyBps(gross, feeBps)
	net = new(big.Int).Sub(gross, fee)
	return gross, fee, net
}

// Claim describes a paid claim or refund
type Claim struct {
	MarketID uint64
	User     common.Address
	Gross    *big.Int
	Fee      *big.Int
	Net      *big.Int
	Reason   string
}

// ClaimJSON is the JSON representation of a claim
type ClaimJSON struct {
	MarketID uint64 `json:"market_id"`
	User     string `json:"user"`
	Gross    string `json:"gross"`
	Fee      string `json:"fee"`
	Net      string `json:"net"`
	Reason   string `json:"reason,omitempty"`
}

// ToJSON converts a Claim to its JSON representation
func (c Claim) ToJSON() ClaimJSON {
	return ClaimJSON{
		MarketID: c.MarketID,
		User:     c.User.Hex(),
		Gross:    market.FormatEther(c.Gross),
		Fee:      market.FormatEther(c.Fee),
		Net:      market.FormatEther(c.Net),
		Reason:   c.Reason,
	}
}

// ClaimWinnings pays a winning bet. The transfer and the claimed flag
// change together; a failed transfer leaves the bet claimable.
func (s *Settler) ClaimWinnings(ctx context.Context, marketID uint64, claimant common.Address) (Claim, error) {
	if err := ctx.Err(); err != nil {
		return Claim{}, err
	}

	feeBps := s.markets.Params().FeeBps
	var claim Claim
	snap, err := s.markets.Mutate(marketID, func(m *market.Market) error {
		if m.Status != market.StatusResolved || m.Outcome == nil {
			return market.Errorf(market.KindMarketNotResolved, "market %d is %s", m.ID, m.Status)
		}
		pos, ok := s.book.Get(marketID, claimant)
		if !ok || pos.Bet == nil {
			return market.Errorf(market.KindNoBetFound, "no revealed bet for %s in market %d", claimant.Hex(), m.ID)
		}
		if pos.Bet.Outcome != *m.Outcome {
			return market.Errorf(market.KindBetDidNotWin, "bet on %s lost", side(pos.Bet.Outcome))
		}
		if pos.Bet.Claimed {
			return market.Errorf(market.KindAlreadyClaimed, "winnings already claimed")
		}
		winning := m.Shares(*m.Outcome)
		if winning.Sign() == 0 {
			return market.Errorf(market.KindNoWinningShares, "market %d has no winning shares", m.ID)
		}

		gross, fee, net := Payout(pos.Bet.Shares, m.TotalPool, winning, feeBps)
		if err := s.vault.Settle(marketID, claimant, net, fee); err != nil {
			return market.Wrap(market.KindTransferFailed, err, "payout failed")
		}

		pos.Bet.Claimed = true
		s.book.Put(pos)
		claim = Claim{MarketID: marketID, User: claimant, Gross: gross, Fee: fee, Net: net}
		m.NextEventSeq()
		return nil
	})
	if err != nil {
		s.log.Debug("claim rejected",
			zap.Uint64("market_id", marketID),
			zap.String("user", claimant.Hex()),
			zap.Error(err))
		return Claim{}, err
	}

	s.log.Info("winnings claimed",
		zap.Uint64("market_id", marketID),
		zap.String("user", claimant.Hex()),
		zap.String("net", market.FormatEther(claim.Net)),
		zap.String("fee", market.FormatEther(claim.Fee)))
	ev := events.New(events.WinningsClaimed, marketID, claimant.Hex(), s.markets.Now()).
		With("fee", market.FormatEther(claim.Fee))
	ev.Amount = market.FormatEther(claim.Net)
	ev.Seq = snap.EventSeq
	s.events.Publish(ev)

	return claim, nil
}

// ClaimRefund returns a stake that can no longer take part in settlement:
// any stake of a cancelled or undecided market, and a commitment that was
// never revealed once the reveal deadline has passed.
func (s *Settler) ClaimRefund(ctx context.Context, marketID uint64, claimant common.Address) (Claim, error) {
	if err := ctx.Err(); err != nil {
		return Claim{}, err
	}

	params := s.markets.Params()
	var claim Claim
	snap, err := s.markets.Mutate(marketID, func(m *market.Market) error {
		pos, ok := s.book.Get(marketID, claimant)
		if !ok {
			return market.Errorf(market.KindNoCommitmentFound, "no commitment for %s in market %d", claimant.Hex(), m.ID)
		}
		if pos.Commitment.Refunded {
			return market.Errorf(market.KindRefundNotAvailable, "already refunded")
		}

		var feeBps int64
		var reason string
		switch m.Status {
		case market.StatusCancelled, market.StatusResolvedUndecided:
			feeBps = params.CancelRefundFeeBps
			reason = m.Status.String()
		default:
			if pos.Commitment.Revealed {
				return market.Errorf(market.KindRefundNotAvailable, "already revealed")
			}
			deadline := params.RevealDeadline(m)
			if !s.markets.Now().After(deadline) {
				return market.Errorf(market.KindRefundNotAvailable,
					"market %s and reveal window open until %s", m.Status, deadline.UTC())
			}
			feeBps = params.TimeoutRefundFeeBps
			reason = "reveal_timeout"
		}

		amount := pos.Commitment.Amount
		fee := market.ApplyBps(amount, feeBps)
		net := new(big.Int).Sub(amount, fee)
		if err := s.vault.Settle(marketID, claimant, net, fee); err != nil {
			return market.Wrap(market.KindTransferFailed, err, "refund failed")
		}

		pos.Commitment.Refunded = true
		s.book.Put(pos)
		claim = Claim{MarketID: marketID, User: claimant, Gross: new(big.Int).Set(amount), Fee: fee, Net: net, Reason: reason}
		m.NextEventSeq()
		return nil
	})
	if err != nil {
		s.log.Debug("refund rejected",
			zap.Uint64("market_id", marketID),
			zap.String("user", claimant.Hex()),
			zap.Error(err))
		return Claim{}, err
	}

	s.log.Info("refund claimed",
		zap.Uint64("market_id", marketID),
		zap.String("user", claimant.Hex()),
		zap.String("net", market.FormatEther(claim.Net)),
		zap.String("reason", claim.Reason))
	ev := events.New(events.RefundClaimed, marketID, claimant.Hex(), s.markets.Now()).
		With("reason", claim.Reason).
		With("fee", market.FormatEther(claim.Fee))
	ev.Amount = market.FormatEther(claim.Net)
	ev.Seq = snap.EventSeq
	s.events.Publish(ev)

	return claim, nil
}

// Quote previews a bet of amount on outcome against the current pools,
// using the same pricing and fee as settlement.
type Quote struct {
	MarketID   uint64 `json:"market_id"`
	Outcome    bool   `json:"outcome"`
	Amount     string `json:"amount"`
	Price      string `json:"price"`
	Shares     string `json:"shares"`
	GrossIfWin string `json:"gross_if_win"`
	FeeIfWin   string `json:"fee_if_win"`
	NetIfWin   string `json:"net_if_win"`
	FeeBps     int64  `json:"fee_bps"`
}

// Quote computes a payout preview
func (s *Settler) Quote(marketID uint64, outcome bool, amount *big.Int) (Quote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Quote{}, market.Errorf(market.KindInvalidInput, "amount must be greater than 0")
	}
	m, err := s.markets.Get(marketID)
	if err != nil {
		return Quote{}, err
	}
	params := s.markets.Params()
	k := params.PriceConstant

	price := engine.TradePrice(k, m.YesPool, m.NoPool, outcome)
	shares := engine.Shares(k, amount, m.YesPool, m.NoPool, outcome)

	total := new(big.Int).Add(m.TotalPool, amount)
	winning := new(big.Int).Add(m.Shares(outcome), shares)
	gross, fee, net := Payout(shares, total, winning, params.FeeBps)

	return Quote{
		MarketID:   m.ID,
		Outcome:    outcome,
		Amount:     market.FormatEther(amount),
		Price:      engine.FormatPrice(price),
		Shares:     market.FormatEther(shares),
		GrossIfWin: market.FormatEther(gross),
		FeeIfWin:   market.FormatEther(fee),
		NetIfWin:   market.FormatEther(net),
		FeeBps:     params.FeeBps,
	}, nil
}

func side(outcome bool) string {
	if outcome {
		return "YES"
	}
	return "NO"
}
