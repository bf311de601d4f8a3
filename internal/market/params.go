package market

import (
	"math/big"
	"time"
)

// BpsDenominator is the basis-point scale used for fee rates.
const BpsDenominator = 10000

// Params are the protocol parameters shared by all components.
type Params struct {
	MinWindow           time.Duration // lower bound of expiresAt - now at creation
	MaxWindow           time.Duration // upper bound of expiresAt - now at creation
	MinBet              *big.Int      // smallest accepted commitment, wei
	PriceConstant       *big.Int      // K, price(YES) + price(NO), wei
	FeeBps              int64         // platform fee on winnings
	RevealTimeout       time.Duration // reveal window after expiresAt
	CancelRefundFeeBps  int64         // fee on refunds of cancelled or undecided markets
	TimeoutRefundFeeBps int64         // fee on refunds of commitments never revealed
}

// DefaultParams returns the canonical protocol parameters.
func DefaultParams() Params {
	return Params{
		MinWindow:     15 * time.Minute,
		MaxWindow:     365 * 24 * time.Hour,
		MinBet:        MustParseEther("0.01"),
		PriceConstant: MustParseEther("0.01"),
		FeeBps:        1000,
		RevealTimeout: time.Hour,
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	switch {
	case p.MinWindow <= 0 || p.MaxWindow < p.MinWindow:
		return Errorf(KindInvalidInput, "market window bounds %s..%s are invalid", p.MinWindow, p.MaxWindow)
	case p.MinBet == nil || p.MinBet.Sign() <= 0:
		return Errorf(KindInvalidInput, "minimum bet must be positive")
	case p.PriceConstant == nil || p.PriceConstant.Sign() <= 0:
		return Errorf(KindInvalidInput, "price constant must be positive")
	case p.RevealTimeout < 0:
		return Errorf(KindInvalidInput, "reveal timeout must not be negative")
	}
	for _, bps := range []int64{p.FeeBps, p.CancelRefundFeeBps, p.TimeoutRefundFeeBps} {
		if bps < 0 || bps > BpsDenominator {
			return Errorf(KindInvalidInput, "fee rate %d bps out of range", bps)
		}
	}
	return nil
}

// RevealDeadline is the last instant at which reveals are accepted.
func (p Params) RevealDeadline(m *Market) time.Time {
	return m.ExpiresAt.Add(p.RevealTimeout)
}

// ApplyBps returns floor(amount * bps / 10000).
func ApplyBps(amount *big.Int, bps int64) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(bps))
	return fee.Quo(fee, big.NewInt(BpsDenominator))
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }
