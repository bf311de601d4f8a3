package engine

import (
	"math/big"

	"darkbet-backend/internal/market"
)

// Price returns the constant-sum AMM price of one side in wei:
// k * sidePool / totalPool, or k/2 while the market is empty.
// Price(yes) + Price(no) == k exactly.
func Price(k, yesPool, noPool *big.Int, outcome bool) *big.Rat {
	total := new(big.Int).Add(yesPool, noPool)
	if total.Sign() == 0 {
		return new(big.Rat).SetFrac(k, big.NewInt(2))
	}
	side := noPool
	if outcome {
		side = yesPool
	}
	return new(big.Rat).SetFrac(new(big.Int).Mul(k, side), total)
}

// Prices returns the YES and NO prices
func Prices(k, yesPool, noPool *big.Int) (yes, no *big.Rat) {
	return Price(k, yesPool, noPool, true), Price(k, yesPool, noPool, false)
}

// TradePrice is the price a new bet on one side pays. A side with an empty
// pool trades at the opening price k/2.
func TradePrice(k, yesPool, noPool *big.Int, outcome bool) *big.Rat {
	p := Price(k, yesPool, noPool, outcome)
	if p.Sign() == 0 {
		p = new(big.Rat).SetFrac(k, big.NewInt(2))
	}
	return p
}

// Shares returns the shares issued for amount on one side, priced against
// the pools before the amount is added: floor(amount * 1e18 / price).
func Shares(k, amount, yesPool, noPool *big.Int, outcome bool) *big.Int {
	p := TradePrice(k, yesPool, noPool, outcome)
	n := new(big.Int).Mul(amount, market.ShareScale)
	n.Mul(n, p.Denom())
	return n.Quo(n, p.Num())
}

// FormatPrice renders a wei price as an ether decimal with 18 places.
func FormatPrice(p *big.Rat) string {
	wei := new(big.Int).Quo(p.Num(), p.Denom())
	return market.FormatEther(wei)
}
