package vault

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/market"
)

// Vault tracks free balances, per-market escrow and fee revenue. Every
// movement conserves value: free + escrow + fees only changes through
// Deposit.
type Vault struct {
	mu             sync.RWMutex
	balances       map[common.Address]*big.Int // account -> free balance
	escrow         map[uint64]*big.Int         // market id -> escrowed funds
	feeBalance     *big.Int
	feesCollected  *big.Int
	totalWithdrawn *big.Int
	totalDeposited *big.Int
	version        uint64
}

// New creates an empty vault
func New() *Vault {
	return &Vault{
		balances:       make(map[common.Address]*big.Int),
		escrow:         make(map[uint64]*big.Int),
		feeBalance:     new(big.Int),
		feesCollected:  new(big.Int),
		totalWithdrawn: new(big.Int),
		totalDeposited: new(big.Int),
	}
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return market.Errorf(market.KindInvalidInput, "amount must be greater than 0")
	}
	return nil
}

// credit adds amount to account (must hold lock)
func (v *Vault) credit(account common.Address, amount *big.Int) {
	bal, ok := v.balances[account]
	if !ok {
		bal = new(big.Int)
		v.balances[account] = bal
	}
	bal.Add(bal, amount)
}

// escrowOf returns the escrow bucket of a market (must hold lock)
func (v *Vault) escrowOf(marketID uint64) *big.Int {
	e, ok := v.escrow[marketID]
	if !ok {
		e = new(big.Int)
		v.escrow[marketID] = e
	}
	return e
}

// Deposit adds funds to an account's free balance
func (v *Vault) Deposit(account common.Address, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return market.Errorf(market.KindInvalidInput, "account is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.credit(account, amount)
	v.totalDeposited.Add(v.totalDeposited, amount)
	v.version++
	return nil
}

// Balance returns an account's free balance
func (v *Vault) Balance(account common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if bal, ok := v.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Escrow moves amount from the account's free balance into the market's escrow
func (v *Vault) Escrow(marketID uint64, from common.Address, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	bal, ok := v.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		have := new(big.Int)
		if ok {
			have.Set(bal)
		}
		return market.Errorf(market.KindInsufficientBalance,
			"balance %s is below %s", market.FormatEther(have), market.FormatEther(amount))
	}

	bal.Sub(bal, amount)
	e := v.escrowOf(marketID)
	e.Add(e, amount)
	v.version++
	return nil
}

// Escrowed returns the funds held for a market
func (v *Vault) Escrowed(marketID uint64) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if e, ok := v.escrow[marketID]; ok {
		return new(big.Int).Set(e)
	}
	return new(big.Int)
}

// Payout moves amount from the market's escrow to the recipient's free balance
func (v *Vault) Payout(marketID uint64, to common.Address, amount *big.Int) error {
	return v.Settle(marketID, to, amount, new(big.Int))
}

// CollectFee moves amount from the market's escrow to fee revenue
func (v *Vault) CollectFee(marketID uint64, amount *big.Int) error {
	return v.Settle(marketID, common.Address{}, new(big.Int), amount)
}

// Settle pays net to the recipient and fee to revenue out of the market's
// escrow. Either both movements happen or neither does.
func (v *Vault) Settle(marketID uint64, to common.Address, net, fee *big.Int) error {
	if net == nil || fee == nil || net.Sign() < 0 || fee.Sign() < 0 {
		return market.Errorf(market.KindInvalidInput, "settlement amounts must not be negative")
	}
	if net.Sign() > 0 && to == (common.Address{}) {
		return market.Errorf(market.KindInvalidInput, "recipient is required")
	}

	total := new(big.Int).Add(net, fee)

	v.mu.Lock()
	defer v.mu.Unlock()

	e := v.escrowOf(marketID)
	if e.Cmp(total) < 0 {
		return market.Errorf(market.KindTransferFailed,
			"market %d escrow %s cannot cover %s", marketID, market.FormatEther(e), market.FormatEther(total))
	}

	e.Sub(e, total)
	if net.Sign() > 0 {
		v.credit(to, net)
	}
	if fee.Sign() > 0 {
		v.feeBalance.Add(v.feeBalance, fee)
		v.feesCollected.Add(v.feesCollected, fee)
	}
	v.version++
	return nil
}

// WithdrawFees moves fee revenue into the free balance of to. Owner only.
func (v *Vault) WithdrawFees(roles *market.Roles, caller, to common.Address, amount *big.Int) error {
	if err := roles.RequireOwner(caller); err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		to = caller
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.feeBalance.Cmp(amount) < 0 {
		return market.Errorf(market.KindInsufficientBalance,
			"fee balance %s is below %s", market.FormatEther(v.feeBalance), market.FormatEther(amount))
	}
	v.feeBalance.Sub(v.feeBalance, amount)
	v.totalWithdrawn.Add(v.totalWithdrawn, amount)
	v.credit(to, amount)
	v.version++
	return nil
}

// FeeBalance returns the fee revenue not yet withdrawn
func (v *Vault) FeeBalance() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.feeBalance)
}

// TotalEscrowed returns the funds held across all markets
func (v *Vault) TotalEscrowed() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	total := new(big.Int)
	for _, e := range v.escrow {
		total.Add(total, e)
	}
	return total
}

// GetVersion returns the current version
func (v *Vault) GetVersion() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Snapshot is a JSON-serializable view of the vault. Amounts are ether strings.
type Snapshot struct {
	Balances       map[string]string `json:"balances"`
	Escrow         map[uint64]string `json:"escrow"`
	FeeBalance     string            `json:"fee_balance"`
	FeesCollected  string            `json:"fees_collected"`
	TotalWithdrawn string            `json:"total_withdrawn"`
	TotalDeposited string            `json:"total_deposited"`
	Version        uint64            `json:"version"`
}

func (v *Vault) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	balances := make(map[string]string, len(v.balances))
	for k, b := range v.balances {
		balances[k.Hex()] = market.FormatEther(b)
	}
	escrow := make(map[uint64]string, len(v.escrow))
	for id, e := range v.escrow {
		escrow[id] = market.FormatEther(e)
	}

	return Snapshot{
		Balances:       balances,
		Escrow:         escrow,
		FeeBalance:     market.FormatEther(v.feeBalance),
		FeesCollected:  market.FormatEther(v.feesCollected),
		TotalWithdrawn: market.FormatEther(v.totalWithdrawn),
		TotalDeposited: market.FormatEther(v.totalDeposited),
		Version:        v.version,
	}
}
