package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"darkbet-backend/internal/market"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func ether(s string) *big.Int { return market.MustParseEther(s) }

func total(v *Vault) *big.Int {
	sum := new(big.Int).Add(v.TotalEscrowed(), v.FeeBalance())
	for _, acct := range []common.Address{alice, bob, owner} {
		sum.Add(sum, v.Balance(acct))
	}
	return sum
}

func TestEscrowRequiresBalance(t *testing.T) {
	v := New()
	if err := v.Deposit(alice, ether("0.05")); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := v.Escrow(1, alice, ether("0.06"))
	if !errors.Is(err, market.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if got := v.Balance(alice); got.Cmp(ether("0.05")) != 0 {
		t.Errorf("balance changed on failed escrow: %s", got)
	}

	if err := v.Escrow(1, alice, ether("0.05")); err != nil {
		t.Fatalf("escrow: %v", err)
	}
	if got := v.Escrowed(1); got.Cmp(ether("0.05")) != 0 {
		t.Errorf("escrowed = %s, want 0.05 ether", got)
	}
	if v.Balance(alice).Sign() != 0 {
		t.Errorf("free balance should be empty")
	}
}

func TestSettleIsAllOrNothing(t *testing.T) {
	v := New()
	_ = v.Deposit(alice, ether("1"))
	_ = v.Escrow(7, alice, ether("0.02"))

	err := v.Settle(7, bob, ether("0.02"), ether("0.001"))
	if !errors.Is(err, market.ErrTransferFailed) {
		t.Fatalf("expected TransferFailed, got %v", err)
	}
	if v.Balance(bob).Sign() != 0 || v.FeeBalance().Sign() != 0 {
		t.Fatalf("partial settlement applied")
	}
	if got := v.Escrowed(7); got.Cmp(ether("0.02")) != 0 {
		t.Fatalf("escrow changed: %s", got)
	}

	if err := v.Settle(7, bob, ether("0.018"), ether("0.002")); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := v.Balance(bob); got.Cmp(ether("0.018")) != 0 {
		t.Errorf("bob balance = %s", got)
	}
	if got := v.FeeBalance(); got.Cmp(ether("0.002")) != 0 {
		t.Errorf("fee balance = %s", got)
	}
	if v.Escrowed(7).Sign() != 0 {
		t.Errorf("escrow should be drained")
	}
	if got := total(v); got.Cmp(ether("1")) != 0 {
		t.Errorf("value not conserved: %s", got)
	}
}

func TestPayoutAndCollectFee(t *testing.T) {
	v := New()
	_ = v.Deposit(alice, ether("0.1"))
	_ = v.Escrow(2, alice, ether("0.1"))

	if err := v.Payout(2, bob, ether("0.09")); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if err := v.CollectFee(2, ether("0.01")); err != nil {
		t.Fatalf("collect fee: %v", err)
	}
	if err := v.Payout(2, bob, big.NewInt(1)); !errors.Is(err, market.ErrTransferFailed) {
		t.Errorf("payout beyond escrow: expected TransferFailed, got %v", err)
	}

	snap := v.Snapshot()
	if snap.FeesCollected != "0.01" {
		t.Errorf("fees collected = %s", snap.FeesCollected)
	}
	if snap.Balances[bob.Hex()] != "0.09" {
		t.Errorf("bob balance = %s", snap.Balances[bob.Hex()])
	}
}

func TestWithdrawFeesOwnerOnly(t *testing.T) {
	v := New()
	roles := market.NewRoles(owner, common.Address{})
	_ = v.Deposit(alice, ether("1"))
	_ = v.Escrow(1, alice, ether("1"))
	_ = v.CollectFee(1, ether("0.1"))

	if err := v.WithdrawFees(roles, alice, alice, ether("0.1")); !errors.Is(err, market.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if err := v.WithdrawFees(roles, owner, common.Address{}, ether("0.2")); !errors.Is(err, market.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if err := v.WithdrawFees(roles, owner, common.Address{}, ether("0.1")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := v.Balance(owner); got.Cmp(ether("0.1")) != 0 {
		t.Errorf("owner balance = %s", got)
	}
	if snap := v.Snapshot(); snap.TotalWithdrawn != "0.1" || snap.FeeBalance != "0" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestDepositValidation(t *testing.T) {
	v := New()
	cases := []struct {
		name    string
		account common.Address
		amount  *big.Int
	}{
		{"zero amount", alice, big.NewInt(0)},
		{"negative amount", alice, big.NewInt(-1)},
		{"nil amount", alice, nil},
		{"zero account", common.Address{}, big.NewInt(1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := v.Deposit(tc.account, tc.amount); !errors.Is(err, market.ErrInvalidInput) {
				t.Errorf("expected InvalidInput, got %v", err)
			}
		})
	}
	if v.GetVersion() != 0 {
		t.Errorf("version advanced on rejected deposits")
	}
}
