package state

import (
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"stakecardgame/apps/chain/internal/vault"
)

var (
	ErrInsufficientFunds = errorsmod.Register(codespace, 3, "insufficient funds")
	ErrBalanceOverflow   = errorsmod.Register(codespace, 4, "balance overflow")
	ErrInvalidTransfer   = errorsmod.Register(codespace, 5, "invalid transfer")
)

// Bank is the token primitive: plain account balances plus the running total
// ever minted. Value escrowed by vaults has left the bank and is accounted for
// by the vaults themselves.
//
// Bank is safe for concurrent use; every method is atomic.
type Bank struct {
	mu       sync.Mutex
	accounts map[string]uint64
	minted   sdkmath.Int
}

var _ vault.Bank = (*Bank)(nil)

func NewBank() *Bank {
	return &Bank{accounts: map[string]uint64{}, minted: sdkmath.ZeroInt()}
}

func (b *Bank) Balance(addr string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[addr]
}

// Minted is the total supply ever created by Mint.
func (b *Bank) Minted() sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.minted
}

// Mint creates amount new tokens in addr.
func (b *Bank) Mint(addr string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if addr == "" || amount == 0 {
		return ErrInvalidTransfer.Wrap("missing to/amount")
	}
	if err := b.credit(addr, amount); err != nil {
		return err
	}
	b.minted = b.minted.Add(sdkmath.NewIntFromUint64(amount))
	return nil
}

// Send moves amount between two accounts; the debit is rolled back if the
// credit would overflow.
func (b *Bank) Send(from, to string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if from == "" || to == "" || amount == 0 {
		return ErrInvalidTransfer.Wrap("missing from/to/amount")
	}
	if err := b.debit(from, amount); err != nil {
		return err
	}
	if err := b.credit(to, amount); err != nil {
		b.accounts[from] += amount
		return err
	}
	return nil
}

// TransferIn debits from for a vault deposit.
func (b *Bank) TransferIn(from string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if from == "" || amount == 0 {
		return ErrInvalidTransfer.Wrap("missing from/amount")
	}
	return b.debit(from, amount)
}

// TransferOut credits every payout or none of them.
func (b *Bank) TransferOut(payouts []vault.Payout) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[string]uint64, len(payouts))
	for _, p := range payouts {
		if p.To == "" || p.Amount == 0 {
			return ErrInvalidTransfer.Wrap("missing to/amount")
		}
		bal, ok := staged[p.To]
		if !ok {
			bal = b.accounts[p.To]
		}
		if bal > ^uint64(0)-p.Amount {
			return ErrBalanceOverflow.Wrapf("%s: have=%d add=%d", p.To, bal, p.Amount)
		}
		staged[p.To] = bal + p.Amount
	}
	for addr, bal := range staged {
		b.accounts[addr] = bal
	}
	return nil
}

func (b *Bank) credit(addr string, amount uint64) error {
	bal := b.accounts[addr]
	if bal > ^uint64(0)-amount {
		return ErrBalanceOverflow.Wrapf("%s: have=%d add=%d", addr, bal, amount)
	}
	b.accounts[addr] = bal + amount
	return nil
}

func (b *Bank) debit(addr string, amount uint64) error {
	bal := b.accounts[addr]
	if bal < amount {
		return ErrInsufficientFunds.Wrapf("%s: have=%d need=%d", addr, bal, amount)
	}
	b.accounts[addr] = bal - amount
	return nil
}

// Total sums every account balance without overflow.
func (b *Bank) Total() sdkmath.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sum := sdkmath.ZeroInt()
	for _, v := range b.accounts {
		sum = sum.Add(sdkmath.NewIntFromUint64(v))
	}
	return sum
}

// Accounts returns a sorted copy of all non-zero balances.
func (b *Bank) Accounts() []AccountBalance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]AccountBalance, 0, len(b.accounts))
	for addr, bal := range b.accounts {
		if bal == 0 {
			continue
		}
		out = append(out, AccountBalance{Addr: addr, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Restore replaces the bank contents; used when loading a snapshot.
func (b *Bank) Restore(accounts []AccountBalance, minted sdkmath.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts = make(map[string]uint64, len(accounts))
	for _, a := range accounts {
		b.accounts[a.Addr] = a.Balance
	}
	if minted.IsNil() {
		minted = sdkmath.ZeroInt()
	}
	b.minted = minted
}

type AccountBalance struct {
	Addr    string `json:"addr"`
	Balance uint64 `json:"balance"`
}
