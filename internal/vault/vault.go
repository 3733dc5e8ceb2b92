// Package vault holds the escrow balance bound to a single game.
//
// A Vault never talks to accounts directly: every movement goes through the
// Bank (the token primitive) and the balance is only adjusted after the bank
// accepted the transfer.
package vault

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
)

const codespace = "vault"

var (
	ErrOverflow          = errorsmod.Register(codespace, 2, "vault balance overflow")
	ErrInsufficientVault = errorsmod.Register(codespace, 3, "vault balance too low")
	ErrZeroAmount        = errorsmod.Register(codespace, 4, "amount must be > 0")
)

// Payout is one outgoing leg of a release.
type Payout struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Bank is the token-transfer primitive consumed by the vault. Both methods
// must be all-or-nothing.
type Bank interface {
	TransferIn(from string, amount uint64) error
	TransferOut(payouts []Payout) error
}

type Vault struct {
	GameID  uint64 `json:"gameId"`
	Balance uint64 `json:"balance"`
}

func New(gameID uint64) *Vault {
	return &Vault{GameID: gameID}
}

func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// Deposit moves amount from the depositor into the vault.
func (v *Vault) Deposit(bank Bank, from string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if v.Balance > ^uint64(0)-amount {
		return ErrOverflow.Wrapf("game %d: have=%d add=%d", v.GameID, v.Balance, amount)
	}
	if err := bank.TransferIn(from, amount); err != nil {
		return err
	}
	v.Balance += amount
	return nil
}

// Release pays out every leg atomically and debits the vault by their sum.
func (v *Vault) Release(bank Bank, payouts []Payout) error {
	total, err := Sum(payouts)
	if err != nil {
		return err
	}
	if total == 0 {
		return ErrZeroAmount
	}
	if total > v.Balance {
		return ErrInsufficientVault.Wrapf("game %d: have=%d need=%d", v.GameID, v.Balance, total)
	}
	if err := bank.TransferOut(payouts); err != nil {
		return err
	}
	v.Balance -= total
	return nil
}

func Sum(payouts []Payout) (uint64, error) {
	var total uint64
	for _, p := range payouts {
		if p.To == "" {
			return 0, fmt.Errorf("payout missing recipient")
		}
		if total > ^uint64(0)-p.Amount {
			return 0, ErrOverflow.Wrap("payout sum")
		}
		total += p.Amount
	}
	return total, nil
}
