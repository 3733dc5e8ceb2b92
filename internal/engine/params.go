package engine

import (
	"fmt"
	"strings"

	"stakecardgame/apps/chain/internal/cards"
	"stakecardgame/apps/chain/internal/state"
)

// TiePolicy is copied onto every new game; a game keeps the policy it was
// created with.
type TiePolicy = state.TiePolicy

const (
	TieSplit  = state.TieSplit
	TieRefund = state.TieRefund
)

func ParseTiePolicy(raw string) (TiePolicy, error) {
	switch p := TiePolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case TieSplit, TieRefund:
		return p, nil
	default:
		return "", ErrInvalidParams.Wrapf("unknown tie policy %q", raw)
	}
}

const (
	DefaultMinStake    uint64 = 1_000_000
	DefaultTotalRounds uint8  = 5
)

// Params are chain-wide consensus parameters. They are fixed at genesis and
// persisted with the application state.
type Params struct {
	MinStake    uint64    `json:"minStake"`
	TotalRounds uint8     `json:"totalRounds"`
	TiePolicy   TiePolicy `json:"tiePolicy"`
}

func DefaultParams() Params {
	return Params{
		MinStake:    DefaultMinStake,
		TotalRounds: DefaultTotalRounds,
		TiePolicy:   TieSplit,
	}
}

func (p Params) Validate() error {
	if p.MinStake == 0 {
		return ErrInvalidParams.Wrap("minStake must be > 0")
	}
	if err := cards.CheckHandSize(int(p.TotalRounds)); err != nil {
		return ErrInvalidParams.Wrap(err.Error())
	}
	if _, err := ParseTiePolicy(string(p.TiePolicy)); err != nil {
		return err
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("minStake=%d totalRounds=%d tiePolicy=%s", p.MinStake, p.TotalRounds, p.TiePolicy)
}
