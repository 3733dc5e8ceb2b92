package engine

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"stakecardgame/apps/chain/internal/cards"
	"stakecardgame/apps/chain/internal/state"
	"stakecardgame/apps/chain/internal/vault"
)

// Codespace of every error raised by the engine.
const Codespace = "scg"

var (
	ErrInvalidRequest       = errorsmod.Register(Codespace, 2, "invalid request")
	ErrGameIDInUse          = errorsmod.Register(Codespace, 3, "game id already in use")
	ErrInsufficientStake    = errorsmod.Register(Codespace, 4, "insufficient stake amount")
	ErrGameFull             = errorsmod.Register(Codespace, 5, "game is already full")
	ErrCannotJoinOwnGame    = errorsmod.Register(Codespace, 6, "cannot join own game")
	ErrGameNotStarted       = errorsmod.Register(Codespace, 7, "game has not started yet")
	ErrGameAlreadyEnded     = errorsmod.Register(Codespace, 8, "game has already ended")
	ErrNotYourTurn          = errorsmod.Register(Codespace, 9, "not your turn")
	ErrInvalidCard          = errorsmod.Register(Codespace, 10, "invalid card played")
	ErrPlayerNotInGame      = errorsmod.Register(Codespace, 11, "player not in game")
	ErrResultAlreadyClaimed = errorsmod.Register(Codespace, 12, "game result already claimed")
	ErrOnlyWinnerCanClaim   = errorsmod.Register(Codespace, 13, "only winner can claim")
	ErrGameNotFound         = errorsmod.Register(Codespace, 14, "game not found")
	ErrUnauthorized         = errorsmod.Register(Codespace, 15, "actor not authorized")
	ErrInvalidParams        = errorsmod.Register(Codespace, 16, "invalid engine params")
	ErrStakeMismatch        = errorsmod.Register(Codespace, 17, "stake does not match game")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindPrecondition
	KindAuthorization
	KindResource
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindPrecondition:
		return "precondition"
	case KindAuthorization:
		return "authorization"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Kind classifies err. Every kind other than KindConfiguration is recoverable
// and guarantees that nothing was mutated.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case isAny(err, ErrInvalidParams, cards.ErrInsufficientDeckSize, cards.ErrEmptySeed, state.ErrInvariant):
		return KindConfiguration
	case isAny(err, ErrUnauthorized, ErrOnlyWinnerCanClaim, ErrResultAlreadyClaimed):
		return KindAuthorization
	case isAny(err, state.ErrInsufficientFunds, state.ErrBalanceOverflow, state.ErrInvalidTransfer,
		vault.ErrOverflow, vault.ErrInsufficientVault, vault.ErrZeroAmount):
		return KindResource
	case isAny(err, ErrInvalidRequest, ErrGameIDInUse, ErrInsufficientStake, ErrGameFull,
		ErrCannotJoinOwnGame, ErrGameNotStarted, ErrGameAlreadyEnded, ErrNotYourTurn,
		ErrInvalidCard, ErrPlayerNotInGame, ErrGameNotFound, ErrStakeMismatch):
		return KindPrecondition
	default:
		return KindUnknown
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
