package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"stakecardgame/apps/chain/internal/codec"
	"stakecardgame/apps/chain/internal/engine"
	"stakecardgame/apps/chain/internal/state"
)

// deliverTx executes one tx. A signed tx consumes its nonce as soon as the
// signature verifies, even when execution then fails, so the same bytes can
// never run again later.
func (a *SCGApp) deliverTx(ctx context.Context, txBytes []byte, height int64, blockHash []byte) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return errResult(ErrTxDecode.Wrap(err.Error()))
	}

	if env.Type == codec.TypeBankMint {
		return a.deliverMint(env)
	}

	var (
		account string
		run     func(ctx context.Context) *abci.ExecTxResult
	)
	switch env.Type {
	case codec.TypeBankSend:
		msg, err := codec.DecodeValue[codec.BankSendTx](env)
		if err != nil {
			return errResult(ErrInvalidTx.Wrap(err.Error()))
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return errResult(ErrInvalidTx.Wrap("missing from/to/amount"))
		}
		account = msg.From
		run = func(context.Context) *abci.ExecTxResult {
			if err := a.bank.Send(msg.From, msg.To, msg.Amount); err != nil {
				return errResult(err)
			}
			return okEvent("BankSent", map[string]string{
				"from":   msg.From,
				"to":     msg.To,
				"amount": fmt.Sprintf("%d", msg.Amount),
			})
		}

	case codec.TypeAuthRegisterAccount:
		msg, err := codec.DecodeValue[codec.AuthRegisterAccountTx](env)
		if err != nil {
			return errResult(ErrInvalidTx.Wrap(err.Error()))
		}
		if err := requireRegisterAccountAuth(a.reg, env, msg); err != nil {
			return errResult(ErrUnauthorized.Wrap(err.Error()))
		}
		nonce, err := checkNonce(a.reg, env)
		if err != nil {
			return errResult(replayErr(err))
		}
		a.reg.Keys[msg.Account] = append([]byte(nil), msg.PubKey...)
		a.reg.NonceMax[env.Signer] = nonce
		return okEvent("AccountRegistered", map[string]string{"account": msg.Account})

	case codec.TypeGameCreate:
		msg, err := codec.DecodeValue[codec.GameCreateTx](env)
		if err != nil {
			return errResult(ErrInvalidTx.Wrap(err.Error()))
		}
		account = msg.Creator
		run = func(ctx context.Context) *abci.ExecTxResult {
			g, err := a.games.Create(ctx, msg.Creator, msg.GameID, msg.Stake, txEntropy(blockHash, txBytes))
			if err != nil {
				return errResult(err)
			}
			a.touched[g.ID] = struct{}{}
			return okEvent("GameCreated", map[string]string{
				"gameId":  fmt.Sprintf("%d", g.ID),
				"creator": g.Creator,
				"stake":   fmt.Sprintf("%d", g.StakeAmount),
			})
		}

	case codec.TypeGameJoin:
		msg, err := codec.DecodeValue[codec.GameJoinTx](env)
		if err != nil {
			return errResult(ErrInvalidTx.Wrap(err.Error()))
		}
		account = msg.Player
		run = func(ctx context.Context) *abci.ExecTxResult {
			g, err := a.games.Join(ctx, msg.Player, msg.GameID, msg.Stake, txEntropy(blockHash, txBytes))
			if err != nil {
				return errResult(err)
			}
			a.touched[g.ID] = struct{}{}
			return okEvent("PlayerJoined", map[string]string{
				"gameId":    fmt.Sprintf("%d", g.ID),
				"player":    msg.Player,
				"totalPool": fmt.Sprintf("%d", g.TotalPool),
			})
		}

	case codec.TypeGamePlayCard:
		msg, err := codec.DecodeValue[codec.GamePlayCardTx](env)
		if err != nil {
			return errResult(ErrInvalidTx.Wrap(err.Error()))
		}
		account = msg.Player
		run = func(ctx context.Context) *abci.ExecTxResult {
			res, err := a.games.PlayCard(ctx, msg.Player, msg.GameID, msg.Card)
			if err != nil {
				return errResult(err)
			}
			a.touched[msg.GameID] = struct{}{}
			return playEvents(msg, res)
		}

	case codec.TypeGameClaim:
		msg, err := codec.DecodeValue[codec.GameClaimTx](env)
		if err != nil {
			return errResult(ErrInvalidTx.Wrap(err.Error()))
		}
		account = msg.Player
		run = func(ctx context.Context) *abci.ExecTxResult {
			r, err := a.games.ClaimWinnings(ctx, msg.Player, msg.GameID)
			if err != nil {
				return errResult(err)
			}
			a.touched[msg.GameID] = struct{}{}
			var amount uint64
			for _, p := range r.Payouts {
				amount += p.Amount
			}
			recipients := make([]string, 0, len(r.Payouts))
			for _, p := range r.Payouts {
				recipients = append(recipients, p.To)
			}
			return okEvent("WinningsClaimed", map[string]string{
				"gameId":        fmt.Sprintf("%d", r.GameID),
				"claimant":      r.Claimant,
				"recipients":    strings.Join(recipients, ","),
				"amount":        fmt.Sprintf("%d", amount),
				"vaultBalance":  fmt.Sprintf("%d", r.VaultBalance),
				"resultClaimed": fmt.Sprintf("%t", r.ResultClaimed),
			})
		}

	default:
		return errResult(ErrUnknownTx.Wrap(env.Type))
	}

	if err := requireAccountAuth(a.reg, env, account); err != nil {
		return errResult(ErrUnauthorized.Wrap(err.Error()))
	}
	nonce, err := checkNonce(a.reg, env)
	if err != nil {
		return errResult(replayErr(err))
	}
	a.reg.NonceMax[env.Signer] = nonce
	return run(engine.WithHeight(engine.WithSigner(ctx, env.Signer), height))
}

func (a *SCGApp) deliverMint(env codec.TxEnvelope) *abci.ExecTxResult {
	if !a.allowMint {
		return errResult(ErrMintDisabled)
	}
	msg, err := codec.DecodeValue[codec.BankMintTx](env)
	if err != nil {
		return errResult(ErrInvalidTx.Wrap(err.Error()))
	}
	if msg.To == "" || msg.Amount == 0 {
		return errResult(ErrInvalidTx.Wrap("missing to/amount"))
	}
	if err := a.bank.Mint(msg.To, msg.Amount); err != nil {
		return errResult(err)
	}
	return okEvent("BankMinted", map[string]string{
		"to":     msg.To,
		"amount": fmt.Sprintf("%d", msg.Amount),
	})
}

// txEntropy binds deck randomness to both the block and the tx that asked for
// it.
func txEntropy(blockHash, txBytes []byte) []byte {
	h := sha256.New()
	h.Write(blockHash)
	h.Write(txBytes)
	return h.Sum(nil)
}

func replayErr(err error) error {
	return ErrReplay.Wrap(err.Error())
}

func playEvents(msg codec.GamePlayCardTx, res *engine.PlayResult) *abci.ExecTxResult {
	out := okEvent("CardPlayed", map[string]string{
		"gameId": fmt.Sprintf("%d", msg.GameID),
		"player": msg.Player,
		"seat":   fmt.Sprintf("%d", res.Seat),
		"card":   msg.Card.String(),
	})
	g := res.Game
	if r := res.Resolved; r != nil {
		winner := ""
		if r.Winner != state.NoSeat {
			winner = g.Players[r.Winner].Identity
		}
		out.Events = append(out.Events, event("RoundResolved", map[string]string{
			"gameId": fmt.Sprintf("%d", g.ID),
			"round":  fmt.Sprintf("%d", g.CurrentRound),
			"cards":  r.Cards[0].String() + "," + r.Cards[1].String(),
			"winner": winner,
		}))
	}
	if res.Ended {
		winner := ""
		if g.Winner != nil {
			winner = *g.Winner
		}
		out.Events = append(out.Events, event("GameEnded", map[string]string{
			"gameId":     fmt.Sprintf("%d", g.ID),
			"winner":     winner,
			"roundsWon0": fmt.Sprintf("%d", g.Players[0].RoundsWon),
			"roundsWon1": fmt.Sprintf("%d", g.Players[1].RoundsWon),
		}))
	}
	return out
}

func event(typ string, attrs map[string]string) abci.Event {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return ev
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{event(typ, attrs)},
	}
}

func errResult(err error) *abci.ExecTxResult {
	codespace, code, log := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Code: code, Codespace: codespace, Log: log}
}

func checkErr(err error) *abci.CheckTxResponse {
	codespace, code, log := errorsmod.ABCIInfo(err, false)
	return &abci.CheckTxResponse{Code: code, Codespace: codespace, Log: log}
}
