package codec

import (
	"encoding/json"
	"fmt"

	"stakecardgame/apps/chain/internal/cards"
)

// TxEnvelope is the transaction container.
//
// CometBFT transactions are opaque bytes; ours are JSON envelopes routed by
// Type with the type-specific payload in Value.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Auth:
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: account that signed the tx.
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

// Tx types.
const (
	TypeBankMint            = "bank/mint"
	TypeBankSend            = "bank/send"
	TypeAuthRegisterAccount = "auth/register_account"
	TypeGameCreate          = "game/create"
	TypeGameJoin            = "game/join"
	TypeGamePlayCard        = "game/play_card"
	TypeGameClaim           = "game/claim"
)

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// DecodeValue unmarshals the envelope payload into a T.
func DecodeValue[T any](env TxEnvelope) (T, error) {
	var v T
	if len(env.Value) == 0 {
		return v, fmt.Errorf("%s: missing tx.value", env.Type)
	}
	if err := json.Unmarshal(env.Value, &v); err != nil {
		return v, fmt.Errorf("%s: invalid tx.value: %w", env.Type, err)
	}
	return v, nil
}

// EncodeTxEnvelope builds an unsigned envelope around value.
func EncodeTxEnvelope(typ string, value any, nonce, signer string) (TxEnvelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return TxEnvelope{}, fmt.Errorf("encode %s value: %w", typ, err)
	}
	return TxEnvelope{Type: typ, Value: raw, Nonce: nonce, Signer: signer}, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth ----

// Account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Game ----

type GameCreateTx struct {
	Creator string `json:"creator"`
	GameID  uint64 `json:"gameId"`
	Stake   uint64 `json:"stake"`
}

// Stake must equal the game's stake; it binds the signed join to the amount
// the player agreed to escrow.
type GameJoinTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
	Stake  uint64 `json:"stake"`
}

type GamePlayCardTx struct {
	Player string     `json:"player"`
	GameID uint64     `json:"gameId"`
	Card   cards.Card `json:"card"`
}

type GameClaimTx struct {
	Player string `json:"player"`
	GameID uint64 `json:"gameId"`
}
