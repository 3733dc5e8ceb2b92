package app

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"

	"stakecardgame/apps/chain/internal/codec"
	"stakecardgame/apps/chain/internal/engine"
	"stakecardgame/apps/chain/internal/state"
)

const testStake = uint64(100)

var (
	testNonce     atomic.Uint64
	testBlockHash = []byte("block-hash-1")
)

func testParams() engine.Params {
	return engine.Params{MinStake: testStake, TotalRounds: 5, TiePolicy: engine.TieSplit}
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

func testEd25519Key(id string) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := sha256.Sum256([]byte("scg-test-key|" + id))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return priv.Public().(ed25519.PublicKey), priv
}

func txBytesSignedNonce(t *testing.T, typ string, value any, signer string, nonce uint64) []byte {
	t.Helper()
	return txBytesSignedBy(t, typ, value, signer, signer, nonce)
}

// txBytesSignedBy signs as signer using keyID's private key.
func txBytesSignedBy(t *testing.T, typ string, value any, signer, keyID string, nonce uint64) []byte {
	t.Helper()
	valueBytes := mustMarshal(t, value)
	_, priv := testEd25519Key(keyID)
	n := strconv.FormatUint(nonce, 10)
	sig := ed25519.Sign(priv, txAuthSignBytesV1(typ, valueBytes, n, signer))
	return mustMarshal(t, codec.TxEnvelope{
		Type:   typ,
		Value:  valueBytes,
		Nonce:  n,
		Signer: signer,
		Sig:    sig,
	})
}

func txBytesSigned(t *testing.T, typ string, value any, signer string) []byte {
	t.Helper()
	return txBytesSignedNonce(t, typ, value, signer, testNonce.Add(1))
}

func newTestAppWith(t *testing.T, opts Options) *SCGApp {
	t.Helper()
	if opts.Home == "" && opts.Store == nil {
		opts.Home = t.TempDir()
	}
	if opts.Params == (engine.Params{}) {
		opts.Params = testParams()
	}
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func newTestApp(t *testing.T) *SCGApp {
	t.Helper()
	return newTestAppWith(t, Options{AllowMint: true})
}

func deliver(a *SCGApp, tx []byte, height int64) *abci.ExecTxResult {
	return a.deliverTx(context.Background(), tx, height, testBlockHash)
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d codespace=%q log=%q", res.Code, res.Codespace, res.Log)
	}
	return res
}

type registeredErr interface {
	ABCICode() uint32
	Codespace() string
}

func mustFail(t *testing.T, res *abci.ExecTxResult, want registeredErr) {
	t.Helper()
	if res.Code != want.ABCICode() || res.Codespace != want.Codespace() {
		t.Fatalf("expected %s/%d, got code=%d codespace=%q log=%q", want.Codespace(), want.ABCICode(), res.Code, res.Codespace, res.Log)
	}
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func mintTestTokens(t *testing.T, a *SCGApp, height int64, to string, amount uint64) {
	t.Helper()
	mustOk(t, deliver(a, txBytes(t, codec.TypeBankMint, map[string]any{"to": to, "amount": amount}), height))
}

func registerTestAccount(t *testing.T, a *SCGApp, height int64, account string) {
	t.Helper()
	pub, _ := testEd25519Key(account)
	mustOk(t, deliver(a, txBytesSigned(t, codec.TypeAuthRegisterAccount, map[string]any{
		"account": account,
		"pubKey":  []byte(pub),
	}, account), height))
}

func setupPlayers(t *testing.T, a *SCGApp, height int64, players ...string) {
	t.Helper()
	for _, p := range players {
		mintTestTokens(t, a, height, p, 1000)
		registerTestAccount(t, a, height, p)
	}
}

// startTestGame has alice create game id and bob join it.
func startTestGame(t *testing.T, a *SCGApp, height int64, id uint64) *state.Game {
	t.Helper()
	mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGameCreate, map[string]any{
		"creator": "alice", "gameId": id, "stake": testStake,
	}, "alice"), height))
	mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGameJoin, map[string]any{
		"player": "bob", "gameId": id, "stake": testStake,
	}, "bob"), height))
	g, err := a.games.GetState(id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	return g
}

// playOut plays the first card of whoever is to act until the game ends and
// returns the result of every play.
func playOut(t *testing.T, a *SCGApp, height int64, id uint64) []*abci.ExecTxResult {
	t.Helper()
	var out []*abci.ExecTxResult
	for i := 0; i < 20; i++ {
		g, err := a.games.GetState(id)
		if err != nil {
			t.Fatalf("GetState: %v", err)
		}
		if g.Status == state.StatusEnded {
			return out
		}
		p := g.Players[g.CurrentTurn]
		res := mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGamePlayCard, map[string]any{
			"player": p.Identity, "gameId": id, "card": p.Hand[0],
		}, p.Identity), height))
		out = append(out, res)
	}
	t.Fatalf("game %d did not end", id)
	return nil
}

func queryJSON(t *testing.T, a *SCGApp, path string, out any) {
	t.Helper()
	res, err := a.Query(context.Background(), &abci.QueryRequest{Path: path})
	if err != nil {
		t.Fatalf("Query %s: %v", path, err)
	}
	if res.Code != 0 {
		t.Fatalf("Query %s: code=%d log=%q", path, res.Code, res.Log)
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}
