package app

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"

	"stakecardgame/apps/chain/internal/codec"
	"stakecardgame/apps/chain/internal/engine"
	"stakecardgame/apps/chain/internal/publish"
	"stakecardgame/apps/chain/internal/state"
	"stakecardgame/apps/chain/internal/vault"
)

func TestCreateAndJoin_EmitEventsAndEscrow(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	setupPlayers(t, a, height, "alice", "bob")

	res := mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGameCreate, map[string]any{
		"creator": "alice", "gameId": 7, "stake": testStake,
	}, "alice"), height))
	ev := findEvent(res.Events, "GameCreated")
	if attr(ev, "gameId") != "7" || attr(ev, "creator") != "alice" || attr(ev, "stake") != "100" {
		t.Fatalf("unexpected GameCreated attrs: %+v", ev)
	}

	res = mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGameJoin, map[string]any{
		"player": "bob", "gameId": 7, "stake": testStake,
	}, "bob"), height))
	if attr(findEvent(res.Events, "PlayerJoined"), "totalPool") != "200" {
		t.Fatalf("expected totalPool=200, got %+v", res.Events)
	}

	if got := a.bank.Balance("alice"); got != 900 {
		t.Fatalf("alice balance: got %d want 900", got)
	}
	v, err := a.games.Vault(7)
	if err != nil {
		t.Fatalf("Vault: %v", err)
	}
	if v.Balance != 200 {
		t.Fatalf("vault balance: got %d want 200", v.Balance)
	}
	g, err := a.games.GetState(7)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if g.CreatedHeight != height {
		t.Fatalf("createdHeight: got %d want %d", g.CreatedHeight, height)
	}
}

func TestFullGame_ClaimPaysOut(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	setupPlayers(t, a, height, "alice", "bob")
	startTestGame(t, a, height, 1)

	results := playOut(t, a, height, 1)
	if len(results) != 10 {
		t.Fatalf("expected 10 plays, got %d", len(results))
	}
	rounds := 0
	for _, r := range results {
		if findEvent(r.Events, "CardPlayed") == nil {
			t.Fatalf("expected CardPlayed on every play")
		}
		if findEvent(r.Events, "RoundResolved") != nil {
			rounds++
		}
	}
	if rounds != 5 {
		t.Fatalf("expected 5 RoundResolved events, got %d", rounds)
	}
	ended := findEvent(results[len(results)-1].Events, "GameEnded")
	if ended == nil {
		t.Fatalf("expected GameEnded on the final play")
	}

	g, err := a.games.GetState(1)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if g.Winner == nil {
		mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGameClaim, map[string]any{"player": "alice", "gameId": 1}, "alice"), height))
		mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGameClaim, map[string]any{"player": "bob", "gameId": 1, "stake": testStake}, "bob"), height))
		if a.bank.Balance("alice") != 1000 || a.bank.Balance("bob") != 1000 {
			t.Fatalf("tie split should refund both: alice=%d bob=%d", a.bank.Balance("alice"), a.bank.Balance("bob"))
		}
		return
	}

	winner := *g.Winner
	loser := "alice"
	if winner == "alice" {
		loser = "bob"
	}
	if attr(ended, "winner") != winner {
		t.Fatalf("GameEnded winner=%q want %q", attr(ended, "winner"), winner)
	}

	res := deliver(a, txBytesSigned(t, codec.TypeGameClaim, map[string]any{"player": loser, "gameId": 1}, loser), height)
	mustFail(t, res, engine.ErrOnlyWinnerCanClaim)

	res = mustOk(t, deliver(a, txBytesSigned(t, codec.TypeGameClaim, map[string]any{"player": winner, "gameId": 1}, winner), height))
	ev := findEvent(res.Events, "WinningsClaimed")
	if attr(ev, "amount") != "200" || attr(ev, "resultClaimed") != "true" {
		t.Fatalf("unexpected WinningsClaimed attrs: %+v", ev)
	}
	if got := a.bank.Balance(winner); got != 1100 {
		t.Fatalf("winner balance: got %d want 1100", got)
	}
	if got := a.bank.Balance(loser); got != 900 {
		t.Fatalf("loser balance: got %d want 900", got)
	}

	res = deliver(a, txBytesSigned(t, codec.TypeGameClaim, map[string]any{"player": winner, "gameId": 1}, winner), height)
	mustFail(t, res, engine.ErrResultAlreadyClaimed)
}

func TestPlayCard_OutOfTurnRejected(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	setupPlayers(t, a, height, "alice", "bob")
	g := startTestGame(t, a, height, 1)

	res := deliver(a, txBytesSigned(t, codec.TypeGamePlayCard, map[string]any{
		"player": "bob", "gameId": 1, "card": g.Players[1].Hand[0],
	}, "bob"), height)
	mustFail(t, res, engine.ErrNotYourTurn)

	res = deliver(a, txBytesSigned(t, codec.TypeGamePlayCard, map[string]any{
		"player": "alice", "gameId": 1, "card": g.Players[1].Hand[0],
	}, "alice"), height)
	mustFail(t, res, engine.ErrInvalidCard)
}

func TestMint_DisabledByConfig(t *testing.T) {
	a := newTestAppWith(t, Options{AllowMint: false})
	res := deliver(a, txBytes(t, codec.TypeBankMint, map[string]any{"to": "alice", "amount": 5}), 1)
	mustFail(t, res, ErrMintDisabled)

	check, err := a.CheckTx(context.Background(), &abci.CheckTxRequest{Tx: txBytes(t, codec.TypeBankMint, map[string]any{"to": "alice", "amount": 5})})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if check.Code != ErrMintDisabled.ABCICode() {
		t.Fatalf("CheckTx mint: code=%d", check.Code)
	}
}

func TestUnknownTxType(t *testing.T) {
	a := newTestApp(t)
	mustFail(t, deliver(a, txBytes(t, "game/resign", map[string]any{}), 1), ErrUnknownTx)
	mustFail(t, deliver(a, []byte("{"), 1), ErrTxDecode)
}

func TestCheckTx(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	res, err := a.CheckTx(ctx, &abci.CheckTxRequest{Tx: []byte("nope")})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if res.Code != ErrTxDecode.ABCICode() {
		t.Fatalf("expected decode error, got code=%d", res.Code)
	}

	res, err = a.CheckTx(ctx, &abci.CheckTxRequest{Tx: txBytes(t, codec.TypeGameJoin, map[string]any{"player": "bob", "gameId": 1, "stake": testStake})})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if res.Code != ErrUnauthorized.ABCICode() {
		t.Fatalf("expected unsigned game tx to be rejected, got code=%d", res.Code)
	}

	res, err = a.CheckTx(ctx, &abci.CheckTxRequest{Tx: txBytesSigned(t, codec.TypeGameJoin, map[string]any{"player": "bob", "gameId": 1, "stake": testStake}, "bob")})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if res.Code != 0 {
		t.Fatalf("expected signed tx to pass CheckTx, got code=%d log=%q", res.Code, res.Log)
	}
}

func TestQuery(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	setupPlayers(t, a, height, "alice", "bob")
	startTestGame(t, a, height, 3)

	var ids []uint64
	queryJSON(t, a, "/games", &ids)
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("unexpected /games: %v", ids)
	}

	var view publish.GameView
	queryJSON(t, a, "/game/3", &view)
	if view.Game == nil || view.Game.ID != 3 || view.VaultBalance != 200 {
		t.Fatalf("unexpected /game/3: %+v", view)
	}
	if view.Game.Status != state.StatusInProgress {
		t.Fatalf("unexpected status %q", view.Game.Status)
	}

	var v vault.Vault
	queryJSON(t, a, "/vault/3", &v)
	if v.GameID != 3 || v.Balance != 200 {
		t.Fatalf("unexpected /vault/3: %+v", v)
	}

	var acct accountView
	queryJSON(t, a, "/account/alice", &acct)
	if acct.Balance != 900 || !acct.Registered || acct.Nonce == 0 {
		t.Fatalf("unexpected /account/alice: %+v", acct)
	}

	var supply supplyView
	queryJSON(t, a, "/supply", &supply)
	if supply.Minted != "2000" || supply.Circulating != "1800" || supply.Escrowed != "200" {
		t.Fatalf("unexpected /supply: %+v", supply)
	}

	for _, path := range []string{"/game/99", "/game/abc", "/vault/99", "/nope"} {
		res, err := a.Query(context.Background(), &abci.QueryRequest{Path: path})
		if err != nil {
			t.Fatalf("Query %s: %v", path, err)
		}
		if res.Code == 0 {
			t.Fatalf("expected %s to fail", path)
		}
	}
}

func TestFinalizeCommit_PersistsAndReloads(t *testing.T) {
	home := t.TempDir()
	ctx := context.Background()
	a, err := New(Options{Home: home, Params: testParams(), AllowMint: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pubA, _ := testEd25519Key("alice")
	pubB, _ := testEd25519Key("bob")
	txs := [][]byte{
		txBytes(t, codec.TypeBankMint, map[string]any{"to": "alice", "amount": 1000}),
		txBytes(t, codec.TypeBankMint, map[string]any{"to": "bob", "amount": 1000}),
		txBytesSigned(t, codec.TypeAuthRegisterAccount, map[string]any{"account": "alice", "pubKey": []byte(pubA)}, "alice"),
		txBytesSigned(t, codec.TypeAuthRegisterAccount, map[string]any{"account": "bob", "pubKey": []byte(pubB)}, "bob"),
		txBytesSigned(t, codec.TypeGameCreate, map[string]any{"creator": "alice", "gameId": 1, "stake": testStake}, "alice"),
		txBytesSigned(t, codec.TypeGameJoin, map[string]any{"player": "bob", "gameId": 1, "stake": testStake}, "bob"),
	}
	fin, err := a.FinalizeBlock(ctx, &abci.FinalizeBlockRequest{Height: 1, Hash: []byte("h1"), Txs: txs})
	if err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	for i, r := range fin.TxResults {
		if r.Code != 0 {
			t.Fatalf("tx %d failed: %q", i, r.Log)
		}
	}
	if _, err := a.Commit(ctx, &abci.CommitRequest{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	before, err := a.games.GetState(1)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := New(Options{Home: home, Params: testParams(), AllowMint: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()

	info, err := b.Info(ctx, &abci.InfoRequest{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.LastBlockHeight != 1 {
		t.Fatalf("height: got %d want 1", info.LastBlockHeight)
	}
	if !bytes.Equal(info.LastBlockAppHash, fin.AppHash) {
		t.Fatalf("app hash changed across restart")
	}
	after, err := b.games.GetState(1)
	if err != nil {
		t.Fatalf("GetState after reload: %v", err)
	}
	wantJSON, _ := json.Marshal(before)
	gotJSON, _ := json.Marshal(after)
	if !bytes.Equal(wantJSON, gotJSON) {
		t.Fatalf("game differs after reload:\nwant %s\ngot  %s", wantJSON, gotJSON)
	}

	// Replay protection survives the restart.
	res := b.deliverTx(ctx, txs[4], 2, []byte("h2"))
	mustFail(t, res, ErrReplay)
}

type recordingConn struct {
	subjects []string
}

func (c *recordingConn) Publish(subject string, _ []byte) error {
	c.subjects = append(c.subjects, subject)
	return nil
}

func TestCommit_PublishesTouchedGames(t *testing.T) {
	ctx := context.Background()
	conn := &recordingConn{}
	a := newTestAppWith(t, Options{AllowMint: true, Notifier: publish.NewNotifier(conn, "scg", nil)})
	setupPlayers(t, a, 1, "alice", "bob")
	startTestGame(t, a, 1, 9)

	if _, err := a.FinalizeBlock(ctx, &abci.FinalizeBlockRequest{Height: 1, Hash: testBlockHash}); err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if _, err := a.Commit(ctx, &abci.CommitRequest{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	joined := strings.Join(conn.subjects, " ")
	for _, want := range []string{"scg.game.9", "scg.player.alice", "scg.player.bob"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected publish to %s, got %v", want, conn.subjects)
		}
	}

	conn.subjects = nil
	if _, err := a.FinalizeBlock(ctx, &abci.FinalizeBlockRequest{Height: 2, Hash: testBlockHash}); err != nil {
		t.Fatalf("FinalizeBlock: %v", err)
	}
	if _, err := a.Commit(ctx, &abci.CommitRequest{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(conn.subjects) != 0 {
		t.Fatalf("empty block should publish nothing, got %v", conn.subjects)
	}
}
