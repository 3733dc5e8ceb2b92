package app

import (
	"context"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"

	"stakecardgame/apps/chain/internal/codec"
	"stakecardgame/apps/chain/internal/engine"
	"stakecardgame/apps/chain/internal/state"
)

func genesisParams() engine.Params {
	return engine.Params{MinStake: 50, TotalRounds: 3, TiePolicy: engine.TieRefund}
}

func TestInitChain_GenesisParamsSurviveRestart(t *testing.T) {
	home := t.TempDir()
	ctx := context.Background()
	a, err := New(Options{Home: home, Params: testParams()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gp := genesisParams()
	appState := mustMarshal(t, GenesisState{
		Params:   &gp,
		Balances: []state.AccountBalance{{Addr: "alice", Balance: 500}, {Addr: "bob", Balance: 500}},
	})
	initRes, err := a.InitChain(ctx, &abci.InitChainRequest{ChainId: "scg-test", AppStateBytes: appState})
	if err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	if len(initRes.AppHash) == 0 {
		t.Fatalf("expected genesis app hash")
	}
	if got := a.games.Params(); got != gp {
		t.Fatalf("params: got %s want %s", got, gp)
	}
	if got := a.bank.Balance("alice"); got != 500 {
		t.Fatalf("genesis balance: %d", got)
	}

	pubA, _ := testEd25519Key("alice")
	pubB, _ := testEd25519Key("bob")
	txs := [][]byte{
		txBytesSigned(t, codec.TypeAuthRegisterAccount, map[string]any{"account": "alice", "pubKey": []byte(pubA)}, "alice"),
		txBytesSigned(t, codec.TypeAuthRegisterAccount, map[string]any{"account": "bob", "pubKey": []byte(pubB)}, "bob"),
		// Below the node's configured minimum but valid under genesis params.
		txBytesSigned(t, codec.TypeGameCreate, map[string]any{"creator": "alice", "gameId": 1, "stake": 60}, "alice"),
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
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A restart with different node-local params keeps the chain's params.
	b, err := New(Options{Home: home, Params: engine.DefaultParams()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	if got := b.games.Params(); got != gp {
		t.Fatalf("params after restart: got %s want %s", got, gp)
	}
	g, err := b.games.GetState(1)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if g.TiePolicy != engine.TieRefund || g.TotalRounds != 3 {
		t.Fatalf("game lost genesis rules: tiePolicy=%s totalRounds=%d", g.TiePolicy, g.TotalRounds)
	}
	info, err := b.Info(ctx, &abci.InfoRequest{})
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if string(info.LastBlockAppHash) != string(fin.AppHash) {
		t.Fatalf("app hash changed across restart")
	}
}

func TestInitChain_Rejections(t *testing.T) {
	ctx := context.Background()

	a := newTestApp(t)
	bad := engine.Params{MinStake: 1, TotalRounds: 30, TiePolicy: engine.TieSplit}
	if _, err := a.InitChain(ctx, &abci.InitChainRequest{AppStateBytes: mustMarshal(t, GenesisState{Params: &bad})}); err == nil {
		t.Fatalf("expected invalid genesis params to be rejected")
	}
	if _, err := a.InitChain(ctx, &abci.InitChainRequest{AppStateBytes: []byte("{")}); err == nil {
		t.Fatalf("expected malformed app_state to be rejected")
	}

	b := newTestApp(t)
	setupPlayers(t, b, 1, "alice", "bob")
	startTestGame(t, b, 1, 1)
	if _, err := b.InitChain(ctx, &abci.InitChainRequest{}); err == nil {
		t.Fatalf("expected InitChain with live games to be rejected")
	}
}

func TestInitChain_EmptyAppStateKeepsSeedParams(t *testing.T) {
	a := newTestApp(t)
	res, err := a.InitChain(context.Background(), &abci.InitChainRequest{})
	if err != nil {
		t.Fatalf("InitChain: %v", err)
	}
	if len(res.AppHash) == 0 {
		t.Fatalf("expected app hash")
	}
	if got := a.games.Params(); got != testParams() {
		t.Fatalf("params: got %s want %s", got, testParams())
	}
}
