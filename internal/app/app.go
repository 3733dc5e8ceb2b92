package app

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"stakecardgame/apps/chain/internal/codec"
	"stakecardgame/apps/chain/internal/engine"
	"stakecardgame/apps/chain/internal/publish"
	"stakecardgame/apps/chain/internal/state"
)

const (
	AppVersion uint64 = 1
)

// Options configures an App. Params only seed a fresh chain whose genesis
// app_state sets none; a chain with committed params always uses those. A
// nil Logger discards output and a nil Store opens goleveldb under
// <Home>/data.
type Options struct {
	Home      string
	Params    engine.Params
	AllowMint bool
	Logger    log.Logger
	Store     *state.Store
	Notifier  *publish.Notifier
}

type SCGApp struct {
	*abci.BaseApplication

	logger    log.Logger
	allowMint bool
	store     *state.Store
	notifier  *publish.Notifier

	mu       sync.Mutex
	height   int64
	params   engine.Params
	bank     *state.Bank
	reg      *state.Registry
	games    *engine.Engine
	lastHash []byte

	// Written by FinalizeBlock, flushed by Commit.
	pending *state.Snapshot
	touched map[uint64]struct{}
}

func New(opts Options) (*SCGApp, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	store := opts.Store
	if store == nil {
		var err error
		store, err = state.OpenStore(filepath.Join(opts.Home, "data"))
		if err != nil {
			return nil, err
		}
	}

	snap, err := store.Load()
	if err != nil {
		return nil, err
	}
	bank, reg := state.NewBank(), state.NewRegistry()
	snap.Apply(bank, reg)
	if !snap.Conserved() {
		return nil, state.ErrInvariant.Wrapf("loaded snapshot at height %d does not conserve supply", snap.Height)
	}
	params, stored, err := chainParams(snap, opts.Params)
	if err != nil {
		return nil, err
	}
	if stored && opts.Params != (engine.Params{}) && opts.Params != params {
		logger.Info("node game params ignored; chain params are fixed at genesis",
			"configured", opts.Params.String(), "chain", params.String())
	}

	games, err := engine.New(bank, engine.SignerVerifier{}, params, logger)
	if err != nil {
		return nil, err
	}
	if err := games.Import(snap.Games, snap.Vaults); err != nil {
		return nil, fmt.Errorf("restore games: %w", err)
	}

	a := &SCGApp{
		BaseApplication: abci.NewBaseApplication(),
		logger:          logger.With("module", "app"),
		allowMint:       opts.AllowMint,
		store:           store,
		notifier:        opts.Notifier,
		height:          snap.Height,
		params:          params,
		bank:            bank,
		reg:             reg,
		games:           games,
		lastHash:        snap.AppHash(),
		touched:         make(map[uint64]struct{}),
	}
	a.logger.Info("state loaded", "height", snap.Height, "games", len(snap.Games), "params", params.String())
	return a, nil
}

func (a *SCGApp) Close() error {
	return a.store.Close()
}

func (a *SCGApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "SCG",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

// CheckTx validates structure and signatures only; game rules are enforced at
// execution.
func (a *SCGApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return checkErr(ErrTxDecode.Wrap(err.Error())), nil
	}
	if env.Type == codec.TypeBankMint {
		if !a.allowMint {
			return checkErr(ErrMintDisabled), nil
		}
		return &abci.CheckTxResponse{Code: 0}, nil
	}
	if err := requireSignedEnvelope(env); err != nil {
		return checkErr(ErrUnauthorized.Wrap(err.Error())), nil
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *SCGApp) FinalizeBlock(ctx context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.height = req.Height

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(ctx, txBytes, req.Height, req.Hash)
		txResults = append(txResults, res)
	}

	a.pending = a.snapshot()
	if !a.pending.Conserved() {
		// Conservation is checked by every transition; reaching this is a bug.
		a.logger.Error("supply not conserved", "height", req.Height,
			"minted", a.pending.Minted.String(), "circulating", a.pending.Circulating().String(), "escrowed", a.pending.Escrowed().String())
		return nil, state.ErrInvariant.Wrapf("supply not conserved at height %d", req.Height)
	}
	a.lastHash = a.pending.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *SCGApp) snapshot() *state.Snapshot {
	games, vaults := a.games.Export()
	snap := state.Capture(a.height, a.bank, a.reg, games, vaults)
	snap.Params, _ = json.Marshal(a.params)
	return snap
}

func (a *SCGApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := a.pending
	if snap == nil {
		snap = a.snapshot()
	}
	if err := a.store.Save(snap); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	a.pending = nil
	a.publishTouched(snap.Height)
	return &abci.CommitResponse{}, nil
}

// publishTouched announces every game changed in the committed block.
// Publishing is best effort: the committed state is already durable.
func (a *SCGApp) publishTouched(height int64) {
	if len(a.touched) == 0 {
		return
	}
	ids := make([]uint64, 0, len(a.touched))
	for id := range a.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	a.touched = make(map[uint64]struct{})

	if !a.notifier.Enabled() {
		return
	}
	for _, id := range ids {
		g, err := a.games.GetState(id)
		if err != nil {
			continue
		}
		v, err := a.games.Vault(id)
		if err != nil {
			continue
		}
		if err := a.notifier.GameUpdated(height, publish.GameView{Game: g, VaultBalance: v.Balance}); err != nil {
			a.logger.Error("game update not published", "gameId", id, "err", err)
		}
	}
}
