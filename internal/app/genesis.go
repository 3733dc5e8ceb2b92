package app

import (
	"context"
	"encoding/json"

	abci "github.com/cometbft/cometbft/abci/types"

	"stakecardgame/apps/chain/internal/engine"
	"stakecardgame/apps/chain/internal/state"
)

// GenesisState is the app_state section of genesis.json.
type GenesisState struct {
	Params   *engine.Params         `json:"params,omitempty"`
	Balances []state.AccountBalance `json:"balances,omitempty"`
}

// chainParams picks the consensus params for a loaded snapshot. Once a chain
// has committed its params they win over anything the node is configured
// with; fallback only seeds a chain whose genesis does not set params.
func chainParams(snap *state.Snapshot, fallback engine.Params) (engine.Params, bool, error) {
	if len(snap.Params) == 0 {
		if fallback == (engine.Params{}) {
			fallback = engine.DefaultParams()
		}
		return fallback, false, fallback.Validate()
	}
	var p engine.Params
	if err := json.Unmarshal(snap.Params, &p); err != nil {
		return engine.Params{}, true, state.ErrInvariant.Wrapf("decode stored params: %s", err)
	}
	return p, true, p.Validate()
}

func (a *SCGApp) InitChain(_ context.Context, req *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.height != 0 || len(a.games.IDs()) != 0 {
		return nil, ErrInvalidTx.Wrapf("InitChain on a chain at height %d", a.height)
	}
	if len(req.AppStateBytes) == 0 {
		a.lastHash = a.snapshot().AppHash()
		return &abci.InitChainResponse{AppHash: a.lastHash}, nil
	}

	var gen GenesisState
	if err := json.Unmarshal(req.AppStateBytes, &gen); err != nil {
		return nil, ErrInvalidTx.Wrapf("decode app_state: %s", err)
	}
	if gen.Params != nil {
		games, err := engine.New(a.bank, engine.SignerVerifier{}, *gen.Params, a.logger)
		if err != nil {
			return nil, err
		}
		a.games = games
		a.params = *gen.Params
	}
	for _, b := range gen.Balances {
		if err := a.bank.Mint(b.Addr, b.Balance); err != nil {
			return nil, err
		}
	}
	a.lastHash = a.snapshot().AppHash()
	a.logger.Info("genesis applied", "chainId", req.ChainId, "params", a.params.String(), "accounts", len(gen.Balances))
	return &abci.InitChainResponse{AppHash: a.lastHash}, nil
}
