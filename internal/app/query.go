package app

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	abci "github.com/cometbft/cometbft/abci/types"

	"stakecardgame/apps/chain/internal/publish"
)

type accountView struct {
	Addr       string `json:"addr"`
	Balance    uint64 `json:"balance"`
	Nonce      uint64 `json:"nonce"`
	Registered bool   `json:"registered"`
}

type supplyView struct {
	Minted      string `json:"minted"`
	Circulating string `json:"circulating"`
	Escrowed    string `json:"escrowed"`
}

// Query paths:
//   - /account/<addr>
//   - /game/<id>
//   - /games
//   - /vault/<id>
//   - /supply
func (a *SCGApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := strings.TrimSpace(req.Path)
	var (
		v   any
		err error
	)
	switch {
	case path == "/games":
		v = a.games.IDs()
	case path == "/supply":
		snap := a.snapshot()
		v = supplyView{
			Minted:      snap.Minted.String(),
			Circulating: snap.Circulating().String(),
			Escrowed:    snap.Escrowed().String(),
		}
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		v = accountView{
			Addr:       addr,
			Balance:    a.bank.Balance(addr),
			Nonce:      a.reg.NonceMax[addr],
			Registered: len(a.reg.Keys[addr]) > 0,
		}
	case strings.HasPrefix(path, "/game/"):
		var id uint64
		if id, err = parseID(strings.TrimPrefix(path, "/game/")); err != nil {
			break
		}
		g, gerr := a.games.GetState(id)
		if gerr != nil {
			err = gerr
			break
		}
		vt, verr := a.games.Vault(id)
		if verr != nil {
			err = verr
			break
		}
		v = publish.GameView{Game: g, VaultBalance: vt.Balance}
	case strings.HasPrefix(path, "/vault/"):
		var id uint64
		if id, err = parseID(strings.TrimPrefix(path, "/vault/")); err != nil {
			break
		}
		v, err = a.games.Vault(id)
	default:
		err = ErrQuery.Wrapf("unknown query path %q", path)
	}
	if err != nil {
		return queryErr(err, a.height), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return queryErr(ErrQuery.Wrap(err.Error()), a.height), nil
	}
	return &abci.QueryResponse{Code: 0, Value: b, Height: a.height}, nil
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ErrQuery.Wrapf("invalid game id %q", raw)
	}
	return id, nil
}

func queryErr(err error, height int64) *abci.QueryResponse {
	codespace, code, log := errorsmod.ABCIInfo(err, false)
	return &abci.QueryResponse{Code: code, Codespace: codespace, Log: log, Height: height}
}
