// Package engine runs the two-player stake card game state machine.
//
// Every game owns one session guarded by its own mutex; the registry lock is
// only held to look up or insert a session. A transition clones the current
// game, mutates the clone, validates it, performs the bank transfer last and
// then swaps the clone in. A failed transition leaves the session untouched.
package engine

import (
	"context"
	"sort"
	"sync"

	"cosmossdk.io/log"

	"stakecardgame/apps/chain/internal/state"
	"stakecardgame/apps/chain/internal/vault"
)

type session struct {
	mu sync.Mutex
	// game is nil while a Create for this id is still in flight.
	game  *state.Game
	vault *vault.Vault
}

type Engine struct {
	params   Params
	bank     vault.Bank
	verifier Verifier
	logger   log.Logger

	mu       sync.RWMutex
	sessions map[uint64]*session
}

// New builds an engine. A nil verifier defaults to SignerVerifier and a nil
// logger to a no-op logger.
func New(bank vault.Bank, verifier Verifier, params Params, logger log.Logger) (*Engine, error) {
	if bank == nil {
		return nil, ErrInvalidParams.Wrap("nil bank")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if verifier == nil {
		verifier = SignerVerifier{}
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{
		params:   params,
		bank:     bank,
		verifier: verifier,
		logger:   logger.With("module", "engine"),
		sessions: make(map[uint64]*session),
	}, nil
}

func (e *Engine) Params() Params { return e.params }

// reserve inserts a locked placeholder session for id. The caller must either
// fill it in or call abandon, and then unlock it.
func (e *Engine) reserve(id uint64) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[id]; ok {
		return nil, ErrGameIDInUse.Wrapf("game %d", id)
	}
	s := &session{}
	s.mu.Lock()
	e.sessions[id] = s
	return s, nil
}

func (e *Engine) abandon(id uint64, s *session) {
	e.mu.Lock()
	if e.sessions[id] == s {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
}

// acquire returns the locked session of an existing game.
func (e *Engine) acquire(id uint64) (*session, error) {
	e.mu.RLock()
	s := e.sessions[id]
	e.mu.RUnlock()
	if s == nil {
		return nil, ErrGameNotFound.Wrapf("game %d", id)
	}
	s.mu.Lock()
	if s.game == nil {
		s.mu.Unlock()
		return nil, ErrGameNotFound.Wrapf("game %d", id)
	}
	return s, nil
}

// GetState returns a copy of the game. Mutating it has no effect on the
// engine.
func (e *Engine) GetState(id uint64) (*state.Game, error) {
	s, err := e.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.game.Clone(), nil
}

func (e *Engine) Vault(id uint64) (vault.Vault, error) {
	s, err := e.acquire(id)
	if err != nil {
		return vault.Vault{}, err
	}
	defer s.mu.Unlock()
	return *s.vault, nil
}

// IDs lists every committed game id in ascending order.
func (e *Engine) IDs() []uint64 {
	e.mu.RLock()
	ids := make([]uint64, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := ids[:0]
	for _, id := range ids {
		if _, err := e.GetState(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// Export copies every game and its vault. Each pair is read under its own
// session lock so it is internally consistent.
func (e *Engine) Export() ([]*state.Game, []vault.Vault) {
	ids := e.IDs()
	games := make([]*state.Game, 0, len(ids))
	vaults := make([]vault.Vault, 0, len(ids))
	for _, id := range ids {
		s, err := e.acquire(id)
		if err != nil {
			continue
		}
		games = append(games, s.game.Clone())
		vaults = append(vaults, *s.vault)
		s.mu.Unlock()
	}
	return games, vaults
}

// Import replaces the engine contents with previously exported games. Every
// game must validate against its vault.
func (e *Engine) Import(games []*state.Game, vaults []vault.Vault) error {
	byID := make(map[uint64]vault.Vault, len(vaults))
	for _, v := range vaults {
		byID[v.GameID] = v
	}
	if len(byID) != len(games) {
		return state.ErrInvariant.Wrapf("%d games but %d vaults", len(games), len(byID))
	}
	sessions := make(map[uint64]*session, len(games))
	for _, g := range games {
		v, ok := byID[g.ID]
		if !ok {
			return state.ErrInvariant.Wrapf("game %d has no vault", g.ID)
		}
		if _, dup := sessions[g.ID]; dup {
			return state.ErrInvariant.Wrapf("game %d imported twice", g.ID)
		}
		if err := g.Validate(v.Balance); err != nil {
			return err
		}
		sessions[g.ID] = &session{game: g.Clone(), vault: v.Clone()}
	}

	e.mu.Lock()
	e.sessions = sessions
	e.mu.Unlock()
	return nil
}

func (e *Engine) logRejected(op string, id uint64, actor string, err *error) {
	if *err != nil {
		e.logger.Debug("transition rejected", "op", op, "gameId", id, "actor", actor, "err", *err)
	}
}

func (e *Engine) authorize(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrInvalidRequest.Wrap("missing identity")
	}
	if !e.verifier.VerifyActor(ctx, identity) {
		return ErrUnauthorized.Wrapf("%s", identity)
	}
	return nil
}
