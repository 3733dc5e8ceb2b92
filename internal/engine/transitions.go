package engine

import (
	"context"
	"errors"

	"stakecardgame/apps/chain/internal/cards"
	"stakecardgame/apps/chain/internal/state"
	"stakecardgame/apps/chain/internal/vault"
)

const (
	createSeedDomain = "scg/create"
	joinSeedDomain   = "scg/join"
)

// Create opens game id with creator in seat 0 and escrows stake. entropy seeds
// the deck shuffle; the same entropy always yields the same deck.
func (e *Engine) Create(ctx context.Context, creator string, id, stake uint64, entropy []byte) (_ *state.Game, err error) {
	defer e.logRejected("create", id, creator, &err)
	if err := e.authorize(ctx, creator); err != nil {
		return nil, err
	}
	if stake < e.params.MinStake {
		return nil, ErrInsufficientStake.Wrapf("stake=%d min=%d", stake, e.params.MinStake)
	}
	if len(entropy) == 0 {
		return nil, ErrInvalidRequest.Wrap("missing entropy")
	}
	deck, err := cards.Shuffle(cards.DeriveSeed(createSeedDomain, cards.U64LE(id), entropy))
	if err != nil {
		return nil, err
	}

	s, err := e.reserve(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	g := &state.Game{
		ID:          id,
		Creator:     creator,
		Players:     []*state.Player{{Identity: creator, Stake: stake}},
		Status:      state.StatusWaitingForPlayer,
		TotalRounds: e.params.TotalRounds,
		StakeAmount: stake,
		TotalPool:   stake,
		TiePolicy:   e.params.TiePolicy,
		Deck:        deck,
	}
	if h, ok := HeightFromContext(ctx); ok {
		g.CreatedHeight = h
	}
	v := vault.New(id)
	if err := g.Validate(stake); err != nil {
		e.abandon(id, s)
		return nil, err
	}
	if err := v.Deposit(e.bank, creator, stake); err != nil {
		e.abandon(id, s)
		return nil, depositErr(err, creator, stake)
	}
	s.game, s.vault = g, v

	e.logger.Info("game created", "gameId", id, "creator", creator, "stake", stake)
	return g.Clone(), nil
}

// Join seats joiner opposite the creator, escrows a matching stake and deals
// both hands from the deck after cutting it with entropy. stake is the amount
// the joiner agreed to and must equal the game's stake.
func (e *Engine) Join(ctx context.Context, joiner string, id, stake uint64, entropy []byte) (_ *state.Game, err error) {
	defer e.logRejected("join", id, joiner, &err)
	if err := e.authorize(ctx, joiner); err != nil {
		return nil, err
	}
	if len(entropy) == 0 {
		return nil, ErrInvalidRequest.Wrap("missing entropy")
	}
	s, err := e.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	cur := s.game
	if cur.Status != state.StatusWaitingForPlayer || len(cur.Players) >= state.MaxPlayers {
		return nil, ErrGameFull.Wrapf("game %d is %s", id, cur.Status)
	}
	if joiner == cur.Creator {
		return nil, ErrCannotJoinOwnGame.Wrapf("game %d", id)
	}
	if stake != cur.StakeAmount {
		return nil, ErrStakeMismatch.Wrapf("game %d: stake=%d offered=%d", id, cur.StakeAmount, stake)
	}

	g := cur.Clone()
	v := s.vault.Clone()
	deck := cards.Cut(g.Deck, cards.DeriveSeed(joinSeedDomain, cards.U64LE(id), entropy))
	h0, h1, rest, err := cards.Deal(deck, int(g.TotalRounds))
	if err != nil {
		return nil, err
	}
	if g.TotalPool > ^uint64(0)-g.StakeAmount {
		return nil, vault.ErrOverflow.Wrapf("game %d pool", id)
	}
	g.Players[0].Hand = h0
	g.Players = append(g.Players, &state.Player{Identity: joiner, Hand: h1, Stake: g.StakeAmount})
	g.Deck = rest
	g.TotalPool += g.StakeAmount
	g.Status = state.StatusInProgress
	g.CurrentTurn = 0
	g.LeadSeat = 0

	if err := g.Validate(v.Balance + g.StakeAmount); err != nil {
		return nil, err
	}
	if err := v.Deposit(e.bank, joiner, g.StakeAmount); err != nil {
		return nil, depositErr(err, joiner, g.StakeAmount)
	}
	s.game, s.vault = g, v

	e.logger.Info("player joined", "gameId", id, "player", joiner, "pool", g.TotalPool)
	return g.Clone(), nil
}

// PlayResult describes the state after a card was accepted. Resolved is set
// when the play completed a round.
type PlayResult struct {
	Game     *state.Game
	Seat     int
	Resolved *state.Round
	Ended    bool
}

// PlayCard plays card from actor's hand. The second card of a round resolves
// it; the last round ends the game.
func (e *Engine) PlayCard(ctx context.Context, actor string, id uint64, card cards.Card) (_ *PlayResult, err error) {
	defer e.logRejected("play_card", id, actor, &err)
	if err := e.authorize(ctx, actor); err != nil {
		return nil, err
	}
	s, err := e.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	cur := s.game
	switch cur.Status {
	case state.StatusWaitingForPlayer:
		return nil, ErrGameNotStarted.Wrapf("game %d", id)
	case state.StatusEnded:
		return nil, ErrGameAlreadyEnded.Wrapf("game %d", id)
	}
	seat := cur.Seat(actor)
	if seat < 0 {
		return nil, ErrPlayerNotInGame.Wrapf("%s in game %d", actor, id)
	}
	if int(cur.CurrentTurn) != seat || cur.Players[seat].HasPlayed {
		return nil, ErrNotYourTurn.Wrapf("game %d: turn=%d seat=%d", id, cur.CurrentTurn, seat)
	}
	if !card.Valid() {
		return nil, ErrInvalidCard.Wrapf("%+v", card)
	}
	if cur.Players[seat].HandIndex(card) < 0 {
		return nil, ErrInvalidCard.Wrapf("%s not in hand", card)
	}

	g := cur.Clone()
	p := g.Players[seat]
	i := p.HandIndex(card)
	p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
	played := card
	p.PlayedCard = &played
	p.HasPlayed = true

	res := &PlayResult{Seat: seat}
	other := 1 - seat
	if !g.Players[other].HasPlayed {
		g.CurrentTurn = uint8(other)
	} else {
		r := resolveRound(g)
		res.Resolved = &r
		if g.CurrentRound >= g.TotalRounds || len(g.Players[0].Hand) == 0 || len(g.Players[1].Hand) == 0 {
			finish(g)
			res.Ended = true
		}
	}

	if err := g.Validate(s.vault.Balance); err != nil {
		return nil, err
	}
	s.game = g

	e.logger.Info("card played", "gameId", id, "player", actor, "card", card.String())
	if res.Resolved != nil {
		e.logger.Debug("round resolved", "gameId", id, "round", g.CurrentRound, "winner", res.Resolved.Winner)
	}
	if res.Ended {
		winner := ""
		if g.Winner != nil {
			winner = *g.Winner
		}
		e.logger.Info("game ended", "gameId", id, "winner", winner)
	}
	res.Game = g.Clone()
	return res, nil
}

// resolveRound scores both played cards, records the round and hands the lead
// to the round winner. A tied round passes the lead to the seat that played
// second.
func resolveRound(g *state.Game) state.Round {
	lead := int(g.LeadSeat)
	a, b := g.Players[0], g.Players[1]
	r := state.Round{Cards: [2]cards.Card{*a.PlayedCard, *b.PlayedCard}, Winner: state.NoSeat}
	switch cards.Compare(*a.PlayedCard, *b.PlayedCard) {
	case 1:
		r.Winner = 0
		a.RoundsWon++
	case -1:
		r.Winner = 1
		b.RoundsWon++
	}
	g.Rounds = append(g.Rounds, r)
	for _, p := range g.Players {
		p.HasPlayed = false
		p.PlayedCard = nil
	}
	g.CurrentRound++

	next := 1 - lead
	if r.Winner != state.NoSeat {
		next = r.Winner
	}
	g.LeadSeat = uint8(next)
	g.CurrentTurn = uint8(next)
	return r
}

func finish(g *state.Game) {
	g.Status = state.StatusEnded
	a, b := g.Players[0], g.Players[1]
	switch {
	case a.RoundsWon > b.RoundsWon:
		w := a.Identity
		g.Winner = &w
	case b.RoundsWon > a.RoundsWon:
		w := b.Identity
		g.Winner = &w
	}
}

// Receipt records one vault release.
type Receipt struct {
	GameID        uint64         `json:"gameId"`
	Claimant      string         `json:"claimant"`
	Payouts       []vault.Payout `json:"payouts"`
	VaultBalance  uint64         `json:"vaultBalance"`
	ResultClaimed bool           `json:"resultClaimed"`
}

// ClaimWinnings releases the vault of an ended game. A decisive game pays the
// whole pool to the winner. A tied game follows the TiePolicy recorded on it.
func (e *Engine) ClaimWinnings(ctx context.Context, actor string, id uint64) (_ *Receipt, err error) {
	defer e.logRejected("claim", id, actor, &err)
	if err := e.authorize(ctx, actor); err != nil {
		return nil, err
	}
	s, err := e.acquire(id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	cur := s.game
	if cur.Status != state.StatusEnded {
		return nil, ErrGameNotStarted.Wrapf("game %d has not ended", id)
	}
	if cur.ResultClaimed {
		return nil, ErrResultAlreadyClaimed.Wrapf("game %d", id)
	}

	g := cur.Clone()
	v := s.vault.Clone()
	var payouts []vault.Payout
	switch {
	case g.Winner != nil:
		if actor != *g.Winner {
			return nil, ErrOnlyWinnerCanClaim.Wrapf("game %d", id)
		}
		payouts = []vault.Payout{{To: actor, Amount: v.Balance}}
		g.ResultClaimed = true
	default:
		seat := g.Seat(actor)
		if seat < 0 {
			return nil, ErrPlayerNotInGame.Wrapf("%s in game %d", actor, id)
		}
		payouts, err = tiePayouts(g, v, seat)
		if err != nil {
			return nil, err
		}
	}

	paid, err := vault.Sum(payouts)
	if err != nil {
		return nil, err
	}
	if paid > v.Balance {
		return nil, vault.ErrInsufficientVault.Wrapf("game %d: have=%d need=%d", id, v.Balance, paid)
	}
	if err := g.Validate(v.Balance - paid); err != nil {
		return nil, err
	}
	if err := v.Release(e.bank, payouts); err != nil {
		return nil, err
	}
	s.game, s.vault = g, v

	e.logger.Info("winnings claimed", "gameId", id, "claimant", actor, "amount", paid, "vault", v.Balance)
	return &Receipt{
		GameID:        id,
		Claimant:      actor,
		Payouts:       payouts,
		VaultBalance:  v.Balance,
		ResultClaimed: g.ResultClaimed,
	}, nil
}

func tiePayouts(g *state.Game, v *vault.Vault, seat int) ([]vault.Payout, error) {
	me := g.Players[seat]
	other := g.Players[1-seat]
	if g.TiePolicy == TieRefund {
		var payouts []vault.Payout
		for _, p := range g.Players {
			if p.Claimed {
				continue
			}
			p.Claimed = true
			payouts = append(payouts, vault.Payout{To: p.Identity, Amount: p.Stake})
		}
		g.ResultClaimed = true
		return payouts, nil
	}

	if me.Claimed {
		return nil, ErrResultAlreadyClaimed.Wrapf("%s already took their share of game %d", me.Identity, g.ID)
	}
	share := g.TotalPool / 2
	if other.Claimed {
		share = v.Balance
	}
	me.Claimed = true
	if share == v.Balance {
		g.ResultClaimed = true
	}
	return []vault.Payout{{To: me.Identity, Amount: share}}, nil
}

// depositErr maps an unfunded stake to ErrInsufficientStake and passes every
// other bank failure through.
func depositErr(err error, who string, amount uint64) error {
	if errors.Is(err, state.ErrInsufficientFunds) {
		return ErrInsufficientStake.Wrapf("%s cannot fund stake %d", who, amount)
	}
	return err
}
