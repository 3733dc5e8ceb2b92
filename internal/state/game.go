package state

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"

	"stakecardgame/apps/chain/internal/cards"
)

const codespace = "state"

var ErrInvariant = errorsmod.Register(codespace, 2, "game invariant violated")

type GameStatus string

const (
	StatusWaitingForPlayer GameStatus = "waitingForPlayer"
	StatusInProgress       GameStatus = "inProgress"
	StatusEnded            GameStatus = "ended"
)

// TiePolicy decides how the vault is released when a game ends without a
// winner. It is fixed on the game at creation.
type TiePolicy string

const (
	// TieSplit lets each player claim half the pool in a separate claim. The
	// second claimant drains whatever is left.
	TieSplit TiePolicy = "split"
	// TieRefund returns every unclaimed stake in the first claim made by
	// either player.
	TieRefund TiePolicy = "refund"
)

func (p TiePolicy) Valid() bool {
	return p == TieSplit || p == TieRefund
}

const (
	MaxPlayers = 2

	// NoSeat marks a tied round.
	NoSeat = -1
)

type Player struct {
	Identity   string       `json:"identity"`
	Hand       []cards.Card `json:"hand"`
	Stake      uint64       `json:"stake"`
	HasPlayed  bool         `json:"hasPlayed"`
	PlayedCard *cards.Card  `json:"playedCard,omitempty"`
	RoundsWon  uint8        `json:"roundsWon"`

	// Claimed is only used when a tied game is split: each player withdraws
	// their own share once.
	Claimed bool `json:"claimed,omitempty"`
}

// HandIndex returns the position of c in the hand or -1.
func (p *Player) HandIndex(c cards.Card) int {
	for i, h := range p.Hand {
		if h == c {
			return i
		}
	}
	return -1
}

// Round is the audit record of one resolved round.
type Round struct {
	Cards  [2]cards.Card `json:"cards"`
	Winner int           `json:"winner"` // seat, or NoSeat on a tie
}

type Game struct {
	ID           uint64     `json:"id"`
	Creator      string     `json:"creator"`
	Players      []*Player  `json:"players"`
	Status       GameStatus `json:"status"`
	CurrentRound uint8      `json:"currentRound"`
	TotalRounds  uint8      `json:"totalRounds"`
	StakeAmount  uint64     `json:"stakeAmount"`
	TotalPool    uint64     `json:"totalPool"`
	TiePolicy    TiePolicy  `json:"tiePolicy"`

	// CurrentTurn is the seat whose play is valid next. LeadSeat is the seat
	// that opened the current round.
	CurrentTurn uint8 `json:"currentTurn"`
	LeadSeat    uint8 `json:"leadSeat"`

	Winner        *string `json:"winner,omitempty"`
	ResultClaimed bool    `json:"resultClaimed"`

	Deck   []cards.Card `json:"deck"`
	Rounds []Round      `json:"rounds,omitempty"`

	CreatedHeight int64 `json:"createdHeight,omitempty"`
}

// Seat returns the seat index of identity or -1.
func (g *Game) Seat(identity string) int {
	for i, p := range g.Players {
		if p.Identity == identity {
			return i
		}
	}
	return -1
}

func (g *Game) IsPlayer(identity string) bool {
	return g.Seat(identity) >= 0
}

// Clone returns a deep copy suitable for staged mutation.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	out := *g
	out.Players = make([]*Player, len(g.Players))
	for i, p := range g.Players {
		cp := *p
		cp.Hand = append([]cards.Card(nil), p.Hand...)
		if p.PlayedCard != nil {
			c := *p.PlayedCard
			cp.PlayedCard = &c
		}
		out.Players[i] = &cp
	}
	if g.Winner != nil {
		w := *g.Winner
		out.Winner = &w
	}
	out.Deck = append([]cards.Card(nil), g.Deck...)
	out.Rounds = append([]Round(nil), g.Rounds...)
	return &out
}

func (g *Game) anyClaimed() bool {
	for _, p := range g.Players {
		if p.Claimed {
			return true
		}
	}
	return false
}

// Validate checks every invariant that must hold at an observable boundary.
// vaultBalance is the balance of the vault bound to this game.
func (g *Game) Validate(vaultBalance uint64) error {
	fail := func(format string, args ...any) error {
		return ErrInvariant.Wrapf("game %d: "+format, append([]any{g.ID}, args...)...)
	}

	n := len(g.Players)
	if n == 0 || n > MaxPlayers {
		return fail("players=%d", n)
	}
	switch g.Status {
	case StatusWaitingForPlayer:
		if n != 1 {
			return fail("waiting with %d players", n)
		}
	case StatusInProgress, StatusEnded:
		if n != 2 {
			return fail("%s with %d players", g.Status, n)
		}
	default:
		return fail("unknown status %q", g.Status)
	}
	if !g.TiePolicy.Valid() {
		return fail("unknown tie policy %q", g.TiePolicy)
	}
	if g.Players[0].Identity != g.Creator {
		return fail("seat 0 is not the creator")
	}
	if n == 2 && g.Players[0].Identity == g.Players[1].Identity {
		return fail("duplicate player")
	}
	if g.Status == StatusInProgress && int(g.CurrentTurn) >= n {
		return fail("currentTurn=%d", g.CurrentTurn)
	}

	var staked uint64
	for _, p := range g.Players {
		if p.Stake != g.StakeAmount {
			return fail("player %s stake=%d want %d", p.Identity, p.Stake, g.StakeAmount)
		}
		staked += p.Stake
	}
	if g.TotalPool != staked {
		return fail("totalPool=%d staked=%d", g.TotalPool, staked)
	}
	switch {
	case g.ResultClaimed:
		if vaultBalance != 0 {
			return fail("claimed with vault balance %d", vaultBalance)
		}
	case g.anyClaimed():
		if vaultBalance >= g.TotalPool {
			return fail("partial claim left vault at %d of %d", vaultBalance, g.TotalPool)
		}
	default:
		if vaultBalance != g.TotalPool {
			return fail("totalPool=%d vault=%d", g.TotalPool, vaultBalance)
		}
	}
	if g.ResultClaimed && g.Status != StatusEnded {
		return fail("claimed before end")
	}

	if g.CurrentRound > g.TotalRounds {
		return fail("currentRound=%d > totalRounds=%d", g.CurrentRound, g.TotalRounds)
	}
	if int(g.CurrentRound) != len(g.Rounds) {
		return fail("currentRound=%d rounds recorded=%d", g.CurrentRound, len(g.Rounds))
	}
	if n == 2 && (g.Status == StatusEnded) != (g.CurrentRound == g.TotalRounds) {
		return fail("status=%s at round %d/%d", g.Status, g.CurrentRound, g.TotalRounds)
	}
	if g.Winner != nil {
		if g.Status != StatusEnded {
			return fail("winner set before end")
		}
		if !g.IsPlayer(*g.Winner) {
			return fail("winner %s is not a player", *g.Winner)
		}
	}

	var (
		played  int
		wins    int
		seen    = make(map[cards.Card]bool, cards.DeckSize)
		dupCard *cards.Card
	)
	mark := func(c cards.Card) {
		if seen[c] && dupCard == nil {
			cc := c
			dupCard = &cc
		}
		seen[c] = true
	}
	for _, c := range g.Deck {
		mark(c)
	}
	for _, r := range g.Rounds {
		mark(r.Cards[0])
		mark(r.Cards[1])
	}
	for _, p := range g.Players {
		if p.HasPlayed != (p.PlayedCard != nil) {
			return fail("player %s hasPlayed=%v playedCard=%v", p.Identity, p.HasPlayed, p.PlayedCard)
		}
		if p.HasPlayed {
			played++
			mark(*p.PlayedCard)
		}
		for _, c := range p.Hand {
			mark(c)
		}
		if n == 2 {
			want := int(g.TotalRounds) - int(g.CurrentRound)
			if p.HasPlayed {
				want--
			}
			if len(p.Hand) != want {
				return fail("player %s hand=%d want %d", p.Identity, len(p.Hand), want)
			}
		} else if len(p.Hand) != 0 {
			return fail("hand dealt before join")
		}
		wins += int(p.RoundsWon)
	}
	if played > 1 {
		return fail("unresolved round with both cards played")
	}
	if wins > len(g.Rounds) {
		return fail("round wins %d exceed rounds %d", wins, len(g.Rounds))
	}
	if dupCard != nil {
		return fail("card %s appears twice", *dupCard)
	}
	if len(seen) != cards.DeckSize {
		return fail("card set has %d cards", len(seen))
	}
	return nil
}

// String is a compact description used in logs.
func (g *Game) String() string {
	if g == nil {
		return "<nil game>"
	}
	return fmt.Sprintf("game{id=%d status=%s round=%d/%d pool=%d}", g.ID, g.Status, g.CurrentRound, g.TotalRounds, g.TotalPool)
}
