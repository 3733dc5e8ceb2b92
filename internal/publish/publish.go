// Package publish fans committed game updates out to NATS subjects.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"

	"cosmossdk.io/log"

	"stakecardgame/apps/chain/internal/state"
)

// Conn is the subset of *nats.Conn the notifier needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

const (
	MsgGameUpdated = "GAME_UPDATED"
	MsgGameEnded   = "GAME_ENDED"
)

// Message is the payload published on every subject.
type Message struct {
	Type   string          `json:"type"`
	Height int64           `json:"height"`
	Data   json.RawMessage `json:"data"`
}

// GameView is the committed state of one game and its escrow.
type GameView struct {
	Game         *state.Game `json:"game"`
	VaultBalance uint64      `json:"vaultBalance"`
}

// Notifier publishes a game to <prefix>.game.<id> and to
// <prefix>.player.<identity> for each seated player. A nil conn makes every
// call a no-op.
type Notifier struct {
	conn   Conn
	prefix string
	logger log.Logger
}

func NewNotifier(conn Conn, prefix string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "scg"
	}
	return &Notifier{conn: conn, prefix: prefix, logger: logger.With("module", "publish")}
}

func (n *Notifier) Enabled() bool { return n != nil && n.conn != nil }

func (n *Notifier) GameSubject(id uint64) string {
	return fmt.Sprintf("%s.game.%d", n.prefix, id)
}

func (n *Notifier) PlayerSubject(identity string) string {
	return n.prefix + ".player." + subjectToken(identity)
}

// GameUpdated publishes view on every subject interested in the game. The
// first publish error is returned after all subjects were attempted.
func (n *Notifier) GameUpdated(height int64, view GameView) error {
	if !n.Enabled() || view.Game == nil {
		return nil
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode game %d: %w", view.Game.ID, err)
	}
	typ := MsgGameUpdated
	if view.Game.Status == state.StatusEnded {
		typ = MsgGameEnded
	}
	msg, err := json.Marshal(Message{Type: typ, Height: height, Data: data})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	subjects := []string{n.GameSubject(view.Game.ID)}
	for _, p := range view.Game.Players {
		subjects = append(subjects, n.PlayerSubject(p.Identity))
	}
	var firstErr error
	for _, subj := range subjects {
		if err := n.conn.Publish(subj, msg); err != nil {
			n.logger.Error("publish failed", "subject", subj, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("publish %s: %w", subj, err)
			}
		}
	}
	return firstErr
}

// subjectToken maps an identity onto a single NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
