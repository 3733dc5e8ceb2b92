package cards

import (
	"fmt"
	"strings"
)

type Suit uint8

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

// Suits lists the four suits in deck order.
var Suits = [4]Suit{Hearts, Diamonds, Clubs, Spades}

func (s Suit) String() string {
	switch s {
	case Hearts:
		return "hearts"
	case Diamonds:
		return "diamonds"
	case Clubs:
		return "clubs"
	case Spades:
		return "spades"
	default:
		return fmt.Sprintf("suit(%d)", uint8(s))
	}
}

func (s Suit) Valid() bool {
	return s <= Spades
}

func ParseSuit(raw string) (Suit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hearts", "h":
		return Hearts, nil
	case "diamonds", "d":
		return Diamonds, nil
	case "clubs", "c":
		return Clubs, nil
	case "spades", "s":
		return Spades, nil
	default:
		return 0, fmt.Errorf("unknown suit %q", raw)
	}
}

func (s Suit) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid suit %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Suit) UnmarshalText(b []byte) error {
	parsed, err := ParseSuit(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

const (
	MinValue uint8 = 1  // ace
	MaxValue uint8 = 13 // king

	// DeckSize is the size of the fixed card domain.
	DeckSize = 52
)

// Card is immutable once dealt. Equality is structural.
type Card struct {
	Suit  Suit  `json:"suit"`
	Value uint8 `json:"value"`
}

func (c Card) Valid() bool {
	return c.Suit.Valid() && c.Value >= MinValue && c.Value <= MaxValue
}

// Score ranks a card for round comparison. Aces are high.
func (c Card) Score() uint8 {
	if c.Value == 1 {
		return 14
	}
	return c.Value
}

// Index maps a valid card onto 0..51 and returns -1 for an invalid one.
func (c Card) Index() int {
	if !c.Valid() {
		return -1
	}
	return int(c.Suit)*13 + int(c.Value) - 1
}

func (c Card) String() string {
	var r string
	switch c.Value {
	case 1:
		r = "A"
	case 11:
		r = "J"
	case 12:
		r = "Q"
	case 13:
		r = "K"
	case 10:
		r = "T"
	default:
		r = fmt.Sprintf("%d", c.Value)
	}
	if !c.Suit.Valid() {
		return r + "?"
	}
	return r + c.Suit.String()[:1]
}

// Compare returns 1 if a outscores b, -1 if b outscores a and 0 on equal scores.
// Suits never break ties.
func Compare(a, b Card) int {
	sa, sb := a.Score(), b.Score()
	switch {
	case sa > sb:
		return 1
	case sb > sa:
		return -1
	default:
		return 0
	}
}
