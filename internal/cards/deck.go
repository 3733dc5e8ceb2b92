package cards

import (
	"crypto/sha256"
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
)

const codespace = "cards"

var (
	ErrInsufficientDeckSize = errorsmod.Register(codespace, 2, "insufficient deck size")
	ErrEmptySeed            = errorsmod.Register(codespace, 3, "empty shuffle seed")
)

// NewDeck returns the 52-card domain in suit-major order.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for v := MinValue; v <= MaxValue; v++ {
			deck = append(deck, Card{Suit: s, Value: v})
		}
	}
	return deck
}

// Shuffle returns a permutation of the full deck. The permutation is a pure
// function of seed: Fisher-Yates driven by sha256(seed||counter).
func Shuffle(seed []byte) ([]Card, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	deck := NewDeck()
	var counter uint64
	buf := make([]byte, len(seed)+8)
	copy(buf, seed)
	for i := len(deck) - 1; i > 0; i-- {
		binary.LittleEndian.PutUint64(buf[len(seed):], counter)
		h := sha256.Sum256(buf)
		counter++
		j := int(binary.LittleEndian.Uint64(h[:8]) % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck, nil
}

// Cut rotates deck left by an offset derived from seed. The card set is
// unchanged; only the position dealing starts from moves.
func Cut(deck []Card, seed []byte) []Card {
	out := make([]Card, len(deck))
	if len(deck) == 0 {
		return out
	}
	h := sha256.Sum256(seed)
	off := int(binary.LittleEndian.Uint64(h[:8]) % uint64(len(deck)))
	copy(out, deck[off:])
	copy(out[len(deck)-off:], deck[:off])
	return out
}

// Deal draws two hands of handSize cards, alternating between the hands, from
// the top of deck. rest holds the undealt remainder in order.
func Deal(deck []Card, handSize int) (hand0, hand1, rest []Card, err error) {
	if handSize <= 0 {
		return nil, nil, nil, ErrInsufficientDeckSize.Wrapf("hand size %d", handSize)
	}
	if 2*handSize > len(deck) || 2*handSize > DeckSize {
		return nil, nil, nil, ErrInsufficientDeckSize.Wrapf("need %d cards, deck has %d", 2*handSize, len(deck))
	}
	hand0 = make([]Card, 0, handSize)
	hand1 = make([]Card, 0, handSize)
	for i := 0; i < 2*handSize; i++ {
		if i%2 == 0 {
			hand0 = append(hand0, deck[i])
		} else {
			hand1 = append(hand1, deck[i])
		}
	}
	rest = append([]Card(nil), deck[2*handSize:]...)
	return hand0, hand1, rest, nil
}

// CheckHandSize reports whether two hands of handSize fit the card domain.
func CheckHandSize(handSize int) error {
	if handSize <= 0 || 2*handSize > DeckSize {
		return ErrInsufficientDeckSize.Wrapf("%d rounds need %d cards", handSize, 2*handSize)
	}
	return nil
}
