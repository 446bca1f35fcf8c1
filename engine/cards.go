// Package engine implements the Phase 10 card game rules.
//
// The engine is a pure, synchronous rule core: every action is a
// (state, action) → (new state | error) transformation with no I/O and no
// internal concurrency. The service adapter owns persistence, timers, and
// fan-out to observers, and commits engine state only when an action
// succeeds.
package engine

const (
	// DeckSize is the canonical deck: 96 numbered + 8 wild + 4 skip.
	DeckSize = 108

	NumColors = 4
	MaxRank   = 12

	MaxPlayers = 6
	HandSize   = 10
)

// Color constants.
const (
	ColorRed    uint8 = 0
	ColorBlue   uint8 = 1
	ColorGreen  uint8 = 2
	ColorYellow uint8 = 3
)

// Card is an index into the canonical 108-card deck. The index itself is the
// card's unique identity, so two copies of the same color/rank are distinct
// cards and "no card id appears in more than one location" is checkable by
// value.
//
// Layout:
//
//	0–95    numbered: id = color*24 + (rank-1)*2 + copy
//	96–103  wild
//	104–107 skip
type Card uint8

// EmptyCard represents the absence of a card.
const EmptyCard Card = 0xFF

const (
	wildBase uint8 = 96
	skipBase uint8 = 104
)

// IsWild reports whether the card is a wild.
func (c Card) IsWild() bool { return uint8(c) >= wildBase && uint8(c) < skipBase }

// IsSkip reports whether the card is a skip.
func (c Card) IsSkip() bool { return uint8(c) >= skipBase && uint8(c) < DeckSize }

// IsNumbered reports whether the card is a plain numbered card.
func (c Card) IsNumbered() bool { return uint8(c) < wildBase }

// Color returns the card's color. Only meaningful for numbered cards.
func (c Card) Color() uint8 { return uint8(c) / 24 }

// Rank returns the card's rank 1–12. Only meaningful for numbered cards.
func (c Card) Rank() uint8 { return (uint8(c)%24)/2 + 1 }

// Value returns the point value of the card:
//   - ranks 1–9 → 5
//   - ranks 10–12 → 10
//   - skip → 15
//   - wild → 25
func (c Card) Value() int16 {
	switch {
	case c.IsWild():
		return 25
	case c.IsSkip():
		return 15
	case c.Rank() <= 9:
		return 5
	default:
		return 10
	}
}

// colorNames indexed by Color().
var colorNames = [NumColors]string{"red", "blue", "green", "yellow"}

// ColorName returns the lowercase color name for a numbered card.
func ColorName(color uint8) string {
	if color < NumColors {
		return colorNames[color]
	}
	return "?"
}

// String returns a short human-readable form, e.g. "red-7", "wild", "skip".
func (c Card) String() string {
	switch {
	case c == EmptyCard:
		return "empty"
	case c.IsWild():
		return "wild"
	case c.IsSkip():
		return "skip"
	default:
		return ColorName(c.Color()) + "-" + itoa(c.Rank())
	}
}

// itoa formats a rank 1–12 without pulling in strconv for two digits.
func itoa(n uint8) string {
	if n < 10 {
		return string([]byte{'0' + n})
	}
	return string([]byte{'1', '0' + n - 10})
}

// BuildDeck returns the canonical 108-card deck in deterministic order:
// for each of the 4 colors, ranks 1–12 twice, then 8 wilds, then 4 skips.
// Card identities are unique by construction.
func BuildDeck() []Card {
	deck := make([]Card, DeckSize)
	for i := range deck {
		deck[i] = Card(i)
	}
	return deck
}

// HandScore sums point values over all cards in a hand.
func HandScore(hand []Card) int16 {
	var total int16
	for _, c := range hand {
		total += c.Value()
	}
	return total
}
