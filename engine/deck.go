package engine

// ---------------------------------------------------------------------------
// xorshift64 RNG — inline, no interface
// ---------------------------------------------------------------------------

func nextRand(state *uint64) uint64 {
	x := *state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*state = x
	return x
}

// randN returns a random number in [0, n).
func randN(state *uint64, n uint64) uint64 {
	return nextRand(state) % n
}

// Shuffle returns a uniformly random permutation of cards (Fisher–Yates).
// The input slice is not mutated; the multiset of card identities is
// preserved exactly.
func Shuffle(cards []Card, state *uint64) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)
	for i := len(out) - 1; i > 0; i-- {
		j := int(randN(state, uint64(i+1)))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DealHands deals playerCount hands of handSize cards each, consuming from
// the front of the (already shuffled) deck. The remainder is returned as the
// draw pile. Cards are dealt one at a time around the table.
func DealHands(deck []Card, playerCount, handSize int) (hands [][]Card, drawPile []Card) {
	hands = make([][]Card, playerCount)
	for p := range hands {
		hands[p] = make([]Card, 0, handSize)
	}
	idx := 0
	for c := 0; c < handSize; c++ {
		for p := 0; p < playerCount; p++ {
			hands[p] = append(hands[p], deck[idx])
			idx++
		}
	}
	drawPile = make([]Card, len(deck)-idx)
	copy(drawPile, deck[idx:])
	return hands, drawPile
}
