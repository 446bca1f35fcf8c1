package engine

import "fmt"

// Status is the lifecycle state of a game session.
type Status uint8

const (
	StatusLobby Status = iota
	StatusPlaying
	StatusFinished
	StatusAbandoned
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusLobby:
		return "lobby"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Stage is the turn phase within one seat's turn. Discarding folds directly
// back into StageDraw for the next active seat, so Draw and Play are the only
// externally observable stages.
type Stage uint8

const (
	StageDraw Stage = iota
	StagePlay
)

// String returns the wire name of the stage.
func (s Stage) String() string {
	if s == StagePlay {
		return "play"
	}
	return "draw"
}

// DrawSource selects where a draw takes its card from.
type DrawSource uint8

const (
	SourcePile DrawSource = iota
	SourceDiscard
)

// HouseRules holds configurable game rule settings.
type HouseRules struct {
	SeatCapacity    uint8 // maximum seats in the session (2–6)
	HandSize        uint8 // cards dealt per player at round start; 0 = 10
	AllowSkipPickup bool  // if true, a skip card may be drawn from the discard pile
}

// DefaultHouseRules returns the standard Phase 10 rules.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		SeatCapacity:    MaxPlayers,
		HandSize:        HandSize,
		AllowSkipPickup: false,
	}
}

// handSize returns the effective deal size, treating 0 as the standard 10.
func (r *HouseRules) handSize() uint8 {
	if r.HandSize == 0 {
		return HandSize
	}
	return r.HandSize
}

// PlayerState holds one seat's per-session and per-round state. Hand, Groups,
// and HitCards reset at round boundaries; Score and PhaseIdx persist.
type PlayerState struct {
	Hand     []Card
	PhaseIdx uint8
	// Groups is nil until the seat lays down this round; a non-nil value is
	// the committed lay-down. The "has laid down" flag is derived, so a set
	// flag with no groups is unrepresentable.
	Groups   []Group
	HitCards []Card // record of cards this seat hit onto groups this round
	Score    int16
}

// HasLaidDown reports whether the seat has laid down this round.
func (p *PlayerState) HasLaidDown() bool { return p.Groups != nil }

// GameState holds the complete, self-contained state of one Phase 10 session.
// All action methods validate fully before mutating, so a returned error
// guarantees the state is unchanged. The adapter additionally works on a
// Clone and commits only on success.
type GameState struct {
	Status     Status
	Round      uint16
	ActiveSeat uint8
	Stage      Stage

	// Piles are stacks with the top at the end.
	DrawPile    [DeckSize]Card
	DrawLen     uint8
	DiscardPile [DeckSize]Card
	DiscardLen  uint8

	Players  [MaxPlayers]PlayerState
	NumSeats uint8

	Phases PhaseSet
	Rules  HouseRules

	RNG    uint64
	Winner int8 // winning seat once finished; -1 otherwise
}

// NewGame initializes a session in the lobby state. phases must be non-empty;
// a nil phases uses the default ladder.
func NewGame(seed uint64, rules HouseRules, phases PhaseSet) GameState {
	g := GameState{
		Status: StatusLobby,
		Rules:  rules,
		Phases: phases,
		RNG:    seed,
		Winner: -1,
	}
	if g.RNG == 0 {
		g.RNG = 1 // xorshift can't start at 0
	}
	if g.Phases == nil {
		g.Phases = DefaultPhaseSet()
	}
	return g
}

// Start moves the session from lobby to playing with numSeats seats and
// deals the first round.
func (g *GameState) Start(numSeats uint8) error {
	if g.Status != StatusLobby {
		return fmt.Errorf("%w: status is %s", ErrWrongStatus, g.Status)
	}
	if numSeats < 2 || numSeats > MaxPlayers || numSeats > g.Rules.SeatCapacity {
		return fmt.Errorf("%w: %d seats (capacity %d)", ErrInvalidSeat, numSeats, g.Rules.SeatCapacity)
	}
	// The deal plus the opening discard card must fit the deck.
	if int(numSeats)*int(g.Rules.handSize())+1 > DeckSize {
		return fmt.Errorf("%w: %d seats x %d cards", ErrHandTooLarge, numSeats, g.Rules.handSize())
	}
	g.NumSeats = numSeats
	g.Status = StatusPlaying
	g.Round = 1
	g.startRound()
	return nil
}

// startRound shuffles a fresh deck, deals hands, and establishes the discard
// pile. Per-round player state is reset; scores and phase indices persist.
func (g *GameState) startRound() {
	deck := Shuffle(BuildDeck(), &g.RNG)
	hands, pile := DealHands(deck, int(g.NumSeats), int(g.Rules.handSize()))

	for s := uint8(0); s < MaxPlayers; s++ {
		g.Players[s].Hand = nil
		g.Players[s].Groups = nil
		g.Players[s].HitCards = nil
	}
	for s := uint8(0); s < g.NumSeats; s++ {
		g.Players[s].Hand = hands[s]
	}

	g.DrawLen = uint8(len(pile))
	copy(g.DrawPile[:], pile)

	// Flip cards until a non-skip card starts the discard pile; skips are
	// tucked under the draw pile so the discard pile never opens on a skip.
	g.DiscardLen = 0
	for g.DrawLen > 0 {
		g.DrawLen--
		top := g.DrawPile[g.DrawLen]
		if !top.IsSkip() {
			g.DiscardPile[0] = top
			g.DiscardLen = 1
			break
		}
		copy(g.DrawPile[1:g.DrawLen+1], g.DrawPile[:g.DrawLen])
		g.DrawPile[0] = top
		g.DrawLen++
	}

	g.ActiveSeat = 0
	g.Stage = StageDraw
}

// Clone returns a deep copy of the state. The fixed-size piles copy by
// value; player slices are duplicated.
func (g *GameState) Clone() GameState {
	cp := *g
	for s := range cp.Players {
		p := &cp.Players[s]
		p.Hand = append([]Card(nil), p.Hand...)
		p.HitCards = append([]Card(nil), p.HitCards...)
		if p.Groups != nil {
			groups := make([]Group, len(p.Groups))
			for i, grp := range p.Groups {
				groups[i] = Group{Kind: grp.Kind, Cards: append([]Card(nil), grp.Cards...)}
			}
			p.Groups = groups
		}
	}
	cp.Phases = append(PhaseSet(nil), g.Phases...)
	return cp
}

// Abandon marks the session abandoned. Terminal states stay terminal.
func (g *GameState) Abandon() {
	if g.Status == StatusFinished {
		return
	}
	g.Status = StatusAbandoned
}

// DiscardTop returns the top of the discard pile, or EmptyCard if empty.
func (g *GameState) DiscardTop() Card {
	if g.DiscardLen == 0 {
		return EmptyCard
	}
	return g.DiscardPile[g.DiscardLen-1]
}

// CurrentPhase returns the given seat's current phase requirements, or nil
// once the seat has completed the ladder.
func (g *GameState) CurrentPhase(seat uint8) Phase {
	idx := g.Players[seat].PhaseIdx
	if int(idx) >= len(g.Phases) {
		return nil
	}
	return g.Phases[idx]
}

// NextSeat returns the seat after the given seat in turn order.
func (g *GameState) NextSeat(seat uint8) uint8 {
	return (seat + 1) % g.NumSeats
}

// cardCount tallies every card location for the conservation invariant:
// draw pile + discard pile + hands + laid-down groups must total DeckSize
// during an active round. HitCards is a record, not a location; hit cards
// live in the target seat's group.
func (g *GameState) cardCount() int {
	n := int(g.DrawLen) + int(g.DiscardLen)
	for s := uint8(0); s < g.NumSeats; s++ {
		n += len(g.Players[s].Hand)
		for _, grp := range g.Players[s].Groups {
			n += len(grp.Cards)
		}
	}
	return n
}

// removeFromHand removes the first occurrence of card from the seat's hand.
// Returns false if the card is not present.
func (g *GameState) removeFromHand(seat uint8, card Card) bool {
	hand := g.Players[seat].Hand
	for i, c := range hand {
		if c == card {
			g.Players[seat].Hand = append(hand[:i], hand[i+1:]...)
			return true
		}
	}
	return false
}

// handContains reports whether the seat's hand holds the card.
func (g *GameState) handContains(seat uint8, card Card) bool {
	for _, c := range g.Players[seat].Hand {
		if c == card {
			return true
		}
	}
	return false
}
