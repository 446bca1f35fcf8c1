package engine

import "fmt"

// checkTurn validates that the session is live and the seat owns the turn in
// the expected stage. All actions start here, so a validation failure never
// mutates anything.
func (g *GameState) checkTurn(seat uint8, stage Stage) error {
	if g.Status != StatusPlaying {
		return fmt.Errorf("%w: status is %s", ErrWrongStatus, g.Status)
	}
	if seat >= g.NumSeats {
		return fmt.Errorf("%w: seat %d of %d", ErrInvalidSeat, seat, g.NumSeats)
	}
	if seat != g.ActiveSeat {
		return fmt.Errorf("%w: seat %d acting on seat %d's turn", ErrNotYourTurn, seat, g.ActiveSeat)
	}
	if g.Stage != stage {
		return fmt.Errorf("%w: stage is %s, need %s", ErrWrongStage, g.Stage, stage)
	}
	return nil
}

// Draw takes one card from the chosen source into the active seat's hand and
// moves the turn to the play stage.
//
// Drawing from an empty draw pile reshuffles the discard pile (all cards
// except its top) into a new draw pile first; if the discard pile holds at
// most one card this fails with ErrDrawExhausted.
func (g *GameState) Draw(seat uint8, source DrawSource) error {
	if err := g.checkTurn(seat, StageDraw); err != nil {
		return err
	}

	var drawn Card
	switch source {
	case SourceDiscard:
		if g.DiscardLen == 0 {
			return ErrEmptyDiscard
		}
		top := g.DiscardPile[g.DiscardLen-1]
		if top.IsSkip() && !g.Rules.AllowSkipPickup {
			return ErrSkipPickup
		}
		g.DiscardLen--
		drawn = top

	case SourcePile:
		if g.DrawLen == 0 {
			if g.DiscardLen <= 1 {
				return ErrDrawExhausted
			}
			g.reshuffleDiscard()
		}
		g.DrawLen--
		drawn = g.DrawPile[g.DrawLen]

	default:
		return fmt.Errorf("%w: %d", ErrInvalidSource, source)
	}

	g.Players[seat].Hand = append(g.Players[seat].Hand, drawn)
	g.Stage = StagePlay
	return nil
}

// reshuffleDiscard moves every discard card except the top into a new
// shuffled draw pile, leaving the former top as the sole discard entry.
func (g *GameState) reshuffleDiscard() {
	top := g.DiscardPile[g.DiscardLen-1]
	recycled := Shuffle(g.DiscardPile[:g.DiscardLen-1], &g.RNG)
	copy(g.DrawPile[:], recycled)
	g.DrawLen = uint8(len(recycled))
	g.DiscardPile[0] = top
	g.DiscardLen = 1
}

// LayDown commits cardGroups against the seat's current phase. The flattened
// cards are matched by the phase matcher; on success exactly those cards
// leave the hand and the returned groups (with their requirement kinds)
// become the seat's lay-down. A seat lays down at most once per round.
//
// On any failure the hand and groups are untouched.
func (g *GameState) LayDown(seat uint8, cardGroups [][]Card) error {
	if err := g.checkTurn(seat, StagePlay); err != nil {
		return err
	}
	if g.Players[seat].HasLaidDown() {
		return fmt.Errorf("%w: seat %d", ErrAlreadyLaid, seat)
	}

	var flat []Card
	for _, grp := range cardGroups {
		flat = append(flat, grp...)
	}

	// Every proposed card must come from the hand, each id at most once.
	seen := make(map[Card]bool, len(flat))
	for _, c := range flat {
		if seen[c] {
			return fmt.Errorf("%w: card %s proposed twice", ErrCardNotInHand, c)
		}
		seen[c] = true
		if !g.handContains(seat, c) {
			return fmt.Errorf("%w: %s", ErrCardNotInHand, c)
		}
	}

	phase := g.CurrentPhase(seat)
	if phase == nil {
		return fmt.Errorf("%w: seat %d has no phase left", ErrWrongStatus, seat)
	}
	groups, err := MatchPhase(flat, phase)
	if err != nil {
		return err
	}

	for _, c := range flat {
		g.removeFromHand(seat, c)
	}
	g.Players[seat].Groups = groups
	return nil
}

// Hit moves one card from the acting seat's hand onto the end of another
// seat's laid-down group. The acting seat must have laid down this round;
// the target group's recorded kind (or, for groups of unknown origin, the
// inferred kind) decides whether the card extends it.
func (g *GameState) Hit(actingSeat, targetSeat uint8, groupIndex int, card Card) error {
	if err := g.checkTurn(actingSeat, StagePlay); err != nil {
		return err
	}
	if !g.Players[actingSeat].HasLaidDown() {
		return fmt.Errorf("%w: seat %d", ErrNotLaidDown, actingSeat)
	}
	if targetSeat >= g.NumSeats {
		return fmt.Errorf("%w: seat %d", ErrInvalidTarget, targetSeat)
	}
	target := &g.Players[targetSeat]
	if !target.HasLaidDown() {
		return fmt.Errorf("%w: seat %d has not laid down", ErrInvalidTarget, targetSeat)
	}
	if groupIndex < 0 || groupIndex >= len(target.Groups) {
		return fmt.Errorf("%w: group %d of %d", ErrInvalidTarget, groupIndex, len(target.Groups))
	}
	if !g.handContains(actingSeat, card) {
		return fmt.Errorf("%w: %s", ErrCardNotInHand, card)
	}

	grp := &target.Groups[groupIndex]
	kind := grp.Kind
	if kind == KindUnknown {
		inferred, ok := InferGroupKind(grp.Cards)
		if !ok {
			return fmt.Errorf("%w: group type undecidable", ErrInvalidHit)
		}
		kind = inferred
	}
	if !CanExtend(card, grp.Cards, kind) {
		return fmt.Errorf("%w: %s onto %s group", ErrInvalidHit, card, kind)
	}

	g.removeFromHand(actingSeat, card)
	grp.Cards = append(grp.Cards, card)
	g.Players[actingSeat].HitCards = append(g.Players[actingSeat].HitCards, card)
	return nil
}

// Discard moves a card from the active seat's hand to the discard pile and
// ends the turn. An emptied hand ends the round instead of advancing; a
// discarded skip card skips the next seat. Round end takes precedence over
// the skip effect when a skip is the final card.
func (g *GameState) Discard(seat uint8, card Card) error {
	if err := g.checkTurn(seat, StagePlay); err != nil {
		return err
	}
	if !g.handContains(seat, card) {
		return fmt.Errorf("%w: %s", ErrCardNotInHand, card)
	}

	g.removeFromHand(seat, card)
	g.DiscardPile[g.DiscardLen] = card
	g.DiscardLen++

	if len(g.Players[seat].Hand) == 0 {
		g.endRound()
		return nil
	}

	next := g.NextSeat(seat)
	if card.IsSkip() {
		next = g.NextSeat(next)
	}
	g.ActiveSeat = next
	g.Stage = StageDraw
	return nil
}

// ForceAdvance passes the turn without any card movement. It exists for the
// surrounding system's inactivity policy (skipping a disconnected or
// timed-out seat); the engine itself never invokes it. seat must name the
// current active seat so stale requests are rejected.
func (g *GameState) ForceAdvance(seat uint8) error {
	if g.Status != StatusPlaying {
		return fmt.Errorf("%w: status is %s", ErrWrongStatus, g.Status)
	}
	if seat >= g.NumSeats {
		return fmt.Errorf("%w: seat %d of %d", ErrInvalidSeat, seat, g.NumSeats)
	}
	if seat != g.ActiveSeat {
		return fmt.Errorf("%w: active seat is %d", ErrNotYourTurn, g.ActiveSeat)
	}
	g.ActiveSeat = g.NextSeat(seat)
	g.Stage = StageDraw
	return nil
}
