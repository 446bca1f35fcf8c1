package engine

// endRound scores every seat, advances the phases of seats that laid down,
// and either finishes the match or deals a new round. Called when the active
// seat's discard empties their hand.
func (g *GameState) endRound() {
	for s := uint8(0); s < g.NumSeats; s++ {
		p := &g.Players[s]
		p.Score += HandScore(p.Hand)
		if p.HasLaidDown() {
			p.PhaseIdx++
		}
	}

	if winner, ok := g.findWinner(); ok {
		g.Winner = int8(winner)
		g.Status = StatusFinished
		return
	}

	g.Round++
	g.startRound()
}

// findWinner returns the seat that completed the phase ladder this round.
// If several seats finish in the same round, the lowest cumulative score
// wins; a remaining tie goes to the lowest seat index.
func (g *GameState) findWinner() (uint8, bool) {
	found := false
	var winner uint8
	for s := uint8(0); s < g.NumSeats; s++ {
		p := &g.Players[s]
		if int(p.PhaseIdx) < len(g.Phases) {
			continue
		}
		if !found || p.Score < g.Players[winner].Score {
			winner = s
			found = true
		}
	}
	return winner, found
}

// Scores returns the cumulative score per seat.
func (g *GameState) Scores() []int16 {
	out := make([]int16, g.NumSeats)
	for s := uint8(0); s < g.NumSeats; s++ {
		out[s] = g.Players[s].Score
	}
	return out
}
