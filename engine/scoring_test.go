package engine

import "testing"

// TestEndRoundScoring verifies leftover-hand scoring: a wild plus a skip
// left in hand costs 40 points, and only laid-down seats advance a phase.
func TestEndRoundScoring(t *testing.T) {
	g := testGame(
		[][]Card{
			nil,
			{wild(0), skip(0)},
			{card(ColorRed, 3, 0), card(ColorBlue, 10, 0)},
		},
		[]Card{card(ColorBlue, 5, 0)},
		[]Card{card(ColorYellow, 9, 0)},
	)
	g.Players[0].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorRed, 7, 0)}}}
	g.Players[2].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorBlue, 7, 0)}}}
	g.endRound()

	want := []int16{0, 40, 15} // empty; wild 25 + skip 15; 3→5 + 10→10
	for s, w := range want {
		if got := g.Players[s].Score; got != w {
			t.Errorf("seat %d score = %d, want %d", s, got, w)
		}
	}
	if g.Players[0].PhaseIdx != 1 || g.Players[1].PhaseIdx != 0 || g.Players[2].PhaseIdx != 1 {
		t.Errorf("phase indices = %d,%d,%d, want 1,0,1",
			g.Players[0].PhaseIdx, g.Players[1].PhaseIdx, g.Players[2].PhaseIdx)
	}
	if g.Status != StatusPlaying || g.Round != 2 {
		t.Errorf("status %s round %d, want playing round 2", g.Status, g.Round)
	}
}

// TestScoresAccumulateAcrossRounds verifies cumulative scoring.
func TestScoresAccumulateAcrossRounds(t *testing.T) {
	g := testGame(
		[][]Card{nil, {card(ColorRed, 6, 0)}},
		[]Card{card(ColorBlue, 5, 0)},
		[]Card{card(ColorYellow, 9, 0)},
	)
	g.Players[1].Score = 50
	g.endRound()
	if got := g.Scores(); got[0] != 0 || got[1] != 55 {
		t.Errorf("scores = %v, want [0 55]", got)
	}
}

// TestWinnerEndsGame verifies completing the final phase finishes the match
// without dealing another round.
func TestWinnerEndsGame(t *testing.T) {
	g := testGame(
		[][]Card{nil, {card(ColorRed, 6, 0)}},
		[]Card{card(ColorBlue, 5, 0)},
		[]Card{card(ColorYellow, 9, 0)},
	)
	g.Players[0].PhaseIdx = uint8(len(g.Phases) - 1)
	g.Players[0].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorRed, 7, 0)}}}
	g.Round = 14
	g.endRound()

	if g.Status != StatusFinished {
		t.Fatalf("status = %s, want finished", g.Status)
	}
	if g.Winner != 0 {
		t.Errorf("winner = %d, want 0", g.Winner)
	}
	if g.Round != 14 {
		t.Errorf("round = %d, want unchanged 14", g.Round)
	}
	if err := g.Draw(0, SourcePile); err == nil {
		t.Error("finished game accepted a draw")
	}
}

// TestWinnerTieBreak verifies that when two seats finish the ladder in the
// same round, the lower cumulative score wins, and an exact tie goes to the
// lower seat index.
func TestWinnerTieBreak(t *testing.T) {
	g := testGame(
		[][]Card{nil, nil, {card(ColorRed, 6, 0)}},
		[]Card{card(ColorBlue, 5, 0)},
		[]Card{card(ColorYellow, 9, 0)},
	)
	last := uint8(len(g.Phases) - 1)
	g.Players[0].PhaseIdx = last
	g.Players[0].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorRed, 7, 0)}}}
	g.Players[0].Score = 120
	g.Players[1].PhaseIdx = last
	g.Players[1].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorBlue, 7, 0)}}}
	g.Players[1].Score = 80
	g.endRound()

	if g.Status != StatusFinished || g.Winner != 1 {
		t.Fatalf("winner = %d (status %s), want seat 1 by lower score", g.Winner, g.Status)
	}

	tied := testGame(
		[][]Card{nil, nil, {card(ColorRed, 6, 0)}},
		[]Card{card(ColorBlue, 5, 0)},
		[]Card{card(ColorYellow, 9, 0)},
	)
	tied.Players[0].PhaseIdx = last
	tied.Players[0].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorRed, 7, 0)}}}
	tied.Players[1].PhaseIdx = last
	tied.Players[1].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorBlue, 7, 0)}}}
	tied.Players[0].Score = 100
	tied.Players[1].Score = 100
	tied.endRound()
	if tied.Winner != 0 {
		t.Errorf("tied winner = %d, want seat 0", tied.Winner)
	}
}

// TestNewRoundResetsPerRoundState verifies hands, groups, and hit records
// reset between rounds while scores and phases persist.
func TestNewRoundResetsPerRoundState(t *testing.T) {
	g := testGame(
		[][]Card{nil, {card(ColorRed, 6, 0)}},
		[]Card{card(ColorBlue, 5, 0)},
		[]Card{card(ColorYellow, 9, 0)},
	)
	g.Players[0].Groups = []Group{{Kind: KindSet, Cards: []Card{card(ColorRed, 7, 0)}}}
	g.Players[0].HitCards = []Card{card(ColorRed, 8, 0)}
	g.Players[0].Score = 30
	g.endRound()

	p := &g.Players[0]
	if p.HasLaidDown() || p.HitCards != nil {
		t.Error("per-round lay-down state survived the round boundary")
	}
	if len(p.Hand) != HandSize || len(g.Players[1].Hand) != HandSize {
		t.Errorf("new hands = %d,%d cards, want %d each",
			len(p.Hand), len(g.Players[1].Hand), HandSize)
	}
	if p.Score != 30 || p.PhaseIdx != 1 {
		t.Errorf("score %d phase %d, want persisted 30 and advanced 1", p.Score, p.PhaseIdx)
	}
	if got := g.cardCount(); got != DeckSize {
		t.Errorf("card count = %d, want %d", got, DeckSize)
	}
}

// TestAbandon verifies abandonment is terminal but cannot overwrite a
// finished result.
func TestAbandon(t *testing.T) {
	g := NewGame(9, DefaultHouseRules(), nil)
	g.Abandon()
	if g.Status != StatusAbandoned {
		t.Errorf("status = %s, want abandoned", g.Status)
	}

	done := NewGame(9, DefaultHouseRules(), nil)
	done.Status = StatusFinished
	done.Abandon()
	if done.Status != StatusFinished {
		t.Errorf("status = %s, want finished preserved", done.Status)
	}
}
