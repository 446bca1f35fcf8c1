// internal/game/sync_state.go
package game

import (
	"github.com/google/uuid"

	"github.com/bufordeeds/phase10/engine"
	"github.com/bufordeeds/phase10/internal/models"
)

// ObfCard represents a publicly visible card for client synchronization.
// Card ids encode their face, so hidden cards are represented only by the
// hand counts in ObfPlayerState and never appear here.
type ObfCard struct {
	ID    int    `json:"id"`
	Color string `json:"color,omitempty"`
	Rank  int    `json:"rank,omitempty"`
	Wild  bool   `json:"wild,omitempty"`
	Skip  bool   `json:"skip,omitempty"`
	Value int    `json:"value"`
}

// ObfGroup represents one laid-down group, which is public knowledge.
type ObfGroup struct {
	Kind  string    `json:"kind"`
	Cards []ObfCard `json:"cards"`
}

// ObfPlayerState represents the state of a single player, obfuscated for a
// specific observer.
type ObfPlayerState struct {
	PlayerID      uuid.UUID  `json:"playerId"`
	Username      string     `json:"username"`
	Seat          int        `json:"seat"`
	HandSize      int        `json:"handSize"`
	PhaseNumber   int        `json:"phaseNumber"`
	PhaseText     string     `json:"phaseText,omitempty"`
	Score         int        `json:"score"`
	HasLaidDown   bool       `json:"hasLaidDown"`
	Groups        []ObfGroup `json:"groups,omitempty"`
	Connected     bool       `json:"connected"`
	IsCurrentTurn bool       `json:"isCurrentTurn"`
	// RevealedHand is populated only for the player requesting the state ('self').
	RevealedHand []ObfCard `json:"revealedHand,omitempty"`
}

// ObfGameState represents the overall game state, obfuscated for a specific observer.
type ObfGameState struct {
	GameID          uuid.UUID         `json:"gameId"`
	Status          string            `json:"status"`
	Round           int               `json:"round"`
	CurrentPlayerID uuid.UUID         `json:"currentPlayerId"`
	TurnID          int               `json:"turnId"`
	Stage           string            `json:"stage"`
	DrawPileSize    int               `json:"drawPileSize"`
	DiscardSize     int               `json:"discardSize"`
	DiscardTop      *ObfCard          `json:"discardTop,omitempty"`
	Players         []ObfPlayerState  `json:"players"`
	HouseRules      models.HouseRules `json:"houseRules"`
}

// obfCard converts an engine card for the sync payload.
func obfCard(c engine.Card) ObfCard {
	oc := ObfCard{ID: int(c), Value: int(c.Value())}
	switch {
	case c.IsWild():
		oc.Wild = true
	case c.IsSkip():
		oc.Skip = true
	default:
		oc.Color = engine.ColorName(c.Color())
		oc.Rank = int(c.Rank())
	}
	return oc
}

// GetCurrentObfuscatedGameState generates a snapshot of the game state,
// tailored to the perspective of the requesting user (`forUser`).
// Reads from engine state as the authoritative source.
// This function assumes the game lock is HELD by the caller.
func (g *Phase10Game) GetCurrentObfuscatedGameState(forUser uuid.UUID) ObfGameState {
	obf := ObfGameState{
		GameID:       g.ID,
		Status:       g.Engine.Status.String(),
		Round:        int(g.Engine.Round),
		TurnID:       g.TurnID,
		Stage:        g.Engine.Stage.String(),
		DrawPileSize: int(g.Engine.DrawLen),
		DiscardSize:  int(g.Engine.DiscardLen),
		HouseRules:   g.HouseRules,
	}

	if g.Started && !g.GameOver {
		obf.CurrentPlayerID = g.SeatToPlayer[g.Engine.ActiveSeat]
	}

	// Discard top card (always public knowledge).
	if top := g.Engine.DiscardTop(); top != engine.EmptyCard {
		oc := obfCard(top)
		obf.DiscardTop = &oc
	}

	obf.Players = make([]ObfPlayerState, len(g.Players))
	for i, pl := range g.Players {
		isSelf := pl.ID == forUser

		ps := ObfPlayerState{
			PlayerID:  pl.ID,
			Username:  pl.User.Username,
			Connected: pl.Connected,
		}

		seat, hasSeat := g.PlayerToSeat[pl.ID]
		if hasSeat {
			es := &g.Engine.Players[seat]
			ps.Seat = int(seat)
			ps.HandSize = len(es.Hand)
			ps.PhaseNumber = int(es.PhaseIdx) + 1
			if phase := g.Engine.CurrentPhase(seat); phase != nil {
				ps.PhaseText = engine.DescribePhase(phase)
			}
			ps.Score = int(es.Score)
			ps.HasLaidDown = es.HasLaidDown()
			ps.IsCurrentTurn = g.Started && !g.GameOver && g.Engine.ActiveSeat == seat

			// Laid-down groups are visible to everyone.
			if len(es.Groups) > 0 {
				ps.Groups = make([]ObfGroup, len(es.Groups))
				for gi, grp := range es.Groups {
					og := ObfGroup{Kind: grp.Kind.String(), Cards: make([]ObfCard, len(grp.Cards))}
					for ci, c := range grp.Cards {
						og.Cards[ci] = obfCard(c)
					}
					ps.Groups[gi] = og
				}
			}

			if isSelf {
				ps.RevealedHand = make([]ObfCard, len(es.Hand))
				for j, c := range es.Hand {
					ps.RevealedHand[j] = obfCard(c)
				}
			}
		}
		obf.Players[i] = ps
	}

	return obf
}
