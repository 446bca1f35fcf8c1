// internal/game/engine_adapter.go
package game

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bufordeeds/phase10/engine"
)

// engineCardToEvent converts an engine.Card to its wire representation.
func engineCardToEvent(c engine.Card) EventCard {
	ec := EventCard{ID: int(c), Value: int(c.Value())}
	switch {
	case c.IsWild():
		ec.Wild = true
	case c.IsSkip():
		ec.Skip = true
	default:
		ec.Color = engine.ColorName(c.Color())
		ec.Rank = int(c.Rank())
	}
	return ec
}

// groupsToEvent converts laid-down groups to their wire representation.
func groupsToEvent(groups []engine.Group) []EventGroup {
	out := make([]EventGroup, len(groups))
	for i, grp := range groups {
		eg := EventGroup{Kind: grp.Kind.String(), Cards: make([]EventCard, len(grp.Cards))}
		for j, c := range grp.Cards {
			eg.Cards[j] = engineCardToEvent(c)
		}
		out[i] = eg
	}
	return out
}

// payloadCard extracts a card id from a decoded JSON payload value.
func payloadCard(v interface{}) (engine.Card, bool) {
	f, ok := v.(float64)
	if !ok || f < 0 || f >= float64(engine.DeckSize) || f != float64(int(f)) {
		return engine.EmptyCard, false
	}
	return engine.Card(uint8(f)), true
}

// payloadInt extracts a non-negative integer from a decoded JSON payload value.
func payloadInt(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// applyEngine runs an action against a clone of the engine state and commits
// the clone only on success, so a failed action can never leave a partially
// applied state behind. Failures are reported privately to the actor.
// Assumes lock is held by caller.
func (g *Phase10Game) applyEngine(actorID uuid.UUID, actionType string, apply func(st *engine.GameState) error) bool {
	next := g.Engine.Clone()
	if err := apply(&next); err != nil {
		log.Printf("Game %s: Engine rejected %s from %s: %v", g.ID, actionType, actorID, err)
		g.fireActionFail(actorID, err.Error())
		return false
	}
	g.Engine = next
	g.commitState()
	return true
}

// handleDraw processes a draw from either source.
// Assumes lock is held by caller.
func (g *Phase10Game) handleDraw(playerID uuid.UUID, seat uint8, source engine.DrawSource) {
	preDrawLen := g.Engine.DrawLen
	preDiscardLen := g.Engine.DiscardLen

	ok := g.applyEngine(playerID, "draw", func(st *engine.GameState) error {
		return st.Draw(seat, source)
	})
	if !ok {
		return
	}

	hand := g.Engine.Players[seat].Hand
	drawn := hand[len(hand)-1]

	if source == engine.SourcePile {
		if preDrawLen == 0 && preDiscardLen > 1 {
			// The engine recycled the discard pile before serving the draw.
			g.fireEvent(GameEvent{
				Type: EventGameReshufflePile,
				Payload: map[string]interface{}{
					"drawPileSize": g.Engine.DrawLen,
				},
			})
			g.logAction(uuid.Nil, string(EventGameReshufflePile), map[string]interface{}{
				"recycled": int(preDiscardLen) - 1,
			})
		}
		// Public: a card left the pile. Private: which card.
		g.fireEvent(GameEvent{
			Type: EventPlayerDrawPile,
			User: &EventUser{ID: playerID},
			Payload: map[string]interface{}{
				"drawPileSize": g.Engine.DrawLen,
			},
		})
		privCard := engineCardToEvent(drawn)
		g.fireEventToPlayer(playerID, GameEvent{
			Type: EventPrivateDrawPile,
			Card: &privCard,
		})
		g.logAction(playerID, string(EventPlayerDrawPile), map[string]interface{}{
			"cardId": int(drawn), "drawPileSize": g.Engine.DrawLen,
		})
	} else {
		// The discard pile is public knowledge, so the card is broadcast.
		pubCard := engineCardToEvent(drawn)
		g.fireEvent(GameEvent{
			Type: EventPlayerDrawDiscard,
			User: &EventUser{ID: playerID},
			Card: &pubCard,
			Payload: map[string]interface{}{
				"discardSize": g.Engine.DiscardLen,
			},
		})
		g.logAction(playerID, string(EventPlayerDrawDiscard), map[string]interface{}{
			"cardId": int(drawn), "discardSize": g.Engine.DiscardLen,
		})
	}
}

// handleLayDown processes a lay-down attempt. The payload carries the
// proposed grouping as arrays of card ids:
//
//	{"groups": [[12, 13, 40], [2, 3, 4, 96]]}
//
// Assumes lock is held by caller.
func (g *Phase10Game) handleLayDown(playerID uuid.UUID, seat uint8, payload map[string]interface{}) {
	rawGroups, ok := payload["groups"].([]interface{})
	if !ok || len(rawGroups) == 0 {
		g.fireActionFail(playerID, "Lay-down requires a 'groups' array of card id arrays.")
		return
	}
	cardGroups := make([][]engine.Card, 0, len(rawGroups))
	for _, rawGroup := range rawGroups {
		items, ok := rawGroup.([]interface{})
		if !ok {
			g.fireActionFail(playerID, "Each lay-down group must be an array of card ids.")
			return
		}
		group := make([]engine.Card, 0, len(items))
		for _, item := range items {
			c, ok := payloadCard(item)
			if !ok {
				g.fireActionFail(playerID, "Invalid card id in lay-down group.")
				return
			}
			group = append(group, c)
		}
		cardGroups = append(cardGroups, group)
	}

	ok = g.applyEngine(playerID, "lay_down", func(st *engine.GameState) error {
		return st.LayDown(seat, cardGroups)
	})
	if !ok {
		return
	}

	groups := g.Engine.Players[seat].Groups
	g.fireEvent(GameEvent{
		Type:   EventPlayerLayDown,
		User:   &EventUser{ID: playerID},
		Groups: groupsToEvent(groups),
		Payload: map[string]interface{}{
			"phase":    int(g.Engine.Players[seat].PhaseIdx) + 1,
			"handSize": len(g.Engine.Players[seat].Hand),
		},
	})
	g.logAction(playerID, string(EventPlayerLayDown), map[string]interface{}{
		"phase": int(g.Engine.Players[seat].PhaseIdx) + 1, "groups": len(groups),
	})
}

// handleHit processes a hit attempt. The payload names the target player,
// group index, and card id:
//
//	{"target": "<player uuid>", "group": 0, "card": 97}
//
// Assumes lock is held by caller.
func (g *Phase10Game) handleHit(playerID uuid.UUID, seat uint8, payload map[string]interface{}) {
	targetStr, _ := payload["target"].(string)
	targetID, err := uuid.Parse(targetStr)
	if err != nil {
		g.fireActionFail(playerID, "Hit requires a 'target' player id.")
		return
	}
	targetSeat, hasSeat := g.PlayerToSeat[targetID]
	if !hasSeat {
		g.fireActionFail(playerID, "Target player is not seated in this game.")
		return
	}
	groupIndex, ok := payloadInt(payload["group"])
	if !ok {
		g.fireActionFail(playerID, "Hit requires a 'group' index.")
		return
	}
	card, ok := payloadCard(payload["card"])
	if !ok {
		g.fireActionFail(playerID, "Hit requires a 'card' id.")
		return
	}

	ok = g.applyEngine(playerID, "hit", func(st *engine.GameState) error {
		return st.Hit(seat, targetSeat, groupIndex, card)
	})
	if !ok {
		return
	}

	pubCard := engineCardToEvent(card)
	g.fireEvent(GameEvent{
		Type: EventPlayerHit,
		User: &EventUser{ID: playerID},
		Card: &pubCard,
		Payload: map[string]interface{}{
			"target":   targetID.String(),
			"group":    groupIndex,
			"handSize": len(g.Engine.Players[seat].Hand),
		},
	})
	g.logAction(playerID, string(EventPlayerHit), map[string]interface{}{
		"cardId": int(card), "target": targetID.String(), "group": groupIndex,
	})
}

// handleDiscard processes a discard, which ends the turn. The payload names
// the card id:
//
//	{"card": 55}
//
// Assumes lock is held by caller.
func (g *Phase10Game) handleDiscard(playerID uuid.UUID, seat uint8, payload map[string]interface{}) {
	card, ok := payloadCard(payload["card"])
	if !ok {
		g.fireActionFail(playerID, "Discard requires a 'card' id.")
		return
	}

	preRound := g.Engine.Round
	ok = g.applyEngine(playerID, "discard", func(st *engine.GameState) error {
		return st.Discard(seat, card)
	})
	if !ok {
		return
	}

	pubCard := engineCardToEvent(card)
	g.fireEvent(GameEvent{
		Type: EventPlayerDiscard,
		User: &EventUser{ID: playerID},
		Card: &pubCard,
		Payload: map[string]interface{}{
			"handSize": len(g.Engine.Players[seat].Hand),
		},
	})
	g.logAction(playerID, string(EventPlayerDiscard), map[string]interface{}{
		"cardId": int(card), "handSize": len(g.Engine.Players[seat].Hand),
	})

	if g.Engine.Status == engine.StatusFinished {
		g.handleRoundEnd(true)
		return
	}
	if g.Engine.Round > preRound {
		g.handleRoundEnd(false)
		return
	}

	// A discarded skip card costs the next seat its turn.
	if card.IsSkip() {
		skippedSeat := g.Engine.NextSeat(seat)
		skippedID := g.SeatToPlayer[skippedSeat]
		g.fireEvent(GameEvent{
			Type: EventPlayerSkipped,
			User: &EventUser{ID: skippedID},
			Payload: map[string]interface{}{
				"bySeat": int(seat),
			},
		})
		g.logAction(skippedID, string(EventPlayerSkipped), map[string]interface{}{
			"by": playerID.String(),
		})
	}

	g.beginTurn()
}

// handleRoundEnd broadcasts round results after the engine scored a round,
// then either ends the game or starts the next round's first turn.
// Assumes lock is held by caller.
func (g *Phase10Game) handleRoundEnd(gameOver bool) {
	scores := map[string]int{}
	phases := map[string]int{}
	for s := uint8(0); s < g.Engine.NumSeats; s++ {
		pid := g.SeatToPlayer[s]
		if pid == uuid.Nil {
			continue
		}
		scores[pid.String()] = int(g.Engine.Players[s].Score)
		phases[pid.String()] = int(g.Engine.Players[s].PhaseIdx) + 1
	}
	g.fireEvent(GameEvent{
		Type: EventRoundEnd,
		Payload: map[string]interface{}{
			"scores":   scores,
			"phases":   phases,
			"gameOver": gameOver,
		},
	})
	g.logAction(uuid.Nil, string(EventRoundEnd), map[string]interface{}{
		"scores": scores, "gameOver": gameOver,
	})

	if gameOver {
		g.EndGame()
		return
	}

	// New round: every hand changed, so resync everyone before the turn event.
	g.broadcastSyncStateToAll()
	g.beginTurn()
}

// beginTurn advances the turn counter, announces the acting player, and arms
// the turn timer.
// Assumes lock is held by caller.
func (g *Phase10Game) beginTurn() {
	if g.GameOver {
		return
	}
	g.TurnID++
	currentID := g.currentPlayerID()
	g.fireEvent(GameEvent{
		Type: EventGamePlayerTurn,
		User: &EventUser{ID: currentID},
		Payload: map[string]interface{}{
			"turnId": g.TurnID,
			"round":  g.Engine.Round,
			"stage":  g.Engine.Stage.String(),
		},
	})
	g.scheduleNextTurnTimer()
}

// scheduleNextTurnTimer arms the inactivity timer for the acting player. A
// disconnected acting player is advanced past immediately.
// Assumes lock is held by caller.
func (g *Phase10Game) scheduleNextTurnTimer() {
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
	if g.TurnDuration <= 0 || !g.Started || g.GameOver {
		return
	}

	currentID := g.currentPlayerID()
	player := g.getPlayerByID(currentID)
	if player == nil {
		log.Printf("Game %s: Cannot schedule timer — acting player %s not found.", g.ID, currentID)
		return
	}
	if !player.Connected && !g.HouseRules.ForfeitOnDisconnect {
		log.Printf("Game %s: Current player %s is disconnected. Advancing turn.", g.ID, currentID)
		g.forceAdvanceTurn()
		return
	}

	capturedTurnID := g.TurnID
	capturedPlayerID := currentID
	g.turnTimer = time.AfterFunc(g.TurnDuration, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.GameOver || g.TurnID != capturedTurnID {
			return // A later action already ended this turn.
		}
		log.Printf("Game %s, Turn %d: Timer fired for player %s.", g.ID, g.TurnID, capturedPlayerID)
		g.handleTimeout(capturedPlayerID)
	})
}

// handleTimeout processes the timeout logic for a player whose turn expired.
// Assumes lock is held by caller.
func (g *Phase10Game) handleTimeout(playerID uuid.UUID) {
	log.Printf("Game %s: Player %s timed out on turn %d.", g.ID, playerID, g.TurnID)
	g.logAction(playerID, "player_timeout", map[string]interface{}{"turnId": g.TurnID})
	g.forceAdvanceTurn()
}

// forceAdvanceTurn passes the turn past the acting seat without card
// movement, persisting and announcing the new turn.
// Assumes lock is held by caller.
func (g *Phase10Game) forceAdvanceTurn() {
	seat := g.Engine.ActiveSeat
	ok := g.applyEngine(g.SeatToPlayer[seat], "force_advance", func(st *engine.GameState) error {
		return st.ForceAdvance(seat)
	})
	if !ok {
		return
	}
	g.logAction(g.SeatToPlayer[seat], "turn_force_advance", map[string]interface{}{"seat": int(seat)})
	g.beginTurn()
}
