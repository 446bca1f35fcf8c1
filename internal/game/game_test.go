// internal/game/game_test.go
package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bufordeeds/phase10/engine"
	"github.com/bufordeeds/phase10/internal/database"
	"github.com/bufordeeds/phase10/internal/models"
)

// mockBroadcaster captures game events for testing assertions.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []GameEvent
	playerEvents map[uuid.UUID][]GameEvent
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]GameEvent),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev GameEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = []GameEvent{}
	mb.playerEvents = make(map[uuid.UUID][]GameEvent)
}

func (mb *mockBroadcaster) findEventByType(eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i := len(mb.allEvents) - 1; i >= 0; i-- {
		if mb.allEvents[i].Type == eventType {
			return &mb.allEvents[i]
		}
	}
	return nil
}

func (mb *mockBroadcaster) findPlayerEventByType(playerID uuid.UUID, eventType GameEventType) *GameEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	events := mb.playerEvents[playerID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// memStore is an in-memory SessionStore with the same compare-and-set
// semantics as the Postgres-backed store.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]SessionSnapshot
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[uuid.UUID]SessionSnapshot)}
}

func (m *memStore) Create(_ context.Context, id, _ uuid.UUID, status string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = SessionSnapshot{Status: status, State: state, Version: 0}
	return nil
}

func (m *memStore) Load(_ context.Context, id uuid.UUID) (SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.sessions[id]
	if !ok {
		return SessionSnapshot{}, database.ErrSessionNotFound
	}
	return snap, nil
}

func (m *memStore) Save(_ context.Context, id uuid.UUID, status string, state []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[id]
	if ok && cur.Version != expectedVersion {
		return 0, database.ErrVersionConflict
	}
	next := SessionSnapshot{Status: status, State: state, Version: expectedVersion + 1}
	m.sessions[id] = next
	return next.Version, nil
}

// ecard builds a numbered card id from color, rank, and copy.
func ecard(color, rank, cp uint8) engine.Card {
	return engine.Card(color*24 + (rank-1)*2 + cp)
}

// setupTestGame initializes a Phase10Game with mock players, an in-memory
// store, and mock broadcasters. Turn timers are disabled for determinism.
func setupTestGame(t *testing.T, numPlayers int) (*Phase10Game, []*models.Player, *mockBroadcaster, *memStore) {
	t.Helper()
	g := NewPhase10Game(42)
	g.TurnDuration = 0

	store := newMemStore()
	g.Store = store

	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcastFn
	g.BroadcastToPlayerFn = mb.broadcastToPlayerFn

	players := make([]*models.Player, numPlayers)
	g.Mu.Lock()
	for i := 0; i < numPlayers; i++ {
		p := &models.Player{
			ID:        uuid.New(),
			User:      models.User{ID: uuid.New(), Username: fmt.Sprintf("player%d", i)},
			Connected: true,
		}
		players[i] = p
		g.AddPlayer(p)
	}
	g.Mu.Unlock()

	g.Start()
	require.True(t, g.Started, "game should start with %d players", numPlayers)
	return g, players, mb, store
}

// activePlayer returns the player whose turn it currently is.
func activePlayer(g *Phase10Game, players []*models.Player) *models.Player {
	id := g.SeatToPlayer[g.Engine.ActiveSeat]
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func TestGameStartAssignsSeatsAndDeals(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3)

	assert.Equal(t, engine.StatusPlaying, g.Engine.Status)
	assert.Equal(t, uint8(3), g.Engine.NumSeats)
	for i, p := range players {
		seat, ok := g.PlayerToSeat[p.ID]
		require.True(t, ok, "player %d has no seat", i)
		assert.Equal(t, p.ID, g.SeatToPlayer[seat])
		assert.Len(t, g.Engine.Players[seat].Hand, engine.HandSize)
	}

	assert.NotNil(t, mb.findEventByType(EventGameStart))
	turnEv := mb.findEventByType(EventGamePlayerTurn)
	require.NotNil(t, turnEv)
	assert.Equal(t, g.SeatToPlayer[g.Engine.ActiveSeat], turnEv.User.ID)
}

func TestSyncStateRevealsOnlyOwnHand(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)

	syncEv := mb.findPlayerEventByType(players[0].ID, EventPrivateSyncState)
	require.NotNil(t, syncEv, "player 0 should receive a sync state")
	require.NotNil(t, syncEv.State)

	for _, ps := range syncEv.State.Players {
		if ps.PlayerID == players[0].ID {
			assert.Len(t, ps.RevealedHand, engine.HandSize, "own hand should be revealed")
		} else {
			assert.Empty(t, ps.RevealedHand, "other hands must stay hidden")
			assert.Equal(t, engine.HandSize, ps.HandSize)
		}
	}
	assert.Equal(t, 1, syncEv.State.Round)
	assert.NotNil(t, syncEv.State.DiscardTop, "initial discard top should be visible")
	_ = g
}

func TestDrawAndDiscardFlow(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)
	actor := activePlayer(g, players)
	require.NotNil(t, actor)
	mb.clear()

	g.Mu.Lock()
	g.HandlePlayerAction(actor.ID, models.GameAction{ActionType: "action_draw_pile"})
	seat := g.PlayerToSeat[actor.ID]
	hand := g.Engine.Players[seat].Hand
	drawn := hand[len(hand)-1]
	g.Mu.Unlock()

	assert.Equal(t, engine.StagePlay, g.Engine.Stage)
	assert.Len(t, hand, engine.HandSize+1)

	pubDraw := mb.findEventByType(EventPlayerDrawPile)
	require.NotNil(t, pubDraw)
	assert.Nil(t, pubDraw.Card, "public draw event must not reveal the card")

	privDraw := mb.findPlayerEventByType(actor.ID, EventPrivateDrawPile)
	require.NotNil(t, privDraw)
	require.NotNil(t, privDraw.Card)
	assert.Equal(t, int(drawn), privDraw.Card.ID)

	g.Mu.Lock()
	g.HandlePlayerAction(actor.ID, models.GameAction{
		ActionType: "action_discard",
		Payload:    map[string]interface{}{"card": float64(drawn)},
	})
	g.Mu.Unlock()

	discardEv := mb.findEventByType(EventPlayerDiscard)
	require.NotNil(t, discardEv)
	assert.Equal(t, int(drawn), discardEv.Card.ID)
	assert.NotEqual(t, actor.ID, g.SeatToPlayer[g.Engine.ActiveSeat], "turn should advance after discard")
	assert.Equal(t, engine.StageDraw, g.Engine.Stage)
}

func TestOffTurnActionRejectedPrivately(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)
	actor := activePlayer(g, players)
	var offTurn *models.Player
	for _, p := range players {
		if p.ID != actor.ID {
			offTurn = p
		}
	}
	require.NotNil(t, offTurn)
	mb.clear()

	before := g.Engine.Clone()
	g.Mu.Lock()
	g.HandlePlayerAction(offTurn.ID, models.GameAction{ActionType: "action_draw_pile"})
	g.Mu.Unlock()

	failEv := mb.findPlayerEventByType(offTurn.ID, EventPrivateActionFail)
	require.NotNil(t, failEv, "off-turn actor should get a private failure")
	assert.Nil(t, mb.findEventByType(EventPlayerDrawPile), "no public event for a rejected action")
	assert.Equal(t, before.ActiveSeat, g.Engine.ActiveSeat)
	assert.Equal(t, before.DrawLen, g.Engine.DrawLen)
}

func TestLayDownViaPayload(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)
	actor := activePlayer(g, players)
	seat := g.PlayerToSeat[actor.ID]
	mb.clear()

	// Hand the actor two rank-triples plus a spare, mid-play stage.
	set1 := []engine.Card{ecard(0, 4, 0), ecard(1, 4, 0), ecard(2, 4, 0)}
	set2 := []engine.Card{ecard(0, 9, 0), ecard(1, 9, 0), ecard(3, 9, 0)}
	g.Mu.Lock()
	g.Engine.Players[seat].Hand = append(append(append([]engine.Card(nil), set1...), set2...), ecard(3, 1, 0))
	g.Engine.Stage = engine.StagePlay

	g.HandlePlayerAction(actor.ID, models.GameAction{
		ActionType: "action_lay_down",
		Payload: map[string]interface{}{
			"groups": []interface{}{
				[]interface{}{float64(set1[0]), float64(set1[1]), float64(set1[2])},
				[]interface{}{float64(set2[0]), float64(set2[1]), float64(set2[2])},
			},
		},
	})
	g.Mu.Unlock()

	require.True(t, g.Engine.Players[seat].HasLaidDown(), "lay-down should commit")
	assert.Len(t, g.Engine.Players[seat].Hand, 1)

	layEv := mb.findEventByType(EventPlayerLayDown)
	require.NotNil(t, layEv)
	assert.Equal(t, actor.ID, layEv.User.ID)
	require.Len(t, layEv.Groups, 2)
	assert.Equal(t, "set", layEv.Groups[0].Kind)
	assert.Equal(t, 1, layEv.Payload["phase"])
}

func TestLayDownMismatchKeepsHand(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)
	actor := activePlayer(g, players)
	seat := g.PlayerToSeat[actor.ID]
	mb.clear()

	// Six cards that cannot form two sets.
	hand := []engine.Card{
		ecard(0, 1, 0), ecard(1, 2, 0), ecard(2, 3, 0),
		ecard(0, 5, 0), ecard(1, 6, 0), ecard(2, 7, 0),
	}
	g.Mu.Lock()
	g.Engine.Players[seat].Hand = append([]engine.Card(nil), hand...)
	g.Engine.Stage = engine.StagePlay

	g.HandlePlayerAction(actor.ID, models.GameAction{
		ActionType: "action_lay_down",
		Payload: map[string]interface{}{
			"groups": []interface{}{
				[]interface{}{float64(hand[0]), float64(hand[1]), float64(hand[2])},
				[]interface{}{float64(hand[3]), float64(hand[4]), float64(hand[5])},
			},
		},
	})
	g.Mu.Unlock()

	assert.False(t, g.Engine.Players[seat].HasLaidDown())
	assert.Len(t, g.Engine.Players[seat].Hand, 6, "failed lay-down must not consume cards")
	assert.NotNil(t, mb.findPlayerEventByType(actor.ID, EventPrivateActionFail))
	assert.Nil(t, mb.findEventByType(EventPlayerLayDown))
}

func TestHitViaPayload(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)
	actor := activePlayer(g, players)
	seat := g.PlayerToSeat[actor.ID]
	var target *models.Player
	for _, p := range players {
		if p.ID != actor.ID {
			target = p
		}
	}
	targetSeat := g.PlayerToSeat[target.ID]
	mb.clear()

	// Both seats laid down; the actor holds a rank-4 card matching the
	// target's rank-4 set.
	hitCard := ecard(2, 4, 1)
	g.Mu.Lock()
	g.Engine.Players[seat].Groups = []engine.Group{
		{Kind: engine.KindSet, Cards: []engine.Card{ecard(0, 9, 0), ecard(1, 9, 0), ecard(2, 9, 0)}},
	}
	g.Engine.Players[targetSeat].Groups = []engine.Group{
		{Kind: engine.KindSet, Cards: []engine.Card{ecard(0, 4, 0), ecard(1, 4, 0), ecard(3, 4, 0)}},
	}
	g.Engine.Players[seat].Hand = []engine.Card{hitCard, ecard(3, 1, 0)}
	g.Engine.Stage = engine.StagePlay

	g.HandlePlayerAction(actor.ID, models.GameAction{
		ActionType: "action_hit",
		Payload: map[string]interface{}{
			"target": target.ID.String(),
			"group":  float64(0),
			"card":   float64(hitCard),
		},
	})
	g.Mu.Unlock()

	targetGroup := g.Engine.Players[targetSeat].Groups[0].Cards
	require.Len(t, targetGroup, 4, "hit should land on the target group")
	assert.Equal(t, hitCard, targetGroup[3])
	assert.Len(t, g.Engine.Players[seat].Hand, 1)

	hitEv := mb.findEventByType(EventPlayerHit)
	require.NotNil(t, hitEv)
	assert.Equal(t, actor.ID, hitEv.User.ID)
	require.NotNil(t, hitEv.Card)
	assert.Equal(t, int(hitCard), hitEv.Card.ID)
	assert.Equal(t, target.ID.String(), hitEv.Payload["target"])
	assert.Equal(t, 0, hitEv.Payload["group"])
}

func TestHitPayloadRejections(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)
	actor := activePlayer(g, players)
	seat := g.PlayerToSeat[actor.ID]
	var target *models.Player
	for _, p := range players {
		if p.ID != actor.ID {
			target = p
		}
	}
	targetSeat := g.PlayerToSeat[target.ID]

	hitCard := ecard(2, 4, 1)
	g.Mu.Lock()
	g.Engine.Players[seat].Groups = []engine.Group{
		{Kind: engine.KindSet, Cards: []engine.Card{ecard(0, 9, 0), ecard(1, 9, 0), ecard(2, 9, 0)}},
	}
	g.Engine.Players[targetSeat].Groups = []engine.Group{
		{Kind: engine.KindSet, Cards: []engine.Card{ecard(0, 4, 0), ecard(1, 4, 0), ecard(3, 4, 0)}},
	}
	g.Engine.Players[seat].Hand = []engine.Card{hitCard}
	g.Engine.Stage = engine.StagePlay
	g.Mu.Unlock()

	payloads := []map[string]interface{}{
		{"group": float64(0), "card": float64(hitCard)},                          // target missing
		{"target": uuid.New().String(), "group": float64(0), "card": float64(hitCard)}, // target not seated
		{"target": target.ID.String(), "card": float64(hitCard)},                 // group missing
		{"target": target.ID.String(), "group": float64(0)},                      // card missing
		{"target": target.ID.String(), "group": float64(5), "card": float64(hitCard)}, // group out of range
	}
	for i, payload := range payloads {
		mb.clear()
		g.Mu.Lock()
		g.HandlePlayerAction(actor.ID, models.GameAction{ActionType: "action_hit", Payload: payload})
		g.Mu.Unlock()

		assert.NotNil(t, mb.findPlayerEventByType(actor.ID, EventPrivateActionFail),
			"payload %d should fail privately", i)
		assert.Nil(t, mb.findEventByType(EventPlayerHit), "payload %d must not broadcast a hit", i)
		assert.Len(t, g.Engine.Players[seat].Hand, 1, "payload %d must not consume the card", i)
		assert.Len(t, g.Engine.Players[targetSeat].Groups[0].Cards, 3, "payload %d must not touch the group", i)
	}
}

func TestReconnectResyncsPlayer(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3)
	actor := activePlayer(g, players)
	var p *models.Player
	for _, cand := range players {
		if cand.ID != actor.ID {
			p = cand
			break
		}
	}

	g.Mu.Lock()
	g.HandleDisconnect(p.ID)
	g.Mu.Unlock()
	assert.False(t, p.Connected)
	mb.clear()

	g.Mu.Lock()
	g.HandleReconnect(p.ID, nil)
	g.Mu.Unlock()
	assert.True(t, p.Connected)

	syncEv := mb.findPlayerEventByType(p.ID, EventPrivateSyncState)
	require.NotNil(t, syncEv, "reconnect should resend the game state")
	require.NotNil(t, syncEv.State)
	seat := g.PlayerToSeat[p.ID]
	for _, ps := range syncEv.State.Players {
		if ps.PlayerID == p.ID {
			assert.Len(t, ps.RevealedHand, len(g.Engine.Players[seat].Hand))
			assert.True(t, ps.Connected)
		} else {
			assert.Empty(t, ps.RevealedHand)
		}
	}
}

func TestSkipDiscardEmitsSkipEvent(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3)
	actor := activePlayer(g, players)
	seat := g.PlayerToSeat[actor.ID]
	skipCard := engine.Card(104) // first skip id
	mb.clear()

	g.Mu.Lock()
	g.Engine.Players[seat].Hand = append(g.Engine.Players[seat].Hand, skipCard)
	g.Engine.Stage = engine.StagePlay
	skippedSeat := g.Engine.NextSeat(seat)
	expectedActive := g.Engine.NextSeat(skippedSeat)

	g.HandlePlayerAction(actor.ID, models.GameAction{
		ActionType: "action_discard",
		Payload:    map[string]interface{}{"card": float64(skipCard)},
	})
	g.Mu.Unlock()

	assert.Equal(t, expectedActive, g.Engine.ActiveSeat, "skip discard should cost the next seat its turn")

	skipEv := mb.findEventByType(EventPlayerSkipped)
	require.NotNil(t, skipEv)
	assert.Equal(t, g.SeatToPlayer[skippedSeat], skipEv.User.ID)
}

func TestDisconnectAdvancesTurn(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 3)
	actor := activePlayer(g, players)
	before := g.Engine.ActiveSeat
	mb.clear()

	g.Mu.Lock()
	g.HandleDisconnect(actor.ID)
	g.Mu.Unlock()

	assert.False(t, g.GameOver)
	assert.NotEqual(t, before, g.Engine.ActiveSeat, "disconnecting the acting player should pass the turn")
	assert.NotNil(t, mb.findEventByType(EventGamePlayerTurn))
}

func TestForfeitOnDisconnectEndsGame(t *testing.T) {
	g, players, mb, _ := setupTestGame(t, 2)
	g.HouseRules.ForfeitOnDisconnect = true
	mb.clear()

	g.Mu.Lock()
	g.HandleDisconnect(players[0].ID)
	g.Mu.Unlock()

	require.True(t, g.GameOver)
	endEv := mb.findEventByType(EventGameEnd)
	require.NotNil(t, endEv)
	assert.Equal(t, players[1].ID.String(), endEv.Payload["winner"], "remaining player wins by forfeit")
}

func TestStoreCommitsVersionedSnapshots(t *testing.T) {
	g, players, _, store := setupTestGame(t, 2)
	actor := activePlayer(g, players)

	startVersion := g.Version
	assert.Equal(t, int64(1), startVersion, "Start should commit the initial deal")

	g.Mu.Lock()
	g.HandlePlayerAction(actor.ID, models.GameAction{ActionType: "action_draw_pile"})
	g.Mu.Unlock()
	assert.Equal(t, startVersion+1, g.Version, "each committed action bumps the version")

	snap, err := store.Load(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Version, snap.Version)
	assert.Equal(t, "playing", snap.Status)

	// Persisted state reloads into an equivalent engine state.
	var restored engine.GameState
	require.NoError(t, json.Unmarshal(snap.State, &restored))
	assert.Equal(t, g.Engine.ActiveSeat, restored.ActiveSeat)
	assert.Equal(t, g.Engine.DrawLen, restored.DrawLen)
	assert.Equal(t, g.Engine.Players[0].Hand, restored.Players[0].Hand)
}

func TestStoreConflictLeavesVersionUntouched(t *testing.T) {
	g, players, _, store := setupTestGame(t, 2)
	actor := activePlayer(g, players)

	// Simulate a competing writer committing a newer version.
	_, err := store.Save(context.Background(), g.ID, "playing", []byte(`{}`), g.Version)
	require.NoError(t, err)

	localVersion := g.Version
	g.Mu.Lock()
	g.HandlePlayerAction(actor.ID, models.GameAction{ActionType: "action_draw_pile"})
	g.Mu.Unlock()

	// The engine applied the action but the stale commit was refused.
	assert.Equal(t, engine.StagePlay, g.Engine.Stage)
	assert.Equal(t, localVersion, g.Version, "conflicting save must not advance the local version")
	snap, err := store.Load(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, localVersion+1, snap.Version, "store keeps the competing writer's version")
}
