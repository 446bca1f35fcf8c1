// internal/game/game.go
package game

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/bufordeeds/phase10/engine"
	"github.com/bufordeeds/phase10/internal/cache"
	"github.com/bufordeeds/phase10/internal/database"
	"github.com/bufordeeds/phase10/internal/models"
)

// OnGameEndFunc defines the signature for a callback function executed when a game ends.
// It receives the lobby ID, the winner's ID (can be Nil), and the final scores.
type OnGameEndFunc func(lobbyID uuid.UUID, winner uuid.UUID, scores map[uuid.UUID]int)

// GameEventType represents the type of a game-related event broadcast via WebSockets.
type GameEventType string

// Constants defining the various GameEvent types used for WebSocket communication.
const (
	EventGameStart         GameEventType = "game_start"            // Public: Session started, first round dealt.
	EventPlayerDrawPile    GameEventType = "player_draw_pile"      // Public: Player drew from the draw pile (count only).
	EventPrivateDrawPile   GameEventType = "private_draw_pile"     // Private: Details of the card drawn.
	EventPlayerDrawDiscard GameEventType = "player_draw_discard"   // Public: Player took the discard top (details revealed).
	EventGameReshufflePile GameEventType = "game_reshuffle_pile"   // Public: Discard pile was reshuffled into the draw pile.
	EventPlayerLayDown     GameEventType = "player_lay_down"       // Public: Player committed their phase groups.
	EventPlayerHit         GameEventType = "player_hit"            // Public: Player extended a laid-down group.
	EventPlayerDiscard     GameEventType = "player_discard"        // Public: Player discarded a card (details revealed).
	EventPlayerSkipped     GameEventType = "player_skipped"        // Public: A seat lost its turn to a skip card.
	EventRoundEnd          GameEventType = "round_end"             // Public: Round scored; includes per-player totals.
	EventGamePlayerTurn    GameEventType = "game_player_turn"      // Public: Notification of the current player's turn.
	EventPrivateSyncState  GameEventType = "private_sync_state"    // Private: Full game state sync for a player.
	EventPrivateActionFail GameEventType = "private_action_fail"   // Private: An attempted action was rejected.
	EventGameEnd           GameEventType = "game_end"              // Public: Game has ended, includes results.
)

// EventUser identifies a user within a GameEvent payload.
type EventUser struct {
	ID uuid.UUID `json:"id"`
}

// EventCard carries a card within a GameEvent payload. Hidden cards are
// never put on the wire at all, so every EventCard is fully described.
type EventCard struct {
	ID    int    `json:"id"`
	Color string `json:"color,omitempty"`
	Rank  int    `json:"rank,omitempty"`
	Wild  bool   `json:"wild,omitempty"`
	Skip  bool   `json:"skip,omitempty"`
	Value int    `json:"value"`
}

// EventGroup carries one laid-down group within a GameEvent payload.
type EventGroup struct {
	Kind  string      `json:"kind"`
	Cards []EventCard `json:"cards"`
}

// GameEvent is the standard structure for broadcasting game state changes and actions.
type GameEvent struct {
	Type   GameEventType `json:"type"`
	User   *EventUser    `json:"user,omitempty"`   // The user initiating or targeted by the event.
	Card   *EventCard    `json:"card,omitempty"`   // Primary card involved.
	Groups []EventGroup  `json:"groups,omitempty"` // Laid-down groups, for lay-down events.

	Payload map[string]interface{} `json:"payload,omitempty"` // Additional arbitrary data.

	State *ObfGameState `json:"state,omitempty"` // Full obfuscated state for sync events.
}

// Phase10Game represents the service-side state and logic for a single game
// session. The embedded engine state is authoritative; everything else maps
// users, connections, and persistence onto it.
type Phase10Game struct {
	ID      uuid.UUID // Unique identifier, shared with the persisted session row.
	LobbyID uuid.UUID // ID of the lobby that created this game.

	HouseRules models.HouseRules // Configurable game rules.

	Players []*models.Player // List of players in the game.

	// Engine integration — authoritative game state.
	Engine       engine.GameState             // The authoritative game state.
	PlayerToSeat map[uuid.UUID]uint8          // Service player UUID -> engine seat.
	SeatToPlayer [engine.MaxPlayers]uuid.UUID // Engine seat -> service player UUID.

	// Persistence.
	Store   SessionStore // nil disables persistence.
	Version int64        // Last committed session version.

	// Turn Management
	TurnID       int           // Increments each turn, useful for state synchronization and checks.
	TurnDuration time.Duration // Configurable duration for each turn timer.
	turnTimer    *time.Timer   // Active timer for the current turn.
	actionIndex  int           // Sequential index for logging actions via historian.

	// Game Lifecycle State
	Started  bool // Has the game started?
	GameOver bool // Has the game finished?

	lastSeen map[uuid.UUID]time.Time // Tracks last activity time for players.
	Mu       sync.Mutex              // Mutex protecting concurrent access to game state.

	// Communication Callbacks
	BroadcastFn         func(ev GameEvent)                     // Sends an event to all connected players.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent) // Sends an event to a single player.
	OnGameEnd           OnGameEndFunc                          // Callback executed when the game finishes.
}

// NewPhase10Game creates a new game instance with default settings. The
// engine session is created immediately in the lobby state; seats are
// assigned when the game starts.
func NewPhase10Game(seed uint64) *Phase10Game {
	id, _ := uuid.NewRandom()
	rules := models.DefaultHouseRules()
	g := &Phase10Game{
		ID:           id,
		HouseRules:   rules,
		Engine:       engine.NewGame(seed, mapHouseRulesToEngine(rules), nil),
		PlayerToSeat: make(map[uuid.UUID]uint8),
		lastSeen:     make(map[uuid.UUID]time.Time),
		TurnDuration: time.Duration(rules.TurnTimeoutSec) * time.Second,
		actionIndex:  0,
		TurnID:       0,
	}
	return g
}

// mapHouseRulesToEngine translates service-level house rules to the engine's
// rule struct.
func mapHouseRulesToEngine(hr models.HouseRules) engine.HouseRules {
	er := engine.DefaultHouseRules()
	if hr.MaxPlayers >= 2 && hr.MaxPlayers <= int(engine.MaxPlayers) {
		er.SeatCapacity = uint8(hr.MaxPlayers)
	}
	// Two seats is the smallest game, so anything past half the deck
	// (minus the opening discard card) could never be dealt.
	if hr.HandSize > 0 && 2*hr.HandSize+1 <= int(engine.DeckSize) {
		er.HandSize = uint8(hr.HandSize)
	}
	er.AllowSkipPickup = hr.AllowSkipPickup
	return er
}

// SetHouseRules replaces the rules before the game starts. Ignored once the
// session is live.
func (g *Phase10Game) SetHouseRules(hr models.HouseRules) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.Started {
		log.Printf("Game %s: SetHouseRules ignored, game already started.", g.ID)
		return
	}
	g.HouseRules = hr
	g.Engine.Rules = mapHouseRulesToEngine(hr)
	if hr.TurnTimeoutSec > 0 {
		g.TurnDuration = time.Duration(hr.TurnTimeoutSec) * time.Second
	} else {
		g.TurnDuration = 0
	}
}

// SetPhaseSet replaces the phase ladder before the game starts.
func (g *Phase10Game) SetPhaseSet(phases engine.PhaseSet) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.Started {
		log.Printf("Game %s: SetPhaseSet ignored, game already started.", g.ID)
		return
	}
	if len(phases) > 0 {
		g.Engine.Phases = phases
	}
}

// AddPlayer adds a player to the game if not started, or marks them as reconnected.
// Assumes lock is held by caller.
func (g *Phase10Game) AddPlayer(p *models.Player) {
	found := false
	for i, pl := range g.Players {
		if pl.ID == p.ID {
			// Player reconnecting.
			g.Players[i].Conn = p.Conn
			g.Players[i].Connected = true
			g.Players[i].User = p.User // Update user info.
			g.lastSeen[p.ID] = time.Now()
			log.Printf("Game %s: Player %s (%s) reconnected.", g.ID, p.ID, p.User.Username)
			found = true
			break
		}
	}
	if !found {
		if !g.Started && len(g.Players) < g.HouseRules.MaxPlayers {
			g.Players = append(g.Players, p)
			g.lastSeen[p.ID] = time.Now()
			log.Printf("Game %s: Player %s (%s) added.", g.ID, p.ID, p.User.Username)
		} else {
			log.Printf("Game %s: Player %s (%s) cannot be added (started=%v, players=%d).",
				g.ID, p.ID, p.User.Username, g.Started, len(g.Players))
			if p.Conn != nil {
				p.Conn.Close(websocket.StatusPolicyViolation, "Game already in progress or full.")
			}
			return
		}
	}
	g.logAction(p.ID, "player_add", map[string]interface{}{"reconnect": found, "username": p.User.Username})
}

// Start seats the joined players, starts the first round, persists the
// initial state, and begins the first turn.
func (g *Phase10Game) Start() {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.Started || g.GameOver {
		log.Printf("Game %s: Start called in invalid state (Started:%v, Over:%v). Ignoring.", g.ID, g.Started, g.GameOver)
		return
	}
	if len(g.Players) < 2 {
		log.Printf("Game %s: Need at least 2 players to start, got %d.", g.ID, len(g.Players))
		return
	}

	// Seat assignment follows join order.
	for i, p := range g.Players {
		seat := uint8(i)
		p.Seat = seat
		g.PlayerToSeat[p.ID] = seat
		g.SeatToPlayer[seat] = p.ID
	}

	if err := g.Engine.Start(uint8(len(g.Players))); err != nil {
		log.Printf("Game %s: Engine start failed: %v", g.ID, err)
		return
	}
	g.Started = true
	log.Printf("Game %s: Started with %d players.", g.ID, len(g.Players))

	g.commitState()
	g.logAction(uuid.Nil, string(EventGameStart), map[string]interface{}{
		"players": len(g.Players),
		"round":   g.Engine.Round,
	})
	g.fireEvent(GameEvent{
		Type: EventGameStart,
		Payload: map[string]interface{}{
			"round":   g.Engine.Round,
			"players": len(g.Players),
		},
	})
	g.broadcastSyncStateToAll()
	g.beginTurn()
}

// fireEvent broadcasts an event to all connected players via the BroadcastFn callback.
// Assumes lock is held by caller.
func (g *Phase10Game) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	} else {
		log.Printf("Warning: Game %s: BroadcastFn is nil, cannot broadcast event type %s.", g.ID, ev.Type)
	}
}

// fireEventToPlayer sends an event to a specific player via the BroadcastToPlayerFn callback.
// Checks if the player is connected before sending.
// Assumes lock is held by caller.
func (g *Phase10Game) fireEventToPlayer(playerID uuid.UUID, ev GameEvent) {
	if g.BroadcastToPlayerFn != nil {
		targetPlayer := g.getPlayerByID(playerID)
		if targetPlayer != nil && targetPlayer.Connected {
			g.BroadcastToPlayerFn(playerID, ev)
		}
	} else {
		log.Printf("Warning: Game %s: BroadcastToPlayerFn is nil, cannot send private event type %s to player %s.", g.ID, ev.Type, playerID)
	}
}

// HandleDisconnect marks a player as disconnected and handles game state consequences.
// Assumes lock is held by caller.
func (g *Phase10Game) HandleDisconnect(playerID uuid.UUID) {
	log.Printf("Game %s: Handling disconnect for player %s.", g.ID, playerID)
	g.logAction(playerID, "player_disconnect", nil)

	found := false
	for i := range g.Players {
		if g.Players[i].ID == playerID {
			if !g.Players[i].Connected {
				log.Printf("Game %s: Player %s already marked as disconnected.", g.ID, playerID)
				return
			}
			g.Players[i].Connected = false
			g.Players[i].Conn = nil
			found = true
			break
		}
	}
	if !found {
		log.Printf("Game %s: Disconnected player %s not found.", g.ID, playerID)
		return
	}

	shouldAdvanceTurn := false
	shouldEndGame := false

	if g.Started && !g.GameOver {
		if g.countConnectedPlayers() == 0 {
			log.Printf("Game %s: All players disconnected. Abandoning session.", g.ID)
			g.Engine.Abandon()
			g.commitState()
			g.GameOver = true
			g.Started = false
			if g.turnTimer != nil {
				g.turnTimer.Stop()
				g.turnTimer = nil
			}
			return
		}
		if g.HouseRules.ForfeitOnDisconnect {
			log.Printf("Game %s: Player %s disconnected, forfeiting due to house rules.", g.ID, playerID)
			if g.countConnectedPlayers() <= 1 {
				log.Printf("Game %s: Only %d player(s) left connected after forfeit. Ending game.", g.ID, g.countConnectedPlayers())
				shouldEndGame = true
			}
		} else if playerID == g.currentPlayerID() {
			log.Printf("Game %s: Current player %s disconnected. Advancing turn.", g.ID, playerID)
			shouldAdvanceTurn = true
		}
	}

	g.broadcastSyncStateToAll()

	if shouldEndGame {
		if !g.GameOver {
			g.EndGame()
		}
	} else if shouldAdvanceTurn {
		g.forceAdvanceTurn()
	}
}

// HandleReconnect marks a player as connected and sends them the current game state.
// Assumes lock is held by caller.
func (g *Phase10Game) HandleReconnect(playerID uuid.UUID, conn *websocket.Conn) {
	log.Printf("Game %s: Handling reconnect for player %s.", g.ID, playerID)

	found := false
	for i := range g.Players {
		if g.Players[i].ID == playerID {
			g.Players[i].Connected = true
			g.Players[i].Conn = conn
			g.lastSeen[playerID] = time.Now()
			found = true

			g.logAction(playerID, "player_reconnect", map[string]interface{}{"username": g.Players[i].User.Username})

			// Send sync state immediately to the reconnected player.
			g.sendSyncState(playerID)
			g.broadcastSyncStateToAll()

			// If it was this player's turn, reschedule timer.
			if g.Started && !g.GameOver && g.currentPlayerID() == playerID {
				log.Printf("Game %s: Player %s reconnected on their turn. Rescheduling timer.", g.ID, playerID)
				g.scheduleNextTurnTimer()
			}
			break
		}
	}

	if !found {
		log.Printf("Game %s: Reconnecting player %s not found in game.", g.ID, playerID)
		g.logAction(playerID, "player_reconnect_fail", map[string]interface{}{"reason": "player not found"})
		if conn != nil {
			conn.Close(websocket.StatusPolicyViolation, "Game not found or you were removed.")
		}
	}
}

// sendSyncState sends the current obfuscated game state to a single player.
// Assumes lock is held by caller.
func (g *Phase10Game) sendSyncState(playerID uuid.UUID) {
	if g.BroadcastToPlayerFn == nil {
		log.Println("Warning: BroadcastToPlayerFn is nil, cannot send sync state.")
		return
	}
	state := g.GetCurrentObfuscatedGameState(playerID)
	ev := GameEvent{
		Type:  EventPrivateSyncState,
		State: &state,
	}
	g.fireEventToPlayer(playerID, ev)
}

// broadcastSyncStateToAll sends the obfuscated game state to all currently connected players.
// Assumes lock is held by caller.
func (g *Phase10Game) broadcastSyncStateToAll() {
	if g.BroadcastToPlayerFn == nil {
		log.Println("Warning: BroadcastToPlayerFn is nil, cannot broadcast sync state to all.")
		return
	}
	for _, p := range g.Players {
		if p.Connected {
			g.sendSyncState(p.ID)
		}
	}
}

// countConnectedPlayers returns the number of players currently marked as connected.
// Assumes lock is held by caller.
func (g *Phase10Game) countConnectedPlayers() int {
	count := 0
	for _, p := range g.Players {
		if p.Connected {
			count++
		}
	}
	return count
}

// currentPlayerID returns the UUID of the seat whose turn it is, or Nil.
// Assumes lock is held by caller.
func (g *Phase10Game) currentPlayerID() uuid.UUID {
	if !g.Started || g.GameOver {
		return uuid.Nil
	}
	return g.SeatToPlayer[g.Engine.ActiveSeat]
}

// getPlayerByID finds a player struct by ID within the game's Players slice.
// Returns the player pointer or nil if not found.
// Assumes lock is held by caller.
func (g *Phase10Game) getPlayerByID(playerID uuid.UUID) *models.Player {
	for _, p := range g.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// HandlePlayerAction routes incoming player actions (draw, lay down, hit, discard).
// Validates session and player state before delegating to the engine adapter.
// Assumes lock is held by the caller.
func (g *Phase10Game) HandlePlayerAction(playerID uuid.UUID, action models.GameAction) {
	if g.GameOver {
		log.Printf("Game %s: Action %s from %s ignored (game over).", g.ID, action.ActionType, playerID)
		return
	}
	if !g.Started {
		log.Printf("Game %s: Action %s from %s ignored (game not started).", g.ID, action.ActionType, playerID)
		return
	}

	player := g.getPlayerByID(playerID)
	if player == nil || !player.Connected {
		log.Printf("Game %s: Action %s from non-existent/disconnected player %s ignored.", g.ID, action.ActionType, playerID)
		return
	}
	seat, inMapping := g.PlayerToSeat[playerID]
	if !inMapping {
		log.Printf("Game %s: Action %s from %s ignored (no seat mapping).", g.ID, action.ActionType, playerID)
		return
	}

	g.lastSeen[playerID] = time.Now()

	switch action.ActionType {
	case "action_draw_pile":
		g.handleDraw(playerID, seat, engine.SourcePile)
	case "action_draw_discard":
		g.handleDraw(playerID, seat, engine.SourceDiscard)
	case "action_lay_down":
		g.handleLayDown(playerID, seat, action.Payload)
	case "action_hit":
		g.handleHit(playerID, seat, action.Payload)
	case "action_discard":
		g.handleDiscard(playerID, seat, action.Payload)
	default:
		log.Printf("Game %s: Unknown action type '%s' received from player %s.", g.ID, action.ActionType, playerID)
		g.fireActionFail(playerID, "Unknown action type.")
	}
}

// fireActionFail sends a private rejection event to a player.
// Assumes lock is held by caller.
func (g *Phase10Game) fireActionFail(playerID uuid.UUID, reason string) {
	g.fireEventToPlayer(playerID, GameEvent{
		Type:    EventPrivateActionFail,
		Payload: map[string]interface{}{"message": reason},
	})
	g.logAction(playerID, string(EventPrivateActionFail), map[string]interface{}{"reason": reason})
}

// commitState persists the current engine state through the session store
// using compare-and-set on the last committed version.
// Assumes lock is held by caller.
func (g *Phase10Game) commitState() {
	if g.Store == nil {
		return
	}
	data, err := encodeState(&g.Engine)
	if err != nil {
		log.Printf("Game %s: Failed encoding state for persistence: %v", g.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	newVersion, err := g.Store.Save(ctx, g.ID, g.Engine.Status.String(), data, g.Version)
	if errors.Is(err, database.ErrVersionConflict) {
		// Another writer owns this session. This instance's copy is stale;
		// log loudly so the operator can investigate the split ownership.
		log.Printf("Error: Game %s: Version conflict persisting state at version %d.", g.ID, g.Version)
		return
	}
	if err != nil {
		log.Printf("Error: Game %s: Failed persisting state: %v", g.ID, err)
		return
	}
	g.Version = newVersion
}

// EndGame finalizes the game, computes scores, determines the winner,
// broadcasts results, and triggers the OnGameEnd callback.
// Assumes lock is held by caller.
func (g *Phase10Game) EndGame() {
	if g.GameOver {
		log.Printf("Game %s: EndGame called, but game is already over.", g.ID)
		return
	}
	g.GameOver = true
	g.Started = false
	log.Printf("Game %s: Ending game. Computing final scores...", g.ID)

	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}

	// An externally triggered end (forfeit) abandons the engine session so a
	// reloaded snapshot cannot resume play.
	if g.Engine.Status == engine.StatusPlaying || g.Engine.Status == engine.StatusLobby {
		g.Engine.Abandon()
	}

	finalScores := make(map[uuid.UUID]int)
	for s := uint8(0); s < g.Engine.NumSeats; s++ {
		playerUUID := g.SeatToPlayer[s]
		if playerUUID == uuid.Nil {
			continue
		}
		finalScores[playerUUID] = int(g.Engine.Players[s].Score)
	}

	var winnerID uuid.UUID
	if g.Engine.Winner >= 0 {
		winnerID = g.SeatToPlayer[uint8(g.Engine.Winner)]
	} else if g.HouseRules.ForfeitOnDisconnect {
		// Forfeit ending: last connected player wins.
		for _, p := range g.Players {
			if p.Connected {
				winnerID = p.ID
				break
			}
		}
	}

	g.commitState()
	g.logAction(uuid.Nil, string(EventGameEnd), map[string]interface{}{
		"scores": finalScores,
		"winner": winnerID,
	})
	if database.DB != nil {
		go database.StoreFinalResults(context.Background(), g.ID, winnerID, finalScores)
	}

	resultsPayload := map[string]interface{}{
		"scores": map[string]int{},
		"winner": winnerID.String(),
	}
	for pid, score := range finalScores {
		resultsPayload["scores"].(map[string]int)[pid.String()] = score
	}
	g.fireEvent(GameEvent{
		Type:    EventGameEnd,
		Payload: resultsPayload,
	})

	if g.OnGameEnd != nil {
		g.OnGameEnd(g.LobbyID, winnerID, finalScores)
	}

	log.Printf("Game %s: Ended. Winner: %s. Final Scores: %v", g.ID, winnerID, finalScores)
}

// logAction sends game action details to the historian service via Redis queue.
// Increments the internal action index for ordering.
// Assumes lock is held by caller.
func (g *Phase10Game) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   actorID, // Can be Nil for game events.
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}

	// Asynchronously publish to Redis.
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cache.Rdb == nil {
			return
		}
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			log.Printf("Error: Game %s: Failed publishing action %d ('%s') to Redis: %v", g.ID, rec.ActionIndex, rec.ActionType, err)
		}
	}(record)
}
