// internal/models/models.go
package models

import (
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// User holds the persistent account information for a registered user.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // Never serialized.
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// Player represents a user's presence inside a single game session,
// including their live WebSocket connection.
type Player struct {
	ID        uuid.UUID       `json:"id"`
	User      User            `json:"user"`
	Conn      *websocket.Conn `json:"-"`
	Connected bool            `json:"connected"`
	Seat      uint8           `json:"seat"`
}

// GameAction is the envelope for a client-initiated game action received
// over the WebSocket connection.
type GameAction struct {
	ActionType string                 `json:"action"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// GameSession is the database record for one persisted game session. State
// holds the serialized engine state; Version increments on every committed
// update and guards compare-and-set writes.
type GameSession struct {
	ID        uuid.UUID `json:"id"`
	LobbyID   uuid.UUID `json:"lobbyId"`
	Status    string    `json:"status"`
	State     []byte    `json:"state"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PhaseSetRecord is the database record for a named phase ladder. Phases
// holds the JSON wire form of an engine.PhaseSet.
type PhaseSetRecord struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"ownerId"`
	Name      string    `json:"name"`
	Phases    []byte    `json:"phases"`
	CreatedAt time.Time `json:"createdAt"`
}
