// internal/models/house_rules.go
package models

// HouseRules captures the final game-time configuration from the lobby
// including seat limits, optional rule variations, disconnection policies,
// and turn timeouts.
type HouseRules struct {
	// MaxPlayers caps the number of seats in the session (2-6).
	MaxPlayers int

	// HandSize is the number of cards dealt per player each round (0 => standard 10).
	HandSize int

	// AllowSkipPickup permits drawing a skip card from the discard pile.
	AllowSkipPickup bool

	// ForfeitOnDisconnect indicates if a player should immediately forfeit upon disconnect.
	ForfeitOnDisconnect bool

	// TurnTimeoutSec is how many seconds each turn lasts before auto-advancing (0 => no limit).
	TurnTimeoutSec int

	// AutoStart indicates if the lobby automatically starts the game once all players are ready.
	AutoStart bool
}

// TurnTimeoutSeconds returns the configured turn timeout or 0 if no limit.
func (h HouseRules) TurnTimeoutSeconds() int {
	return h.TurnTimeoutSec
}

// DefaultHouseRules returns the standard session configuration.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		MaxPlayers:          6,
		HandSize:            0,
		AllowSkipPickup:     false,
		ForfeitOnDisconnect: false,
		TurnTimeoutSec:      45,
		AutoStart:           false,
	}
}
