// internal/game/store.go
package game

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/bufordeeds/phase10/internal/cache"
	"github.com/bufordeeds/phase10/internal/database"
	"github.com/bufordeeds/phase10/internal/models"
)

// SessionSnapshot is one committed version of a session's persisted state.
type SessionSnapshot struct {
	Status  string
	State   []byte
	Version int64
}

// SessionStore persists session state with optimistic concurrency. Save
// succeeds only when expectedVersion matches the stored version and returns
// the new version; a conflicting write returns database.ErrVersionConflict,
// after which the caller reloads and retries against the fresh snapshot.
type SessionStore interface {
	Create(ctx context.Context, id, lobbyID uuid.UUID, status string, state []byte) error
	Load(ctx context.Context, id uuid.UUID) (SessionSnapshot, error)
	Save(ctx context.Context, id uuid.UUID, status string, state []byte, expectedVersion int64) (int64, error)
}

// PostgresStore backs SessionStore with the shared database pool and fans
// committed versions out through Redis pub/sub.
type PostgresStore struct{}

// Create inserts a new session row at version 0.
func (PostgresStore) Create(ctx context.Context, id, lobbyID uuid.UUID, status string, state []byte) error {
	_, err := database.CreateGameSession(ctx, id, lobbyID, status, state)
	return err
}

// Load fetches the latest committed snapshot.
func (PostgresStore) Load(ctx context.Context, id uuid.UUID) (SessionSnapshot, error) {
	sess, err := database.LoadGameSession(ctx, id)
	if err != nil {
		return SessionSnapshot{}, err
	}
	return SessionSnapshot{Status: sess.Status, State: sess.State, Version: sess.Version}, nil
}

// Save commits a snapshot with compare-and-set semantics, then notifies
// subscribers of the new version.
func (PostgresStore) Save(ctx context.Context, id uuid.UUID, status string, state []byte, expectedVersion int64) (int64, error) {
	newVersion, err := database.SaveGameSessionState(ctx, id, status, state, expectedVersion)
	if err != nil {
		return 0, err
	}
	if cache.Rdb != nil {
		upd := cache.SessionUpdate{SessionID: id, Version: newVersion, Status: status}
		if pubErr := cache.PublishSessionUpdate(ctx, upd); pubErr != nil {
			log.Printf("Session %s: Failed publishing update for version %d: %v", id, newVersion, pubErr)
		}
	}
	return newVersion, nil
}

// LoadSessionRecord rebuilds a models.GameSession from a store snapshot,
// mostly for handlers that surface raw session info.
func LoadSessionRecord(ctx context.Context, store SessionStore, id uuid.UUID) (*models.GameSession, error) {
	snap, err := store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.GameSession{ID: id, Status: snap.Status, State: snap.State, Version: snap.Version}, nil
}

// encodeState serializes an engine state for persistence. The engine state
// is plain data, so the JSON form round-trips losslessly.
func encodeState(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
