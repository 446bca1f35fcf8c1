// internal/database/database.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/bufordeeds/phase10/internal/models"
)

// DB is the shared connection pool. A nil DB means persistence is disabled
// and callers should skip database writes.
var DB *pgxpool.Pool

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("game session not found")

// ErrVersionConflict is returned by SaveGameSessionState when the expected
// version no longer matches the stored row: another writer committed first.
// Callers should reload the session and retry against the fresh state.
var ErrVersionConflict = errors.New("game session version conflict")

// Connect establishes the shared pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	DB = pool
	logrus.Info("database: connected")
	return nil
}

// Close releases the shared pool.
func Close() {
	if DB != nil {
		DB.Close()
		DB = nil
	}
}

// CreateGameSession inserts a new session row at version 0 and returns it.
func CreateGameSession(ctx context.Context, id, lobbyID uuid.UUID, status string, state []byte) (*models.GameSession, error) {
	sess := &models.GameSession{
		ID:      id,
		LobbyID: lobbyID,
		Status:  status,
		State:   state,
	}
	const q = `
		INSERT INTO game_sessions (id, lobby_id, status, state, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, now(), now())
		RETURNING version, created_at, updated_at`
	err := DB.QueryRow(ctx, q, sess.ID, sess.LobbyID, sess.Status, sess.State).
		Scan(&sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert game session: %w", err)
	}
	return sess, nil
}

// LoadGameSession fetches a session row by id.
func LoadGameSession(ctx context.Context, id uuid.UUID) (*models.GameSession, error) {
	const q = `
		SELECT id, lobby_id, status, state, version, created_at, updated_at
		FROM game_sessions WHERE id = $1`
	sess := &models.GameSession{}
	err := DB.QueryRow(ctx, q, id).Scan(
		&sess.ID, &sess.LobbyID, &sess.Status, &sess.State,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game session: %w", err)
	}
	return sess, nil
}

// SaveGameSessionState commits a new state snapshot with optimistic
// concurrency: the write succeeds only if the stored version still equals
// expectedVersion. Returns the new version on success.
func SaveGameSessionState(ctx context.Context, id uuid.UUID, status string, state []byte, expectedVersion int64) (int64, error) {
	const q = `
		UPDATE game_sessions
		SET status = $2, state = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $4
		RETURNING version`
	var newVersion int64
	err := DB.QueryRow(ctx, q, id, status, state, expectedVersion).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row missing or version moved; disambiguate for the caller.
		if _, loadErr := LoadGameSession(ctx, id); errors.Is(loadErr, ErrSessionNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("save game session: %w", err)
	}
	return newVersion, nil
}

// StoreFinalResults records per-player results for a finished session.
func StoreFinalResults(ctx context.Context, sessionID uuid.UUID, winner uuid.UUID, scores map[uuid.UUID]int) {
	const q = `
		INSERT INTO game_results (session_id, user_id, score, is_winner, recorded_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_id, user_id) DO UPDATE
		SET score = EXCLUDED.score, is_winner = EXCLUDED.is_winner`
	for userID, score := range scores {
		if _, err := DB.Exec(ctx, q, sessionID, userID, score, userID == winner); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"session": sessionID,
				"user":    userID,
			}).Error("database: failed storing final result")
		}
	}
}
