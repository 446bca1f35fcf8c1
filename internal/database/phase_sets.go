// internal/database/phase_sets.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bufordeeds/phase10/internal/models"
)

// ErrPhaseSetNotFound is returned when a phase set lookup matches no row.
var ErrPhaseSetNotFound = errors.New("phase set not found")

// SavePhaseSet inserts or replaces a named phase ladder. phases holds the
// JSON wire form of an engine.PhaseSet; the round trip is lossless so the
// ladder loads back exactly as stored.
func SavePhaseSet(ctx context.Context, ownerID uuid.UUID, name string, phases []byte) (*models.PhaseSetRecord, error) {
	rec := &models.PhaseSetRecord{ID: uuid.New(), OwnerID: ownerID, Name: name, Phases: phases}
	const q = `
		INSERT INTO phase_sets (id, owner_id, name, phases, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (owner_id, name) DO UPDATE SET phases = EXCLUDED.phases
		RETURNING id, created_at`
	if err := DB.QueryRow(ctx, q, rec.ID, rec.OwnerID, rec.Name, rec.Phases).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("save phase set: %w", err)
	}
	return rec, nil
}

// LoadPhaseSet fetches a phase ladder by id.
func LoadPhaseSet(ctx context.Context, id uuid.UUID) (*models.PhaseSetRecord, error) {
	const q = `
		SELECT id, owner_id, name, phases, created_at
		FROM phase_sets WHERE id = $1`
	rec := &models.PhaseSetRecord{}
	err := DB.QueryRow(ctx, q, id).Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.Phases, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPhaseSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load phase set: %w", err)
	}
	return rec, nil
}
