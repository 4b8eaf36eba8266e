package orchestration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Journal records phase transitions for operator audit. It is
// best-effort: callers log journal errors but never fail a transition
// over them.
type Journal interface {
	RecordTransition(ctx context.Context, entry TransitionEntry) error
}

type TransitionEntry struct {
	ID         string
	BatchID    string
	FromPhase  Phase
	ToPhase    Phase
	Reason     string
	RecordedAt time.Time
}

// PostgresJournal appends transitions to the batch_transitions table.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

func (j *PostgresJournal) RecordTransition(ctx context.Context, entry TransitionEntry) error {
	query := `
		INSERT INTO batch_transitions (id, batch_id, from_phase, to_phase, reason, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	id := uuid.New().String()
	if entry.ID != "" {
		id = entry.ID
	}

	var reason *string
	if entry.Reason != "" {
		reason = &entry.Reason
	}

	recordedAt := time.Now()
	if !entry.RecordedAt.IsZero() {
		recordedAt = entry.RecordedAt
	}

	_, err := j.db.ExecContext(ctx, query,
		id, entry.BatchID, string(entry.FromPhase), string(entry.ToPhase), reason, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}

	return nil
}

// NopJournal is used when no Postgres connection is configured.
type NopJournal struct{}

func (NopJournal) RecordTransition(ctx context.Context, entry TransitionEntry) error {
	return nil
}
