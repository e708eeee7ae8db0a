package fan

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryEntry is one recorded state change.
type HistoryEntry struct {
	ID        int64        `json:"id"`
	FanID     string       `json:"fan_id"`
	State     Snapshot     `json:"state"`
	Source    ChangeSource `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
}

// SQLiteHistoryRepository records snapshots in the fan_state_history table.
// It is an operator log; nothing reads it back to restore state.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a history repository using db.
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

// Record appends a snapshot.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - snap: Snapshot to store; snap.FanID must be set
//   - source: What caused the change (command, sensor, restore)
func (r *SQLiteHistoryRepository) Record(ctx context.Context, snap Snapshot, source ChangeSource) error {
	if snap.FanID == "" {
		return fmt.Errorf("fan id is required")
	}
	if source == "" {
		source = SourceCommand
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO fan_state_history (fan_id, state, source, created_at) VALUES (?, ?, ?, ?)",
		snap.FanID, string(data), string(source), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// List returns recent entries for fanID, newest first.
// limit defaults to 50 and is capped at 200.
func (r *SQLiteHistoryRepository) List(ctx context.Context, fanID string, limit int) ([]HistoryEntry, error) {
	if fanID == "" {
		return nil, fmt.Errorf("fan id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, fan_id, state, source, created_at
		 FROM fan_state_history
		 WHERE fan_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		fanID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e         HistoryEntry
			stateJSON string
			source    string
			createdMs int64
		)
		if err := rows.Scan(&e.ID, &e.FanID, &stateJSON, &source, &createdMs); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &e.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		e.Source = ChangeSource(source)
		e.CreatedAt = time.UnixMilli(createdMs).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many were removed.
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).UnixMilli()
	result, err := r.db.ExecContext(ctx, "DELETE FROM fan_state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
