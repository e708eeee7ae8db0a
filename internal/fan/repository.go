package fan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository stores the last known state of each fan.
type Repository interface {
	// LoadLast returns the stored state, or ErrStateNotFound.
	LoadLast(ctx context.Context, fanID string) (State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, fanID string, st State) error
}

// SQLiteRepository implements Repository on the fan_states table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository using db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LoadLast returns the stored state for fanID.
func (r *SQLiteRepository) LoadLast(ctx context.Context, fanID string) (State, error) {
	var (
		st          State
		speed       string
		direction   sql.NullString
		oscillating sql.NullInt64
		lastOn      sql.NullString
		onByRemote  int64
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT speed, direction, oscillating, last_on_speed, on_by_remote
		 FROM fan_states WHERE fan_id = ?`,
		fanID,
	).Scan(&speed, &direction, &oscillating, &lastOn, &onByRemote)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrStateNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("querying fan state: %w", err)
	}

	st.Speed = Speed(speed)
	st.Direction = Direction(direction.String)
	st.Oscillating = oscillating.Valid && oscillating.Int64 != 0
	st.LastOnSpeed = Speed(lastOn.String)
	st.OnByRemote = onByRemote != 0
	return st, nil
}

// Save upserts the state for fanID.
func (r *SQLiteRepository) Save(ctx context.Context, fanID string, st State) error {
	if fanID == "" {
		return fmt.Errorf("fan id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fan_states (fan_id, speed, direction, oscillating, last_on_speed, on_by_remote, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fan_id) DO UPDATE SET
		   speed = excluded.speed,
		   direction = excluded.direction,
		   oscillating = excluded.oscillating,
		   last_on_speed = excluded.last_on_speed,
		   on_by_remote = excluded.on_by_remote,
		   updated_at = excluded.updated_at`,
		fanID,
		string(st.Speed),
		nullString(string(st.Direction)),
		boolToInt(st.Oscillating),
		nullString(string(st.LastOnSpeed)),
		boolToInt(st.OnByRemote),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving fan state: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
