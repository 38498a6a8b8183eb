package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// StateKeyMain is the key of the scheduler's long-lived processing state.
const StateKeyMain = "main_processor"

// GetStateValue loads the JSON state for a key, or nil when absent.
func (db *DB) GetStateValue(ctx context.Context, key string) (json.RawMessage, error) {
	var value json.RawMessage
	err := db.Pool.QueryRow(ctx,
		`SELECT state_value FROM processing_state WHERE state_key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// PutStateValue upserts the JSON state for a key and refreshes its checkpoint.
func (db *DB) PutStateValue(ctx context.Context, key string, value json.RawMessage) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO processing_state (state_key, state_value, is_active, last_checkpoint)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (state_key) DO UPDATE SET
			state_value = EXCLUDED.state_value,
			last_checkpoint = NOW()
	`, key, value)
	return err
}

// PutCheckpoint upserts the checkpoint blob for a key, optionally toggling
// the active flag.
func (db *DB) PutCheckpoint(ctx context.Context, key string, checkpoint json.RawMessage, active bool) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO processing_state (state_key, checkpoint_data, is_active, last_checkpoint)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (state_key) DO UPDATE SET
			checkpoint_data = EXCLUDED.checkpoint_data,
			is_active = EXCLUDED.is_active,
			last_checkpoint = NOW()
	`, key, checkpoint, active)
	return err
}

// GetCheckpoint loads the checkpoint blob for a key, or nil when absent.
func (db *DB) GetCheckpoint(ctx context.Context, key string) (json.RawMessage, error) {
	var data *json.RawMessage
	err := db.Pool.QueryRow(ctx,
		`SELECT checkpoint_data FROM processing_state WHERE state_key = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return *data, nil
}

// ActiveCheckpoints returns checkpoint blobs for all active keys with the
// given prefix, keyed by state_key.
func (db *DB) ActiveCheckpoints(ctx context.Context, prefix string) (map[string]json.RawMessage, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT state_key, checkpoint_data FROM processing_state
		WHERE state_key LIKE $1 || '%' AND is_active AND checkpoint_data IS NOT NULL
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key string
		var data json.RawMessage
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		out[key] = data
	}
	return out, rows.Err()
}

// CleanupOldStates deletes inactive states last touched before the age cutoff.
func (db *DB) CleanupOldStates(ctx context.Context, age time.Duration) (int, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM processing_state
		WHERE NOT is_active AND last_checkpoint < $1
	`, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
