package database

import (
	"context"
	"time"
)

// NotetakerEmployee is one employee with an encrypted notetaker API key.
// The key is decrypted only in memory during a sync.
type NotetakerEmployee struct {
	Email           string
	Name            string
	APIKeyEncrypted string
	Team            string
	IsActive        bool
	LastSyncedID    string
	LastSyncedAt    *time.Time
}

// UpsertNotetakerEmployee adds or updates an employee credential. Rotation
// overwrites the encrypted column.
func (db *DB) UpsertNotetakerEmployee(ctx context.Context, e *NotetakerEmployee) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO notetaker_employees (employee_email, employee_name, api_key_encrypted, team, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_email) DO UPDATE SET
			employee_name = EXCLUDED.employee_name,
			api_key_encrypted = EXCLUDED.api_key_encrypted,
			team = EXCLUDED.team,
			is_active = EXCLUDED.is_active
	`, e.Email, e.Name, e.APIKeyEncrypted, e.Team, e.IsActive)
	return err
}

// ActiveNotetakerEmployees lists employees enabled for sync.
func (db *DB) ActiveNotetakerEmployees(ctx context.Context) ([]NotetakerEmployee, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT employee_email, employee_name, api_key_encrypted, team, is_active,
		       last_synced_id, last_synced_at
		FROM notetaker_employees
		WHERE is_active
		ORDER BY employee_email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotetakerEmployee
	for rows.Next() {
		var e NotetakerEmployee
		if err := rows.Scan(&e.Email, &e.Name, &e.APIKeyEncrypted, &e.Team, &e.IsActive,
			&e.LastSyncedID, &e.LastSyncedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateSyncWatermark records the newest meeting id seen for an employee so
// the next sync only pulls newer ones.
func (db *DB) UpdateSyncWatermark(ctx context.Context, email, lastSyncedID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE notetaker_employees
		SET last_synced_id = $2, last_synced_at = NOW()
		WHERE employee_email = $1
	`, email, lastSyncedID)
	return err
}
