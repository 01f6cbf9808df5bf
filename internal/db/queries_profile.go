package db

import (
	"database/sql"
	"fmt"
)

// GetProfile returns all stored facts for a user. A user with no profile
// yields an empty map, not an error.
func (d *DB) GetProfile(userID string) (map[string]string, error) {
	rows, err := d.conn.Query("SELECT key, value FROM profiles WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	defer rows.Close()
	profile := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		profile[k] = v
	}
	return profile, rows.Err()
}

// GetProfileValue returns one fact, or "" when the key is absent.
func (d *DB) GetProfileValue(userID, key string) (string, error) {
	var v string
	err := d.conn.QueryRow("SELECT value FROM profiles WHERE user_id = ? AND key = ?", userID, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading profile key %q: %w", key, err)
	}
	return v, nil
}

// MergeProfile applies a partial update as a union: supplied keys are
// overwritten, everything else is left alone. The whole update is one
// transaction so concurrent writers cannot interleave half a merge.
func (d *DB) MergeProfile(userID string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("starting profile merge: %w", err)
	}
	defer tx.Rollback()
	for k, v := range fields {
		_, err := tx.Exec(
			`INSERT INTO profiles (user_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')`,
			userID, k, v,
		)
		if err != nil {
			return fmt.Errorf("merging profile key %q: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing profile merge: %w", err)
	}
	return nil
}

// DeleteProfileKey removes a single fact. Deleting an absent key is a no-op.
func (d *DB) DeleteProfileKey(userID, key string) error {
	_, err := d.conn.Exec("DELETE FROM profiles WHERE user_id = ? AND key = ?", userID, key)
	if err != nil {
		return fmt.Errorf("deleting profile key %q: %w", key, err)
	}
	return nil
}

// DeleteProfile wipes every fact for a user (the "forget me" command).
func (d *DB) DeleteProfile(userID string) error {
	_, err := d.conn.Exec("DELETE FROM profiles WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}
