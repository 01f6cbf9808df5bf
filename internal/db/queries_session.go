package db

import (
	"database/sql"
	"fmt"
)

// GetSession returns the stored conversation context blob, or "" when the
// user has no session yet. The blob is opaque to this layer.
func (d *DB) GetSession(userID string) (string, error) {
	var context string
	err := d.conn.QueryRow("SELECT context FROM sessions WHERE user_id = ?", userID).Scan(&context)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}
	return context, nil
}

// SaveSession upserts the conversation context blob for a user.
func (d *DB) SaveSession(userID, context string) error {
	_, err := d.conn.Exec(
		`INSERT INTO sessions (user_id, context) VALUES (?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET context = excluded.context, updated_at = datetime('now')`,
		userID, context,
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// ClearSession drops the session row. The profile is untouched.
func (d *DB) ClearSession(userID string) error {
	_, err := d.conn.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
