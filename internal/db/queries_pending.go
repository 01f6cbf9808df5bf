package db

import (
	"database/sql"
	"fmt"
)

type PendingAction struct {
	UserID    string `json:"user_id"`
	Action    string `json:"action"`
	Data      string `json:"data"` // JSON object, owned by the engine
	CreatedAt string `json:"created_at"`
}

// GetPendingAction returns the user's in-flight two-step operation, or nil
// when there is none. A user has at most one.
func (d *DB) GetPendingAction(userID string) (*PendingAction, error) {
	var p PendingAction
	err := d.conn.QueryRow(
		"SELECT user_id, action, data, created_at FROM pending_actions WHERE user_id = ?", userID,
	).Scan(&p.UserID, &p.Action, &p.Data, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading pending action: %w", err)
	}
	return &p, nil
}

// SetPendingAction stores a pending operation, replacing any existing one.
// The state machine is single-depth: a new pending action always overwrites.
func (d *DB) SetPendingAction(userID, action, data string) error {
	_, err := d.conn.Exec(
		`INSERT INTO pending_actions (user_id, action, data) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET action = excluded.action, data = excluded.data, created_at = datetime('now')`,
		userID, action, data,
	)
	if err != nil {
		return fmt.Errorf("setting pending action: %w", err)
	}
	return nil
}

// ClearPendingAction removes the user's pending operation, if any.
func (d *DB) ClearPendingAction(userID string) error {
	_, err := d.conn.Exec("DELETE FROM pending_actions WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("clearing pending action: %w", err)
	}
	return nil
}
