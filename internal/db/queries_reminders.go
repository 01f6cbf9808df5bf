package db

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the wire format for reminder due times, stored in UTC.
const TimeLayout = "2006-01-02 15:04:05"

const (
	ReminderPending = "pending"
	ReminderSent    = "sent"
	ReminderError   = "error"
)

type Reminder struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	DueAt     time.Time `json:"due_at"`
	Status    string    `json:"status"`
	CreatedAt string    `json:"created_at"`
}

// CreateReminder inserts a pending reminder. Duplicate identical reminders
// are accepted; the caller is responsible for any dedup it wants.
func (d *DB) CreateReminder(userID, message string, dueAt time.Time) (int64, error) {
	res, err := d.conn.Exec(
		"INSERT INTO reminders (user_id, message, due_at) VALUES (?, ?, ?)",
		userID, message, dueAt.UTC().Format(TimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("creating reminder: %w", err)
	}
	return res.LastInsertId()
}

// ListDueReminders returns pending reminders whose due time is at or before
// the given instant, oldest first.
func (d *DB) ListDueReminders(now time.Time) ([]Reminder, error) {
	rows, err := d.conn.Query(
		"SELECT id, user_id, message, due_at, status, created_at FROM reminders WHERE status = 'pending' AND due_at <= ? ORDER BY due_at ASC",
		now.UTC().Format(TimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("listing due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListRemindersBetween returns a user's pending reminders due in [from, to),
// used by the daily digest.
func (d *DB) ListRemindersBetween(userID string, from, to time.Time) ([]Reminder, error) {
	rows, err := d.conn.Query(
		"SELECT id, user_id, message, due_at, status, created_at FROM reminders WHERE user_id = ? AND status = 'pending' AND due_at >= ? AND due_at < ? ORDER BY due_at ASC",
		userID, from.UTC().Format(TimeLayout), to.UTC().Format(TimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("listing reminders between: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListUpcomingReminders returns pending reminders not yet due, soonest first.
func (d *DB) ListUpcomingReminders(now time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(
		"SELECT id, user_id, message, due_at, status, created_at FROM reminders WHERE status = 'pending' AND due_at > ? ORDER BY due_at ASC LIMIT ?",
		now.UTC().Format(TimeLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing upcoming reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkReminderSent transitions a reminder to sent.
func (d *DB) MarkReminderSent(id int64) error {
	return d.setReminderStatus(id, ReminderSent)
}

// MarkReminderError parks a reminder that was permanently rejected by the
// messaging API, so it stops occupying the sweep.
func (d *DB) MarkReminderError(id int64) error {
	return d.setReminderStatus(id, ReminderError)
}

func (d *DB) setReminderStatus(id int64, status string) error {
	_, err := d.conn.Exec("UPDATE reminders SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("marking reminder %d %s: %w", id, status, err)
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var r Reminder
		var due string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Message, &due, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reminder: %w", err)
		}
		t, err := time.ParseInLocation(TimeLayout, due, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing reminder %d due time: %w", r.ID, err)
		}
		r.DueAt = t
		out = append(out, r)
	}
	return out, rows.Err()
}
