package db

import "fmt"

type ChatEntry struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	UserMessage string `json:"user_message"`
	BotResponse string `json:"bot_response"`
	CreatedAt   string `json:"created_at"`
}

// SaveChat appends one exchange to the chat log.
func (d *DB) SaveChat(userID, userMessage, botResponse string) error {
	_, err := d.conn.Exec(
		"INSERT INTO chat_history (user_id, user_message, bot_response) VALUES (?, ?, ?)",
		userID, userMessage, botResponse,
	)
	if err != nil {
		return fmt.Errorf("saving chat: %w", err)
	}
	return nil
}

// RecentChats returns the latest exchanges, newest first.
func (d *DB) RecentChats(limit int) ([]ChatEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.conn.Query(
		"SELECT id, user_id, user_message, bot_response, created_at FROM chat_history ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chat history: %w", err)
	}
	defer rows.Close()
	var out []ChatEntry
	for rows.Next() {
		var c ChatEntry
		if err := rows.Scan(&c.ID, &c.UserID, &c.UserMessage, &c.BotResponse, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat entry: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListUsers returns every user the bot has ever exchanged a message with.
// This is the recipient set for the daily proactive sweep.
func (d *DB) ListUsers() ([]string, error) {
	rows, err := d.conn.Query("SELECT DISTINCT user_id FROM chat_history ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
