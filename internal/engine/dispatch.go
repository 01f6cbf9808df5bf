package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ploy/mali/internal/db"
	"github.com/ploy/mali/internal/directive"
)

// Reminder times outside this window are rejected: the model resolves
// relative expressions itself and is not trusted unconditionally.
const (
	reminderPastGrace    = time.Minute
	reminderFutureWindow = 365 * 24 * time.Hour
)

// dispatch applies one parsed directive's side effect. A dispatch failure is
// reported to the caller for logging but never reaches the user; the cleaned
// reply is delivered either way.
func (e *Engine) dispatch(userID string, d *directive.Directive) error {
	switch d.Kind {
	case directive.KindSaveProfile:
		return e.db.MergeProfile(userID, d.Profile)

	case directive.KindDeleteProfile:
		return e.db.DeleteProfileKey(userID, d.Key)

	case directive.KindSetReminder:
		return e.createReminder(userID, d.Reminder.Time, d.Reminder.Message)

	case directive.KindSetPendingAction:
		data, err := json.Marshal(d.Pending.Data)
		if err != nil {
			return fmt.Errorf("encoding pending data: %w", err)
		}
		return e.db.SetPendingAction(userID, d.Pending.Action, string(data))
	}
	return fmt.Errorf("unknown directive kind %q", d.Kind)
}

// createReminder localizes the model-resolved naive time to the operating
// timezone and sanity-checks it before storing.
func (e *Engine) createReminder(userID, timeStr, message string) error {
	due, err := time.ParseInLocation(db.TimeLayout, timeStr, e.loc)
	if err != nil {
		return fmt.Errorf("parsing reminder time %q: %w", timeStr, err)
	}
	now := e.now()
	if due.Before(now.Add(-reminderPastGrace)) {
		return fmt.Errorf("reminder time %q is in the past", timeStr)
	}
	if due.After(now.Add(reminderFutureWindow)) {
		return fmt.Errorf("reminder time %q is too far in the future", timeStr)
	}
	if _, err := e.db.CreateReminder(userID, message, due); err != nil {
		return err
	}
	return nil
}
