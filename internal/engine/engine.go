package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ploy/mali/internal/db"
	"github.com/ploy/mali/internal/directive"
	"github.com/ploy/mali/internal/llm"
)

// sessionWindow is how many turns (user + model) the short-term memory
// keeps. Older turns are dropped, never summarized.
const sessionWindow = 8

// actionSetReminderMessage is the single supported pending action: the due
// time is stored, the next inbound message becomes the reminder text.
const actionSetReminderMessage = "set_reminder_message"

const (
	replyReset        = "🧠 ล้างความจำของ AI สำเร็จแล้ว! เริ่มคุยใหม่ได้เลยครับ"
	replyForget       = "ลบข้อมูลที่จำไว้เกี่ยวกับคุณทั้งหมดแล้วค่ะ เริ่มต้นกันใหม่นะคะ"
	replyReminderSet  = "รับทราบค่ะ จะเตือน \"%s\" วันที่ %s นะคะ ⏰"
	replyReminderFail = "ขอโทษค่ะ ตั้งการแจ้งเตือนไม่สำเร็จ ลองบอกเวลาใหม่อีกครั้งนะคะ"

	apologyConnection = "ขออภัยค่ะ มีปัญหาในการเชื่อมต่อกับ AI ลองใหม่อีกครั้งนะคะ"
	apologyInternal   = "ขอโทษค่ะ ระบบขัดข้อง ไม่สามารถตอบกลับได้ในขณะนี้"
	apologySafety     = "ขออภัยค่ะ คำตอบถูกกรองด้วยเหตุผลด้านความปลอดภัยของเนื้อหา"
	apologyIncomplete = "ขออภัยค่ะ ไม่สามารถสร้างคำตอบที่สมบูรณ์ได้ในขณะนี้"
)

var emotions = []string{"😊", "😄", "🤔", "👍", "🙌", "😉", "✨"}

var resetCommands = map[string]bool{
	"/reset":     true,
	"reset":      true,
	"clear":      true,
	"ล้างความจำ": true,
}

var forgetCommands = map[string]bool{
	"/forgetme": true,
	"forget me": true,
	"ลืมฉัน":    true,
}

// Engine is the conversation orchestrator: it owns the pending-action state
// machine, prompt construction, directive dispatch, and the session window.
type Engine struct {
	db     *db.DB
	client llm.Client
	loc    *time.Location
	params llm.Params
	now    func() time.Time

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func New(database *db.DB, client llm.Client, loc *time.Location) *Engine {
	return &Engine{
		db:     database,
		client: client,
		loc:    loc,
		params: llm.DefaultParams(),
		now:    time.Now,
		users:  make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing one user's read-modify-write cycle.
// The store is last-write-wins, so concurrent messages from the same user
// must not interleave their session updates.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	mu, ok := e.users[userID]
	if !ok {
		mu = &sync.Mutex{}
		e.users[userID] = mu
	}
	return mu
}

// HandleMessage processes one inbound message and always returns something
// presentable: on any internal failure the user gets a canned apology, never
// an error.
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)

	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	// Commands bypass the model but still take the user lock first, so a
	// reset cannot be undone by an in-flight exchange writing its session
	// back afterwards. Reset touches only the session; forget-me wipes the
	// profile and any pending state derived from it.
	if resetCommands[lower] {
		if err := e.db.ClearSession(userID); err != nil {
			log.Printf("engine: clearing session for %s: %v", userID, err)
			return apologyInternal
		}
		return replyReset
	}
	if forgetCommands[lower] {
		if err := e.db.DeleteProfile(userID); err != nil {
			log.Printf("engine: deleting profile for %s: %v", userID, err)
			return apologyInternal
		}
		if err := e.db.ClearPendingAction(userID); err != nil {
			log.Printf("engine: clearing pending action for %s: %v", userID, err)
			return apologyInternal
		}
		return replyForget
	}

	// Mid pending-action: the inbound text itself completes the operation,
	// no model call this turn.
	pending, err := e.db.GetPendingAction(userID)
	if err != nil {
		log.Printf("engine: loading pending action for %s: %v", userID, err)
	}
	if pending != nil {
		if pending.Action == actionSetReminderMessage {
			return e.completePendingReminder(userID, pending, text)
		}
		// An unrecognized action would otherwise linger forever.
		log.Printf("engine: clearing unknown pending action %q for %s", pending.Action, userID)
		if err := e.db.ClearPendingAction(userID); err != nil {
			log.Printf("engine: clearing pending action for %s: %v", userID, err)
		}
	}

	profile, err := e.db.GetProfile(userID)
	if err != nil {
		log.Printf("engine: loading profile for %s: %v", userID, err)
		profile = map[string]string{}
	}

	history := e.loadSession(userID)
	history = append(history, llm.Message{Role: "user", Text: text})

	system := buildSystemInstruction(profile, e.now().In(e.loc))

	raw, err := e.client.Generate(ctx, system, history, e.params)
	if err != nil {
		return e.apologyFor(userID, err)
	}

	clean, dir := directive.Parse(raw)
	if dir != nil {
		if err := e.dispatch(userID, dir); err != nil {
			log.Printf("engine: dispatching %s for %s: %v", dir.Kind, userID, err)
		}
	}

	// The session stores the clean reply, never the directive-laden raw text.
	history = append(history, llm.Message{Role: "model", Text: clean})
	e.saveSession(userID, history)

	return clean + " " + emotions[rand.IntN(len(emotions))]
}

// completePendingReminder materializes a reminder from the stored due time
// and the just-received message text. The pending state is cleared no matter
// what: a malformed stored time must not leave the user stuck in limbo.
func (e *Engine) completePendingReminder(userID string, pending *db.PendingAction, text string) string {
	if err := e.db.ClearPendingAction(userID); err != nil {
		log.Printf("engine: clearing pending action for %s: %v", userID, err)
	}

	var data struct {
		Time string `json:"time"`
	}
	if err := json.Unmarshal([]byte(pending.Data), &data); err != nil || data.Time == "" {
		log.Printf("engine: pending action for %s has bad data %q", userID, pending.Data)
		return replyReminderFail
	}
	due, err := time.ParseInLocation(db.TimeLayout, data.Time, e.loc)
	if err != nil {
		log.Printf("engine: pending action for %s has bad time %q: %v", userID, data.Time, err)
		return replyReminderFail
	}
	// Same window as a direct reminder directive. The stored time may have
	// gone stale while the user dawdled over the message.
	now := e.now()
	if due.Before(now.Add(-reminderPastGrace)) || due.After(now.Add(reminderFutureWindow)) {
		log.Printf("engine: pending reminder time %q for %s is out of range", data.Time, userID)
		return replyReminderFail
	}
	if _, err := e.db.CreateReminder(userID, text, due); err != nil {
		log.Printf("engine: creating reminder for %s: %v", userID, err)
		return replyReminderFail
	}
	return fmt.Sprintf(replyReminderSet, text, due.Format("2006-01-02 15:04"))
}

func (e *Engine) apologyFor(userID string, err error) string {
	var transport *llm.TransportError
	switch {
	case errors.Is(err, llm.ErrSafetyFiltered):
		return apologySafety
	case errors.Is(err, llm.ErrEmptyResponse):
		return apologyIncomplete
	case errors.As(err, &transport):
		log.Printf("engine: llm transport failure for %s: %v", userID, err)
		return apologyConnection
	default:
		log.Printf("engine: llm failure for %s: %v", userID, err)
		return apologyInternal
	}
}

// loadSession deserializes the stored window. A corrupt blob starts a fresh
// session rather than failing the exchange.
func (e *Engine) loadSession(userID string) []llm.Message {
	blob, err := e.db.GetSession(userID)
	if err != nil {
		log.Printf("engine: loading session for %s: %v", userID, err)
		return nil
	}
	if blob == "" {
		return nil
	}
	var msgs []llm.Message
	if err := json.Unmarshal([]byte(blob), &msgs); err != nil {
		log.Printf("engine: session for %s is corrupt, starting fresh: %v", userID, err)
		return nil
	}
	history := msgs[:0]
	for _, m := range msgs {
		if (m.Role == "user" || m.Role == "model") && m.Text != "" {
			history = append(history, m)
		}
	}
	return history
}

// saveSession persists the most recent turns, FIFO-truncated to the window.
func (e *Engine) saveSession(userID string, history []llm.Message) {
	if len(history) > sessionWindow {
		history = history[len(history)-sessionWindow:]
	}
	blob, err := json.Marshal(history)
	if err != nil {
		log.Printf("engine: marshaling session for %s: %v", userID, err)
		return
	}
	if err := e.db.SaveSession(userID, string(blob)); err != nil {
		log.Printf("engine: saving session for %s: %v", userID, err)
	}
}
