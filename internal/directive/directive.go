// Package directive implements the micro-protocol between the language model
// and the bot. A reply is prose optionally followed by one directive:
//
//	reply     := prose (directive)?
//	directive := "[" TAG ":" JSON "]"
//
// where TAG is one of SAVE_PROFILE, DELETE_PROFILE, SET_REMINDER,
// SET_PENDING_ACTION and JSON is a single object.
package directive

import (
	"encoding/json"
	"strings"
)

type Kind string

const (
	KindSaveProfile      Kind = "SAVE_PROFILE"
	KindDeleteProfile    Kind = "DELETE_PROFILE"
	KindSetReminder      Kind = "SET_REMINDER"
	KindSetPendingAction Kind = "SET_PENDING_ACTION"
)

// checkOrder is the dispatch order. When a reply textually contains more than
// one marker, the first kind in this order wins and the rest are ignored.
var checkOrder = []Kind{KindSaveProfile, KindDeleteProfile, KindSetReminder, KindSetPendingAction}

// ReminderPayload carries an absolute local time already resolved by the
// model; the bot never parses natural-language time expressions.
type ReminderPayload struct {
	Time    string `json:"time"` // "2006-01-02 15:04:05" in the operating timezone
	Message string `json:"message"`
}

type PendingPayload struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

type Directive struct {
	Kind     Kind
	Profile  map[string]string // KindSaveProfile
	Key      string            // KindDeleteProfile
	Reminder ReminderPayload   // KindSetReminder
	Pending  PendingPayload    // KindSetPendingAction
}

// Parse extracts at most one directive from raw model output. On success the
// clean reply is everything before the marker, trimmed. Any malformed
// directive (unbalanced payload, missing closing bracket, invalid JSON)
// returns the original text verbatim with no directive, so a bad marker can
// never break the exchange.
func Parse(raw string) (string, *Directive) {
	for _, kind := range checkOrder {
		marker := "[" + string(kind) + ":"
		idx := strings.Index(raw, marker)
		if idx < 0 {
			continue
		}
		payload, ok := extractPayload(raw[idx+len(marker):])
		if !ok {
			return raw, nil
		}
		d, ok := decode(kind, payload)
		if !ok {
			return raw, nil
		}
		return strings.TrimSpace(raw[:idx]), d
	}
	return strings.TrimSpace(raw), nil
}

// extractPayload takes the text after "[TAG:" and returns the JSON object up
// to its balanced end, requiring the directive's own closing bracket to
// follow. Unlike a naive slice to the first "]", a "]" inside the payload
// (in a string or a nested array) does not truncate it.
func extractPayload(rest string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			if depth == 0 {
				// Closing bracket of the directive before any payload opened.
				return "", false
			}
			depth--
			if depth == 0 {
				// Payload is balanced; the directive's "]" must follow,
				// allowing whitespace.
				j := i + 1
				for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t' || rest[j] == '\n') {
					j++
				}
				if j < len(rest) && rest[j] == ']' {
					return rest[:i+1], true
				}
				return "", false
			}
		}
	}
	return "", false
}

func decode(kind Kind, payload string) (*Directive, bool) {
	d := &Directive{Kind: kind}
	switch kind {
	case KindSaveProfile:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &fields); err != nil || len(fields) == 0 {
			return nil, false
		}
		d.Profile = make(map[string]string, len(fields))
		for k, v := range fields {
			d.Profile[k] = rawToString(v)
		}
	case KindDeleteProfile:
		var body struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err != nil || body.Key == "" {
			return nil, false
		}
		d.Key = body.Key
	case KindSetReminder:
		if err := json.Unmarshal([]byte(payload), &d.Reminder); err != nil || d.Reminder.Time == "" {
			return nil, false
		}
	case KindSetPendingAction:
		if err := json.Unmarshal([]byte(payload), &d.Pending); err != nil || d.Pending.Action == "" {
			return nil, false
		}
	}
	return d, true
}

// rawToString renders a profile value for storage: JSON strings are stored
// bare, anything else keeps its compact JSON encoding.
func rawToString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
