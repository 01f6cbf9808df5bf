package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const persona = "คุณคือผู้ช่วยส่วนตัวชื่อ 'มะลิ' ตอบกลับเป็นภาษาไทยด้วยน้ำเสียงเป็นกันเอง, เข้าใจง่าย, และไม่ใช้ Markdown"

const directiveInstructions = `You can manage the user's long-term memory and reminders by appending exactly one directive to the very end of your reply. The user never sees directives; keep the visible reply natural.

- When the user tells you a lasting fact about themselves (name, nickname, preferences, birthday), append: [SAVE_PROFILE:{"key":"value"}]. Store birthdays under the key "birthday" in DD-MM form, e.g. {"birthday":"05-03"}.
- When the user asks you to forget one fact, append: [DELETE_PROFILE:{"key":"name"}]
- When the user asks for a reminder and you know BOTH the time and the message, resolve any relative expression ("tomorrow 9am") against the current date above into an absolute time and append: [SET_REMINDER:{"time":"YYYY-MM-DD HH:MM:SS","message":"..."}]
- When the user gives a reminder time but not yet the message, ask what to be reminded about and append: [SET_PENDING_ACTION:{"action":"set_reminder_message","data":{"time":"YYYY-MM-DD HH:MM:SS"}}]

Rules: at most one directive per reply, always as the last thing in the reply, with valid JSON. Do not invent facts; only save what the user actually said.`

// buildSystemInstruction assembles the per-turn system prompt: persona, the
// current date in the operating timezone (so the model can resolve relative
// times), known profile facts, and the directive emission instructions.
func buildSystemInstruction(profile map[string]string, now time.Time) string {
	var b strings.Builder
	b.WriteString(persona)
	fmt.Fprintf(&b, "\n\nCurrent date and time: %s (%s)", now.Format("2006-01-02 15:04:05"), now.Weekday())

	if len(profile) > 0 {
		b.WriteString("\n\nสิ่งที่คุณรู้เกี่ยวกับผู้ใช้คนนี้:\n")
		keys := make([]string, 0, len(profile))
		for k := range profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, profile[k])
		}
	}

	b.WriteString("\n\n")
	b.WriteString(directiveInstructions)
	return b.String()
}
