// Package web serves the operator dashboard: the latest exchanges and the
// upcoming reminder queue.
package web

import (
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/ploy/mali/internal/db"
)

type Dashboard struct {
	db  *db.DB
	loc *time.Location
}

func NewDashboard(database *db.DB, loc *time.Location) *Dashboard {
	return &Dashboard{db: database, loc: loc}
}

type dashboardData struct {
	Chats     []db.ChatEntry
	Reminders []reminderRow
}

type reminderRow struct {
	UserID  string
	Message string
	DueAt   string
}

func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chats, err := d.db.RecentChats(50)
	if err != nil {
		log.Printf("dashboard: loading chats: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	upcoming, err := d.db.ListUpcomingReminders(time.Now(), 20)
	if err != nil {
		log.Printf("dashboard: loading reminders: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := dashboardData{Chats: chats}
	for _, rem := range upcoming {
		data.Reminders = append(data.Reminders, reminderRow{
			UserID:  rem.UserID,
			Message: rem.Message,
			DueAt:   rem.DueAt.In(d.loc).Format("2006-01-02 15:04"),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		log.Printf("dashboard: rendering: %v", err)
	}
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>💬 Mali Dashboard</title>
	<meta charset="utf-8">
	<style>
		body { font-family: sans-serif; padding: 2rem; max-width: 64rem; margin: auto; }
		table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
		th, td { border-bottom: 1px solid #ddd; padding: .4rem .6rem; text-align: left; }
		th { background: #f5f5f5; }
	</style>
</head>
<body>
	<h1>📊 Mali Dashboard</h1>

	<h2>⏰ การแจ้งเตือนที่กำลังจะถึง</h2>
	<table>
		<thead><tr><th>เวลา</th><th>User ID</th><th>ข้อความ</th></tr></thead>
		<tbody>
		{{range .Reminders}}
		<tr><td>{{.DueAt}}</td><td>{{.UserID}}</td><td>{{.Message}}</td></tr>
		{{else}}
		<tr><td colspan="3">ไม่มีการแจ้งเตือน</td></tr>
		{{end}}
		</tbody>
	</table>

	<h2>💬 แชทล่าสุด (50 ข้อความ)</h2>
	<table>
		<thead><tr><th>เวลา</th><th>User ID</th><th>ข้อความ</th><th>ตอบกลับ</th></tr></thead>
		<tbody>
		{{range .Chats}}
		<tr><td>{{.CreatedAt}}</td><td>{{.UserID}}</td><td>{{.UserMessage}}</td><td>{{.BotResponse}}</td></tr>
		{{else}}
		<tr><td colspan="4">ยังไม่มีแชท</td></tr>
		{{end}}
		</tbody>
	</table>
</body>
</html>
`))
