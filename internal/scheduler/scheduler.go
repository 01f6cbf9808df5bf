// Package scheduler runs the two background sweeps: a one-minute poll that
// delivers due reminders, and a once-daily proactive pass (digest plus
// birthday greetings) over every known user.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ploy/mali/internal/db"
	"github.com/robfig/cron/v3"
)

const sweepInterval = 60 * time.Second

const (
	reminderPrefix   = "⏰ แจ้งเตือน: %s"
	digestHeader     = "🗓️ วันนี้คุณมีการแจ้งเตือน %d รายการค่ะ:\n"
	birthdayGreeting = "🎂 สุขสันต์วันเกิดนะคะ! ขอให้เป็นปีที่ดีมาก ๆ เลยค่ะ 🎉"
)

// Pusher delivers one asynchronous message to one recipient.
type Pusher interface {
	Push(ctx context.Context, userID, text string) error
}

type Scheduler struct {
	db     *db.DB
	pusher Pusher
	loc    *time.Location
	cron   *cron.Cron
	now    func() time.Time
	stop   chan struct{}
}

func New(database *db.DB, pusher Pusher, loc *time.Location) *Scheduler {
	return &Scheduler{
		db:     database,
		pusher: pusher,
		loc:    loc,
		cron:   cron.New(cron.WithLocation(loc)),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

// Start registers the daily sweep on its cron expression and begins the
// due-reminder polling loop. Neither task runs on a request context.
func (s *Scheduler) Start(dailyCron string) error {
	if _, err := s.cron.AddFunc(dailyCron, s.runDailySweep); err != nil {
		return fmt.Errorf("registering daily sweep %q: %w", dailyCron, err)
	}
	s.cron.Start()

	go func() {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.sweepDueReminders()
			case <-s.stop:
				return
			}
		}
	}()

	log.Println("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	close(s.stop)
}

// sweepDueReminders delivers every pending reminder whose due time has
// passed. A retryable delivery failure leaves the row pending for the next
// sweep; a permanent rejection parks it as error so it cannot clog the sweep
// forever.
func (s *Scheduler) sweepDueReminders() {
	due, err := s.db.ListDueReminders(s.now())
	if err != nil {
		log.Printf("scheduler: listing due reminders: %v", err)
		return
	}
	for _, r := range due {
		msg := fmt.Sprintf(reminderPrefix, r.Message)
		if err := s.pusher.Push(context.Background(), r.UserID, msg); err != nil {
			if isPermanent(err) {
				log.Printf("scheduler: reminder %d permanently rejected: %v", r.ID, err)
				if err := s.db.MarkReminderError(r.ID); err != nil {
					log.Printf("scheduler: marking reminder %d error: %v", r.ID, err)
				}
			} else {
				log.Printf("scheduler: delivering reminder %d: %v (will retry)", r.ID, err)
			}
			continue
		}
		if err := s.db.MarkReminderSent(r.ID); err != nil {
			log.Printf("scheduler: marking reminder %d sent: %v", r.ID, err)
		}
	}
}

// runDailySweep pushes the day's digest and birthday greetings. Users are
// processed independently; one bad recipient never blocks the rest.
func (s *Scheduler) runDailySweep() {
	users, err := s.db.ListUsers()
	if err != nil {
		log.Printf("scheduler: listing users for daily sweep: %v", err)
		return
	}
	now := s.now().In(s.loc)
	for _, userID := range users {
		s.dailyForUser(userID, now)
	}
	log.Printf("scheduler: daily sweep completed for %d user(s)", len(users))
}

func (s *Scheduler) dailyForUser(userID string, now time.Time) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	today, err := s.db.ListRemindersBetween(userID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		log.Printf("scheduler: daily reminders for %s: %v", userID, err)
	} else if len(today) > 0 {
		if err := s.pusher.Push(context.Background(), userID, buildDigest(today, s.loc)); err != nil {
			log.Printf("scheduler: pushing digest to %s: %v", userID, err)
		}
	}

	birthday, err := s.db.GetProfileValue(userID, "birthday")
	if err != nil {
		log.Printf("scheduler: birthday lookup for %s: %v", userID, err)
		return
	}
	if birthday != "" && birthday == now.Format("02-01") {
		if err := s.pusher.Push(context.Background(), userID, birthdayGreeting); err != nil {
			log.Printf("scheduler: pushing birthday greeting to %s: %v", userID, err)
		}
	}
}

func buildDigest(reminders []db.Reminder, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, digestHeader, len(reminders))
	for _, r := range reminders {
		fmt.Fprintf(&b, "- %s %s\n", r.DueAt.In(loc).Format("15:04"), r.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func isPermanent(err error) bool {
	var perm interface{ Permanent() bool }
	return errors.As(err, &perm) && perm.Permanent()
}
