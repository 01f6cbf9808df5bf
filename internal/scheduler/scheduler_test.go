package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ploy/mali/internal/db"
)

type push struct {
	userID string
	text   string
}

type fakePusher struct {
	pushes []push
	errFor map[string]error // userID -> error to return
}

func (f *fakePusher) Push(_ context.Context, userID, text string) error {
	if err, ok := f.errFor[userID]; ok && err != nil {
		return err
	}
	f.pushes = append(f.pushes, push{userID: userID, text: text})
	return nil
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "invalid user" }
func (permanentErr) Permanent() bool { return true }

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, pusher Pusher) (*Scheduler, *db.DB) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	s := New(database, pusher, time.UTC)
	s.now = func() time.Time { return testNow }
	return s, database
}

func TestSweepDeliversDueReminder(t *testing.T) {
	fp := &fakePusher{}
	s, database := newTestScheduler(t, fp)

	database.CreateReminder("u1", "ประชุมทีม", testNow.Add(-time.Minute))
	database.CreateReminder("u1", "later", testNow.Add(time.Hour))

	s.sweepDueReminders()

	if len(fp.pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(fp.pushes))
	}
	if fp.pushes[0].userID != "u1" {
		t.Errorf("pushed to %q", fp.pushes[0].userID)
	}
	if !strings.Contains(fp.pushes[0].text, "ประชุมทีม") {
		t.Errorf("push text: %q", fp.pushes[0].text)
	}

	// Delivered row is gone from the due set; the future one is untouched.
	due, _ := database.ListDueReminders(testNow)
	if len(due) != 0 {
		t.Errorf("delivered reminder still due: %+v", due)
	}
	upcoming, _ := database.ListUpcomingReminders(testNow, 10)
	if len(upcoming) != 1 || upcoming[0].Message != "later" {
		t.Errorf("future reminder affected: %+v", upcoming)
	}
}

func TestSweepRetryableFailureLeavesPending(t *testing.T) {
	fp := &fakePusher{errFor: map[string]error{"u1": errors.New("connection refused")}}
	s, database := newTestScheduler(t, fp)

	database.CreateReminder("u1", "x", testNow.Add(-time.Minute))
	s.sweepDueReminders()

	due, _ := database.ListDueReminders(testNow)
	if len(due) != 1 {
		t.Fatalf("expected reminder still pending for the next sweep, got %+v", due)
	}

	// Next sweep retries and succeeds.
	fp.errFor = nil
	s.sweepDueReminders()
	if len(fp.pushes) != 1 {
		t.Errorf("expected delivery on retry, got %d pushes", len(fp.pushes))
	}
	due, _ = database.ListDueReminders(testNow)
	if len(due) != 0 {
		t.Errorf("reminder still due after retry: %+v", due)
	}
}

func TestSweepPermanentFailureParksReminder(t *testing.T) {
	fp := &fakePusher{errFor: map[string]error{"u1": permanentErr{}}}
	s, database := newTestScheduler(t, fp)

	database.CreateReminder("u1", "x", testNow.Add(-time.Minute))
	s.sweepDueReminders()
	s.sweepDueReminders()

	if len(fp.pushes) != 0 {
		t.Errorf("expected no successful push, got %d", len(fp.pushes))
	}
	due, _ := database.ListDueReminders(testNow)
	if len(due) != 0 {
		t.Errorf("permanently rejected reminder still occupies the sweep: %+v", due)
	}
}

func TestSweepFailureDoesNotBlockOthers(t *testing.T) {
	fp := &fakePusher{errFor: map[string]error{"u1": errors.New("down")}}
	s, database := newTestScheduler(t, fp)

	database.CreateReminder("u1", "fails", testNow.Add(-2*time.Minute))
	database.CreateReminder("u2", "delivers", testNow.Add(-time.Minute))

	s.sweepDueReminders()

	if len(fp.pushes) != 1 || fp.pushes[0].userID != "u2" {
		t.Errorf("expected u2 delivery despite u1 failure, got %+v", fp.pushes)
	}
}

func TestDailySweepDigest(t *testing.T) {
	fp := &fakePusher{}
	s, database := newTestScheduler(t, fp)

	database.SaveChat("u1", "hi", "hello")
	database.CreateReminder("u1", "เช้า", time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	database.CreateReminder("u1", "เย็น", time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC))
	database.CreateReminder("u1", "พรุ่งนี้", time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC))

	s.runDailySweep()

	if len(fp.pushes) != 1 {
		t.Fatalf("expected 1 digest push, got %d", len(fp.pushes))
	}
	text := fp.pushes[0].text
	if !strings.Contains(text, "2 รายการ") {
		t.Errorf("digest should count 2 reminders: %q", text)
	}
	if !strings.Contains(text, "เช้า") || !strings.Contains(text, "เย็น") {
		t.Errorf("digest missing entries: %q", text)
	}
	if strings.Contains(text, "พรุ่งนี้") {
		t.Errorf("digest includes tomorrow's reminder: %q", text)
	}
}

func TestDailySweepNoRemindersNoDigest(t *testing.T) {
	fp := &fakePusher{}
	s, database := newTestScheduler(t, fp)

	database.SaveChat("u1", "hi", "hello")
	s.runDailySweep()

	if len(fp.pushes) != 0 {
		t.Errorf("expected no push, got %+v", fp.pushes)
	}
}

func TestDailySweepBirthdayMatch(t *testing.T) {
	fp := &fakePusher{}
	s, database := newTestScheduler(t, fp)

	// testNow is June 15 -> DD-MM "15-06".
	database.SaveChat("u1", "hi", "hello")
	database.SaveChat("u2", "hi", "hello")
	database.MergeProfile("u1", map[string]string{"birthday": "15-06"})
	database.MergeProfile("u2", map[string]string{"birthday": "05-03"})

	s.runDailySweep()

	if len(fp.pushes) != 1 {
		t.Fatalf("expected exactly 1 greeting, got %d", len(fp.pushes))
	}
	if fp.pushes[0].userID != "u1" || fp.pushes[0].text != birthdayGreeting {
		t.Errorf("got %+v", fp.pushes[0])
	}
}

func TestDailySweepUserIsolation(t *testing.T) {
	fp := &fakePusher{errFor: map[string]error{"u1": errors.New("down")}}
	s, database := newTestScheduler(t, fp)

	database.SaveChat("u1", "hi", "hello")
	database.SaveChat("u2", "hi", "hello")
	database.MergeProfile("u1", map[string]string{"birthday": "15-06"})
	database.MergeProfile("u2", map[string]string{"birthday": "15-06"})

	s.runDailySweep()

	if len(fp.pushes) != 1 || fp.pushes[0].userID != "u2" {
		t.Errorf("expected u2 greeting despite u1 failure, got %+v", fp.pushes)
	}
}

func TestBuildDigestFormat(t *testing.T) {
	reminders := []db.Reminder{
		{Message: "ประชุม", DueAt: time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)},
	}
	got := buildDigest(reminders, time.UTC)
	if !strings.Contains(got, "09:30 ประชุม") {
		t.Errorf("got %q", got)
	}
}
