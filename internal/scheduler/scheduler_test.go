package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mubarakway/internal/model"
	"mubarakway/internal/notify"
	"mubarakway/internal/prayer"
	"mubarakway/internal/storage"
)

const (
	meccaLat = 21.42
	meccaLon = 39.83
)

type sentMessage struct {
	ChatID    int64
	PrayerKey string // empty for plain messages
	Text      string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
	fail     bool
}

func (m *mockSender) SendMessage(chatID int64, text string) error {
	return m.record(sentMessage{ChatID: chatID, Text: text})
}

func (m *mockSender) SendPrayer(chatID int64, text, prayerKey string) error {
	return m.record(sentMessage{ChatID: chatID, PrayerKey: prayerKey, Text: text})
}

func (m *mockSender) record(msg sentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("telegram unavailable")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockSender) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *mockSender) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, store *storage.SQLite, id int64, lat, lon float64, beforeMinutes int) {
	t.Helper()
	seedUserIn(t, store, id, model.Location{Latitude: lat, Longitude: lon, Timezone: "Asia/Riyadh", City: "Mecca"}, beforeMinutes)
}

func seedUserIn(t *testing.T, store *storage.SQLite, id int64, loc model.Location, beforeMinutes int) {
	t.Helper()
	ctx := context.Background()
	u := &model.User{TelegramID: id, FirstName: "User"}
	if err := store.UpsertUser(ctx, u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	u.Location = &loc
	u.BeforeMinutes = beforeMinutes
	if err := store.UpdateUser(ctx, u); err != nil {
		t.Fatalf("update user: %v", err)
	}
}

// meccaTimes calculates the day the scheduler will see for a Mecca user.
func meccaTimes(t *testing.T) prayer.Times {
	t.Helper()
	riyadh, err := time.LoadLocation("Asia/Riyadh")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	times, err := prayer.Calculate(meccaLat, meccaLon,
		time.Date(2024, 6, 21, 12, 0, 0, 0, riyadh),
		prayer.NewParams(meccaLat, prayer.MuslimWorldLeague, prayer.Shafi))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	return times
}

func loadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

// lateIshaCalc is a summer schedule where isha starts after midnight.
func lateIshaCalc(_, _ float64, date time.Time, p prayer.Params) (prayer.Times, error) {
	loc := date.Location()
	at := func(day, h, m int) time.Time {
		return time.Date(date.Year(), date.Month(), date.Day()+day, h, m, 0, 0, loc)
	}
	return prayer.Times{
		Date:    at(0, 0, 0),
		Params:  p,
		Fajr:    at(0, 2, 40),
		Sunrise: at(0, 3, 45),
		Dhuhr:   at(0, 12, 30),
		Asr:     at(0, 16, 50),
		Maghrib: at(0, 21, 18),
		Isha:    at(1, 0, 31),
	}, nil
}

type fixture struct {
	sched    *Scheduler
	store    *storage.SQLite
	notified *notify.Store
	sender   *mockSender
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newTestStore(t),
		notified: notify.NewStore(filepath.Join(t.TempDir(), "notified.json"), discardLogger()),
		sender:   &mockSender{},
	}
	f.sched = New(f.store, f.notified, f.sender,
		Defaults{Method: prayer.MuslimWorldLeague, Madhab: prayer.Shafi}, discardLogger())
	f.sched.pause = 0
	f.sched.SetClock(func() time.Time { return f.now })
	return f
}

func TestSchedulerNotifiesOncePerPrayer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	f.now = times.Dhuhr.Add(time.Minute)
	f.sched.checkAll(ctx)
	f.sched.checkAll(ctx)
	f.now = times.Dhuhr.Add(30 * time.Minute)
	f.sched.checkAll(ctx)

	msgs := f.sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(100), msgs[0].ChatID); diff != "" {
		t.Errorf("chatID mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(prayer.KeyDhuhr, msgs[0].PrayerKey); diff != "" {
		t.Errorf("prayer key mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "Dhuhr") {
		t.Errorf("notification should name the prayer, got:\n%s", msgs[0].Text)
	}

	if !f.notified.WasNotified(notify.Key(100, prayer.KeyDhuhr, times.Date)) {
		t.Error("dhuhr should be marked as notified")
	}
}

func TestSchedulerExactPrayerTime(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	f.now = times.Asr
	f.sched.checkAll(context.Background())

	msgs := f.sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(prayer.KeyAsr, msgs[0].PrayerKey); diff != "" {
		t.Errorf("prayer key mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerEachPrayerOfTheDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	for _, p := range times.Schedule() {
		f.now = p.Time.Add(time.Minute)
		f.sched.checkAll(ctx)
		f.sched.checkAll(ctx)
	}

	var got []string
	for _, m := range f.sender.getMessages() {
		got = append(got, m.PrayerKey)
	}
	want := []string{prayer.KeyFajr, prayer.KeyDhuhr, prayer.KeyAsr, prayer.KeyMaghrib, prayer.KeyIsha}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("notified prayers mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerSkipsSunrise(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	// Fajr was already delivered, so only sunrise is current.
	f.notified.MarkAsNotified(notify.Key(100, prayer.KeyFajr, times.Date))
	f.now = times.Sunrise.Add(time.Minute)
	f.sched.checkAll(context.Background())

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("sunrise must not be notified (-want +got):\n%s", diff)
	}
}

func TestSchedulerBeforeFajrSendsNothing(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 10)
	times := meccaTimes(t)

	f.now = times.Fajr.Add(-time.Hour)
	f.sched.checkAll(context.Background())

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("nothing is due before fajr (-want +got):\n%s", diff)
	}
}

func TestSchedulerRetriesAfterFailedSend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)
	f.now = times.Maghrib.Add(2 * time.Minute)

	f.sender.setFail(true)
	f.sched.checkAll(ctx)

	key := notify.Key(100, prayer.KeyMaghrib, times.Date)
	if f.notified.WasNotified(key) {
		t.Fatal("failed send must not be marked as notified")
	}

	f.sender.setFail(false)
	f.sched.checkAll(ctx)

	msgs := f.sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if !f.notified.WasNotified(key) {
		t.Error("successful retry should be marked as notified")
	}
}

func TestSchedulerReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 10)
	times := meccaTimes(t)

	f.notified.MarkAsNotified(notify.Key(100, prayer.KeyDhuhr, times.Date))

	tests := []struct {
		name      string
		now       time.Time
		wantCount int
	}{
		{name: "too early", now: times.Asr.Add(-11 * time.Minute), wantCount: 0},
		{name: "within window", now: times.Asr.Add(-10 * time.Minute), wantCount: 1},
		{name: "still within window", now: times.Asr.Add(-3 * time.Minute), wantCount: 1},
	}

	for _, tt := range tests {
		f.now = tt.now
		f.sched.checkAll(ctx)
		if diff := cmp.Diff(tt.wantCount, len(f.sender.getMessages())); diff != "" {
			t.Errorf("%s: message count mismatch (-want +got):\n%s", tt.name, diff)
		}
	}

	msgs := f.sender.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one reminder, got %d", len(msgs))
	}
	if diff := cmp.Diff("", msgs[0].PrayerKey); diff != "" {
		t.Errorf("reminder should be a plain message (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "10 min") || !strings.Contains(msgs[0].Text, "Asr") {
		t.Errorf("unexpected reminder text:\n%s", msgs[0].Text)
	}
	if !f.notified.WasNotified(notify.ReminderKey(100, prayer.KeyAsr, times.Date)) {
		t.Error("reminder should be marked as notified")
	}
}

func TestSchedulerReminderDisabled(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	f.notified.MarkAsNotified(notify.Key(100, prayer.KeyDhuhr, times.Date))
	f.now = times.Asr.Add(-5 * time.Minute)
	f.sched.checkAll(context.Background())

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("zero before_minutes disables reminders (-want +got):\n%s", diff)
	}
}

func TestSchedulerReminderThenPrayer(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 10)
	times := meccaTimes(t)

	f.now = times.Fajr.Add(-5 * time.Minute)
	f.sched.checkAll(context.Background())

	msgs := f.sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(msgs[0].Text, "Fajr") {
		t.Errorf("expected fajr reminder, got:\n%s", msgs[0].Text)
	}

	f.sender.reset()
	f.now = times.Fajr.Add(time.Minute)
	f.sched.checkAll(context.Background())

	msgs = f.sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(prayer.KeyFajr, msgs[0].PrayerKey); diff != "" {
		t.Errorf("prayer key mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerSkipsBadCoordinates(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f.store, 1, 95, 10, 0)
	seedUser(t, f.store, 2, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	f.now = times.Isha.Add(time.Minute)
	f.sched.checkAll(context.Background())

	msgs := f.sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(int64(2), msgs[0].ChatID); diff != "" {
		t.Errorf("chatID mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerNotificationsDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)

	u, err := f.store.GetUser(ctx, 100)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	u.NotificationsEnabled = false
	if err := f.store.UpdateUser(ctx, u); err != nil {
		t.Fatalf("update user: %v", err)
	}

	f.now = meccaTimes(t).Dhuhr.Add(time.Minute)
	f.sched.checkAll(ctx)

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("disabled user should not be notified (-want +got):\n%s", diff)
	}
}

func TestSchedulerNextDayAfterMissedReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	f.now = times.Dhuhr.Add(10 * time.Minute)
	f.sched.checkAll(ctx)

	f.now = f.now.Add(24 * time.Hour)
	f.sched.checkAll(ctx)

	var got []string
	for _, m := range f.sender.getMessages() {
		got = append(got, m.PrayerKey)
	}
	if diff := cmp.Diff([]string{prayer.KeyDhuhr, prayer.KeyDhuhr}, got); diff != "" {
		t.Errorf("next day must notify again without a reset (-want +got):\n%s", diff)
	}
}

func TestSchedulerCancelledContext(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	f.now = meccaTimes(t).Dhuhr.Add(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.sched.checkAll(ctx)

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("expected no messages when context cancelled (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.sched.SetClock(time.Now)
	f.sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestSchedulerIshaAfterMidnight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sched.calc = lateIshaCalc
	moscow := loadLocation(t, "Europe/Moscow")
	seedUserIn(t, f.store, 100, model.Location{Latitude: 55.75, Longitude: 37.62, Timezone: "Europe/Moscow"}, 0)

	steps := []struct {
		name string
		at   time.Time
		want []string
	}{
		{name: "maghrib still running", at: time.Date(2024, 6, 22, 0, 20, 0, 0, moscow), want: nil},
		{name: "isha starts", at: time.Date(2024, 6, 22, 0, 35, 0, 0, moscow), want: []string{prayer.KeyIsha}},
		{name: "isha not repeated", at: time.Date(2024, 6, 22, 1, 30, 0, 0, moscow), want: []string{prayer.KeyIsha}},
		{name: "fajr follows", at: time.Date(2024, 6, 22, 2, 45, 0, 0, moscow), want: []string{prayer.KeyIsha, prayer.KeyFajr}},
	}

	for _, step := range steps {
		f.now = step.at
		f.sched.checkAll(ctx)

		var got []string
		for _, m := range f.sender.getMessages() {
			got = append(got, m.PrayerKey)
		}
		if diff := cmp.Diff(step.want, got); diff != "" {
			t.Errorf("%s: sent prayers mismatch (-want +got):\n%s", step.name, diff)
		}
	}

	if !f.notified.WasNotified("100_isha_2024-06-21") {
		t.Error("isha after midnight should be keyed by the day it belongs to")
	}
}

func TestSchedulerPreviousIshaNotRepeated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	f.now = times.Isha.Add(5 * time.Minute)
	f.sched.checkAll(ctx)

	f.now = time.Date(2024, 6, 22, 1, 0, 0, 0, times.Isha.Location())
	f.sched.checkAll(ctx)

	var got []string
	for _, m := range f.sender.getMessages() {
		got = append(got, m.PrayerKey)
	}
	if diff := cmp.Diff([]string{prayer.KeyIsha}, got); diff != "" {
		t.Errorf("isha must be sent once across midnight (-want +got):\n%s", diff)
	}
}

func TestSchedulerResetInAnotherZone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedUser(t, f.store, 100, meccaLat, meccaLon, 0)
	times := meccaTimes(t)

	honolulu := loadLocation(t, "Pacific/Honolulu")
	reset, err := NewDailyReset(f.notified, honolulu, discardLogger())
	if err != nil {
		t.Fatalf("new daily reset: %v", err)
	}

	f.now = times.Dhuhr.Add(10 * time.Minute)
	f.sched.checkAll(ctx)

	// Honolulu midnight falls in the afternoon in Mecca, mid dhuhr.
	midnight := time.Date(2024, 6, 21, 0, 0, 0, 0, honolulu)
	if !midnight.After(times.Dhuhr) || !midnight.Before(times.Asr) {
		t.Fatalf("reset at %s is outside dhuhr %s..%s", midnight, times.Dhuhr, times.Asr)
	}
	reset.now = func() time.Time { return midnight }
	reset.run()

	f.now = midnight.Add(5 * time.Minute)
	f.sched.checkAll(ctx)

	var got []string
	for _, m := range f.sender.getMessages() {
		got = append(got, m.PrayerKey)
	}
	if diff := cmp.Diff([]string{prayer.KeyDhuhr}, got); diff != "" {
		t.Errorf("reset must not resend the running prayer (-want +got):\n%s", diff)
	}
}
