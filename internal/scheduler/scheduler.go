// Package scheduler sends prayer time notifications to users on a fixed tick.
package scheduler

import (
	"context"
	"log/slog"
	"math"
	"time"

	"mubarakway/internal/bot"
	"mubarakway/internal/metrics"
	"mubarakway/internal/model"
	"mubarakway/internal/notify"
	"mubarakway/internal/prayer"
	"mubarakway/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string) error
	SendPrayer(chatID int64, text, prayerKey string) error
}

// Defaults are the calculation settings for users who have not chosen their own.
type Defaults struct {
	Method prayer.Method
	Madhab prayer.Madhab
}

// Scheduler periodically checks every tracked user and notifies them when a
// prayer time has arrived.
type Scheduler struct {
	store    storage.Storage
	notified *notify.Store
	sender   Sender
	defaults Defaults
	log      *slog.Logger
	tick     time.Duration
	pause    time.Duration
	now      func() time.Time
	calc     func(lat, lon float64, date time.Time, p prayer.Params) (prayer.Times, error)
}

// New creates a Scheduler with a 1-minute tick.
func New(store storage.Storage, notified *notify.Store, sender Sender, defaults Defaults, log *slog.Logger) *Scheduler {
	if defaults.Method == "" {
		defaults.Method = prayer.DefaultMethod
	}
	if defaults.Madhab == "" {
		defaults.Madhab = prayer.Shafi
	}
	return &Scheduler{
		store:    store,
		notified: notified,
		sender:   sender,
		defaults: defaults,
		log:      log,
		tick:     1 * time.Minute,
		pause:    50 * time.Millisecond,
		now:      time.Now,
		calc:     prayer.Calculate,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("prayer scheduler started", "tick", s.tick)
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("prayer scheduler stopped")
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.RecordTick(time.Since(start)) }()

	users, err := s.store.ListNotifiableUsers(ctx)
	if err != nil {
		s.log.Error("list notifiable users", "error", err)
		return
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return
		}
		metrics.UsersChecked.Inc()
		s.processUser(ctx, u)
	}
}

func (s *Scheduler) processUser(ctx context.Context, u model.User) {
	if u.Location == nil {
		return
	}
	lat, lon := u.Location.Latitude, u.Location.Longitude

	tz := u.Location.Timezone
	if tz == "" {
		tz = prayer.TimezoneFor(lat, lon)
	}
	loc := prayer.LoadLocation(tz, time.UTC)
	now := s.now().In(loc)

	params := s.params(u)
	times, err := s.calc(lat, lon, now, params)
	if err != nil {
		metrics.CalculationErrors.Inc()
		s.log.Warn("calculate prayer times", "chat_id", u.TelegramID, "lat", lat, "lon", lon, "error", err)
		return
	}

	current, next := prayer.CurrentAndNext(times.Schedule(), now)

	if !current.SkipNotification && !now.Before(current.Time) {
		key := notify.Key(u.TelegramID, current.Key, times.Date)
		if !s.notified.WasNotified(key) {
			s.sendPrayer(ctx, u, current, loc, key)
		}
	}

	// Before fajr the running prayer is the previous day's isha, which
	// can start after midnight at high latitudes.
	if now.Before(times.Fajr) {
		s.checkPreviousIsha(ctx, u, now, loc, params)
	}

	if u.BeforeMinutes > 0 && !next.SkipNotification && next.Time.After(now) {
		lead := time.Duration(u.BeforeMinutes) * time.Minute
		if next.Time.Sub(now) <= lead {
			key := notify.ReminderKey(u.TelegramID, next.Key, times.Date)
			if !s.notified.WasNotified(key) {
				s.sendReminder(ctx, u, next, now, loc, key)
			}
		}
	}
}

func (s *Scheduler) checkPreviousIsha(ctx context.Context, u model.User, now time.Time, loc *time.Location, params prayer.Params) {
	lat, lon := u.Location.Latitude, u.Location.Longitude
	prev, err := s.calc(lat, lon, now.AddDate(0, 0, -1), params)
	if err != nil {
		metrics.CalculationErrors.Inc()
		s.log.Warn("calculate previous day", "chat_id", u.TelegramID, "lat", lat, "lon", lon, "error", err)
		return
	}

	schedule := prev.Schedule()
	isha := schedule[len(schedule)-1]
	if now.Before(isha.Time) {
		return
	}
	key := notify.Key(u.TelegramID, isha.Key, prev.Date)
	if !s.notified.WasNotified(key) {
		s.sendPrayer(ctx, u, isha, loc, key)
	}
}

func (s *Scheduler) sendPrayer(ctx context.Context, u model.User, p prayer.Info, loc *time.Location, key string) {
	text := bot.FormatPrayerNotification(p, loc)
	if err := s.sender.SendPrayer(u.TelegramID, text, p.Key); err != nil {
		metrics.RecordFailed(metrics.KindPrayer)
		s.log.Error("send prayer notification", "chat_id", u.TelegramID, "prayer", p.Key, "error", err)
		return
	}
	s.notified.MarkAsNotified(key)
	metrics.RecordSent(metrics.KindPrayer, p.Key)
	s.log.Info("sent prayer notification", "chat_id", u.TelegramID, "prayer", p.Key)
	s.throttle(ctx)
}

func (s *Scheduler) sendReminder(ctx context.Context, u model.User, p prayer.Info, now time.Time, loc *time.Location, key string) {
	minutes := int(math.Ceil(p.Time.Sub(now).Minutes()))
	text := bot.FormatReminder(p, minutes, loc)
	if err := s.sender.SendMessage(u.TelegramID, text); err != nil {
		metrics.RecordFailed(metrics.KindReminder)
		s.log.Error("send prayer reminder", "chat_id", u.TelegramID, "prayer", p.Key, "error", err)
		return
	}
	s.notified.MarkAsNotified(key)
	metrics.RecordSent(metrics.KindReminder, p.Key)
	s.log.Info("sent prayer reminder", "chat_id", u.TelegramID, "prayer", p.Key, "minutes", minutes)
	s.throttle(ctx)
}

// throttle keeps bursts under Telegram's ~20 messages/sec limit.
func (s *Scheduler) throttle(ctx context.Context) {
	if s.pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.pause):
	}
}

func (s *Scheduler) params(u model.User) prayer.Params {
	return prayer.ResolveParams(u.Location.Latitude, u.CalculationMethod, u.Madhab, s.defaults.Method, s.defaults.Madhab)
}
