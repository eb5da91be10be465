package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mubarakway/internal/metrics"
	"mubarakway/internal/notify"
)

// ResetSpec fires at local midnight.
const ResetSpec = "0 0 * * *"

// DailyReset prunes stale keys from the notified prayer set once a day.
// Keys of the two previous days survive: a user up to 26 hours behind loc
// is still on one of them, and a late isha is keyed by the day it belongs to.
type DailyReset struct {
	cron     *cron.Cron
	schedule cron.Schedule
	loc      *time.Location
	notified *notify.Store
	log      *slog.Logger
	now      func() time.Time
}

// NewDailyReset registers the midnight prune in loc. Call Start to run it.
func NewDailyReset(notified *notify.Store, loc *time.Location, log *slog.Logger) (*DailyReset, error) {
	if loc == nil {
		loc = time.Local
	}
	schedule, err := cron.ParseStandard(ResetSpec)
	if err != nil {
		return nil, fmt.Errorf("parse reset schedule: %w", err)
	}

	r := &DailyReset{
		cron:     cron.New(cron.WithLocation(loc)),
		schedule: schedule,
		loc:      loc,
		notified: notified,
		log:      log,
		now:      time.Now,
	}
	r.cron.Schedule(schedule, cron.FuncJob(r.run))
	return r, nil
}

// Start runs the reset job in its own goroutine.
func (r *DailyReset) Start() {
	r.cron.Start()
	r.log.Info("daily notification reset scheduled", "next", r.Next(time.Now()).Format(time.RFC3339))
}

// Stop halts the job and waits for a running prune to finish.
func (r *DailyReset) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Next returns the first reset strictly after t.
func (r *DailyReset) Next(t time.Time) time.Time {
	return r.schedule.Next(t.In(r.loc))
}

// Cutoff is the oldest date whose keys a reset at t keeps.
func (r *DailyReset) Cutoff(t time.Time) string {
	return t.In(r.loc).AddDate(0, 0, -2).Format(time.DateOnly)
}

func (r *DailyReset) run() {
	cutoff := r.Cutoff(r.now())
	removed := r.notified.PruneBefore(cutoff)
	metrics.ResetsTotal.Inc()
	r.log.Info("daily notification reset", "kept_from", cutoff, "removed", removed, "kept", r.notified.Count())
}
