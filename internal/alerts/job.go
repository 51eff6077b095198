// ABOUTME: Periodic job pushing current conditions to users with alerts.
// ABOUTME: Fires at fixed times of day and fans deliveries out over a pool.

package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/2389/chatflow/internal/features/weather"
	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

// TimeOfDay is a wall-clock firing time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// Job delivers scheduled weather pushes. Each registered alert produces one
// message per firing; deliveries for distinct alerts run concurrently on a
// bounded pool.
type Job struct {
	store    store.Store
	client   remote.Client
	provider weather.Provider
	catalog  *i18n.Catalog
	token    string
	times    []TimeOfDay
	poolSize int
	logger   *slog.Logger

	now func() time.Time
}

// NewJob creates the alert job for one bot token.
func NewJob(st store.Store, client remote.Client, provider weather.Provider, catalog *i18n.Catalog, token string, times []TimeOfDay, poolSize int) *Job {
	if poolSize < 1 {
		poolSize = 1
	}
	sorted := make([]TimeOfDay, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Hour != sorted[j].Hour {
			return sorted[i].Hour < sorted[j].Hour
		}
		return sorted[i].Minute < sorted[j].Minute
	})

	return &Job{
		store:    st,
		client:   client,
		provider: provider,
		catalog:  catalog,
		token:    token,
		times:    sorted,
		poolSize: poolSize,
		logger:   slog.Default().With("component", "alerts"),
		now:      time.Now,
	}
}

// nextFire returns the next configured wall-clock firing after now.
func (j *Job) nextFire(now time.Time) time.Time {
	for _, tod := range j.times {
		at := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour, tod.Minute, 0, 0, now.Location())
		if at.After(now) {
			return at
		}
	}
	first := j.times[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), first.Hour, first.Minute, 0, 0, now.Location())
}

// Run fires at each configured time until ctx is cancelled. With no times
// configured it returns immediately.
func (j *Job) Run(ctx context.Context) {
	if len(j.times) == 0 {
		j.logger.Info("no alert times configured, job disabled")
		return
	}
	j.logger.Info("alert job starting", "times", len(j.times), "pool_size", j.poolSize)

	for {
		wait := time.Until(j.nextFire(j.now()))
		timer := time.NewTimer(wait)

		select {
		case <-timer.C:
			j.Fire(ctx)
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("alert job stopping")
			return
		}
	}
}

// Fire delivers one round of pushes for every registered alert.
func (j *Job) Fire(ctx context.Context) {
	all, err := j.store.ListAllAlerts(ctx)
	if err != nil {
		j.logger.Error("listing alerts failed", "error", err)
		return
	}
	if len(all) == 0 {
		return
	}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(j.poolSize, func(arg interface{}) {
		defer wg.Done()
		j.deliver(ctx, arg.(*store.Alert))
	})
	if err != nil {
		j.logger.Error("creating delivery pool failed", "error", err)
		return
	}
	defer pool.Release()

	for _, alert := range all {
		wg.Add(1)
		if err := pool.Invoke(alert); err != nil {
			wg.Done()
			j.logger.Error("submitting delivery failed", "alert", alert.ID, "error", err)
		}
	}
	wg.Wait()

	j.logger.Info("alert round complete", "alerts", len(all))
}

// deliver pushes one alert. Provider and transient send failures are logged
// and skipped; the next round retries. A permanently gone recipient has all
// their alerts removed.
func (j *Job) deliver(ctx context.Context, alert *store.Alert) {
	prefs, err := j.store.GetPreferences(ctx, alert.UserID)
	if err != nil {
		j.logger.Error("loading preferences failed", "alert", alert.ID, "error", err)
		return
	}
	loc := j.catalog.For(prefs.Language)

	cond, err := j.provider.Current(ctx, alert.SubjectID, prefs.Units)
	if err != nil {
		j.logger.Warn("fetch failed, skipping push", "alert", alert.ID, "error", err)
		return
	}

	// Alerts are private pushes; the chat id of a private chat is the
	// user id.
	_, err = j.client.SendMessage(ctx, j.token, alert.UserID, weather.AlertMessage(loc, cond), nil)
	if errors.Is(err, remote.ErrRecipientGone) {
		j.logger.Info("recipient gone, dropping their alerts", "user", alert.UserID)
		if derr := j.store.DeleteAlertsForUser(ctx, alert.UserID); derr != nil {
			j.logger.Error("dropping alerts failed", "user", alert.UserID, "error", derr)
		}
		return
	}
	if err != nil {
		j.logger.Warn("push failed", "alert", alert.ID, "error", err)
	}
}
