package scheduler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/internal/rides"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/eventbus"
)

var (
	schedulerPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_passes_total",
		Help: "Total scheduler worker passes.",
	})

	schedulerActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_actions_total",
		Help: "Scheduler actions by kind: activated, reminder, expired.",
	}, []string{"kind"})
)

// Reminder thresholds in minutes before a scheduled start. Each fires at
// most once per ride, tracked durably in ride_reminders.
var reminderThresholds = []int{60, 30, 5}

// Config tunes the worker's pass interval and expiry policy.
type Config struct {
	// Interval between passes.
	Interval time.Duration
	// ActivationWindow is how far back a missed scheduled start is still
	// promoted, so a ride is not skipped when its start falls between ticks.
	ActivationWindow time.Duration
	// StaleAfter is how long a ride may sit in requested with no driver
	// before the worker cancels it.
	StaleAfter time.Duration
}

// DefaultConfig returns the standard worker settings.
func DefaultConfig() Config {
	return Config{
		Interval:         5 * time.Minute,
		ActivationWindow: 10 * time.Minute,
		StaleAfter:       15 * time.Minute,
	}
}

// Worker runs periodic passes over scheduled bookings: it promotes accepted
// bookings whose start time has arrived, emits pre-start reminders, and
// expires stale unmatched requests.
type Worker struct {
	db        Database
	bus       Publisher
	canceller Canceller
	logger    *zap.Logger
	cfg       Config
	done      chan struct{}
}

// NewWorker creates a scheduler worker. bus may be nil, in which case the
// worker still performs state transitions but emits no events.
func NewWorker(db Database, bus Publisher, canceller Canceller, logger *zap.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ActivationWindow <= 0 {
		cfg.ActivationWindow = DefaultConfig().ActivationWindow
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Worker{
		db:        db,
		bus:       bus,
		canceller: canceller,
		logger:    logger,
		cfg:       cfg,
		done:      make(chan struct{}),
	}
}

// Start runs the pass loop until Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("scheduler worker started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("stale_after", w.cfg.StaleAfter))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-w.done:
			w.logger.Info("scheduler worker stopped")
			return
		case <-ctx.Done():
			w.logger.Info("scheduler worker context cancelled")
			return
		}
	}
}

// Stop signals the worker loop to exit.
func (w *Worker) Stop() {
	close(w.done)
}

func (w *Worker) runOnce(ctx context.Context) {
	schedulerPassesTotal.Inc()
	w.processScheduledRides(ctx)
	w.sendReminders(ctx)
	w.expireStaleRides(ctx)
}

// processScheduledRides promotes accepted non-instant bookings whose start
// time has arrived to in_progress. The backward window catches starts that
// fell between ticks.
func (w *Worker) processScheduledRides(ctx context.Context) {
	query := `
		SELECT id, rider_id, driver_id, (booking_meta->>'start_time')::timestamptz
		FROM rides
		WHERE status = 'accepted'
		  AND booking_type <> 'INSTANT'
		  AND (booking_meta->>'start_time')::timestamptz <= NOW()
		  AND (booking_meta->>'start_time')::timestamptz > NOW() - make_interval(secs => $1)
	`

	rows, err := w.db.Query(ctx, query, w.cfg.ActivationWindow.Seconds())
	if err != nil {
		w.logger.Error("failed to query due scheduled rides", zap.Error(err))
		return
	}
	defer rows.Close()

	type dueRide struct {
		id       uuid.UUID
		riderID  uuid.UUID
		driverID uuid.UUID
		startAt  time.Time
	}
	var due []dueRide
	for rows.Next() {
		var d dueRide
		if err := rows.Scan(&d.id, &d.riderID, &d.driverID, &d.startAt); err != nil {
			w.logger.Error("failed to scan scheduled ride", zap.Error(err))
			return
		}
		due = append(due, d)
	}
	if rows.Err() != nil {
		w.logger.Error("failed to read scheduled rides", zap.Error(rows.Err()))
		return
	}

	for _, d := range due {
		tag, err := w.db.Exec(ctx, `
			UPDATE rides
			SET status = 'in_progress', actual_start_time = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = 'accepted'`,
			d.id,
		)
		if err != nil {
			w.logger.Error("failed to activate scheduled ride",
				zap.String("ride_id", d.id.String()), zap.Error(err))
			continue
		}
		if tag.RowsAffected() == 0 {
			// Another instance won the promotion, or the ride was cancelled.
			continue
		}

		// The window is open now, so the driver drops out of instant
		// dispatch until completion clears the flag.
		if _, err := w.db.Exec(ctx, `
			UPDATE drivers
			SET is_busy = true, updated_at = NOW()
			WHERE id = $1`,
			d.driverID,
		); err != nil {
			w.logger.Error("failed to mark driver busy for scheduled ride",
				zap.String("driver_id", d.driverID.String()), zap.Error(err))
		}

		schedulerActionsTotal.WithLabelValues("activated").Inc()
		w.logger.Info("scheduled ride activated",
			zap.String("ride_id", d.id.String()),
			zap.Time("scheduled_start", d.startAt))
		w.publish(ctx, eventbus.EventRideStarted, eventbus.RideStartedData{
			RideID:    d.id,
			DriverID:  d.driverID,
			StartedAt: time.Now(),
		})
	}
}

// sendReminders emits reminder events for accepted bookings starting within
// the next hour. ride_reminders rows make each threshold fire at most once
// per ride across instances.
func (w *Worker) sendReminders(ctx context.Context) {
	query := `
		SELECT id, rider_id, (booking_meta->>'start_time')::timestamptz
		FROM rides
		WHERE status = 'accepted'
		  AND booking_type <> 'INSTANT'
		  AND (booking_meta->>'start_time')::timestamptz > NOW()
		  AND (booking_meta->>'start_time')::timestamptz <= NOW() + INTERVAL '1 hour'
	`

	rows, err := w.db.Query(ctx, query)
	if err != nil {
		w.logger.Error("failed to query upcoming rides", zap.Error(err))
		return
	}
	defer rows.Close()

	type upcoming struct {
		id      uuid.UUID
		riderID uuid.UUID
		startAt time.Time
	}
	var rides []upcoming
	for rows.Next() {
		var u upcoming
		if err := rows.Scan(&u.id, &u.riderID, &u.startAt); err != nil {
			w.logger.Error("failed to scan upcoming ride", zap.Error(err))
			return
		}
		rides = append(rides, u)
	}
	if rows.Err() != nil {
		w.logger.Error("failed to read upcoming rides", zap.Error(rows.Err()))
		return
	}

	now := time.Now()
	for _, u := range rides {
		minutesUntil := u.startAt.Sub(now).Minutes()
		for _, threshold := range reminderThresholds {
			if minutesUntil > float64(threshold) {
				continue
			}

			tag, err := w.db.Exec(ctx, `
				INSERT INTO ride_reminders (ride_id, threshold_min, sent_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (ride_id, threshold_min) DO NOTHING`,
				u.id, threshold,
			)
			if err != nil {
				w.logger.Error("failed to record reminder",
					zap.String("ride_id", u.id.String()), zap.Error(err))
				continue
			}
			if tag.RowsAffected() == 0 {
				// Already sent for this threshold.
				continue
			}

			schedulerActionsTotal.WithLabelValues("reminder").Inc()
			w.logger.Info("ride reminder sent",
				zap.String("ride_id", u.id.String()),
				zap.Int("threshold_min", threshold))
			w.publish(ctx, eventbus.EventRideReminder, eventbus.RideReminderData{
				RideID:       u.id,
				RiderID:      u.riderID,
				ThresholdMin: threshold,
				StartsAt:     u.startAt,
			})
		}
	}
}

// expireStaleRides cancels requested rides that never found a driver. Each
// ride goes through the full cancellation path, which publishes the
// lifecycle event and refunds any prepaid amount.
func (w *Worker) expireStaleRides(ctx context.Context) {
	query := `
		SELECT id
		FROM rides
		WHERE status = 'requested'
		  AND created_at < NOW() - make_interval(secs => $1)
	`

	rows, err := w.db.Query(ctx, query, w.cfg.StaleAfter.Seconds())
	if err != nil {
		w.logger.Error("failed to query stale rides", zap.Error(err))
		return
	}
	defer rows.Close()

	var stale []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			w.logger.Error("failed to scan stale ride", zap.Error(err))
			return
		}
		stale = append(stale, id)
	}
	if rows.Err() != nil {
		w.logger.Error("failed to read stale rides", zap.Error(rows.Err()))
		return
	}

	for _, id := range stale {
		_, err := w.canceller.CancelRide(ctx, id, rides.CancelledBySystem, rides.ReasonStaleRequest)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.Code == http.StatusUnprocessableEntity {
				// Accepted or cancelled between the select and the cancel.
				continue
			}
			w.logger.Error("failed to expire stale ride",
				zap.String("ride_id", id.String()), zap.Error(err))
			continue
		}
		schedulerActionsTotal.WithLabelValues("expired").Inc()
		w.logger.Info("expired stale ride request", zap.String("ride_id", id.String()))
	}
}

func (w *Worker) publish(ctx context.Context, eventType string, payload any) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ctx, eventbus.SubjectRides, eventType, payload); err != nil {
		w.logger.Warn("failed to publish scheduler event",
			zap.String("event", eventType), zap.Error(err))
	}
}
