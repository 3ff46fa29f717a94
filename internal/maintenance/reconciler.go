// Package maintenance runs periodic background sweeps that keep tenant
// data converged: the default organization stays singular and orphaned
// users get a home.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/metrics"
	"github.com/taskline/taskline/internal/models"
)

// ReconcilerStore defines the data access the reconciler needs.
type ReconcilerStore interface {
	ResolveDefaultOrg(ctx context.Context) (*models.Organization, error)
	BackfillOrphanUsers(ctx context.Context) (int, error)
}

// Reconciler periodically resolves the default organization and assigns
// orphaned users to it. Every step it takes is idempotent, so overlapping
// or repeated runs converge to the same state.
type Reconciler struct {
	store  ReconcilerStore
	logger zerolog.Logger
	cron   *cron.Cron

	mu      sync.RWMutex
	lastRun time.Time
	lastErr error
}

// NewReconciler creates a reconciler with the given sweep schedule.
func NewReconciler(store ReconcilerStore, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger.With().Str("component", "reconciler").Logger(),
		cron:   cron.New(),
	}
}

// Start registers the sweep on the given cron schedule and begins running.
func (r *Reconciler) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info().Str("schedule", schedule).Msg("default-org reconciler started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("default-org reconciler stopped")
}

// RunOnce performs a single sweep: resolve (and merge, if duplicated) the
// default organization, then backfill users without an organization.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	start := time.Now()

	org, err := r.store.ResolveDefaultOrg(ctx)
	if err != nil {
		r.recordRun(err)
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).Msg("failed to resolve default organization")
		return err
	}

	backfilled, err := r.store.BackfillOrphanUsers(ctx)
	if err != nil {
		r.recordRun(err)
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).Msg("failed to backfill orphaned users")
		return err
	}

	r.recordRun(nil)
	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	if backfilled > 0 {
		metrics.BackfilledUsers.Add(float64(backfilled))
	}

	r.logger.Info().
		Str("default_org_id", org.ID.String()).
		Int("backfilled_users", backfilled).
		Dur("duration", time.Since(start)).
		Msg("reconciliation sweep complete")
	return nil
}

func (r *Reconciler) recordRun(err error) {
	r.mu.Lock()
	r.lastRun = time.Now()
	r.lastErr = err
	r.mu.Unlock()
}

// LastRun returns the time and outcome of the most recent sweep.
func (r *Reconciler) LastRun() (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun, r.lastErr
}
