/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/db"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

var errNoPasses = errors.New("reconcile: job has neither an engine nor a cleaner")

// Locker takes the single-writer lock for a run. It returns
// db.ErrLockNotHeld when another run is active.
type Locker func(ctx context.Context) (release func(), err error)

// JobOption configures a Job.
type JobOption func(*Job)

// WithCleaner runs the cleanup pass after reconciliation.
func WithCleaner(c *Cleaner) JobOption {
	return func(j *Job) { j.cleaner = c }
}

// WithLock guards the run with l.
func WithLock(l Locker) JobOption {
	return func(j *Job) { j.lock = l }
}

// WithEvents publishes the run summary to sink.
func WithEvents(sink EventSink) JobOption {
	return func(j *Job) { j.events = sink }
}

// WithMetrics records run duration to m.
func WithMetrics(m Metrics) JobOption {
	return func(j *Job) { j.metrics = m }
}

// Job is one gpudb-sync invocation: lock, reconcile, clean up, report.
type Job struct {
	engine  *Engine
	cleaner *Cleaner
	lock    Locker
	events  EventSink
	metrics Metrics
	logger  logger.Logger
	now     func() time.Time
}

// NewJob returns a Job. engine may be nil for a cleanup-only job.
func NewJob(engine *Engine, log logger.Logger, opts ...JobOption) *Job {
	j := &Job{
		engine:  engine,
		events:  NoOpEvents{},
		metrics: &NoOpMetrics{},
		logger:  log,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Run executes the configured passes and returns the summary. When the lock
// is held elsewhere it returns db.ErrLockNotHeld without touching the store.
// A failed reconciliation skips the cleanup pass.
func (j *Job) Run(ctx context.Context) (*models.RunSummary, error) {
	if j.engine == nil && j.cleaner == nil {
		return nil, errNoPasses
	}

	summary := &models.RunSummary{RunID: uuid.NewString(), StartedAt: j.now()}

	if j.lock != nil {
		release, err := j.lock(ctx)
		if err != nil {
			if errors.Is(err, db.ErrLockNotHeld) {
				j.logger.Info().Str("run_id", summary.RunID).Msg("Another gpudb-sync run holds the lock, exiting")
			}

			return summary, err
		}
		defer release()
	}

	err := j.passes(ctx, summary)

	summary.FinishedAt = j.now()
	j.metrics.RecordRun(summary.FinishedAt.Sub(summary.StartedAt), err)

	if err != nil {
		j.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("gpudb-sync run failed")
		return summary, err
	}

	j.logSummary(summary)

	if err := j.events.RunCompleted(ctx, summary); err != nil {
		j.logger.Warn().Err(err).Str("run_id", summary.RunID).Msg("Failed to publish run summary")
	}

	return summary, nil
}

func (j *Job) passes(ctx context.Context, summary *models.RunSummary) error {
	if j.engine != nil {
		if err := j.engine.Run(ctx, summary); err != nil {
			return err
		}
	}

	if j.cleaner != nil {
		if err := j.cleaner.Run(ctx, summary); err != nil {
			return err
		}
	}

	return nil
}

func (j *Job) logSummary(s *models.RunSummary) {
	j.logger.Info().
		Str("run_id", s.RunID).
		Dur("duration", s.FinishedAt.Sub(s.StartedAt)).
		Int("devices", s.Devices).
		Int("reserved", s.Reserved).
		Int("processed", s.Processed).
		Int("skipped", s.Skipped).
		Int("write_failures", s.WriteFailures).
		Int("assignments_written", s.AssignmentsWritten).
		Int("bookings_written", s.BookingsWritten).
		Int("nodes_reactivated", s.NodesReactivated).
		Int("nodes_deactivated", s.NodesDeactivated).
		Int("assignments_closed", s.AssignmentsClosed).
		Int("assignments_pending", s.AssignmentsPending).
		Int("cleanup_failures", s.CleanupFailures).
		Bool("deactivation_failure", s.DeactivationFailure).
		Interface("metrics", j.metrics.GetMetrics()).
		Msg("gpudb-sync run complete")
}
