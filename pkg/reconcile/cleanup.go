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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// Cleaner closes open assignments whose instances have terminated.
type Cleaner struct {
	store       AssignmentStore
	source      TerminationSource
	events      EventSink
	metrics     Metrics
	callTimeout time.Duration
	logger      logger.Logger
	tracer      trace.Tracer
}

// NewCleaner returns a Cleaner. events and metrics may be nil.
func NewCleaner(store AssignmentStore, source TerminationSource, events EventSink, metrics Metrics,
	callTimeout time.Duration, log logger.Logger) (*Cleaner, error) {
	if store == nil || source == nil {
		return nil, fmt.Errorf("%w: cleanup store and termination source", errMissingDependency)
	}

	if events == nil {
		events = NoOpEvents{}
	}

	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	return &Cleaner{
		store:       store,
		source:      source,
		events:      events,
		metrics:     metrics,
		callTimeout: callTimeout,
		logger:      log,
		tracer:      logger.GetTracer(tracerName),
	}, nil
}

// Run walks every open assignment once. An assignment is closed with the
// instance's recorded termination time; one still running stays open. A
// lookup or write failure for one assignment is counted and the pass
// continues.
func (c *Cleaner) Run(ctx context.Context, summary *models.RunSummary) error {
	ctx, span := c.tracer.Start(ctx, "cleanup")
	defer span.End()

	open, err := c.store.OpenAssignments(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("list open assignments: %w", err)
	}

	span.SetAttributes(attribute.Int("open", len(open)))

	for i := range open {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cleanup interrupted: %w", err)
		}

		c.closeIfTerminated(ctx, &open[i], summary)
	}

	c.logger.Info().
		Int("open", len(open)).
		Int("closed", summary.AssignmentsClosed).
		Int("pending", summary.AssignmentsPending).
		Int("failures", summary.CleanupFailures).
		Msg("Cleanup pass finished")

	return nil
}

func (c *Cleaner) closeIfTerminated(ctx context.Context, open *models.OpenAssignment, summary *models.RunSummary) {
	terminatedAt, found, err := c.lookup(ctx, open.InstanceUUID)
	if err != nil {
		summary.CleanupFailures++

		c.logger.Warn().Err(err).
			Int64("assignment_id", open.ID).
			Str("instance_uuid", open.InstanceUUID).
			Msg("Cannot look up instance termination")

		return
	}

	if !found {
		summary.AssignmentsPending++
		return
	}

	assignment := models.Assignment{
		ID:            open.ID,
		AssignmentKey: models.AssignmentKey{InstanceUUID: open.InstanceUUID},
		State:         models.AssignmentOpen,
	}

	if err := assignment.Close(terminatedAt); err != nil {
		summary.CleanupFailures++

		c.logger.Warn().Err(err).Int64("assignment_id", open.ID).Msg("Refusing to close assignment")

		return
	}

	closed, err := c.store.CloseAssignment(ctx, open.ID, assignment.TerminatedAt)
	if err != nil {
		summary.CleanupFailures++

		c.logger.Error().Err(err).Int64("assignment_id", open.ID).Msg("Failed to close assignment")

		return
	}

	if !closed {
		c.logger.Debug().Int64("assignment_id", open.ID).Msg("Assignment already closed")
		return
	}

	summary.AssignmentsClosed++
	c.metrics.RecordAssignmentClosed()

	c.logger.Info().
		Int64("assignment_id", open.ID).
		Str("instance_uuid", open.InstanceUUID).
		Time("terminated_at", assignment.TerminatedAt).
		Msg("Closed assignment for terminated instance")

	event := &models.AssignmentClosedEvent{
		RunID:        summary.RunID,
		AssignmentID: open.ID,
		InstanceUUID: open.InstanceUUID,
		TerminatedAt: assignment.TerminatedAt,
		Timestamp:    time.Now(),
	}

	if err := c.events.AssignmentClosed(ctx, event); err != nil {
		c.logger.Warn().Err(err).Int64("assignment_id", open.ID).Msg("Failed to publish assignment closure")
	}
}

func (c *Cleaner) lookup(ctx context.Context, instanceUUID string) (time.Time, bool, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	t, found, err := c.source.TerminatedAt(ctx, instanceUUID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return time.Time{}, false, fmt.Errorf("termination lookup timed out after %s: %w", c.callTimeout, err)
		}

		return time.Time{}, false, err
	}

	return t, found, nil
}
