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
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/db"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/projector"
)

const tracerName = "gpudb-reconcile"

var errMissingDependency = errors.New("reconcile: missing dependency")

// Dependencies are the collaborators of an Engine. Events and Metrics are
// optional; Store is only needed by Run.
type Dependencies struct {
	Inventory Inventory
	Flavors   FlavorSource
	Resolver  AllocationResolver
	Locator   AddressLocator
	Store     Store
	Events    EventSink
	Metrics   Metrics
}

func (d *Dependencies) validate() error {
	switch {
	case d.Inventory == nil:
		return fmt.Errorf("%w: inventory", errMissingDependency)
	case d.Flavors == nil:
		return fmt.Errorf("%w: flavors", errMissingDependency)
	case d.Resolver == nil:
		return fmt.Errorf("%w: allocation resolver", errMissingDependency)
	case d.Locator == nil:
		return fmt.Errorf("%w: address locator", errMissingDependency)
	}

	if d.Events == nil {
		d.Events = NoOpEvents{}
	}

	if d.Metrics == nil {
		d.Metrics = &NoOpMetrics{}
	}

	return nil
}

// Config holds the engine policy.
type Config struct {
	HostStrip []string
	Defaults  Defaults
	// DeviceOrder picks which available device a projected reservation
	// takes. Nil keeps inventory order.
	DeviceOrder projector.Comparator
}

// Engine reconciles the live device inventory into the tracking store.
type Engine struct {
	deps      Dependencies
	cfg       Config
	projector *projector.Projector
	logger    logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEngine validates deps and returns an Engine.
func NewEngine(deps Dependencies, cfg Config, log logger.Logger) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	return &Engine{
		deps:      deps,
		cfg:       cfg,
		projector: projector.New(deps.Resolver, cfg.DeviceOrder, log),
		logger:    log,
		tracer:    logger.GetTracer(tracerName),
		now:       time.Now,
	}, nil
}

// Run executes one reconciliation and fills summary. Failing to read the
// inventory or the flavor catalog aborts before any write. Individual device
// failures are counted and logged; the run continues. The staleness sweep
// only runs when every device was visited.
func (e *Engine) Run(ctx context.Context, summary *models.RunSummary) error {
	if e.deps.Store == nil {
		return fmt.Errorf("%w: store", errMissingDependency)
	}

	ctx, span := e.tracer.Start(ctx, "reconcile")
	defer span.End()

	projected, err := e.project(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "projection failed")

		return err
	}

	summary.Devices = len(projected.Devices)
	summary.Reserved = len(projected.Reservations)

	staleness, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Cannot load active GPU nodes, staleness sweep disabled for this run")

		summary.DeactivationFailure = true
	}

	for i := range projected.Devices {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("reconcile interrupted after %d of %d devices: %w", i, len(projected.Devices), err)
		}

		e.reconcileDevice(ctx, &projected.Devices[i], staleness, summary)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reconcile interrupted before sweep: %w", err)
	}

	if staleness != nil {
		e.sweep(ctx, staleness, summary)
	}

	return nil
}

// Preview projects and enriches the inventory without touching the tracking
// store. Devices that fail enrichment are logged and left out.
func (e *Engine) Preview(ctx context.Context) ([]*models.EnrichedDevice, error) {
	projected, err := e.project(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.EnrichedDevice, 0, len(projected.Devices))

	for i := range projected.Devices {
		rec := &projected.Devices[i]

		enriched, err := e.Enrich(ctx, rec)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			e.logger.Warn().Err(err).Str("host", rec.Host).Str("pci_id", rec.Address).Msg("Skipping device, enrichment failed")

			continue
		}

		out = append(out, enriched)
	}

	return out, nil
}

func (e *Engine) project(ctx context.Context) (projector.Result, error) {
	ctx, span := e.tracer.Start(ctx, "inventory")

	devices, err := e.deps.Inventory.Devices(ctx)
	if err != nil {
		span.RecordError(err)
		span.End()

		return projector.Result{}, fmt.Errorf("read device inventory: %w", err)
	}

	flavors, err := e.deps.Flavors.GPUFlavors(ctx)
	if err != nil {
		span.RecordError(err)
		span.End()

		return projector.Result{}, fmt.Errorf("list gpu flavors: %w", err)
	}

	span.SetAttributes(attribute.Int("devices", len(devices)), attribute.Int("flavors", len(flavors)))
	span.End()

	ctx, span = e.tracer.Start(ctx, "projection")
	defer span.End()

	result, err := e.projector.Project(ctx, devices, flavors)
	if err != nil {
		span.RecordError(err)
		return projector.Result{}, fmt.Errorf("project entitlements: %w", err)
	}

	span.SetAttributes(
		attribute.Int("reservations", len(result.Reservations)),
		attribute.Int("unplaced", len(result.Unplaced)),
	)

	e.logger.Info().
		Int("devices", len(result.Devices)).
		Int("flavors", len(flavors)).
		Int("reserved", len(result.Reservations)).
		Int("unplaced", len(result.Unplaced)).
		Msg("Loaded GPU inventory")

	return result, nil
}

func (e *Engine) snapshot(ctx context.Context) (*StalenessSet, error) {
	active, err := e.deps.Store.ActiveNodes(ctx)
	if err != nil {
		return nil, err
	}

	return NewStalenessSet(active), nil
}

// Enrich attaches the allocation, routable address and normalized
// hypervisor name to rec. Resolution failures are returned unchanged so the
// caller can skip the device.
func (e *Engine) Enrich(ctx context.Context, rec *models.DeviceRecord) (*models.EnrichedDevice, error) {
	var alloc *models.Allocation

	if rec.HasProject() {
		a, err := e.deps.Resolver.Resolve(ctx, rec.ProjectID)
		if err != nil {
			return nil, err
		}

		alloc = a
	}

	var ip string

	if rec.Bound() {
		addr, err := e.deps.Locator.Locate(ctx, rec.InstanceUUID)
		if err != nil {
			return nil, err
		}

		ip = addr
	}

	out := e.cfg.Defaults.Apply(rec, alloc)
	out.Hypervisor = NormalizeHost(rec.Host, e.cfg.HostStrip)
	out.IP = ip

	return &out, nil
}

func (e *Engine) reconcileDevice(ctx context.Context, rec *models.DeviceRecord, staleness *StalenessSet, summary *models.RunSummary) {
	key := models.NodeKey{Hypervisor: NormalizeHost(rec.Host, e.cfg.HostStrip), Address: rec.Address}

	// Observed in the inventory, so never stale, even if the writes below fail.
	if staleness != nil {
		staleness.MarkSeen(key)
	}

	ctx, span := e.tracer.Start(ctx, "device", trace.WithAttributes(
		attribute.String("hypervisor", key.Hypervisor),
		attribute.String("pci_id", key.Address),
	))
	defer span.End()

	enriched, err := e.Enrich(ctx, rec)
	if err != nil {
		span.RecordError(err)

		summary.Skipped++
		e.deps.Metrics.RecordDevice(OutcomeSkipped)

		e.logger.Warn().Err(err).
			Str("host", rec.Host).
			Str("pci_id", rec.Address).
			Str("project_id", rec.ProjectID).
			Str("instance_uuid", rec.InstanceUUID).
			Msg("Skipping device, enrichment failed")

		return
	}

	reactivate := staleness == nil || !staleness.WasActive(key)

	writes := PlanWrites(enriched, reactivate)

	result, err := e.deps.Store.WriteDevice(ctx, writes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")

		summary.WriteFailures++
		e.deps.Metrics.RecordDevice(OutcomeWriteFailed)

		event := e.logger.Error().Err(err).
			Str("hypervisor", key.Hypervisor).
			Str("pci_id", key.Address)

		var writeErr *db.StoreWriteError
		if errors.As(err, &writeErr) {
			event = event.Str("sqlstate", writeErr.SQLState).Bool("transient", writeErr.Transient)
		}

		event.Msg("Failed to write device to tracking store")

		return
	}

	summary.Processed++
	e.deps.Metrics.RecordDevice(OutcomeProcessed)
	e.recordWrites(writes, result, summary)

	e.logger.Debug().
		Str("hypervisor", key.Hypervisor).
		Str("pci_id", key.Address).
		Str("model", enriched.Model).
		Str("project_id", enriched.ProjectID).
		Str("ip", enriched.IP).
		Bool("node_inserted", result.NodeInserted).
		Bool("assignment", result.AssignmentWritten).
		Bool("booking", result.BookingWritten).
		Msg("Reconciled device")
}

func (e *Engine) recordWrites(w *models.DeviceWrites, result db.WriteResult, summary *models.RunSummary) {
	m := e.deps.Metrics

	m.RecordWrite(WriteNode, result.NodeInserted || result.NodeReactivated)

	if result.NodeReactivated {
		summary.NodesReactivated++

		e.logger.Info().
			Str("hypervisor", w.Node.Hypervisor).
			Str("pci_id", w.Node.Address).
			Msg("Reactivated GPU node")
	}

	if w.Assignment != nil {
		m.RecordWrite(WriteAssignment, result.AssignmentWritten)

		if result.AssignmentWritten {
			summary.AssignmentsWritten++
		}
	}

	if w.Link != nil {
		m.RecordWrite(WriteLink, result.LinkCreated)
	}

	if w.Booking != nil {
		m.RecordWrite(WriteBooking, result.BookingWritten)

		if result.BookingWritten {
			summary.BookingsWritten++
		}
	}
}

func (e *Engine) sweep(ctx context.Context, staleness *StalenessSet, summary *models.RunSummary) {
	stale := staleness.Stale()
	if len(stale) == 0 {
		return
	}

	ctx, span := e.tracer.Start(ctx, "sweep", trace.WithAttributes(attribute.Int("stale", len(stale))))
	defer span.End()

	n, err := e.deps.Store.DeactivateNodes(ctx, stale)
	if err != nil {
		span.RecordError(err)

		summary.DeactivationFailure = true

		e.logger.Error().Err(err).Int("stale", len(stale)).Msg("Failed to deactivate stale GPU nodes")

		return
	}

	summary.NodesDeactivated = int(n)
	e.deps.Metrics.RecordNodesDeactivated(int(n))

	now := e.now()

	for _, key := range stale {
		e.logger.Info().
			Str("hypervisor", key.Hypervisor).
			Str("pci_id", key.Address).
			Msg("Deactivated GPU node no longer in inventory")

		event := &models.NodeDeactivatedEvent{
			RunID:      summary.RunID,
			Hypervisor: key.Hypervisor,
			Address:    key.Address,
			Timestamp:  now,
		}

		if err := e.deps.Events.NodeDeactivated(ctx, event); err != nil {
			e.logger.Warn().Err(err).Str("hypervisor", key.Hypervisor).Msg("Failed to publish node deactivation")
		}
	}
}
