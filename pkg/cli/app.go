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

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/allocation"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/config"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/controlplane"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/db"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/inventory"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/natsutil"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/projector"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/reconcile"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/version"
)

const (
	serviceName     = "gpudb-sync"
	shutdownTimeout = 10 * time.Second
)

// app owns the configuration, telemetry and connections of one command.
type app struct {
	cfg     *models.GPUDBConfig
	log     logger.Logger
	metrics reconcile.Metrics
	closers []func()

	controlPlane *controlplane.Client
	resolver     *allocation.Resolver
	events       reconcile.EventSink
}

// newApp loads the configuration and starts logging, tracing and metrics.
// The returned context carries the root span of the run.
func newApp(ctx context.Context, configPath string) (*app, context.Context, error) {
	bootLog, err := logger.New(ctx, logger.DefaultConfig())
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var cfg models.GPUDBConfig

	if err := config.NewConfig(bootLog).LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return nil, ctx, err
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	log, err := logger.NewComponentLogger(ctx, serviceName, logCfg)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: &cfg, log: log}

	log.Info().Str("version", version.String()).Str("config_source", configSource()).Msg("Starting gpudb-sync")

	a.closers = append(a.closers, func() {
		if err := logger.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("Failed to flush OpenTelemetry pipelines")
		}
	})

	tp, ctx, span, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName: serviceName,
		Logger:      log,
		OTel:        &logCfg.OTel,
	})
	if err != nil {
		a.Close()
		return nil, ctx, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down tracer provider")
		}
	}, func() { span.End() })

	inMemory := reconcile.NewInMemoryMetrics(log)
	a.metrics = inMemory

	_, err = logger.InitializeMetrics(ctx, logger.MetricsConfig{ServiceName: serviceName, OTel: &logCfg.OTel})

	switch {
	case err == nil:
		a.metrics = reconcile.MultiMetrics{inMemory, reconcile.NewOTelMetrics()}
	case errors.Is(err, logger.ErrOTelMetricsDisabled):
	default:
		log.Warn().Err(err).Msg("OpenTelemetry metrics unavailable, continuing with in-process counters")
	}

	return a, ctx, nil
}

func configSource() string {
	if src := os.Getenv("CONFIG_SOURCE"); src != "" {
		return src
	}

	return "file"
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}

	a.closers = nil
}

func (a *app) component(name string) logger.Logger {
	return logger.FromZerolog(a.log.WithComponent(name))
}

func (a *app) callTimeout() time.Duration {
	return time.Duration(a.cfg.Reconcile.CallTimeout)
}

func (a *app) openNova(ctx context.Context) (*inventory.NovaReader, error) {
	log := a.component("inventory")

	conn, err := inventory.Open(ctx, &a.cfg.Nova, log)
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, func() { _ = conn.Close() })

	return inventory.NewNovaReader(conn, inventory.NewLabelMap(a.cfg.Reconcile.GPULabels), log), nil
}

func (a *app) openStore(ctx context.Context) (*db.Store, *pgxpool.Pool, error) {
	log := a.component("tracking-store")

	pool, err := db.NewTrackingPool(ctx, &a.cfg.Tracking, log)
	if err != nil {
		return nil, nil, err
	}

	a.closers = append(a.closers, pool.Close)

	return db.NewStore(pool, log, db.WithCallTimeout(a.callTimeout())), pool, nil
}

// openControlPlane authenticates once against Keystone and builds the
// compute, identity and allocation clients from the same token.
func (a *app) openControlPlane(ctx context.Context) (*controlplane.Client, *allocation.Resolver, error) {
	if a.controlPlane != nil {
		return a.controlPlane, a.resolver, nil
	}

	ks := &a.cfg.Keystone

	provider, err := controlplane.NewProvider(ctx, ks)
	if err != nil {
		return nil, nil, err
	}

	cp, err := controlplane.NewClient(provider, ks.Region)
	if err != nil {
		return nil, nil, err
	}

	allocClient, err := allocation.NewClient(provider, ks.AllocationServiceType, ks.Region, ks.AllocationEndpoint)
	if err != nil {
		return nil, nil, err
	}

	a.controlPlane = cp
	a.resolver = allocation.NewResolver(allocClient, a.component("allocation"), allocation.WithCallTimeout(a.callTimeout()))

	return a.controlPlane, a.resolver, nil
}

func (a *app) flavorCatalog(cp controlplane.API) (*controlplane.FlavorCatalog, error) {
	return controlplane.NewFlavorCatalog(cp, a.cfg.Reconcile.FlavorPattern, a.callTimeout(), a.component("flavors"))
}

// eventSink connects to NATS when configured. Events are best effort, so a
// connection failure falls back to dropping them.
func (a *app) eventSink(ctx context.Context) reconcile.EventSink {
	if a.events != nil {
		return a.events
	}

	a.events = reconcile.NoOpEvents{}

	if a.cfg.NATS == nil || a.cfg.NATS.URL == "" {
		return a.events
	}

	publisher, nc, err := natsutil.Connect(ctx, a.cfg.NATS, a.component("events"))
	if err != nil {
		a.log.Warn().Err(err).Str("url", a.cfg.NATS.URL).Msg("NATS unavailable, run events will not be published")
		return a.events
	}

	a.closers = append(a.closers, func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	})

	a.events = publisher

	return a.events
}

// newEngine wires the engine. store may be nil for read-only previews.
func (a *app) newEngine(ctx context.Context, nova *inventory.NovaReader, store reconcile.Store) (*reconcile.Engine, error) {
	cp, resolver, err := a.openControlPlane(ctx)
	if err != nil {
		return nil, err
	}

	catalog, err := a.flavorCatalog(cp)
	if err != nil {
		return nil, err
	}

	defaults, err := reconcile.DefaultsFromConfig(&a.cfg.Reconcile)
	if err != nil {
		return nil, err
	}

	deps := reconcile.Dependencies{
		Inventory: nova,
		Flavors:   catalog,
		Resolver:  resolver,
		Locator:   controlplane.NewLocator(cp, a.cfg.Reconcile.IPPrefix, a.callTimeout(), a.component("locator")),
		Metrics:   a.metrics,
	}

	if store != nil {
		deps.Store = store
		deps.Events = a.eventSink(ctx)
	}

	return reconcile.NewEngine(deps, reconcile.Config{
		HostStrip:   a.cfg.Reconcile.HostStrip,
		Defaults:    defaults,
		DeviceOrder: projector.ByHostAddress,
	}, a.component("reconcile"))
}

func (a *app) newCleaner(ctx context.Context, store *db.Store, nova *inventory.NovaReader) (*reconcile.Cleaner, error) {
	return reconcile.NewCleaner(store, nova, a.eventSink(ctx), a.metrics, a.callTimeout(), a.component("cleanup"))
}

func (a *app) jobOptions(ctx context.Context, store *db.Store) []reconcile.JobOption {
	opts := []reconcile.JobOption{
		reconcile.WithEvents(a.eventSink(ctx)),
		reconcile.WithMetrics(a.metrics),
	}

	if a.cfg.Reconcile.LockEnabled() {
		opts = append(opts, reconcile.WithLock(store.AcquireRunLock))
	}

	return opts
}
