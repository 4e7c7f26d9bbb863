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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
)

// Device outcomes reported to Metrics.RecordDevice.
const (
	OutcomeProcessed   = "processed"
	OutcomeSkipped     = "skipped"
	OutcomeWriteFailed = "write_failed"
)

// Write kinds reported to Metrics.RecordWrite.
const (
	WriteNode       = "node"
	WriteAssignment = "assignment"
	WriteBooking    = "booking"
	WriteLink       = "link"
)

// Metrics collects reconciliation counters.
type Metrics interface {
	RecordDevice(outcome string)
	RecordWrite(kind string, applied bool)
	RecordNodesDeactivated(count int)
	RecordAssignmentClosed()
	RecordRun(duration time.Duration, err error)

	GetMetrics() map[string]interface{}
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (*NoOpMetrics) RecordDevice(string)                {}
func (*NoOpMetrics) RecordWrite(string, bool)           {}
func (*NoOpMetrics) RecordNodesDeactivated(int)         {}
func (*NoOpMetrics) RecordAssignmentClosed()            {}
func (*NoOpMetrics) RecordRun(time.Duration, error)     {}
func (*NoOpMetrics) GetMetrics() map[string]interface{} { return map[string]interface{}{} }

// InMemoryMetrics keeps counters in process. The job logs them at the end of
// a run.
type InMemoryMetrics struct {
	mu     sync.RWMutex
	logger logger.Logger

	devices           map[string]int
	writes            map[string]int
	nodesDeactivated  int
	assignmentsClosed int
	runs              int
	failedRuns        int
	lastRunDuration   time.Duration
}

// NewInMemoryMetrics returns empty counters.
func NewInMemoryMetrics(log logger.Logger) *InMemoryMetrics {
	return &InMemoryMetrics{
		logger:  log,
		devices: make(map[string]int),
		writes:  make(map[string]int),
	}
}

func (m *InMemoryMetrics) RecordDevice(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices[outcome]++
}

func (m *InMemoryMetrics) RecordWrite(kind string, applied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes[writeKey(kind, applied)]++
}

func (m *InMemoryMetrics) RecordNodesDeactivated(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodesDeactivated += count
}

func (m *InMemoryMetrics) RecordAssignmentClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.assignmentsClosed++
}

func (m *InMemoryMetrics) RecordRun(duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs++
	m.lastRunDuration = duration

	if err != nil {
		m.failedRuns++

		m.logger.Debug().Err(err).Dur("duration", duration).Msg("Recorded failed run")
	}
}

// Device returns the count for one device outcome.
func (m *InMemoryMetrics) Device(outcome string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.devices[outcome]
}

// Write returns the count for one write kind and outcome.
func (m *InMemoryMetrics) Write(kind string, applied bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.writes[writeKey(kind, applied)]
}

func (m *InMemoryMetrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make(map[string]int, len(m.devices))
	for k, v := range m.devices {
		devices[k] = v
	}

	writes := make(map[string]int, len(m.writes))
	for k, v := range m.writes {
		writes[k] = v
	}

	return map[string]interface{}{
		"devices":            devices,
		"writes":             writes,
		"nodes_deactivated":  m.nodesDeactivated,
		"assignments_closed": m.assignmentsClosed,
		"runs":               m.runs,
		"failed_runs":        m.failedRuns,
		"last_run_ms":        m.lastRunDuration.Milliseconds(),
	}
}

func writeKey(kind string, applied bool) string {
	if applied {
		return kind + ".applied"
	}

	return kind + ".unchanged"
}

const meterName = "github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/reconcile"

var (
	//nolint:gochecknoglobals // OpenTelemetry instruments are shared process-wide.
	otelInitOnce sync.Once
	//nolint:gochecknoglobals // OpenTelemetry instruments are shared process-wide.
	devicesCounter metric.Int64Counter
	//nolint:gochecknoglobals // OpenTelemetry instruments are shared process-wide.
	writesCounter metric.Int64Counter
	//nolint:gochecknoglobals // OpenTelemetry instruments are shared process-wide.
	deactivatedCounter metric.Int64Counter
	//nolint:gochecknoglobals // OpenTelemetry instruments are shared process-wide.
	closedCounter metric.Int64Counter
	//nolint:gochecknoglobals // OpenTelemetry instruments are shared process-wide.
	runDuration metric.Float64Histogram
)

func initInstruments() {
	otelInitOnce.Do(func() {
		meter := otel.Meter(meterName)

		var err error

		devicesCounter, err = meter.Int64Counter(
			"gpudb_devices_total",
			metric.WithDescription("GPU devices handled by the reconciliation engine, by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}

		writesCounter, err = meter.Int64Counter(
			"gpudb_writes_total",
			metric.WithDescription("Tracking store writes, by table kind and whether a row changed"),
		)
		if err != nil {
			otel.Handle(err)
		}

		deactivatedCounter, err = meter.Int64Counter(
			"gpudb_nodes_deactivated_total",
			metric.WithDescription("GPU nodes marked inactive by the staleness sweep"),
		)
		if err != nil {
			otel.Handle(err)
		}

		closedCounter, err = meter.Int64Counter(
			"gpudb_assignments_closed_total",
			metric.WithDescription("Assignments closed by the cleanup pass"),
		)
		if err != nil {
			otel.Handle(err)
		}

		runDuration, err = meter.Float64Histogram(
			"gpudb_run_duration_seconds",
			metric.WithDescription("Wall time of a gpudb-sync run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// OTelMetrics records through the global OpenTelemetry meter provider.
type OTelMetrics struct{}

// NewOTelMetrics initializes the shared instruments.
func NewOTelMetrics() *OTelMetrics {
	initInstruments()

	return &OTelMetrics{}
}

func (*OTelMetrics) RecordDevice(outcome string) {
	if devicesCounter == nil {
		return
	}

	devicesCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (*OTelMetrics) RecordWrite(kind string, applied bool) {
	if writesCounter == nil {
		return
	}

	writesCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("applied", applied),
	))
}

func (*OTelMetrics) RecordNodesDeactivated(count int) {
	if deactivatedCounter == nil || count <= 0 {
		return
	}

	deactivatedCounter.Add(context.Background(), int64(count))
}

func (*OTelMetrics) RecordAssignmentClosed() {
	if closedCounter == nil {
		return
	}

	closedCounter.Add(context.Background(), 1)
}

func (*OTelMetrics) RecordRun(duration time.Duration, err error) {
	if runDuration == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	runDuration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attribute.String("result", result)))
}

func (*OTelMetrics) GetMetrics() map[string]interface{} { return map[string]interface{}{} }

// MultiMetrics fans out to several collectors.
type MultiMetrics []Metrics

func (mm MultiMetrics) RecordDevice(outcome string) {
	for _, m := range mm {
		m.RecordDevice(outcome)
	}
}

func (mm MultiMetrics) RecordWrite(kind string, applied bool) {
	for _, m := range mm {
		m.RecordWrite(kind, applied)
	}
}

func (mm MultiMetrics) RecordNodesDeactivated(count int) {
	for _, m := range mm {
		m.RecordNodesDeactivated(count)
	}
}

func (mm MultiMetrics) RecordAssignmentClosed() {
	for _, m := range mm {
		m.RecordAssignmentClosed()
	}
}

func (mm MultiMetrics) RecordRun(duration time.Duration, err error) {
	for _, m := range mm {
		m.RecordRun(duration, err)
	}
}

// GetMetrics returns the first non-empty snapshot.
func (mm MultiMetrics) GetMetrics() map[string]interface{} {
	for _, m := range mm {
		if out := m.GetMetrics(); len(out) > 0 {
			return out
		}
	}

	return map[string]interface{}{}
}
