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

// Package reconcile drives one gpudb-sync run: it enriches the device
// inventory, writes it to the tracking store, retires nodes that disappeared
// and closes assignments whose instances have terminated.
package reconcile

//go:generate mockgen -destination=mock_reconcile.go -package=reconcile github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/reconcile TerminationSource,EventSink

import (
	"context"
	"time"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/db"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// Inventory lists the GPU passthrough devices of the compute cell.
type Inventory interface {
	Devices(ctx context.Context) ([]models.DeviceRecord, error)
}

// FlavorSource lists GPU flavors with the projects entitled to them.
type FlavorSource interface {
	GPUFlavors(ctx context.Context) ([]models.GPUFlavor, error)
}

// AllocationResolver returns a project's allocation, or nil when it has none.
type AllocationResolver interface {
	Resolve(ctx context.Context, projectID string) (*models.Allocation, error)
}

// AddressLocator returns the routable address of an instance, or "" when the
// instance has none or no longer exists.
type AddressLocator interface {
	Locate(ctx context.Context, instanceUUID string) (string, error)
}

// Store is the tracking store surface the engine writes through.
type Store interface {
	WriteDevice(ctx context.Context, w *models.DeviceWrites) (db.WriteResult, error)
	ActiveNodes(ctx context.Context) ([]models.NodeKey, error)
	DeactivateNodes(ctx context.Context, keys []models.NodeKey) (int64, error)
}

// AssignmentStore is the tracking store surface the cleanup pass needs.
type AssignmentStore interface {
	OpenAssignments(ctx context.Context) ([]models.OpenAssignment, error)
	CloseAssignment(ctx context.Context, id int64, terminatedAt time.Time) (bool, error)
}

// TerminationSource reports when an instance was terminated. found is false
// while the instance is still running.
type TerminationSource interface {
	TerminatedAt(ctx context.Context, instanceUUID string) (t time.Time, found bool, err error)
}

// EventSink receives run outcomes. Implementations must not block the run on
// slow consumers; errors are logged and otherwise ignored.
type EventSink interface {
	NodeDeactivated(ctx context.Context, event *models.NodeDeactivatedEvent) error
	AssignmentClosed(ctx context.Context, event *models.AssignmentClosedEvent) error
	RunCompleted(ctx context.Context, summary *models.RunSummary) error
}

// NoOpEvents drops all events.
type NoOpEvents struct{}

func (NoOpEvents) NodeDeactivated(context.Context, *models.NodeDeactivatedEvent) error { return nil }

func (NoOpEvents) AssignmentClosed(context.Context, *models.AssignmentClosedEvent) error { return nil }

func (NoOpEvents) RunCompleted(context.Context, *models.RunSummary) error { return nil }
