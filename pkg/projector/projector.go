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

// Package projector reserves GPU devices for projects that hold GPU flavor
// access but have no running instance.
package projector

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// Resolver resolves a project's allocation. A nil allocation with a nil
// error means the project has none.
type Resolver interface {
	Resolve(ctx context.Context, projectID string) (*models.Allocation, error)
}

// Comparator orders reservation candidates. The first available device of
// the flavor's model in this order is reserved. A nil Comparator keeps
// inventory order.
type Comparator func(a, b *models.DeviceRecord) int

// ByHostAddress orders devices by host, then PCI address.
func ByHostAddress(a, b *models.DeviceRecord) int {
	if c := cmp.Compare(a.Host, b.Host); c != 0 {
		return c
	}

	return cmp.Compare(a.Address, b.Address)
}

// Reservation is one device provisionally assigned to a project.
type Reservation struct {
	ProjectID string
	Flavor    string
	Model     string
	Host      string
	Address   string
}

// Result is the projected device set. Devices is a new slice; the input is
// never modified.
type Result struct {
	Devices      []models.DeviceRecord
	Reservations []Reservation
	// Unplaced lists projects entitled to a model with no available device.
	Unplaced []Reservation
	// Unresolved lists projects skipped because the allocation service failed.
	Unresolved []string
}

// Projector applies the one GPU per unprovisioned project policy.
type Projector struct {
	resolver Resolver
	order    Comparator
	logger   logger.Logger
}

// New returns a Projector. order may be nil.
func New(resolver Resolver, order Comparator, log logger.Logger) *Projector {
	return &Projector{resolver: resolver, order: order, logger: log}
}

type reservationKey struct {
	project string
	model   string
}

// Project walks flavors in order and, for every entitled project that has no
// device bound in the inventory and a resolvable allocation, reserves the
// first available device of the flavor's model. A project gets at most one
// reservation per model.
func (p *Projector) Project(ctx context.Context, devices []models.DeviceRecord, flavors []models.GPUFlavor) (Result, error) {
	out := make([]models.DeviceRecord, len(devices))
	for i := range devices {
		out[i] = devices[i].Clone()
	}

	result := Result{Devices: out}

	bound := make(map[string]struct{})

	for i := range out {
		if out[i].HasProject() {
			bound[out[i].ProjectID] = struct{}{}
		}
	}

	candidates := make([]int, len(out))
	for i := range candidates {
		candidates[i] = i
	}

	if p.order != nil {
		slices.SortStableFunc(candidates, func(a, b int) int { return p.order(&out[a], &out[b]) })
	}

	reserved := make(map[reservationKey]struct{})

	for _, flavor := range flavors {
		for _, projectID := range flavor.ProjectIDs {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if _, ok := bound[projectID]; ok || projectID == "" {
				continue
			}

			key := reservationKey{project: projectID, model: flavor.Model}
			if _, ok := reserved[key]; ok {
				continue
			}

			alloc, err := p.resolver.Resolve(ctx, projectID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return result, err
				}

				p.logger.Warn().Err(err).
					Str("project_id", projectID).
					Str("flavor", flavor.Name).
					Msg("skipping entitlement, allocation unresolved")

				result.Unresolved = append(result.Unresolved, projectID)

				continue
			}

			if alloc == nil {
				p.logger.Debug().
					Str("project_id", projectID).
					Str("flavor", flavor.Name).
					Msg("flavor access without allocation, not reserving")

				continue
			}

			reservation := Reservation{ProjectID: projectID, Flavor: flavor.Name, Model: flavor.Model}

			idx := p.firstAvailable(out, candidates, flavor.Model)
			if idx < 0 {
				p.logger.Info().
					Str("project_id", projectID).
					Str("model", flavor.Model).
					Msg("no available device to reserve")

				result.Unplaced = append(result.Unplaced, reservation)

				continue
			}

			out[idx].Status = models.DeviceStatusReserved
			out[idx].ProjectID = projectID
			reserved[key] = struct{}{}

			reservation.Host = out[idx].Host
			reservation.Address = out[idx].Address
			result.Reservations = append(result.Reservations, reservation)

			p.logger.Info().
				Str("project_id", projectID).
				Str("model", flavor.Model).
				Str("host", reservation.Host).
				Str("pci_id", reservation.Address).
				Msg("reserved device for entitled project")
		}
	}

	return result, nil
}

func (p *Projector) firstAvailable(devices []models.DeviceRecord, candidates []int, model string) int {
	for _, idx := range candidates {
		d := &devices[idx]
		if d.Model == model && d.Status == models.DeviceStatusAvailable && !d.HasProject() {
			return idx
		}
	}

	return -1
}
