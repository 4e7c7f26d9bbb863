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

package models

import "time"

// DeviceStatus is the allocation state Nova reports for a PCI device.
type DeviceStatus string

const (
	DeviceStatusAvailable DeviceStatus = "available"
	DeviceStatusClaimed   DeviceStatus = "claimed"
	DeviceStatusAllocated DeviceStatus = "allocated"
	DeviceStatusReserved  DeviceStatus = "reserved"
	DeviceStatusRemoved   DeviceStatus = "removed"
)

// DeviceRecord is one GPU passthrough device as seen in a single run. It is
// rebuilt from the Nova cell database every run and never persisted as is.
type DeviceRecord struct {
	Host         string       `json:"host"`
	Model        string       `json:"model"`
	Status       DeviceStatus `json:"status"`
	InstanceUUID string       `json:"instance_uuid,omitempty"`
	ProjectID    string       `json:"project_id,omitempty"`
	DisplayName  *string      `json:"display_name,omitempty"`
	Address      string       `json:"address"`
	LaunchedAt   *time.Time   `json:"launched_at,omitempty"`
	TerminatedAt *time.Time   `json:"terminated_at,omitempty"`
}

// Bound reports whether a workload instance currently holds the device.
func (d *DeviceRecord) Bound() bool {
	return d.InstanceUUID != ""
}

// HasProject reports whether the device carries a project, either through a
// running instance or a projected reservation.
func (d *DeviceRecord) HasProject() bool {
	return d.ProjectID != ""
}

// Clone returns a copy that shares no pointers with d.
func (d *DeviceRecord) Clone() DeviceRecord {
	out := *d

	if d.DisplayName != nil {
		name := *d.DisplayName
		out.DisplayName = &name
	}

	if d.LaunchedAt != nil {
		t := *d.LaunchedAt
		out.LaunchedAt = &t
	}

	if d.TerminatedAt != nil {
		t := *d.TerminatedAt
		out.TerminatedAt = &t
	}

	return out
}

// EnrichedDevice is a DeviceRecord after allocation, network and hostname
// enrichment. Every field needed by the tracking store writes is populated.
type EnrichedDevice struct {
	DeviceRecord

	Hypervisor   string      `json:"hypervisor"`
	IP           string      `json:"ip,omitempty"`
	ProjectName  string      `json:"project_name"`
	StartDate    time.Time   `json:"start_date"`
	EndDate      time.Time   `json:"end_date"`
	Contact      *string     `json:"contact,omitempty"`
	InstanceName *string     `json:"instance_name,omitempty"`
	LaunchedOn   time.Time   `json:"instance_launched_at"`
	TerminatedOn time.Time   `json:"instance_terminated_at"`
	Allocation   *Allocation `json:"allocation,omitempty"`
}

// GPUFlavor is a GPU-class Nova flavor together with the projects granted
// access to it and the GPU model its passthrough alias requests.
type GPUFlavor struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Model      string   `json:"model"`
	ProjectIDs []string `json:"project_ids"`
}
