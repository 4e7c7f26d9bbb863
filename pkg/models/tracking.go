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

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAssignmentClosed        = errors.New("assignment already closed")
	ErrTerminationTimeRequired = errors.New("termination timestamp is required to close an assignment")
)

// NodeKey is the natural key of a gpu_nodes row.
type NodeKey struct {
	Hypervisor string `json:"hypervisor"`
	Address    string `json:"pci_id"`
}

func (k NodeKey) String() string {
	return k.Hypervisor + " " + k.Address
}

// Node is one physical host and PCI address pair holding a GPU.
type Node struct {
	NodeKey
	Model  string `json:"gpu_type"`
	Active bool   `json:"active"`
}

// AssignmentState is the lifecycle of an ip2project row. Rows start Open and
// move to Closed once the instance termination is confirmed.
type AssignmentState int

const (
	AssignmentOpen AssignmentState = iota
	AssignmentClosed
)

func (s AssignmentState) String() string {
	switch s {
	case AssignmentOpen:
		return "open"
	case AssignmentClosed:
		return "closed"
	default:
		return fmt.Sprintf("AssignmentState(%d)", int(s))
	}
}

// Final is the value stored in the ip2project.final column.
func (s AssignmentState) Final() int16 {
	if s == AssignmentClosed {
		return 1
	}

	return 0
}

// AssignmentStateFromFinal maps the stored column back to a state.
func AssignmentStateFromFinal(final int16) AssignmentState {
	if final != 0 {
		return AssignmentClosed
	}

	return AssignmentOpen
}

// AssignmentKey is the natural key of an ip2project row.
type AssignmentKey struct {
	IP           string `json:"ip"`
	ProjectID    string `json:"project_uuid"`
	InstanceUUID string `json:"instance_uuid"`
}

func (k AssignmentKey) String() string {
	return k.IP + "/" + k.ProjectID + "/" + k.InstanceUUID
}

// Assignment records that a project used an IP and instance on GPU hardware
// over a time window.
type Assignment struct {
	AssignmentKey
	ID           int64           `json:"id,omitempty"`
	ProjectName  string          `json:"project_name"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	Contact      *string         `json:"email,omitempty"`
	InstanceName *string         `json:"instance_name,omitempty"`
	LaunchedAt   time.Time       `json:"instance_launched_at"`
	TerminatedAt time.Time       `json:"instance_terminated_at"`
	State        AssignmentState `json:"final"`
}

// Reobserve applies a fresh sighting of the same key: the termination time
// and end date follow the sighting and the row is open again until the
// cleanup pass confirms termination.
func (a *Assignment) Reobserve(terminatedAt, endDate time.Time) {
	a.TerminatedAt = terminatedAt
	a.EndDate = endDate
	a.State = AssignmentOpen
}

// Close moves an open assignment to its terminal state. Closing twice is an
// error so callers cannot silently rewrite a confirmed termination time.
func (a *Assignment) Close(terminatedAt time.Time) error {
	if a.State == AssignmentClosed {
		return ErrAssignmentClosed
	}

	if terminatedAt.IsZero() {
		return ErrTerminationTimeRequired
	}

	a.TerminatedAt = terminatedAt
	a.State = AssignmentClosed

	return nil
}

// OpenAssignment is the slice of an open ip2project row the cleanup pass needs.
type OpenAssignment struct {
	ID           int64  `json:"id"`
	InstanceUUID string `json:"instance_uuid"`
}

// BookingKey is the natural key of a gpu_booking row. The window is
// identified by its start date since the end date is extended in place.
type BookingKey struct {
	ProjectID string    `json:"project_uuid"`
	StartDate time.Time `json:"booking_start_date"`
}

// Booking is an entitlement to GPU capacity that has no running instance.
type Booking struct {
	BookingKey
	ProjectName string    `json:"project_name"`
	EndDate     time.Time `json:"booking_end_date"`
	Contact     *string   `json:"email,omitempty"`
	Model       string    `json:"gpu_type"`
	Count       int       `json:"count"`
}

// NodeLink ties a node to the assignment it hosts.
type NodeLink struct {
	Assignment AssignmentKey `json:"assignment"`
	Node       NodeKey       `json:"node"`
}

// DeviceWrites is everything one device contributes to the tracking store in
// a run. The writes are applied in a single transaction.
type DeviceWrites struct {
	Node       Node        `json:"node"`
	Reactivate bool        `json:"reactivate"`
	Assignment *Assignment `json:"assignment,omitempty"`
	Link       *NodeLink   `json:"link,omitempty"`
	Booking    *Booking    `json:"booking,omitempty"`
}
