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

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// NodeDeactivatedEvent is emitted when the staleness sweep retires a node.
type NodeDeactivatedEvent struct {
	RunID      string    `json:"run_id"`
	Hypervisor string    `json:"hypervisor"`
	Address    string    `json:"pci_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// AssignmentClosedEvent is emitted when the cleanup pass closes an assignment.
type AssignmentClosedEvent struct {
	RunID        string    `json:"run_id"`
	AssignmentID int64     `json:"assignment_id"`
	InstanceUUID string    `json:"instance_uuid"`
	TerminatedAt time.Time `json:"terminated_at"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunSummary counts the outcome of one gpudb-sync run.
type RunSummary struct {
	RunID               string    `json:"run_id"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
	Devices             int       `json:"devices"`
	Reserved            int       `json:"reserved"`
	Processed           int       `json:"processed"`
	Skipped             int       `json:"skipped"`
	WriteFailures       int       `json:"write_failures"`
	AssignmentsWritten  int       `json:"assignments_written"`
	BookingsWritten     int       `json:"bookings_written"`
	NodesReactivated    int       `json:"nodes_reactivated"`
	NodesDeactivated    int       `json:"nodes_deactivated"`
	AssignmentsClosed   int       `json:"assignments_closed"`
	AssignmentsPending  int       `json:"assignments_pending"`
	CleanupFailures     int       `json:"cleanup_failures"`
	DeactivationFailure bool      `json:"deactivation_failure,omitempty"`
}
