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

import "github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"

// PlanWrites decides what one enriched device contributes to the tracking
// store. The node row is always written. A device bound to an instance with
// a project and a routable address records an assignment linked to the node;
// any other device carrying a project records a booking instead. reactivate
// asks the store to flip an existing inactive node back to active.
func PlanWrites(d *models.EnrichedDevice, reactivate bool) *models.DeviceWrites {
	node := models.Node{
		NodeKey: models.NodeKey{Hypervisor: d.Hypervisor, Address: d.Address},
		Model:   d.Model,
		Active:  true,
	}

	w := &models.DeviceWrites{Node: node, Reactivate: reactivate}

	switch {
	case d.Bound() && d.HasProject() && d.IP != "":
		key := models.AssignmentKey{IP: d.IP, ProjectID: d.ProjectID, InstanceUUID: d.InstanceUUID}
		w.Assignment = &models.Assignment{
			AssignmentKey: key,
			ProjectName:   d.ProjectName,
			StartDate:     d.StartDate,
			EndDate:       d.EndDate,
			Contact:       d.Contact,
			InstanceName:  d.InstanceName,
			LaunchedAt:    d.LaunchedOn,
			TerminatedAt:  d.TerminatedOn,
			State:         models.AssignmentOpen,
		}
		w.Link = &models.NodeLink{Assignment: key, Node: node.NodeKey}
	case d.HasProject():
		w.Booking = &models.Booking{
			BookingKey:  models.BookingKey{ProjectID: d.ProjectID, StartDate: d.StartDate},
			ProjectName: d.ProjectName,
			EndDate:     d.EndDate,
			Contact:     d.Contact,
			Model:       d.Model,
			Count:       1,
		}
	}

	return w
}
