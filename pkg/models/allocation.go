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

// DateLayout is the calendar date format used by the allocation service and
// the tracking store date columns.
const DateLayout = "2006-01-02"

// Allocation is a project's approved resource grant as returned by the
// allocation service. Start and end are calendar dates in UTC.
type Allocation struct {
	ID           int64     `json:"id"`
	ProjectID    string    `json:"project_id"`
	ProjectName  string    `json:"project_name"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	ContactEmail string    `json:"contact_email,omitempty"`
	Status       string    `json:"status"`
	// ParentRequest is set on sub-requests (amendments and extensions).
	ParentRequest *int64 `json:"parent_request,omitempty"`
}

// MergeEarliestStart lowers the allocation start date to the earliest start
// among its sub-requests.
func (a *Allocation) MergeEarliestStart(children []Allocation) {
	for i := range children {
		if children[i].StartDate.IsZero() {
			continue
		}

		if children[i].StartDate.Before(a.StartDate) {
			a.StartDate = children[i].StartDate
		}
	}
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, time.UTC)
}
