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
	"fmt"
	"strings"
	"time"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// NormalizeHost removes every configured site token from a compute host name
// and trims the separators left at either end, so "ntr-gpu07-akld2" becomes
// "gpu07" with the default tokens.
func NormalizeHost(host string, strip []string) string {
	for _, token := range strip {
		if token == "" {
			continue
		}

		host = strings.ReplaceAll(host, token, "")
	}

	return strings.Trim(host, "-.")
}

// Defaults is the attribution used for devices without a resolved allocation.
type Defaults struct {
	ProjectName string
	StartDate   time.Time
	EndDate     time.Time
}

// DefaultsFromConfig parses the configured default window.
func DefaultsFromConfig(cfg *models.ReconcileConfig) (Defaults, error) {
	start, err := models.ParseDate(cfg.DefaultStartDate)
	if err != nil {
		return Defaults{}, fmt.Errorf("default start date: %w", err)
	}

	end, err := models.ParseDate(cfg.DefaultEndDate)
	if err != nil {
		return Defaults{}, fmt.Errorf("default end date: %w", err)
	}

	return Defaults{ProjectName: cfg.DefaultProjectName, StartDate: start, EndDate: end}, nil
}

// Apply builds the enriched view of rec. With a nil allocation the default
// project name and window are used and the contact stays empty. An
// allocation missing a start or end date keeps the default for that bound
// only. Missing launch and termination times fall back to the window bounds,
// and a missing display name falls back to the allocation's project name.
func (d Defaults) Apply(rec *models.DeviceRecord, alloc *models.Allocation) models.EnrichedDevice {
	out := models.EnrichedDevice{
		DeviceRecord: rec.Clone(),
		ProjectName:  d.ProjectName,
		StartDate:    d.StartDate,
		EndDate:      d.EndDate,
	}

	if alloc != nil {
		a := *alloc
		out.Allocation = &a
		out.ProjectName = alloc.ProjectName

		if !alloc.StartDate.IsZero() {
			out.StartDate = alloc.StartDate
		}

		if !alloc.EndDate.IsZero() {
			out.EndDate = alloc.EndDate
		}

		if alloc.ContactEmail != "" {
			contact := alloc.ContactEmail
			out.Contact = &contact
		}
	}

	switch {
	case out.DisplayName != nil:
		name := *out.DisplayName
		out.InstanceName = &name
	case alloc != nil && alloc.ProjectName != "":
		name := alloc.ProjectName
		out.InstanceName = &name
	}

	out.LaunchedOn = out.StartDate
	if out.LaunchedAt != nil {
		out.LaunchedOn = *out.LaunchedAt
	}

	out.TerminatedOn = out.EndDate
	if out.TerminatedAt != nil {
		out.TerminatedOn = *out.TerminatedAt
	}

	return out
}
