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

//go:generate mockgen -destination=mock_allocation.go -package=allocation github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/allocation Lister

// Package allocation resolves Nectar project allocations.
package allocation

import (
	"context"
	"fmt"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// ListOpts filters an allocation listing.
type ListOpts struct {
	ProjectID string
	// SubRequests selects amendment and extension requests instead of the
	// top level request.
	SubRequests bool
}

// Lister lists allocation records.
type Lister interface {
	ListAllocations(ctx context.Context, opts ListOpts) ([]models.Allocation, error)
}

// ResolutionError reports that the allocation service could not answer for a
// project. The device or projection that needed it is skipped for this run.
type ResolutionError struct {
	ProjectID string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve allocation for project %s: %v", e.ProjectID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
