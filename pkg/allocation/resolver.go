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

package allocation

import (
	"context"
	"sync"
	"time"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithCallTimeout bounds each allocation service request.
func WithCallTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.callTimeout = timeout
	}
}

// Resolver turns a project id into its current allocation. Successful
// answers, including "no allocation", are cached for the life of the
// Resolver so one run asks the service at most once per project.
type Resolver struct {
	lister      Lister
	logger      logger.Logger
	callTimeout time.Duration

	mu    sync.Mutex
	cache map[string]*models.Allocation
}

// NewResolver creates a Resolver over lister.
func NewResolver(lister Lister, log logger.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lister: lister,
		logger: log,
		cache:  make(map[string]*models.Allocation),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the project's allocation, or nil when the project has no
// top level allocation or more than one. When sub-requests exist the start
// date is lowered to the earliest of them. Service failures are returned as
// *ResolutionError and are not cached.
func (r *Resolver) Resolve(ctx context.Context, projectID string) (*models.Allocation, error) {
	if projectID == "" {
		return nil, nil
	}

	r.mu.Lock()
	cached, ok := r.cache[projectID]
	r.mu.Unlock()

	if ok {
		return cloneAllocation(cached), nil
	}

	parents, err := r.list(ctx, ListOpts{ProjectID: projectID})
	if err != nil {
		return nil, &ResolutionError{ProjectID: projectID, Err: err}
	}

	var resolved *models.Allocation

	switch len(parents) {
	case 0:
		r.logger.Debug().Str("project_id", projectID).Msg("project has no allocation")
	case 1:
		children, err := r.list(ctx, ListOpts{ProjectID: projectID, SubRequests: true})
		if err != nil {
			return nil, &ResolutionError{ProjectID: projectID, Err: err}
		}

		alloc := parents[0]
		alloc.MergeEarliestStart(children)
		resolved = &alloc
	default:
		r.logger.Warn().
			Str("project_id", projectID).
			Int("allocations", len(parents)).
			Msg("ambiguous allocation: project has more than one top level allocation, treating as unallocated")
	}

	r.mu.Lock()
	r.cache[projectID] = resolved
	r.mu.Unlock()

	return cloneAllocation(resolved), nil
}

func (r *Resolver) list(ctx context.Context, opts ListOpts) ([]models.Allocation, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	return r.lister.ListAllocations(ctx, opts)
}

func cloneAllocation(a *models.Allocation) *models.Allocation {
	if a == nil {
		return nil
	}

	out := *a

	if a.ParentRequest != nil {
		parent := *a.ParentRequest
		out.ParentRequest = &parent
	}

	return &out
}
