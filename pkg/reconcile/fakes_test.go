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
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/db"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// memStore mirrors the tracking store statements in memory: insert-or-keep
// nodes, upsert assignments keyed on (ip, project, instance), upsert bookings
// keyed on (project, start date) and idempotent links.
type memStore struct {
	mu sync.Mutex

	nodes       map[models.NodeKey]*models.Node
	assignments map[models.AssignmentKey]*models.Assignment
	links       map[models.NodeLink]struct{}
	bookings    map[models.BookingKey]*models.Booking
	nextID      int64

	failWrite      map[models.NodeKey]error
	failActive     error
	failDeactivate error

	writeCalls      int
	deactivateCalls int
}

func newMemStore() *memStore {
	return &memStore{
		nodes:       make(map[models.NodeKey]*models.Node),
		assignments: make(map[models.AssignmentKey]*models.Assignment),
		links:       make(map[models.NodeLink]struct{}),
		bookings:    make(map[models.BookingKey]*models.Booking),
		failWrite:   make(map[models.NodeKey]error),
	}
}

func (s *memStore) seedNode(key models.NodeKey, model string, active bool) {
	s.nodes[key] = &models.Node{NodeKey: key, Model: model, Active: active}
}

func (s *memStore) WriteDevice(_ context.Context, w *models.DeviceWrites) (db.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeCalls++

	if err, ok := s.failWrite[w.Node.NodeKey]; ok {
		return db.WriteResult{}, &db.StoreWriteError{Op: "write device", Key: w.Node.String(), SQLState: "23503", Err: err}
	}

	var result db.WriteResult

	node, ok := s.nodes[w.Node.NodeKey]
	switch {
	case !ok:
		n := w.Node
		n.Active = true
		s.nodes[n.NodeKey] = &n
		result.NodeInserted = true
	case w.Reactivate && !node.Active:
		node.Active = true
		result.NodeReactivated = true
	}

	if w.Assignment != nil {
		if existing, ok := s.assignments[w.Assignment.AssignmentKey]; ok {
			existing.Reobserve(w.Assignment.TerminatedAt, w.Assignment.EndDate)
		} else {
			a := *w.Assignment
			s.nextID++
			a.ID = s.nextID
			a.State = models.AssignmentOpen
			s.assignments[a.AssignmentKey] = &a
		}

		result.AssignmentWritten = true

		if w.Link != nil {
			if _, ok := s.links[*w.Link]; !ok {
				s.links[*w.Link] = struct{}{}
				result.LinkCreated = true
			}
		}
	} else if w.Booking != nil {
		if existing, ok := s.bookings[w.Booking.BookingKey]; ok {
			existing.EndDate = w.Booking.EndDate
		} else {
			b := *w.Booking
			s.bookings[b.BookingKey] = &b
		}

		result.BookingWritten = true
	}

	return result, nil
}

func (s *memStore) ActiveNodes(context.Context) ([]models.NodeKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failActive != nil {
		return nil, s.failActive
	}

	var out []models.NodeKey

	for key, n := range s.nodes {
		if n.Active {
			out = append(out, key)
		}
	}

	slices.SortFunc(out, func(a, b models.NodeKey) int { return cmp.Compare(a.String(), b.String()) })

	return out, nil
}

func (s *memStore) DeactivateNodes(_ context.Context, keys []models.NodeKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deactivateCalls++

	if s.failDeactivate != nil {
		return 0, s.failDeactivate
	}

	var n int64

	for _, key := range keys {
		if node, ok := s.nodes[key]; ok && node.Active {
			node.Active = false
			n++
		}
	}

	return n, nil
}

func (s *memStore) OpenAssignments(context.Context) ([]models.OpenAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.OpenAssignment

	for _, a := range s.assignments {
		if a.State == models.AssignmentOpen {
			out = append(out, models.OpenAssignment{ID: a.ID, InstanceUUID: a.InstanceUUID})
		}
	}

	slices.SortFunc(out, func(a, b models.OpenAssignment) int { return cmp.Compare(a.ID, b.ID) })

	return out, nil
}

func (s *memStore) CloseAssignment(_ context.Context, id int64, terminatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assignments {
		if a.ID == id {
			return a.Close(terminatedAt) == nil, nil
		}
	}

	return false, nil
}

// state returns a deep copy for before and after comparisons.
func (s *memStore) state() (nodes map[models.NodeKey]models.Node, assignments map[models.AssignmentKey]models.Assignment,
	links int, bookings map[models.BookingKey]models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes = make(map[models.NodeKey]models.Node, len(s.nodes))
	for k, v := range s.nodes {
		nodes[k] = *v
	}

	assignments = make(map[models.AssignmentKey]models.Assignment, len(s.assignments))
	for k, v := range s.assignments {
		assignments[k] = *v
	}

	bookings = make(map[models.BookingKey]models.Booking, len(s.bookings))
	for k, v := range s.bookings {
		bookings[k] = *v
	}

	return nodes, assignments, len(s.links), bookings
}

type fakeInventory struct {
	devices []models.DeviceRecord
	err     error
}

func (f *fakeInventory) Devices(context.Context) ([]models.DeviceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}

	out := make([]models.DeviceRecord, len(f.devices))
	for i := range f.devices {
		out[i] = f.devices[i].Clone()
	}

	return out, nil
}

type fakeFlavors struct {
	flavors []models.GPUFlavor
	err     error
}

func (f *fakeFlavors) GPUFlavors(context.Context) ([]models.GPUFlavor, error) {
	return f.flavors, f.err
}

type fakeResolver struct {
	allocations map[string]*models.Allocation
	errs        map[string]error
}

func (f *fakeResolver) Resolve(_ context.Context, projectID string) (*models.Allocation, error) {
	if err, ok := f.errs[projectID]; ok {
		return nil, err
	}

	return f.allocations[projectID], nil
}

type fakeLocator struct {
	addresses map[string]string
	errs      map[string]error
	onCall    func()
}

func (f *fakeLocator) Locate(_ context.Context, instanceUUID string) (string, error) {
	if f.onCall != nil {
		f.onCall()
	}

	if err, ok := f.errs[instanceUUID]; ok {
		return "", err
	}

	return f.addresses[instanceUUID], nil
}
