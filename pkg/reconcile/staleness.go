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

// StalenessSet tracks which nodes active at the start of a run were observed
// again. Whatever remains unseen once every device has been handled is stale.
type StalenessSet struct {
	active map[models.NodeKey]bool
	order  []models.NodeKey
}

// NewStalenessSet snapshots the active nodes. Duplicate keys are ignored.
func NewStalenessSet(active []models.NodeKey) *StalenessSet {
	s := &StalenessSet{
		active: make(map[models.NodeKey]bool, len(active)),
		order:  make([]models.NodeKey, 0, len(active)),
	}

	for _, key := range active {
		if _, ok := s.active[key]; ok {
			continue
		}

		s.active[key] = false
		s.order = append(s.order, key)
	}

	return s
}

// WasActive reports whether key was in the snapshot.
func (s *StalenessSet) WasActive(key models.NodeKey) bool {
	_, ok := s.active[key]
	return ok
}

// MarkSeen records an observation of key. Keys outside the snapshot are
// ignored.
func (s *StalenessSet) MarkSeen(key models.NodeKey) {
	if _, ok := s.active[key]; ok {
		s.active[key] = true
	}
}

// Stale returns the snapshot keys never marked seen, in snapshot order.
func (s *StalenessSet) Stale() []models.NodeKey {
	var out []models.NodeKey

	for _, key := range s.order {
		if !s.active[key] {
			out = append(out, key)
		}
	}

	return out
}
