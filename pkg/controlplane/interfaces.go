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

//go:generate mockgen -destination=mock_controlplane.go -package=controlplane github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/controlplane API

// Package controlplane wraps the OpenStack compute and identity APIs used by
// gpudb-sync.
package controlplane

import (
	"context"
	"fmt"
)

// Flavor is a Nova flavor summary.
type Flavor struct {
	ID   string
	Name string
}

// Server is the network view of a Nova instance. Addresses maps network
// name to the addresses attached on that network.
type Server struct {
	ID         string
	AccessIPv4 string
	Addresses  map[string][]string
}

// User is a Keystone user.
type User struct {
	ID   string
	Name string
}

// API is the set of control-plane calls gpudb-sync makes.
type API interface {
	ListFlavors(ctx context.Context) ([]Flavor, error)
	FlavorAccess(ctx context.Context, flavorID string) ([]string, error)
	FlavorExtraSpecs(ctx context.Context, flavorID string) (map[string]string, error)
	GetServer(ctx context.Context, id string) (*Server, error)
	FindUsers(ctx context.Context, name string) ([]User, error)
	UserProjectIDs(ctx context.Context, userID string) ([]string, error)
}

// NotFoundError reports an object that vanished between inventory read and
// lookup. Callers treat it as "no data".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ResolutionError reports a control-plane call that failed or returned data
// that could not be used.
type ResolutionError struct {
	Op  string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("control plane %s: %v", e.Op, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
