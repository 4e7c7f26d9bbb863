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

package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/v2/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/roles"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/users"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// NewProvider authenticates against Keystone with project scope. The
// session re-authenticates when the token expires.
func NewProvider(ctx context.Context, cfg *models.KeystoneConfig) (*gophercloud.ProviderClient, error) {
	opts := gophercloud.AuthOptions{
		IdentityEndpoint: cfg.AuthURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		DomainName:       cfg.UserDomainName,
		AllowReauth:      true,
		Scope: &gophercloud.AuthScope{
			ProjectName: cfg.ProjectName,
			DomainName:  cfg.ProjectDomainName,
		},
	}

	provider, err := openstack.AuthenticatedClient(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("keystone: authenticate %s at %s: %w", cfg.Username, cfg.AuthURL, err)
	}

	return provider, nil
}

// Client implements API over gophercloud.
type Client struct {
	compute  *gophercloud.ServiceClient
	identity *gophercloud.ServiceClient
}

// NewClient locates the compute and identity endpoints in region.
func NewClient(provider *gophercloud.ProviderClient, region string) (*Client, error) {
	eo := gophercloud.EndpointOpts{Region: region}

	compute, err := openstack.NewComputeV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("nova endpoint: %w", err)
	}

	identity, err := openstack.NewIdentityV3(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("keystone endpoint: %w", err)
	}

	return &Client{compute: compute, identity: identity}, nil
}

// ListFlavors lists public and private flavors.
func (c *Client) ListFlavors(ctx context.Context) ([]Flavor, error) {
	page, err := flavors.ListDetail(c.compute, flavors.ListOpts{AccessType: flavors.AllAccess}).AllPages(ctx)
	if err != nil {
		return nil, err
	}

	all, err := flavors.ExtractFlavors(page)
	if err != nil {
		return nil, err
	}

	out := make([]Flavor, 0, len(all))
	for i := range all {
		out = append(out, Flavor{ID: all[i].ID, Name: all[i].Name})
	}

	return out, nil
}

// FlavorAccess lists the projects granted a private flavor.
func (c *Client) FlavorAccess(ctx context.Context, flavorID string) ([]string, error) {
	page, err := flavors.ListAccesses(c.compute, flavorID).AllPages(ctx)
	if err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return nil, &NotFoundError{Kind: "flavor", ID: flavorID}
		}

		return nil, err
	}

	accesses, err := flavors.ExtractAccesses(page)
	if err != nil {
		return nil, err
	}

	projects := make([]string, 0, len(accesses))
	for _, a := range accesses {
		projects = append(projects, a.TenantID)
	}

	return projects, nil
}

// FlavorExtraSpecs returns a flavor's extra specs.
func (c *Client) FlavorExtraSpecs(ctx context.Context, flavorID string) (map[string]string, error) {
	specs, err := flavors.ListExtraSpecs(ctx, c.compute, flavorID).Extract()
	if err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return nil, &NotFoundError{Kind: "flavor", ID: flavorID}
		}

		return nil, err
	}

	return specs, nil
}

// GetServer fetches an instance and flattens its addresses.
func (c *Client) GetServer(ctx context.Context, id string) (*Server, error) {
	server, err := servers.Get(ctx, c.compute, id).Extract()
	if err != nil {
		if gophercloud.ResponseCodeIs(err, http.StatusNotFound) {
			return nil, &NotFoundError{Kind: "server", ID: id}
		}

		return nil, err
	}

	return &Server{
		ID:         server.ID,
		AccessIPv4: server.AccessIPv4,
		Addresses:  flattenAddresses(server.Addresses),
	}, nil
}

// FindUsers looks users up by exact name. Nectar user names are email
// addresses.
func (c *Client) FindUsers(ctx context.Context, name string) ([]User, error) {
	page, err := users.List(c.identity, users.ListOpts{Name: name}).AllPages(ctx)
	if err != nil {
		return nil, err
	}

	all, err := users.ExtractUsers(page)
	if err != nil {
		return nil, err
	}

	out := make([]User, 0, len(all))
	for i := range all {
		out = append(out, User{ID: all[i].ID, Name: all[i].Name})
	}

	return out, nil
}

// UserProjectIDs lists the projects a user holds any role on.
func (c *Client) UserProjectIDs(ctx context.Context, userID string) ([]string, error) {
	page, err := roles.ListAssignments(c.identity, roles.ListAssignmentsOpts{UserID: userID}).AllPages(ctx)
	if err != nil {
		return nil, err
	}

	assignments, err := roles.ExtractRoleAssignments(page)
	if err != nil {
		return nil, err
	}

	var projects []string

	for _, a := range assignments {
		if a.Scope.Project.ID == "" || slices.Contains(projects, a.Scope.Project.ID) {
			continue
		}

		projects = append(projects, a.Scope.Project.ID)
	}

	return projects, nil
}

// flattenAddresses turns Nova's {"net": [{"addr": ...}]} structure into
// network name to address list.
func flattenAddresses(raw map[string]any) map[string][]string {
	out := make(map[string][]string, len(raw))

	for network, entries := range raw {
		list, ok := entries.([]any)
		if !ok {
			continue
		}

		for _, entry := range list {
			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}

			if addr, ok := fields["addr"].(string); ok && addr != "" {
				out[network] = append(out[network], addr)
			}
		}
	}

	return out
}
