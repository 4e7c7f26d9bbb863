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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gophercloud/gophercloud/v2"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

var (
	errEndpointNotFound = errors.New("allocation service endpoint not found")
	errMalformedPayload = errors.New("malformed allocation payload")
)

// Client talks to the Nectar allocation API with the Keystone session of a
// gophercloud provider.
type Client struct {
	service *gophercloud.ServiceClient
}

// NewClient builds a client for the allocation service. endpoint overrides
// the catalog lookup when set; otherwise the service of type serviceType in
// region is used.
func NewClient(provider *gophercloud.ProviderClient, serviceType, region, endpoint string) (*Client, error) {
	if endpoint == "" {
		eo := gophercloud.EndpointOpts{
			Type:         serviceType,
			Region:       region,
			Availability: gophercloud.AvailabilityPublic,
		}

		url, err := provider.EndpointLocator(eo)
		if err != nil {
			return nil, fmt.Errorf("%w: type %q: %w", errEndpointNotFound, serviceType, err)
		}

		endpoint = url
	}

	return newClient(&gophercloud.ServiceClient{
		ProviderClient: provider,
		Endpoint:       gophercloud.NormalizeURL(endpoint),
		Type:           serviceType,
	}), nil
}

func newClient(service *gophercloud.ServiceClient) *Client {
	return &Client{service: service}
}

type listQuery struct {
	ProjectID           string `q:"project_id"`
	ParentRequestIsNull string `q:"parent_request__isnull"`
}

type allocationBody struct {
	ID            int64  `json:"id"`
	ProjectID     string `json:"project_id"`
	ProjectName   string `json:"project_name"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	ContactEmail  string `json:"contact_email"`
	Status        string `json:"status"`
	StatusDisplay string `json:"status_display"`
	ParentRequest *int64 `json:"parent_request"`
}

// ListAllocations lists allocations of a project.
func (c *Client) ListAllocations(ctx context.Context, opts ListOpts) ([]models.Allocation, error) {
	isNull := "True"
	if opts.SubRequests {
		isNull = "False"
	}

	query, err := gophercloud.BuildQueryString(listQuery{ProjectID: opts.ProjectID, ParentRequestIsNull: isNull})
	if err != nil {
		return nil, err
	}

	url := c.service.ServiceURL("allocations") + "/" + query.String()

	var raw json.RawMessage
	if _, err := c.service.Get(ctx, url, &raw, &gophercloud.RequestOpts{OkCodes: []int{200}}); err != nil {
		return nil, err
	}

	bodies, err := decodeAllocations(raw)
	if err != nil {
		return nil, err
	}

	out := make([]models.Allocation, 0, len(bodies))

	for i := range bodies {
		alloc, err := bodies[i].toModel()
		if err != nil {
			return nil, err
		}

		out = append(out, alloc)
	}

	return out, nil
}

// decodeAllocations accepts both a bare list and a paginated
// {"results": [...]} envelope.
func decodeAllocations(raw json.RawMessage) ([]allocationBody, error) {
	trimmed := bytes.TrimSpace(raw)

	var bodies []allocationBody

	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &bodies); err != nil {
			return nil, fmt.Errorf("%w: %w", errMalformedPayload, err)
		}

		return bodies, nil
	}

	var page struct {
		Results *[]allocationBody `json:"results"`
	}

	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedPayload, err)
	}

	if page.Results == nil {
		return nil, fmt.Errorf("%w: no results list", errMalformedPayload)
	}

	return *page.Results, nil
}

func (b *allocationBody) toModel() (models.Allocation, error) {
	alloc := models.Allocation{
		ID:            b.ID,
		ProjectID:     b.ProjectID,
		ProjectName:   b.ProjectName,
		ContactEmail:  b.ContactEmail,
		Status:        b.Status,
		ParentRequest: b.ParentRequest,
	}

	if b.StatusDisplay != "" {
		alloc.Status = b.StatusDisplay
	}

	var err error

	if alloc.StartDate, err = parseAPIDate(b.StartDate); err != nil {
		return models.Allocation{}, fmt.Errorf("%w: allocation %d start_date: %w", errMalformedPayload, b.ID, err)
	}

	if alloc.EndDate, err = parseAPIDate(b.EndDate); err != nil {
		return models.Allocation{}, fmt.Errorf("%w: allocation %d end_date: %w", errMalformedPayload, b.ID, err)
	}

	return alloc, nil
}

// parseAPIDate accepts YYYY-MM-DD with an optional time suffix. A blank
// value is the zero time.
func parseAPIDate(value string) (t time.Time, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return t, nil
	}

	if len(value) > len(models.DateLayout) {
		value = value[:len(models.DateLayout)]
	}

	return models.ParseDate(value)
}
