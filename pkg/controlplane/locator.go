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
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
)

// Locator finds the routable address of an instance.
type Locator struct {
	api         API
	prefix      string
	callTimeout time.Duration
	logger      logger.Logger
}

// NewLocator returns a Locator that accepts addresses starting with prefix.
func NewLocator(api API, prefix string, callTimeout time.Duration, log logger.Logger) *Locator {
	return &Locator{api: api, prefix: prefix, callTimeout: callTimeout, logger: log}
}

// Locate returns the instance's routable address or "" when the instance is
// unset, gone, or has no address under the prefix. Only failed lookups are
// errors.
func (l *Locator) Locate(ctx context.Context, instanceUUID string) (string, error) {
	if instanceUUID == "" {
		return "", nil
	}

	if l.callTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, l.callTimeout)
		defer cancel()
	}

	server, err := l.api.GetServer(ctx, instanceUUID)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			l.logger.Info().Str("instance_uuid", instanceUUID).Msg("instance not found in nova, no address")
			return "", nil
		}

		return "", &ResolutionError{Op: "get server " + instanceUUID, Err: err}
	}

	return SelectAddress(server, l.prefix), nil
}

// SelectAddress prefers the access address and otherwise returns the first
// matching address, walking networks in name order.
func SelectAddress(server *Server, prefix string) string {
	if server == nil {
		return ""
	}

	if server.AccessIPv4 != "" && strings.HasPrefix(server.AccessIPv4, prefix) {
		return server.AccessIPv4
	}

	networks := make([]string, 0, len(server.Addresses))
	for name := range server.Addresses {
		networks = append(networks, name)
	}

	sort.Strings(networks)

	for _, name := range networks {
		for _, addr := range server.Addresses[name] {
			if strings.HasPrefix(addr, prefix) {
				return addr
			}
		}
	}

	return ""
}
