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
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

// PCIAliasSpec is the flavor extra spec naming the passthrough device, in
// "<alias>:<count>" form. The alias is the GPU model name.
const PCIAliasSpec = "pci_passthrough:alias"

var errBadFlavorPattern = errors.New("invalid flavor pattern")

// FlavorCatalog finds GPU flavors by name pattern.
type FlavorCatalog struct {
	api         API
	pattern     string
	callTimeout time.Duration
	logger      logger.Logger
}

// NewFlavorCatalog matches flavor names against a shell glob such as
// "akl.gpu*".
func NewFlavorCatalog(api API, pattern string, callTimeout time.Duration, log logger.Logger) (*FlavorCatalog, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w %q: %w", errBadFlavorPattern, pattern, err)
	}

	return &FlavorCatalog{api: api, pattern: pattern, callTimeout: callTimeout, logger: log}, nil
}

// GPUFlavors returns each matching flavor with its GPU model and the
// projects granted access. Flavors without a passthrough alias are skipped.
func (c *FlavorCatalog) GPUFlavors(ctx context.Context) ([]models.GPUFlavor, error) {
	var all []Flavor

	err := c.call(ctx, func(ctx context.Context) (err error) {
		all, err = c.api.ListFlavors(ctx)
		return err
	})
	if err != nil {
		return nil, &ResolutionError{Op: "list flavors", Err: err}
	}

	var out []models.GPUFlavor

	for _, f := range all {
		if ok, _ := path.Match(c.pattern, f.Name); !ok {
			continue
		}

		flavor, err := c.describe(ctx, f)
		if err != nil {
			var notFound *NotFoundError
			if errors.As(err, &notFound) {
				c.logger.Info().Str("flavor", f.Name).Msg("flavor removed during listing")
				continue
			}

			return nil, err
		}

		if flavor.Model == "" {
			c.logger.Warn().Str("flavor", f.Name).Msg("gpu flavor has no " + PCIAliasSpec + " extra spec")
			continue
		}

		out = append(out, flavor)
	}

	slices.SortStableFunc(out, func(a, b models.GPUFlavor) int { return strings.Compare(a.Name, b.Name) })

	return out, nil
}

func (c *FlavorCatalog) describe(ctx context.Context, f Flavor) (models.GPUFlavor, error) {
	flavor := models.GPUFlavor{ID: f.ID, Name: f.Name}

	var specs map[string]string

	err := c.call(ctx, func(ctx context.Context) (err error) {
		specs, err = c.api.FlavorExtraSpecs(ctx, f.ID)
		return err
	})
	if err != nil {
		return flavor, wrapLookup("flavor extra specs "+f.Name, err)
	}

	flavor.Model = ModelFromAlias(specs[PCIAliasSpec])

	err = c.call(ctx, func(ctx context.Context) (err error) {
		flavor.ProjectIDs, err = c.api.FlavorAccess(ctx, f.ID)
		return err
	})
	if err != nil {
		return flavor, wrapLookup("flavor access "+f.Name, err)
	}

	return flavor, nil
}

func (c *FlavorCatalog) call(ctx context.Context, fn func(context.Context) error) error {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	return fn(ctx)
}

func wrapLookup(op string, err error) error {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return err
	}

	return &ResolutionError{Op: op, Err: err}
}

// ModelFromAlias returns the alias name of a "T4:1" style alias spec.
func ModelFromAlias(alias string) string {
	model, _, _ := strings.Cut(strings.TrimSpace(alias), ":")
	return model
}

// UserProjects resolves a user by name and lists the projects they hold a
// role on.
func UserProjects(ctx context.Context, api API, name string) ([]string, error) {
	found, err := api.FindUsers(ctx, name)
	if err != nil {
		return nil, &ResolutionError{Op: "find user " + name, Err: err}
	}

	if len(found) == 0 {
		return nil, &NotFoundError{Kind: "user", ID: name}
	}

	var projects []string

	for _, u := range found {
		ids, err := api.UserProjectIDs(ctx, u.ID)
		if err != nil {
			return nil, &ResolutionError{Op: "role assignments " + u.ID, Err: err}
		}

		for _, id := range ids {
			if !slices.Contains(projects, id) {
				projects = append(projects, id)
			}
		}
	}

	return projects, nil
}
