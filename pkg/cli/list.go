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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/controlplane"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

var errEmailRequired = errors.New("--email is required")

func newListGPUsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "list-gpus",
		Short: "Print the enriched GPU inventory without writing to the tracking store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := newApp(cmd.Context(), opts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			nova, err := a.openNova(ctx)
			if err != nil {
				return err
			}

			engine, err := a.newEngine(ctx, nova, nil)
			if err != nil {
				return err
			}

			devices, err := engine.Preview(ctx)
			if err != nil {
				return err
			}

			return writeDevices(cmd.OutOrStdout(), devices)
		},
	}
}

func newListUserProjectsCommand(opts *Options) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "list-user-projects",
		Short: "Print the GPU-entitled projects of a user with their allocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errEmailRequired
			}

			a, ctx, err := newApp(cmd.Context(), opts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			allocations, err := a.userGPUAllocations(ctx, email)
			if err != nil {
				return err
			}

			return writeAllocations(cmd.OutOrStdout(), allocations)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Keystone user name (the user's email address)")

	return cmd
}

func (a *app) userGPUAllocations(ctx context.Context, email string) ([]*models.Allocation, error) {
	cp, resolver, err := a.openControlPlane(ctx)
	if err != nil {
		return nil, err
	}

	projects, err := controlplane.UserProjects(ctx, cp, email)
	if err != nil {
		return nil, err
	}

	catalog, err := a.flavorCatalog(cp)
	if err != nil {
		return nil, err
	}

	flavors, err := catalog.GPUFlavors(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Allocation

	for _, projectID := range entitledProjects(projects, flavors) {
		alloc, err := resolver.Resolve(ctx, projectID)
		if err != nil {
			a.log.Warn().Err(err).Str("project_id", projectID).Msg("Skipping project, allocation unresolved")
			continue
		}

		if alloc == nil {
			a.log.Debug().Str("project_id", projectID).Msg("GPU flavor access without allocation")
			continue
		}

		out = append(out, alloc)
	}

	return out, nil
}

// entitledProjects keeps the user's projects that can launch a GPU flavor,
// preserving the user's project order.
func entitledProjects(userProjects []string, flavors []models.GPUFlavor) []string {
	gpu := make(map[string]struct{})

	for _, f := range flavors {
		for _, id := range f.ProjectIDs {
			gpu[id] = struct{}{}
		}
	}

	var out []string

	for _, id := range userProjects {
		if _, ok := gpu[id]; ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}

	return out
}

func writeDevices(w io.Writer, devices []*models.EnrichedDevice) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "HYPERVISOR\tPCI ID\tMODEL\tSTATUS\tPROJECT\tPROJECT ID\tINSTANCE\tIP\tSTART\tEND")

	for _, d := range devices {
		project := ""
		if d.HasProject() {
			project = d.ProjectName
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Hypervisor, d.Address, d.Model, d.Status,
			dash(project), dash(d.ProjectID), dash(d.InstanceUUID), dash(d.IP),
			d.StartDate.Format(models.DateLayout), d.EndDate.Format(models.DateLayout))
	}

	return tw.Flush()
}

func writeAllocations(w io.Writer, allocations []*models.Allocation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "PROJECT\tPROJECT ID\tSTATUS\tSTART\tEND")

	for _, a := range allocations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ProjectName, a.ProjectID, dash(a.Status),
			a.StartDate.Format(models.DateLayout), a.EndDate.Format(models.DateLayout))
	}

	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
