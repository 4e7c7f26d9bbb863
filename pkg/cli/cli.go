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

// Package cli implements the gpudb-sync command tree.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/db"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/reconcile"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/version"
)

const defaultConfigPath = "/etc/gpudb/db.yaml"

// Options are the persistent flags shared by every subcommand.
type Options struct {
	ConfigPath string
}

// NewRootCommand builds the gpudb-sync command tree.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "gpudb-sync",
		Short:         "Reconcile GPU passthrough inventory into the gpudb tracking store",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfigPath,
		"path to the YAML or JSON configuration file (ignored when CONFIG_SOURCE=env)")

	root.AddCommand(
		newRunCommand(opts),
		newCleanupCommand(opts),
		newMigrateCommand(opts),
		newListGPUsCommand(opts),
		newListUserProjectsCommand(opts),
	)

	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)

	return root.ExecuteContext(ctx)
}

func newRunCommand(opts *Options) *cobra.Command {
	var skipCleanup, skipMigrations bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile the GPU inventory, sweep stale nodes and close finished assignments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := newApp(cmd.Context(), opts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			store, pool, err := a.openStore(ctx)
			if err != nil {
				return err
			}

			if !skipMigrations {
				if err := db.RunMigrations(ctx, pool, a.component("migrations")); err != nil {
					return err
				}
			}

			nova, err := a.openNova(ctx)
			if err != nil {
				return err
			}

			engine, err := a.newEngine(ctx, nova, store)
			if err != nil {
				return err
			}

			jobOpts := a.jobOptions(ctx, store)

			if a.cfg.Reconcile.CleanupEnabled() && !skipCleanup {
				cleaner, err := a.newCleaner(ctx, store, nova)
				if err != nil {
					return err
				}

				jobOpts = append(jobOpts, reconcile.WithCleaner(cleaner))
			}

			_, err = reconcile.NewJob(engine, a.log, jobOpts...).Run(ctx)

			return ignoreLockHeld(err)
		},
	}

	cmd.Flags().BoolVar(&skipCleanup, "skip-cleanup", false, "do not close assignments of terminated instances")
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending schema migrations")

	return cmd
}

func newCleanupCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Close assignments whose instances have terminated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := newApp(cmd.Context(), opts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			store, _, err := a.openStore(ctx)
			if err != nil {
				return err
			}

			nova, err := a.openNova(ctx)
			if err != nil {
				return err
			}

			cleaner, err := a.newCleaner(ctx, store, nova)
			if err != nil {
				return err
			}

			jobOpts := append(a.jobOptions(ctx, store), reconcile.WithCleaner(cleaner))

			_, err = reconcile.NewJob(nil, a.log, jobOpts...).Run(ctx)

			return ignoreLockHeld(err)
		},
	}
}

func newMigrateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending tracking store schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ctx, err := newApp(cmd.Context(), opts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			_, pool, err := a.openStore(ctx)
			if err != nil {
				return err
			}

			return db.RunMigrations(ctx, pool, a.component("migrations"))
		},
	}
}

func ignoreLockHeld(err error) error {
	if errors.Is(err, db.ErrLockNotHeld) {
		return nil
	}

	return err
}
