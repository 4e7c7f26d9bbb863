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

package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
)

const (
	migrationsTable = "gpudb_schema_migrations"

	// migrationLockKey is distinct from advisoryLockKey so a run holding
	// the run lock can still migrate.
	migrationLockKey   int64 = 0x67707564622d6d67
	migrationLockSQL         = `SELECT pg_advisory_lock($1)`
	migrationUnlockSQL       = `SELECT pg_advisory_unlock($1)`
)

var errPoolRequired = errors.New("gpudb: connection pool is required")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationConn is the part of a pooled connection migrations run on.
type migrationConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RunMigrations applies every embedded .up.sql file that is not yet recorded
// in the migrations table. Each file runs in its own transaction. Concurrent
// callers queue on a migration advisory lock, so a file is applied once.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	if pool == nil {
		return errPoolRequired
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("gpudb migrations: acquire connection: %w", err)
	}
	defer conn.Release()

	return migrate(ctx, conn, log)
}

func migrate(ctx context.Context, conn migrationConn, log logger.Logger) (err error) {
	if _, err := conn.Exec(ctx, migrationLockSQL, migrationLockKey); err != nil {
		return fmt.Errorf("gpudb migrations: lock: %w", err)
	}

	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()

		if _, unlockErr := conn.Exec(unlockCtx, migrationUnlockSQL, migrationLockKey); unlockErr != nil && err == nil {
			err = fmt.Errorf("gpudb migrations: unlock: %w", unlockErr)
		}
	}()

	if _, err := conn.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version     TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, migrationsTable)); err != nil {
		return fmt.Errorf("gpudb migrations: create tracking table: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	filenames, err := pendingMigrations(applied)
	if err != nil {
		return err
	}

	for _, name := range filenames {
		log.Info().Str("migration", name).Msg("applying gpudb migration")

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("gpudb migrations: read %s: %w", name, err)
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("gpudb migrations: begin %s: %w", name, err)
		}

		for idx, stmt := range splitSQLStatements(string(content)) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("gpudb migrations: statement %d in %s failed: %w", idx+1, name, err)
			}
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (version) VALUES ($1)`, migrationsTable),
			extractVersion(name)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("gpudb migrations: record %s: %w", name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("gpudb migrations: commit %s: %w", name, err)
		}

		log.Info().Str("migration", name).Msg("gpudb migration complete")
	}

	return nil
}

func appliedVersions(ctx context.Context, conn migrationConn) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT version FROM %s`, migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("gpudb migrations: list applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("gpudb migrations: scan applied version: %w", err)
		}

		applied[version] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gpudb migrations: iterate applied versions: %w", err)
	}

	return applied, nil
}

// pendingMigrations lists the embedded .up.sql files not in applied, in
// version order. .down.sql files are kept for manual rollbacks only.
func pendingMigrations(applied map[string]struct{}) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("gpudb migrations: read embedded migrations: %w", err)
	}

	filenames := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		if _, ok := applied[extractVersion(entry.Name())]; ok {
			continue
		}

		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)

	return filenames, nil
}
