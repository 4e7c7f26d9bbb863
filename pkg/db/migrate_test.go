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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
)

func TestMigrateAppliesPendingUnderLock(t *testing.T) {
	t.Parallel()

	fake := newFakeDB()
	fake.rows = &fakeRows{}

	require.NoError(t, migrate(context.Background(), fake, logger.NewTestLogger()))

	require.GreaterOrEqual(t, len(fake.calls), 4)
	assert.Contains(t, fake.calls[0].sql, "pg_advisory_lock")
	assert.Equal(t, []any{migrationLockKey}, fake.calls[0].args)
	assert.Contains(t, fake.calls[1].sql, "CREATE TABLE IF NOT EXISTS "+migrationsTable)
	assert.Contains(t, fake.calls[len(fake.calls)-2].sql, "INSERT INTO "+migrationsTable)
	assert.Equal(t, []any{"00001"}, fake.calls[len(fake.calls)-2].args)
	assert.Contains(t, fake.calls[len(fake.calls)-1].sql, "pg_advisory_unlock")
	assert.Equal(t, 1, fake.begins)
	assert.Equal(t, 1, fake.commits)
}

func TestMigrateSkipsAppliedVersions(t *testing.T) {
	t.Parallel()

	fake := newFakeDB()
	fake.rows = &fakeRows{values: [][]any{{"00001"}}}

	require.NoError(t, migrate(context.Background(), fake, logger.NewTestLogger()))

	assert.Zero(t, fake.begins)
	require.Len(t, fake.calls, 4)
	assert.Contains(t, fake.calls[3].sql, "pg_advisory_unlock")
}

func TestMigrateReleasesLockOnFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("permission denied for schema public")

	fake := newFakeDB()
	fake.rows = &fakeRows{}
	fake.errs["CREATE TABLE IF NOT EXISTS gpu_nodes"] = boom

	err := migrate(context.Background(), fake, logger.NewTestLogger())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fake.rollbacks)
	assert.Contains(t, fake.calls[len(fake.calls)-1].sql, "pg_advisory_unlock")
}

func TestRunMigrationsRequiresPool(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, RunMigrations(context.Background(), nil, logger.NewTestLogger()), errPoolRequired)
}
