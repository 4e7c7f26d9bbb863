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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSQLStatementsDropsComments(t *testing.T) {
	t.Parallel()

	content := `
-- leading comment; with a semicolon
CREATE TABLE a (id INT);
/* block; comment */
CREATE INDEX idx ON a (id);
SELECT 1
`

	statements := splitSQLStatements(content)
	require.Len(t, statements, 3)
	assert.Equal(t, "CREATE TABLE a (id INT)", statements[0])
	assert.Equal(t, "CREATE INDEX idx ON a (id)", statements[1])
	assert.Equal(t, "SELECT 1", statements[2])
}

func TestSplitSQLStatementsIgnoresSemicolonsInQuotes(t *testing.T) {
	t.Parallel()

	content := `INSERT INTO logs(message) VALUES('hello;world');
CREATE TABLE "odd;name" (id INT);`

	statements := splitSQLStatements(content)
	require.Len(t, statements, 2)
	assert.Contains(t, statements[0], "'hello;world'")
	assert.True(t, strings.HasPrefix(statements[1], `CREATE TABLE "odd;name"`))
}

func TestExtractVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00001", extractVersion("00001_gpudb_schema.up.sql"))
	assert.Equal(t, "plain.sql", extractVersion("plain.sql"))
}

func TestEmbeddedMigrationsCreateTrackingTables(t *testing.T) {
	t.Parallel()

	pending, err := pendingMigrations(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"00001_gpudb_schema.up.sql"}, pending)

	content, err := migrationsFS.ReadFile("migrations/" + pending[0])
	require.NoError(t, err)

	joined := strings.Join(splitSQLStatements(string(content)), "\n")
	for _, table := range []string{"gpu_nodes", "ip2project", "ip2project_gpu_nodes", "gpu_booking"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}

	assert.Contains(t, joined, "UNIQUE (hypervisor, pci_id)")
	assert.Contains(t, joined, "UNIQUE (ip, project_uuid, instance_uuid)")
	assert.Contains(t, joined, "UNIQUE (project_uuid, booking_start_date)")

	applied, err := pendingMigrations(map[string]struct{}{"00001": {}})
	require.NoError(t, err)
	assert.Empty(t, applied)
}
