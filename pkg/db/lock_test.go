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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

var errLockQuery = errors.New("connection reset")

func lockedStore(fake *fakeDB, conn *fakeLockConn, dialErr error) *Store {
	store := newStore(fake, logger.NewTestLogger(), WithCallTimeout(time.Minute))
	store.dialLock = func(context.Context) (lockConn, error) {
		if dialErr != nil {
			return nil, dialErr
		}

		return conn, nil
	}

	return store
}

func TestAcquireRunLockUsesDedicatedConnection(t *testing.T) {
	t.Parallel()

	fake := newFakeDB()
	fake.rows = &fakeRows{values: [][]any{{"gpu01", "0000:3b:00.0"}}}
	conn := &fakeLockConn{locked: true}
	store := lockedStore(fake, conn, nil)

	release, err := store.AcquireRunLock(context.Background())
	require.NoError(t, err)

	// The store keeps working while the lock is held.
	keys, err := store.ActiveNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.NodeKey{{Hypervisor: "gpu01", Address: "0000:3b:00.0"}}, keys)
	assert.Zero(t, conn.closed)

	release()

	require.Len(t, conn.queries, 2)
	assert.Contains(t, conn.queries[0], "pg_try_advisory_lock")
	assert.Contains(t, conn.queries[1], "pg_advisory_unlock")
	assert.Equal(t, 1, conn.closed)
	for _, call := range fake.calls {
		assert.NotContains(t, call.sql, "advisory")
	}
}

func TestAcquireRunLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	conn := &fakeLockConn{locked: false}

	release, err := lockedStore(newFakeDB(), conn, nil).AcquireRunLock(context.Background())
	require.ErrorIs(t, err, ErrLockNotHeld)
	assert.Nil(t, release)
	assert.Equal(t, 1, conn.closed)
	assert.Len(t, conn.queries, 1)
}

func TestAcquireRunLockFailures(t *testing.T) {
	t.Parallel()

	t.Run("connect", func(t *testing.T) {
		t.Parallel()

		_, err := lockedStore(newFakeDB(), nil, errLockQuery).AcquireRunLock(context.Background())
		require.ErrorIs(t, err, errLockQuery)
		assert.Contains(t, err.Error(), "gpudb lock: connect")
	})

	t.Run("query", func(t *testing.T) {
		t.Parallel()

		conn := &fakeLockConn{queryErr: errLockQuery}

		_, err := lockedStore(newFakeDB(), conn, nil).AcquireRunLock(context.Background())
		require.ErrorIs(t, err, errLockQuery)
		assert.Equal(t, 1, conn.closed)
	})
}

func TestStoreCallTimeout(t *testing.T) {
	t.Parallel()

	writes := &models.DeviceWrites{
		Node: models.Node{NodeKey: models.NodeKey{Hypervisor: "gpu02", Address: "0000:af:00.0"}, Model: "P40"},
	}

	exercise := func(store *Store, fake *fakeDB) {
		fake.rows = &fakeRows{}
		fake.batch = &fakeBatchResults{tag: "UPDATE 1"}

		_, err := store.WriteDevice(context.Background(), writes)
		require.NoError(t, err)
		_, err = store.ActiveNodes(context.Background())
		require.NoError(t, err)
		_, err = store.DeactivateNodes(context.Background(), []models.NodeKey{writes.Node.NodeKey})
		require.NoError(t, err)
		_, err = store.OpenAssignments(context.Background())
		require.NoError(t, err)
		_, err = store.CloseAssignment(context.Background(), 4, time.Now())
		require.NoError(t, err)
	}

	bounded := newFakeDB()
	exercise(newStore(bounded, logger.NewTestLogger(), WithCallTimeout(time.Minute)), bounded)
	require.NotEmpty(t, bounded.deadlines)
	assert.NotContains(t, bounded.deadlines, false)

	unbounded := newFakeDB()
	exercise(newStore(unbounded, logger.NewTestLogger()), unbounded)
	assert.NotContains(t, unbounded.deadlines, true)
}
