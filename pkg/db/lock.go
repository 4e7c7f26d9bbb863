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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// advisoryLockKey identifies gpudb-sync runs in pg_locks.
const advisoryLockKey int64 = 0x67707564622d7379

const (
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1)`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1)`
	unlockTimeout      = 5 * time.Second
)

// lockConn is the part of *pgx.Conn the run lock uses.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// dialPoolConfig opens a standalone connection with the pool's settings.
// The run lock lives on it so a held lock never costs the store a pooled
// connection.
func dialPoolConfig(cfg *pgx.ConnConfig) func(context.Context) (lockConn, error) {
	return func(ctx context.Context) (lockConn, error) {
		return pgx.ConnectConfig(ctx, cfg.Copy())
	}
}

// AcquireRunLock takes the session advisory lock that keeps two runs from
// writing at once, on a connection outside the store's pool. It returns
// ErrLockNotHeld when another session holds it. The returned release func
// unlocks and closes that connection.
func (s *Store) AcquireRunLock(ctx context.Context) (func(), error) {
	if s.dialLock == nil {
		return nil, errPoolRequired
	}

	dialCtx, cancel := s.callContext(ctx)
	defer cancel()

	conn, err := s.dialLock(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("gpudb lock: connect: %w", err)
	}

	closeConn := func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()

		if err := conn.Close(closeCtx); err != nil {
			s.logger.Debug().Err(err).Msg("closing gpudb lock connection")
		}
	}

	var locked bool
	if err := conn.QueryRow(dialCtx, tryAdvisoryLockSQL, advisoryLockKey).Scan(&locked); err != nil {
		closeConn()
		return nil, fmt.Errorf("gpudb lock: %w", err)
	}

	if !locked {
		closeConn()
		return nil, ErrLockNotHeld
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()

		var unlocked bool
		if err := conn.QueryRow(unlockCtx, advisoryUnlockSQL, advisoryLockKey).Scan(&unlocked); err != nil || !unlocked {
			s.logger.Warn().Err(err).Msg("failed to release gpudb advisory lock")
		}

		closeConn()
	}

	return release, nil
}
