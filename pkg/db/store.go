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

// Package db is the gpudb tracking store on PostgreSQL.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

const (
	insertNodeSQL = `
INSERT INTO gpu_nodes (hypervisor, gpu_type, pci_id, active)
VALUES ($1, $2, $3, 1)
ON CONFLICT (hypervisor, pci_id) DO NOTHING`

	reactivateNodeSQL = `
UPDATE gpu_nodes SET active = 1
WHERE hypervisor = $1 AND pci_id = $2 AND active = 0`

	upsertAssignmentSQL = `
INSERT INTO ip2project (
    ip, project_name, project_uuid, start_date, end_date, email,
    instance_uuid, instance_name, instance_launched_at, instance_terminated_at, final
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
ON CONFLICT (ip, project_uuid, instance_uuid) DO UPDATE SET
    instance_terminated_at = EXCLUDED.instance_terminated_at,
    end_date = EXCLUDED.end_date,
    final = 0`

	linkAssignmentSQL = `
INSERT INTO ip2project_gpu_nodes (ip2project_id, gpu_node_id)
SELECT a.id, n.id
FROM ip2project a, gpu_nodes n
WHERE a.ip = $1 AND a.project_uuid = $2 AND a.instance_uuid = $3
  AND n.hypervisor = $4 AND n.pci_id = $5
ON CONFLICT DO NOTHING`

	upsertBookingSQL = `
INSERT INTO gpu_booking (
    project_name, project_uuid, booking_start_date, booking_end_date, email, gpu_type, count
) VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (project_uuid, booking_start_date) DO UPDATE SET
    booking_end_date = EXCLUDED.booking_end_date`

	selectActiveNodesSQL = `SELECT hypervisor, pci_id FROM gpu_nodes WHERE active = 1`

	deactivateNodeSQL = `
UPDATE gpu_nodes SET active = 0
WHERE hypervisor = $1 AND pci_id = $2 AND active = 1`

	selectOpenAssignmentsSQL = `SELECT id, instance_uuid FROM ip2project WHERE final = 0 ORDER BY id`

	closeAssignmentSQL = `
UPDATE ip2project SET instance_terminated_at = $2, final = 1
WHERE id = $1 AND final = 0`
)

// database is the subset of *pgxpool.Pool the store uses.
type database interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads and writes the gpudb tracking tables.
type Store struct {
	db          database
	dialLock    func(context.Context) (lockConn, error)
	callTimeout time.Duration
	logger      logger.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithCallTimeout bounds every store call, including a whole device
// transaction. Zero leaves calls bounded only by the caller's context.
func WithCallTimeout(timeout time.Duration) StoreOption {
	return func(s *Store) {
		s.callTimeout = timeout
	}
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool, log logger.Logger, opts ...StoreOption) *Store {
	s := newStore(pool, log, opts...)
	s.dialLock = dialPoolConfig(pool.Config().ConnConfig)

	return s
}

func newStore(db database, log logger.Logger, opts ...StoreOption) *Store {
	s := &Store{db: db, logger: log}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.callTimeout)
}

// WriteResult reports which statements of a device write changed rows.
type WriteResult struct {
	NodeInserted      bool
	NodeReactivated   bool
	AssignmentWritten bool
	LinkCreated       bool
	BookingWritten    bool
}

// WriteDevice applies one device's writes in a single transaction. Any
// failure rolls back all of them and is returned as a *StoreWriteError.
func (s *Store) WriteDevice(ctx context.Context, w *models.DeviceWrites) (WriteResult, error) {
	var result WriteResult

	nodeArgs, err := buildNodeArgs(&w.Node)
	if err != nil {
		return result, newStoreWriteError("write device", w.Node.String(), err)
	}

	var assignmentArgs, linkArgs, bookingArgs []any

	if w.Assignment != nil {
		if assignmentArgs, err = buildAssignmentArgs(w.Assignment); err != nil {
			return result, newStoreWriteError("write device", w.Node.String(), err)
		}

		if w.Link != nil {
			if linkArgs, err = buildLinkArgs(w.Link); err != nil {
				return result, newStoreWriteError("write device", w.Node.String(), err)
			}
		}
	} else if w.Booking != nil {
		if bookingArgs, err = buildBookingArgs(w.Booking); err != nil {
			return result, newStoreWriteError("write device", w.Node.String(), err)
		}
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		result = WriteResult{}

		tag, err := tx.Exec(ctx, insertNodeSQL, nodeArgs...)
		if err != nil {
			return fmt.Errorf("upsert gpu_nodes: %w", err)
		}

		result.NodeInserted = tag.RowsAffected() > 0

		if w.Reactivate && !result.NodeInserted {
			if result.NodeReactivated, err = execAffected(ctx, tx, reactivateNodeSQL,
				w.Node.Hypervisor, w.Node.Address); err != nil {
				return fmt.Errorf("reactivate gpu_nodes: %w", err)
			}
		}

		if assignmentArgs != nil {
			if _, err := tx.Exec(ctx, upsertAssignmentSQL, assignmentArgs...); err != nil {
				return fmt.Errorf("upsert ip2project: %w", err)
			}

			result.AssignmentWritten = true

			if linkArgs != nil {
				if result.LinkCreated, err = execAffected(ctx, tx, linkAssignmentSQL, linkArgs...); err != nil {
					return fmt.Errorf("link ip2project_gpu_nodes: %w", err)
				}
			}
		}

		if bookingArgs != nil {
			if _, err := tx.Exec(ctx, upsertBookingSQL, bookingArgs...); err != nil {
				return fmt.Errorf("upsert gpu_booking: %w", err)
			}

			result.BookingWritten = true
		}

		return nil
	})
	if err != nil {
		return WriteResult{}, newStoreWriteError("write device", w.Node.String(), err)
	}

	return result, nil
}

func execAffected(ctx context.Context, ex execer, sql string, args ...any) (bool, error) {
	tag, err := ex.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// ActiveNodes returns the key of every node currently marked active.
func (s *Store) ActiveNodes(ctx context.Context) ([]models.NodeKey, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, selectActiveNodesSQL)
	if err != nil {
		return nil, newStoreWriteError("list active nodes", "", err)
	}
	defer rows.Close()

	var keys []models.NodeKey

	for rows.Next() {
		var key models.NodeKey
		if err := rows.Scan(&key.Hypervisor, &key.Address); err != nil {
			return nil, newStoreWriteError("list active nodes", "", err)
		}

		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, newStoreWriteError("list active nodes", "", err)
	}

	return keys, nil
}

// DeactivateNodes lowers the active flag of every key in one batch and
// returns how many rows changed.
func (s *Store) DeactivateNodes(ctx context.Context, keys []models.NodeKey) (int64, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	batch := &pgx.Batch{}

	for _, key := range keys {
		batch.Queue(deactivateNodeSQL, key.Hypervisor, key.Address)
	}

	affected, err := sendBatchExecAll(ctx, batch, s.db.SendBatch, "deactivate gpu_nodes")
	if err != nil {
		return affected, newStoreWriteError("deactivate nodes", "", err)
	}

	return affected, nil
}

// OpenAssignments lists assignments still awaiting a confirmed termination.
func (s *Store) OpenAssignments(ctx context.Context) ([]models.OpenAssignment, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, selectOpenAssignmentsSQL)
	if err != nil {
		return nil, newStoreWriteError("list open assignments", "", err)
	}
	defer rows.Close()

	var open []models.OpenAssignment

	for rows.Next() {
		var a models.OpenAssignment
		if err := rows.Scan(&a.ID, &a.InstanceUUID); err != nil {
			return nil, newStoreWriteError("list open assignments", "", err)
		}

		open = append(open, a)
	}

	if err := rows.Err(); err != nil {
		return nil, newStoreWriteError("list open assignments", "", err)
	}

	return open, nil
}

// CloseAssignment records the confirmed termination time and closes the
// assignment. It reports false when the row was already closed.
func (s *Store) CloseAssignment(ctx context.Context, id int64, terminatedAt time.Time) (bool, error) {
	key := fmt.Sprintf("ip2project %d", id)

	if terminatedAt.IsZero() {
		return false, newStoreWriteError("close assignment", key, models.ErrTerminationTimeRequired)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	closed, err := execAffected(ctx, s.db, closeAssignmentSQL, id, terminatedAt.UTC())
	if err != nil {
		return false, newStoreWriteError("close assignment", key, err)
	}

	return closed, nil
}

func buildNodeArgs(node *models.Node) ([]any, error) {
	if node.Hypervisor == "" || node.Address == "" {
		return nil, ErrNodeKeyRequired
	}

	if node.Model == "" {
		return nil, ErrNodeModelRequired
	}

	return []any{node.Hypervisor, node.Model, node.Address}, nil
}

func buildAssignmentArgs(a *models.Assignment) ([]any, error) {
	if a.IP == "" || a.ProjectID == "" || a.InstanceUUID == "" {
		return nil, ErrAssignmentKeyRequired
	}

	if a.StartDate.IsZero() || a.EndDate.IsZero() {
		return nil, ErrAssignmentWindow
	}

	return []any{
		a.IP,
		a.ProjectName,
		a.ProjectID,
		a.StartDate.UTC(),
		a.EndDate.UTC(),
		a.Contact,
		a.InstanceUUID,
		a.InstanceName,
		nullableTime(a.LaunchedAt),
		nullableTime(a.TerminatedAt),
	}, nil
}

func buildLinkArgs(link *models.NodeLink) ([]any, error) {
	if link.Assignment.IP == "" || link.Assignment.ProjectID == "" || link.Assignment.InstanceUUID == "" ||
		link.Node.Hypervisor == "" || link.Node.Address == "" {
		return nil, ErrLinkKeyRequired
	}

	return []any{
		link.Assignment.IP,
		link.Assignment.ProjectID,
		link.Assignment.InstanceUUID,
		link.Node.Hypervisor,
		link.Node.Address,
	}, nil
}

func buildBookingArgs(b *models.Booking) ([]any, error) {
	if b.ProjectID == "" || b.StartDate.IsZero() {
		return nil, ErrBookingKeyRequired
	}

	if b.EndDate.IsZero() {
		return nil, ErrBookingWindow
	}

	count := b.Count
	if count <= 0 {
		count = 1
	}

	return []any{
		b.ProjectName,
		b.ProjectID,
		b.StartDate.UTC(),
		b.EndDate.UTC(),
		b.Contact,
		b.Model,
		count,
	}, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.UTC()
}
