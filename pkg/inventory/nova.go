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

// Package inventory reads GPU passthrough devices and instance state from the
// Nova cell database.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/models"
)

const (
	devicesQuery = `
SELECT cn.host, pd.label, pd.status, pd.instance_uuid, i.display_name, i.project_id,
       pd.dev_id, i.launched_at, i.terminated_at
FROM pci_devices pd
LEFT JOIN instances i ON pd.instance_uuid = i.uuid
LEFT JOIN compute_nodes cn ON pd.compute_node_id = cn.id
WHERE pd.deleted = 0 AND cn.deleted = 0`

	terminatedAtQuery = `SELECT terminated_at FROM instances WHERE uuid = ?`

	defaultDialTimeout = 10 * time.Second
)

var errNovaConfigRequired = errors.New("nova: database config is required")

// rows is the part of *sql.Rows the reader consumes.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type rowSource interface {
	queryRows(ctx context.Context, query string, args ...any) (rows, error)
}

type sqlSource struct {
	db *sql.DB
}

func (s sqlSource) queryRows(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Open connects to the Nova cell database with the MySQL driver.
func Open(ctx context.Context, cfg *models.NovaDatabase, log logger.Logger) (*sql.DB, error) {
	if cfg == nil {
		return nil, errNovaConfigRequired
	}

	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = timeout
	mc.ReadTimeout = timeout
	mc.Params = map[string]string{"charset": "utf8mb4"}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("nova: invalid connection config: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(2)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("nova: failed to reach %s: %w", mc.Addr, err)
	}

	if log != nil {
		log.Info().Str("addr", mc.Addr).Str("database", cfg.Database).Msg("connected to nova cell database")
	}

	return db, nil
}

// NovaReader is the read-only view of the Nova cell database.
type NovaReader struct {
	src    rowSource
	labels *LabelMap
	logger logger.Logger
}

// NewNovaReader reads through db. The caller owns db and closes it.
func NewNovaReader(db *sql.DB, labels *LabelMap, log logger.Logger) *NovaReader {
	return newNovaReader(sqlSource{db: db}, labels, log)
}

func newNovaReader(src rowSource, labels *LabelMap, log logger.Logger) *NovaReader {
	if labels == nil {
		labels = NewLabelMap(nil)
	}

	return &NovaReader{src: src, labels: labels, logger: log}
}

// Devices returns every non-deleted PCI passthrough device with its label
// translated to a GPU model. An unmapped label fails the whole read with
// *UnknownDeviceLabelError.
func (r *NovaReader) Devices(ctx context.Context) ([]models.DeviceRecord, error) {
	rs, err := r.src.queryRows(ctx, devicesQuery)
	if err != nil {
		return nil, fmt.Errorf("nova: query pci devices: %w", err)
	}
	defer func() { _ = rs.Close() }()

	var devices []models.DeviceRecord

	for rs.Next() {
		var (
			host, instanceUUID, displayName, projectID sql.NullString
			label, status, address                     string
			launchedAt, terminatedAt                   sql.NullTime
		)

		if err := rs.Scan(&host, &label, &status, &instanceUUID, &displayName, &projectID,
			&address, &launchedAt, &terminatedAt); err != nil {
			return nil, fmt.Errorf("nova: scan pci device: %w", err)
		}

		model, err := r.labels.Translate(label)
		if err != nil {
			var unknown *UnknownDeviceLabelError
			if errors.As(err, &unknown) {
				unknown.Host = host.String
				unknown.Address = address
			}

			return nil, err
		}

		device := models.DeviceRecord{
			Host:         host.String,
			Model:        model,
			Status:       models.DeviceStatus(status),
			InstanceUUID: instanceUUID.String,
			ProjectID:    projectID.String,
			DisplayName:  stringPtrFromNull(displayName),
			Address:      address,
			LaunchedAt:   timePtrFromNull(launchedAt),
			TerminatedAt: timePtrFromNull(terminatedAt),
		}

		if device.Bound() && !device.HasProject() {
			r.logger.Warn().
				Str("host", device.Host).
				Str("pci_id", device.Address).
				Str("instance_uuid", device.InstanceUUID).
				Msg("pci device bound to an instance without a project")
		}

		devices = append(devices, device)
	}

	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("nova: iterate pci devices: %w", err)
	}

	r.logger.Debug().Int("devices", len(devices)).Msg("read pci device inventory")

	return devices, nil
}

// TerminatedAt returns the termination time Nova recorded for an instance.
// found is false while the instance is running or when it is unknown.
func (r *NovaReader) TerminatedAt(ctx context.Context, instanceUUID string) (t time.Time, found bool, err error) {
	rs, err := r.src.queryRows(ctx, terminatedAtQuery, instanceUUID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("nova: query instance %s: %w", instanceUUID, err)
	}
	defer func() { _ = rs.Close() }()

	for rs.Next() {
		var terminatedAt sql.NullTime
		if err := rs.Scan(&terminatedAt); err != nil {
			return time.Time{}, false, fmt.Errorf("nova: scan instance %s: %w", instanceUUID, err)
		}

		if terminatedAt.Valid {
			return terminatedAt.Time.UTC(), true, nil
		}
	}

	if err := rs.Err(); err != nil {
		return time.Time{}, false, fmt.Errorf("nova: iterate instance %s: %w", instanceUUID, err)
	}

	return time.Time{}, false, nil
}

func stringPtrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}

	value := ns.String

	return &value
}

func timePtrFromNull(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}

	value := nt.Time.UTC()

	return &value
}
