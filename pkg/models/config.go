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

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
)

var (
	errInvalidDuration          = errors.New("invalid duration")
	errNovaHostRequired         = errors.New("database.host is required")
	errNovaDBRequired           = errors.New("database.db is required")
	errTrackingHostRequired     = errors.New("gpudb.host is required")
	errTrackingDBRequired       = errors.New("gpudb.db is required")
	errAuthURLRequired          = errors.New("nectar.auth_url is required")
	errKeystoneUserRequired     = errors.New("nectar.username is required")
	errKeystoneProjectRequired  = errors.New("nectar.project_name is required")
	errFlavorPatternRequired    = errors.New("reconcile.flavor_pattern is required")
	errIPPrefixRequired         = errors.New("reconcile.ip_prefix is required")
	errCallTimeoutInvalid       = errors.New("reconcile.call_timeout must be positive")
	errDefaultDateInvalid       = errors.New("reconcile default date is invalid")
	errDefaultWindowInverted    = errors.New("reconcile.default_end_date is before default_start_date")
	errNATSURLRequired          = errors.New("nats.url is required when nats is configured")
	errMaxConnectionsNegative   = errors.New("gpudb.max_connections must not be negative")
	errStatementTimeoutNegative = errors.New("gpudb.statement_timeout must not be negative")
)

const (
	DefaultFlavorPattern       = "akl.gpu*"
	DefaultIPPrefix            = "130.216."
	DefaultProjectName         = "Auckland-CeR"
	DefaultStartDate           = "2017-07-04"
	DefaultEndDate             = "9999-12-31"
	DefaultCallTimeout         = 30 * time.Second
	DefaultAllocationService   = "allocation"
	DefaultNATSStream          = "GPUDB"
	DefaultNATSSubjectPrefix   = "gpudb"
	defaultNovaPort            = 3306
	defaultTrackingPort        = 5432
	defaultKeystoneDomainName  = "Default"
	defaultTrackingApplication = "gpudb-sync"
)

// DefaultHostStrip lists the site naming fragments removed from Nova compute
// host names before they are used as hypervisor names.
func DefaultHostStrip() []string {
	return []string{"ntr-", "akld2"}
}

// Duration is a time.Duration that decodes from "30s" style strings in JSON
// and YAML.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		return d.parse(value)
	default:
		return errInvalidDuration
	}
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errInvalidDuration
	}

	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return err
		}

		*d = Duration(time.Duration(n))

		return nil
	}

	return d.parse(node.Value)
}

func (d *Duration) parse(value string) error {
	dur, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidDuration, err)
	}

	*d = Duration(dur)

	return nil
}

// TLSConfig points at PEM files for a TLS client.
type TLSConfig struct {
	CertFile   string `json:"cert_file" yaml:"cert_file"`
	KeyFile    string `json:"key_file" yaml:"key_file"`
	CAFile     string `json:"ca_file" yaml:"ca_file"`
	ServerName string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
}

// NovaDatabase is the Nova cell database holding pci_devices and instances.
type NovaDatabase struct {
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
	Database string   `json:"db" yaml:"db"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// TrackingDatabase is the PostgreSQL database owned by this job.
type TrackingDatabase struct {
	Host             string            `json:"host" yaml:"host"`
	Port             int               `json:"port" yaml:"port"`
	Database         string            `json:"db" yaml:"db"`
	Username         string            `json:"username" yaml:"username"`
	Password         string            `json:"password" yaml:"password"`
	SSLMode          string            `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
	ApplicationName  string            `json:"application_name,omitempty" yaml:"application_name,omitempty"`
	MaxConnections   int32             `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	StatementTimeout Duration          `json:"statement_timeout,omitempty" yaml:"statement_timeout,omitempty"`
	RuntimeParams    map[string]string `json:"runtime_params,omitempty" yaml:"runtime_params,omitempty"`
	TLS              *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// KeystoneConfig holds the credentials used for the control plane and the
// allocation service.
type KeystoneConfig struct {
	AuthURL               string `json:"auth_url" yaml:"auth_url"`
	ProjectName           string `json:"project_name" yaml:"project_name"`
	Username              string `json:"username" yaml:"username"`
	Password              string `json:"password" yaml:"password"`
	UserDomainName        string `json:"user_domain_name,omitempty" yaml:"user_domain_name,omitempty"`
	ProjectDomainName     string `json:"project_domain_name,omitempty" yaml:"project_domain_name,omitempty"`
	Region                string `json:"region,omitempty" yaml:"region,omitempty"`
	AllocationServiceType string `json:"allocation_service_type,omitempty" yaml:"allocation_service_type,omitempty"`
	AllocationEndpoint    string `json:"allocation_endpoint,omitempty" yaml:"allocation_endpoint,omitempty"`
}

// ReconcileConfig tunes the reconciliation run.
type ReconcileConfig struct {
	FlavorPattern      string            `json:"flavor_pattern" yaml:"flavor_pattern"`
	IPPrefix           string            `json:"ip_prefix" yaml:"ip_prefix"`
	HostStrip          []string          `json:"host_strip" yaml:"host_strip"`
	DefaultProjectName string            `json:"default_project_name" yaml:"default_project_name"`
	DefaultStartDate   string            `json:"default_start_date" yaml:"default_start_date"`
	DefaultEndDate     string            `json:"default_end_date" yaml:"default_end_date"`
	GPULabels          map[string]string `json:"gpu_labels,omitempty" yaml:"gpu_labels,omitempty"`
	CallTimeout        Duration          `json:"call_timeout" yaml:"call_timeout"`
	AdvisoryLock       *bool             `json:"advisory_lock,omitempty" yaml:"advisory_lock,omitempty"`
	Cleanup            *bool             `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
}

// LockEnabled reports whether the run should hold the tracking store
// advisory lock. Defaults to true.
func (c *ReconcileConfig) LockEnabled() bool {
	return c.AdvisoryLock == nil || *c.AdvisoryLock
}

// CleanupEnabled reports whether the cleanup pass follows the sweep.
// Defaults to true.
func (c *ReconcileConfig) CleanupEnabled() bool {
	return c.Cleanup == nil || *c.Cleanup
}

// NATSConfig enables CloudEvent publishing of run outcomes.
type NATSConfig struct {
	URL           string     `json:"url" yaml:"url"`
	Stream        string     `json:"stream,omitempty" yaml:"stream,omitempty"`
	SubjectPrefix string     `json:"subject_prefix,omitempty" yaml:"subject_prefix,omitempty"`
	TLS           *TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// GPUDBConfig is the gpudb-sync configuration file.
type GPUDBConfig struct {
	Nova      NovaDatabase     `json:"database" yaml:"database"`
	Tracking  TrackingDatabase `json:"gpudb" yaml:"gpudb"`
	Keystone  KeystoneConfig   `json:"nectar" yaml:"nectar"`
	Reconcile ReconcileConfig  `json:"reconcile" yaml:"reconcile"`
	NATS      *NATSConfig      `json:"nats,omitempty" yaml:"nats,omitempty"`
	Logging   *logger.Config   `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// Validate fills defaults and checks required fields.
func (c *GPUDBConfig) Validate() error {
	if err := c.validateDatabases(); err != nil {
		return err
	}

	if err := c.validateKeystone(); err != nil {
		return err
	}

	if err := c.validateReconcile(); err != nil {
		return err
	}

	if c.NATS != nil {
		if c.NATS.URL == "" {
			return errNATSURLRequired
		}

		if c.NATS.Stream == "" {
			c.NATS.Stream = DefaultNATSStream
		}

		if c.NATS.SubjectPrefix == "" {
			c.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
		}
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	return nil
}

func (c *GPUDBConfig) validateDatabases() error {
	if c.Nova.Host == "" {
		return errNovaHostRequired
	}

	if c.Nova.Database == "" {
		return errNovaDBRequired
	}

	if c.Nova.Port == 0 {
		c.Nova.Port = defaultNovaPort
	}

	if c.Tracking.Host == "" {
		return errTrackingHostRequired
	}

	if c.Tracking.Database == "" {
		return errTrackingDBRequired
	}

	if c.Tracking.Port == 0 {
		c.Tracking.Port = defaultTrackingPort
	}

	if c.Tracking.MaxConnections < 0 {
		return errMaxConnectionsNegative
	}

	if c.Tracking.StatementTimeout < 0 {
		return errStatementTimeoutNegative
	}

	if c.Tracking.ApplicationName == "" {
		c.Tracking.ApplicationName = defaultTrackingApplication
	}

	return nil
}

func (c *GPUDBConfig) validateKeystone() error {
	if c.Keystone.AuthURL == "" {
		return errAuthURLRequired
	}

	if c.Keystone.Username == "" {
		return errKeystoneUserRequired
	}

	if c.Keystone.ProjectName == "" {
		return errKeystoneProjectRequired
	}

	if c.Keystone.UserDomainName == "" {
		c.Keystone.UserDomainName = defaultKeystoneDomainName
	}

	if c.Keystone.ProjectDomainName == "" {
		c.Keystone.ProjectDomainName = defaultKeystoneDomainName
	}

	if c.Keystone.AllocationServiceType == "" {
		c.Keystone.AllocationServiceType = DefaultAllocationService
	}

	return nil
}

func (c *GPUDBConfig) validateReconcile() error {
	r := &c.Reconcile

	if r.FlavorPattern == "" {
		r.FlavorPattern = DefaultFlavorPattern
	}

	if r.IPPrefix == "" {
		r.IPPrefix = DefaultIPPrefix
	}

	if r.HostStrip == nil {
		r.HostStrip = DefaultHostStrip()
	}

	if r.DefaultProjectName == "" {
		r.DefaultProjectName = DefaultProjectName
	}

	if r.DefaultStartDate == "" {
		r.DefaultStartDate = DefaultStartDate
	}

	if r.DefaultEndDate == "" {
		r.DefaultEndDate = DefaultEndDate
	}

	if r.CallTimeout == 0 {
		r.CallTimeout = Duration(DefaultCallTimeout)
	}

	if r.CallTimeout < 0 {
		return errCallTimeoutInvalid
	}

	start, err := ParseDate(r.DefaultStartDate)
	if err != nil {
		return fmt.Errorf("%w: default_start_date %q", errDefaultDateInvalid, r.DefaultStartDate)
	}

	end, err := ParseDate(r.DefaultEndDate)
	if err != nil {
		return fmt.Errorf("%w: default_end_date %q", errDefaultDateInvalid, r.DefaultEndDate)
	}

	if end.Before(start) {
		return errDefaultWindowInverted
	}

	return nil
}
