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

// Package config loads the gpudb-sync configuration from a YAML or JSON file
// or from environment variables, then validates it.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/UoA-eResearch/nectar-uoa-gpudb-update/pkg/logger"
)

var (
	errInvalidConfigSource = errors.New("invalid CONFIG_SOURCE value")
	errConfigPathRequired  = errors.New("config path is required for CONFIG_SOURCE=file")
)

const (
	configSourceFile = "file"
	configSourceEnv  = "env"

	// DefaultEnvPrefix prefixes every environment variable the env loader
	// reads, for example GPUDB_GPUDB_PASSWORD for gpudb.password.
	DefaultEnvPrefix = "GPUDB_"
)

// ConfigLoader fills dst from some source.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by configuration structs that check themselves.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	fileLoader ConfigLoader
	envLoader  *EnvConfigLoader
	logger     logger.Logger
}

// NewConfig returns a Config using the file loader and the GPUDB_ env
// prefix. A nil logger is replaced with a stderr logger at warn level.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.FromZerolog(zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger())
	}

	prefix := os.Getenv("CONFIG_ENV_PREFIX")
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	return &Config{
		fileLoader: &FileConfigLoader{},
		envLoader:  NewEnvConfigLoader(log, prefix),
		logger:     log,
	}
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate loads cfg from the source named by CONFIG_SOURCE and
// validates it. With the file source, environment variables carrying the
// prefix are applied on top of the file so secrets can stay out of it.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	source := strings.ToLower(os.Getenv("CONFIG_SOURCE"))

	switch source {
	case configSourceEnv:
		if err := c.envLoader.Load(ctx, path, cfg); err != nil {
			return err
		}
	case configSourceFile, "":
		if path == "" {
			return errConfigPathRequired
		}

		if err := c.fileLoader.Load(ctx, path, cfg); err != nil {
			return err
		}

		if err := c.envLoader.Overlay(cfg); err != nil {
			return fmt.Errorf("failed to apply environment overrides: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s (expected '%s' or '%s')",
			errInvalidConfigSource, source, configSourceFile, configSourceEnv)
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.logger.Debug().Str("source", source).Str("path", path).Msg("Configuration loaded")

	return nil
}
