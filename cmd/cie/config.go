// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/graphforge/internal/config"
)

// Config is the CLI-local project configuration persisted at
// .cie/project.yaml. It carries the project identity and source location
// the engine's process-wide Config has no place for, and embeds the
// engine config itself (spec §6.4) for everything ingestion/retrieval
// actually consults.
type Config struct {
	ProjectID string `yaml:"project_id"`

	// RepoPath is the repository this project indexes, relative or
	// absolute; empty means the current directory at index time.
	RepoPath string `yaml:"repo_path"`

	Engine config.Config `yaml:"engine"`
}

// DefaultConfig returns a Config for a newly initialized project, wrapping
// the engine's own DefaultConfig.
func DefaultConfig(projectID string) *Config {
	return &Config{
		ProjectID: projectID,
		Engine:    config.DefaultConfig(),
	}
}

// ConfigDir returns the .cie directory for a project rooted at dir.
func ConfigDir(dir string) string {
	return filepath.Join(dir, ".cie")
}

// ConfigPath returns the project.yaml path for a project rooted at dir.
func ConfigPath(dir string) string {
	return filepath.Join(ConfigDir(dir), "project.yaml")
}

// LoadConfig reads project.yaml from path, or from ConfigPath(cwd) when
// path is empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot get current directory: %w", err)
		}
		path = ConfigPath(cwd)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the CLI's own config file
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no configuration found at %s; run 'cie init' first", path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// dataDir returns the local data root for a project, ~/.cie/data/<project_id>.
// Both the vector store and the graph store are rooted here, each owning
// its own subdirectory (spec §6.3: one vector-store root, one graph
// database per deployment).
func dataDir(projectID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cie", "data", projectID), nil
}
