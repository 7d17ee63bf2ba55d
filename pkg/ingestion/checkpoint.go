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

package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpoint tracks ingestion progress for one repository for
// restartability. The status bus's on-disk fallback keeps its own task
// records and does not read or write Checkpoint files.
type Checkpoint struct {
	RepositoryName string         `json:"repository_name"`
	TaskID         string         `json:"task_id,omitempty"`
	Stage          string         `json:"stage,omitempty"`
	FilesProcessed int            `json:"files_processed"`
	ChunksExtracted int           `json:"chunks_extracted"`
	ChunksEmbedded int            `json:"chunks_embedded"`
	ErrorsByKind   map[string]int `json:"errors_by_kind,omitempty"`
	FileHashes     map[string]string `json:"file_hashes,omitempty"` // file_path -> content_hash
	StartTime      string         `json:"start_time"`
	LastUpdateTime string         `json:"last_update_time"`
	Done           bool           `json:"done"`
	Err            string         `json:"error,omitempty"`
}

// CheckpointManager manages checkpoint persistence.
type CheckpointManager struct {
	checkpointPath string
}

// NewCheckpointManager creates a new checkpoint manager.
func NewCheckpointManager(checkpointPath string) *CheckpointManager {
	return &CheckpointManager{
		checkpointPath: checkpointPath,
	}
}

// LoadCheckpoint loads a checkpoint from disk.
func (cm *CheckpointManager) LoadCheckpoint(repositoryName string) (*Checkpoint, error) {
	path := cm.getCheckpointPath(repositoryName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No checkpoint exists
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}

	if checkpoint.FileHashes == nil {
		checkpoint.FileHashes = make(map[string]string)
	}
	if checkpoint.ErrorsByKind == nil {
		checkpoint.ErrorsByKind = make(map[string]int)
	}

	return &checkpoint, nil
}

// SaveCheckpoint saves a checkpoint to disk.
func (cm *CheckpointManager) SaveCheckpoint(checkpoint *Checkpoint) error {
	path := cm.getCheckpointPath(checkpoint.RepositoryName)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically (temp file + rename)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) // Cleanup on error (ignore error as rename already failed)
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}

// ClearCheckpoint removes a checkpoint file.
func (cm *CheckpointManager) ClearCheckpoint(repositoryName string) error {
	path := cm.getCheckpointPath(repositoryName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// getCheckpointPath returns the checkpoint file path for a repository.
func (cm *CheckpointManager) getCheckpointPath(repositoryName string) string {
	if cm.checkpointPath != "" {
		return filepath.Join(cm.checkpointPath, fmt.Sprintf("checkpoint-%s.json", repositoryName))
	}
	// Default: current directory
	return fmt.Sprintf("checkpoint-%s.json", repositoryName)
}
