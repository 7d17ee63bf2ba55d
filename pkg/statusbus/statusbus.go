// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package statusbus implements the durable, poll- and subscribe-accessible
// per-task progress record (spec §4.9). A task's record is published to
// Redis when a status_bus_endpoint is configured (keyed SET + PUBLISH,
// grounded on intelligencedev-manifold's redis_cache.go) and always mirrored
// to an on-disk JSON file (the teacher's checkpoint.go atomic
// temp-file-then-rename pattern) so a record survives process restart even
// with no broker reachable.
package statusbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is the terminal/in-flight state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Stage names, in the order spec §4.8 sequences them.
const (
	StageQueued     = "queued"
	StageCloning    = "cloning"
	StageAnalyzing  = "analyzing"
	StageParsing    = "parsing"
	StageEmbedding  = "embedding"
	StageStoring    = "storing"
	StageValidating = "validating"
	StageCompleted  = "completed"
	StageFailed     = "failed"
)

// stageOrder ranks stages for the monotonicity check; later stages must
// never be followed by a Publish naming an earlier one.
var stageOrder = map[string]int{
	StageQueued:     0,
	StageCloning:    1,
	StageAnalyzing:  2,
	StageParsing:    3,
	StageEmbedding:  4,
	StageStoring:    5,
	StageValidating: 6,
	StageCompleted:  7,
	StageFailed:     7, // failed can terminate from any stage; never "superseded"
}

// StageHistoryEntry records one stage's start/completion timestamps.
type StageHistoryEntry struct {
	Stage       string     `json:"stage"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StageProgress is the current stage's in-flight item counters.
type StageProgress struct {
	TotalItems     int     `json:"total_items,omitempty"`
	ProcessedItems int     `json:"processed_items,omitempty"`
	RatePerSec     float64 `json:"rate_per_sec,omitempty"`
	CurrentItem    string  `json:"current_item,omitempty"`
}

// ErrorEntry is one recorded error or warning against a task.
type ErrorEntry struct {
	Stage       string `json:"stage"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	FilePath    string `json:"file_path,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// TaskStatus is the per-task record shape from spec §4.9.
type TaskStatus struct {
	TaskID         string              `json:"task_id"`
	RepositoryName string              `json:"repository_name"`
	Status         Status              `json:"status"`
	CurrentStage   string              `json:"current_stage"`
	OverallProgress int                `json:"overall_progress"`
	StageHistory   []StageHistoryEntry `json:"stage_history"`
	CurrentStageProgress StageProgress `json:"current_stage_progress"`
	Errors         []ErrorEntry        `json:"errors"`
	Warnings       []string            `json:"warnings"`
	StartedAt      time.Time           `json:"started_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// Bus publishes and serves task status records.
type Bus interface {
	// Publish writes status as the new current record for its TaskID.
	// Implementations enforce monotonicity (spec §4.9): a Publish naming an
	// earlier stage or a lower overall_progress than the stored record is
	// rejected rather than silently applied.
	Publish(ctx context.Context, status TaskStatus) error

	// Get returns the last published record for taskID, or nil if none exists.
	Get(ctx context.Context, taskID string) (*TaskStatus, error)

	// Subscribe returns a channel of updates for taskID and a cancel func.
	// Subscribers may miss intermediate updates; each delivered update is
	// self-contained (spec §4.9).
	Subscribe(ctx context.Context, taskID string) (<-chan TaskStatus, func())

	Close() error
}

// New builds a Bus. endpoint is a Redis address ("host:port"); when empty,
// the bus runs file-only. dataDir holds the on-disk mirror, always active
// regardless of endpoint, so records survive a restart with no broker.
func New(endpoint, dataDir string, logger *slog.Logger) (Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	file := newFileBus(dataDir, logger)

	if endpoint == "" {
		return file, nil
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("statusbus.redis.unreachable", "endpoint", endpoint, "err", err)
		_ = client.Close()
		return file, nil
	}

	return &redisBus{client: client, fallback: file, logger: logger}, nil
}

// checkMonotonic rejects a publish that would move a stage or its progress
// backward relative to prev (nil prev always accepts).
func checkMonotonic(prev *TaskStatus, next TaskStatus) error {
	if prev == nil {
		return nil
	}
	prevRank, okPrev := stageOrder[prev.CurrentStage]
	nextRank, okNext := stageOrder[next.CurrentStage]
	if okPrev && okNext && nextRank < prevRank {
		return fmt.Errorf("statusbus: stage regression %s -> %s for task %s", prev.CurrentStage, next.CurrentStage, next.TaskID)
	}
	if next.OverallProgress < prev.OverallProgress {
		return fmt.Errorf("statusbus: progress regression %d -> %d for task %s", prev.OverallProgress, next.OverallProgress, next.TaskID)
	}
	return nil
}

// redisBus is the primary implementation: a durable SET keyed
// "task_status:<task_id>" plus a PUBLISH on "task_status:<task_id>:events"
// for subscribers, mirrored to a fileBus fallback on every publish.
type redisBus struct {
	client   *redis.Client
	fallback *fileBus
	logger   *slog.Logger
}

func keyFor(taskID string) string     { return "task_status:" + taskID }
func channelFor(taskID string) string { return "task_status:" + taskID + ":events" }

func (b *redisBus) Publish(ctx context.Context, status TaskStatus) error {
	prev, _ := b.Get(ctx, status.TaskID)
	if err := checkMonotonic(prev, status); err != nil {
		return err
	}
	status.UpdatedAt = time.Now()

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, keyFor(status.TaskID), data, 0)
	pipe.Publish(ctx, channelFor(status.TaskID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Warn("statusbus.redis.publish_failed", "task_id", status.TaskID, "err", err)
	}

	// The on-disk mirror is best-effort but never skipped: it is what makes
	// "survives process restart" true even if Redis itself is later lost.
	if ferr := b.fallback.writeOnly(status); ferr != nil {
		b.logger.Warn("statusbus.file_mirror.write_failed", "task_id", status.TaskID, "err", ferr)
	}
	return nil
}

func (b *redisBus) Get(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := b.client.Get(ctx, keyFor(taskID)).Bytes()
	if err == redis.Nil {
		return b.fallback.Get(ctx, taskID)
	}
	if err != nil {
		return b.fallback.Get(ctx, taskID)
	}
	var status TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &status, nil
}

func (b *redisBus) Subscribe(ctx context.Context, taskID string) (<-chan TaskStatus, func()) {
	out := make(chan TaskStatus, 4)
	sub := b.client.Subscribe(ctx, channelFor(taskID))
	go func() {
		for msg := range sub.Channel() {
			var status TaskStatus
			if err := json.Unmarshal([]byte(msg.Payload), &status); err != nil {
				b.logger.Warn("statusbus.subscribe.decode_failed", "task_id", taskID, "err", err)
				continue
			}
			select {
			case out <- status:
			default:
			}
		}
	}()
	cancel := func() {
		_ = sub.Close()
		close(out)
	}
	return out, cancel
}

func (b *redisBus) Close() error {
	return b.client.Close()
}

// fileBus is the restart-durable fallback: one JSON file per task, written
// atomically via temp-file-then-rename (grounded on
// pkg/ingestion/checkpoint.go's SaveCheckpoint). It has no real pub/sub, so
// Subscribe returns a channel fed by Publish calls made in this process.
type fileBus struct {
	dir    string
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[string][]chan TaskStatus
}

func newFileBus(dir string, logger *slog.Logger) *fileBus {
	if dir == "" {
		dir = ".cie/status"
	}
	return &fileBus{dir: dir, logger: logger, subscribers: make(map[string][]chan TaskStatus)}
}

func (b *fileBus) path(taskID string) string {
	return filepath.Join(b.dir, fmt.Sprintf("task-%s.json", taskID))
}

func (b *fileBus) writeOnly(status TaskStatus) error {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return fmt.Errorf("create statusbus dir: %w", err)
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	path := b.path(status.TaskID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write status temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename status: %w", err)
	}
	return nil
}

func (b *fileBus) Publish(ctx context.Context, status TaskStatus) error {
	prev, _ := b.Get(ctx, status.TaskID)
	if err := checkMonotonic(prev, status); err != nil {
		return err
	}
	status.UpdatedAt = time.Now()
	if err := b.writeOnly(status); err != nil {
		return err
	}

	b.mu.Lock()
	subs := append([]chan TaskStatus(nil), b.subscribers[status.TaskID]...)
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- status:
		default:
		}
	}
	return nil
}

func (b *fileBus) Get(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := os.ReadFile(b.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read status: %w", err)
	}
	var status TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	return &status, nil
}

func (b *fileBus) Subscribe(ctx context.Context, taskID string) (<-chan TaskStatus, func()) {
	ch := make(chan TaskStatus, 4)
	b.mu.Lock()
	b.subscribers[taskID] = append(b.subscribers[taskID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[taskID]
		for i, c := range subs {
			if c == ch {
				b.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, cancel
}

func (b *fileBus) Close() error { return nil }
