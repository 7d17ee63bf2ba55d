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

package statusbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBus_PublishAndGet(t *testing.T) {
	bus := newFileBus(t.TempDir(), nil)
	ctx := context.Background()

	status := TaskStatus{
		TaskID:          "task-1",
		RepositoryName:  "example",
		Status:          StatusRunning,
		CurrentStage:    StageParsing,
		OverallProgress: 50,
		StartedAt:       time.Now(),
	}
	require.NoError(t, bus.Publish(ctx, status))

	got, err := bus.Get(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StageParsing, got.CurrentStage)
	assert.Equal(t, 50, got.OverallProgress)
}

func TestFileBus_Get_MissingTask(t *testing.T) {
	bus := newFileBus(t.TempDir(), nil)
	got, err := bus.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileBus_RejectsStageRegression(t *testing.T) {
	bus := newFileBus(t.TempDir(), nil)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, TaskStatus{
		TaskID: "task-2", CurrentStage: StageEmbedding, OverallProgress: 80,
	}))

	err := bus.Publish(ctx, TaskStatus{
		TaskID: "task-2", CurrentStage: StageParsing, OverallProgress: 60,
	})
	assert.Error(t, err)
}

func TestFileBus_RejectsProgressRegression(t *testing.T) {
	bus := newFileBus(t.TempDir(), nil)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, TaskStatus{
		TaskID: "task-3", CurrentStage: StageParsing, OverallProgress: 60,
	}))

	err := bus.Publish(ctx, TaskStatus{
		TaskID: "task-3", CurrentStage: StageParsing, OverallProgress: 40,
	})
	assert.Error(t, err)
}

func TestFileBus_Subscribe_ReceivesPublishedUpdates(t *testing.T) {
	bus := newFileBus(t.TempDir(), nil)
	ctx := context.Background()

	ch, cancel := bus.Subscribe(ctx, "task-4")
	defer cancel()

	go func() {
		_ = bus.Publish(ctx, TaskStatus{TaskID: "task-4", CurrentStage: StageCloning, OverallProgress: 10})
	}()

	select {
	case update := <-ch:
		assert.Equal(t, StageCloning, update.CurrentStage)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber update")
	}
}

func TestNew_EmptyEndpointUsesFileOnly(t *testing.T) {
	bus, err := New("", t.TempDir(), nil)
	require.NoError(t, err)
	_, ok := bus.(*fileBus)
	assert.True(t, ok)
}
