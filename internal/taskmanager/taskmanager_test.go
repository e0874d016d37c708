// Copyright 2024 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package taskmanager

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := DefaultConfig("test")
	cfg.HeartbeatTTL = 100 * time.Millisecond
	return New(cfg, client), mr
}

func TestAssignTaskPopsLowestBlockNumber(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.AddTask(Task{BlockNumber: 10}))
	require.NoError(t, m.AddTask(Task{BlockNumber: 3}))
	require.NoError(t, m.AddTask(Task{BlockNumber: 7}))

	task, ok, err := m.AssignTask("worker-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 3, task.BlockNumber)
}

func TestCompleteTaskStoresResult(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.AddTask(Task{BlockNumber: 5}))

	task, ok, err := m.AssignTask("worker-a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.CompleteTask("worker-a", *task, Result{BlockNumber: 5, Proof: []byte("proof")}))

	result, ok, err := m.GetResult(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("proof"), result.Proof)
}

// TestCleanupRequeuesExpiredWorker exercises P7 / scenario 4 from spec.md
// section 8: a worker's heartbeat expiring re-queues its assigned tasks.
func TestCleanupRequeuesExpiredWorker(t *testing.T) {
	m, mr := newTestManager(t)

	require.NoError(t, m.AddTask(Task{BlockNumber: 100}))
	task, ok, err := m.AssignTask("worker-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 100, task.BlockNumber)

	require.NoError(t, m.SubmitHeartbeat("worker-a"))

	// Fast-forward past the heartbeat TTL instead of sleeping.
	mr.FastForward(200 * time.Millisecond)

	requeued, err := m.CleanupInactiveWorkers([]string{"worker-a"})
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	task2, ok, err := m.AssignTask("worker-b")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 100, task2.BlockNumber)
}

func TestCleanupLeavesActiveWorkerAlone(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.AddTask(Task{BlockNumber: 1}))
	_, ok, err := m.AssignTask("worker-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.SubmitHeartbeat("worker-a"))

	requeued, err := m.CleanupInactiveWorkers([]string{"worker-a"})
	require.NoError(t, err)
	require.Equal(t, 0, requeued)
}
