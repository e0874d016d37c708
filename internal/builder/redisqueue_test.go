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

package builder

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueue(client, "test:post_queue")
}

func TestRedisQueueDequeueEmptyReturnsNilNil(t *testing.T) {
	q := newTestQueue(t)
	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestRedisQueueFIFOOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, BlockPostTask{BlockID: "a"}))
	require.NoError(t, q.Enqueue(ctx, BlockPostTask{BlockID: "b"}))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first.BlockID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second.BlockID)

	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Nil(t, third)
}

func TestRedisQueueSurvivesRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := BlockPostTask{
		ForcePost:           true,
		IsRegistrationBlock: true,
		BlockID:             "c",
	}
	task.PubKeys[0] = common.PubKey{0xab, 0xcd}
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, task.ForcePost, got.ForcePost)
	require.Equal(t, task.IsRegistrationBlock, got.IsRegistrationBlock)
	require.Equal(t, task.BlockID, got.BlockID)
	require.Equal(t, task.PubKeys, got.PubKeys)
}
