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
	"encoding/json"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
)

// RedisQueue is a PostQueue backed by a single Redis list, satisfying
// spec.md section 5's requirement that a posted-block task survive a
// builder restart: the task stays in Redis until a post_block run
// dequeues it. Dequeue removes the task from the list before it is posted,
// and a task whose post fails is not put back. Grounded on the same
// github.com/go-redis/redis/v7 client internal/taskmanager uses.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, task BlockPostTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "encoding post task")
	}
	return q.client.LPush(q.key, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*BlockPostTask, error) {
	data, err := q.client.RPop(q.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "dequeuing post task")
	}
	var task BlockPostTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, errors.Wrap(err, "decoding post task")
	}
	return &task, nil
}
