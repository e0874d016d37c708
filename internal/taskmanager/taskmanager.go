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

// Package taskmanager implements the Redis-backed transition-proof queue of
// spec.md section 4.8: a sorted-set task queue keyed by block number, a
// per-worker assignment zset, TTL'd results, and TTL'd heartbeats. Built on
// the teacher's github.com/go-redis/redis/v7 dependency.
package taskmanager

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

var logger = common.NewModuleLogger("taskmanager")

// Task is the unit of work dispatched to a worker, per spec.md section 3.
type Task struct {
	BlockNumber      uint32          `json:"block_number"`
	PrevValidityPIs  json.RawMessage `json:"prev_validity_pis"`
	ValidityWitness  json.RawMessage `json:"validity_witness"`
}

// Result is a worker's answer for a task, per spec.md section 3.
type Result struct {
	BlockNumber uint32 `json:"block_number"`
	Proof       []byte `json:"proof,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Config controls key prefixing and TTLs, mirroring TASK_TTL and
// HEARTBEAT_INTERVAL from spec.md section 6.
type Config struct {
	Prefix        string
	TaskTTL       time.Duration
	HeartbeatTTL  time.Duration
	ResultTTL     time.Duration
}

func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:       prefix,
		TaskTTL:      time.Hour,
		HeartbeatTTL: 30 * time.Second,
		ResultTTL:    24 * time.Hour,
	}
}

// Manager is the Redis-backed task queue. Every key lives under cfg.Prefix;
// no other component is allowed to write under that namespace, per spec.md
// section 5.
type Manager struct {
	cfg    Config
	client *redis.Client
}

func New(cfg Config, client *redis.Client) *Manager {
	return &Manager{cfg: cfg, client: client}
}

func (m *Manager) tasksKey() string              { return fmt.Sprintf("%s:tasks", m.cfg.Prefix) }
func (m *Manager) workerKey(workerID string) string {
	return fmt.Sprintf("%s:worker:%s", m.cfg.Prefix, workerID)
}
func (m *Manager) resultKey(blockNumber uint32) string {
	return fmt.Sprintf("%s:result:%d", m.cfg.Prefix, blockNumber)
}
func (m *Manager) heartbeatKey(workerID string) string {
	return fmt.Sprintf("%s:heartbeat:%s", m.cfg.Prefix, workerID)
}

// AddTask enqueues t scored by its block number and refreshes the queue
// key's TTL.
func (m *Manager) AddTask(t Task) error {
	if err := m.client.ZAdd(m.tasksKey(), &redis.Z{Score: float64(t.BlockNumber), Member: encode(t)}).Err(); err != nil {
		return errors.Wrap(err, "adding task")
	}
	return m.client.Expire(m.tasksKey(), m.cfg.TaskTTL).Err()
}

// AssignTask atomically pops the lowest-scored task and adds it to
// workerID's assignment zset, per spec.md section 4.8.
func (m *Manager) AssignTask(workerID string) (*Task, bool, error) {
	results, err := m.client.ZPopMin(m.tasksKey(), 1).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, "popping task")
	}
	if len(results) == 0 {
		return nil, false, nil
	}

	var t Task
	if err := decode(results[0].Member.(string), &t); err != nil {
		return nil, false, errors.Wrap(err, "decoding popped task")
	}

	if err := m.client.ZAdd(m.workerKey(workerID), &redis.Z{
		Score: results[0].Score, Member: results[0].Member,
	}).Err(); err != nil {
		return nil, false, errors.Wrap(err, "assigning task to worker")
	}
	return &t, true, nil
}

// CompleteTask removes t from workerID's assignment zset and writes r with
// a TTL, per spec.md section 4.8.
func (m *Manager) CompleteTask(workerID string, t Task, r Result) error {
	if err := m.client.ZRem(m.workerKey(workerID), encode(t)).Err(); err != nil {
		return errors.Wrap(err, "removing completed task from worker zset")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshaling result")
	}
	return m.client.Set(m.resultKey(t.BlockNumber), b, m.cfg.ResultTTL).Err()
}

// GetResult reads a previously-completed task's result, if any.
func (m *Manager) GetResult(blockNumber uint32) (*Result, bool, error) {
	b, err := m.client.Get(m.resultKey(blockNumber)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading result")
	}
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false, errors.Wrap(err, "unmarshaling result")
	}
	return &r, true, nil
}

// SubmitHeartbeat refreshes workerID's presence key.
func (m *Manager) SubmitHeartbeat(workerID string) error {
	return m.client.Set(m.heartbeatKey(workerID), "1", m.cfg.HeartbeatTTL).Err()
}

// CleanupInactiveWorkers moves every task assigned to a worker whose
// heartbeat has expired back into the task queue, and drops the worker's
// now-empty assignment zset, per spec.md section 4.8 and testable property
// P7.
func (m *Manager) CleanupInactiveWorkers(knownWorkerIDs []string) (int, error) {
	requeued := 0
	for _, workerID := range knownWorkerIDs {
		ttl, err := m.client.TTL(m.heartbeatKey(workerID)).Result()
		if err != nil {
			return requeued, errors.Wrapf(err, "checking heartbeat ttl for %s", workerID)
		}
		if ttl >= 0 {
			continue // heartbeat still alive
		}

		members, err := m.client.ZRangeWithScores(m.workerKey(workerID), 0, -1).Result()
		if err != nil {
			return requeued, errors.Wrapf(err, "reading worker zset for %s", workerID)
		}
		for _, z := range members {
			if err := m.client.ZAdd(m.tasksKey(), &redis.Z{Score: z.Score, Member: z.Member}).Err(); err != nil {
				return requeued, errors.Wrapf(err, "requeuing task from %s", workerID)
			}
			requeued++
		}
		if len(members) > 0 {
			if err := m.client.Del(m.workerKey(workerID)).Err(); err != nil {
				return requeued, errors.Wrapf(err, "deleting worker zset for %s", workerID)
			}
			logger.Warnw("requeued tasks from inactive worker", "worker", workerID, "count", len(members))
		}
	}
	return requeued, nil
}

func encode(t Task) string {
	b, _ := json.Marshal(t)
	return string(b)
}

func decode(s string, t *Task) error {
	return json.Unmarshal([]byte(s), t)
}
