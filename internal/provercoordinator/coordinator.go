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

// Package provercoordinator assigns transition-proof work and recursively
// composes the validity proof chain, per spec.md section 4.8. The task
// manager (Redis) handles worker dispatch; this package is the DB-backed
// mirror of task state that survives restarts and the validity-proof
// accumulation job that reads completed transition proofs in order.
package provercoordinator

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

var logger = common.NewModuleLogger("provercoordinator")

// ProverTaskRow is the prover_tasks relation of spec.md section 4.8.
type ProverTaskRow struct {
	BlockNumber     uint32     `gorm:"primary_key;column:block_number"`
	Assigned        bool       `gorm:"column:assigned"`
	AssignedAt      *time.Time `gorm:"column:assigned_at"`
	LastHeartbeat   *time.Time `gorm:"column:last_heartbeat"`
	Completed       bool       `gorm:"column:completed"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	TransitionProof []byte     `gorm:"column:transition_proof"`
}

func (ProverTaskRow) TableName() string { return "prover_tasks" }

// ValidityProofRow is the accumulated recursive output, one row per block.
type ValidityProofRow struct {
	BlockNumber   uint32 `gorm:"primary_key;column:block_number"`
	ValidityProof []byte `gorm:"column:validity_proof"`
}

func (ValidityProofRow) TableName() string { return "validity_proofs" }

// Composer recursively combines a transition proof with the previous
// validity proof. The circuit itself is out of scope per spec.md section 1;
// this is the seam the real prover client implements.
type Composer interface {
	Compose(prevValidityProof []byte, transitionProof []byte, blockNumber uint32) ([]byte, error)
}

type Coordinator struct {
	db       *gorm.DB
	composer Composer

	heartbeatInterval time.Duration
}

func New(db *gorm.DB, composer Composer, heartbeatInterval time.Duration) *Coordinator {
	return &Coordinator{db: db, composer: composer, heartbeatInterval: heartbeatInterval}
}

// RegisterTask inserts a new unassigned prover_tasks row for blockNumber.
func (c *Coordinator) RegisterTask(blockNumber uint32) error {
	row := ProverTaskRow{BlockNumber: blockNumber}
	err := c.db.Where(ProverTaskRow{BlockNumber: blockNumber}).FirstOrCreate(&row).Error
	return errors.Wrapf(err, "registering prover task for block %d", blockNumber)
}

// AssignTask selects the smallest-block-number unassigned task and marks it
// assigned, per spec.md section 4.8.
func (c *Coordinator) AssignTask() (*ProverTaskRow, error) {
	var row ProverTaskRow
	err := c.db.
		Where("assigned = ? AND completed = ?", false, false).
		Order("block_number ASC").
		Limit(1).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting unassigned prover task")
	}

	now := time.Now()
	row.Assigned = true
	row.AssignedAt = &now
	row.LastHeartbeat = &now
	if err := c.db.Save(&row).Error; err != nil {
		return nil, errors.Wrapf(err, "marking task %d assigned", row.BlockNumber)
	}
	return &row, nil
}

// Heartbeat refreshes last_heartbeat for an assigned task, the DB-mirror
// analog of taskmanager's Redis heartbeat key.
func (c *Coordinator) Heartbeat(blockNumber uint32) error {
	now := time.Now()
	return errors.Wrapf(
		c.db.Model(&ProverTaskRow{}).Where("block_number = ?", blockNumber).Update("last_heartbeat", &now).Error,
		"heartbeat for task %d", blockNumber,
	)
}

// CompleteTask records a finished transition proof.
func (c *Coordinator) CompleteTask(blockNumber uint32, transitionProof []byte) error {
	now := time.Now()
	return errors.Wrapf(c.db.Model(&ProverTaskRow{}).Where("block_number = ?", blockNumber).Updates(map[string]interface{}{
		"completed":        true,
		"completed_at":     &now,
		"transition_proof": transitionProof,
	}).Error, "completing task %d", blockNumber)
}

// UnassignStale clears the assigned flag on every task whose last_heartbeat
// predates now - heartbeatInterval, so AssignTask can hand it out again.
// This is the coordinator-side analog of taskmanager.CleanupInactiveWorkers.
func (c *Coordinator) UnassignStale() (int, error) {
	cutoff := time.Now().Add(-c.heartbeatInterval)
	result := c.db.Model(&ProverTaskRow{}).
		Where("assigned = ? AND completed = ? AND last_heartbeat < ?", true, false, cutoff).
		Updates(map[string]interface{}{"assigned": false, "assigned_at": nil})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "unassigning stale prover tasks")
	}
	return int(result.RowsAffected), nil
}

// ComposeValidityProofs walks completed prover_tasks in ascending block
// order starting from the greatest existing validity_proofs.block_number+1,
// composing each transition proof with the previous validity proof and
// storing the result; it stops at the first gap, per spec.md section 4.8.
func (c *Coordinator) ComposeValidityProofs() (int, error) {
	start, err := c.nextValidityBlockNumber()
	if err != nil {
		return 0, err
	}

	composed := 0
	blockNumber := start
	var prevProof []byte
	if blockNumber > 0 {
		prevProof, err = c.validityProofAt(blockNumber - 1)
		if err != nil {
			return 0, err
		}
	}

	for {
		var task ProverTaskRow
		err := c.db.Where("block_number = ? AND completed = ?", blockNumber, true).First(&task).Error
		if err == gorm.ErrRecordNotFound {
			break // gap: stop here
		}
		if err != nil {
			return composed, errors.Wrapf(err, "reading completed task %d", blockNumber)
		}

		proof, err := c.composer.Compose(prevProof, task.TransitionProof, blockNumber)
		if err != nil {
			return composed, errors.Wrapf(err, "composing validity proof for block %d", blockNumber)
		}

		row := ValidityProofRow{BlockNumber: blockNumber, ValidityProof: proof}
		if err := c.db.Create(&row).Error; err != nil {
			return composed, errors.Wrapf(err, "storing validity proof for block %d", blockNumber)
		}

		prevProof = proof
		composed++
		blockNumber++
	}
	return composed, nil
}

func (c *Coordinator) nextValidityBlockNumber() (uint32, error) {
	var row ValidityProofRow
	err := c.db.Order("block_number DESC").Limit(1).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading latest validity proof")
	}
	return row.BlockNumber + 1, nil
}

func (c *Coordinator) validityProofAt(blockNumber uint32) ([]byte, error) {
	var row ValidityProofRow
	err := c.db.Where("block_number = ?", blockNumber).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.Errorf("missing validity proof for block %d", blockNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading validity proof")
	}
	return row.ValidityProof, nil
}

// LatestValidityProofBlockNumber answers spec.md section 6's
// /validity-proof-block-number.
func (c *Coordinator) LatestValidityProofBlockNumber() (uint32, error) {
	next, err := c.nextValidityBlockNumber()
	if err != nil {
		return 0, err
	}
	if next == 0 {
		return 0, nil
	}
	return next - 1, nil
}
