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

package observer

import (
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// CheckpointRow tracks local_next_event_id per stream.
type CheckpointRow struct {
	Stream       string `gorm:"primary_key;column:stream"`
	NextEventID  uint64 `gorm:"column:next_event_id"`
}

func (CheckpointRow) TableName() string { return "observer_checkpoints" }

// FullBlockRow is the full_blocks relation named in spec.md section 4.5's
// genesis-row and DepositInfo-resolution requirements.
type FullBlockRow struct {
	BlockNumber     uint32 `gorm:"primary_key;column:block_number"`
	EthBlockNumber  uint64 `gorm:"column:eth_block_number"`
	EthTxIndex      uint32 `gorm:"column:eth_tx_index"`
	PrevBlockHash   []byte `gorm:"column:prev_block_hash"`
	DepositTreeRoot []byte `gorm:"column:deposit_tree_root"`
	BlockTimestamp  uint64 `gorm:"column:block_timestamp"`
	TxTreeRoot      []byte `gorm:"column:tx_tree_root"`
	IsRegistration  bool   `gorm:"column:is_registration"`
}

func (FullBlockRow) TableName() string { return "full_blocks" }

// DepositLeafEventRow is the deposit_leaf_events relation.
type DepositLeafEventRow struct {
	DepositIndex   uint64 `gorm:"primary_key;column:deposit_index"`
	DepositHash    []byte `gorm:"column:deposit_hash"`
	EthBlockNumber uint64 `gorm:"column:eth_block_number"`
	EthTxIndex     uint32 `gorm:"column:eth_tx_index"`
}

func (DepositLeafEventRow) TableName() string { return "deposit_leaf_events" }

// DepositedEventRow is the deposited_events relation, the L1 counterpart of
// DepositLeafEventRow.
type DepositedEventRow struct {
	DepositID      uint64 `gorm:"primary_key;column:deposit_id"`
	DepositHash    []byte `gorm:"column:deposit_hash"`
	EthBlockNumber uint64 `gorm:"column:eth_block_number"`
	EthTxIndex     uint32 `gorm:"column:eth_tx_index"`
}

func (DepositedEventRow) TableName() string { return "deposited_events" }

// Storage is the observer's Postgres-backed persistence, partitioned from
// every other component's tables per spec.md section 5.
type Storage struct {
	db *gorm.DB
}

func NewStorage(db *gorm.DB) *Storage { return &Storage{db: db} }

// EnsureGenesis writes the rollup genesis row if full_blocks is empty, per
// spec.md section 4.5.
func (s *Storage) EnsureGenesis() error {
	var count int
	if err := s.db.Model(&FullBlockRow{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "counting full_blocks")
	}
	if count > 0 {
		return nil
	}
	genesis := FullBlockRow{BlockNumber: 0, EthBlockNumber: 0, EthTxIndex: 0}
	return errors.Wrap(s.db.Create(&genesis).Error, "writing genesis block")
}

func (s *Storage) LocalNextEventID(stream StreamKind) (uint64, error) {
	var row CheckpointRow
	err := s.db.Where("stream = ?", string(stream)).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "reading checkpoint %s", stream)
	}
	return row.NextEventID, nil
}

func (s *Storage) setCheckpoint(tx *gorm.DB, stream StreamKind, next uint64) error {
	row := CheckpointRow{Stream: string(stream), NextEventID: next}
	return tx.
		Where(CheckpointRow{Stream: string(stream)}).
		Assign(CheckpointRow{NextEventID: next}).
		FirstOrCreate(&row).Error
}

// InsertDeposited transactionally inserts a page of Deposited events and
// advances the checkpoint.
func (s *Storage) InsertDeposited(events []DepositedEvent, newNext uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, e := range events {
			row := DepositedEventRow{
				DepositID:      e.DepositID,
				DepositHash:    e.DepositHash.Bytes(),
				EthBlockNumber: e.EthBlockNum,
				EthTxIndex:     e.EthTxIndex,
			}
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrap(err, "inserting deposited event")
			}
		}
		return s.setCheckpoint(tx, StreamDeposited, newNext)
	})
}

func (s *Storage) InsertDepositLeafInserted(events []DepositLeafInsertedEvent, newNext uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, e := range events {
			row := DepositLeafEventRow{
				DepositIndex:   e.DepositIndex,
				DepositHash:    e.DepositHash.Bytes(),
				EthBlockNumber: e.EthBlockNum,
				EthTxIndex:     e.EthTxIndex,
			}
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrap(err, "inserting deposit leaf event")
			}
		}
		return s.setCheckpoint(tx, StreamDepositLeafInserted, newNext)
	})
}

func (s *Storage) InsertBlockPosted(events []BlockPostedEvent, newNext uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, e := range events {
			row := FullBlockRow{
				BlockNumber:     e.BlockNumber,
				EthBlockNumber:  e.EthBlockNum,
				EthTxIndex:      e.EthTxIndex,
				PrevBlockHash:   e.PrevBlockHash.Bytes(),
				DepositTreeRoot: e.DepositTreeRoot.Bytes(),
				BlockTimestamp:  e.BlockTimestamp,
				TxTreeRoot:      e.TxTreeRoot.Bytes(),
				IsRegistration:  e.IsRegistration,
			}
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrap(err, "inserting posted block")
			}
		}
		return s.setCheckpoint(tx, StreamBlockPosted, newNext)
	})
}

// ResolveDepositInfo implements spec.md section 4.5's DepositInfo
// resolution: find the deposit-leaf event, then the minimum-time
// full_blocks row whose (eth_block_number, eth_tx_index) strictly follows
// it lexicographically.
func (s *Storage) ResolveDepositInfo(depositHash common.Hash) (*DepositInfo, error) {
	var leafEvent DepositLeafEventRow
	err := s.db.Where("deposit_hash = ?", depositHash.Bytes()).First(&leafEvent).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "looking up deposit leaf event")
	}

	var block FullBlockRow
	err = s.db.
		Where("(eth_block_number > ?) OR (eth_block_number = ? AND eth_tx_index > ?)",
			leafEvent.EthBlockNumber, leafEvent.EthBlockNumber, leafEvent.EthTxIndex).
		Order("eth_block_number ASC, eth_tx_index ASC").
		Limit(1).
		First(&block).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "resolving deposit block")
	}

	return &DepositInfo{
		DepositHash:  depositHash,
		BlockNumber:  block.BlockNumber,
		DepositIndex: leafEvent.DepositIndex,
	}, nil
}

func (s *Storage) LatestBlockNumber() (uint32, error) {
	var row FullBlockRow
	err := s.db.Order("block_number DESC").Limit(1).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading latest block number")
	}
	return row.BlockNumber, nil
}
