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

// Package witness combines observer output and the historical trees into a
// per-block ValidityWitness, per spec.md section 4.7.
package witness

import (
	"math/big"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
	"github.com/klaytn/intmax2-rollup/internal/observer"
	"github.com/klaytn/intmax2-rollup/internal/trees"
)

var logger = common.NewModuleLogger("witness")

// Tags partition the three logical trees inside the shared hash_nodes /
// leaves / leaves_len tables, per spec.md section 4.6.
const (
	TagAccountTree     uint32 = 1
	TagBlockHashTree   uint32 = 2
	TagDepositHashTree uint32 = 3
)

const (
	AccountTreeHeight     = 32
	BlockHashTreeHeight   = 32
	DepositHashTreeHeight = 32
)

// ValidityWitnessRow is the per-block persisted witness of spec.md section
// 4.7, keyed by block number.
type ValidityWitnessRow struct {
	BlockNumber     uint32 `gorm:"primary_key;column:block_number"`
	TxTreeRoot      []byte `gorm:"column:tx_tree_root;index"`
	BlockHash       []byte `gorm:"column:block_hash"`
	AccountTreeRoot []byte `gorm:"column:account_tree_root"`
	IsRegistration  bool   `gorm:"column:is_registration"`
}

func (ValidityWitnessRow) TableName() string { return "validity_witnesses" }

// ValidityWitness is the in-memory form of a persisted row, combined with
// the update witnesses produced while integrating the block (needed by the
// prover coordinator to build the recursive transition proof input).
type ValidityWitness struct {
	BlockNumber     uint32
	TxTreeRoot      common.Hash
	BlockHash       common.Hash
	AccountTreeRoot common.Hash
	IsRegistration  bool

	AccountUpdates []*trees.InsertionWitness // registration blocks only
}

// Generator owns the three historical trees and the validity-witness
// table.
type Generator struct {
	db                *gorm.DB
	accountTree       *trees.Indexed
	blockHashTree     *trees.Incremental
	depositHashTree   *trees.Incremental
}

func NewGenerator(db *gorm.DB, store *trees.Store) *Generator {
	return &Generator{
		db:              db,
		accountTree:     trees.NewIndexed(store, TagAccountTree, AccountTreeHeight),
		blockHashTree:   trees.NewIncremental(store, TagBlockHashTree, BlockHashTreeHeight, common.HashBytes),
		depositHashTree: trees.NewIncremental(store, TagDepositHashTree, DepositHashTreeHeight, common.HashBytes),
	}
}

// Initialize writes the account tree's sentinel + dummy-pubkey leaves at
// timestamp 0, per spec.md section 4.6's initialization requirement. Must
// be called once before the first block is integrated.
func (g *Generator) Initialize() error {
	if err := g.accountTree.Initialize(0); err != nil {
		return errors.Wrap(err, "initializing account tree sentinel")
	}
	dummyKey := pubkeyToKey(common.DummyPubKey)
	if _, err := g.accountTree.Insert(0, dummyKey, 0); err != nil {
		return errors.Wrap(err, "initializing dummy pubkey leaf")
	}
	return nil
}

func pubkeyToKey(pk common.PubKey) *big.Int {
	return new(big.Int).SetBytes(pk[:])
}

// IntegrateBlock applies a newly observed block's sender set into the
// account tree (as of timestamp == block number), pushes the block hash and
// any new deposit hashes, and persists the resulting ValidityWitness, per
// spec.md section 4.7.
func (g *Generator) IntegrateBlock(block observer.BlockPostedEvent, newDepositHashes []common.Hash) (*ValidityWitness, error) {
	ts := uint64(block.BlockNumber)

	var updates []*trees.InsertionWitness
	if block.IsRegistration {
		for _, pk := range block.PubKeys {
			if pk.IsDummy() {
				continue
			}
			key := pubkeyToKey(pk)
			if _, present, err := g.accountTree.Index(ts, key); err != nil {
				return nil, errors.Wrap(err, "checking existing account")
			} else if present {
				continue // already registered; elimination is handled upstream in the builder
			}
			w, err := g.accountTree.Insert(ts, key, uint64(block.BlockNumber))
			if err != nil {
				return nil, errors.Wrapf(err, "registering pubkey %s", pk)
			}
			updates = append(updates, w)
		}
	} else {
		for i, pk := range block.PubKeys {
			if pk.IsDummy() {
				continue
			}
			key := pubkeyToKey(pk)
			value := uint64(block.BlockNumber)
			if i < len(block.AccountIDs) {
				value = block.AccountIDs[i]
			}
			if err := g.accountTree.Update(ts, key, value); err != nil {
				return nil, errors.Wrapf(err, "updating account for pubkey %s", pk)
			}
		}
	}

	blockHash := common.TwoToOne(block.PrevBlockHash, common.HashBytes(block.TxTreeRoot.Bytes()))
	if _, err := g.blockHashTree.Push(ts, blockHash.Bytes()); err != nil {
		return nil, errors.Wrap(err, "pushing block hash")
	}

	for _, dh := range newDepositHashes {
		if _, err := g.depositHashTree.Push(ts, dh.Bytes()); err != nil {
			return nil, errors.Wrap(err, "pushing deposit hash")
		}
	}

	accountRoot, err := g.accountTree.GetRoot(ts)
	if err != nil {
		return nil, err
	}

	w := &ValidityWitness{
		BlockNumber:     block.BlockNumber,
		TxTreeRoot:      block.TxTreeRoot,
		BlockHash:       blockHash,
		AccountTreeRoot: accountRoot,
		IsRegistration:  block.IsRegistration,
		AccountUpdates:  updates,
	}

	row := ValidityWitnessRow{
		BlockNumber:     w.BlockNumber,
		TxTreeRoot:      w.TxTreeRoot.Bytes(),
		BlockHash:       w.BlockHash.Bytes(),
		AccountTreeRoot: w.AccountTreeRoot.Bytes(),
		IsRegistration:  w.IsRegistration,
	}
	if err := g.db.Create(&row).Error; err != nil {
		return nil, errors.Wrapf(err, "persisting validity witness for block %d", w.BlockNumber)
	}
	return w, nil
}

// GetValidityWitness reads a previously-persisted witness by block number.
func (g *Generator) GetValidityWitness(blockNumber uint32) (*ValidityWitness, error) {
	var row ValidityWitnessRow
	err := g.db.Where("block_number = ?", blockNumber).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading validity witness for block %d", blockNumber)
	}
	w := &ValidityWitness{BlockNumber: row.BlockNumber, IsRegistration: row.IsRegistration}
	copy(w.TxTreeRoot[:], row.TxTreeRoot)
	copy(w.BlockHash[:], row.BlockHash)
	copy(w.AccountTreeRoot[:], row.AccountTreeRoot)
	return w, nil
}

// GetBlockNumberByTxTreeRoot answers spec.md section 6's
// get-block-number-by-tx-tree-root.
func (g *Generator) GetBlockNumberByTxTreeRoot(root common.Hash) (uint32, error) {
	var row ValidityWitnessRow
	err := g.db.Where("tx_tree_root = ?", root.Bytes()).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, common.ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "looking up block by tx tree root")
	}
	return row.BlockNumber, nil
}

// GetAccountInfo answers spec.md section 6's get-account-info: whether a
// pubkey has an account id yet, and if so which.
func (g *Generator) GetAccountInfo(ts uint64, pk common.PubKey) (accountID uint64, registered bool, err error) {
	key := pubkeyToKey(pk)
	pos, present, err := g.accountTree.Index(ts, key)
	if err != nil || !present {
		return 0, false, err
	}
	leaf, err := g.accountTree.GetLeaf(ts, pos)
	if err != nil {
		return 0, false, err
	}
	return leaf.Value, true, nil
}

// GetBlockMerkleProof answers spec.md section 6's get-block-merkle-proof.
func (g *Generator) GetBlockMerkleProof(rootBlockNumber, leafBlockNumber uint32) ([]common.Hash, error) {
	return g.blockHashTree.Prove(uint64(rootBlockNumber), uint64(leafBlockNumber))
}

// GetDepositMerkleProof answers spec.md section 6's get-deposit-merkle-proof.
func (g *Generator) GetDepositMerkleProof(blockNumber uint32, depositIndex uint64) ([]common.Hash, error) {
	return g.depositHashTree.Prove(uint64(blockNumber), depositIndex)
}
