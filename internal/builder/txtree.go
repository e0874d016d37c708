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

// Package builder implements the block builder finite-state machine, job
// pipeline, post-block procedure and nonce manager of spec.md sections
// 4.1-4.4.
package builder

import "github.com/klaytn/intmax2-rollup/internal/common"

// TxTreeHeight is TX_TREE_HEIGHT from spec.md section 4.1: enough leaves
// for NumSendersInBlock txs.
const TxTreeHeight = 7

// NumSendersInBlock is NUM_SENDERS_IN_BLOCK from spec.md section 3.
const NumSendersInBlock = 1 << TxTreeHeight

// txTree is a fixed-height, fully in-memory Merkle tree over exactly
// NumSendersInBlock leaves, built once per propose_block call. Unlike the
// validity prover's historical trees (internal/trees), a proposal's tx tree
// is never versioned or persisted past finalize_block, so a plain slice of
// levels is the idiomatic shape here rather than reaching for the
// historical-tree abstraction.
type txTree struct {
	levels [][]common.Hash // levels[0] = leaves, levels[height] = [root]
}

func newTxTree(leaves []common.Hash) *txTree {
	if len(leaves) != NumSendersInBlock {
		panic("txTree requires exactly NumSendersInBlock leaves")
	}
	levels := make([][]common.Hash, TxTreeHeight+1)
	levels[0] = leaves
	for h := 1; h <= TxTreeHeight; h++ {
		prev := levels[h-1]
		cur := make([]common.Hash, len(prev)/2)
		for i := range cur {
			cur[i] = common.TwoToOne(prev[2*i], prev[2*i+1])
		}
		levels[h] = cur
	}
	return levels0Tree(levels)
}

func levels0Tree(levels [][]common.Hash) *txTree { return &txTree{levels: levels} }

func (t *txTree) Root() common.Hash { return t.levels[TxTreeHeight][0] }

// Prove returns the sibling hashes from leaf to root, in leaf-to-root
// order, matching trees.VerifyProof's expected layout.
func (t *txTree) Prove(position int) []common.Hash {
	proof := make([]common.Hash, TxTreeHeight)
	pos := position
	for h := 0; h < TxTreeHeight; h++ {
		siblingPos := pos ^ 1
		proof[h] = t.levels[h][siblingPos]
		pos /= 2
	}
	return proof
}

func txLeafHash(tx common.Tx) common.Hash {
	buf := make([]byte, 0, 36)
	buf = append(buf, tx.TransferTreeRoot.Bytes()...)
	buf = append(buf, byte(tx.Nonce>>24), byte(tx.Nonce>>16), byte(tx.Nonce>>8), byte(tx.Nonce))
	return common.HashBytes(buf)
}
