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

package trees

import (
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// LeafHasher turns an arbitrary leaf value into its content hash. Each tree
// instance (account tree, block-hash tree, deposit-hash tree) supplies its
// own, since the leaf payload type differs per tree.
type LeafHasher func(leaf []byte) common.Hash

// Incremental is the append-mostly, update-by-position Merkle tree of
// spec.md section 4.6. Tag partitions the physical tables so multiple
// logical trees can share one Store.
type Incremental struct {
	store  *Store
	tag    uint32
	height int
	hash   LeafHasher
}

func NewIncremental(store *Store, tag uint32, height int, hash LeafHasher) *Incremental {
	return &Incremental{store: store, tag: tag, height: height, hash: hash}
}

func (t *Incremental) Height() int { return t.height }

func (t *Incremental) Len(ts uint64) (uint64, error) {
	return t.store.Len(t.tag, ts)
}

func (t *Incremental) GetRoot(ts uint64) (common.Hash, error) {
	return t.store.GetNode(t.tag, "", ts, t.height)
}

func (t *Incremental) GetLeaf(ts uint64, position uint64) ([]byte, error) {
	row, err := t.store.GetLeafRow(t.tag, position, ts)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return row.Leaf, nil
}

// Push appends leaf at the next available position (Len(ts)) and returns
// the position it was written to.
func (t *Incremental) Push(ts uint64, leaf []byte) (uint64, error) {
	length, err := t.store.Len(t.tag, ts)
	if err != nil {
		return 0, err
	}
	if err := t.updateLeaf(ts, length, leaf, length+1); err != nil {
		return 0, err
	}
	return length, nil
}

// UpdateLeaf overwrites the leaf at position (which must already exist,
// i.e. position < Len(ts)) and recomputes the root path, per spec.md
// section 4.6's update_leaf algorithm.
func (t *Incremental) UpdateLeaf(ts, position uint64, leaf []byte) error {
	length, err := t.store.Len(t.tag, ts)
	if err != nil {
		return err
	}
	newLen := length
	if position >= length {
		newLen = position + 1
	}
	return t.updateLeaf(ts, position, leaf, newLen)
}

func (t *Incremental) updateLeaf(ts, position uint64, leaf []byte, newLen uint64) error {
	return t.store.Transaction(func(s *Store) error {
		h := t.hash(leaf)
		if err := s.PutLeaf(t.tag, position, ts, h, leaf); err != nil {
			return err
		}
		if err := s.SetLen(t.tag, ts, newLen); err != nil {
			return err
		}

		path := bitPath(position, t.height)
		if err := s.PutNode(t.tag, path, ts, h); err != nil {
			return err
		}
		for len(path) > 0 {
			bit, parent := lastBit(path)
			siblingHeight := t.height - len(parent) - 1
			sib, err := s.GetNode(t.tag, siblingPath(path), ts, siblingHeight)
			if err != nil {
				return err
			}
			if bit == '1' {
				h = common.TwoToOne(sib, h)
			} else {
				h = common.TwoToOne(h, sib)
			}
			path = parent
			if err := s.PutNode(t.tag, path, ts, h); err != nil {
				return err
			}
		}
		return nil
	})
}

// Prove returns the sibling hashes gathered walking from position to the
// root, in leaf-to-root order, the same walk UpdateLeaf performs.
func (t *Incremental) Prove(ts, position uint64) ([]common.Hash, error) {
	path := bitPath(position, t.height)
	siblings := make([]common.Hash, 0, t.height)
	for len(path) > 0 {
		_, parent := lastBit(path)
		siblingHeight := t.height - len(parent) - 1
		sib, err := t.store.GetNode(t.tag, siblingPath(path), ts, siblingHeight)
		if err != nil {
			return nil, err
		}
		siblings = append(siblings, sib)
		path = parent
	}
	return siblings, nil
}

// Reset deletes all versioned rows for this tree's tag with timestamp >= ts.
func (t *Incremental) Reset(ts uint64) error {
	return t.store.Reset(t.tag, ts)
}

// VerifyProof recomputes the root from a leaf hash, its position and a
// sibling list, for use by HTTP handlers returning merkle proofs to
// clients (spec.md section 6's get-block-merkle-proof /
// get-deposit-merkle-proof).
func VerifyProof(leafHash common.Hash, position uint64, height int, siblings []common.Hash) (common.Hash, error) {
	if len(siblings) != height {
		return common.Hash{}, errors.Errorf("expected %d siblings, got %d", height, len(siblings))
	}
	h := leafHash
	for i := 0; i < height; i++ {
		bit := (position >> uint(i)) & 1
		if bit == 1 {
			h = common.TwoToOne(siblings[i], h)
		} else {
			h = common.TwoToOne(h, siblings[i])
		}
	}
	return h, nil
}
