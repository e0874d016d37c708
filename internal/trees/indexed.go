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
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// IndexedLeaf is the sorted-key linked-list leaf of spec.md section 4.6:
// Key is the sort key (e.g. a pubkey interpreted as a big-endian integer),
// Value is the associated payload (e.g. an account id or block number),
// and NextIndex/NextKey link to the leaf with the next-higher key, forming
// a circular list terminated by NextKey == 0.
type IndexedLeaf struct {
	Key       *big.Int
	Value     uint64
	NextIndex uint64
	NextKey   *big.Int
}

func (l IndexedLeaf) encode() []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, pad32(l.Key)...)
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], l.Value)
	buf = append(buf, v[:]...)
	var ni [8]byte
	binary.BigEndian.PutUint64(ni[:], l.NextIndex)
	buf = append(buf, ni[:]...)
	buf = append(buf, pad32(l.NextKey)...)
	return buf
}

func decodeIndexedLeaf(b []byte) IndexedLeaf {
	if len(b) < 80 {
		return IndexedLeaf{Key: big.NewInt(0), NextKey: big.NewInt(0)}
	}
	return IndexedLeaf{
		Key:       new(big.Int).SetBytes(b[0:32]),
		Value:     binary.BigEndian.Uint64(b[32:40]),
		NextIndex: binary.BigEndian.Uint64(b[40:48]),
		NextKey:   new(big.Int).SetBytes(b[48:80]),
	}
}

func pad32(v *big.Int) []byte {
	b := v.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func hashIndexedLeaf(b []byte) common.Hash { return common.HashBytes(b) }

// Indexed wraps an Incremental tree with the low-leaf insertion trick.
type Indexed struct {
	inc *Incremental
}

// NewIndexed wraps store/tag/height as an indexed tree. Callers must call
// Initialize once before any other operation, per spec.md section 4.6.
func NewIndexed(store *Store, tag uint32, height int) *Indexed {
	return &Indexed{inc: NewIncremental(store, tag, height, hashIndexedLeaf)}
}

// Initialize writes the zero sentinel leaf at position 0, timestamp 0.
// The account tree additionally requires a dummy_pubkey -> 0 leaf at
// position 1, timestamp 0; callers needing that call Insert themselves
// right after Initialize (see witness generator's account tree setup).
func (t *Indexed) Initialize(ts uint64) error {
	sentinel := IndexedLeaf{Key: big.NewInt(0), Value: 0, NextIndex: 0, NextKey: big.NewInt(0)}
	_, err := t.inc.Push(ts, sentinel.encode())
	return err
}

func (t *Indexed) GetLeaf(ts, position uint64) (IndexedLeaf, error) {
	b, err := t.inc.GetLeaf(ts, position)
	if err != nil {
		return IndexedLeaf{}, err
	}
	if b == nil {
		return IndexedLeaf{}, common.ErrNotFound
	}
	return decodeIndexedLeaf(b), nil
}

func (t *Indexed) Len(ts uint64) (uint64, error) { return t.inc.Len(ts) }

func (t *Indexed) GetRoot(ts uint64) (common.Hash, error) { return t.inc.GetRoot(ts) }

// findLowLeaf scans leaves 0..Len(ts) for the unique leaf satisfying
// key < k && (k < next_key || next_key == 0), per spec.md section 4.6's
// "low-index semantics". O(n) scan over every leaf in the tree, one read
// per leaf.
func (t *Indexed) findLowLeaf(ts uint64, key *big.Int) (position uint64, leaf IndexedLeaf, err error) {
	n, err := t.Len(ts)
	if err != nil {
		return 0, IndexedLeaf{}, err
	}
	var (
		found   bool
		foundAt uint64
		foundLf IndexedLeaf
	)
	for i := uint64(0); i < n; i++ {
		lf, err := t.GetLeaf(ts, i)
		if err != nil {
			return 0, IndexedLeaf{}, err
		}
		if lf.Key.Cmp(key) >= 0 {
			continue
		}
		isLast := lf.NextKey.Sign() == 0
		if isLast || key.Cmp(lf.NextKey) < 0 {
			if found {
				return 0, IndexedLeaf{}, errors.Errorf("indexed tree invariant violated: multiple low leaves for key %s", key)
			}
			found, foundAt, foundLf = true, i, lf
		}
	}
	if !found {
		return 0, IndexedLeaf{}, errors.Errorf("indexed tree invariant violated: no low leaf for key %s", key)
	}
	return foundAt, foundLf, nil
}

// Index returns the leaf position holding key, if present.
func (t *Indexed) Index(ts uint64, key *big.Int) (uint64, bool, error) {
	n, err := t.Len(ts)
	if err != nil {
		return 0, false, err
	}
	for i := uint64(0); i < n; i++ {
		lf, err := t.GetLeaf(ts, i)
		if err != nil {
			return 0, false, err
		}
		if lf.Key.Cmp(key) == 0 {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// InsertionWitness carries the data needed to prove an Insert happened, for
// downstream ValidityWitness construction.
type InsertionWitness struct {
	LowLeafPosition uint64
	LowLeafProof    []common.Hash
	LowLeafBefore   IndexedLeaf
	NewLeafPosition uint64
	NewLeafProof    []common.Hash
}

// Insert links a new (key, value) leaf between the low leaf and its
// previous successor, preserving the circular-ordered linked list (spec.md
// section 4.6). Insert fails if key is already present.
func (t *Indexed) Insert(ts uint64, key *big.Int, value uint64) (*InsertionWitness, error) {
	if _, present, err := t.Index(ts, key); err != nil {
		return nil, err
	} else if present {
		return nil, errors.Errorf("key %s already present", key)
	}

	lowPos, low, err := t.findLowLeaf(ts, key)
	if err != nil {
		return nil, err
	}
	lowProof, err := t.inc.Prove(ts, lowPos)
	if err != nil {
		return nil, err
	}

	newPos, err := t.Len(ts)
	if err != nil {
		return nil, err
	}

	updatedLow := low
	updatedLow.NextIndex = newPos
	updatedLow.NextKey = key
	if err := t.inc.UpdateLeaf(ts, lowPos, updatedLow.encode()); err != nil {
		return nil, err
	}

	newLeaf := IndexedLeaf{Key: key, Value: value, NextIndex: low.NextIndex, NextKey: low.NextKey}
	if _, err := t.inc.Push(ts, newLeaf.encode()); err != nil {
		return nil, err
	}
	newProof, err := t.inc.Prove(ts, newPos)
	if err != nil {
		return nil, err
	}

	return &InsertionWitness{
		LowLeafPosition: lowPos,
		LowLeafProof:    lowProof,
		LowLeafBefore:   low,
		NewLeafPosition: newPos,
		NewLeafProof:    newProof,
	}, nil
}

// Update overwrites the Value of an existing key's leaf in place (used by
// non-registration blocks to bump an existing account's associated block
// number, for example).
func (t *Indexed) Update(ts uint64, key *big.Int, value uint64) error {
	pos, present, err := t.Index(ts, key)
	if err != nil {
		return err
	}
	if !present {
		return errors.Wrapf(common.ErrNotFound, "key %s", key)
	}
	lf, err := t.GetLeaf(ts, pos)
	if err != nil {
		return err
	}
	lf.Value = value
	return t.inc.UpdateLeaf(ts, pos, lf.encode())
}

// ProveMembership returns the merkle proof for key's current leaf.
func (t *Indexed) ProveMembership(ts uint64, key *big.Int) (uint64, []common.Hash, error) {
	pos, present, err := t.Index(ts, key)
	if err != nil {
		return 0, nil, err
	}
	if !present {
		return 0, nil, common.ErrNotFound
	}
	proof, err := t.inc.Prove(ts, pos)
	return pos, proof, err
}

// ProveNonInclusion returns the low leaf and its proof, demonstrating key is
// absent from the tree at ts.
func (t *Indexed) ProveNonInclusion(ts uint64, key *big.Int) (uint64, IndexedLeaf, []common.Hash, error) {
	pos, low, err := t.findLowLeaf(ts, key)
	if err != nil {
		return 0, IndexedLeaf{}, nil, err
	}
	proof, err := t.inc.Prove(ts, pos)
	return pos, low, proof, err
}

func (t *Indexed) Reset(ts uint64) error { return t.inc.Reset(ts) }
