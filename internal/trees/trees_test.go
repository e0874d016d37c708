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
	"math/big"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&HashNodeRow{}, &LeafRow{}, &LeavesLenRow{}).Error)
	store, err := NewStore(db, 1024)
	require.NoError(t, err)
	return store
}

func TestIncrementalPushAndProve(t *testing.T) {
	store := newTestStore(t)
	tree := NewIncremental(store, 1, 4, common.HashBytes)

	for i, leaf := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		pos, err := tree.Push(uint64(10+i), leaf)
		require.NoError(t, err)
		require.EqualValues(t, i, pos)
	}

	root, err := tree.GetRoot(12)
	require.NoError(t, err)
	require.False(t, root.IsZero())

	proof, err := tree.Prove(12, 1)
	require.NoError(t, err)
	require.Len(t, proof, 4)

	got, err := VerifyProof(common.HashBytes([]byte("b")), 1, 4, proof)
	require.NoError(t, err)
	require.Equal(t, root, got)
}

// TestIncrementalReadYourWrites exercises P3 from spec.md section 8.
func TestIncrementalReadYourWrites(t *testing.T) {
	store := newTestStore(t)
	tree := NewIncremental(store, 2, 3, common.HashBytes)

	require.NoError(t, tree.UpdateLeaf(5, 0, []byte("v1")))

	got, err := tree.GetLeaf(5, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	got, err = tree.GetLeaf(100, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	require.NoError(t, tree.Reset(5))

	got, err = tree.GetLeaf(5, 0)
	require.NoError(t, err)
	require.Nil(t, got)
}

// TestIndexedInsertOrdering exercises P4 from spec.md section 8.
func TestIndexedInsertOrdering(t *testing.T) {
	store := newTestStore(t)
	tree := NewIndexed(store, 3, 8)
	require.NoError(t, tree.Initialize(0))

	keys := []int64{50, 10, 30}
	for _, k := range keys {
		_, err := tree.Insert(1, big.NewInt(k), uint64(k))
		require.NoError(t, err)
	}

	// Walk the linked list from the sentinel and assert strictly
	// ascending order, terminating at NextKey == 0.
	leaf, err := tree.GetLeaf(1, 0)
	require.NoError(t, err)

	var seen []int64
	pos := leaf.NextIndex
	cur := leaf
	for cur.NextKey.Sign() != 0 || len(seen) == 0 {
		next, err := tree.GetLeaf(1, pos)
		require.NoError(t, err)
		seen = append(seen, next.Key.Int64())
		if next.NextKey.Sign() == 0 {
			break
		}
		pos = next.NextIndex
		cur = next
	}

	require.Equal(t, []int64{10, 30, 50}, seen)
}

func TestIndexedDuplicateInsertRejected(t *testing.T) {
	store := newTestStore(t)
	tree := NewIndexed(store, 4, 8)
	require.NoError(t, tree.Initialize(0))

	_, err := tree.Insert(1, big.NewInt(7), 1)
	require.NoError(t, err)

	_, err = tree.Insert(1, big.NewInt(7), 2)
	require.Error(t, err)
}
