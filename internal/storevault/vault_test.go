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

package storevault

import (
	"errors"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

func newTestVault(t *testing.T) *PostgresVault {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&SnapshotRow{}, &SequenceRow{}).Error)
	storage := NewStorage(db)

	clock := uint64(0)
	return NewPostgresVault(storage, func() uint64 {
		clock++
		return clock
	})
}

func pk(b byte) common.PubKey {
	var p common.PubKey
	p[31] = b
	return p
}

// TestSnapshotCASContention exercises P8 / scenario 3 from spec.md section 8.
func TestSnapshotCASContention(t *testing.T) {
	v := newTestVault(t)
	owner := pk(1)
	topic := Topic{Name: "user-data", ReadRight: AuthRead, WriteRight: AuthWrite, Kind: KindSnapshot}

	d0, err := v.SaveSnapshot(owner, true, topic, owner, nil, []byte("v0"))
	require.NoError(t, err)

	_, err = v.SaveSnapshot(owner, true, topic, owner, &d0, []byte("v1"))
	require.NoError(t, err)

	// Second racer still holding the stale prev digest loses.
	_, err = v.SaveSnapshot(owner, true, topic, owner, &d0, []byte("v2"))
	require.True(t, errors.Is(err, common.ErrLockError))

	data, ok, err := v.GetSnapshot(owner, true, topic, owner)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), data)
}

func TestSnapshotACLRejectsWrongWriter(t *testing.T) {
	v := newTestVault(t)
	owner := pk(1)
	attacker := pk(2)
	topic := Topic{Name: "user-data", ReadRight: AuthRead, WriteRight: AuthWrite, Kind: KindSnapshot}

	_, err := v.SaveSnapshot(attacker, true, topic, owner, nil, []byte("evil"))
	require.True(t, errors.Is(err, common.ErrForbidden))
}

func TestSaveDataBatchDeduplicatesByDigest(t *testing.T) {
	v := newTestVault(t)
	owner := pk(1)
	topic := Topic{Name: "transfers", ReadRight: OpenRead, WriteRight: OpenWrite, Kind: KindSequence}

	digests1, err := v.SaveDataBatch(owner, true, []BatchEntry{{Topic: topic, Owner: owner, Data: []byte("same")}})
	require.NoError(t, err)

	digests2, err := v.SaveDataBatch(owner, true, []BatchEntry{{Topic: topic, Owner: owner, Data: []byte("same")}})
	require.NoError(t, err)
	require.Equal(t, digests1, digests2)

	total, err := v.storage.CountSequence(owner, topic.Name)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestSaveDataBatchRejectsOversizedBatch(t *testing.T) {
	v := newTestVault(t)
	owner := pk(1)
	topic := Topic{Name: "transfers", ReadRight: OpenRead, WriteRight: OpenWrite, Kind: KindSequence}

	entries := make([]BatchEntry, MaxBatchSize+1)
	for i := range entries {
		entries[i] = BatchEntry{Topic: topic, Owner: owner, Data: []byte{byte(i)}}
	}

	_, err := v.SaveDataBatch(owner, true, entries)
	require.True(t, errors.Is(err, common.ErrBatchTooLarge))
}

func TestGetDataSequencePaginates(t *testing.T) {
	v := newTestVault(t)
	owner := pk(1)
	topic := Topic{Name: "transfers", ReadRight: OpenRead, WriteRight: OpenWrite, Kind: KindSequence}

	for i := 0; i < 5; i++ {
		_, err := v.SaveDataBatch(owner, true, []BatchEntry{{Topic: topic, Owner: owner, Data: []byte{byte(i)}}})
		require.NoError(t, err)
	}

	limit := 2
	entries, resp, err := v.GetDataSequence(owner, true, topic, owner, Cursor{Order: OrderAsc, Limit: &limit})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, resp.HasMore)
	require.Equal(t, 5, resp.TotalCount)
	require.NotNil(t, resp.NextCursor)

	entries2, resp2, err := v.GetDataSequence(owner, true, topic, owner, Cursor{Order: OrderAsc, Limit: &limit, Cursor: resp.NextCursor})
	require.NoError(t, err)
	require.Len(t, entries2, 2)
	require.True(t, resp2.HasMore)

	entries3, resp3, err := v.GetDataSequence(owner, true, topic, owner, Cursor{Order: OrderAsc, Limit: &limit, Cursor: resp2.NextCursor})
	require.NoError(t, err)
	require.Len(t, entries3, 1)
	require.False(t, resp3.HasMore)
}
