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
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// MaxBatchSize bounds save-data-batch and get-data-batch requests, per
// spec.md section 4.9.
const MaxBatchSize = 100

// Vault is the capability interface spec.md section 4.9 and the design
// notes in spec.md section 9 call for. Two implementations exist here:
// PostgresVault, and LocalBackup, which wraps another Vault and mirrors its
// writes to local files; cmd/validity-prover adds the LocalBackup wrapper
// when LOCAL_BACKUP_DIR is set.
type Vault interface {
	SaveSnapshot(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, prevDigest *common.Hash, data []byte) (common.Hash, error)
	GetSnapshot(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey) ([]byte, bool, error)
	SaveDataBatch(caller common.PubKey, hasAuth bool, entries []BatchEntry) ([]common.Hash, error)
	GetDataBatch(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, digests []common.Hash) ([][]byte, error)
	GetDataSequence(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, cursor Cursor) ([]SequenceEntry, CursorResponse, error)
}

// BatchEntry is one element of a save-data-batch request.
type BatchEntry struct {
	Topic Topic
	Owner common.PubKey
	Data  []byte
}

// SequenceEntry pairs a sequence row's metadata with its payload.
type SequenceEntry struct {
	Meta common.MetaData
	Data []byte
}

// PostgresVault is the primary Vault backend.
type PostgresVault struct {
	storage *Storage
	now     func() uint64
}

func NewPostgresVault(storage *Storage, now func() uint64) *PostgresVault {
	return &PostgresVault{storage: storage, now: now}
}

func (v *PostgresVault) SaveSnapshot(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, prevDigest *common.Hash, data []byte) (common.Hash, error) {
	if topic.Kind != KindSnapshot {
		return common.Hash{}, errors.Errorf("topic %s is not a snapshot topic", topic.Name)
	}
	if err := topic.CheckWrite(caller, owner, hasAuth, prevDigest != nil); err != nil {
		return common.Hash{}, err
	}
	digest := common.HashBytes(data)
	if err := v.storage.SaveSnapshot(owner, topic.Name, prevDigest, digest, data); err != nil {
		return common.Hash{}, err
	}
	return digest, nil
}

func (v *PostgresVault) GetSnapshot(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey) ([]byte, bool, error) {
	if err := topic.CheckRead(caller, owner, hasAuth); err != nil {
		return nil, false, err
	}
	row, err := v.storage.GetSnapshot(owner, topic.Name)
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		return nil, false, nil
	}
	return row.Data, true, nil
}

func (v *PostgresVault) SaveDataBatch(caller common.PubKey, hasAuth bool, entries []BatchEntry) ([]common.Hash, error) {
	if len(entries) > MaxBatchSize {
		return nil, errors.Wrapf(common.ErrBatchTooLarge, "got %d entries, max %d", len(entries), MaxBatchSize)
	}

	digests := make([]common.Hash, len(entries))
	rows := make([]SequenceRow, 0, len(entries))
	now := v.now()

	for i, e := range entries {
		if e.Topic.Kind != KindSequence {
			return nil, errors.Errorf("topic %s is not a sequence topic", e.Topic.Name)
		}
		if err := e.Topic.CheckWrite(caller, e.Owner, hasAuth, false); err != nil {
			return nil, err
		}
		digest := common.HashBytes(e.Data)
		digests[i] = digest
		rows = append(rows, SequenceRow{
			PubKey:    e.Owner.Bytes(),
			Topic:     e.Topic.Name,
			Timestamp: now,
			Digest:    digest.Bytes(),
			Data:      e.Data,
		})
	}

	if err := v.storage.SaveSequenceBatch(rows); err != nil {
		return nil, err
	}
	return digests, nil
}

func (v *PostgresVault) GetDataBatch(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, digests []common.Hash) ([][]byte, error) {
	if len(digests) > MaxBatchSize {
		return nil, errors.Wrapf(common.ErrBatchTooLarge, "got %d digests, max %d", len(digests), MaxBatchSize)
	}
	if err := topic.CheckRead(caller, owner, hasAuth); err != nil {
		return nil, err
	}
	rows, err := v.storage.GetSequenceByDigests(owner, topic.Name, digests)
	if err != nil {
		return nil, err
	}
	byDigest := make(map[common.Hash][]byte, len(rows))
	for _, r := range rows {
		var d common.Hash
		copy(d[:], r.Digest)
		byDigest[d] = r.Data
	}
	out := make([][]byte, len(digests))
	for i, d := range digests {
		out[i] = byDigest[d] // nil if not found, caller decides how to surface gaps
	}
	return out, nil
}

func (v *PostgresVault) GetDataSequence(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, cursor Cursor) ([]SequenceEntry, CursorResponse, error) {
	if err := topic.CheckRead(caller, owner, hasAuth); err != nil {
		return nil, CursorResponse{}, err
	}
	rows, err := v.storage.ListSequence(owner, topic.Name, cursor.Cursor, cursor.Order == OrderDesc, cursor.limit())
	if err != nil {
		return nil, CursorResponse{}, err
	}

	metas, resp := cursor.Paginate(rows)
	total, err := v.storage.CountSequence(owner, topic.Name)
	if err != nil {
		return nil, CursorResponse{}, err
	}
	resp.TotalCount = total

	entries := make([]SequenceEntry, len(metas))
	for i, m := range metas {
		entries[i] = SequenceEntry{Meta: m, Data: rows[i].Data}
	}
	return entries, resp, nil
}
