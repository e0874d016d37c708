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
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// SnapshotRow is at most one row per (pubkey, topic), per spec.md section
// 4.9.
type SnapshotRow struct {
	PubKey []byte `gorm:"primary_key;column:pubkey"`
	Topic  string `gorm:"primary_key;column:topic"`
	Digest []byte `gorm:"column:digest"`
	Data   []byte `gorm:"column:data"`
}

func (SnapshotRow) TableName() string { return "snapshots" }

// SequenceRow is one append-only log entry.
type SequenceRow struct {
	PubKey    []byte `gorm:"column:pubkey;index:idx_seq_pubkey_topic"`
	Topic     string `gorm:"column:topic;index:idx_seq_pubkey_topic"`
	Timestamp uint64 `gorm:"column:timestamp"`
	Digest    []byte `gorm:"primary_key;column:digest"`
	Data      []byte `gorm:"column:data"`
}

func (SequenceRow) TableName() string { return "sequence_data" }

type Storage struct {
	db *gorm.DB
}

func NewStorage(db *gorm.DB) *Storage { return &Storage{db: db} }

// GetSnapshot returns the current digest+data for (pubkey, topic), or nil
// if absent.
func (s *Storage) GetSnapshot(pubkey common.PubKey, topic string) (*SnapshotRow, error) {
	var row SnapshotRow
	err := s.db.Where("pubkey = ? AND topic = ?", pubkey.Bytes(), topic).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot pubkey=%s topic=%s", pubkey, topic)
	}
	return &row, nil
}

// SaveSnapshot performs the compare-and-set write of spec.md section 4.9:
// if a row already exists, its digest must equal prevDigest or the write
// fails with common.ErrLockError; if no row exists, prevDigest must be
// absent (nil).
func (s *Storage) SaveSnapshot(pubkey common.PubKey, topic string, prevDigest *common.Hash, newDigest common.Hash, data []byte) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing SnapshotRow
		q := tx
		// Row locking is only requested on Postgres; SQLite has no
		// SELECT ... FOR UPDATE.
		if tx.Dialect().GetName() == "postgres" {
			q = tx.Set("gorm:query_option", "FOR UPDATE")
		}
		err := q.
			Where("pubkey = ? AND topic = ?", pubkey.Bytes(), topic).
			First(&existing).Error

		switch {
		case err == gorm.ErrRecordNotFound:
			if prevDigest != nil {
				return errors.Wrapf(common.ErrLockError, "no existing snapshot but prev_digest supplied")
			}
			row := SnapshotRow{PubKey: pubkey.Bytes(), Topic: topic, Digest: newDigest.Bytes(), Data: data}
			return errors.Wrap(tx.Create(&row).Error, "creating snapshot")

		case err != nil:
			return errors.Wrap(err, "reading existing snapshot for CAS")

		default:
			if prevDigest == nil || !bytesEqual(existing.Digest, prevDigest.Bytes()) {
				return common.ErrLockError
			}
			existing.Digest = newDigest.Bytes()
			existing.Data = data
			return errors.Wrap(tx.Save(&existing).Error, "updating snapshot")
		}
	})
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SaveSequenceBatch inserts new (pubkey, topic, timestamp, digest, data)
// rows, silently skipping rows whose digest already exists (duplicate
// writes are deduplicated by content address, per spec.md section 4.9).
func (s *Storage) SaveSequenceBatch(rows []SequenceRow) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			var existing SequenceRow
			err := tx.Where("digest = ?", row.Digest).First(&existing).Error
			if err == nil {
				continue // duplicate: already stored, skip silently
			}
			if err != gorm.ErrRecordNotFound {
				return errors.Wrap(err, "checking for duplicate sequence row")
			}
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrap(err, "inserting sequence row")
			}
		}
		return nil
	})
}

// GetSequenceByDigests returns rows matching any of the given digests for
// (pubkey, topic).
func (s *Storage) GetSequenceByDigests(pubkey common.PubKey, topic string, digests []common.Hash) ([]SequenceRow, error) {
	raw := make([][]byte, len(digests))
	for i, d := range digests {
		raw[i] = d.Bytes()
	}
	var rows []SequenceRow
	err := s.db.
		Where("pubkey = ? AND topic = ? AND digest IN (?)", pubkey.Bytes(), topic, raw).
		Find(&rows).Error
	return rows, errors.Wrap(err, "reading sequence rows by digest")
}

// ListSequence returns rows for (pubkey, topic) ordered by (timestamp,
// digest), optionally starting strictly after cursor, bounded to limit+1
// rows so the caller can compute has_more by trimming, per spec.md section
// 4.9's cursor semantics.
func (s *Storage) ListSequence(pubkey common.PubKey, topic string, cursor *common.MetaData, desc bool, limit int) ([]SequenceRow, error) {
	q := s.db.Where("pubkey = ? AND topic = ?", pubkey.Bytes(), topic)

	if cursor != nil {
		if desc {
			q = q.Where("(timestamp < ?) OR (timestamp = ? AND digest < ?)",
				cursor.Timestamp, cursor.Timestamp, cursor.Digest.Bytes())
		} else {
			q = q.Where("(timestamp > ?) OR (timestamp = ? AND digest > ?)",
				cursor.Timestamp, cursor.Timestamp, cursor.Digest.Bytes())
		}
	}

	if desc {
		q = q.Order("timestamp DESC, digest DESC")
	} else {
		q = q.Order("timestamp ASC, digest ASC")
	}

	var rows []SequenceRow
	err := q.Limit(limit + 1).Find(&rows).Error
	return rows, errors.Wrap(err, "listing sequence rows")
}

// CountSequence returns the total row count for (pubkey, topic), used for
// MetaDataCursorResponse.total_count.
func (s *Storage) CountSequence(pubkey common.PubKey, topic string) (int, error) {
	var count int
	err := s.db.Model(&SequenceRow{}).Where("pubkey = ? AND topic = ?", pubkey.Bytes(), topic).Count(&count).Error
	return count, errors.Wrap(err, "counting sequence rows")
}
