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
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// LocalBackup wraps another Vault and mirrors every successful write into
// local files (data, metadata, diff), per spec.md section 4.9, grounded on
// the three-artifact layout in
// client-sdk/src/external_api/local_backup_store_vault/local_store_vault.rs
// (see SPEC_FULL.md section 3). Each written entry gets a .data and a
// .metadata file, plus one line in a shared diff.log. Reads are passed to
// the wrapped Vault and are not mirrored. A diff.log line records the
// operation, topic, owner and digest but not the payload, which lives only
// in the .data file.
type LocalBackup struct {
	remote  Vault
	dataDir string
}

func NewLocalBackup(remote Vault, dataDir string) *LocalBackup {
	return &LocalBackup{remote: remote, dataDir: dataDir}
}

type diffEntry struct {
	Op        string          `json:"op"` // "save_snapshot" | "save_data_batch"
	Topic     string          `json:"topic"`
	Owner     string          `json:"owner"`
	Digest    string          `json:"digest"`
	Timestamp uint64          `json:"timestamp,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func (b *LocalBackup) topicDir(owner common.PubKey, topic string) string {
	return filepath.Join(b.dataDir, owner.String(), topic)
}

func (b *LocalBackup) writeArtifact(owner common.PubKey, topic string, digest common.Hash, data []byte, entry diffEntry) error {
	dir := b.topicDir(owner, topic)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "creating local backup directory")
	}

	dataPath := filepath.Join(dir, digest.String()+".data")
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		return errors.Wrap(err, "writing local backup data file")
	}

	metaPath := filepath.Join(dir, digest.String()+".metadata")
	metaBytes, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshaling local backup metadata")
	}
	if err := os.WriteFile(metaPath, metaBytes, 0o600); err != nil {
		return errors.Wrap(err, "writing local backup metadata file")
	}

	diffPath := filepath.Join(b.dataDir, "diff.log")
	f, err := os.OpenFile(diffPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "opening local backup diff log")
	}
	defer f.Close()
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshaling diff log entry")
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "appending to local backup diff log")
	}
	return nil
}

func (b *LocalBackup) SaveSnapshot(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, prevDigest *common.Hash, data []byte) (common.Hash, error) {
	digest, err := b.remote.SaveSnapshot(caller, hasAuth, topic, owner, prevDigest, data)
	if err != nil {
		return common.Hash{}, err
	}
	err = b.writeArtifact(owner, topic.Name, digest, data, diffEntry{
		Op: "save_snapshot", Topic: topic.Name, Owner: owner.String(), Digest: digest.String(),
	})
	return digest, err
}

func (b *LocalBackup) GetSnapshot(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey) ([]byte, bool, error) {
	return b.remote.GetSnapshot(caller, hasAuth, topic, owner)
}

func (b *LocalBackup) SaveDataBatch(caller common.PubKey, hasAuth bool, entries []BatchEntry) ([]common.Hash, error) {
	digests, err := b.remote.SaveDataBatch(caller, hasAuth, entries)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		if err := b.writeArtifact(e.Owner, e.Topic.Name, digests[i], e.Data, diffEntry{
			Op: "save_data_batch", Topic: e.Topic.Name, Owner: e.Owner.String(), Digest: digests[i].String(),
		}); err != nil {
			return nil, err
		}
	}
	return digests, nil
}

func (b *LocalBackup) GetDataBatch(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, digests []common.Hash) ([][]byte, error) {
	return b.remote.GetDataBatch(caller, hasAuth, topic, owner, digests)
}

func (b *LocalBackup) GetDataSequence(caller common.PubKey, hasAuth bool, topic Topic, owner common.PubKey, cursor Cursor) ([]SequenceEntry, CursorResponse, error) {
	return b.remote.GetDataSequence(caller, hasAuth, topic, owner, cursor)
}

var _ Vault = (*LocalBackup)(nil)
var _ Vault = (*PostgresVault)(nil)
