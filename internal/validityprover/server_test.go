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

package validityprover

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/intmax2-rollup/internal/common"
	"github.com/klaytn/intmax2-rollup/internal/observer"
	"github.com/klaytn/intmax2-rollup/internal/ratemanager"
	"github.com/klaytn/intmax2-rollup/internal/trees"
	"github.com/klaytn/intmax2-rollup/internal/witness"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&trees.HashNodeRow{}, &trees.LeafRow{}, &trees.LeavesLenRow{},
		&observer.CheckpointRow{}, &observer.FullBlockRow{},
		&observer.DepositLeafEventRow{}, &observer.DepositedEventRow{},
		&witness.ValidityWitnessRow{},
	).Error)

	store, err := trees.NewStore(db, 1024)
	require.NoError(t, err)
	gen := witness.NewGenerator(db, store)
	require.NoError(t, gen.Initialize())

	storage := observer.NewStorage(db)
	obs := observer.New(observer.DefaultConfig(), nil, storage, observer.AlwaysLeader{}, ratemanager.New(0, 0))
	require.NoError(t, storage.EnsureGenesis())

	return NewServer(obs, gen)
}

func TestBlockNumberEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/block-number", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]uint32
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, uint32(0), body["block_number"])
}

func TestGetUpdateWitnessNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/get-update-witness?block_number=99", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAccountInfoForDummyPubkey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/get-account-info?pubkey="+dummyPubkeyHex(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, true, body["registered"])
}

func dummyPubkeyHex() string {
	return hex.EncodeToString(common.DummyPubKey.Bytes())
}
