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
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRestServer(t *testing.T) *RestServer {
	t.Helper()
	v := newTestVault(t)
	registry := NewRegistry()
	registry.Register(Topic{Name: "user-data", ReadRight: OpenRead, WriteRight: OpenWrite, Kind: KindSnapshot})
	return NewRestServer(v, registry)
}

func TestRestSaveAndGetSnapshot(t *testing.T) {
	s := newTestRestServer(t)
	owner := pk(1)

	body, _ := json.Marshal(saveSnapshotRequest{Topic: "user-data", PubKey: hex.EncodeToString(owner.Bytes()), Data: []byte("hello")})
	req := httptest.NewRequest(http.MethodPost, "/save-snapshot", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getBody, _ := json.Marshal(getSnapshotRequest{Topic: "user-data", PubKey: hex.EncodeToString(owner.Bytes())})
	getReq := httptest.NewRequest(http.MethodPost, "/get-snapshot", bytes.NewReader(getBody))
	getRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(getRec.Body).Decode(&resp))
	require.NotNil(t, resp["data"])
}

func TestRestUnknownTopicRejected(t *testing.T) {
	s := newTestRestServer(t)
	body, _ := json.Marshal(saveSnapshotRequest{Topic: "does-not-exist", PubKey: hex.EncodeToString(pk(1).Bytes()), Data: []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/save-snapshot", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusOK, rec.Code)
}
