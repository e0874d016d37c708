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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

var logger = common.NewModuleLogger("storevault")

// Auth is the signed request header described in spec.md section 6; BLS
// verification of the aggregate signature against the request's content
// hash is out of scope here (see DESIGN.md) — RestServer trusts a
// pre-verified Auth the way the teacher's RPC layer trusts a pre-verified
// JSON-RPC request after its own middleware has run.
type Auth struct {
	PubKey  common.PubKey
	Expiry  uint64
	Present bool
}

// RestServer exposes the five endpoints of spec.md section 6's
// store-vault REST shape. Handlers stay thin: decode, ACL-checked call
// into Vault, encode.
type RestServer struct {
	vault    Vault
	registry *Registry
}

func NewRestServer(vault Vault, registry *Registry) *RestServer {
	return &RestServer{vault: vault, registry: registry}
}

func (s *RestServer) Handler() http.Handler {
	r := httprouter.New()
	r.POST("/save-snapshot", s.handleSaveSnapshot)
	r.POST("/get-snapshot", s.handleGetSnapshot)
	r.POST("/save-data-batch", s.handleSaveDataBatch)
	r.POST("/get-data-batch", s.handleGetDataBatch)
	r.POST("/get-data-sequence", s.handleGetDataSequence)
	return cors.Default().Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrLockError):
		status = http.StatusConflict
	case errors.Is(err, common.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, common.ErrBatchTooLarge):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// authFromRequest extracts the caller pubkey the auth middleware is
// expected to have already attached; requests without one are treated as
// unauthenticated (caller == zero pubkey, hasAuth == false).
func authFromRequest(r *http.Request) (common.PubKey, bool) {
	header := r.Header.Get("X-Auth-PubKey")
	if header == "" {
		return common.PubKey{}, false
	}
	pk, err := parsePubKeyHex(header)
	if err != nil {
		return common.PubKey{}, false
	}
	return pk, true
}

func parsePubKeyHex(s string) (common.PubKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return common.PubKey{}, err
	}
	var pk common.PubKey
	copy(pk[:], b)
	return pk, nil
}

func parseHashHex(s string) (common.Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return common.Hash{}, err
	}
	var h common.Hash
	copy(h[:], b)
	return h, nil
}

func parseMetaDataHex(s string) (common.MetaData, error) {
	// Wire format is "{timestamp}:{digest_hex}", matching the
	// (timestamp, digest) lexicographic ordering key of spec.md section
	// 4.9's MetaDataCursor.
	var ts uint64
	var digestHex string
	if _, err := fmt.Sscanf(s, "%d:%s", &ts, &digestHex); err != nil {
		return common.MetaData{}, err
	}
	digest, err := parseHashHex(digestHex)
	if err != nil {
		return common.MetaData{}, err
	}
	return common.MetaData{Timestamp: ts, Digest: digest}, nil
}

type saveSnapshotRequest struct {
	Topic      string  `json:"topic"`
	PubKey     string  `json:"pubkey"`
	PrevDigest *string `json:"prev_digest,omitempty"`
	Data       []byte  `json:"data"`
}

func (s *RestServer) handleSaveSnapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req saveSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	topic, err := s.registry.Resolve(req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := parsePubKeyHex(req.PubKey)
	if err != nil {
		writeError(w, err)
		return
	}
	var prevDigest *common.Hash
	if req.PrevDigest != nil {
		d, err := parseHashHex(*req.PrevDigest)
		if err != nil {
			writeError(w, err)
			return
		}
		prevDigest = &d
	}
	caller, hasAuth := authFromRequest(r)

	digest, err := s.vault.SaveSnapshot(caller, hasAuth, topic, owner, prevDigest, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"digest": digest.String()})
}

type getSnapshotRequest struct {
	Topic  string `json:"topic"`
	PubKey string `json:"pubkey"`
}

func (s *RestServer) handleGetSnapshot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req getSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	topic, err := s.registry.Resolve(req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := parsePubKeyHex(req.PubKey)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, hasAuth := authFromRequest(r)

	data, ok, err := s.vault.GetSnapshot(caller, hasAuth, topic, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

type batchEntryWire struct {
	Topic  string `json:"topic"`
	PubKey string `json:"pubkey"`
	Data   []byte `json:"data"`
}

type saveDataBatchRequest struct {
	Data []batchEntryWire `json:"data"`
}

func (s *RestServer) handleSaveDataBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req saveDataBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	caller, hasAuth := authFromRequest(r)

	entries := make([]BatchEntry, len(req.Data))
	for i, e := range req.Data {
		topic, err := s.registry.Resolve(e.Topic)
		if err != nil {
			writeError(w, err)
			return
		}
		owner, err := parsePubKeyHex(e.PubKey)
		if err != nil {
			writeError(w, err)
			return
		}
		entries[i] = BatchEntry{Topic: topic, Owner: owner, Data: e.Data}
	}

	digests, err := s.vault.SaveDataBatch(caller, hasAuth, entries)
	if err != nil {
		writeError(w, err)
		return
	}
	hexDigests := make([]string, len(digests))
	for i, d := range digests {
		hexDigests[i] = d.String()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"digests": hexDigests})
}

type getDataBatchRequest struct {
	Topic   string   `json:"topic"`
	PubKey  string   `json:"pubkey"`
	Digests []string `json:"digests"`
}

func (s *RestServer) handleGetDataBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req getDataBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	topic, err := s.registry.Resolve(req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := parsePubKeyHex(req.PubKey)
	if err != nil {
		writeError(w, err)
		return
	}
	digests := make([]common.Hash, len(req.Digests))
	for i, d := range req.Digests {
		h, err := parseHashHex(d)
		if err != nil {
			writeError(w, err)
			return
		}
		digests[i] = h
	}
	caller, hasAuth := authFromRequest(r)

	data, err := s.vault.GetDataBatch(caller, hasAuth, topic, owner, digests)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

type getDataSequenceRequest struct {
	Topic  string `json:"topic"`
	PubKey string `json:"pubkey"`
	Cursor struct {
		Cursor *string `json:"cursor,omitempty"`
		Order  string  `json:"order"`
		Limit  *int    `json:"limit,omitempty"`
	} `json:"cursor"`
}

func (s *RestServer) handleGetDataSequence(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req getDataSequenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	topic, err := s.registry.Resolve(req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	owner, err := parsePubKeyHex(req.PubKey)
	if err != nil {
		writeError(w, err)
		return
	}
	caller, hasAuth := authFromRequest(r)

	cursor := Cursor{Order: Order(req.Cursor.Order), Limit: req.Cursor.Limit}
	if req.Cursor.Cursor != nil {
		md, err := parseMetaDataHex(*req.Cursor.Cursor)
		if err != nil {
			writeError(w, err)
			return
		}
		cursor.Cursor = &md
	}

	entries, resp, err := s.vault.GetDataSequence(caller, hasAuth, topic, owner, cursor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": entries, "cursor_response": resp})
}
