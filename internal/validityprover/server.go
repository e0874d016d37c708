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

// Package validityprover wires the observer, historical trees and witness
// generator into the read-only REST surface of spec.md section 6. Handlers
// stay thin by design, matching the Non-goal against route-handler logic:
// every handler is a parameter parse, one or two calls into
// internal/witness or internal/observer, and a JSON encode.
package validityprover

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/klaytn/intmax2-rollup/internal/common"
	"github.com/klaytn/intmax2-rollup/internal/observer"
	"github.com/klaytn/intmax2-rollup/internal/witness"
)

var logger = common.NewModuleLogger("validityprover")

// Server exposes the GET endpoints listed in spec.md section 6.
type Server struct {
	observer *observer.Observer
	witness  *witness.Generator
}

func NewServer(obs *observer.Observer, gen *witness.Generator) *Server {
	return &Server{observer: obs, witness: gen}
}

// Handler returns the full CORS-wrapped http.Handler, matching the
// teacher's pattern of registering routes on an httprouter.Router and
// wrapping it once at the top with rs/cors.
func (s *Server) Handler() http.Handler {
	r := httprouter.New()
	r.GET("/block-number", s.handleBlockNumber)
	r.GET("/validity-proof-block-number", s.handleValidityProofBlockNumber)
	r.GET("/next-deposit-index", s.handleNextDepositIndex)
	r.GET("/get-account-info", s.handleGetAccountInfo)
	r.GET("/get-update-witness", s.handleGetUpdateWitness)
	r.GET("/get-deposit-info", s.handleGetDepositInfo)
	r.GET("/get-block-number-by-tx-tree-root", s.handleGetBlockNumberByTxTreeRoot)
	r.GET("/get-block-merkle-proof", s.handleGetBlockMerkleProof)
	r.GET("/get-deposit-merkle-proof", s.handleGetDepositMerkleProof)

	return cors.Default().Handler(r)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": err.Error()})
}

func (s *Server) handleBlockNumber(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	n, err := s.observer.LatestBlockNumber()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]uint32{"block_number": n})
}

func (s *Server) handleValidityProofBlockNumber(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// The validity-proof frontier is a provercoordinator concern; this
	// endpoint reports the observer's LatestBlockNumber, the same value as
	// /block-number. It consults neither the coordinator nor the witness
	// table.
	n, err := s.observer.LatestBlockNumber()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]uint32{"block_number": n})
}

func (s *Server) handleNextDepositIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	n, err := s.observer.NextDepositIndex()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]uint64{"next_deposit_index": n})
}

func parsePubKey(s string) (common.PubKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return common.PubKey{}, err
	}
	var pk common.PubKey
	copy(pk[:], b)
	return pk, nil
}

func (s *Server) handleGetAccountInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pk, err := parsePubKey(r.URL.Query().Get("pubkey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	latest, err := s.observer.LatestBlockNumber()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	accountID, registered, err := s.witness.GetAccountInfo(uint64(latest), pk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"account_id": accountID, "registered": registered})
}

func (s *Server) handleGetUpdateWitness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	blockNumber, err := strconv.ParseUint(r.URL.Query().Get("block_number"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wit, err := s.witness.GetValidityWitness(uint32(blockNumber))
	if err == common.ErrNotFound {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, wit)
}

func (s *Server) handleGetDepositInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	b, err := hex.DecodeString(r.URL.Query().Get("deposit_hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var depositHash common.Hash
	copy(depositHash[:], b)

	info, err := s.observer.ResolveDepositInfo(depositHash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, common.ErrNotFound)
		return
	}
	writeJSON(w, info)
}

func (s *Server) handleGetBlockNumberByTxTreeRoot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	b, err := hex.DecodeString(r.URL.Query().Get("tx_tree_root"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var root common.Hash
	copy(root[:], b)

	n, err := s.witness.GetBlockNumberByTxTreeRoot(root)
	if err == common.ErrNotFound {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]uint32{"block_number": n})
}

func (s *Server) handleGetBlockMerkleProof(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	root, err := strconv.ParseUint(r.URL.Query().Get("root_block_number"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	leaf, err := strconv.ParseUint(r.URL.Query().Get("leaf_block_number"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	proof, err := s.witness.GetBlockMerkleProof(uint32(root), uint32(leaf))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"siblings": proof})
}

func (s *Server) handleGetDepositMerkleProof(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	blockNumber, err := strconv.ParseUint(r.URL.Query().Get("block_number"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	depositIndex, err := strconv.ParseUint(r.URL.Query().Get("deposit_index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	proof, err := s.witness.GetDepositMerkleProof(uint32(blockNumber), depositIndex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"siblings": proof})
}
