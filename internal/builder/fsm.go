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

package builder

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// State is one of the three block builder states from spec.md section 4.1.
type State int

const (
	Pausing State = iota
	AcceptingTxs
	ProposingBlock
)

func (s State) String() string {
	switch s {
	case Pausing:
		return "pausing"
	case AcceptingTxs:
		return "accepting_txs"
	case ProposingBlock:
		return "proposing_block"
	default:
		return "unknown"
	}
}

// TxRequest is one append_tx_request call's payload.
type TxRequest struct {
	PubKey    common.PubKey
	AccountID *uint64
	Tx        common.Tx
	FeeProof  []byte // opaque; fee verification is out of scope
}

// UserSignature is appended to a proposal in ProposingBlock.
type UserSignature struct {
	PubKey    common.PubKey
	Signature []byte
}

// ProposalMemo is the artifact produced by propose_block: the sorted,
// padded sender set together with the tx tree and enough bookkeeping to
// answer query_proposal and later build a BlockPostTask.
type ProposalMemo struct {
	IsRegistrationBlock bool
	SortedPubKeys       [NumSendersInBlock]common.PubKey
	SortedTxs           [NumSendersInBlock]common.Tx
	PubKeyHash          common.Hash
	TxTreeRoot          common.Hash
	Signatures          []UserSignature

	tree     *txTree
	requests []TxRequest // original arrival-order requests, for query_proposal
	indexOf  []int       // indexOf[i] = first sorted position holding requests[i]'s pubkey
}

// TxMerkleProof pairs a tx's sorted position with its inclusion proof.
type TxMerkleProof struct {
	TxIndex   int
	Siblings  []common.Hash
	LeafHash  common.Hash
}

// FSM is the single owning task's in-memory state, per spec.md section 9's
// design note: callers serialize through an exclusive lock rather than a
// channel-actor, since every operation here is cheap synchronous bookkeeping
// with no internal blocking I/O.
type FSM struct {
	mu    sync.Mutex
	state State

	requests []TxRequest
	memo     *ProposalMemo
}

func NewFSM() *FSM {
	return &FSM{state: Pausing}
}

func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// invalidTransition panics: spec.md section 4.1 classifies a call made from
// the wrong state as a programmer error, not a recoverable one.
func invalidTransition(from State, op string) {
	panic(errors.Errorf("invalid transition: %s from state %s", op, from))
}

// StartAcceptingTxs moves Pausing -> AcceptingTxs, clearing any stale
// requests from the previous cycle.
func (f *FSM) StartAcceptingTxs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Pausing {
		invalidTransition(f.state, "start_accepting_txs")
	}
	f.state = AcceptingTxs
	f.requests = nil
	f.memo = nil
}

// AppendTxRequest is append_tx_request: valid only in AcceptingTxs, appends
// in arrival order with no deduplication of (pubkey, tx) pairs.
func (f *FSM) AppendTxRequest(req TxRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != AcceptingTxs {
		invalidTransition(f.state, "append_tx_request")
	}
	f.requests = append(f.requests, req)
}

// PendingCount reports how many requests have arrived in the current
// AcceptingTxs window; used by the process_requests job to decide when to
// propose.
func (f *FSM) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// ProposeBlock implements propose_block from spec.md section 4.1.
func (f *FSM) ProposeBlock(isRegistration bool) *ProposalMemo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != AcceptingTxs {
		invalidTransition(f.state, "propose_block")
	}

	original := make([]TxRequest, len(f.requests))
	copy(original, f.requests)

	sorted := make([]TxRequest, len(original))
	copy(sorted, original)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PubKey.Cmp(sorted[j].PubKey) > 0 // descending
	})

	var padded [NumSendersInBlock]common.PubKey
	var paddedTxs [NumSendersInBlock]common.Tx
	for i := 0; i < NumSendersInBlock; i++ {
		if i < len(sorted) {
			padded[i] = sorted[i].PubKey
			paddedTxs[i] = sorted[i].Tx
		} else {
			padded[i] = common.DummyPubKey
			paddedTxs[i] = common.DefaultTx
		}
	}

	leaves := make([]common.Hash, NumSendersInBlock)
	for i, tx := range paddedTxs {
		leaves[i] = txLeafHash(tx)
	}
	tree := newTxTree(leaves)

	pubkeyHashBuf := make([]byte, 0, NumSendersInBlock*32)
	for _, pk := range padded {
		pubkeyHashBuf = append(pubkeyHashBuf, pk.Bytes()...)
	}

	indexOf := make([]int, len(original))
	for i, req := range original {
		indexOf[i] = firstMatchIndex(sorted, req.PubKey)
	}

	memo := &ProposalMemo{
		IsRegistrationBlock: isRegistration,
		SortedPubKeys:       padded,
		SortedTxs:           paddedTxs,
		PubKeyHash:          common.HashBytes(pubkeyHashBuf),
		TxTreeRoot:          tree.Root(),
		tree:                tree,
		requests:            original,
		indexOf:             indexOf,
	}

	f.memo = memo
	f.state = ProposingBlock
	return memo
}

func firstMatchIndex(sorted []TxRequest, pubkey common.PubKey) int {
	for i, r := range sorted {
		if r.PubKey == pubkey {
			return i
		}
	}
	return -1
}

// TxMerkleProofFor returns the tx_index and inclusion proof for the request
// at position i in arrival order, as computed during ProposeBlock.
func (m *ProposalMemo) TxMerkleProofFor(i int) TxMerkleProof {
	idx := m.indexOf[i]
	return TxMerkleProof{
		TxIndex:  idx,
		Siblings: m.tree.Prove(idx),
		LeafHash: txLeafHash(m.SortedTxs[idx]),
	}
}

// QueryProposal implements query_proposal: linear scan of original requests
// by (pubkey, tx), valid only in ProposingBlock.
func (f *FSM) QueryProposal(pubkey common.PubKey, tx common.Tx) (*TxMerkleProof, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ProposingBlock {
		invalidTransition(f.state, "query_proposal")
	}
	for i, r := range f.memo.requests {
		if r.PubKey == pubkey && r.Tx == tx {
			proof := f.memo.TxMerkleProofFor(i)
			return &proof, true
		}
	}
	return nil, false
}

// AppendSignature implements append_signature: valid only in
// ProposingBlock; no signature validation happens here.
func (f *FSM) AppendSignature(sig UserSignature) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ProposingBlock {
		invalidTransition(f.state, "append_signature")
	}
	f.memo.Signatures = append(f.memo.Signatures, sig)
}

// FinalizeBlock implements finalize_block: ProposingBlock -> Pausing. The
// caller is responsible for having already enqueued the post task; this
// only resets FSM state.
func (f *FSM) FinalizeBlock() *ProposalMemo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ProposingBlock {
		invalidTransition(f.state, "finalize_block")
	}
	memo := f.memo
	f.state = Pausing
	f.memo = nil
	f.requests = nil
	return memo
}
