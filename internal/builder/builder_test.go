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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

func pk(b byte) common.PubKey {
	var p common.PubKey
	p[31] = b
	return p
}

func TestFSMRejectsInvalidTransition(t *testing.T) {
	f := NewFSM()
	require.Panics(t, func() {
		f.ProposeBlock(true) // still Pausing, never started accepting
	})
}

// TestFSMProposalSortsDescendingAndPads exercises propose_block's ordering
// rule from spec.md section 4.1.
func TestFSMProposalSortsDescendingAndPads(t *testing.T) {
	f := NewFSM()
	f.StartAcceptingTxs()

	low, high := pk(1), pk(9)
	f.AppendTxRequest(TxRequest{PubKey: low, Tx: common.Tx{Nonce: 1}})
	f.AppendTxRequest(TxRequest{PubKey: high, Tx: common.Tx{Nonce: 1}})

	memo := f.ProposeBlock(true)
	require.Equal(t, high, memo.SortedPubKeys[0])
	require.Equal(t, low, memo.SortedPubKeys[1])
	require.True(t, memo.SortedPubKeys[2].IsDummy())
	require.Equal(t, NumSendersInBlock, len(memo.SortedPubKeys))
}

// TestFSMNoDeduplicationOfRequests exercises the "no dedup, first-match
// semantics" rule from spec.md section 4.1.
func TestFSMNoDeduplicationOfRequests(t *testing.T) {
	f := NewFSM()
	f.StartAcceptingTxs()

	sender := pk(5)
	tx := common.Tx{Nonce: 1}
	f.AppendTxRequest(TxRequest{PubKey: sender, Tx: tx})
	f.AppendTxRequest(TxRequest{PubKey: sender, Tx: tx})
	require.Equal(t, 2, f.PendingCount())

	f.ProposeBlock(true)
	proof, ok := f.QueryProposal(sender, tx)
	require.True(t, ok)
	require.GreaterOrEqual(t, proof.TxIndex, 0)
}

func TestFSMQueryProposalMissing(t *testing.T) {
	f := NewFSM()
	f.StartAcceptingTxs()
	f.AppendTxRequest(TxRequest{PubKey: pk(1), Tx: common.Tx{Nonce: 1}})
	f.ProposeBlock(true)

	_, ok := f.QueryProposal(pk(2), common.Tx{Nonce: 1})
	require.False(t, ok)
}

func TestFSMFinalizeRoundTrip(t *testing.T) {
	f := NewFSM()
	f.StartAcceptingTxs()
	f.AppendTxRequest(TxRequest{PubKey: pk(1), Tx: common.Tx{Nonce: 1}})
	f.ProposeBlock(true)
	f.AppendSignature(UserSignature{PubKey: pk(1), Signature: []byte("sig")})

	memo := f.FinalizeBlock()
	require.Len(t, memo.Signatures, 1)
	require.Equal(t, Pausing, f.State())
}

type fakeNonceReader struct {
	onchain map[bool]uint32
}

func (f *fakeNonceReader) OnchainNextNonce(isRegistration bool) (uint32, error) {
	return f.onchain[isRegistration], nil
}

// TestNonceManagerMonotonicAcrossReconciliation exercises reserve_nonce's
// onchain-reconciliation rule from spec.md section 4.4: next_nonce only
// ever advances via max(), never decrements.
func TestNonceManagerMonotonicAcrossReconciliation(t *testing.T) {
	reader := &fakeNonceReader{onchain: map[bool]uint32{true: 0}}
	nm := NewNonceManager(reader)

	n0, err := nm.ReserveNonce(true)
	require.NoError(t, err)
	require.Equal(t, uint32(0), n0)

	n1, err := nm.ReserveNonce(true)
	require.NoError(t, err)
	require.Equal(t, uint32(1), n1)

	// Onchain nonce jumps ahead (e.g. another process already posted up to 5).
	reader.onchain[true] = 5
	n2, err := nm.ReserveNonce(true)
	require.NoError(t, err)
	require.Equal(t, uint32(5), n2)

	smallest, ok := nm.SmallestReservedNonce(true)
	require.True(t, ok)
	require.Equal(t, uint32(5), smallest, "reconciliation must evict reserved entries below onchain_next")
}

func TestNonceManagerReleaseIsIdempotent(t *testing.T) {
	reader := &fakeNonceReader{onchain: map[bool]uint32{false: 0}}
	nm := NewNonceManager(reader)

	n, err := nm.ReserveNonce(false)
	require.NoError(t, err)

	nm.ReleaseNonce(n, false)
	nm.ReleaseNonce(n, false) // second release must not panic or error

	_, ok := nm.SmallestReservedNonce(false)
	require.False(t, ok)
}

func TestNonceManagerSpacesAreIndependent(t *testing.T) {
	reader := &fakeNonceReader{onchain: map[bool]uint32{true: 0, false: 100}}
	nm := NewNonceManager(reader)

	regNonce, err := nm.ReserveNonce(true)
	require.NoError(t, err)
	nonRegNonce, err := nm.ReserveNonce(false)
	require.NoError(t, err)

	require.Equal(t, uint32(0), regNonce)
	require.Equal(t, uint32(100), nonRegNonce)
}

type fakeSyncStatus struct {
	onchain, validity uint32
}

func (s *fakeSyncStatus) OnchainLatestBlockNumber(ctx context.Context) (uint32, error) {
	return s.onchain, nil
}
func (s *fakeSyncStatus) ValidityProverLatestBlockNumber(ctx context.Context) (uint32, error) {
	return s.validity, nil
}

type fakePenaltyStatus struct {
	penalty, allowance common.U256
}

func (p *fakePenaltyStatus) Penalty(ctx context.Context) (common.U256, error) { return p.penalty, nil }
func (p *fakePenaltyStatus) EthAllowanceForBlock() common.U256                { return p.allowance }

type fakeAccounts struct {
	registered map[common.PubKey]bool
}

func (a *fakeAccounts) AccountID(ctx context.Context, pubkey common.PubKey) (uint64, bool, error) {
	return 1, a.registered[pubkey], nil
}

type fakeSigner struct {
	calls   int
	senders []SenderWithSignature
}

func (s *fakeSigner) Aggregate(ctx context.Context, senders []SenderWithSignature) (AggregatedSignature, error) {
	s.calls++
	s.senders = senders
	return AggregatedSignature{}, nil
}

type fakeRollup struct {
	registrationCalls    int
	nonRegistrationCalls int
}

func (r *fakeRollup) PostRegistrationBlock(ctx context.Context, nonce uint32, txTreeRoot common.Hash, expiry uint64, agg AggregatedSignature, senderPublicKeys []common.PubKey) error {
	r.registrationCalls++
	return nil
}

func (r *fakeRollup) PostNonRegistrationBlock(ctx context.Context, nonce uint32, txTreeRoot common.Hash, expiry uint64, agg AggregatedSignature, pubkeyHash common.Hash, accountIDs []uint64) error {
	r.nonRegistrationCalls++
	return nil
}

func newTestPoster(sync *fakeSyncStatus, penalty *fakePenaltyStatus, accounts *fakeAccounts, rollup *fakeRollup) *Poster {
	nonceReader := &fakeNonceReader{onchain: map[bool]uint32{true: 0, false: 0}}
	return NewPoster(sync, penalty, accounts, &fakeSigner{}, rollup, NewNonceManager(nonceReader), nil)
}

func TestPostBlockDropsSilentlyWithoutSignaturesOrForce(t *testing.T) {
	p := newTestPoster(
		&fakeSyncStatus{onchain: 1, validity: 1},
		&fakePenaltyStatus{penalty: common.NewU256(0), allowance: common.NewU256(10)},
		&fakeAccounts{},
		&fakeRollup{},
	)
	err := p.PostBlock(context.Background(), BlockPostTask{})
	require.NoError(t, err)
}

func TestPostBlockFailsWhenValidityProverNotSynced(t *testing.T) {
	p := newTestPoster(
		&fakeSyncStatus{onchain: 5, validity: 1},
		&fakePenaltyStatus{penalty: common.NewU256(0), allowance: common.NewU256(10)},
		&fakeAccounts{},
		&fakeRollup{},
	)
	err := p.PostBlock(context.Background(), BlockPostTask{ForcePost: true})
	require.True(t, errors.Is(err, common.ErrValidityProverNotSynced))
}

// TestPostBlockEliminatesAlreadyRegisteredSenders exercises the elimination
// step of spec.md section 4.3 step 5.
func TestPostBlockEliminatesAlreadyRegisteredSenders(t *testing.T) {
	rollup := &fakeRollup{}
	sender := pk(1)
	p := newTestPoster(
		&fakeSyncStatus{onchain: 1, validity: 1},
		&fakePenaltyStatus{penalty: common.NewU256(0), allowance: common.NewU256(10)},
		&fakeAccounts{registered: map[common.PubKey]bool{sender: true}},
		rollup,
	)

	var pubkeys [NumSendersInBlock]common.PubKey
	pubkeys[0] = sender
	task := BlockPostTask{
		IsRegistrationBlock: true,
		PubKeys:             pubkeys,
		Signatures:          []UserSignature{{PubKey: sender, Signature: []byte("sig")}},
	}

	err := p.PostBlock(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, 1, rollup.registrationCalls)

	// The registered sender's signature must not reach aggregation.
	signer := p.signer.(*fakeSigner)
	require.Len(t, signer.senders, NumSendersInBlock)
	require.Equal(t, sender, signer.senders[0].PubKey)
	require.Nil(t, signer.senders[0].Signature)
}

func TestPostBlockFailsWhenExpired(t *testing.T) {
	p := newTestPoster(
		&fakeSyncStatus{onchain: 1, validity: 1},
		&fakePenaltyStatus{penalty: common.NewU256(0), allowance: common.NewU256(10)},
		&fakeAccounts{},
		&fakeRollup{},
	)
	p.now = func() time.Time { return time.Unix(1000, 0) }

	task := BlockPostTask{
		ForcePost: true,
		Expiry:    1001, // within ExpiryBuffer of "now"
	}
	err := p.PostBlock(context.Background(), task)
	require.True(t, errors.Is(err, common.ErrAlreadyExpired))
}
