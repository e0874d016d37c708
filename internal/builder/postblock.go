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
	"time"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// ValiditySyncMaxRetry and ValidityProverSyncPollingInterval bound the
// validity-prover sync gate of spec.md section 4.3.
const (
	ValiditySyncMaxRetry                  = 10
	ValidityProverSyncPollingInterval     = 5 * time.Second
	PenaltyFeePollingInterval             = 2 * time.Second
	ExpiryBuffer                          = 5 * time.Second
)

// BlockPostTask is the job pipeline's hand-off to post_block, per spec.md
// section 4.3.
type BlockPostTask struct {
	ForcePost           bool
	IsRegistrationBlock bool
	Expiry              uint64 // unix seconds; 0 means no expiry
	PubKeys             [NumSendersInBlock]common.PubKey
	AccountIDs          []uint64 // only meaningful for non-registration blocks
	PubKeyHash          common.Hash
	TxTreeRoot          common.Hash
	Signatures          []UserSignature
	BlockID             string
}

// AccountInfoReader answers "does this pubkey already have an account id,"
// used by the elimination step for registration blocks.
type AccountInfoReader interface {
	AccountID(ctx context.Context, pubkey common.PubKey) (accountID uint64, registered bool, err error)
}

// ChainSyncStatus reports the two block numbers the sync gate compares.
type ChainSyncStatus interface {
	OnchainLatestBlockNumber(ctx context.Context) (uint32, error)
	ValidityProverLatestBlockNumber(ctx context.Context) (uint32, error)
}

// PenaltyStatus reports the rollup contract's current penalty and the
// builder's configured allowance.
type PenaltyStatus interface {
	Penalty(ctx context.Context) (common.U256, error)
	EthAllowanceForBlock() common.U256
}

// Signer aggregates the per-sender signatures into the single BLS
// aggregate the contract call expects. Implementations wrap a real curve
// library (e.g. github.com/supranational/blst); the aggregation math
// itself is out of scope here (see SPEC_FULL.md section 3).
type Signer interface {
	Aggregate(ctx context.Context, senders []SenderWithSignature) (AggregatedSignature, error)
}

// SenderWithSignature pairs a sorted-position pubkey with its signature,
// or nil if that slot has none (padding or eliminated).
type SenderWithSignature struct {
	PubKey    common.PubKey
	Signature []byte // nil if absent
}

// AggregatedSignature is {sender_flag, agg_pubkey, agg_signature,
// message_point} from spec.md section 4.3.
type AggregatedSignature struct {
	SenderFlag    [16]byte
	AggPubKey     [4][32]byte
	AggSignature  [4][32]byte
	MessagePoint  [4][32]byte
}

// RollupPoster submits the final L2 transaction under a reserved nonce.
type RollupPoster interface {
	PostRegistrationBlock(ctx context.Context, nonce uint32, txTreeRoot common.Hash, expiry uint64, agg AggregatedSignature, senderPublicKeys []common.PubKey) error
	PostNonRegistrationBlock(ctx context.Context, nonce uint32, txTreeRoot common.Hash, expiry uint64, agg AggregatedSignature, pubkeyHash common.Hash, accountIDs []uint64) error
}

// FeeCollector reconciles collected fee transfers against the store-vault,
// for the process_fee_collection job.
type FeeCollector interface {
	ReconcileFees(ctx context.Context) error
}

// Poster runs the post_block procedure of spec.md section 4.3.
type Poster struct {
	sync         ChainSyncStatus
	penalty      PenaltyStatus
	accounts     AccountInfoReader
	signer       Signer
	rollup       RollupPoster
	nonces       *NonceManager
	feeCollector FeeCollector
	now          func() time.Time
}

func NewPoster(sync ChainSyncStatus, penalty PenaltyStatus, accounts AccountInfoReader, signer Signer, rollup RollupPoster, nonces *NonceManager, feeCollector FeeCollector) *Poster {
	return &Poster{
		sync:         sync,
		penalty:      penalty,
		accounts:     accounts,
		signer:       signer,
		rollup:       rollup,
		nonces:       nonces,
		feeCollector: feeCollector,
		now:          time.Now,
	}
}

// PostBlock implements the seven steps of spec.md section 4.3.
func (p *Poster) PostBlock(ctx context.Context, task BlockPostTask) error {
	// 1. Drop silently if there are no signatures and this isn't a forced post.
	if len(task.Signatures) == 0 && !task.ForcePost {
		return nil
	}

	// 2. Validity-prover sync gate.
	if err := p.waitForValiditySync(ctx); err != nil {
		return err
	}

	// 3. Penalty-fee gate (unbounded).
	if err := p.waitForPenaltyBelowAllowance(ctx); err != nil {
		return err
	}

	// 4. Expiry check.
	if task.Expiry != 0 {
		deadline := time.Unix(int64(task.Expiry), 0)
		if deadline.Before(p.now().Add(ExpiryBuffer)) {
			return common.ErrAlreadyExpired
		}
	}

	// 5. Elimination (registration blocks only): double-registration guard.
	eliminated := make(map[common.PubKey]bool)
	if task.IsRegistrationBlock {
		for _, pk := range task.PubKeys {
			if pk.IsDummy() {
				continue
			}
			_, registered, err := p.accounts.AccountID(ctx, pk)
			if err != nil {
				return err
			}
			if registered {
				eliminated[pk] = true
			}
		}
	}

	// 6. Build SenderWithSignature aligned with the sorted padded pubkey
	// list, then aggregate.
	senders := make([]SenderWithSignature, NumSendersInBlock)
	for i, pk := range task.PubKeys {
		senders[i] = SenderWithSignature{PubKey: pk}
		if eliminated[pk] {
			continue
		}
		for _, sig := range task.Signatures {
			if sig.PubKey == pk {
				senders[i].Signature = sig.Signature
				break
			}
		}
	}
	agg, err := p.signer.Aggregate(ctx, senders)
	if err != nil {
		// Signing/aggregation failures are fatal: log and drop per spec.md
		// section 4.3's failure classification.
		logger.Errorw("signature aggregation failed, dropping block post task", "err", err)
		return nil
	}

	// 7. Submit under a reserved nonce.
	nonce, err := p.nonces.ReserveNonce(task.IsRegistrationBlock)
	if err != nil {
		return err
	}

	if task.IsRegistrationBlock {
		senderPubkeys := make([]common.PubKey, 0, NumSendersInBlock)
		for _, s := range senders {
			senderPubkeys = append(senderPubkeys, s.PubKey)
		}
		err = p.rollup.PostRegistrationBlock(ctx, nonce, task.TxTreeRoot, task.Expiry, agg, senderPubkeys)
	} else {
		err = p.rollup.PostNonRegistrationBlock(ctx, nonce, task.TxTreeRoot, task.Expiry, agg, task.PubKeyHash, task.AccountIDs)
	}
	if err != nil {
		// Network failures bubble up to the supervisor for retry; the
		// nonce stays reserved until a future reconciliation evicts it.
		return err
	}

	p.nonces.ReleaseNonce(nonce, task.IsRegistrationBlock)
	return nil
}

func (p *Poster) waitForValiditySync(ctx context.Context) error {
	for attempt := 0; attempt < ValiditySyncMaxRetry; attempt++ {
		onchain, err := p.sync.OnchainLatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		validity, err := p.sync.ValidityProverLatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		if onchain == validity {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ValidityProverSyncPollingInterval):
		}
	}
	return common.ErrValidityProverNotSynced
}

func (p *Poster) waitForPenaltyBelowAllowance(ctx context.Context) error {
	allowance := p.penalty.EthAllowanceForBlock()
	for {
		penalty, err := p.penalty.Penalty(ctx)
		if err != nil {
			return err
		}
		if penalty.Cmp(allowance) <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(PenaltyFeePollingInterval):
		}
	}
}
