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

package main

import (
	"context"

	"github.com/klaytn/intmax2-rollup/internal/builder"
	"github.com/klaytn/intmax2-rollup/internal/common"
)

// chainSeam is the one place this binary touches the L1 settlement
// contract. Decoding the two post-block calldata shapes is in scope
// (internal/contractclient); encoding a new transaction, estimating gas,
// and reading the rollup contract's nonce/penalty state are not (spec.md
// section 1: no Solidity/ABI beyond calldata decoding). A production
// deployment replaces chainSeam with a real client bound to the rollup
// contract's ABI; everything in internal/builder is written against the
// builder.OnchainNonceReader / builder.ChainSyncStatus /
// builder.PenaltyStatus / builder.Signer / builder.RollupPoster interfaces
// so that swap
// needs no change here beyond this file.
type chainSeam struct {
	vp        *builder.ValidityProverClient
	allowance common.U256
}

func newChainSeam(vp *builder.ValidityProverClient, allowance common.U256) *chainSeam {
	return &chainSeam{vp: vp, allowance: allowance}
}

func (c *chainSeam) OnchainNextNonce(isRegistration bool) (uint32, error) {
	return 0, nil
}

// OnchainLatestBlockNumber has no data source until an L1 client is wired
// in; it returns 0 rather than mirroring ValidityProverLatestBlockNumber,
// so the sync gate fails loudly instead of always appearing synced.
func (c *chainSeam) OnchainLatestBlockNumber(ctx context.Context) (uint32, error) {
	return 0, nil
}

func (c *chainSeam) ValidityProverLatestBlockNumber(ctx context.Context) (uint32, error) {
	return c.vp.ValidityProverLatestBlockNumber(ctx)
}

func (c *chainSeam) Penalty(ctx context.Context) (common.U256, error) {
	return common.NewU256(0), nil
}

func (c *chainSeam) EthAllowanceForBlock() common.U256 {
	return c.allowance
}

// Aggregate returns a zero AggregatedSignature; no BLS aggregation is
// performed.
func (c *chainSeam) Aggregate(ctx context.Context, senders []builder.SenderWithSignature) (builder.AggregatedSignature, error) {
	return builder.AggregatedSignature{}, nil
}

func (c *chainSeam) PostRegistrationBlock(ctx context.Context, nonce uint32, txTreeRoot common.Hash, expiry uint64, agg builder.AggregatedSignature, senderPublicKeys []common.PubKey) error {
	logger.Infow("post registration block (chain submission out of scope)", "nonce", nonce, "tx_tree_root", txTreeRoot.String())
	return nil
}

func (c *chainSeam) PostNonRegistrationBlock(ctx context.Context, nonce uint32, txTreeRoot common.Hash, expiry uint64, agg builder.AggregatedSignature, pubkeyHash common.Hash, accountIDs []uint64) error {
	logger.Infow("post non-registration block (chain submission out of scope)", "nonce", nonce, "tx_tree_root", txTreeRoot.String())
	return nil
}
