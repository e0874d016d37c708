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

// Package observer ingests the three on-chain event streams named in
// spec.md section 4.5 (Deposited, DepositLeafInserted, BlockPosted),
// detecting gaps and checkpointing progress per stream, grounded on the
// teacher's datasync/chaindatafetcher checkpoint-and-fetch loop
// (chaindata_fetcher.go's startFetching/sendRequests/updateCheckpoint).
package observer

import "github.com/klaytn/intmax2-rollup/internal/common"

// EventLimit bounds the page size of a single fetch, per spec.md section
// 4.5.
const EventLimit = 100

// StreamKind identifies one of the three independently-checkpointed event
// streams.
type StreamKind string

const (
	StreamDeposited           StreamKind = "deposited"
	StreamDepositLeafInserted StreamKind = "deposit_leaf_inserted"
	StreamBlockPosted         StreamKind = "block_posted"
)

// DepositedEvent is an L1 Deposited event.
type DepositedEvent struct {
	DepositID     uint64
	Sender        common.PubKey
	TokenIndex    uint32
	Amount        common.U256
	EthBlockNum   uint64
	EthTxIndex    uint32
	DepositHash   common.Hash
}

// DepositLeafInsertedEvent is an L2 DepositLeafInserted event.
type DepositLeafInsertedEvent struct {
	DepositIndex uint64
	DepositHash  common.Hash
	EthBlockNum  uint64
	EthTxIndex   uint32
}

// BlockPostedEvent is an L2 BlockPosted event.
type BlockPostedEvent struct {
	BlockNumber      uint32
	PrevBlockHash    common.Hash
	DepositTreeRoot  common.Hash
	BlockTimestamp   uint64
	EthBlockNum      uint64
	EthTxIndex       uint32
	TxTreeRoot       common.Hash
	IsRegistration   bool
	PubKeys          []common.PubKey
	AccountIDs       []uint64 // only set for non-registration blocks
}

// DepositInfo is the public answer to "where did this deposit land", per
// spec.md section 4.5's DepositInfo resolution.
type DepositInfo struct {
	DepositHash  common.Hash
	BlockNumber  uint32
	DepositIndex uint64
}

// GapError is ChainSyncGap raised when a fetched page's first event does
// not begin at the expected next event id.
type GapError struct {
	Stream   StreamKind
	Expected uint64
	Got      uint64
}

func (e *GapError) Error() string {
	return "event gap detected"
}

func (e *GapError) Unwrap() error { return common.ErrEventGapDetected }
