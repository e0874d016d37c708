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

	"github.com/klaytn/intmax2-rollup/internal/observer"
)

// noopChainReader satisfies observer.ChainReader without talking to any
// chain. Decoding the two BlockPosted calldata shapes is in scope
// (internal/contractclient) but the RPC/subgraph client that fetches raw
// events from L1 is not (spec.md section 1), so this is the same kind of
// seam as cmd/block-builder's chainSeam: every stream reports "nothing new
// yet" until a real RPC- or subgraph-backed observer.ChainReader is
// dropped in.
type noopChainReader struct{}

func (noopChainReader) NextEventID(ctx context.Context, kind observer.StreamKind) (uint64, error) {
	return 0, nil
}

func (noopChainReader) FetchDeposited(ctx context.Context, fromID uint64) ([]observer.DepositedEvent, error) {
	return nil, nil
}

func (noopChainReader) FetchDepositLeafInserted(ctx context.Context, fromIndex uint64) ([]observer.DepositLeafInsertedEvent, error) {
	return nil, nil
}

func (noopChainReader) FetchBlockPosted(ctx context.Context, fromBlock uint64) ([]observer.BlockPostedEvent, error) {
	return nil, nil
}
