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

package observer

import "context"

// ChainReader is the seam between the observer and whatever actually talks
// to L1/L2. A direct-RPC reader and a subgraph-backed reader would both fit
// it, so the primary/secondary failover named in spec.md section 4.5 is a
// config-time choice of which ChainReader to construct. Neither reader is
// implemented in this repository: the only implementations are
// cmd/validity-prover's noopChainReader and the test fakes.
type ChainReader interface {
	// NextEventID returns the on-chain next-event id for kind (deposit id,
	// deposit index, or block number, depending on kind).
	NextEventID(ctx context.Context, kind StreamKind) (uint64, error)

	// FetchDeposited returns up to EventLimit Deposited events starting at
	// fromID inclusive.
	FetchDeposited(ctx context.Context, fromID uint64) ([]DepositedEvent, error)

	// FetchDepositLeafInserted returns up to EventLimit
	// DepositLeafInserted events starting at fromIndex inclusive.
	FetchDepositLeafInserted(ctx context.Context, fromIndex uint64) ([]DepositLeafInsertedEvent, error)

	// FetchBlockPosted returns up to EventLimit BlockPosted events
	// starting at fromBlock inclusive, decoding the calldata shapes from
	// spec.md section 6 via the contractclient package.
	FetchBlockPosted(ctx context.Context, fromBlock uint64) ([]BlockPostedEvent, error)
}

// LeaderElector gates writes to a single instance among replicas, per
// spec.md section 4.5's "wait_for_leadership". A Postgres advisory lock is
// the natural backing (cheap, ties leadership to a live DB connection, and
// releases automatically on crash) but the interface is storage-agnostic so
// tests can substitute an always-leader stub.
type LeaderElector interface {
	// WaitForLeadership blocks until this instance holds leadership or ctx
	// is cancelled.
	WaitForLeadership(ctx context.Context) error

	// IsLeader reports current leadership without blocking.
	IsLeader(ctx context.Context) (bool, error)
}

// AlwaysLeader is a LeaderElector for single-instance deployments and
// tests.
type AlwaysLeader struct{}

func (AlwaysLeader) WaitForLeadership(ctx context.Context) error { return nil }

func (AlwaysLeader) IsLeader(ctx context.Context) (bool, error) { return true, nil }
