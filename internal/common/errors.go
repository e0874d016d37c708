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

package common

import "github.com/pkg/errors"

// Sentinel errors for the taxonomy in spec.md section 7. Components wrap
// these with errors.Wrap to add context; callers type-switch with
// errors.Is/errors.Cause.
var (
	// ErrLockError is OptimisticLockFailed: a snapshot CAS prev_digest
	// mismatch. Callers re-read and retry.
	ErrLockError = errors.New("prev_digest mismatch")

	// ErrNotFound covers missing witnesses, blocks, deposits, proposals.
	ErrNotFound = errors.New("not found")

	// ErrEventGapDetected is ChainSyncGap raised by the observer when a
	// fetched page does not begin at local_next_event_id.
	ErrEventGapDetected = errors.New("event gap detected")

	// ErrValidityProverNotSynced aborts post_block after the sync gate
	// exhausts its retries.
	ErrValidityProverNotSynced = errors.New("validity prover not synced")

	// ErrAlreadyExpired aborts post_block when a proposal's expiry has
	// passed the buffer window.
	ErrAlreadyExpired = errors.New("block proposal already expired")

	// ErrInvalidTransition is a programmer error: the FSM received an
	// operation not valid in its current state.
	ErrInvalidTransition = errors.New("invalid builder state transition")

	// ErrBatchTooLarge is InputValidation for store-vault batch endpoints.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")

	// ErrForbidden is InputValidation for ACL violations.
	ErrForbidden = errors.New("forbidden by topic access rights")

	// ErrTimeout is returned by the rate manager when its lock cannot be
	// acquired within the configured timeout.
	ErrTimeout = errors.New("lock acquisition timed out")
)
