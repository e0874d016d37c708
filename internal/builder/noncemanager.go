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

import "sync"

// OnchainNonceReader fetches the next usable nonce for the builder's
// sending account, separately for registration and non-registration block
// postings.
type OnchainNonceReader interface {
	OnchainNextNonce(isRegistration bool) (uint32, error)
}

// nonceSpace is one of the two independent nonce spaces from spec.md
// section 4.4, grounded on
// original_source/block-builder/src/app/storage/nonce_manager/memory_nonce_manager.rs
// (see SPEC_FULL.md section 3): a reserved set plus a monotonic counter,
// each under its own lock so the two spaces never contend with each other.
type nonceSpace struct {
	mu       sync.Mutex
	next     uint32
	reserved map[uint32]struct{}
}

func newNonceSpace() *nonceSpace {
	return &nonceSpace{reserved: make(map[uint32]struct{})}
}

// NonceManager tracks registration and non-registration nonces
// independently; cross-field consistency between the two is not required.
type NonceManager struct {
	reader OnchainNonceReader

	registration    *nonceSpace
	nonRegistration *nonceSpace
}

func NewNonceManager(reader OnchainNonceReader) *NonceManager {
	return &NonceManager{
		reader:          reader,
		registration:    newNonceSpace(),
		nonRegistration: newNonceSpace(),
	}
}

func (n *NonceManager) space(isRegistration bool) *nonceSpace {
	if isRegistration {
		return n.registration
	}
	return n.nonRegistration
}

// ReserveNonce implements reserve_nonce: sync_onchain first, then an
// atomic read-and-increment under the space's write lock.
func (n *NonceManager) ReserveNonce(isRegistration bool) (uint32, error) {
	s := n.space(isRegistration)

	onchainNext, err := n.reader.OnchainNextNonce(isRegistration)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if onchainNext > s.next {
		s.next = onchainNext
	}
	for reserved := range s.reserved {
		if reserved < onchainNext {
			delete(s.reserved, reserved)
		}
	}

	issued := s.next
	s.next++
	s.reserved[issued] = struct{}{}
	return issued, nil
}

// ReleaseNonce implements release_nonce: idempotent removal from the
// reserved set.
func (n *NonceManager) ReleaseNonce(nonce uint32, isRegistration bool) {
	s := n.space(isRegistration)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, nonce)
}

// SmallestReservedNonce implements smallest_reserved_nonce.
func (n *NonceManager) SmallestReservedNonce(isRegistration bool) (uint32, bool) {
	s := n.space(isRegistration)
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.reserved) == 0 {
		return 0, false
	}
	smallest := uint32(0)
	first := true
	for v := range s.reserved {
		if first || v < smallest {
			smallest = v
			first = false
		}
	}
	return smallest, true
}
