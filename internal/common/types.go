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

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

// PubKey is a user's 256-bit BLS public key, serialized big-endian.
type PubKey [32]byte

// DummyPubKey is the sentinel used to pad a block's sender list out to
// NUM_SENDERS_IN_BLOCK. All-zero sorts last under descending order, which is
// exactly the padding position the builder FSM relies on.
var DummyPubKey = PubKey{}

func (p PubKey) Bytes() []byte { return p[:] }

func (p PubKey) String() string { return hex.EncodeToString(p[:]) }

// Cmp orders two pubkeys as big-endian integers, matching the "sorted
// descending" requirement of the proposal memo.
func (p PubKey) Cmp(o PubKey) int { return bytes.Compare(p[:], o[:]) }

func (p PubKey) IsDummy() bool { return p == DummyPubKey }

// Hash is a 256-bit content hash, used for MetaData.digest, node hashes and
// leaf hashes throughout the historical trees.
type Hash [32]byte

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// HashBytes content-addresses an arbitrary payload; store-vault digests and
// tree leaf/node hashes are all instances of this.
func HashBytes(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// TwoToOne combines two child hashes into a parent node hash. The real
// circuit uses a Poseidon-family hash over the field; off-chain bookkeeping
// only needs collision resistance and determinism, so sha256 stands in at
// the seam (see DESIGN.md).
func TwoToOne(left, right Hash) Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return HashBytes(buf)
}

// U256 is an unsigned 256-bit amount. Overflow/underflow in asset arithmetic
// is surfaced via ok=false rather than panicking or wrapping, matching the
// AssetLeaf.is_insufficient flag in spec.md section 3.
type U256 struct {
	v *big.Int
}

var u256Max = func() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}()

func NewU256(v uint64) U256 { return U256{v: new(big.Int).SetUint64(v)} }

func U256FromBig(v *big.Int) U256 { return U256{v: new(big.Int).Set(v)} }

func (u U256) Big() *big.Int { return new(big.Int).Set(u.v) }

func (u U256) Add(o U256) (U256, bool) {
	sum := new(big.Int).Add(u.v, o.v)
	if sum.Cmp(u256Max) > 0 {
		return U256{}, false
	}
	return U256{v: sum}, true
}

func (u U256) Sub(o U256) (U256, bool) {
	if u.v.Cmp(o.v) < 0 {
		return U256{}, false
	}
	return U256{v: new(big.Int).Sub(u.v, o.v)}, true
}

func (u U256) Cmp(o U256) int { return u.v.Cmp(o.v) }

// Transfer is a single movement inside a Tx, per spec.md section 3.
type Transfer struct {
	RecipientPubKey *PubKey // set iff intra-rollup transfer
	RecipientAddr   []byte  // set iff withdrawal to an L1 address
	TokenIndex      uint32
	Amount          U256
	Salt            Hash
}

// Tx is a user's per-block contribution: a root over its transfer tree plus
// a strictly-increasing nonce.
type Tx struct {
	TransferTreeRoot Hash
	Nonce            uint32
}

// DefaultTx is the padding tx used when a sender slot has no real request.
var DefaultTx = Tx{}

// MetaData is the ordering key of the store-vault sequence model: rows are
// totally ordered by (Timestamp, Digest) lexicographically ascending.
type MetaData struct {
	Timestamp uint64
	Digest    Hash
}

func (m MetaData) Less(o MetaData) bool {
	if m.Timestamp != o.Timestamp {
		return m.Timestamp < o.Timestamp
	}
	return bytes.Compare(m.Digest[:], o.Digest[:]) < 0
}
