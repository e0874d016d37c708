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

// Package contractclient decodes the two L2 calldata shapes named in
// spec.md section 6. Everything else about the L2 contract (ABI encoding
// for submission, gas estimation, event subscription plumbing) is out of
// scope per spec.md section 1; this package only does the minimum decoding
// the observer needs to reconstruct a BlockPostedEvent's sender set from
// calldata when the emitted event itself doesn't carry it.
package contractclient

import (
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// AccountIDBits is the packed width of one account id entry in a
// non-registration block's accountIds calldata field, per spec.md
// section 6.
const AccountIDBits = 40

// DecodeAccountIDs unpacks a big-endian AccountIDBits-per-entry byte array
// into numSenders uint64 values, per spec.md section 6:
// "accountIds: a packed big-endian 40-bit-per-entry byte array of length
// ceil(NUM_SENDERS_IN_BLOCK * 40 / 8)".
func DecodeAccountIDs(data []byte, numSenders int) ([]uint64, error) {
	expectedBits := numSenders * AccountIDBits
	expectedBytes := (expectedBits + 7) / 8
	if len(data) != expectedBytes {
		return nil, errors.Errorf("account id calldata: expected %d bytes, got %d", expectedBytes, len(data))
	}

	ids := make([]uint64, numSenders)
	bitOffset := 0
	for i := 0; i < numSenders; i++ {
		ids[i] = readBEBits(data, bitOffset, AccountIDBits)
		bitOffset += AccountIDBits
	}
	return ids, nil
}

// EncodeAccountIDs is the inverse of DecodeAccountIDs, used by tests and by
// any caller reconstructing calldata for comparison against an on-chain
// transaction.
func EncodeAccountIDs(ids []uint64) []byte {
	expectedBits := len(ids) * AccountIDBits
	out := make([]byte, (expectedBits+7)/8)
	bitOffset := 0
	for _, id := range ids {
		writeBEBits(out, bitOffset, AccountIDBits, id)
		bitOffset += AccountIDBits
	}
	return out
}

func readBEBits(data []byte, bitOffset, bitLen int) uint64 {
	var v uint64
	for i := 0; i < bitLen; i++ {
		byteIdx := (bitOffset + i) / 8
		bitIdx := 7 - (bitOffset+i)%8
		bit := (data[byteIdx] >> uint(bitIdx)) & 1
		v = (v << 1) | uint64(bit)
	}
	return v
}

func writeBEBits(data []byte, bitOffset, bitLen int, v uint64) {
	for i := bitLen - 1; i >= 0; i-- {
		bit := byte((v >> uint(i)) & 1)
		pos := bitOffset + (bitLen - 1 - i)
		byteIdx := pos / 8
		bitIdx := 7 - pos%8
		if bit == 1 {
			data[byteIdx] |= 1 << uint(bitIdx)
		}
	}
}

// RegistrationBlockCalldata mirrors postRegistrationBlock's arguments.
type RegistrationBlockCalldata struct {
	TxTreeRoot      common.Hash
	Expiry          uint64
	SenderFlag      [16]byte
	AggPubkey       [4][32]byte
	AggSignature    [4][32]byte
	MessagePoint    [4][32]byte
	SenderPublicKeys []common.PubKey
}

// NonRegistrationBlockCalldata mirrors postNonRegistrationBlock's
// arguments.
type NonRegistrationBlockCalldata struct {
	TxTreeRoot   common.Hash
	Expiry       uint64
	SenderFlag   [16]byte
	AggPubkey    [4][32]byte
	AggSignature [4][32]byte
	MessagePoint [4][32]byte
	PubkeyHash   common.Hash
	AccountIDs   []uint64
}

// DecodeRegistrationBlock is a thin struct-field extraction over
// already-ABI-decoded values (full Solidity ABI decoding is out of scope
// per spec.md section 1; callers hand this function the already-unpacked
// argument tuple from whatever ABI library the cmd/ wiring chooses).
func DecodeRegistrationBlock(txTreeRoot common.Hash, expiry uint64, senderFlag [16]byte, aggPubkey, aggSig, msgPoint [4][32]byte, senderPubKeysRaw [][]byte) (*RegistrationBlockCalldata, error) {
	pubkeys := make([]common.PubKey, len(senderPubKeysRaw))
	for i, raw := range senderPubKeysRaw {
		if len(raw) != 32 {
			return nil, errors.Errorf("sender pubkey %d: expected 32 bytes, got %d", i, len(raw))
		}
		copy(pubkeys[i][:], raw)
	}
	return &RegistrationBlockCalldata{
		TxTreeRoot:       txTreeRoot,
		Expiry:           expiry,
		SenderFlag:       senderFlag,
		AggPubkey:        aggPubkey,
		AggSignature:     aggSig,
		MessagePoint:     msgPoint,
		SenderPublicKeys: pubkeys,
	}, nil
}

// DecodeNonRegistrationBlock decodes the packed accountIds field and
// assembles the rest of the non-registration calldata shape.
func DecodeNonRegistrationBlock(txTreeRoot common.Hash, expiry uint64, senderFlag [16]byte, aggPubkey, aggSig, msgPoint [4][32]byte, pubkeyHash common.Hash, accountIDsRaw []byte, numSenders int) (*NonRegistrationBlockCalldata, error) {
	ids, err := DecodeAccountIDs(accountIDsRaw, numSenders)
	if err != nil {
		return nil, err
	}
	return &NonRegistrationBlockCalldata{
		TxTreeRoot:   txTreeRoot,
		Expiry:       expiry,
		SenderFlag:   senderFlag,
		AggPubkey:    aggPubkey,
		AggSignature: aggSig,
		MessagePoint: msgPoint,
		PubkeyHash:   pubkeyHash,
		AccountIDs:   ids,
	}, nil
}
