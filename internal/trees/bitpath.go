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

package trees

import "github.com/klaytn/intmax2-rollup/internal/common"

// zeroHashes[h] is the hash of an all-empty subtree of height h.
// zeroHashes[0] is the empty leaf hash.
var zeroHashes = func() []common.Hash {
	const maxHeight = 40
	z := make([]common.Hash, maxHeight+1)
	z[0] = common.HashBytes(nil)
	for h := 1; h <= maxHeight; h++ {
		z[h] = common.TwoToOne(z[h-1], z[h-1])
	}
	return z
}()

// ZeroHash returns the precomputed zero hash for a subtree of the given
// height, falling back to on-the-fly computation past the precomputed
// table (no tree in this system exceeds height 40).
func ZeroHash(height int) common.Hash {
	if height >= 0 && height < len(zeroHashes) {
		return zeroHashes[height]
	}
	h := zeroHashes[len(zeroHashes)-1]
	for i := len(zeroHashes) - 1; i < height; i++ {
		h = common.TwoToOne(h, h)
	}
	return h
}

// bitPath renders position as a height-bit MSB-first path string, e.g.
// bitPath(5, 4) == "0101". This is the "reversed to MSB-first" path from
// spec.md section 4.6's update_leaf algorithm.
func bitPath(position uint64, height int) string {
	buf := make([]byte, height)
	for i := 0; i < height; i++ {
		bit := (position >> uint(height-1-i)) & 1
		if bit == 1 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}

// siblingPath flips the last bit of an MSB-first path, giving the path to
// the sibling of the node at the end of path.
func siblingPath(path string) string {
	if len(path) == 0 {
		return path
	}
	b := []byte(path)
	last := len(b) - 1
	if b[last] == '0' {
		b[last] = '1'
	} else {
		b[last] = '0'
	}
	return string(b)
}

// lastBit reports whether path's final bit is 1 (the node is a right
// child) and returns the path to its parent (path with the last bit
// dropped).
func lastBit(path string) (bit byte, parent string) {
	if len(path) == 0 {
		return 0, path
	}
	return path[len(path)-1], path[:len(path)-1]
}
