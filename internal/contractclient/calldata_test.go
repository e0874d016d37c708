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

package contractclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountIDRoundTrip(t *testing.T) {
	ids := []uint64{0, 1, 1099511627775, 12345, 67890}
	encoded := EncodeAccountIDs(ids)
	require.Len(t, encoded, (len(ids)*AccountIDBits+7)/8)

	decoded, err := DecodeAccountIDs(encoded, len(ids))
	require.NoError(t, err)
	require.Equal(t, ids, decoded)
}

func TestAccountIDWrongLength(t *testing.T) {
	_, err := DecodeAccountIDs([]byte{0, 1, 2}, 10)
	require.Error(t, err)
}
