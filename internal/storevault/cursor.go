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

package storevault

import "github.com/klaytn/intmax2-rollup/internal/common"

// Order is the cursor's scan direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Cursor is MetaDataCursor from spec.md section 4.9.
type Cursor struct {
	Cursor *common.MetaData
	Order  Order
	Limit  *int
}

const defaultCursorLimit = 100

// CursorResponse is MetaDataCursorResponse from spec.md section 4.9.
type CursorResponse struct {
	NextCursor *common.MetaData
	HasMore    bool
	TotalCount int
}

func (c Cursor) limit() int {
	if c.Limit != nil && *c.Limit > 0 {
		return *c.Limit
	}
	return defaultCursorLimit
}

// Paginate fetches limit+1 rows via fetch, trims to limit, and computes
// has_more/next_cursor, per spec.md section 4.9: "has_more is computed by
// fetching limit+1 and trimming."
//
// No sentinel timestamp is used for either order: with a nil cursor,
// Storage.ListSequence puts no bound on the scan, so a "desc" scan starts
// at the newest row whatever its timestamp.
func (c Cursor) Paginate(rows []SequenceRow) ([]common.MetaData, CursorResponse) {
	limit := c.limit()
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	out := make([]common.MetaData, len(rows))
	for i, r := range rows {
		var md common.MetaData
		md.Timestamp = r.Timestamp
		copy(md.Digest[:], r.Digest)
		out[i] = md
	}

	resp := CursorResponse{HasMore: hasMore}
	if len(out) > 0 {
		last := out[len(out)-1]
		resp.NextCursor = &last
	}
	return out, resp
}
