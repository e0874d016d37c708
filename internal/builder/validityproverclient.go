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

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// ValidityProverClient is the block builder's side of spec.md section 6's
// validity-prover REST surface: it satisfies AccountInfoReader and the
// validity-prover half of ChainSyncStatus, and the NextDepositIndex side of
// Registry, by calling the sibling validity-prover process over HTTP rather
// than sharing its database.
type ValidityProverClient struct {
	baseURL string
	client  *http.Client
}

func NewValidityProverClient(baseURL string) *ValidityProverClient {
	return &ValidityProverClient{baseURL: baseURL, client: http.DefaultClient}
}

func (c *ValidityProverClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "validity prover %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("validity prover %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// AccountID implements AccountInfoReader.
func (c *ValidityProverClient) AccountID(ctx context.Context, pubkey common.PubKey) (uint64, bool, error) {
	var body struct {
		AccountID  uint64 `json:"account_id"`
		Registered bool   `json:"registered"`
	}
	q := url.Values{"pubkey": {hex.EncodeToString(pubkey.Bytes())}}
	if err := c.get(ctx, "/get-account-info", q, &body); err != nil {
		return 0, false, err
	}
	return body.AccountID, body.Registered, nil
}

// ValidityProverLatestBlockNumber implements half of ChainSyncStatus; the
// on-chain half (OnchainLatestBlockNumber) has no analog here, it requires
// an L1 RPC client, out of scope per spec.md section 1.
func (c *ValidityProverClient) ValidityProverLatestBlockNumber(ctx context.Context) (uint32, error) {
	var body struct {
		BlockNumber uint32 `json:"block_number"`
	}
	if err := c.get(ctx, "/validity-proof-block-number", nil, &body); err != nil {
		return 0, err
	}
	return body.BlockNumber, nil
}

// NextDepositIndex implements part of Registry by delegating to the
// validity prover's view of the deposit tree rather than maintaining a
// second copy of deposit-index bookkeeping in the builder.
func (c *ValidityProverClient) NextDepositIndex(ctx context.Context) (uint64, error) {
	var body struct {
		NextDepositIndex uint64 `json:"next_deposit_index"`
	}
	if err := c.get(ctx, "/next-deposit-index", nil, &body); err != nil {
		return 0, err
	}
	return body.NextDepositIndex, nil
}
