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
	"time"

	"github.com/jinzhu/gorm"

	"github.com/klaytn/intmax2-rollup/internal/builder"
)

// builderHeartbeatRow is the one small piece of state this binary owns
// directly: the last time this builder announced liveness, mirrored to
// Postgres. The row is only written here; nothing reads it back on
// restart.
type builderHeartbeatRow struct {
	BuilderURL string    `gorm:"primary_key;column:builder_url"`
	LastBeatAt time.Time `gorm:"column:last_beat_at"`
}

func (builderHeartbeatRow) TableName() string { return "builder_heartbeats" }

// builderRegistry implements builder.Registry. EmitHeartBeat records the
// heartbeat locally (the on-chain registry-contract call itself is the
// same out-of-scope L1 seam as chainSeam); NextDepositIndex and
// LatestIncludedDepositIndex read the two halves of spec.md's
// enqueue_empty_block comparison — one from the validity prover over
// HTTP, the other from the L1 rollup contract, which is unavailable here.
type builderRegistry struct {
	db *gorm.DB
	vp *builder.ValidityProverClient
}

func newBuilderRegistry(db *gorm.DB, vp *builder.ValidityProverClient) *builderRegistry {
	db.AutoMigrate(&builderHeartbeatRow{})
	return &builderRegistry{db: db, vp: vp}
}

func (r *builderRegistry) EmitHeartBeat(ctx context.Context, builderURL string) error {
	row := builderHeartbeatRow{BuilderURL: builderURL, LastBeatAt: time.Now()}
	return r.db.Save(&row).Error
}

func (r *builderRegistry) NextDepositIndex(ctx context.Context) (uint64, error) {
	return r.vp.NextDepositIndex(ctx)
}

// LatestIncludedDepositIndex has no data source until an L1 client is
// wired in to read the rollup contract's included-deposit watermark; it
// mirrors NextDepositIndex so enqueue_empty_block's next > latest+1
// comparison stays dormant instead of firing on stale data.
func (r *builderRegistry) LatestIncludedDepositIndex(ctx context.Context) (uint64, error) {
	return r.vp.NextDepositIndex(ctx)
}
