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

import (
	"context"
	"fmt"
	"time"

	"github.com/klaytn/intmax2-rollup/internal/common"
	"github.com/klaytn/intmax2-rollup/internal/ratemanager"
)

var logger = common.NewModuleLogger("observer")

// Config mirrors the OBSERVER_* environment variables of spec.md section 6.
type Config struct {
	SyncInterval     time.Duration
	MaxQueryTimes    int
	ErrorThreshold   int
	RestartInterval  time.Duration
}

func DefaultConfig() Config {
	return Config{
		SyncInterval:    3 * time.Second,
		MaxQueryTimes:   10,
		ErrorThreshold:  5,
		RestartInterval: 10 * time.Second,
	}
}

// Observer runs the three per-stream sync loops described in spec.md
// section 4.5, each under its own supervise-and-restart wrapper grounded on
// the teacher's run-loop pattern in chaindata_fetcher.go's handleRequest.
type Observer struct {
	cfg     Config
	reader  ChainReader
	storage *Storage
	leader  LeaderElector
	rates   *ratemanager.Manager
}

func New(cfg Config, reader ChainReader, storage *Storage, leader LeaderElector, rates *ratemanager.Manager) *Observer {
	return &Observer{cfg: cfg, reader: reader, storage: storage, leader: leader, rates: rates}
}

// Run starts all three stream loops and blocks until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) {
	if err := o.storage.EnsureGenesis(); err != nil {
		logger.Errorw("failed to write genesis block, observer cannot start", "err", err)
		return
	}

	streams := []StreamKind{StreamDeposited, StreamDepositLeafInserted, StreamBlockPosted}
	done := make(chan struct{}, len(streams))
	for _, stream := range streams {
		stream := stream
		go func() {
			o.supervise(ctx, stream)
			done <- struct{}{}
		}()
	}
	for range streams {
		<-done
	}
}

// supervise is the "run -> on-error log -> sleep -> run" loop of spec.md
// section 9, one per stream.
func (o *Observer) supervise(ctx context.Context, stream StreamKind) {
	successLabel := fmt.Sprintf("sync_events_success_%s", stream)
	failLabel := fmt.Sprintf("sync_events_fail_%s", stream)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := o.syncOnce(ctx, stream); err != nil {
			logger.Errorw("stream sync failed", "stream", stream, "err", err)
			_ = o.rates.Add(ctx, failLabel)
			count, cerr := o.rates.Count(ctx, failLabel)
			if cerr == nil && count > o.cfg.ErrorThreshold {
				_ = o.rates.SetStopFlag(ctx, string(stream))
			}
		} else {
			_ = o.rates.Add(ctx, successLabel)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.RestartInterval):
		}
	}
}

// syncOnce runs the per-stream loop body of spec.md section 4.5: compare
// local vs on-chain next-event-id, then fetch/gap-check/insert up to
// MaxQueryTimes pages, honoring the stop flag and leadership gate.
func (o *Observer) syncOnce(ctx context.Context, stream StreamKind) error {
	stopped, err := o.rates.GetStopFlag(ctx, string(stream))
	if err != nil {
		return err
	}
	if stopped {
		return nil
	}

	for i := 0; i < o.cfg.MaxQueryTimes; i++ {
		local, err := o.storage.LocalNextEventID(stream)
		if err != nil {
			return err
		}
		onchain, err := o.reader.NextEventID(ctx, stream)
		if err != nil {
			return err
		}
		if local >= onchain {
			return nil
		}

		if err := o.leader.WaitForLeadership(ctx); err != nil {
			return err
		}

		if err := o.fetchAndInsert(ctx, stream, local); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.SyncInterval):
		}
	}
	return nil
}

func (o *Observer) fetchAndInsert(ctx context.Context, stream StreamKind, local uint64) error {
	switch stream {
	case StreamDeposited:
		events, err := o.reader.FetchDeposited(ctx, local)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		if events[0].DepositID != local {
			return &GapError{Stream: stream, Expected: local, Got: events[0].DepositID}
		}
		return o.storage.InsertDeposited(events, local+uint64(len(events)))

	case StreamDepositLeafInserted:
		events, err := o.reader.FetchDepositLeafInserted(ctx, local)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		if events[0].DepositIndex != local {
			return &GapError{Stream: stream, Expected: local, Got: events[0].DepositIndex}
		}
		return o.storage.InsertDepositLeafInserted(events, local+uint64(len(events)))

	case StreamBlockPosted:
		events, err := o.reader.FetchBlockPosted(ctx, local)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		if uint64(events[0].BlockNumber) != local {
			return &GapError{Stream: stream, Expected: local, Got: uint64(events[0].BlockNumber)}
		}
		return o.storage.InsertBlockPosted(events, local+uint64(len(events)))
	}
	return nil
}

// ResolveDepositInfo answers spec.md section 6's get-deposit-info.
func (o *Observer) ResolveDepositInfo(depositHash common.Hash) (*DepositInfo, error) {
	return o.storage.ResolveDepositInfo(depositHash)
}

// LatestBlockNumber answers spec.md section 6's /block-number.
func (o *Observer) LatestBlockNumber() (uint32, error) {
	return o.storage.LatestBlockNumber()
}

// NextDepositIndex answers spec.md section 6's /next-deposit-index: the
// next deposit index this observer has not yet ingested a DepositLeafInserted
// event for.
func (o *Observer) NextDepositIndex() (uint64, error) {
	return o.storage.LocalNextEventID(StreamDepositLeafInserted)
}
