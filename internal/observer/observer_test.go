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
	"errors"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/intmax2-rollup/internal/ratemanager"
)

type fakeReader struct {
	depositLeafEvents []DepositLeafInsertedEvent
	nextID            uint64
	err               error
}

func (f *fakeReader) NextEventID(ctx context.Context, kind StreamKind) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if kind == StreamDepositLeafInserted {
		return f.nextID, nil
	}
	return 0, nil
}

func (f *fakeReader) FetchDeposited(ctx context.Context, fromID uint64) ([]DepositedEvent, error) {
	return nil, nil
}

func (f *fakeReader) FetchDepositLeafInserted(ctx context.Context, fromIndex uint64) ([]DepositLeafInsertedEvent, error) {
	var out []DepositLeafInsertedEvent
	for _, e := range f.depositLeafEvents {
		if e.DepositIndex >= fromIndex {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeReader) FetchBlockPosted(ctx context.Context, fromBlock uint64) ([]BlockPostedEvent, error) {
	return nil, nil
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&CheckpointRow{}, &FullBlockRow{}, &DepositLeafEventRow{}, &DepositedEventRow{},
	).Error)
	return NewStorage(db)
}

// TestObserverGapDetection exercises P6 / scenario 5 from spec.md section 8.
func TestObserverGapDetection(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.EnsureGenesis())

	// Pre-populate checkpoint at 10, but the fake reader only has events
	// starting at 11 -- a gap.
	require.NoError(t, storage.InsertDepositLeafInserted(
		[]DepositLeafInsertedEvent{{DepositIndex: 0}}, 10))

	reader := &fakeReader{
		nextID: 12,
		depositLeafEvents: []DepositLeafInsertedEvent{
			{DepositIndex: 11},
		},
	}

	rates := ratemanager.New(time.Minute, time.Second)
	obs := New(DefaultConfig(), reader, storage, AlwaysLeader{}, rates)

	err := obs.fetchAndInsert(context.Background(), StreamDepositLeafInserted, 10)
	require.Error(t, err)
	var gapErr *GapError
	require.True(t, errors.As(err, &gapErr))
	require.Equal(t, uint64(10), gapErr.Expected)
	require.Equal(t, uint64(11), gapErr.Got)

	// No row should have been written past the checkpoint we seeded.
	next, err := storage.LocalNextEventID(StreamDepositLeafInserted)
	require.NoError(t, err)
	require.EqualValues(t, 10, next)
}

func TestObserverCatchesUpWithoutGap(t *testing.T) {
	storage := newTestStorage(t)
	require.NoError(t, storage.EnsureGenesis())

	reader := &fakeReader{
		nextID: 2,
		depositLeafEvents: []DepositLeafInsertedEvent{
			{DepositIndex: 0}, {DepositIndex: 1},
		},
	}
	rates := ratemanager.New(time.Minute, time.Second)
	obs := New(DefaultConfig(), reader, storage, AlwaysLeader{}, rates)

	err := obs.fetchAndInsert(context.Background(), StreamDepositLeafInserted, 0)
	require.NoError(t, err)

	next, err := storage.LocalNextEventID(StreamDepositLeafInserted)
	require.NoError(t, err)
	require.EqualValues(t, 2, next)
}

// TestObserverStopFlagThreshold exercises the error-threshold => stop-flag
// behavior from spec.md section 4.5.
func TestObserverStopFlagThreshold(t *testing.T) {
	ctx := context.Background()
	rates := ratemanager.New(time.Minute, time.Second)
	cfg := DefaultConfig()
	cfg.ErrorThreshold = 2

	for i := 0; i < 4; i++ {
		require.NoError(t, rates.Add(ctx, "sync_events_fail_block_posted"))
	}
	count, err := rates.Count(ctx, "sync_events_fail_block_posted")
	require.NoError(t, err)
	require.Greater(t, count, cfg.ErrorThreshold)

	flagged, err := rates.GetStopFlag(ctx, string(StreamBlockPosted))
	require.NoError(t, err)
	require.False(t, flagged)

	// One more failing sync through the observer's own supervise loop must
	// push the count past the threshold and raise the stop flag.
	cfg.RestartInterval = time.Millisecond
	obs := New(cfg, &fakeReader{err: errors.New("rpc down")}, newTestStorage(t), AlwaysLeader{}, rates)
	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	obs.supervise(runCtx, StreamBlockPosted)

	flagged, err = rates.GetStopFlag(ctx, string(StreamBlockPosted))
	require.NoError(t, err)
	require.True(t, flagged)
}
