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

package provercoordinator

import (
	"fmt"
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"
)

type concatComposer struct{}

func (concatComposer) Compose(prev, transition []byte, blockNumber uint32) ([]byte, error) {
	return []byte(fmt.Sprintf("%s+%s@%d", prev, transition, blockNumber)), nil
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ProverTaskRow{}, &ValidityProofRow{}).Error)
	return New(db, concatComposer{}, time.Minute)
}

func TestAssignTaskSelectsSmallestBlockNumber(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.RegisterTask(10))
	require.NoError(t, c.RegisterTask(3))
	require.NoError(t, c.RegisterTask(7))

	task, err := c.AssignTask()
	require.NoError(t, err)
	require.NotNil(t, task)
	require.EqualValues(t, 3, task.BlockNumber)
	require.True(t, task.Assigned)
}

func TestComposeValidityProofsStopsAtGap(t *testing.T) {
	c := newTestCoordinator(t)
	require.NoError(t, c.RegisterTask(0))
	require.NoError(t, c.RegisterTask(1))
	require.NoError(t, c.RegisterTask(2))

	require.NoError(t, c.CompleteTask(0, []byte("t0")))
	require.NoError(t, c.CompleteTask(1, []byte("t1")))
	// Block 2 left incomplete: a gap.

	composed, err := c.ComposeValidityProofs()
	require.NoError(t, err)
	require.Equal(t, 2, composed)

	latest, err := c.LatestValidityProofBlockNumber()
	require.NoError(t, err)
	require.EqualValues(t, 1, latest)

	// Completing block 2 and re-running should pick up where it left off.
	require.NoError(t, c.CompleteTask(2, []byte("t2")))
	composed, err = c.ComposeValidityProofs()
	require.NoError(t, err)
	require.Equal(t, 1, composed)
}

func TestUnassignStale(t *testing.T) {
	c := newTestCoordinator(t)
	c.heartbeatInterval = time.Millisecond
	require.NoError(t, c.RegisterTask(1))

	task, err := c.AssignTask()
	require.NoError(t, err)
	require.NotNil(t, task)

	time.Sleep(5 * time.Millisecond)

	n, err := c.UnassignStale()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	reassigned, err := c.AssignTask()
	require.NoError(t, err)
	require.NotNil(t, reassigned)
	require.EqualValues(t, 1, reassigned.BlockNumber)
}
