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

// Package ratemanager implements the sliding-window success/failure counters
// and stop-flag circuit breaker described in spec.md section 4.10, grounded
// on the teacher's rcrowley/go-metrics usage in datasync/chaindatafetcher.
package ratemanager

import (
	"context"
	"sync"
	"time"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

var logger = common.NewModuleLogger("ratemanager")

// Manager is a sliding-window multiset keyed by string label, plus a
// separate map of stop flags. A single mutex protects both; acquiring it
// past the configured Timeout returns ErrTimeout rather than blocking
// forever, matching "all operations are protected by a single asynchronous
// lock with an overall timeout" in spec.md section 4.10.
type Manager struct {
	window  time.Duration
	timeout time.Duration

	mu        sync.Mutex
	entries   map[string][]time.Time
	stopFlags map[string]bool
}

func New(window, timeout time.Duration) *Manager {
	return &Manager{
		window:    window,
		timeout:   timeout,
		entries:   make(map[string][]time.Time),
		stopFlags: make(map[string]bool),
	}
}

// withLock acquires m.mu, bailing out with ErrTimeout if ctx is cancelled or
// the configured timeout elapses first. go-metrics style managers elsewhere
// in the teacher don't need this since they use lock-free counters; the
// rate manager's compound operations (add+evict) need a critical section.
func (m *Manager) withLock(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		fn()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warnw("lock acquisition timed out", "timeout", m.timeout)
		return common.ErrTimeout
	}
}

// Add records an observation for label at the current time.
func (m *Manager) Add(ctx context.Context, label string) error {
	return m.withLock(ctx, func() {
		m.entries[label] = append(m.entries[label], time.Now())
	})
}

// Count returns the number of entries for label younger than the window.
func (m *Manager) Count(ctx context.Context, label string) (int, error) {
	var n int
	err := m.withLock(ctx, func() {
		cutoff := time.Now().Add(-m.window)
		for _, t := range m.entries[label] {
			if t.After(cutoff) {
				n++
			}
		}
	})
	return n, err
}

// LastAdded returns the most recent Add time for label, regardless of
// window freshness. The rust source computes this via a discarded
// conditional (spec.md section 9's "dead code branch"); callers there rely
// on the unconditional most-recent-timestamp semantics, which is what this
// implements.
func (m *Manager) LastAdded(ctx context.Context, label string) (time.Time, bool, error) {
	var (
		last time.Time
		ok   bool
	)
	err := m.withLock(ctx, func() {
		entries := m.entries[label]
		if len(entries) == 0 {
			return
		}
		last = entries[len(entries)-1]
		ok = true
	})
	return last, ok, err
}

// Cleanup evicts entries older than the window across all labels.
func (m *Manager) Cleanup(ctx context.Context) error {
	return m.withLock(ctx, func() {
		cutoff := time.Now().Add(-m.window)
		for label, entries := range m.entries {
			kept := entries[:0]
			for _, t := range entries {
				if t.After(cutoff) {
					kept = append(kept, t)
				}
			}
			if len(kept) == 0 {
				delete(m.entries, label)
			} else {
				m.entries[label] = kept
			}
		}
	})
}

// SetStopFlag raises the circuit breaker for label; the owning component's
// inner loop is expected to observe it via GetStopFlag on its next tick and
// exit, per spec.md section 4.5's "failover" description.
func (m *Manager) SetStopFlag(ctx context.Context, label string) error {
	return m.withLock(ctx, func() {
		m.stopFlags[label] = true
		logger.Warnw("stop flag set", "label", label)
	})
}

func (m *Manager) ClearStopFlag(ctx context.Context, label string) error {
	return m.withLock(ctx, func() {
		delete(m.stopFlags, label)
	})
}

func (m *Manager) GetStopFlag(ctx context.Context, label string) (bool, error) {
	var flagged bool
	err := m.withLock(ctx, func() {
		flagged = m.stopFlags[label]
	})
	return flagged, err
}
