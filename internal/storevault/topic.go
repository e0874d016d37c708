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

// Package storevault implements the topic-scoped snapshot/sequence store of
// spec.md section 4.9: optimistic-concurrency snapshots, an append-only
// sequence log, cursor pagination, and per-topic ACL enforcement.
package storevault

import (
	"github.com/pkg/errors"

	"github.com/klaytn/intmax2-rollup/internal/common"
)

// ReadRight is a topic's read access policy.
type ReadRight string

const (
	AuthRead ReadRight = "auth"
	OpenRead ReadRight = "open"
)

// WriteRight is a topic's write access policy.
type WriteRight string

const (
	SingleAuthWrite WriteRight = "single-auth"
	SingleOpenWrite WriteRight = "single-open"
	AuthWrite       WriteRight = "auth"
	OpenWrite       WriteRight = "open"
)

// Kind distinguishes the two storage modes.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindSequence Kind = "sequence"
)

// Topic is a namespaced, access-controlled channel, per spec.md section 3.
type Topic struct {
	Name       string
	ReadRight  ReadRight
	WriteRight WriteRight
	Kind       Kind
}

// CheckWrite enforces the ACL for a write by caller (the authenticated
// pubkey on the request) targeting owner (the pubkey the data belongs to),
// per spec.md section 4.9.
func (t Topic) CheckWrite(caller, owner common.PubKey, hasAuth bool, prevDigestSet bool) error {
	switch t.WriteRight {
	case SingleAuthWrite:
		if !hasAuth || caller != owner {
			return errors.Wrapf(common.ErrForbidden, "topic %s requires single-auth write", t.Name)
		}
		if prevDigestSet {
			return errors.Wrapf(common.ErrForbidden, "topic %s forbids prev_digest on single-auth write", t.Name)
		}
	case SingleOpenWrite:
		if prevDigestSet {
			return errors.Wrapf(common.ErrForbidden, "topic %s forbids prev_digest on single-open write", t.Name)
		}
	case AuthWrite:
		if !hasAuth || caller != owner {
			return errors.Wrapf(common.ErrForbidden, "topic %s requires auth write for own pubkey", t.Name)
		}
	case OpenWrite:
		// anyone may write
	default:
		return errors.Errorf("topic %s: unknown write right %q", t.Name, t.WriteRight)
	}
	return nil
}

// CheckSequenceWrite additionally forbids prev_digest for sequence topics
// regardless of write right, per spec.md section 4.9 ("forbidden for
// sequence topics").
func (t Topic) CheckSequenceWrite(prevDigestSet bool) error {
	if t.Kind == KindSequence && prevDigestSet {
		return errors.Wrapf(common.ErrForbidden, "topic %s: prev_digest forbidden for sequence topics", t.Name)
	}
	return nil
}

// CheckRead enforces the ACL for a read by caller targeting owner.
func (t Topic) CheckRead(caller, owner common.PubKey, hasAuth bool) error {
	switch t.ReadRight {
	case AuthRead:
		if !hasAuth || caller != owner {
			return errors.Wrapf(common.ErrForbidden, "topic %s requires auth read", t.Name)
		}
	case OpenRead:
		// anyone may read
	default:
		return errors.Errorf("topic %s: unknown read right %q", t.Name, t.ReadRight)
	}
	return nil
}
