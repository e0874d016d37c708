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

import "github.com/pkg/errors"

// Registry resolves the ASCII topic identifiers named in requests to their
// configured {read_rights, write_rights, kind} triple, per spec.md section
// 3. A deployment's topic set is fixed at startup (e.g. "balance-proof",
// "transfer-data", "withdrawal-data"), so a simple map is the idiomatic
// shape rather than parsing rights out of the identifier string itself.
type Registry struct {
	topics map[string]Topic
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]Topic)}
}

// Register adds a topic definition; it panics on a duplicate name since
// that indicates a configuration bug, not a runtime condition.
func (r *Registry) Register(topic Topic) {
	if _, exists := r.topics[topic.Name]; exists {
		panic("duplicate topic registration: " + topic.Name)
	}
	r.topics[topic.Name] = topic
}

func (r *Registry) Resolve(name string) (Topic, error) {
	t, ok := r.topics[name]
	if !ok {
		return Topic{}, errors.Errorf("unknown topic %q", name)
	}
	return t, nil
}
