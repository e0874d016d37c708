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

// Package common holds primitives shared by every rollup component: the
// module logger, sentinel error taxonomy, and the pubkey/hash/amount types
// that appear on both sides of the builder/observer boundary.
package common

import (
	"sync"

	"go.uber.org/zap"
)

var (
	baseOnce   sync.Once
	baseLogger *zap.SugaredLogger
)

func base() *zap.SugaredLogger {
	baseOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		baseLogger = l.Sugar()
	})
	return baseLogger
}

// NewModuleLogger returns a logger tagged with the given module name, the
// same one-logger-per-package convention the teacher uses for
// log.NewModuleLogger(log.Common) and friends.
func NewModuleLogger(module string) *zap.SugaredLogger {
	return base().With("module", module)
}
