// Copyright 2023 Forge Track Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package services is the workflow orchestration facade. Every operation is
// scoped to a tenant and re-validates ownership before mutating anything.
package services

import (
	"github.com/forge-track/forge-track/cmd/forge-track/database"
	"github.com/forge-track/forge-track/cmd/forge-track/ledger"
)

// Service bundles the repository and the shared piece ledger behind the
// public workflow operations.
type Service struct {
	db     *database.Connection
	ledger *ledger.Service
}

func NewService(db *database.Connection) *Service {
	return &Service{
		db:     db,
		ledger: ledger.NewService(db),
	}
}

// Ledger exposes the shared piece ledger to the HTTP layer
func (s *Service) Ledger() *ledger.Service {
	return s.ledger
}
