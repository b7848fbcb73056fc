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

package datamodel

import (
	"errors"
	"fmt"
)

// Sentinel errors for the workflow core. All of them are recoverable by the
// caller; none abort the process.
var (
	// ErrStructuralInvalid means that a template tree has a cycle or no root
	ErrStructuralInvalid = errors.New("workflow template tree is structurally invalid")

	// ErrInvalidTransition means that a step-status change was requested from a state that does not permit it
	ErrInvalidTransition = errors.New("invalid step transition")

	// ErrAlreadyTerminal means that a step in COMPLETED, SKIPPED or FAILED was asked to change
	ErrAlreadyTerminal = errors.New("step is already in a terminal state")

	// ErrInsufficientPieces means that a stage requested more pieces than the upstream pool has available
	ErrInsufficientPieces = errors.New("insufficient pieces available")

	// ErrPieceCountMismatch means that finished+rejected+rework does not equal the reported actual count
	ErrPieceCountMismatch = errors.New("piece counts do not reconcile")

	// ErrNotFound means that the referenced template, workflow, step or stage batch does not exist
	// for the caller's tenant. Tenant mismatch is deliberately indistinguishable from absence.
	ErrNotFound = errors.New("not found")
)

// InsufficientPiecesError carries the requested and available counts for an
// over-consumption attempt. It unwraps to ErrInsufficientPieces.
type InsufficientPiecesError struct {
	Requested int64
	Available int64
}

func (e *InsufficientPiecesError) Error() string {
	return fmt.Sprintf("insufficient pieces available: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientPiecesError) Unwrap() error {
	return ErrInsufficientPieces
}

// PieceCountMismatchError carries the three reported counts and the actual
// produced count they fail to sum to. It unwraps to ErrPieceCountMismatch.
type PieceCountMismatchError struct {
	Finished int64
	Rejected int64
	Rework   int64
	Actual   int64
}

func (e *PieceCountMismatchError) Error() string {
	return fmt.Sprintf(
		"piece counts do not reconcile: finished %d + rejected %d + rework %d = %d, actual produced %d",
		e.Finished,
		e.Rejected,
		e.Rework,
		e.Finished+e.Rejected+e.Rework,
		e.Actual)
}

func (e *PieceCountMismatchError) Unwrap() error {
	return ErrPieceCountMismatch
}
