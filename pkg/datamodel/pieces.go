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

import "fmt"

// ValidatePieceCounts checks the completion-report sum invariant:
// finished + rejected + rework must equal the actual produced count exactly,
// and no count may be negative.
func ValidatePieceCounts(finished int64, rejected int64, rework int64, actual int64) error {
	if finished < 0 || rejected < 0 || rework < 0 || actual < 0 {
		return fmt.Errorf("%w: negative piece count", ErrPieceCountMismatch)
	}
	if finished+rejected+rework != actual {
		return &PieceCountMismatchError{
			Finished: finished,
			Rejected: rejected,
			Rework:   rework,
			Actual:   actual,
		}
	}
	return nil
}

// ConsumePiecesForNext draws pieces from a step's forward-flow pool.
// The pool is decremented by exactly the requested count and can never go
// below zero; over-consumption fails without touching the pool.
func (s *StepInstance) ConsumePiecesForNext(requested int64) error {
	if requested <= 0 {
		return fmt.Errorf("%w: requested count must be positive, got %d", ErrInsufficientPieces, requested)
	}
	available := int64(0)
	if s.PiecesAvailableForNext != nil {
		available = *s.PiecesAvailableForNext
	}
	if requested > available {
		return &InsufficientPiecesError{Requested: requested, Available: available}
	}
	remaining := available - requested
	s.PiecesAvailableForNext = &remaining
	return nil
}

// ConsumePiecesForRework draws pieces from a step's rework pool. Forward
// stock is untouched; the two pools never mix.
func (s *StepInstance) ConsumePiecesForRework(requested int64) error {
	if requested <= 0 {
		return fmt.Errorf("%w: requested count must be positive, got %d", ErrInsufficientPieces, requested)
	}
	available := int64(0)
	if s.ReworkPiecesAvailable != nil {
		available = *s.ReworkPiecesAvailable
	}
	if requested > available {
		return &InsufficientPiecesError{Requested: requested, Available: available}
	}
	remaining := available - requested
	s.ReworkPiecesAvailable = &remaining
	return nil
}

// RecordProducedPieces sets the step's piece ledger from a completion report.
// InitialPiecesCount is immutable once set: a second report fails.
// The finished pieces become the pool available to the next stage; rework
// pieces land in the separate rework pool.
func (s *StepInstance) RecordProducedPieces(finished int64, rejected int64, rework int64, actual int64) error {
	if err := ValidatePieceCounts(finished, rejected, rework, actual); err != nil {
		return err
	}
	if s.InitialPiecesCount != nil {
		return fmt.Errorf("%w: step %d already reported its produced pieces", ErrAlreadyTerminal, s.ID)
	}
	initial := finished
	available := finished
	reworkPool := rework
	s.InitialPiecesCount = &initial
	s.PiecesAvailableForNext = &available
	s.ReworkPiecesAvailable = &reworkPool
	return nil
}
