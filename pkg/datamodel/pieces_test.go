package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePieceCounts(t *testing.T) {
	assert.NoError(t, ValidatePieceCounts(100, 5, 0, 105))
	assert.NoError(t, ValidatePieceCounts(0, 0, 0, 0))

	err := ValidatePieceCounts(80, 10, 8, 100)
	assert.ErrorIs(t, err, ErrPieceCountMismatch)
	var mismatch *PieceCountMismatchError
	assert.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(80), mismatch.Finished)
	assert.Equal(t, int64(10), mismatch.Rejected)
	assert.Equal(t, int64(8), mismatch.Rework)
	assert.Equal(t, int64(100), mismatch.Actual)

	assert.ErrorIs(t, ValidatePieceCounts(-1, 0, 0, -1), ErrPieceCountMismatch)
}

// Scenario: forging completes with finished=100, rejected=5, rework=0 out of
// 105 actually produced; the machining stage can then draw from a pool of 100.
func TestRecordProducedPieces(t *testing.T) {
	step := &StepInstance{ID: 1, OperationType: OperationTypeForging}

	assert.NoError(t, step.RecordProducedPieces(100, 5, 0, 105))
	assert.Equal(t, int64(100), *step.InitialPiecesCount)
	assert.Equal(t, int64(100), *step.PiecesAvailableForNext)
	assert.Equal(t, int64(0), *step.ReworkPiecesAvailable)

	// the initial count is immutable
	assert.ErrorIs(t, step.RecordProducedPieces(50, 0, 0, 50), ErrAlreadyTerminal)
	assert.Equal(t, int64(100), *step.InitialPiecesCount)
}

// Scenario: a machining batch requests 120 pieces from a forging pool of 100
func TestConsumePiecesForNextInsufficient(t *testing.T) {
	step := &StepInstance{ID: 1, OperationType: OperationTypeForging}
	assert.NoError(t, step.RecordProducedPieces(100, 5, 0, 105))

	err := step.ConsumePiecesForNext(120)
	assert.ErrorIs(t, err, ErrInsufficientPieces)
	var insufficient *InsufficientPiecesError
	assert.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(120), insufficient.Requested)
	assert.Equal(t, int64(100), insufficient.Available)

	// the pool is untouched after a refused consumption
	assert.Equal(t, int64(100), *step.PiecesAvailableForNext)
}

func TestConsumePiecesConservation(t *testing.T) {
	step := &StepInstance{ID: 1, OperationType: OperationTypeForging}
	assert.NoError(t, step.RecordProducedPieces(100, 0, 0, 100))

	assert.NoError(t, step.ConsumePiecesForNext(60))
	assert.Equal(t, int64(40), *step.PiecesAvailableForNext)
	assert.Equal(t, int64(60), step.ConsumedPiecesCount())
	assert.InDelta(t, 0.6, step.Utilization(), 0.0001)

	assert.NoError(t, step.ConsumePiecesForNext(40))
	assert.Equal(t, int64(0), *step.PiecesAvailableForNext)

	// the pool never goes negative
	assert.ErrorIs(t, step.ConsumePiecesForNext(1), ErrInsufficientPieces)
	assert.Equal(t, int64(0), *step.PiecesAvailableForNext)

	assert.ErrorIs(t, step.ConsumePiecesForNext(0), ErrInsufficientPieces)
	assert.ErrorIs(t, step.ConsumePiecesForNext(-5), ErrInsufficientPieces)
}

func TestReworkPoolIsSeparate(t *testing.T) {
	step := &StepInstance{ID: 1, OperationType: OperationTypeMachining}
	assert.NoError(t, step.RecordProducedPieces(80, 12, 8, 100))

	assert.Equal(t, int64(80), *step.PiecesAvailableForNext)
	assert.Equal(t, int64(8), *step.ReworkPiecesAvailable)

	// a rework consumer cannot drain forward stock
	assert.ErrorIs(t, step.ConsumePiecesForRework(9), ErrInsufficientPieces)
	assert.NoError(t, step.ConsumePiecesForRework(8))
	assert.Equal(t, int64(0), *step.ReworkPiecesAvailable)
	assert.Equal(t, int64(80), *step.PiecesAvailableForNext)
}

func TestConsumeBeforeProductionFails(t *testing.T) {
	step := &StepInstance{ID: 1, OperationType: OperationTypeForging}

	err := step.ConsumePiecesForNext(10)
	assert.ErrorIs(t, err, ErrInsufficientPieces)
	var insufficient *InsufficientPiecesError
	assert.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(0), insufficient.Available)
}
