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

// Package ledger implements the piece-count conservation protocol shared by
// every stage batch service. Each stage used to run its own copy of the same
// three-step bookkeeping; here there is exactly one creation protocol and one
// completion protocol, parameterized by operation type, so the stages cannot
// drift apart.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/forge-track/forge-track/cmd/forge-track/database"
	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Service runs every ledger mutation inside one database transaction per
// logical operation, serialized per workflow by the connection's mutex.
type Service struct {
	db *database.Connection
}

func NewService(db *database.Connection) *Service {
	return &Service{db: db}
}

// CreationRequest describes a stage batch being created, either from
// upstream output or as the workflow's entry batch taking in raw material.
type CreationRequest struct {
	BatchID string

	WorkflowID int64

	// UpstreamStepID is the step whose pool supplies the pieces. Zero marks
	// an entry batch: the consuming step must then be a root step, and no
	// pool is consumed because root stock comes from raw-material heats.
	UpstreamStepID int64

	// ConsumingStepID is the step the new batch works on. It is started if
	// still pending.
	ConsumingStepID int64

	RequestedPieces int64

	// FromReworkPool draws from the upstream rework pool instead of the
	// forward-flow pool.
	FromReworkPool bool
}

// CompletionReport is the output a stage batch reports when it ends
type CompletionReport struct {
	BatchID        string
	WorkflowID     int64
	StepID         int64
	FinishedPieces int64
	RejectedPieces int64
	ReworkPieces   int64
	ActualProduced int64
}

// CreateStageBatch executes the creation protocol: verify the upstream pool
// covers the request, decrement it by exactly the requested count, start the
// consuming step if needed and record the new batch. All of it commits
// atomically or none of it does. An entry batch (no upstream step) skips the
// pool bookkeeping; its ledger is established when the batch completes.
func (s *Service) CreateStageBatch(customer string, req CreationRequest) (workflow *datamodel.ItemWorkflow, err error) {
	observeOperation("create")
	if !s.db.WorkflowMutex.TryLock(req.WorkflowID) {
		return nil, fmt.Errorf("could not acquire lock for workflow %d", req.WorkflowID)
	}
	defer s.db.WorkflowMutex.Unlock(req.WorkflowID)

	ctx, cncl := context.WithTimeout(context.Background(), transactionTimeout)
	defer cncl()
	tx, err := s.db.Db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollbackUnlessCommitted(ctx, tx)

	workflow, err = s.db.GetItemWorkflowTx(ctx, tx, customer, req.WorkflowID)
	if err != nil {
		return nil, s.fail("create", err)
	}
	consuming := workflow.GetStep(req.ConsumingStepID)
	if consuming == nil {
		return nil, s.fail("create", fmt.Errorf("%w: consuming step %d", datamodel.ErrNotFound, req.ConsumingStepID))
	}

	var upstream *datamodel.StepInstance
	if req.UpstreamStepID != 0 {
		upstream = workflow.GetStep(req.UpstreamStepID)
		if upstream == nil {
			return nil, s.fail("create", fmt.Errorf("%w: upstream step %d", datamodel.ErrNotFound, req.UpstreamStepID))
		}
		if req.FromReworkPool {
			err = upstream.ConsumePiecesForRework(req.RequestedPieces)
		} else {
			err = upstream.ConsumePiecesForNext(req.RequestedPieces)
		}
		if err != nil {
			return nil, s.fail("create", err)
		}
	} else {
		if !consuming.IsRootStep() {
			return nil, s.fail("create", fmt.Errorf(
				"%w: step %d is not a workflow entry point, an upstream step is required",
				datamodel.ErrStructuralInvalid, consuming.ID))
		}
		if req.FromReworkPool {
			return nil, s.fail("create", fmt.Errorf(
				"%w: an entry batch has no rework pool to draw from",
				datamodel.ErrStructuralInvalid))
		}
	}

	if consuming.Status == datamodel.StepStatusPending {
		s.warnOnInconsistentMirror(customer, workflow, consuming)
		hadIdentifier := workflow.WorkflowIdentifier != ""
		err = workflow.StartOperationStep(consuming)
		if err != nil {
			return nil, s.fail("create", err)
		}
		if !hadIdentifier {
			err = s.db.UpdateWorkflowIdentifierTx(ctx, tx, workflow)
			if err != nil {
				return nil, s.fail("create", err)
			}
		}
		err = s.db.UpdateStepTx(ctx, tx, consuming)
		if err != nil {
			return nil, s.fail("create", err)
		}
	}

	if upstream != nil {
		err = s.db.UpdateStepTx(ctx, tx, upstream)
		if err != nil {
			return nil, s.fail("create", err)
		}
	}

	batch := &datamodel.StageBatch{
		BatchID:        req.BatchID,
		StepInstanceID: consuming.ID,
		OperationType:  consuming.OperationType,
	}
	err = s.db.InsertStageBatchTx(ctx, tx, batch)
	if err != nil {
		return nil, s.fail("create", err)
	}
	err = s.db.AddStepRelatedEntityTx(ctx, tx, consuming.ID, req.BatchID)
	if err != nil {
		return nil, s.fail("create", err)
	}
	if upstream != nil {
		err = s.db.AddStepRelatedEntityTx(ctx, tx, upstream.ID, req.BatchID)
		if err != nil {
			return nil, s.fail("create", err)
		}
	}
	err = s.db.InsertWorkflowEventTx(ctx, tx, workflow.ID, "stage-batch.create", req)
	if err != nil {
		return nil, s.fail("create", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, s.fail("create", err)
	}
	return workflow, nil
}

// CompleteStageBatch executes the completion protocol: the reported counts
// must reconcile exactly, the step's ledger is sealed with the finished count
// and the step goes terminal. Atomic per operation.
func (s *Service) CompleteStageBatch(customer string, report CompletionReport) (workflow *datamodel.ItemWorkflow, err error) {
	observeOperation("complete")
	if !s.db.WorkflowMutex.TryLock(report.WorkflowID) {
		return nil, fmt.Errorf("could not acquire lock for workflow %d", report.WorkflowID)
	}
	defer s.db.WorkflowMutex.Unlock(report.WorkflowID)

	ctx, cncl := context.WithTimeout(context.Background(), transactionTimeout)
	defer cncl()
	tx, err := s.db.Db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer rollbackUnlessCommitted(ctx, tx)

	workflow, err = s.db.GetItemWorkflowTx(ctx, tx, customer, report.WorkflowID)
	if err != nil {
		return nil, s.fail("complete", err)
	}
	step := workflow.GetStep(report.StepID)
	if step == nil {
		return nil, s.fail("complete", fmt.Errorf("%w: step %d", datamodel.ErrNotFound, report.StepID))
	}

	err = step.RecordProducedPieces(
		report.FinishedPieces,
		report.RejectedPieces,
		report.ReworkPieces,
		report.ActualProduced)
	if err != nil {
		return nil, s.fail("complete", err)
	}

	err = workflow.FinishOperationStep(step, datamodel.StepStatusCompleted)
	if err != nil {
		return nil, s.fail("complete", err)
	}
	step.OperationReferenceID = &report.BatchID

	err = s.db.UpdateStepTx(ctx, tx, step)
	if err != nil {
		return nil, s.fail("complete", err)
	}
	err = s.db.UpdateStageBatchCompletionTx(ctx, tx, &datamodel.StageBatch{
		BatchID:                report.BatchID,
		StepInstanceID:         step.ID,
		OperationType:          step.OperationType,
		PiecesProduced:         report.ActualProduced,
		AvailablePiecesForNext: report.FinishedPieces,
		RejectedCount:          report.RejectedPieces,
		ReworkCount:            report.ReworkPieces,
	})
	if err != nil {
		return nil, s.fail("complete", err)
	}
	err = s.db.AddStepRelatedEntityTx(ctx, tx, step.ID, report.BatchID)
	if err != nil {
		return nil, s.fail("complete", err)
	}
	err = s.db.InsertWorkflowEventTx(ctx, tx, workflow.ID, "stage-batch.complete", report)
	if err != nil {
		return nil, s.fail("complete", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, s.fail("complete", err)
	}
	return workflow, nil
}

// warnOnInconsistentMirror logs both inconsistent-mirror shapes before a
// step is started: a dangling parent reference, and a missing parent
// reference on a step whose template node is not a root. The resolver lets
// both start; the warning is what keeps the data bug visible.
func (s *Service) warnOnInconsistentMirror(customer string, workflow *datamodel.ItemWorkflow, step *datamodel.StepInstance) {
	if step.ParentStepID != nil {
		if _, inconsistent := datamodel.IsDependencySatisfied(workflow, step); inconsistent {
			zap.S().Warnw(
				"Step references a parent step missing from the workflow",
				"workflow", workflow.ID,
				"step", step.ID,
				"parentStep", *step.ParentStepID)
		}
		return
	}
	template, err := s.db.GetWorkflowTemplate(customer, workflow.TemplateID)
	if err != nil {
		return
	}
	if datamodel.IsInconsistentRootMirror(template, step) {
		zap.S().Warnw(
			"Step has no parent reference but its template node is not a root",
			"workflow", workflow.ID,
			"step", step.ID,
			"node", step.NodeID)
	}
}

func (s *Service) fail(operation string, err error) error {
	observeFailure(operation, err)
	return err
}

func rollbackUnlessCommitted(ctx context.Context, tx pgx.Tx) {
	errR := tx.Rollback(ctx)
	if errR != nil && !errors.Is(errR, pgx.ErrTxClosed) {
		zap.S().Errorf("Error rolling back transaction: %v", errR)
	}
}
