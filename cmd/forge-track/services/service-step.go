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

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// StartStep transitions a step to IN_PROGRESS without consuming pieces. Stage
// batches that draw on upstream stock go through the ledger's creation
// protocol instead, which starts the step as a side effect.
func (s *Service) StartStep(customer string, workflowID int64, stepID int64) (workflow *datamodel.ItemWorkflow, err error) {
	zap.S().Infof("[StartStep] customer %s, workflow %d, step %d", customer, workflowID, stepID)

	if !s.db.WorkflowMutex.TryLock(workflowID) {
		return nil, fmt.Errorf("could not acquire lock for workflow %d", workflowID)
	}
	defer s.db.WorkflowMutex.Unlock(workflowID)

	ctx, cncl := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cncl()
	tx, err := s.db.Db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		errR := tx.Rollback(ctx)
		if errR != nil && !errors.Is(errR, pgx.ErrTxClosed) {
			zap.S().Errorf("Error rolling back transaction: %v", errR)
		}
	}()

	workflow, err = s.db.GetItemWorkflowTx(ctx, tx, customer, workflowID)
	if err != nil {
		return nil, err
	}
	step := workflow.GetStep(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: step %d", datamodel.ErrNotFound, stepID)
	}

	s.warnOnInconsistentMirror(customer, workflow, step)

	hadIdentifier := workflow.WorkflowIdentifier != ""
	err = workflow.StartOperationStep(step)
	if err != nil {
		return nil, err
	}
	if !hadIdentifier {
		err = s.db.UpdateWorkflowIdentifierTx(ctx, tx, workflow)
		if err != nil {
			return nil, err
		}
	}
	err = s.db.UpdateStepTx(ctx, tx, step)
	if err != nil {
		return nil, err
	}
	err = s.db.InsertWorkflowEventTx(ctx, tx, workflow.ID, "step.start", map[string]int64{"stepId": step.ID})
	if err != nil {
		return nil, err
	}
	return workflow, tx.Commit(ctx)
}

// FinishStep moves a step into SKIPPED or FAILED. COMPLETED always goes
// through the ledger's completion protocol, because completion must report
// piece counts.
func (s *Service) FinishStep(customer string, workflowID int64, stepID int64, terminal datamodel.StepStatus) (workflow *datamodel.ItemWorkflow, err error) {
	zap.S().Infof(
		"[FinishStep] customer %s, workflow %d, step %d -> %s",
		customer, workflowID, stepID, datamodel.ConvertStepStatusToString(terminal))

	if terminal == datamodel.StepStatusCompleted {
		return nil, fmt.Errorf(
			"%w: completion requires a stage batch report",
			datamodel.ErrInvalidTransition)
	}

	if !s.db.WorkflowMutex.TryLock(workflowID) {
		return nil, fmt.Errorf("could not acquire lock for workflow %d", workflowID)
	}
	defer s.db.WorkflowMutex.Unlock(workflowID)

	ctx, cncl := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cncl()
	tx, err := s.db.Db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		errR := tx.Rollback(ctx)
		if errR != nil && !errors.Is(errR, pgx.ErrTxClosed) {
			zap.S().Errorf("Error rolling back transaction: %v", errR)
		}
	}()

	workflow, err = s.db.GetItemWorkflowTx(ctx, tx, customer, workflowID)
	if err != nil {
		return nil, err
	}
	step := workflow.GetStep(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: step %d", datamodel.ErrNotFound, stepID)
	}
	err = workflow.FinishOperationStep(step, terminal)
	if err != nil {
		return nil, err
	}
	err = s.db.UpdateStepTx(ctx, tx, step)
	if err != nil {
		return nil, err
	}
	err = s.db.InsertWorkflowEventTx(ctx, tx, workflow.ID, "step."+datamodel.ConvertStepStatusToString(terminal), map[string]int64{"stepId": step.ID})
	if err != nil {
		return nil, err
	}
	return workflow, tx.Commit(ctx)
}

// warnOnInconsistentMirror flags a step without a parent reference whose
// template node is not a root. The resolver deliberately lets such a step
// start; the warning is what keeps the data bug visible.
func (s *Service) warnOnInconsistentMirror(customer string, workflow *datamodel.ItemWorkflow, step *datamodel.StepInstance) {
	if step.ParentStepID != nil {
		if _, ok := workflow.Steps[*step.ParentStepID]; !ok {
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
