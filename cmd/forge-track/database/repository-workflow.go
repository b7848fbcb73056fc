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

package database

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// InsertItemWorkflow persists a freshly instantiated workflow and its step
// mirror in one transaction: either the full tree lands or none of it.
// Database-assigned ids are written back into the structs.
func (c *Connection) InsertItemWorkflow(workflow *datamodel.ItemWorkflow) error {
	ctx, cncl := get1MinuteContext()
	defer cncl()
	tx, err := c.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollbackOnError(ctx, tx)

	err = tx.QueryRow(ctx, `
		INSERT INTO item_workflow(customer, item_id, template_id, workflow_identifier)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, workflow.Customer, workflow.ItemID, workflow.TemplateID, workflow.WorkflowIdentifier).Scan(&workflow.ID)
	if err != nil {
		zap.S().Warnf("Error inserting item workflow: %v (item: %s)", err, workflow.ItemID)
		return err
	}

	// parents first, so parent_step_id references resolve
	steps := make([]*datamodel.StepInstance, 0, len(workflow.Steps))
	for _, step := range workflow.Steps {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool {
		li := workflow.GetStepTreeLevel(steps[i].ID)
		lj := workflow.GetStepTreeLevel(steps[j].ID)
		if li != lj {
			return li < lj
		}
		return steps[i].ID < steps[j].ID
	})

	idMap := make(map[int64]int64, len(steps))
	for _, step := range steps {
		var parentStepID *int64
		if step.ParentStepID != nil {
			mapped := idMap[*step.ParentStepID]
			parentStepID = &mapped
		}
		var newID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO step_instance(workflow_id, node_id, parent_step_id, operation_type, status, is_optional)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, workflow.ID, step.NodeID, parentStepID, int(step.OperationType), int(step.Status), step.IsOptional).Scan(&newID)
		if err != nil {
			zap.S().Warnf("Error inserting step instance: %v (workflow: %d)", err, workflow.ID)
			return err
		}
		idMap[step.ID] = newID
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}

	remapped := make(map[int64]*datamodel.StepInstance, len(steps))
	for oldID, step := range workflow.Steps {
		step.ID = idMap[oldID]
		step.WorkflowID = workflow.ID
		if step.ParentStepID != nil {
			mapped := idMap[*step.ParentStepID]
			step.ParentStepID = &mapped
		}
		remapped[step.ID] = step
	}
	workflow.Steps = remapped
	return nil
}

// GetItemWorkflow loads a workflow with its full step arena
func (c *Connection) GetItemWorkflow(customer string, workflowID int64) (*datamodel.ItemWorkflow, error) {
	ctx, cncl := get1MinuteContext()
	defer cncl()
	return c.getItemWorkflow(ctx, c.Db, customer, workflowID, false)
}

// GetItemWorkflowTx loads a workflow inside the given transaction, locking
// every step row FOR UPDATE. This is the read side of the read-modify-write
// cycle every ledger operation performs.
func (c *Connection) GetItemWorkflowTx(ctx context.Context, tx pgx.Tx, customer string, workflowID int64) (*datamodel.ItemWorkflow, error) {
	return c.getItemWorkflow(ctx, tx, customer, workflowID, true)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Connection) getItemWorkflow(
	ctx context.Context,
	q queryer,
	customer string,
	workflowID int64,
	forUpdate bool) (*datamodel.ItemWorkflow, error) {
	workflow := &datamodel.ItemWorkflow{
		ID:       workflowID,
		Customer: customer,
		Steps:    make(map[int64]*datamodel.StepInstance),
	}
	var overrideStatus *int
	err := q.QueryRow(ctx, `
		SELECT item_id, template_id, workflow_identifier, override_status, created_at
		FROM item_workflow
		WHERE id = $1 AND customer = $2
	`, workflowID, customer).Scan(
		&workflow.ItemID,
		&workflow.TemplateID,
		&workflow.WorkflowIdentifier,
		&overrideStatus,
		&workflow.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: item workflow %d", datamodel.ErrNotFound, workflowID)
	} else if err != nil {
		return nil, err
	}
	if overrideStatus != nil {
		status := datamodel.WorkflowStatus(*overrideStatus)
		workflow.OverrideStatus = &status
	}

	stepQuery := `
		SELECT id, node_id, parent_step_id, operation_type, status, is_optional,
		       started_at, completed_at, initial_pieces, pieces_available, rework_pieces_available,
		       operation_reference_id
		FROM step_instance
		WHERE workflow_id = $1`
	if forUpdate {
		stepQuery += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, stepQuery, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		step := datamodel.StepInstance{WorkflowID: workflowID}
		var operationType, status int
		err = rows.Scan(
			&step.ID,
			&step.NodeID,
			&step.ParentStepID,
			&operationType,
			&status,
			&step.IsOptional,
			&step.StartedAt,
			&step.CompletedAt,
			&step.InitialPiecesCount,
			&step.PiecesAvailableForNext,
			&step.ReworkPiecesAvailable,
			&step.OperationReferenceID)
		if err != nil {
			return nil, err
		}
		step.OperationType = datamodel.OperationType(operationType)
		step.Status = datamodel.StepStatus(status)
		workflow.Steps[step.ID] = &step
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}

	relatedRows, err := q.Query(ctx, `
		SELECT sre.step_id, sre.entity_id
		FROM step_related_entity sre
		JOIN step_instance si ON si.id = sre.step_id
		WHERE si.workflow_id = $1
	`, workflowID)
	if err != nil {
		return nil, err
	}
	defer relatedRows.Close()

	for relatedRows.Next() {
		var stepID int64
		var entityID string
		err = relatedRows.Scan(&stepID, &entityID)
		if err != nil {
			return nil, err
		}
		if step, ok := workflow.Steps[stepID]; ok {
			step.RelatedEntityIDs = append(step.RelatedEntityIDs, entityID)
		}
	}
	return workflow, relatedRows.Err()
}

// GetActiveWorkflowsForItem returns every workflow of the item with at least
// one step that is in progress or startable right now. The query narrows to
// workflows with PENDING or IN_PROGRESS steps and no operator override; the
// dependency check runs on the loaded workflows, so a workflow whose pending
// steps are all gated behind failed ancestors is not reported as active.
func (c *Connection) GetActiveWorkflowsForItem(customer string, itemID string) ([]*datamodel.ItemWorkflow, error) {
	ctx, cncl := get1MinuteContext()
	defer cncl()

	rows, err := c.Db.Query(ctx, `
		SELECT DISTINCT iw.id
		FROM item_workflow iw
		JOIN step_instance si ON si.workflow_id = iw.id
		WHERE iw.customer = $1 AND iw.item_id = $2
		  AND iw.override_status IS NULL
		  AND si.status IN ($3, $4)
		ORDER BY iw.id
	`, customer, itemID, int(datamodel.StepStatusPending), int(datamodel.StepStatusInProgress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		err = rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}

	workflows := make([]*datamodel.ItemWorkflow, 0, len(ids))
	for _, id := range ids {
		workflow, errW := c.GetItemWorkflow(customer, id)
		if errW != nil {
			return nil, errW
		}
		if workflowHasWorkableStep(workflow) {
			workflows = append(workflows, workflow)
		}
	}
	return workflows, nil
}

func workflowHasWorkableStep(w *datamodel.ItemWorkflow) bool {
	for _, step := range w.Steps {
		if step.Status == datamodel.StepStatusInProgress || w.CanStartOperation(step) {
			return true
		}
	}
	return false
}

// GetWorkflowIDForStep resolves the workflow a step belongs to, scoped to
// the tenant
func (c *Connection) GetWorkflowIDForStep(customer string, stepID int64) (workflowID int64, err error) {
	ctx, cncl := get1MinuteContext()
	defer cncl()

	err = c.Db.QueryRow(ctx, `
		SELECT si.workflow_id
		FROM step_instance si
		JOIN item_workflow iw ON iw.id = si.workflow_id
		WHERE si.id = $1 AND iw.customer = $2
	`, stepID, customer).Scan(&workflowID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: step instance %d", datamodel.ErrNotFound, stepID)
	}
	return
}

// UpdateStepTx writes a step's mutable fields inside the given transaction
func (c *Connection) UpdateStepTx(ctx context.Context, tx pgx.Tx, step *datamodel.StepInstance) error {
	cmdTag, err := tx.Exec(ctx, `
		UPDATE step_instance
		SET status = $2, started_at = $3, completed_at = $4,
		    initial_pieces = $5, pieces_available = $6, rework_pieces_available = $7,
		    operation_reference_id = $8
		WHERE id = $1
	`, step.ID,
		int(step.Status),
		step.StartedAt,
		step.CompletedAt,
		step.InitialPiecesCount,
		step.PiecesAvailableForNext,
		step.ReworkPiecesAvailable,
		step.OperationReferenceID)
	if err != nil {
		zap.S().Warnf("Error updating step instance: %v (step: %d) [%s]", err, step.ID, cmdTag)
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: step instance %d", datamodel.ErrNotFound, step.ID)
	}
	return nil
}

// AddStepRelatedEntityTx records one stage-aggregate id against a step
func (c *Connection) AddStepRelatedEntityTx(ctx context.Context, tx pgx.Tx, stepID int64, entityID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO step_related_entity(step_id, entity_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, stepID, entityID)
	return err
}

// UpdateWorkflowIdentifierTx persists a freshly minted correlation token
func (c *Connection) UpdateWorkflowIdentifierTx(ctx context.Context, tx pgx.Tx, workflow *datamodel.ItemWorkflow) error {
	_, err := tx.Exec(ctx, `
		UPDATE item_workflow
		SET workflow_identifier = $2
		WHERE id = $1
	`, workflow.ID, workflow.WorkflowIdentifier)
	return err
}

// SetWorkflowOverrideStatus stores or clears the operator override
// (CANCELLED / ON_HOLD). Passing nil clears it.
func (c *Connection) SetWorkflowOverrideStatus(customer string, workflowID int64, status *datamodel.WorkflowStatus) error {
	ctx, cncl := get1MinuteContext()
	defer cncl()

	var value *int
	if status != nil {
		v := int(*status)
		value = &v
	}
	cmdTag, err := c.Db.Exec(ctx, `
		UPDATE item_workflow
		SET override_status = $3
		WHERE id = $1 AND customer = $2
	`, workflowID, customer, value)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item workflow %d", datamodel.ErrNotFound, workflowID)
	}
	return nil
}
