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

	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// heatTableByOperationType is the dispatch table selecting which
// stage-specific heat table an entity id resolves through. Table names come
// from this fixed map and never from user input.
var heatTableByOperationType = map[datamodel.OperationType]string{
	datamodel.OperationTypeForging:       "forge_heat",
	datamodel.OperationTypeHeatTreatment: "heat_treatment_heat",
	datamodel.OperationTypeMachining:     "machining_heat",
	datamodel.OperationTypeQuality:       "inspection_heat",
	datamodel.OperationTypeDispatch:      "dispatch_heat",
	datamodel.OperationTypeVendor:        "vendor_dispatch_heat",
}

// InsertStageBatchTx records a stage batch at creation time, before it has
// reported any output.
func (c *Connection) InsertStageBatchTx(ctx context.Context, tx pgx.Tx, batch *datamodel.StageBatch) error {
	cmdTag, err := tx.Exec(ctx, `
		INSERT INTO stage_batch(batch_id, step_id, operation_type, pieces_produced, available_for_next, rejected_count, rework_count)
		VALUES ($1, $2, $3, 0, 0, 0, 0)
	`, batch.BatchID, batch.StepInstanceID, int(batch.OperationType))
	if err != nil {
		zap.S().Warnf("Error inserting stage batch: %v (batch: %s) [%s]", err, batch.BatchID, cmdTag)
		return err
	}
	return nil
}

// UpdateStageBatchCompletionTx writes the reported output counts of a batch
func (c *Connection) UpdateStageBatchCompletionTx(ctx context.Context, tx pgx.Tx, batch *datamodel.StageBatch) error {
	cmdTag, err := tx.Exec(ctx, `
		UPDATE stage_batch
		SET pieces_produced = $2, available_for_next = $3, rejected_count = $4, rework_count = $5
		WHERE batch_id = $1
	`, batch.BatchID, batch.PiecesProduced, batch.AvailablePiecesForNext, batch.RejectedCount, batch.ReworkCount)
	if err != nil {
		zap.S().Warnf("Error updating stage batch: %v (batch: %s) [%s]", err, batch.BatchID, cmdTag)
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stage batch %s", datamodel.ErrNotFound, batch.BatchID)
	}
	return nil
}

// GetStageBatch loads one stage batch with its heats
func (c *Connection) GetStageBatch(customer string, batchID string) (*datamodel.StageBatch, error) {
	ctx, cncl := get1MinuteContext()
	defer cncl()

	batch := &datamodel.StageBatch{BatchID: batchID}
	var operationType int
	err := c.Db.QueryRow(ctx, `
		SELECT sb.step_id, sb.operation_type, sb.pieces_produced, sb.available_for_next, sb.rejected_count, sb.rework_count
		FROM stage_batch sb
		JOIN step_instance si ON si.id = sb.step_id
		JOIN item_workflow iw ON iw.id = si.workflow_id
		WHERE sb.batch_id = $1 AND iw.customer = $2
	`, batchID, customer).Scan(
		&batch.StepInstanceID,
		&operationType,
		&batch.PiecesProduced,
		&batch.AvailablePiecesForNext,
		&batch.RejectedCount,
		&batch.ReworkCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: stage batch %s", datamodel.ErrNotFound, batchID)
	} else if err != nil {
		return nil, err
	}
	batch.OperationType = datamodel.OperationType(operationType)

	batch.Heats, err = c.GetHeatsForEntity(batch.OperationType, batchID)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// GetHeatsForEntity resolves the heats a stage-specific entity carries,
// dispatching on the operation type to the matching heat table.
func (c *Connection) GetHeatsForEntity(operationType datamodel.OperationType, entityID string) ([]datamodel.Heat, error) {
	table, ok := heatTableByOperationType[operationType]
	if !ok {
		return nil, fmt.Errorf("%w: no heat table for operation type %s",
			datamodel.ErrNotFound, datamodel.ConvertOperationTypeToString(operationType))
	}

	ctx, cncl := get1MinuteContext()
	defer cncl()

	rows, err := c.Db.Query(ctx, fmt.Sprintf(`
		SELECT heat_id, heat_number, quantity_available, pieces_available
		FROM %s
		WHERE entity_id = $1
	`, table), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heats []datamodel.Heat
	for rows.Next() {
		var heat datamodel.Heat
		err = rows.Scan(&heat.HeatID, &heat.HeatNumber, &heat.QuantityAvailable, &heat.PiecesAvailable)
		if err != nil {
			return nil, err
		}
		heats = append(heats, heat)
	}
	return heats, rows.Err()
}
