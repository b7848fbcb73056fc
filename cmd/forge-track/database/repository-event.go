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

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// InsertWorkflowEventTx appends one entry to the workflow's audit journal
// inside the caller's transaction, so the journal can never disagree with the
// ledger it describes.
func (c *Connection) InsertWorkflowEventTx(ctx context.Context, tx pgx.Tx, workflowID int64, eventType string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		zap.S().Errorf("Error encoding workflow event: %v (workflow: %d, event: %s)", err, workflowID, eventType)
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO workflow_event(workflow_id, event_type, payload)
		VALUES ($1, $2, $3)
	`, workflowID, eventType, encoded)
	return err
}

// GetWorkflowEvents returns the journal of a workflow, oldest first
func (c *Connection) GetWorkflowEvents(customer string, workflowID int64) (events []WorkflowEvent, err error) {
	ctx, cncl := get1MinuteContext()
	defer cncl()

	rows, err := c.Db.Query(ctx, `
		SELECT we.event_type, we.payload, we.created_at
		FROM workflow_event we
		JOIN item_workflow iw ON iw.id = we.workflow_id
		WHERE we.workflow_id = $1 AND iw.customer = $2
		ORDER BY we.id
	`, workflowID, customer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var event WorkflowEvent
		err = rows.Scan(&event.EventType, &event.Payload, &event.CreatedAt)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
