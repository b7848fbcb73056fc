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
	"errors"
	"fmt"
	"strconv"

	"github.com/forge-track/forge-track/internal"
	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

func templateCacheKey(customer string, templateID int64) string {
	return string(internal.AsXXHash([]byte(customer), []byte(strconv.FormatInt(templateID, 10))))
}

// InsertWorkflowTemplate persists a template and its node arena in one
// transaction. The template id and node ids are assigned by the database and
// written back into the passed structs.
func (c *Connection) InsertWorkflowTemplate(template *datamodel.WorkflowTemplate) error {
	if !template.IsValidTree() {
		return fmt.Errorf("%w: refusing to persist template %q", datamodel.ErrStructuralInvalid, template.Name)
	}

	ctx, cncl := get1MinuteContext()
	defer cncl()
	tx, err := c.Db.Begin(ctx)
	if err != nil {
		return err
	}
	defer rollbackOnError(ctx, tx)

	err = tx.QueryRow(ctx, `
		INSERT INTO workflow_template(customer, name, is_default, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, template.Customer, template.Name, template.IsDefault, template.IsActive).Scan(&template.ID)
	if err != nil {
		zap.S().Warnf("Error inserting workflow template: %v (customer: %s)", err, template.Customer)
		return err
	}

	// Insert root-first so parent ids always exist; remap the caller's
	// provisional node ids onto the database-assigned ones.
	idMap := make(map[int64]int64, len(template.Nodes))
	pending := template.GetRootNodes()
	for len(pending) > 0 {
		node := pending[0]
		pending = pending[1:]

		var parentID *int64
		if node.ParentID != nil {
			mapped := idMap[*node.ParentID]
			parentID = &mapped
		}
		var newID int64
		err = tx.QueryRow(ctx, `
			INSERT INTO operation_node(template_id, parent_id, operation_type, name, description, is_optional, is_parallel)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, template.ID, parentID, int(node.OperationType), node.Name, node.Description, node.IsOptional, node.IsParallel).Scan(&newID)
		if err != nil {
			zap.S().Warnf("Error inserting operation node: %v (template: %d)", err, template.ID)
			return err
		}
		idMap[node.ID] = newID

		for _, childID := range node.ChildIDs {
			child, ok := template.Nodes[childID]
			if ok && !child.IsDeleted() {
				pending = append(pending, child)
			}
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}

	// rewrite the arena with the database-assigned ids
	remapped := make(map[int64]*datamodel.OperationNode, len(template.Nodes))
	for oldID, node := range template.Nodes {
		node.ID = idMap[oldID]
		node.TemplateID = template.ID
		if node.ParentID != nil {
			mapped := idMap[*node.ParentID]
			node.ParentID = &mapped
		}
		for i, childID := range node.ChildIDs {
			node.ChildIDs[i] = idMap[childID]
		}
		remapped[node.ID] = node
	}
	template.Nodes = remapped
	return nil
}

// GetWorkflowTemplate loads a template with its full node arena, LRU-cached
// by (customer, id). Templates are immutable after publish apart from soft
// deletes, which purge the cache entry.
func (c *Connection) GetWorkflowTemplate(customer string, templateID int64) (*datamodel.WorkflowTemplate, error) {
	cacheKey := templateCacheKey(customer, templateID)
	if cached, ok := c.templateCache.Get(cacheKey); ok {
		return cached.(*datamodel.WorkflowTemplate), nil
	}

	ctx, cncl := get1MinuteContext()
	defer cncl()

	template := datamodel.NewWorkflowTemplate(templateID, customer, "")
	err := c.Db.QueryRow(ctx, `
		SELECT name, is_default, is_active, created_at
		FROM workflow_template
		WHERE id = $1 AND customer = $2
	`, templateID, customer).Scan(&template.Name, &template.IsDefault, &template.IsActive, &template.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: workflow template %d", datamodel.ErrNotFound, templateID)
	} else if err != nil {
		return nil, err
	}

	rows, err := c.Db.Query(ctx, `
		SELECT id, parent_id, operation_type, name, description, is_optional, is_parallel, deleted_at
		FROM operation_node
		WHERE template_id = $1
	`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		node := datamodel.OperationNode{TemplateID: templateID}
		var operationType int
		err = rows.Scan(
			&node.ID,
			&node.ParentID,
			&operationType,
			&node.Name,
			&node.Description,
			&node.IsOptional,
			&node.IsParallel,
			&node.DeletedAt)
		if err != nil {
			return nil, err
		}
		node.OperationType = datamodel.OperationType(operationType)
		template.Nodes[node.ID] = &node
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}

	// rebuild the child lists from the parent references
	for _, node := range template.Nodes {
		if node.ParentID == nil {
			continue
		}
		if parent, ok := template.Nodes[*node.ParentID]; ok {
			parent.ChildIDs = append(parent.ChildIDs, node.ID)
		}
	}

	c.templateCache.Add(cacheKey, template)
	return template, nil
}

// InvalidateTemplateCache drops the cached arena so the next read reloads
// from the database
func (c *Connection) InvalidateTemplateCache(customer string, templateID int64) {
	c.templateCache.Remove(templateCacheKey(customer, templateID))
}

// CountActiveWorkflowsUsingNode returns how many item workflows with a
// non-terminal step still reference the node. Guards node soft-deletion.
func (c *Connection) CountActiveWorkflowsUsingNode(customer string, nodeID int64) (count int64, err error) {
	ctx, cncl := get1MinuteContext()
	defer cncl()

	err = c.Db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT si.workflow_id)
		FROM step_instance si
		JOIN item_workflow iw ON iw.id = si.workflow_id
		WHERE si.node_id = $1 AND iw.customer = $2 AND si.status IN ($3, $4)
	`, nodeID, customer, int(datamodel.StepStatusPending), int(datamodel.StepStatusInProgress)).Scan(&count)
	return
}

// SoftDeleteOperationNode marks the node deleted and purges the template
// cache entry. Callers must have verified the node is unused.
func (c *Connection) SoftDeleteOperationNode(customer string, templateID int64, nodeID int64) error {
	ctx, cncl := get1MinuteContext()
	defer cncl()

	cmdTag, err := c.Db.Exec(ctx, `
		UPDATE operation_node
		SET deleted_at = NOW()
		FROM workflow_template wt
		WHERE operation_node.id = $1
		  AND operation_node.template_id = $2
		  AND operation_node.deleted_at IS NULL
		  AND wt.id = operation_node.template_id
		  AND wt.customer = $3
	`, nodeID, templateID, customer)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: operation node %d", datamodel.ErrNotFound, nodeID)
	}
	c.templateCache.Remove(templateCacheKey(customer, templateID))
	return nil
}
