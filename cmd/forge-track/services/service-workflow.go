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
	"fmt"

	"github.com/forge-track/forge-track/cmd/forge-track/database"
	"github.com/forge-track/forge-track/pkg/datamodel"
	"go.uber.org/zap"
)

// InstantiateForItem mirrors a template into a fresh item workflow. The full
// step tree is persisted in one transaction.
func (s *Service) InstantiateForItem(customer string, itemID string, templateID int64) (*datamodel.ItemWorkflow, error) {
	zap.S().Infof("[InstantiateForItem] customer %s, item %s, template %d", customer, itemID, templateID)

	template, err := s.db.GetWorkflowTemplate(customer, templateID)
	if err != nil {
		return nil, err
	}

	// provisional step ids, replaced by the database on insert
	var next int64
	workflow, err := datamodel.InstantiateWorkflow(template, 0, customer, itemID, func() int64 {
		next++
		return next
	})
	if err != nil {
		return nil, err
	}
	err = s.db.InsertItemWorkflow(workflow)
	if err != nil {
		return nil, err
	}
	return workflow, nil
}

// GetWorkflow loads one workflow for the tenant
func (s *Service) GetWorkflow(customer string, workflowID int64) (*datamodel.ItemWorkflow, error) {
	return s.db.GetItemWorkflow(customer, workflowID)
}

// GetActiveWorkflowsForItem returns the item's workflows with at least one
// startable or running step
func (s *Service) GetActiveWorkflowsForItem(customer string, itemID string) ([]*datamodel.ItemWorkflow, error) {
	return s.db.GetActiveWorkflowsForItem(customer, itemID)
}

// GetWorkflowEvents returns the workflow's audit journal, oldest first
func (s *Service) GetWorkflowEvents(customer string, workflowID int64) ([]database.WorkflowEvent, error) {
	return s.db.GetWorkflowEvents(customer, workflowID)
}

// SetWorkflowOverride sets the operator override to CANCELLED or ON_HOLD, or
// clears it again. Once set, no pending descendant step is startable.
func (s *Service) SetWorkflowOverride(customer string, workflowID int64, status *datamodel.WorkflowStatus) error {
	if status != nil &&
		*status != datamodel.WorkflowStatusCancelled &&
		*status != datamodel.WorkflowStatusOnHold {
		return fmt.Errorf(
			"%w: %s is not an operator override",
			datamodel.ErrInvalidTransition,
			datamodel.ConvertWorkflowStatusToString(*status))
	}
	zap.S().Infof("[SetWorkflowOverride] customer %s, workflow %d", customer, workflowID)
	return s.db.SetWorkflowOverrideStatus(customer, workflowID, status)
}
