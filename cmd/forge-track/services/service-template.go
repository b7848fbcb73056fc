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

	"github.com/forge-track/forge-track/cmd/forge-track/models"
	"github.com/forge-track/forge-track/pkg/datamodel"
	"go.uber.org/zap"
)

// BuildTemplateFromSpec turns an authoring request into a validated template
// tree. Provisional node ids stay in place until the repository assigns real
// ones. Pure; no persistence.
func BuildTemplateFromSpec(customer string, request *models.CreateTemplateRequest) (*datamodel.WorkflowTemplate, error) {
	template := datamodel.NewWorkflowTemplate(0, customer, request.Name)
	template.IsDefault = request.IsDefault
	template.IsActive = request.IsActive

	// Parents must exist before their children; the request order is the
	// authoring order, which already satisfies that for any legal tree.
	for i := range request.Nodes {
		spec := &request.Nodes[i]
		operationType, err := datamodel.ConvertStringToOperationType(spec.OperationType)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %s", datamodel.ErrStructuralInvalid, spec.ID, err)
		}
		node := &datamodel.OperationNode{
			ID:            spec.ID,
			ParentID:      spec.ParentID,
			OperationType: operationType,
			Name:          spec.Name,
			Description:   spec.Description,
			IsOptional:    spec.IsOptional,
			IsParallel:    spec.IsParallel,
		}
		err = template.AddNode(node)
		if err != nil {
			return nil, err
		}
	}
	if !template.IsValidTree() {
		return nil, fmt.Errorf("%w: template %q", datamodel.ErrStructuralInvalid, request.Name)
	}
	return template, nil
}

// CreateTemplate validates the authored operation tree and persists it
func (s *Service) CreateTemplate(customer string, request *models.CreateTemplateRequest) (*datamodel.WorkflowTemplate, error) {
	zap.S().Infof("[CreateTemplate] customer %s, template %s", customer, request.Name)

	template, err := BuildTemplateFromSpec(customer, request)
	if err != nil {
		return nil, err
	}
	err = s.db.InsertWorkflowTemplate(template)
	if err != nil {
		return nil, err
	}
	return template, nil
}

// GetTemplate loads a template for the tenant
func (s *Service) GetTemplate(customer string, templateID int64) (*datamodel.WorkflowTemplate, error) {
	return s.db.GetWorkflowTemplate(customer, templateID)
}

// IsFirstOperationInTemplate reports whether the operation type is an entry
// point of the template, i.e. one of its root nodes.
func (s *Service) IsFirstOperationInTemplate(customer string, templateID int64, operationType datamodel.OperationType) (bool, error) {
	template, err := s.db.GetWorkflowTemplate(customer, templateID)
	if err != nil {
		return false, err
	}
	return template.GetFirstNodeOfType(operationType) != nil, nil
}

// DeleteTemplateNode soft-deletes a node, refusing while any active item
// workflow still references it or the removal would break the tree.
func (s *Service) DeleteTemplateNode(customer string, templateID int64, nodeID int64) error {
	zap.S().Infof("[DeleteTemplateNode] customer %s, template %d, node %d", customer, templateID, nodeID)

	template, err := s.db.GetWorkflowTemplate(customer, templateID)
	if err != nil {
		return err
	}

	inUse, err := s.db.CountActiveWorkflowsUsingNode(customer, nodeID)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return fmt.Errorf(
			"%w: node %d is referenced by %d active workflows",
			datamodel.ErrInvalidTransition, nodeID, inUse)
	}

	// dry-run against the in-memory arena, so a structural violation never
	// reaches the database
	err = template.SoftDeleteNode(nodeID)
	if err != nil {
		return err
	}
	err = s.db.SoftDeleteOperationNode(customer, templateID, nodeID)
	if err != nil {
		// the dry-run touched the cached arena, force a reload
		s.db.InvalidateTemplateCache(customer, templateID)
		return err
	}
	return nil
}
