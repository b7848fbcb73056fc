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

package models

import (
	"sort"

	"github.com/forge-track/forge-track/pkg/datamodel"
)

// NewTemplateResponse flattens a template arena into its response shape
func NewTemplateResponse(template *datamodel.WorkflowTemplate) TemplateResponse {
	response := TemplateResponse{
		ID:        template.ID,
		Name:      template.Name,
		Customer:  template.Customer,
		IsDefault: template.IsDefault,
		IsActive:  template.IsActive,
		IsValid:   template.IsValidTree(),
	}
	ids := make([]int64, 0, len(template.Nodes))
	for id := range template.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		node := template.Nodes[id]
		response.Nodes = append(response.Nodes, TemplateNodeResponse{
			ID:            node.ID,
			ParentID:      node.ParentID,
			OperationType: datamodel.ConvertOperationTypeToString(node.OperationType),
			Name:          node.Name,
			Description:   node.Description,
			ChildIDs:      node.ChildIDs,
			IsOptional:    node.IsOptional,
			IsParallel:    node.IsParallel,
			IsDeleted:     node.IsDeleted(),
		})
	}
	for _, path := range template.EnumerateAllPaths() {
		types := make([]string, 0, len(path))
		for _, node := range path {
			types = append(types, datamodel.ConvertOperationTypeToString(node.OperationType))
		}
		response.Paths = append(response.Paths, types)
	}
	return response
}

// NewWorkflowSnapshot renders a workflow with its derived status and per-step
// startability
func NewWorkflowSnapshot(workflow *datamodel.ItemWorkflow) WorkflowSnapshot {
	snapshot := WorkflowSnapshot{
		ID:                 workflow.ID,
		ItemID:             workflow.ItemID,
		TemplateID:         workflow.TemplateID,
		WorkflowIdentifier: workflow.WorkflowIdentifier,
		WorkflowStatus:     datamodel.ConvertWorkflowStatusToString(workflow.DeriveWorkflowStatus()),
		CreatedAt:          workflow.CreatedAt,
	}
	ids := make([]int64, 0, len(workflow.Steps))
	for id := range workflow.Steps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		step := workflow.Steps[id]
		snapshot.Steps = append(snapshot.Steps, StepSnapshot{
			ID:                     step.ID,
			NodeID:                 step.NodeID,
			ParentStepID:           step.ParentStepID,
			OperationType:          datamodel.ConvertOperationTypeToString(step.OperationType),
			Status:                 datamodel.ConvertStepStatusToString(step.Status),
			StartedAt:              step.StartedAt,
			CompletedAt:            step.CompletedAt,
			InitialPiecesCount:     step.InitialPiecesCount,
			PiecesAvailableForNext: step.PiecesAvailableForNext,
			ReworkPiecesAvailable:  step.ReworkPiecesAvailable,
			OperationReferenceID:   step.OperationReferenceID,
			RelatedEntityIDs:       step.RelatedEntityIDs,
			ConsumedPiecesCount:    step.ConsumedPiecesCount(),
			Utilization:            step.Utilization(),
			IsOptional:             step.IsOptional,
			Startable:              workflow.CanStartOperation(step),
		})
	}
	return snapshot
}

// NewHeatResponses converts resolved heats into their response shape
func NewHeatResponses(heats []datamodel.Heat) []HeatResponse {
	responses := make([]HeatResponse, 0, len(heats))
	for _, heat := range heats {
		responses = append(responses, HeatResponse{
			HeatID:            heat.HeatID,
			HeatNumber:        heat.HeatNumber,
			QuantityAvailable: heat.QuantityAvailable,
			PiecesAvailable:   heat.PiecesAvailable,
		})
	}
	return responses
}
