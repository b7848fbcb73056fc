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

package ledger

import (
	"sort"

	"github.com/forge-track/forge-track/pkg/datamodel"
	"go.uber.org/zap"
)

// TraceHeatsForBatch resolves the material heats behind a stage batch. A
// batch that carries heats directly (forge runs do) answers from its own
// rows; inspection and dispatch batches usually carry none and fall back to
// TraceHeats on the owning workflow.
func (s *Service) TraceHeatsForBatch(customer string, batchID string) ([]datamodel.Heat, error) {
	observeOperation("trace")
	batch, err := s.db.GetStageBatch(customer, batchID)
	if err != nil {
		return nil, s.fail("trace", err)
	}
	if len(batch.Heats) > 0 {
		return dedupeHeats(batch.Heats), nil
	}

	workflowID, err := s.db.GetWorkflowIDForStep(customer, batch.StepInstanceID)
	if err != nil {
		return nil, s.fail("trace", err)
	}
	return s.TraceHeats(customer, workflowID)
}

// TraceHeats walks the workflow back to the root step of the earliest
// operation type, reads its related stage entities and resolves each of them
// through the heat table matching the step's operation type. A single
// unresolvable entity id is logged and dropped; the query degrades rather
// than fails.
func (s *Service) TraceHeats(customer string, workflowID int64) ([]datamodel.Heat, error) {
	workflow, err := s.db.GetItemWorkflow(customer, workflowID)
	if err != nil {
		return nil, s.fail("trace", err)
	}

	root := earliestRootStep(workflow)
	if root == nil {
		return nil, nil
	}

	var heats []datamodel.Heat
	for _, entityID := range root.RelatedEntityIDs {
		entityHeats, errH := s.db.GetHeatsForEntity(root.OperationType, entityID)
		if errH != nil {
			zap.S().Warnw(
				"Dropping unresolvable heat reference",
				"workflow", workflowID,
				"entity", entityID,
				"error", errH)
			continue
		}
		heats = append(heats, entityHeats...)
	}
	return dedupeHeats(heats), nil
}

// earliestRootStep returns the parentless step of the earliest operation
// type. Operation type values are ordered by stage, so the minimum is the
// entry stage of the workflow.
func earliestRootStep(workflow *datamodel.ItemWorkflow) *datamodel.StepInstance {
	var roots []*datamodel.StepInstance
	for _, step := range workflow.Steps {
		if step.IsRootStep() {
			roots = append(roots, step)
		}
	}
	if len(roots) == 0 {
		return nil
	}
	sort.Slice(roots, func(i, j int) bool {
		if roots[i].OperationType != roots[j].OperationType {
			return roots[i].OperationType < roots[j].OperationType
		}
		return roots[i].ID < roots[j].ID
	})
	return roots[0]
}

// dedupeHeats keeps the first occurrence per heat identity
func dedupeHeats(heats []datamodel.Heat) []datamodel.Heat {
	seen := make(map[string]bool, len(heats))
	deduped := make([]datamodel.Heat, 0, len(heats))
	for _, heat := range heats {
		if seen[heat.HeatID] {
			continue
		}
		seen[heat.HeatID] = true
		deduped = append(deduped, heat)
	}
	return deduped
}
