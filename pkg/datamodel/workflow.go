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

package datamodel

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// nowFunc is swapped out in tests
var nowFunc = time.Now

// InstantiateWorkflow mirrors every active node of the template into a fresh
// ItemWorkflow: one PENDING step per node, connected by the same parent/child
// shape via ParentStepID. Step ids are the node ids offset into the workflow,
// assigned by the given allocator so the persistence layer controls identity.
// The whole mirror is built or none of it: an inactive template fails before
// any step is created.
func InstantiateWorkflow(
	template *WorkflowTemplate,
	workflowID int64,
	customer string,
	itemID string,
	nextStepID func() int64) (*ItemWorkflow, error) {
	if template == nil {
		return nil, fmt.Errorf("%w: template", ErrNotFound)
	}
	if !template.IsActive {
		return nil, fmt.Errorf("%w: template %d is not active", ErrInvalidTransition, template.ID)
	}
	if !template.IsValidTree() {
		return nil, fmt.Errorf("%w: template %d", ErrStructuralInvalid, template.ID)
	}

	workflow := &ItemWorkflow{
		ID:         workflowID,
		Customer:   customer,
		ItemID:     itemID,
		TemplateID: template.ID,
		CreatedAt:  nowFunc(),
		Steps:      make(map[int64]*StepInstance, len(template.Nodes)),
	}

	// First pass creates the steps, second pass wires the parent references,
	// so the node iteration order cannot matter.
	stepIDByNode := make(map[int64]int64, len(template.Nodes))
	nodeIDs := make([]int64, 0, len(template.Nodes))
	for nodeID := range template.Nodes {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	for _, nodeID := range nodeIDs {
		node := template.Nodes[nodeID]
		if node.IsDeleted() {
			continue
		}
		step := &StepInstance{
			ID:            nextStepID(),
			WorkflowID:    workflowID,
			NodeID:        node.ID,
			OperationType: node.OperationType,
			Status:        StepStatusPending,
			IsOptional:    node.IsOptional,
		}
		stepIDByNode[node.ID] = step.ID
		workflow.Steps[step.ID] = step
	}
	for _, step := range workflow.Steps {
		node := template.Nodes[step.NodeID]
		if node.ParentID == nil {
			continue
		}
		if parentStepID, ok := stepIDByNode[*node.ParentID]; ok {
			id := parentStepID
			step.ParentStepID = &id
		}
	}
	return workflow, nil
}

// GetStepByOperationType returns the first step of the given operation type
// anywhere in the workflow, or nil. Stage batch services use this to locate
// "their" step.
func (w *ItemWorkflow) GetStepByOperationType(operationType OperationType) *StepInstance {
	for _, step := range w.sortedSteps() {
		if step.OperationType == operationType {
			return step
		}
	}
	return nil
}

// GetFirstRootStep returns the parentless step of the given operation type,
// or nil. Used to decide whether an operation may enter the workflow.
func (w *ItemWorkflow) GetFirstRootStep(operationType OperationType) *StepInstance {
	for _, step := range w.sortedSteps() {
		if step.IsRootStep() && step.OperationType == operationType {
			return step
		}
	}
	return nil
}

// GetStep returns the step with the given id, or nil
func (w *ItemWorkflow) GetStep(stepID int64) *StepInstance {
	return w.Steps[stepID]
}

func (w *ItemWorkflow) sortedSteps() []*StepInstance {
	steps := make([]*StepInstance, 0, len(w.Steps))
	for _, step := range w.Steps {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].ID < steps[j].ID })
	return steps
}

// AddChildStepInstance appends a step to the workflow as a child of the given
// parent step. Used when a rework loop materializes a step not present at
// instantiation time.
func (w *ItemWorkflow) AddChildStepInstance(parentStepID int64, step *StepInstance) error {
	if _, ok := w.Steps[parentStepID]; !ok {
		return fmt.Errorf("%w: parent step %d", ErrNotFound, parentStepID)
	}
	if _, exists := w.Steps[step.ID]; exists {
		return fmt.Errorf("%w: step %d already exists", ErrInvalidTransition, step.ID)
	}
	id := parentStepID
	step.ParentStepID = &id
	step.WorkflowID = w.ID
	w.Steps[step.ID] = step
	return nil
}

// GetStepTreeLevel returns the depth of a step via its parent chain, 0 for
// roots, -1 for an unknown step or a broken chain.
func (w *ItemWorkflow) GetStepTreeLevel(stepID int64) int {
	step, ok := w.Steps[stepID]
	if !ok {
		return -1
	}
	level := 0
	for step.ParentStepID != nil {
		parent, okP := w.Steps[*step.ParentStepID]
		if !okP || level > len(w.Steps) {
			return -1
		}
		step = parent
		level++
	}
	return level
}

// CanStartOperation reports whether the step may transition PENDING ->
// IN_PROGRESS: the step must be PENDING, the workflow must not be held or
// cancelled, and the step's dependency must be satisfied.
func (w *ItemWorkflow) CanStartOperation(step *StepInstance) bool {
	if step == nil || step.Status != StepStatusPending {
		return false
	}
	if w.OverrideStatus != nil {
		return false
	}
	satisfied, _ := IsDependencySatisfied(w, step)
	return satisfied
}

// StartOperationStep transitions a step to IN_PROGRESS. The first start in
// the whole workflow also mints the workflow identifier.
func (w *ItemWorkflow) StartOperationStep(step *StepInstance) error {
	if step == nil {
		return fmt.Errorf("%w: step", ErrNotFound)
	}
	if step.Status.IsTerminal() {
		return fmt.Errorf(
			"%w: step %d is %s",
			ErrAlreadyTerminal,
			step.ID,
			ConvertStepStatusToString(step.Status))
	}
	if !w.CanStartOperation(step) {
		return fmt.Errorf(
			"%w: cannot start step %d in status %s",
			ErrInvalidTransition,
			step.ID,
			ConvertStepStatusToString(step.Status))
	}
	now := nowFunc()
	step.Status = StepStatusInProgress
	step.StartedAt = &now
	if w.WorkflowIdentifier == "" {
		w.WorkflowIdentifier = uuid.New().String()
	}
	return nil
}

// FinishOperationStep transitions an IN_PROGRESS step into the given terminal
// status. Terminal states are final: a second call fails with ErrAlreadyTerminal.
func (w *ItemWorkflow) FinishOperationStep(step *StepInstance, terminal StepStatus) error {
	if step == nil {
		return fmt.Errorf("%w: step", ErrNotFound)
	}
	if !terminal.IsTerminal() {
		return fmt.Errorf(
			"%w: %s is not a terminal status",
			ErrInvalidTransition,
			ConvertStepStatusToString(terminal))
	}
	if step.Status.IsTerminal() {
		return fmt.Errorf(
			"%w: step %d is %s",
			ErrAlreadyTerminal,
			step.ID,
			ConvertStepStatusToString(step.Status))
	}
	// skipping is allowed straight from PENDING, completing and failing
	// require the step to have been started
	if step.Status != StepStatusInProgress &&
		!(terminal == StepStatusSkipped && step.Status == StepStatusPending) {
		return fmt.Errorf(
			"%w: cannot finish step %d in status %s",
			ErrInvalidTransition,
			step.ID,
			ConvertStepStatusToString(step.Status))
	}
	if terminal == StepStatusSkipped && !step.IsOptional {
		return fmt.Errorf("%w: step %d is not optional and cannot be skipped", ErrInvalidTransition, step.ID)
	}
	now := nowFunc()
	step.Status = terminal
	step.CompletedAt = &now
	return nil
}

// DeriveWorkflowStatus computes the aggregate workflow status from the steps.
// It is a pure view over step state; an operator override wins over the
// derived value.
func (w *ItemWorkflow) DeriveWorkflowStatus() WorkflowStatus {
	if w.OverrideStatus != nil {
		return *w.OverrideStatus
	}
	anyStartedOrDone := false
	for _, step := range w.Steps {
		if step.Status != StepStatusPending {
			anyStartedOrDone = true
			break
		}
	}
	if !anyStartedOrDone {
		return WorkflowStatusNotStarted
	}
	if w.hasTerminalPath() {
		return WorkflowStatusCompleted
	}
	return WorkflowStatusInProgress
}

// hasTerminalPath reports whether at least one root-to-leaf path exists on
// which every non-optional step is terminal. Optional steps do not block
// completion of a path.
func (w *ItemWorkflow) hasTerminalPath() bool {
	children := make(map[int64][]*StepInstance, len(w.Steps))
	var roots []*StepInstance
	for _, step := range w.Steps {
		if step.ParentStepID == nil {
			roots = append(roots, step)
			continue
		}
		children[*step.ParentStepID] = append(children[*step.ParentStepID], step)
	}
	var walk func(step *StepInstance) bool
	walk = func(step *StepInstance) bool {
		if !step.Status.IsTerminal() && !step.IsOptional {
			return false
		}
		kids := children[step.ID]
		if len(kids) == 0 {
			return true
		}
		for _, child := range kids {
			if walk(child) {
				return true
			}
		}
		return false
	}
	for _, root := range roots {
		if walk(root) {
			return true
		}
	}
	return false
}
