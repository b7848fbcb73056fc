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

// OperationType identifies one manufacturing stage of a forged part
type OperationType int

const (
	// OperationTypeForging means that the stage forges raw material into parts
	OperationTypeForging OperationType = 10

	// OperationTypeHeatTreatment means that the stage heat-treats forged parts in a furnace batch
	OperationTypeHeatTreatment OperationType = 20

	// OperationTypeMachining means that the stage machines parts on a machine batch
	OperationTypeMachining OperationType = 30

	// OperationTypeVendor means that the stage is sub-contracted to an external vendor
	OperationTypeVendor OperationType = 40

	// OperationTypeQuality means that the stage is a quality inspection
	OperationTypeQuality OperationType = 50

	// OperationTypeDispatch means that the stage dispatches finished parts to the customer
	OperationTypeDispatch OperationType = 60
)

// StepStatus is the execution status of a single step instance
type StepStatus int

const (
	// StepStatusPending means that the step has not been started yet
	StepStatusPending StepStatus = 0

	// StepStatusInProgress means that at least one stage batch is working on the step
	StepStatusInProgress StepStatus = 1

	// StepStatusCompleted means that the step finished and reported its piece counts
	StepStatusCompleted StepStatus = 2

	// StepStatusSkipped means that the step was skipped (only allowed for optional operations)
	StepStatusSkipped StepStatus = 3

	// StepStatusFailed means that the step was aborted and will not produce pieces
	StepStatusFailed StepStatus = 4
)

// WorkflowStatus is the aggregate status of an item workflow, derived from its steps
type WorkflowStatus int

const (
	// WorkflowStatusNotStarted means that no step has been started yet
	WorkflowStatusNotStarted WorkflowStatus = 0

	// WorkflowStatusInProgress means that at least one step has been started and not every path finished
	WorkflowStatusInProgress WorkflowStatus = 1

	// WorkflowStatusCompleted means that every non-optional step along at least one root-to-leaf path is terminal
	WorkflowStatusCompleted WorkflowStatus = 2

	// WorkflowStatusCancelled means that an operator cancelled the workflow
	WorkflowStatusCancelled WorkflowStatus = 3

	// WorkflowStatusOnHold means that an operator put the workflow on hold
	WorkflowStatusOnHold WorkflowStatus = 4
)

// IsTerminal reports whether a step status permits no further transition
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped || s == StepStatusFailed
}
