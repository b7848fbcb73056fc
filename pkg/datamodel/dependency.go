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

// IsDependencySatisfied decides whether a step's upstream dependency permits
// starting it. Pure, no side effects.
//
// A root step is always satisfied. A non-root step is satisfied once its
// parent step is IN_PROGRESS or COMPLETED: downstream work may begin as soon
// as the upstream stage has started, which allows pipelining a sub-batch
// into the next stage while the rest is still being processed.
//
// A step whose ParentStepID is set but points at a missing step, or a step
// that should have a parent but carries none, is an inconsistent mirror.
// The resolver treats it as satisfied so a migration artifact cannot wedge a
// workflow, and reports inconsistent=true so the orchestration layer can log
// a data-integrity warning.
func IsDependencySatisfied(workflow *ItemWorkflow, step *StepInstance) (satisfied bool, inconsistent bool) {
	if step.ParentStepID == nil {
		return true, false
	}
	parent, ok := workflow.Steps[*step.ParentStepID]
	if !ok {
		return true, true
	}
	switch parent.Status {
	case StepStatusInProgress, StepStatusCompleted:
		return true, false
	default:
		return false, false
	}
}

// IsInconsistentRootMirror reports the second inconsistent-mirror shape:
// a step that carries no parent reference although its template node is not
// a root. IsDependencySatisfied cannot see this one because it never looks
// at the template.
func IsInconsistentRootMirror(template *WorkflowTemplate, step *StepInstance) bool {
	if step.ParentStepID != nil {
		return false
	}
	node, ok := template.Nodes[step.NodeID]
	return ok && node.ParentID != nil
}
