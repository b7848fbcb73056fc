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

import "fmt"

// ConvertOperationTypeToString converts an operation type to its wire representation
func ConvertOperationTypeToString(operationType OperationType) (operationTypeString string) {
	switch operationType {
	case OperationTypeForging:
		operationTypeString = "FORGING"
	case OperationTypeHeatTreatment:
		operationTypeString = "HEAT_TREATMENT"
	case OperationTypeMachining:
		operationTypeString = "MACHINING"
	case OperationTypeVendor:
		operationTypeString = "VENDOR"
	case OperationTypeQuality:
		operationTypeString = "QUALITY"
	case OperationTypeDispatch:
		operationTypeString = "DISPATCH"
	default:
		operationTypeString = fmt.Sprintf("unknown operation type (%d)", operationType)
	}
	return
}

// ConvertStringToOperationType converts the wire representation back into an operation type
func ConvertStringToOperationType(operationTypeString string) (operationType OperationType, err error) {
	switch operationTypeString {
	case "FORGING":
		operationType = OperationTypeForging
	case "HEAT_TREATMENT":
		operationType = OperationTypeHeatTreatment
	case "MACHINING":
		operationType = OperationTypeMachining
	case "VENDOR":
		operationType = OperationTypeVendor
	case "QUALITY":
		operationType = OperationTypeQuality
	case "DISPATCH":
		operationType = OperationTypeDispatch
	default:
		err = fmt.Errorf("unknown operation type: %s", operationTypeString)
	}
	return
}

// ConvertStepStatusToString converts a step status to its wire representation
func ConvertStepStatusToString(status StepStatus) (statusString string) {
	switch status {
	case StepStatusPending:
		statusString = "PENDING"
	case StepStatusInProgress:
		statusString = "IN_PROGRESS"
	case StepStatusCompleted:
		statusString = "COMPLETED"
	case StepStatusSkipped:
		statusString = "SKIPPED"
	case StepStatusFailed:
		statusString = "FAILED"
	default:
		statusString = fmt.Sprintf("unknown step status (%d)", status)
	}
	return
}

// ConvertStringToStepStatus converts the wire representation back into a step status
func ConvertStringToStepStatus(statusString string) (status StepStatus, err error) {
	switch statusString {
	case "PENDING":
		status = StepStatusPending
	case "IN_PROGRESS":
		status = StepStatusInProgress
	case "COMPLETED":
		status = StepStatusCompleted
	case "SKIPPED":
		status = StepStatusSkipped
	case "FAILED":
		status = StepStatusFailed
	default:
		err = fmt.Errorf("unknown step status: %s", statusString)
	}
	return
}

// ConvertWorkflowStatusToString converts a workflow status to its wire representation
func ConvertWorkflowStatusToString(status WorkflowStatus) (statusString string) {
	switch status {
	case WorkflowStatusNotStarted:
		statusString = "NOT_STARTED"
	case WorkflowStatusInProgress:
		statusString = "IN_PROGRESS"
	case WorkflowStatusCompleted:
		statusString = "COMPLETED"
	case WorkflowStatusCancelled:
		statusString = "CANCELLED"
	case WorkflowStatusOnHold:
		statusString = "ON_HOLD"
	default:
		statusString = fmt.Sprintf("unknown workflow status (%d)", status)
	}
	return
}
