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

import "time"

type InstantiateWorkflowRequest struct {
	ItemID     string `json:"itemId" binding:"required"`
	TemplateID int64  `json:"templateId" binding:"required"`
}

type CreateStageBatchRequest struct {
	BatchID string `json:"batchId" binding:"required"`
	// UpstreamStepID is omitted for an entry batch on a root step
	UpstreamStepID  int64 `json:"upstreamStepId"`
	ConsumingStepID int64 `json:"consumingStepId" binding:"required"`
	RequestedPieces int64 `json:"requestedPieces"`
	FromReworkPool  bool  `json:"fromReworkPool"`
}

type CompleteStageBatchRequest struct {
	BatchID        string `json:"batchId" binding:"required"`
	StepID         int64  `json:"stepId" binding:"required"`
	FinishedPieces int64  `json:"finishedPieces"`
	RejectedPieces int64  `json:"rejectedPieces"`
	ReworkPieces   int64  `json:"reworkPieces"`
	ActualProduced int64  `json:"actualProduced"`
}

type StepSnapshot struct {
	StartedAt              *time.Time `json:"startedAt"`
	CompletedAt            *time.Time `json:"completedAt"`
	InitialPiecesCount     *int64     `json:"initialPiecesCount"`
	PiecesAvailableForNext *int64     `json:"piecesAvailableForNext"`
	ReworkPiecesAvailable  *int64     `json:"reworkPiecesAvailable"`
	ParentStepID           *int64     `json:"parentStepId"`
	OperationReferenceID   *string    `json:"operationReferenceId"`
	OperationType          string     `json:"operationType"`
	Status                 string     `json:"status"`
	RelatedEntityIDs       []string   `json:"relatedEntityIds"`
	ID                     int64      `json:"id"`
	NodeID                 int64      `json:"nodeId"`
	ConsumedPiecesCount    int64      `json:"consumedPiecesCount"`
	Utilization            float64    `json:"utilization"`
	IsOptional             bool       `json:"isOptional"`
	Startable              bool       `json:"startable"`
}

type WorkflowSnapshot struct {
	ItemID             string         `json:"itemId"`
	WorkflowIdentifier string         `json:"workflowIdentifier"`
	WorkflowStatus     string         `json:"workflowStatus"`
	Steps              []StepSnapshot `json:"steps"`
	CreatedAt          time.Time      `json:"createdAt"`
	ID                 int64          `json:"id"`
	TemplateID         int64          `json:"templateId"`
}

type HeatResponse struct {
	HeatID            string  `json:"heatId"`
	HeatNumber        string  `json:"heatNumber"`
	QuantityAvailable float64 `json:"quantityAvailable"`
	PiecesAvailable   int64   `json:"piecesAvailable"`
}
