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

package main

import (
	"net/http"
	"time"

	"github.com/forge-track/forge-track/cmd/forge-track/helpers"
	"github.com/forge-track/forge-track/cmd/forge-track/ledger"
	"github.com/forge-track/forge-track/cmd/forge-track/models"
	"github.com/forge-track/forge-track/cmd/forge-track/services"
	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var service *services.Service

// SetupRestAPI initializes the REST API and starts listening
func SetupRestAPI(accounts gin.Accounts, facade *services.Service) {
	service = facade

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Combined access and error log, RFC3339 with UTC; panics logged with
	// their stack.
	router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(zap.L(), true))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// Healthcheck
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "online")
	})

	v1 := router.Group("/api/v1", gin.BasicAuth(accounts))
	{
		// Need to check in each handler whether the authenticated user is
		// actually allowed to access that customer
		v1.POST("/:customer/templates", createTemplateHandler)
		v1.GET("/:customer/templates/:templateId", getTemplateHandler)
		v1.GET("/:customer/templates/:templateId/first-operation/:operationType", isFirstOperationHandler)
		v1.DELETE("/:customer/templates/:templateId/nodes/:nodeId", deleteTemplateNodeHandler)

		v1.POST("/:customer/workflows", instantiateWorkflowHandler)
		v1.GET("/:customer/workflows/:workflowId", getWorkflowHandler)
		v1.GET("/:customer/items/:itemId/workflows", getActiveWorkflowsHandler)
		v1.GET("/:customer/workflows/:workflowId/heats", traceWorkflowHeatsHandler)
		v1.GET("/:customer/workflows/:workflowId/events", getWorkflowEventsHandler)
		v1.PUT("/:customer/workflows/:workflowId/override", setWorkflowOverrideHandler)

		v1.POST("/:customer/workflows/:workflowId/steps/:stepId/start", startStepHandler)
		v1.POST("/:customer/workflows/:workflowId/steps/:stepId/skip", skipStepHandler)
		v1.POST("/:customer/workflows/:workflowId/steps/:stepId/fail", failStepHandler)

		v1.POST("/:customer/workflows/:workflowId/stage-batches", createStageBatchHandler)
		v1.POST("/:customer/workflows/:workflowId/stage-batches/complete", completeStageBatchHandler)
		v1.GET("/:customer/stage-batches/:batchId/heats", traceBatchHeatsHandler)
	}

	err := router.Run(":80")
	if err != nil {
		zap.S().Fatalf("Failed to bind to port 80: %s", err)
	}
}

// ---------------------- templates ----------------------

type templateRequest struct {
	Customer   string `uri:"customer" binding:"required"`
	TemplateID int64  `uri:"templateId" binding:"required"`
}

func createTemplateHandler(c *gin.Context) {
	var uri struct {
		Customer string `uri:"customer" binding:"required"`
	}
	if err := c.BindUri(&uri); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, uri.Customer); err != nil {
		return
	}

	var request models.CreateTemplateRequest
	if err := c.BindJSON(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	template, err := service.CreateTemplate(uri.Customer, &request)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewTemplateResponse(template))
}

func getTemplateHandler(c *gin.Context) {
	var request templateRequest
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	template, err := service.GetTemplate(request.Customer, request.TemplateID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewTemplateResponse(template))
}

func isFirstOperationHandler(c *gin.Context) {
	var request struct {
		Customer      string `uri:"customer" binding:"required"`
		TemplateID    int64  `uri:"templateId" binding:"required"`
		OperationType string `uri:"operationType" binding:"required"`
	}
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	operationType, err := datamodel.ConvertStringToOperationType(request.OperationType)
	if err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	isFirst, err := service.IsFirstOperationInTemplate(request.Customer, request.TemplateID, operationType)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isFirstOperation": isFirst})
}

func deleteTemplateNodeHandler(c *gin.Context) {
	var request struct {
		Customer   string `uri:"customer" binding:"required"`
		TemplateID int64  `uri:"templateId" binding:"required"`
		NodeID     int64  `uri:"nodeId" binding:"required"`
	}
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	err := service.DeleteTemplateNode(request.Customer, request.TemplateID, request.NodeID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------- workflows ----------------------

type workflowRequest struct {
	Customer   string `uri:"customer" binding:"required"`
	WorkflowID int64  `uri:"workflowId" binding:"required"`
}

func instantiateWorkflowHandler(c *gin.Context) {
	var uri struct {
		Customer string `uri:"customer" binding:"required"`
	}
	if err := c.BindUri(&uri); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, uri.Customer); err != nil {
		return
	}

	var request models.InstantiateWorkflowRequest
	if err := c.BindJSON(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	workflow, err := service.InstantiateForItem(uri.Customer, request.ItemID, request.TemplateID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewWorkflowSnapshot(workflow))
}

func getWorkflowHandler(c *gin.Context) {
	var request workflowRequest
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	workflow, err := service.GetWorkflow(request.Customer, request.WorkflowID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewWorkflowSnapshot(workflow))
}

func getActiveWorkflowsHandler(c *gin.Context) {
	var request struct {
		Customer string `uri:"customer" binding:"required"`
		ItemID   string `uri:"itemId" binding:"required"`
	}
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	workflows, err := service.GetActiveWorkflowsForItem(request.Customer, request.ItemID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	snapshots := make([]models.WorkflowSnapshot, 0, len(workflows))
	for _, workflow := range workflows {
		snapshots = append(snapshots, models.NewWorkflowSnapshot(workflow))
	}
	c.JSON(http.StatusOK, snapshots)
}

func getWorkflowEventsHandler(c *gin.Context) {
	var request workflowRequest
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	events, err := service.GetWorkflowEvents(request.Customer, request.WorkflowID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func setWorkflowOverrideHandler(c *gin.Context) {
	var request workflowRequest
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	var body struct {
		// CANCELLED, ON_HOLD or null to resume
		Status *string `json:"status"`
	}
	if err := c.BindJSON(&body); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	var status *datamodel.WorkflowStatus
	if body.Status != nil {
		switch *body.Status {
		case "CANCELLED":
			s := datamodel.WorkflowStatusCancelled
			status = &s
		case "ON_HOLD":
			s := datamodel.WorkflowStatusOnHold
			status = &s
		default:
			helpers.HandleInvalidInputError(c, nil)
			return
		}
	}

	err := service.SetWorkflowOverride(request.Customer, request.WorkflowID, status)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------------------- steps ----------------------

type stepRequest struct {
	Customer   string `uri:"customer" binding:"required"`
	WorkflowID int64  `uri:"workflowId" binding:"required"`
	StepID     int64  `uri:"stepId" binding:"required"`
}

func startStepHandler(c *gin.Context) {
	var request stepRequest
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	workflow, err := service.StartStep(request.Customer, request.WorkflowID, request.StepID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewWorkflowSnapshot(workflow))
}

func skipStepHandler(c *gin.Context) {
	finishStep(c, datamodel.StepStatusSkipped)
}

func failStepHandler(c *gin.Context) {
	finishStep(c, datamodel.StepStatusFailed)
}

func finishStep(c *gin.Context, terminal datamodel.StepStatus) {
	var request stepRequest
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	workflow, err := service.FinishStep(request.Customer, request.WorkflowID, request.StepID, terminal)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewWorkflowSnapshot(workflow))
}

// ---------------------- stage batches ----------------------

func createStageBatchHandler(c *gin.Context) {
	var uri workflowRequest
	if err := c.BindUri(&uri); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, uri.Customer); err != nil {
		return
	}

	var request models.CreateStageBatchRequest
	if err := c.BindJSON(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	workflow, err := service.Ledger().CreateStageBatch(uri.Customer, ledger.CreationRequest{
		BatchID:         request.BatchID,
		WorkflowID:      uri.WorkflowID,
		UpstreamStepID:  request.UpstreamStepID,
		ConsumingStepID: request.ConsumingStepID,
		RequestedPieces: request.RequestedPieces,
		FromReworkPool:  request.FromReworkPool,
	})
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewWorkflowSnapshot(workflow))
}

func completeStageBatchHandler(c *gin.Context) {
	var uri workflowRequest
	if err := c.BindUri(&uri); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, uri.Customer); err != nil {
		return
	}

	var request models.CompleteStageBatchRequest
	if err := c.BindJSON(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}

	workflow, err := service.Ledger().CompleteStageBatch(uri.Customer, ledger.CompletionReport{
		BatchID:        request.BatchID,
		WorkflowID:     uri.WorkflowID,
		StepID:         request.StepID,
		FinishedPieces: request.FinishedPieces,
		RejectedPieces: request.RejectedPieces,
		ReworkPieces:   request.ReworkPieces,
		ActualProduced: request.ActualProduced,
	})
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewWorkflowSnapshot(workflow))
}

// ---------------------- heat traceability ----------------------

func traceWorkflowHeatsHandler(c *gin.Context) {
	var request workflowRequest
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	heats, err := service.Ledger().TraceHeats(request.Customer, request.WorkflowID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewHeatResponses(heats))
}

func traceBatchHeatsHandler(c *gin.Context) {
	var request struct {
		Customer string `uri:"customer" binding:"required"`
		BatchID  string `uri:"batchId" binding:"required"`
	}
	if err := c.BindUri(&request); err != nil {
		helpers.HandleInvalidInputError(c, err)
		return
	}
	if err := helpers.CheckIfUserIsAllowed(c, request.Customer); err != nil {
		return
	}

	heats, err := service.Ledger().TraceHeatsForBatch(request.Customer, request.BatchID)
	if err != nil {
		helpers.HandleWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewHeatResponses(heats))
}
