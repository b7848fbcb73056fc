package services

import (
	"testing"
	"time"

	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
)

func expectStepWorkflowLoad(mock pgxmock.PgxPoolIface, overrideStatus *int, machiningStatus datamodel.StepStatus) {
	mock.ExpectQuery(`SELECT item_id, template_id, workflow_identifier, override_status, created_at FROM item_workflow`).
		WithArgs(int64(41), "factory-a").
		WillReturnRows(mock.NewRows([]string{
			"item_id", "template_id", "workflow_identifier", "override_status", "created_at"}).
			AddRow("item-1", int64(31), "wf-abc", overrideStatus, time.Now()))
	mock.ExpectQuery(`SELECT id, node_id, parent_step_id, operation_type, status, is_optional`).
		WithArgs(int64(41)).
		WillReturnRows(mock.NewRows([]string{
			"id", "node_id", "parent_step_id", "operation_type", "status", "is_optional",
			"started_at", "completed_at", "initial_pieces", "pieces_available", "rework_pieces_available",
			"operation_reference_id"}).
			AddRow(int64(101), int64(501), nil, int(datamodel.OperationTypeForging), int(datamodel.StepStatusCompleted), false,
				nil, nil, int64Ptr(100), int64Ptr(100), int64Ptr(0), nil).
			AddRow(int64(102), int64(502), int64Ptr(101), int(datamodel.OperationTypeMachining), int(machiningStatus), false,
				nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery(`SELECT sre\.step_id, sre\.entity_id FROM step_related_entity`).
		WithArgs(int64(41)).
		WillReturnRows(mock.NewRows([]string{"step_id", "entity_id"}))
}

func TestStartStep(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	mock.ExpectBegin()
	expectStepWorkflowLoad(mock, nil, datamodel.StepStatusPending)
	mock.ExpectExec(`UPDATE step_instance`).
		WithArgs(int64(102), int(datamodel.StepStatusInProgress), pgxmock.AnyArg(), (*time.Time)(nil),
			(*int64)(nil), (*int64)(nil), (*int64)(nil), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO workflow_event`).
		WithArgs(int64(41), "step.start", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	workflow, err := s.StartStep("factory-a", 41, 102)
	assert.NoError(t, err)
	assert.Equal(t, datamodel.StepStatusInProgress, workflow.Steps[102].Status)
	assert.NotNil(t, workflow.Steps[102].StartedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStepBlockedByOverride(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	onHold := int(datamodel.WorkflowStatusOnHold)
	mock.ExpectBegin()
	expectStepWorkflowLoad(mock, &onHold, datamodel.StepStatusPending)
	mock.ExpectRollback()

	_, err := s.StartStep("factory-a", 41, 102)
	assert.ErrorIs(t, err, datamodel.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartStepBlockedByDependency(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT item_id, template_id, workflow_identifier, override_status, created_at FROM item_workflow`).
		WithArgs(int64(41), "factory-a").
		WillReturnRows(mock.NewRows([]string{
			"item_id", "template_id", "workflow_identifier", "override_status", "created_at"}).
			AddRow("item-1", int64(31), "wf-abc", nil, time.Now()))
	// the upstream step never ran, its child must stay blocked
	mock.ExpectQuery(`SELECT id, node_id, parent_step_id, operation_type, status, is_optional`).
		WithArgs(int64(41)).
		WillReturnRows(mock.NewRows([]string{
			"id", "node_id", "parent_step_id", "operation_type", "status", "is_optional",
			"started_at", "completed_at", "initial_pieces", "pieces_available", "rework_pieces_available",
			"operation_reference_id"}).
			AddRow(int64(101), int64(501), nil, int(datamodel.OperationTypeForging), int(datamodel.StepStatusPending), false,
				nil, nil, nil, nil, nil, nil).
			AddRow(int64(102), int64(502), int64Ptr(101), int(datamodel.OperationTypeMachining), int(datamodel.StepStatusPending), false,
				nil, nil, nil, nil, nil, nil))
	mock.ExpectQuery(`SELECT sre\.step_id, sre\.entity_id FROM step_related_entity`).
		WithArgs(int64(41)).
		WillReturnRows(mock.NewRows([]string{"step_id", "entity_id"}))
	mock.ExpectRollback()

	_, err := s.StartStep("factory-a", 41, 102)
	assert.ErrorIs(t, err, datamodel.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishStepFailed(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	mock.ExpectBegin()
	expectStepWorkflowLoad(mock, nil, datamodel.StepStatusInProgress)
	mock.ExpectExec(`UPDATE step_instance`).
		WithArgs(int64(102), int(datamodel.StepStatusFailed), (*time.Time)(nil), pgxmock.AnyArg(),
			(*int64)(nil), (*int64)(nil), (*int64)(nil), (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO workflow_event`).
		WithArgs(int64(41), "step.FAILED", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	workflow, err := s.FinishStep("factory-a", 41, 102, datamodel.StepStatusFailed)
	assert.NoError(t, err)
	assert.Equal(t, datamodel.StepStatusFailed, workflow.Steps[102].Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishStepRejectsCompleted(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	// completion carries piece counts and must go through the ledger
	_, err := s.FinishStep("factory-a", 41, 102, datamodel.StepStatusCompleted)
	assert.ErrorIs(t, err, datamodel.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}
