package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/forge-track/forge-track/pkg/datamodel"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
)

// expectWorkflowLoadWithEntities mocks an unlocked workflow read whose root
// forging step carries the given related entity ids.
func expectWorkflowLoadWithEntities(mock pgxmock.PgxPoolIface, entityIDs ...string) {
	mock.ExpectQuery(`SELECT item_id, template_id, workflow_identifier, override_status, created_at FROM item_workflow`).
		WithArgs(int64(41), "factory-a").
		WillReturnRows(mock.NewRows([]string{
			"item_id", "template_id", "workflow_identifier", "override_status", "created_at"}).
			AddRow("item-1", int64(31), "wf-abc", nil, time.Now()))
	mock.ExpectQuery(`SELECT id, node_id, parent_step_id, operation_type, status, is_optional`).
		WithArgs(int64(41)).
		WillReturnRows(mock.NewRows([]string{
			"id", "node_id", "parent_step_id", "operation_type", "status", "is_optional",
			"started_at", "completed_at", "initial_pieces", "pieces_available", "rework_pieces_available",
			"operation_reference_id"}).
			AddRow(int64(101), int64(501), nil, int(datamodel.OperationTypeForging), int(datamodel.StepStatusCompleted), false,
				nil, nil, int64Ptr(100), int64Ptr(60), int64Ptr(0), nil).
			AddRow(int64(102), int64(502), int64Ptr(101), int(datamodel.OperationTypeMachining), int(datamodel.StepStatusInProgress), false,
				nil, nil, nil, nil, nil, nil))
	entityRows := mock.NewRows([]string{"step_id", "entity_id"})
	for _, entityID := range entityIDs {
		entityRows.AddRow(int64(101), entityID)
	}
	mock.ExpectQuery(`SELECT sre\.step_id, sre\.entity_id FROM step_related_entity`).
		WithArgs(int64(41)).
		WillReturnRows(entityRows)
}

func TestTraceHeats(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	expectWorkflowLoadWithEntities(mock, "FB-1", "FB-2")

	mock.ExpectQuery(`FROM forge_heat`).
		WithArgs("FB-1").
		WillReturnRows(mock.NewRows([]string{"heat_id", "heat_number", "quantity_available", "pieces_available"}).
			AddRow("H-1", "55821", 4.5, int64(60)).
			AddRow("H-2", "55900", 2.0, int64(40)))
	// second forge batch shares a heat with the first
	mock.ExpectQuery(`FROM forge_heat`).
		WithArgs("FB-2").
		WillReturnRows(mock.NewRows([]string{"heat_id", "heat_number", "quantity_available", "pieces_available"}).
			AddRow("H-2", "55900", 2.0, int64(40)).
			AddRow("H-3", "56010", 1.2, int64(25)))

	heats, err := s.TraceHeats("factory-a", 41)
	assert.NoError(t, err)
	assert.Len(t, heats, 3)
	assert.Equal(t, "H-1", heats[0].HeatID)
	assert.Equal(t, "H-2", heats[1].HeatID)
	assert.Equal(t, "H-3", heats[2].HeatID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTraceHeatsDropsUnresolvableEntity(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	expectWorkflowLoadWithEntities(mock, "FB-1", "FB-gone")

	mock.ExpectQuery(`FROM forge_heat`).
		WithArgs("FB-1").
		WillReturnRows(mock.NewRows([]string{"heat_id", "heat_number", "quantity_available", "pieces_available"}).
			AddRow("H-1", "55821", 4.5, int64(60)))
	mock.ExpectQuery(`FROM forge_heat`).
		WithArgs("FB-gone").
		WillReturnError(fmt.Errorf("relation vanished"))

	// the missing reference is logged and dropped, the rest still resolves
	heats, err := s.TraceHeats("factory-a", 41)
	assert.NoError(t, err)
	assert.Len(t, heats, 1)
	assert.Equal(t, "H-1", heats[0].HeatID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTraceHeatsForBatchAnswersFromOwnHeats(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT sb\.step_id, sb\.operation_type`).
		WithArgs("FB-1", "factory-a").
		WillReturnRows(mock.NewRows([]string{
			"step_id", "operation_type", "pieces_produced", "available_for_next", "rejected_count", "rework_count"}).
			AddRow(int64(101), int(datamodel.OperationTypeForging), int64(105), int64(100), int64(5), int64(0)))
	mock.ExpectQuery(`FROM forge_heat`).
		WithArgs("FB-1").
		WillReturnRows(mock.NewRows([]string{"heat_id", "heat_number", "quantity_available", "pieces_available"}).
			AddRow("H-1", "55821", 4.5, int64(60)))

	heats, err := s.TraceHeatsForBatch("factory-a", "FB-1")
	assert.NoError(t, err)
	assert.Len(t, heats, 1)
	assert.Equal(t, "H-1", heats[0].HeatID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTraceHeatsForBatchFallsBackToWorkflow(t *testing.T) {
	s, mock := createMockService(t)
	defer mock.Close()

	// an inspection batch carries no heats of its own
	mock.ExpectQuery(`SELECT sb\.step_id, sb\.operation_type`).
		WithArgs("IB-1", "factory-a").
		WillReturnRows(mock.NewRows([]string{
			"step_id", "operation_type", "pieces_produced", "available_for_next", "rejected_count", "rework_count"}).
			AddRow(int64(102), int(datamodel.OperationTypeQuality), int64(38), int64(38), int64(0), int64(0)))
	mock.ExpectQuery(`FROM inspection_heat`).
		WithArgs("IB-1").
		WillReturnRows(mock.NewRows([]string{"heat_id", "heat_number", "quantity_available", "pieces_available"}))

	mock.ExpectQuery(`SELECT si\.workflow_id FROM step_instance si`).
		WithArgs(int64(102), "factory-a").
		WillReturnRows(mock.NewRows([]string{"workflow_id"}).AddRow(int64(41)))

	expectWorkflowLoadWithEntities(mock, "FB-1")
	mock.ExpectQuery(`FROM forge_heat`).
		WithArgs("FB-1").
		WillReturnRows(mock.NewRows([]string{"heat_id", "heat_number", "quantity_available", "pieces_available"}).
			AddRow("H-1", "55821", 4.5, int64(60)))

	heats, err := s.TraceHeatsForBatch("factory-a", "IB-1")
	assert.NoError(t, err)
	assert.Len(t, heats, 1)
	assert.Equal(t, "H-1", heats[0].HeatID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
