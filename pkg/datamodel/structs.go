package datamodel

import (
	"time"
)

// OperationNode is one node of a workflow template tree. Parent and children
// are stored as node ids into the owning template's arena, never as pointers.
type OperationNode struct {
	DeletedAt     *time.Time
	ParentID      *int64
	Name          string
	Description   string
	ChildIDs      []int64
	ID            int64
	TemplateID    int64
	OperationType OperationType
	IsOptional    bool
	IsParallel    bool
}

// IsDeleted reports whether the node is soft-deleted and therefore excluded from traversal
func (n *OperationNode) IsDeleted() bool {
	return n.DeletedAt != nil
}

// IsRoot reports whether the node has no parent
func (n *OperationNode) IsRoot() bool {
	return n.ParentID == nil
}

// WorkflowTemplate is a tenant-level, reusable tree of allowed operation
// sequences. Nodes live in an id-indexed arena; the tree shape is defined by
// the id references on the nodes.
type WorkflowTemplate struct {
	Nodes     map[int64]*OperationNode
	Customer  string
	Name      string
	CreatedAt time.Time
	ID        int64
	IsDefault bool
	IsActive  bool
}

// NewWorkflowTemplate returns an empty template with an initialized node arena
func NewWorkflowTemplate(id int64, customer string, name string) *WorkflowTemplate {
	return &WorkflowTemplate{
		ID:       id,
		Customer: customer,
		Name:     name,
		Nodes:    make(map[int64]*OperationNode),
	}
}

// StepInstance is the per-item execution record mirroring one template node.
// ParentStepID mirrors the node's parent and is set at instantiation time.
type StepInstance struct {
	StartedAt   *time.Time
	CompletedAt *time.Time

	// InitialPiecesCount is set exactly once, when the producing stage batch
	// completes; nil until then.
	InitialPiecesCount *int64

	// PiecesAvailableForNext is decremented as downstream stages consume.
	// Invariant: 0 <= PiecesAvailableForNext <= InitialPiecesCount.
	PiecesAvailableForNext *int64

	// ReworkPiecesAvailable is the rework pool, tracked separately from the
	// forward-flow pool so a forward consumer cannot drain rework stock.
	ReworkPiecesAvailable *int64

	ParentStepID *int64

	// OperationReferenceID points at the stage batch that produced this
	// step's output.
	OperationReferenceID *string

	// RelatedEntityIDs lists the stage-specific processed-item aggregates
	// contributing to or consuming this step, used for heat traceability.
	RelatedEntityIDs []string

	ID            int64
	WorkflowID    int64
	NodeID        int64
	OperationType OperationType
	Status        StepStatus
	IsOptional    bool
}

// ConsumedPiecesCount returns how many produced pieces downstream stages have taken
func (s *StepInstance) ConsumedPiecesCount() int64 {
	if s.InitialPiecesCount == nil || s.PiecesAvailableForNext == nil {
		return 0
	}
	return *s.InitialPiecesCount - *s.PiecesAvailableForNext
}

// Utilization returns the consumed fraction of the produced pieces, 0 if nothing was produced yet
func (s *StepInstance) Utilization() float64 {
	if s.InitialPiecesCount == nil || *s.InitialPiecesCount == 0 {
		return 0
	}
	return float64(s.ConsumedPiecesCount()) / float64(*s.InitialPiecesCount)
}

// IsRootStep reports whether the step has no parent step
func (s *StepInstance) IsRootStep() bool {
	return s.ParentStepID == nil
}

// ItemWorkflow is one activation of a workflow template for a specific
// physical item. Steps live in an id-indexed arena mirroring the template.
type ItemWorkflow struct {
	Steps    map[int64]*StepInstance
	Customer string
	ItemID   string

	// WorkflowIdentifier is the cross-stage correlation token, minted when
	// the first step is started. Empty until then.
	WorkflowIdentifier string

	CreatedAt  time.Time
	ID         int64
	TemplateID int64

	// OverrideStatus holds an operator-set CANCELLED or ON_HOLD; nil means
	// the status is fully derived from the steps.
	OverrideStatus *WorkflowStatus
}

// Heat is one traceable lot of raw material, resolved through a stage batch
type Heat struct {
	HeatID            string
	HeatNumber        string
	QuantityAvailable float64
	PiecesAvailable   int64
}

// StageBatch is the contract every stage-specific batch aggregate (forge run,
// furnace batch, machine batch, inspection batch, dispatch batch, vendor
// dispatch) exposes to the piece ledger.
type StageBatch struct {
	BatchID                string
	StepInstanceID         int64
	OperationType          OperationType
	PiecesProduced         int64
	AvailablePiecesForNext int64
	RejectedCount          int64
	ReworkCount            int64
	Heats                  []Heat
}
