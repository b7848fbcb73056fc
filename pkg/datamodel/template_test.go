package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func int64Ptr(v int64) *int64 {
	return &v
}

// chainTemplate builds FORGING -> MACHINING -> QUALITY -> DISPATCH
func chainTemplate(t *testing.T) *WorkflowTemplate {
	tmpl := NewWorkflowTemplate(1, "forge-gmbh", "standard chain")
	tmpl.IsActive = true

	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 1, OperationType: OperationTypeForging, Name: "Forging"}))
	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 2, OperationType: OperationTypeMachining, Name: "Machining", ParentID: int64Ptr(1)}))
	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 3, OperationType: OperationTypeQuality, Name: "Quality", ParentID: int64Ptr(2)}))
	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 4, OperationType: OperationTypeDispatch, Name: "Dispatch", ParentID: int64Ptr(3)}))
	return tmpl
}

// branchingTemplate builds FORGING -> QUALITY -> {MACHINING (rework), DISPATCH}
func branchingTemplate(t *testing.T) *WorkflowTemplate {
	tmpl := NewWorkflowTemplate(2, "forge-gmbh", "quality branch")
	tmpl.IsActive = true

	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 1, OperationType: OperationTypeForging, Name: "Forging"}))
	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 2, OperationType: OperationTypeQuality, Name: "Quality", ParentID: int64Ptr(1)}))
	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 3, OperationType: OperationTypeMachining, Name: "Machining Rework", ParentID: int64Ptr(2)}))
	assert.NoError(t, tmpl.AddNode(&OperationNode{ID: 4, OperationType: OperationTypeDispatch, Name: "Dispatch", ParentID: int64Ptr(2)}))
	return tmpl
}

func TestGetRootNodes(t *testing.T) {
	tmpl := chainTemplate(t)

	roots := tmpl.GetRootNodes()
	assert.Len(t, roots, 1)
	assert.Equal(t, int64(1), roots[0].ID)
	assert.Equal(t, OperationTypeForging, roots[0].OperationType)
}

func TestGetFirstNodeOfType(t *testing.T) {
	tmpl := chainTemplate(t)

	assert.NotNil(t, tmpl.GetFirstNodeOfType(OperationTypeForging))
	// Machining exists but is not a root
	assert.Nil(t, tmpl.GetFirstNodeOfType(OperationTypeMachining))
	assert.Nil(t, tmpl.GetFirstNodeOfType(OperationTypeVendor))
}

func TestGetBranchingNodes(t *testing.T) {
	chain := chainTemplate(t)
	assert.Empty(t, chain.GetBranchingNodes())

	branching := branchingTemplate(t)
	nodes := branching.GetBranchingNodes()
	assert.Len(t, nodes, 1)
	assert.Equal(t, OperationTypeQuality, nodes[0].OperationType)
}

func TestIsValidTree(t *testing.T) {
	t.Run("valid chain", func(t *testing.T) {
		assert.True(t, chainTemplate(t).IsValidTree())
	})

	t.Run("no nodes", func(t *testing.T) {
		tmpl := NewWorkflowTemplate(9, "forge-gmbh", "empty")
		assert.False(t, tmpl.IsValidTree())
	})

	t.Run("cycle", func(t *testing.T) {
		tmpl := chainTemplate(t)
		// Wire the root's parent onto a descendant behind the arena's back
		tmpl.Nodes[1].ParentID = int64Ptr(3)
		tmpl.Nodes[3].ChildIDs = append(tmpl.Nodes[3].ChildIDs, 1)
		assert.False(t, tmpl.IsValidTree())
	})

	t.Run("dangling parent", func(t *testing.T) {
		tmpl := chainTemplate(t)
		tmpl.Nodes[4].ParentID = int64Ptr(999)
		assert.False(t, tmpl.IsValidTree())
	})
}

func TestAddNodeRejectsStructuralEdits(t *testing.T) {
	tmpl := chainTemplate(t)

	err := tmpl.AddNode(&OperationNode{ID: 5, OperationType: OperationTypeVendor, ParentID: int64Ptr(42)})
	assert.ErrorIs(t, err, ErrStructuralInvalid)
	assert.Len(t, tmpl.Nodes, 4)

	err = tmpl.AddNode(&OperationNode{ID: 4, OperationType: OperationTypeVendor})
	assert.ErrorIs(t, err, ErrStructuralInvalid)
}

func TestEnumerateAllPaths(t *testing.T) {
	t.Run("chain yields one path", func(t *testing.T) {
		paths := chainTemplate(t).EnumerateAllPaths()
		assert.Len(t, paths, 1)
		assert.Len(t, paths[0], 4)
		assert.Equal(t, OperationTypeForging, paths[0][0].OperationType)
		assert.Equal(t, OperationTypeDispatch, paths[0][3].OperationType)
	})

	t.Run("branch yields one path per leaf", func(t *testing.T) {
		paths := branchingTemplate(t).EnumerateAllPaths()
		assert.Len(t, paths, 2)
		for _, path := range paths {
			assert.Len(t, path, 3)
			assert.Equal(t, OperationTypeForging, path[0].OperationType)
			assert.Equal(t, OperationTypeQuality, path[1].OperationType)
		}
	})
}

func TestContainsPath(t *testing.T) {
	tmpl := chainTemplate(t)

	assert.True(t, tmpl.ContainsPath([]OperationType{
		OperationTypeForging, OperationTypeMachining, OperationTypeQuality, OperationTypeDispatch,
	}))
	// prefix of a path is not a path
	assert.False(t, tmpl.ContainsPath([]OperationType{
		OperationTypeForging, OperationTypeMachining,
	}))
	assert.False(t, tmpl.ContainsPath([]OperationType{
		OperationTypeForging, OperationTypeQuality, OperationTypeMachining, OperationTypeDispatch,
	}))
}

func TestGetNodeTreeLevel(t *testing.T) {
	tmpl := chainTemplate(t)

	assert.Equal(t, 0, tmpl.GetNodeTreeLevel(1))
	assert.Equal(t, 3, tmpl.GetNodeTreeLevel(4))
	assert.Equal(t, -1, tmpl.GetNodeTreeLevel(999))
}

func TestSoftDeleteNode(t *testing.T) {
	tmpl := branchingTemplate(t)

	assert.NoError(t, tmpl.SoftDeleteNode(3))
	assert.True(t, tmpl.Nodes[3].IsDeleted())
	// deleted nodes drop out of traversal
	assert.Empty(t, tmpl.GetBranchingNodes())
	paths := tmpl.EnumerateAllPaths()
	assert.Len(t, paths, 1)

	// deleting the only root is refused
	err := tmpl.SoftDeleteNode(1)
	assert.ErrorIs(t, err, ErrStructuralInvalid)
	assert.False(t, tmpl.Nodes[1].IsDeleted())

	assert.ErrorIs(t, tmpl.SoftDeleteNode(999), ErrNotFound)
}
