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
)

// AddNode inserts a node into the template arena and links it to its parent.
// The edit is rejected if it would break the tree (unknown parent, duplicate
// id, or a cycle through the parent chain).
func (t *WorkflowTemplate) AddNode(node *OperationNode) error {
	if node == nil {
		return fmt.Errorf("%w: nil node", ErrStructuralInvalid)
	}
	if _, exists := t.Nodes[node.ID]; exists {
		return fmt.Errorf("%w: duplicate node id %d", ErrStructuralInvalid, node.ID)
	}
	if node.ParentID != nil {
		parent, ok := t.Nodes[*node.ParentID]
		if !ok {
			return fmt.Errorf("%w: parent node %d does not exist", ErrStructuralInvalid, *node.ParentID)
		}
		parent.ChildIDs = append(parent.ChildIDs, node.ID)
	}
	node.TemplateID = t.ID
	t.Nodes[node.ID] = node

	if !t.IsValidTree() {
		// Roll the edit back, the caller gets the tree it started with
		t.removeNode(node)
		return fmt.Errorf("%w: adding node %d would break the tree", ErrStructuralInvalid, node.ID)
	}
	return nil
}

func (t *WorkflowTemplate) removeNode(node *OperationNode) {
	delete(t.Nodes, node.ID)
	if node.ParentID == nil {
		return
	}
	parent, ok := t.Nodes[*node.ParentID]
	if !ok {
		return
	}
	for i, childID := range parent.ChildIDs {
		if childID == node.ID {
			parent.ChildIDs = append(parent.ChildIDs[:i], parent.ChildIDs[i+1:]...)
			break
		}
	}
}

// GetRootNodes returns every non-deleted node without a parent, sorted by id.
// These are the legal workflow entry points.
func (t *WorkflowTemplate) GetRootNodes() (roots []*OperationNode) {
	for _, node := range t.Nodes {
		if node.IsRoot() && !node.IsDeleted() {
			roots = append(roots, node)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })
	return
}

// GetFirstNodeOfType returns the root node of the given operation type, or
// nil if no root of that type exists. Used to answer "is X the first
// operation of this template".
func (t *WorkflowTemplate) GetFirstNodeOfType(operationType OperationType) *OperationNode {
	for _, root := range t.GetRootNodes() {
		if root.OperationType == operationType {
			return root
		}
	}
	return nil
}

// GetBranchingNodes returns every node with more than one non-deleted child
func (t *WorkflowTemplate) GetBranchingNodes() (branching []*OperationNode) {
	for _, node := range t.Nodes {
		if node.IsDeleted() {
			continue
		}
		if len(t.activeChildren(node)) > 1 {
			branching = append(branching, node)
		}
	}
	sort.Slice(branching, func(i, j int) bool { return branching[i].ID < branching[j].ID })
	return
}

func (t *WorkflowTemplate) activeChildren(node *OperationNode) (children []*OperationNode) {
	for _, childID := range node.ChildIDs {
		child, ok := t.Nodes[childID]
		if !ok || child.IsDeleted() {
			continue
		}
		children = append(children, child)
	}
	return
}

// IsValidTree reports whether the template is a valid forest: at least one
// root and no node whose parent chain revisits itself. The parent-chain walk
// is bounded by the arena size, so a corrupted arena cannot loop forever.
func (t *WorkflowTemplate) IsValidTree() bool {
	if len(t.GetRootNodes()) == 0 {
		return false
	}
	for _, node := range t.Nodes {
		if node.IsDeleted() {
			continue
		}
		visited := make(map[int64]bool, len(t.Nodes))
		current := node
		for steps := 0; steps <= len(t.Nodes); steps++ {
			if visited[current.ID] {
				return false
			}
			visited[current.ID] = true
			if current.ParentID == nil {
				break
			}
			parent, ok := t.Nodes[*current.ParentID]
			if !ok {
				// dangling parent reference
				return false
			}
			current = parent
		}
	}
	return true
}

// EnumerateAllPaths returns every root-to-leaf path of non-deleted nodes,
// depth-first. A single-node template yields one path of length one.
func (t *WorkflowTemplate) EnumerateAllPaths() (paths [][]*OperationNode) {
	for _, root := range t.GetRootNodes() {
		paths = append(paths, t.pathsFrom(root, nil)...)
	}
	return
}

func (t *WorkflowTemplate) pathsFrom(node *OperationNode, prefix []*OperationNode) (paths [][]*OperationNode) {
	path := make([]*OperationNode, len(prefix), len(prefix)+1)
	copy(path, prefix)
	path = append(path, node)

	children := t.activeChildren(node)
	if len(children) == 0 {
		return [][]*OperationNode{path}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	for _, child := range children {
		paths = append(paths, t.pathsFrom(child, path)...)
	}
	return
}

// ContainsPath reports whether the given operation-type sequence is a legal
// root-to-leaf path through the template. Used before deriving a custom
// template from a candidate sequence.
func (t *WorkflowTemplate) ContainsPath(sequence []OperationType) bool {
	for _, path := range t.EnumerateAllPaths() {
		if len(path) != len(sequence) {
			continue
		}
		match := true
		for i, node := range path {
			if node.OperationType != sequence[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// GetNodeTreeLevel returns the depth of a node, 0 for roots, by walking the
// parent chain. Returns -1 for an unknown node or a broken chain.
func (t *WorkflowTemplate) GetNodeTreeLevel(nodeID int64) int {
	node, ok := t.Nodes[nodeID]
	if !ok {
		return -1
	}
	level := 0
	for node.ParentID != nil {
		parent, okP := t.Nodes[*node.ParentID]
		if !okP || level > len(t.Nodes) {
			return -1
		}
		node = parent
		level++
	}
	return level
}

// SoftDeleteNode marks a node deleted without removing it from the arena.
// The caller is responsible for verifying no active item workflow still uses
// the node. Deleting is rejected if it would leave the tree without a root.
func (t *WorkflowTemplate) SoftDeleteNode(nodeID int64) error {
	node, ok := t.Nodes[nodeID]
	if !ok {
		return ErrNotFound
	}
	if node.IsDeleted() {
		return nil
	}
	now := nowFunc()
	node.DeletedAt = &now
	if !t.IsValidTree() {
		node.DeletedAt = nil
		return fmt.Errorf("%w: deleting node %d would leave the template without a root", ErrStructuralInvalid, nodeID)
	}
	return nil
}
