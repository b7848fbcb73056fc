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

// TemplateNodeSpec is one node of a template being authored. ID and ParentID
// are provisional, local to the request; the database assigns the real ids.
type TemplateNodeSpec struct {
	ParentID      *int64 `json:"parentId"`
	OperationType string `json:"operationType" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	ID            int64  `json:"id" binding:"required"`
	IsOptional    bool   `json:"isOptional"`
	IsParallel    bool   `json:"isParallel"`
}

type CreateTemplateRequest struct {
	Name      string             `json:"name" binding:"required"`
	Nodes     []TemplateNodeSpec `json:"nodes" binding:"required"`
	IsDefault bool               `json:"isDefault"`
	IsActive  bool               `json:"isActive"`
}

type TemplateNodeResponse struct {
	ParentID      *int64  `json:"parentId"`
	OperationType string  `json:"operationType"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	ChildIDs      []int64 `json:"childIds"`
	ID            int64   `json:"id"`
	IsOptional    bool    `json:"isOptional"`
	IsParallel    bool    `json:"isParallel"`
	IsDeleted     bool    `json:"isDeleted"`
}

type TemplateResponse struct {
	Name      string                 `json:"name"`
	Customer  string                 `json:"customer"`
	Nodes     []TemplateNodeResponse `json:"nodes"`
	Paths     [][]string             `json:"paths"`
	ID        int64                  `json:"id"`
	IsDefault bool                   `json:"isDefault"`
	IsActive  bool                   `json:"isActive"`
	IsValid   bool                   `json:"isValid"`
}
