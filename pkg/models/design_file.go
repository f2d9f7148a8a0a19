package models

import (
	"time"

	"github.com/google/uuid"
)

// DesignFile is one uploaded UI screenshot belonging to an epic.
//
// Files form a two-level tree: a file either has no parent (a main
// screen) or its parent is itself parentless (a sub-screen). Reordering
// and reparenting must preserve max depth 2; the repository enforces it
// inside the batch-rewrite transaction.
type DesignFile struct {
	ID       uuid.UUID `json:"id"`
	EpicID   uuid.UUID `json:"epic_id"`
	ParentID uuid.UUID `json:"parent_id,omitempty"` // uuid.Nil for main screens

	ObjectKey   string `json:"object_key"`
	Filename    string `json:"filename"`
	Description string `json:"description,omitempty"`

	// ScreenDoc is the generated per-screen documentation. Regeneration
	// replaces it and bumps ScreenDocRegenCount.
	ScreenDoc           string `json:"screen_doc,omitempty"`
	ScreenDocRegenCount int    `json:"screen_doc_regen_count"`

	// OrderIndex orders a file among its siblings; unique per
	// (epic, parent) group.
	OrderIndex int `json:"order_index"`

	// TranscriptionFragment is the slice of backend-logic narration the
	// redistribution step assigned to this screen.
	TranscriptionFragment string `json:"transcription_fragment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMain returns true if the file is a root-level (main) screen.
func (f *DesignFile) IsMain() bool {
	return f.ParentID == uuid.Nil
}

// FileRewrite is one row of an atomic batch rewrite produced by the
// describe-and-arrange stage or a manual drag-and-drop reorder.
// All rewrites in a batch are applied in a single transaction, so a
// concurrent reader observes either the old or the new arrangement.
type FileRewrite struct {
	FileID      uuid.UUID
	Filename    string
	Description string
	ParentID    uuid.UUID // uuid.Nil clears the parent
	OrderIndex  int
}

// ValidateTreeDepth checks that applying the rewrites to the given files
// keeps the tree at max depth 2. files must contain every file of the
// epic keyed by ID.
func ValidateTreeDepth(files map[uuid.UUID]*DesignFile, rewrites []FileRewrite) bool {
	// Apply proposed parents on top of current ones.
	parent := make(map[uuid.UUID]uuid.UUID, len(files))
	for id, f := range files {
		parent[id] = f.ParentID
	}
	for _, rw := range rewrites {
		if _, ok := files[rw.FileID]; !ok {
			return false
		}
		parent[rw.FileID] = rw.ParentID
	}

	for id, p := range parent {
		if p == uuid.Nil {
			continue
		}
		if p == id {
			return false
		}
		grand, ok := parent[p]
		if !ok {
			return false // parent must belong to the same epic
		}
		if grand != uuid.Nil {
			return false // parent already has a parent: depth would exceed 2
		}
	}
	return true
}
