package models

import (
	"time"

	"github.com/google/uuid"
)

// NotionIntegration associates a project with a Notion workspace OAuth
// token. Exactly one record exists per project; re-authentication
// replaces the token in place.
type NotionIntegration struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	AccessToken   string    `json:"-"` // never serialized
	WorkspaceID   string    `json:"workspace_id"`
	WorkspaceName string    `json:"workspace_name"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NotionDatabaseKind marks what a mapped Notion database is used for.
// Each mapping is epic-type XOR task-type.
type NotionDatabaseKind string

const (
	NotionDatabaseEpic NotionDatabaseKind = "epic"
	NotionDatabaseTask NotionDatabaseKind = "task"
)

// NotionDatabaseMapping links the integration to one external database.
// Mappings are replaced wholesale when the user reselects databases.
// RelationPropertyID is the discovered relation property on the task
// database that points back at the epic database.
type NotionDatabaseMapping struct {
	ID                 uuid.UUID          `json:"id"`
	ProjectID          uuid.UUID          `json:"project_id"`
	Kind               NotionDatabaseKind `json:"kind"`
	DatabaseID         string             `json:"database_id"`
	DatabaseName       string             `json:"database_name"`
	RelationPropertyID string             `json:"relation_property_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}
