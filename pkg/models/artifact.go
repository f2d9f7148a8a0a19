package models

import (
	"time"

	"github.com/google/uuid"
)

// Artifact sub-scope constants. The app-flow document uses the empty
// sub-scope; advanced tools use their tool identifier.
const (
	SubScopeAppFlow = ""
)

// Builtin tool identifiers.
const (
	ToolUserStories = "user-stories"
	ToolTestPlan    = "test-plan"
)

// Artifact is a piece of generated text tied to exactly one epic and at
// most one sub-scope. At most one row exists per (epic, sub_scope) pair;
// creation is an upsert and regeneration increments RegenerateCount
// instead of creating a duplicate row.
type Artifact struct {
	ID              uuid.UUID `json:"id"`
	EpicID          uuid.UUID `json:"epic_id"`
	SubScope        string    `json:"sub_scope"`
	Content         string    `json:"content"`
	RegenerateCount int       `json:"regenerate_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AdvancedTool is a named generation template. Placeholders of the form
// {{epicName}}, {{epicDescription}}, {{app-flow}} and {{screen-docs}} are
// substituted before the prompt is sent to the text backend.
type AdvancedTool struct {
	ID       string
	Name     string
	Template string
}

// BuiltinTools are the advanced tools available to every project.
var BuiltinTools = []AdvancedTool{
	{
		ID:   ToolUserStories,
		Name: "User Stories",
		Template: "You are a senior product manager. Using the feature name " +
			"{{epicName}}, its description {{epicDescription}}, the app flow " +
			"document below and the per-screen documentation, write user " +
			"stories in the form \"As a <role>, I want <goal>, so that " +
			"<benefit>\", each with acceptance criteria.\n\n" +
			"App flow:\n{{app-flow}}\n\nScreen docs:\n{{screen-docs}}\n",
	},
	{
		ID:   ToolTestPlan,
		Name: "Test Plan",
		Template: "Write a QA test plan for the feature {{epicName}} " +
			"({{epicDescription}}). Cover every screen and flow described " +
			"below with concrete test cases.\n\n" +
			"App flow:\n{{app-flow}}\n\nScreen docs:\n{{screen-docs}}\n",
	},
}

// FindTool looks up a builtin tool by identifier.
func FindTool(id string) (AdvancedTool, bool) {
	for _, t := range BuiltinTools {
		if t.ID == id {
			return t, true
		}
	}
	return AdvancedTool{}, false
}
