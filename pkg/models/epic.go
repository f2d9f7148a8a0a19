package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Pipeline Stage
// ============================================================================

// Stage is one named step of the fixed generation pipeline.
// State machine (forward-only, no skips):
//
//	draft → upload_completed → ai_analysis_completed →
//	backend_logics_completed → app_flow_generated → screen_docs_generated
//
// Regenerating an artifact within a stage never moves Stage; it only
// increments that artifact's regeneration counter.
type Stage string

const (
	StageDraft                  Stage = "draft"
	StageUploadCompleted        Stage = "upload_completed"
	StageAiAnalysisCompleted    Stage = "ai_analysis_completed"
	StageBackendLogicsCompleted Stage = "backend_logics_completed"
	StageAppFlowGenerated       Stage = "app_flow_generated"
	StageScreenDocsGenerated    Stage = "screen_docs_generated"
)

// stageOrder is the single authoritative ordering of pipeline stages.
// Both the transition guard and the progress comparison derive from it;
// nothing else in the codebase switch-cases on Stage values.
var stageOrder = []Stage{
	StageDraft,
	StageUploadCompleted,
	StageAiAnalysisCompleted,
	StageBackendLogicsCompleted,
	StageAppFlowGenerated,
	StageScreenDocsGenerated,
}

// ValidStages contains all valid stage values in pipeline order.
func ValidStages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// IsValidStage checks if the given stage is valid.
func IsValidStage(s Stage) bool {
	return s.index() >= 0
}

func (s Stage) index() int {
	for i, v := range stageOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s, or s itself if s is terminal.
func (s Stage) Next() Stage {
	i := s.index()
	if i < 0 || i == len(stageOrder)-1 {
		return s
	}
	return stageOrder[i+1]
}

// IsTerminal returns true if the stage is the last pipeline stage.
func (s Stage) IsTerminal() bool {
	return s == StageScreenDocsGenerated
}

// CanTransitionTo returns true if moving from s to target is a single
// forward step. The pipeline never moves backward and never skips.
func (s Stage) CanTransitionTo(target Stage) bool {
	i, j := s.index(), target.index()
	return i >= 0 && j >= 0 && j == i+1
}

// AtLeast returns true if s is at or past the given stage.
func (s Stage) AtLeast(other Stage) bool {
	i, j := s.index(), other.index()
	return i >= 0 && j >= 0 && i >= j
}

// ============================================================================
// Epic
// ============================================================================

// Epic is the unit of work flowing through all pipeline stages.
type Epic struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Speciality  string    `json:"speciality"` // free-text rationale for why this feature exists
	Stage       Stage     `json:"stage"`

	// BackendLogicTranscription accumulates narration text across audio
	// uploads and free-text submissions, newline-joined.
	BackendLogicTranscription string `json:"backend_logic_transcription,omitempty"`

	// BackendLogicAudioKey is the object key of the narration audio.
	// The key is deterministic per epic, so re-uploads overwrite in place
	// and the stored value never changes between uploads.
	BackendLogicAudioKey string `json:"backend_logic_audio_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
