package models

import "testing"

func TestStageTransitions(t *testing.T) {
	stages := ValidStages()

	for i, from := range stages {
		for j, to := range stages {
			got := from.CanTransitionTo(to)
			want := j == i+1
			if got != want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStageNext(t *testing.T) {
	if next := StageDraft.Next(); next != StageUploadCompleted {
		t.Errorf("Next(draft) = %s", next)
	}
	// The terminal stage has no successor.
	if next := StageScreenDocsGenerated.Next(); next != StageScreenDocsGenerated {
		t.Errorf("Next(terminal) = %s", next)
	}
}

func TestStageAtLeast(t *testing.T) {
	if !StageAppFlowGenerated.AtLeast(StageUploadCompleted) {
		t.Error("later stage should satisfy AtLeast(earlier)")
	}
	if !StageDraft.AtLeast(StageDraft) {
		t.Error("a stage should satisfy AtLeast of itself")
	}
	if StageDraft.AtLeast(StageUploadCompleted) {
		t.Error("draft must not satisfy AtLeast(upload_completed)")
	}
}

func TestIsValidStage(t *testing.T) {
	if !IsValidStage(StageBackendLogicsCompleted) {
		t.Error("known stage reported invalid")
	}
	if IsValidStage(Stage("published")) {
		t.Error("unknown stage reported valid")
	}
}
