package model

import "testing"

func TestSubmissionStateIsTerminal(t *testing.T) {
	terminal := []SubmissionState{SubmissionStateCompleted, SubmissionStateError}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []SubmissionState{
		SubmissionStateCreated,
		SubmissionStateFilesMirrored,
		SubmissionStatePrepared,
		SubmissionStateRunning,
	}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestSubmissionStateTransitions(t *testing.T) {
	tests := []struct {
		from, to SubmissionState
		want     bool
	}{
		{SubmissionStateCreated, SubmissionStateFilesMirrored, true},
		{SubmissionStateFilesMirrored, SubmissionStatePrepared, true},
		{SubmissionStatePrepared, SubmissionStateRunning, true},
		{SubmissionStateRunning, SubmissionStateCompleted, true},
		{SubmissionStateCreated, SubmissionStateError, true},
		{SubmissionStateRunning, SubmissionStateError, true},

		// No skipping states.
		{SubmissionStateCreated, SubmissionStatePrepared, false},
		{SubmissionStateFilesMirrored, SubmissionStateRunning, false},
		{SubmissionStateCreated, SubmissionStateCompleted, false},

		// No regression.
		{SubmissionStateRunning, SubmissionStatePrepared, false},
		{SubmissionStatePrepared, SubmissionStateCreated, false},

		// Terminal states go nowhere.
		{SubmissionStateCompleted, SubmissionStateError, false},
		{SubmissionStateError, SubmissionStateCreated, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNextStage(t *testing.T) {
	tests := []struct {
		state SubmissionState
		want  SubmissionState
	}{
		{SubmissionStateCreated, SubmissionStateFilesMirrored},
		{SubmissionStateFilesMirrored, SubmissionStatePrepared},
		{SubmissionStatePrepared, SubmissionStateRunning},
		{SubmissionStateRunning, SubmissionStateCompleted},
		{SubmissionStateCompleted, ""},
		{SubmissionStateError, ""},
	}
	for _, tt := range tests {
		if got := tt.state.NextStage(); got != tt.want {
			t.Errorf("NextStage(%s) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestAllFilesOrder(t *testing.T) {
	sub := &AnalysisSubmission{
		PairedFiles: []FilePair{
			{
				Forward: RemoteFileReference{ID: "f1", Locator: "https://src/r1_1.fastq"},
				Reverse: RemoteFileReference{ID: "r1", Locator: "https://src/r1_2.fastq"},
			},
		},
		SingleFiles: []RemoteFileReference{
			{ID: "s1", Locator: "https://src/single.fastq"},
		},
	}

	refs := sub.AllFiles()
	if len(refs) != 3 {
		t.Fatalf("got %d refs, want 3", len(refs))
	}
	wantIDs := []string{"f1", "r1", "s1"}
	for i, want := range wantIDs {
		if refs[i].ID != want {
			t.Errorf("refs[%d].ID = %q, want %q", i, refs[i].ID, want)
		}
	}

	// Mutating through the returned pointers must reach the submission.
	refs[0].LocalPath = "/cache/r1_1.fastq"
	if sub.PairedFiles[0].Forward.LocalPath != "/cache/r1_1.fastq" {
		t.Error("AllFiles should return pointers into the submission")
	}
}
