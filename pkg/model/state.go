package model

// SubmissionState represents the lifecycle state of an AnalysisSubmission.
//
// States advance in a fixed forward order; a submission never moves
// backwards and never skips a state. ERROR may be entered from any
// non-terminal state.
type SubmissionState string

const (
	SubmissionStateCreated       SubmissionState = "CREATED"
	SubmissionStateFilesMirrored SubmissionState = "FILES_MIRRORED"
	SubmissionStatePrepared      SubmissionState = "PREPARED"
	SubmissionStateRunning       SubmissionState = "RUNNING"
	SubmissionStateCompleted     SubmissionState = "COMPLETED"
	SubmissionStateError         SubmissionState = "ERROR"
)

// String returns the string representation of the submission state.
func (s SubmissionState) String() string {
	return string(s)
}

// IsTerminal returns true if the submission is in a final state.
func (s SubmissionState) IsTerminal() bool {
	switch s {
	case SubmissionStateCompleted, SubmissionStateError:
		return true
	}
	return false
}

// ValidSubmissionTransitions defines the allowed state transitions for
// AnalysisSubmissions. Every non-terminal state may also move to ERROR.
var ValidSubmissionTransitions = map[SubmissionState][]SubmissionState{
	SubmissionStateCreated:       {SubmissionStateFilesMirrored, SubmissionStateError},
	SubmissionStateFilesMirrored: {SubmissionStatePrepared, SubmissionStateError},
	SubmissionStatePrepared:      {SubmissionStateRunning, SubmissionStateError},
	SubmissionStateRunning:       {SubmissionStateCompleted, SubmissionStateError},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s SubmissionState) CanTransitionTo(next SubmissionState) bool {
	for _, allowed := range ValidSubmissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextStage returns the state a submission in this state advances to on a
// successful pipeline stage, or "" if no stage applies.
func (s SubmissionState) NextStage() SubmissionState {
	switch s {
	case SubmissionStateCreated:
		return SubmissionStateFilesMirrored
	case SubmissionStateFilesMirrored:
		return SubmissionStatePrepared
	case SubmissionStatePrepared:
		return SubmissionStateRunning
	case SubmissionStateRunning:
		return SubmissionStateCompleted
	}
	return ""
}
