package model

import "time"

// AnalysisSubmission is one request to run a workflow on the execution
// backend, tracked through the pipeline's states.
//
// The three Remote* IDs are backend correlation handles acquired
// progressively: RemoteWorkflowID and RemoteAnalysisID by the prepare
// stage, RemoteInputDataID by the execute stage. Once set they are
// immutable for the life of the submission. AnalysisID links the
// completed result after the collect stage.
type AnalysisSubmission struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	WorkflowID  string          `json:"workflow_id"`
	SubmittedBy string          `json:"submitted_by"`
	State       SubmissionState `json:"state"`

	RemoteWorkflowID  string `json:"remote_workflow_id,omitempty"`
	RemoteAnalysisID  string `json:"remote_analysis_id,omitempty"`
	RemoteInputDataID string `json:"remote_input_data_id,omitempty"`
	AnalysisID        string `json:"analysis_id,omitempty"`
	ErrorReason       string `json:"error_reason,omitempty"`

	SingleFiles []RemoteFileReference `json:"single_files,omitempty"`
	PairedFiles []FilePair            `json:"paired_files,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AllFiles returns every remote file reference attached to the submission,
// paired files first (forward then reverse), then single files.
func (s *AnalysisSubmission) AllFiles() []*RemoteFileReference {
	refs := make([]*RemoteFileReference, 0, 2*len(s.PairedFiles)+len(s.SingleFiles))
	for i := range s.PairedFiles {
		refs = append(refs, &s.PairedFiles[i].Forward, &s.PairedFiles[i].Reverse)
	}
	for i := range s.SingleFiles {
		refs = append(refs, &s.SingleFiles[i])
	}
	return refs
}

// RemoteFileReference is a handle to a file on a remote source that must be
// mirrored locally before use. LocalPath is empty until the mirror stage
// fetches the content; once recorded, re-mirroring the same locator is a
// cache hit rather than a re-fetch.
type RemoteFileReference struct {
	ID        string            `json:"id"`
	Locator   string            `json:"locator"`
	LocalPath string            `json:"local_path,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FilePair is a forward/reverse pair of remote file references, e.g. the
// two read files of a paired-end sequencing run.
type FilePair struct {
	ID      string              `json:"id"`
	Forward RemoteFileReference `json:"forward"`
	Reverse RemoteFileReference `json:"reverse"`
}

// Analysis is the persisted result set of a completed submission. It is
// produced once per submission and exclusively owned by it afterwards.
type Analysis struct {
	ID           string       `json:"id"`
	SubmissionID string       `json:"submission_id"`
	Type         string       `json:"type"`
	OutputFiles  []OutputFile `json:"output_files"`
	CreatedAt    time.Time    `json:"created_at"`
}

// OutputFile is a single named output retrieved from the execution backend.
type OutputFile struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	RemoteID string `json:"remote_id,omitempty"`
}

// Credential identifies the acting user to the execution backend. Stage
// operations run under the submitting user's credential rather than an
// ambient service identity.
type Credential struct {
	Username string
	APIKey   string
}

// PreparedInputs is the backend-specific run payload built by the execute
// stage. Bundle is opaque to the pipeline; InputDataID is the backend's
// handle for the uploaded input library.
type PreparedInputs struct {
	Bundle      any
	InputDataID string
}

// WorkflowStructure is an immutable, runnable workflow definition resolved
// from the registry. Definition holds the backend-format workflow document;
// its contents are opaque to the pipeline.
type WorkflowStructure struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Version    string          `json:"version" yaml:"version"`
	Inputs     []WorkflowInput `json:"inputs" yaml:"inputs"`
	Definition []byte          `json:"-" yaml:"-"`
}

// WorkflowInput declares a named input slot of a workflow.
type WorkflowInput struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}
