package store

import (
	"context"

	"github.com/me/seqflow/pkg/model"
)

// SubmissionStore defines durable, transactional state for analysis
// submissions. Every pipeline stage reads through it and commits its state
// transition through CompareAndAdvance.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error
	GetSubmission(ctx context.Context, id string) (*model.AnalysisSubmission, error)
	SubmissionExists(ctx context.Context, id string) (bool, error)
	ListSubmissions(ctx context.Context, opts model.ListOptions) ([]*model.AnalysisSubmission, int, error)
	ListSubmissionsByState(ctx context.Context, state model.SubmissionState) ([]*model.AnalysisSubmission, error)
	DeleteSubmission(ctx context.Context, id string) error

	// CompareAndAdvance atomically moves a submission from expected to next
	// and applies the stage's bookkeeping updates in the same write. If the
	// submission is not in expected, it returns *model.PreconditionError and
	// changes nothing; if the submission does not exist it returns
	// *model.NotFoundError.
	CompareAndAdvance(ctx context.Context, id string, expected, next model.SubmissionState, updates map[string]string) error

	// MarkError records an unrecoverable stage failure, moving the
	// submission to ERROR from any non-terminal state.
	MarkError(ctx context.Context, id string, reason string) error

	// SetFileLocalPath records the mirrored local path for a file reference.
	SetFileLocalPath(ctx context.Context, refID string, localPath string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// ResultStore persists finished analysis result sets.
type ResultStore interface {
	SaveAnalysis(ctx context.Context, analysis *model.Analysis) error
	GetAnalysis(ctx context.Context, id string) (*model.Analysis, error)
}
