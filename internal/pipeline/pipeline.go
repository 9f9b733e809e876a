// Package pipeline drives an analysis submission through its four stages:
// mirror the input files, prepare the remote workspace, start the run, and
// collect the finished results. Each stage loads fresh state, performs its
// side effects against the execution backend, and commits exactly one
// compare-and-advance transition, so concurrent drivers can race on the
// same submission and exactly one wins.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/seqflow/internal/store"
	"github.com/me/seqflow/pkg/model"
)

// Backend abstracts the remote execution service. Every call carries the
// acting user's credential.
type Backend interface {
	UploadWorkflow(ctx context.Context, cred model.Credential, wf *model.WorkflowStructure) (string, error)
	ProvisionWorkspace(ctx context.Context, cred model.Credential, sub *model.AnalysisSubmission) (string, error)
	BuildInputs(ctx context.Context, cred model.Credential, sub *model.AnalysisSubmission) (*model.PreparedInputs, error)
	Run(ctx context.Context, cred model.Credential, bundle any) error
	FetchResults(ctx context.Context, cred model.Credential, sub *model.AnalysisSubmission) (*model.Analysis, error)
}

// FileMirror produces a locally-addressable copy of a remote file.
type FileMirror interface {
	Ensure(ctx context.Context, ref *model.RemoteFileReference) (string, error)
}

// WorkflowRegistry resolves workflow identifiers to runnable definitions.
type WorkflowRegistry interface {
	Resolve(id string) (*model.WorkflowStructure, error)
}

// CredentialSource resolves the credential a stage runs under. It is
// consulted at every stage boundary, so revoking a user's credential stops
// their in-flight submissions at the next stage.
type CredentialSource interface {
	CredentialsFor(ctx context.Context, username string) (model.Credential, error)
}

// StaticCredentials is a fixed username-to-credential table.
type StaticCredentials map[string]model.Credential

func (s StaticCredentials) CredentialsFor(_ context.Context, username string) (model.Credential, error) {
	cred, ok := s[username]
	if !ok {
		return model.Credential{}, model.NewNotFoundError("credential", username)
	}
	return cred, nil
}

// retryable is satisfied by backend and mirror errors that may clear up on
// a later attempt.
type retryable interface {
	Retryable() bool
}

// Pipeline executes submission stages against durable state.
type Pipeline struct {
	store    store.SubmissionStore
	results  store.ResultStore
	mirror   FileMirror
	registry WorkflowRegistry
	backend  Backend
	creds    CredentialSource
	logger   *slog.Logger
}

// New creates a pipeline over the given collaborators.
func New(st store.SubmissionStore, results store.ResultStore, mirror FileMirror, registry WorkflowRegistry, backend Backend, creds CredentialSource, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    st,
		results:  results,
		mirror:   mirror,
		registry: registry,
		backend:  backend,
		creds:    creds,
		logger:   logger.With("component", "pipeline"),
	}
}

// loadSubmission fetches a submission, turning absence into a typed error.
func (p *Pipeline) loadSubmission(ctx context.Context, id string) (*model.AnalysisSubmission, error) {
	sub, err := p.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, model.NewNotFoundError("submission", id)
	}
	return sub, nil
}

// DownloadFiles mirrors every remote file the submission references and
// advances it from CREATED to FILES_MIRRORED.
func (p *Pipeline) DownloadFiles(ctx context.Context, id string) error {
	sub, err := p.loadSubmission(ctx, id)
	if err != nil {
		return err
	}
	if sub.State != model.SubmissionStateCreated {
		return &model.PreconditionError{
			SubmissionID: id,
			Expected:     model.SubmissionStateCreated,
			Actual:       sub.State,
			Reason:       "files already mirrored or submission diverted",
		}
	}

	logger := p.logger.With("submission", id, "stage", "mirror")
	for _, ref := range sub.AllFiles() {
		localPath, err := p.mirror.Ensure(ctx, ref)
		if err != nil {
			return p.fail(ctx, id, "mirror", fmt.Errorf("mirror %s: %w", ref.Locator, err))
		}
		if err := p.store.SetFileLocalPath(ctx, ref.ID, localPath); err != nil {
			return err
		}
	}
	logger.Info("input files mirrored", "files", len(sub.AllFiles()))

	return p.store.CompareAndAdvance(ctx, id, model.SubmissionStateCreated, model.SubmissionStateFilesMirrored, nil)
}

// Prepare resolves the submission's workflow, uploads it to the backend,
// provisions the execution workspace, and advances the submission from
// FILES_MIRRORED to PREPARED with both remote handles recorded.
func (p *Pipeline) Prepare(ctx context.Context, id string) error {
	sub, err := p.loadSubmission(ctx, id)
	if err != nil {
		return err
	}
	if sub.State != model.SubmissionStateFilesMirrored {
		return &model.PreconditionError{
			SubmissionID: id,
			Expected:     model.SubmissionStateFilesMirrored,
			Actual:       sub.State,
			Reason:       "submission not ready for preparation",
		}
	}
	if sub.RemoteWorkflowID != "" || sub.RemoteAnalysisID != "" {
		return &model.PreconditionError{
			SubmissionID: id,
			Expected:     model.SubmissionStateFilesMirrored,
			Actual:       sub.State,
			Reason:       "remote workspace already provisioned",
		}
	}

	logger := p.logger.With("submission", id, "stage", "prepare")

	wf, err := p.registry.Resolve(sub.WorkflowID)
	if err != nil {
		return p.fail(ctx, id, "prepare", fmt.Errorf("resolve workflow %s: %w", sub.WorkflowID, err))
	}
	cred, err := p.creds.CredentialsFor(ctx, sub.SubmittedBy)
	if err != nil {
		return p.fail(ctx, id, "prepare", fmt.Errorf("credentials for %s: %w", sub.SubmittedBy, err))
	}

	remoteWorkflowID, err := p.backend.UploadWorkflow(ctx, cred, wf)
	if err != nil {
		return p.fail(ctx, id, "prepare", fmt.Errorf("upload workflow: %w", err))
	}
	workspaceID, err := p.backend.ProvisionWorkspace(ctx, cred, sub)
	if err != nil {
		return p.fail(ctx, id, "prepare", fmt.Errorf("provision workspace: %w", err))
	}
	logger.Info("remote workspace prepared", "remote_workflow_id", remoteWorkflowID, "remote_analysis_id", workspaceID)

	return p.store.CompareAndAdvance(ctx, id, model.SubmissionStateFilesMirrored, model.SubmissionStatePrepared, map[string]string{
		"remote_workflow_id": remoteWorkflowID,
		"remote_analysis_id": workspaceID,
	})
}

// Execute assembles the run inputs inside the prepared workspace, starts
// the remote run, and advances the submission from PREPARED to RUNNING.
func (p *Pipeline) Execute(ctx context.Context, id string) error {
	sub, err := p.loadSubmission(ctx, id)
	if err != nil {
		return err
	}
	if sub.State != model.SubmissionStatePrepared {
		return &model.PreconditionError{
			SubmissionID: id,
			Expected:     model.SubmissionStatePrepared,
			Actual:       sub.State,
			Reason:       "submission not prepared",
		}
	}
	if sub.RemoteWorkflowID == "" || sub.RemoteAnalysisID == "" {
		return &model.PreconditionError{
			SubmissionID: id,
			Expected:     model.SubmissionStatePrepared,
			Actual:       sub.State,
			Reason:       "remote handles missing despite prepared state",
		}
	}

	logger := p.logger.With("submission", id, "stage", "execute")

	cred, err := p.creds.CredentialsFor(ctx, sub.SubmittedBy)
	if err != nil {
		return p.fail(ctx, id, "execute", fmt.Errorf("credentials for %s: %w", sub.SubmittedBy, err))
	}

	prepared, err := p.backend.BuildInputs(ctx, cred, sub)
	if err != nil {
		return p.fail(ctx, id, "execute", fmt.Errorf("build inputs: %w", err))
	}
	if err := p.backend.Run(ctx, cred, prepared.Bundle); err != nil {
		return p.fail(ctx, id, "execute", fmt.Errorf("start run: %w", err))
	}
	logger.Info("remote run started", "remote_input_data_id", prepared.InputDataID)

	return p.store.CompareAndAdvance(ctx, id, model.SubmissionStatePrepared, model.SubmissionStateRunning, map[string]string{
		"remote_input_data_id": prepared.InputDataID,
	})
}

// CollectResults fetches the finished result set of a running submission,
// persists it, and advances the submission from RUNNING to COMPLETED. A
// run still in progress returns a retryable error and leaves all state
// untouched.
func (p *Pipeline) CollectResults(ctx context.Context, id string) (*model.Analysis, error) {
	exists, err := p.store.SubmissionExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.NewNotFoundError("submission", id)
	}

	sub, err := p.loadSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.State != model.SubmissionStateRunning {
		return nil, &model.PreconditionError{
			SubmissionID: id,
			Expected:     model.SubmissionStateRunning,
			Actual:       sub.State,
			Reason:       "submission has no run in progress",
		}
	}
	if sub.RemoteAnalysisID == "" {
		return nil, &model.PreconditionError{
			SubmissionID: id,
			Expected:     model.SubmissionStateRunning,
			Actual:       sub.State,
			Reason:       "remote workspace handle missing despite running state",
		}
	}

	logger := p.logger.With("submission", id, "stage", "collect")

	cred, err := p.creds.CredentialsFor(ctx, sub.SubmittedBy)
	if err != nil {
		return nil, p.fail(ctx, id, "collect", fmt.Errorf("credentials for %s: %w", sub.SubmittedBy, err))
	}

	analysis, err := p.backend.FetchResults(ctx, cred, sub)
	if err != nil {
		return nil, p.fail(ctx, id, "collect", fmt.Errorf("fetch results: %w", err))
	}
	analysis.ID = "an_" + uuid.NewString()
	analysis.SubmissionID = id
	analysis.CreatedAt = time.Now().UTC()

	if err := p.results.SaveAnalysis(ctx, analysis); err != nil {
		return nil, err
	}
	logger.Info("results collected", "analysis", analysis.ID, "outputs", len(analysis.OutputFiles))

	if err := p.store.CompareAndAdvance(ctx, id, model.SubmissionStateRunning, model.SubmissionStateCompleted, map[string]string{
		"analysis_id": analysis.ID,
	}); err != nil {
		return nil, err
	}
	return analysis, nil
}

// fail classifies a stage error. Cancellations and transient failures
// return unchanged so the submission stays in place for another attempt;
// permanent failures divert the submission to ERROR with the cause
// recorded.
func (p *Pipeline) fail(ctx context.Context, id, stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var r retryable
	if errors.As(err, &r) && r.Retryable() {
		return err
	}
	if model.IsPrecondition(err) {
		return err
	}

	reason := fmt.Sprintf("%s: %v", stage, err)
	if merr := p.store.MarkError(ctx, id, reason); merr != nil {
		p.logger.Error("failed to record submission error", "submission", id, "cause", err, "error", merr)
	} else {
		p.logger.Warn("submission diverted to error state", "submission", id, "stage", stage, "cause", err)
	}
	return err
}
