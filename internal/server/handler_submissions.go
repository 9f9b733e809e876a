package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/seqflow/pkg/model"
)

type fileRefRequest struct {
	Locator  string            `json:"locator"`
	Metadata map[string]string `json:"metadata"`
}

type filePairRequest struct {
	Forward fileRefRequest `json:"forward"`
	Reverse fileRefRequest `json:"reverse"`
}

type createSubmissionRequest struct {
	Name        string            `json:"name"`
	WorkflowID  string            `json:"workflow_id"`
	SubmittedBy string            `json:"submitted_by"`
	SingleFiles []fileRefRequest  `json:"single_files"`
	PairedFiles []filePairRequest `json:"paired_files"`
}

func (r *createSubmissionRequest) validate() []model.FieldError {
	var errs []model.FieldError
	if r.WorkflowID == "" {
		errs = append(errs, model.FieldError{Field: "workflow_id", Message: "workflow_id is required"})
	}
	if r.SubmittedBy == "" {
		errs = append(errs, model.FieldError{Field: "submitted_by", Message: "submitted_by is required"})
	}
	if len(r.SingleFiles) == 0 && len(r.PairedFiles) == 0 {
		errs = append(errs, model.FieldError{Field: "single_files", Message: "at least one input file is required"})
	}
	for _, f := range r.SingleFiles {
		if f.Locator == "" {
			errs = append(errs, model.FieldError{Field: "single_files", Message: "file locator must not be empty"})
		}
	}
	for _, p := range r.PairedFiles {
		if p.Forward.Locator == "" || p.Reverse.Locator == "" {
			errs = append(errs, model.FieldError{Field: "paired_files", Message: "both pair locators must be set"})
		}
	}
	return errs
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req createSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid submission", errs...))
		return
	}

	// Reject unknown workflows at intake rather than letting the pipeline
	// divert the submission later.
	wf, err := s.registry.Resolve(req.WorkflowID)
	if err != nil {
		if model.IsNotFound(err) {
			respondNotFound(w, reqID, "workflow", req.WorkflowID)
			return
		}
		respondInternal(w, reqID, err)
		return
	}

	now := time.Now().UTC()
	sub := &model.AnalysisSubmission{
		ID:          "sub_" + uuid.New().String(),
		Name:        req.Name,
		WorkflowID:  wf.ID,
		SubmittedBy: req.SubmittedBy,
		State:       model.SubmissionStateCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, f := range req.SingleFiles {
		sub.SingleFiles = append(sub.SingleFiles, model.RemoteFileReference{
			ID:       "file_" + uuid.New().String(),
			Locator:  f.Locator,
			Metadata: f.Metadata,
		})
	}
	for _, p := range req.PairedFiles {
		sub.PairedFiles = append(sub.PairedFiles, model.FilePair{
			ID: "pair_" + uuid.New().String(),
			Forward: model.RemoteFileReference{
				ID:       "file_" + uuid.New().String(),
				Locator:  p.Forward.Locator,
				Metadata: p.Forward.Metadata,
			},
			Reverse: model.RemoteFileReference{
				ID:       "file_" + uuid.New().String(),
				Locator:  p.Reverse.Locator,
				Metadata: p.Reverse.Metadata,
			},
		})
	}

	if err := s.store.CreateSubmission(r.Context(), sub); err != nil {
		respondInternal(w, reqID, err)
		return
	}

	s.logger.Info("submission created", "id", sub.ID, "workflow_id", wf.ID,
		"files", len(sub.AllFiles()), "submitted_by", sub.SubmittedBy)
	respondCreated(w, reqID, sub)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	if state := r.URL.Query().Get("state"); state != "" {
		opts.State = state
	}

	subs, total, err := s.store.ListSubmissions(r.Context(), opts)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}

	respondList(w, reqID, subs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sub, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if sub == nil {
		respondNotFound(w, reqID, "submission", id)
		return
	}
	respondOK(w, reqID, sub)
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteSubmission(r.Context(), id); err != nil {
		if model.IsNotFound(err) {
			respondNotFound(w, reqID, "submission", id)
			return
		}
		respondInternal(w, reqID, err)
		return
	}

	s.logger.Info("submission deleted", "id", id)
	respondOK(w, reqID, map[string]any{"id": id, "deleted": true})
}

func (s *Server) handleGetSubmissionResult(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sub, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if sub == nil {
		respondNotFound(w, reqID, "submission", id)
		return
	}
	if sub.State != model.SubmissionStateCompleted || sub.AnalysisID == "" {
		respondError(w, reqID, http.StatusConflict, &model.APIError{
			Code:    model.ErrConflict,
			Message: "submission " + id + " has no result yet (state " + string(sub.State) + ")",
		})
		return
	}

	analysis, err := s.results.GetAnalysis(r.Context(), sub.AnalysisID)
	if err != nil {
		respondInternal(w, reqID, err)
		return
	}
	if analysis == nil {
		respondNotFound(w, reqID, "analysis", sub.AnalysisID)
		return
	}
	respondOK(w, reqID, analysis)
}
