package server

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/me/seqflow/pkg/model"
)

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	ids := s.registry.IDs()
	sort.Strings(ids)

	workflows := make([]*model.WorkflowStructure, 0, len(ids))
	for _, id := range ids {
		wf, err := s.registry.Resolve(id)
		if err != nil {
			continue
		}
		workflows = append(workflows, wf)
	}
	respondOK(w, reqID, workflows)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	wf, err := s.registry.Resolve(id)
	if err != nil {
		if model.IsNotFound(err) {
			respondNotFound(w, reqID, "workflow", id)
			return
		}
		respondInternal(w, reqID, err)
		return
	}
	respondOK(w, reqID, wf)
}
