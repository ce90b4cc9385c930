package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/benthamhq/bentham/pkg/orchestrator"
	"github.com/benthamhq/bentham/pkg/types"
)

func (s *Server) handleCreateStudy(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	var manifest types.Manifest
	if err := json.NewDecoder(r.Body).Decode(&manifest); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(w, http.StatusRequestEntityTooLarge, types.ErrCodePayloadTooLarge, "request body exceeds the size limit")
			return
		}
		respondError(w, http.StatusBadRequest, types.ErrCodeValidation, "request body is not valid JSON")
		return
	}

	receipt, err := s.orch.CreateStudy(r.Context(), key.TenantID, &manifest)
	if err != nil {
		var verr *orchestrator.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, types.ErrCodeValidation, verr.Error())
			return
		}
		s.internalError(w, err, "Study creation failed")
		return
	}

	respondData(w, http.StatusCreated, receipt)
}

func (s *Server) handleListStudies(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	views, err := s.orch.ListStudies(r.Context(), key.TenantID)
	if err != nil {
		s.internalError(w, err, "Study listing failed")
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{"studies": views})
}

func (s *Server) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	view, err := s.orch.GetStudyStatus(r.Context(), key.TenantID, chi.URLParam(r, "studyID"))
	if err != nil {
		s.studyError(w, err, "Status lookup failed")
		return
	}
	respondData(w, http.StatusOK, view)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	view, err := s.orch.GetStudyResults(r.Context(), key.TenantID, chi.URLParam(r, "studyID"))
	if err != nil {
		s.studyError(w, err, "Results lookup failed")
		return
	}
	respondData(w, http.StatusOK, view)
}

func (s *Server) handleGetCosts(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	report, err := s.orch.GetStudyCosts(r.Context(), key.TenantID, chi.URLParam(r, "studyID"))
	if err != nil {
		s.studyError(w, err, "Cost lookup failed")
		return
	}
	respondData(w, http.StatusOK, report)
}

func (s *Server) handlePauseStudy(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	if err := s.orch.PauseStudy(r.Context(), key.TenantID, chi.URLParam(r, "studyID")); err != nil {
		s.studyError(w, err, "Pause failed")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResumeStudy(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	if err := s.orch.ResumeStudy(r.Context(), key.TenantID, chi.URLParam(r, "studyID")); err != nil {
		s.studyError(w, err, "Resume failed")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleCancelStudy(w http.ResponseWriter, r *http.Request) {
	key := keyFromContext(r.Context())

	if err := s.orch.CancelStudy(r.Context(), key.TenantID, chi.URLParam(r, "studyID")); err != nil {
		s.studyError(w, err, "Cancel failed")
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// studyError maps orchestrator failures onto the wire contract.
// Unknown and unowned studies produce byte-identical 404s.
func (s *Server) studyError(w http.ResponseWriter, err error, msg string) {
	switch {
	case orchestrator.IsNotFound(err):
		respondError(w, http.StatusNotFound, types.ErrCodeStudyNotFound, "study not found")
	case orchestrator.IsConflict(err):
		respondError(w, http.StatusConflict, types.ErrCodeConflict, "operation not allowed in the study's current state")
	default:
		s.internalError(w, err, msg)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	respondError(w, http.StatusInternalServerError, types.ErrCodeUnknown, "internal error")
}
