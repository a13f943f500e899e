package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ppiankov/substantiate/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Links

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" {
		respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	link, created, err := s.engine.LinkClaimToDocument(r.Context(), chi.URLParam(r, "claimID"), req.DocumentID)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]interface{}{"link": link, "created": created})
}

func (s *Server) handleDeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unlink(r.Context(), chi.URLParam(r, "linkID")); err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLinkClaim(w http.ResponseWriter, r *http.Request) {
	decision, err := s.engine.LinkClaim(r.Context(), chi.URLParam(r, "claimID"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

// Audit

func (s *Server) handleAuditClaim(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.engine.AuditExistingLinks(r.Context(), chi.URLParam(r, "claimID"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// Project batches

func (s *Server) handleRelinkProject(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RelinkProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleAuditProject(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.AuditProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleAutoFind(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.AutoFindReferences(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Literature

func (s *Server) handleLiteratureSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClaimText string `json:"claim_text"`
		Context   string `json:"context"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	candidates, err := s.engine.FindLiteratureCandidates(r.Context(), req.ClaimText, req.Context)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []model.LiteratureCandidate{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"candidates": candidates})
}

func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	link, err := s.engine.AcceptSuggestion(r.Context(), chi.URLParam(r, "claimID"), chi.URLParam(r, "documentID"))
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"link": link})
}

func (s *Server) handleRejectSuggestion(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RejectSuggestion(r.Context(), chi.URLParam(r, "documentID")); err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Compliance

func (s *Server) handleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Claims []model.ClaimText `json:"claims"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i, c := range req.Claims {
		if strings.TrimSpace(c.ID) == "" {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("claims[%d].id is required", i))
			return
		}
	}

	report := s.engine.RunComplianceCheck(r.Context(), req.Claims)
	if report.Results == nil {
		report.Results = []model.ComplianceResult{}
	}
	respondJSON(w, http.StatusOK, report)
}
