package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	applog "sitefin/internal/log"
)

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	site, err := s.ledger.CreateSite(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.SupervisorID))
	if err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toSiteResponse(site))
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.ledger.ListSites(r.Context())
	if err != nil {
		respondError(w, r, applog.OpList, err)
		return
	}
	out := make([]siteResponse, 0, len(sites))
	for _, site := range sites {
		out = append(out, toSiteResponse(site))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.ledger.GetSite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		respondError(w, r, applog.OpRead, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSiteResponse(site))
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	var req updateSiteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if req.Completed == nil {
		writeError(w, http.StatusBadRequest, CodeValidation, "completed: required")
		return
	}

	site, err := s.ledger.SetSiteCompleted(r.Context(), chi.URLParam(r, "siteID"), *req.Completed)
	if err != nil {
		respondError(w, r, applog.OpUpdate, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSiteResponse(site))
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteSite(r.Context(), chi.URLParam(r, "siteID")); err != nil {
		respondError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.GetSummary(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		respondError(w, r, applog.OpRead, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSummaryResponse(summary))
}

func (s *Server) handleRecomputeSite(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.RecomputeSite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		respondError(w, r, applog.OpRecompute, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSummaryResponse(summary))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.ListTransactions(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		respondError(w, r, applog.OpList, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeSuccess(w, http.StatusOK, out)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.ledger.ListTransfers(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		respondError(w, r, applog.OpList, err)
		return
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferResponse(t))
	}
	writeSuccess(w, http.StatusOK, out)
}
