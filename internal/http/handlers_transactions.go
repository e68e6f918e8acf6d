package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"sitefin/internal/core"
	applog "sitefin/internal/log"
)

type transactionResult struct {
	Transaction transactionResponse `json:"transaction"`
	Summary     summaryResponse     `json:"summary"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	t, err := req.toCore()
	if err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}

	stored, summary, err := s.ledger.CreateTransaction(r.Context(), t)
	if err != nil {
		respondError(w, r, applog.OpCreate, err)
		return
	}
	writeSuccess(w, http.StatusCreated, transactionResult{
		Transaction: toTransactionResponse(stored),
		Summary:     toSummaryResponse(summary),
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, applog.OpRead, err)
		return
	}
	writeSuccess(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	t, summary, err := s.ledger.SetTransactionStatus(r.Context(), chi.URLParam(r, "id"), core.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		respondError(w, r, applog.OpUpdate, err)
		return
	}
	writeSuccess(w, http.StatusOK, transactionResult{
		Transaction: toTransactionResponse(t),
		Summary:     toSummaryResponse(summary),
	})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.DeleteTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, applog.OpDelete, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSummaryResponse(summary))
}
