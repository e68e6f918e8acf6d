package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	applog "sitefin/internal/log"
)

type transferResult struct {
	Transfer  transferResponse  `json:"transfer"`
	Summaries []summaryResponse `json:"summaries"`
}

func (s *Server) handlePostTransfer(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	t, err := req.toCore()
	if err != nil {
		respondError(w, r, applog.OpTransfer, err)
		return
	}

	stored, summaries, err := s.ledger.PostTransfer(r.Context(), t)
	if err != nil {
		respondError(w, r, applog.OpTransfer, err)
		return
	}
	writeSuccess(w, http.StatusCreated, transferResult{
		Transfer:  toTransferResponse(stored),
		Summaries: toSummaryResponses(summaries),
	})
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.GetTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, applog.OpRead, err)
		return
	}
	writeSuccess(w, http.StatusOK, toTransferResponse(t))
}

func (s *Server) handleDeleteTransfer(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.ledger.DeleteTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, applog.OpDelete, err)
		return
	}
	writeSuccess(w, http.StatusOK, toSummaryResponses(summaries))
}
