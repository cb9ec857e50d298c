package http

import (
	"net/http"

	"clubledger-backend/internal/domain"

	"github.com/gorilla/mux"
)

type balanceResponse struct {
	ChildID string `json:"child_id"`
	Balance int    `json:"balance"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	childID := mux.Vars(r)["id"]
	balance, err := h.ledger.GetBalance(r.Context(), a, childID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, balanceResponse{ChildID: childID, Balance: balance})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	pq, ok := pageQuery(w, r)
	if !ok {
		return
	}

	txs, total, err := h.ledger.GetTransactions(r.Context(), a, mux.Vars(r)["id"], pq.Page, pq.PageSize)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []domain.LedgerTransaction{}
	}
	respondOK(w, http.StatusOK, page{Items: txs, Total: total, Page: max(pq.Page, 1), PageSize: pageSizeOrDefault(pq.PageSize)})
}

func (h *Handler) GetLedgerSummary(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	summary, err := h.ledger.GetLedgerSummary(r.Context(), a, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, summary)
}

func pageQuery(w http.ResponseWriter, r *http.Request) (PageQuery, bool) {
	pq, err := parsePageQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return pq, false
	}
	return pq, validateStruct(w, &pq)
}

func pageSizeOrDefault(size int32) int32 {
	if size <= 0 {
		return 20
	}
	return size
}
