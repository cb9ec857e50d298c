package http

import (
	"net/http"

	"clubledger-backend/internal/domain"

	"github.com/gorilla/mux"
)

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	pq, ok := pageQuery(w, r)
	if !ok {
		return
	}

	notes, total, err := h.notifications.GetNotifications(r.Context(), a.UserID, pq.Page, pq.PageSize)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	respondOK(w, http.StatusOK, page{Items: notes, Total: total, Page: max(pq.Page, 1), PageSize: pageSizeOrDefault(pq.PageSize)})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.notifications.MarkAsRead(r.Context(), a.UserID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"id": id, "is_read": true})
}
