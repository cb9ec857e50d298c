package http

import (
	"net/http"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/service"

	"github.com/gorilla/mux"
)

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.attendance.CreateSession(r.Context(), a, service.CreateSessionInput{
		ChildID:         req.ChildID,
		TrainerID:       req.TrainerID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, session)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	q, err := parseSessionListQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	if !validateStruct(w, &q) {
		return
	}

	sessions, err := h.attendance.ListSessions(r.Context(), a, domain.SessionFilter{
		ChildIDs: q.ChildIDs,
		From:     q.From,
		To:       q.To,
		Attended: q.Attended,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	respondOK(w, http.StatusOK, sessions)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	session, err := h.attendance.GetSession(r.Context(), a, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, session)
}

func (h *Handler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req SetAttendanceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.attendance.SetAttendance(r.Context(), a, mux.Vars(r)["id"], *req.Attended, req.Notes)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, session)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.attendance.DeleteSession(r.Context(), a, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (h *Handler) GetTodaySessions(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	sessions, err := h.attendance.GetTodaySessions(r.Context(), a)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	respondOK(w, http.StatusOK, sessions)
}

func (h *Handler) GetTrainerStats(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	stats, err := h.attendance.GetTrainerStats(r.Context(), a)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, stats)
}
