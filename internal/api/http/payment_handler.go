package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"

	"github.com/gorilla/mux"
)

func (h *Handler) GetTariffs(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, h.payments.GetTariffs())
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req CreatePaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.payments.CreatePayment(r.Context(), a, req.TariffID, req.ChildID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, result)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	payments, err := h.payments.ListPayments(r.Context(), a)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	respondOK(w, http.StatusOK, payments)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	payment, err := h.payments.GetPayment(r.Context(), a, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, payment)
}

// Webhook acknowledges every delivery it could process, including ignored
// and duplicate ones. Only store failures and integrity faults are reported
// as errors, so the provider redelivers those.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, CodeValidation, "payload too large", nil)
			return
		}
		respondError(w, http.StatusBadRequest, CodeValidation, "failed to read body", nil)
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, "invalid JSON body: "+err.Error(), nil)
		return
	}
	if !validateStruct(w, &req) {
		return
	}

	outcome, err := h.payments.ApplyWebhookEvent(r.Context(), req.Type, req.Object.ID, raw)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	logger.Info("Webhook processed", "event", req.Type, "externalReference", req.Object.ID, "result", outcome.Result)
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
