package http

import (
	"context"
	"net/http"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/security"
	"clubledger-backend/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type Services struct {
	Attendance    service.AttendanceService
	Payments      service.PaymentService
	Ledger        service.LedgerService
	Notifications service.NotificationService
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Tokens         security.TokenManager
	Store          Pinger
	WebhookLimiter *rate.Limiter
}

type Handler struct {
	attendance    service.AttendanceService
	payments      service.PaymentService
	ledger        service.LedgerService
	notifications service.NotificationService
	store         Pinger
}

func NewHandler(svcs Services, store Pinger) *Handler {
	return &Handler{
		attendance:    svcs.Attendance,
		payments:      svcs.Payments,
		ledger:        svcs.Ledger,
		notifications: svcs.Notifications,
		store:         store,
	}
}

// NewRouter registers every route. Literal segments are registered before
// their {id} siblings because mux matches in registration order.
func NewRouter(svcs Services, cfg RouterConfig) *mux.Router {
	h := NewHandler(svcs, cfg.Store)
	limiter := cfg.WebhookLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	router := mux.NewRouter()
	router.Use(LoggingMiddleware)
	router.Use(NewAuthMiddleware(cfg.Tokens).Handler)

	router.HandleFunc("/api/v1/health", h.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/stats", h.GetTrainerStats).Methods(http.MethodGet)
	api.HandleFunc("/sessions/today", h.GetTodaySessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/attendance", h.SetAttendance).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)

	api.HandleFunc("/payments/tariffs", h.GetTariffs).Methods(http.MethodGet)
	api.HandleFunc("/payments/webhook", RateLimit(limiter, h.Webhook)).Methods(http.MethodPost)
	api.HandleFunc("/payments", h.CreatePayment).Methods(http.MethodPost)
	api.HandleFunc("/payments", h.ListPayments).Methods(http.MethodGet)
	api.HandleFunc("/payments/{id}", h.GetPayment).Methods(http.MethodGet)

	api.HandleFunc("/children/{id}/balance", h.GetBalance).Methods(http.MethodGet)
	api.HandleFunc("/children/{id}/transactions", h.GetTransactions).Methods(http.MethodGet)
	api.HandleFunc("/children/{id}/ledger-summary", h.GetLedgerSummary).Methods(http.MethodGet)

	api.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods(http.MethodPost)

	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "database unavailable", nil)
			return
		}
	}
	respondOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor returns the authenticated caller, answering 401 when there is none.
func actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	a, ok := ActorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, CodeUnauthorized, "not authenticated", nil)
	}
	return a, ok
}
