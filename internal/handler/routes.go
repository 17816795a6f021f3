package handler

import (
	"net/http"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/middleware"
	"github.com/gorilla/mux"
)

// Router wires every endpoint. Webhooks are unauthenticated because the gateway cannot carry a token.
func (h *Handler) Router(cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	hooks := r.PathPrefix("/webhooks/mpesa").Subrouter()
	hooks.HandleFunc("/stk", h.STKCallback).Methods(http.MethodPost)
	hooks.HandleFunc("/c2b/validation", h.C2BValidation).Methods(http.MethodPost)
	hooks.HandleFunc("/c2b/confirmation", h.C2BConfirmation).Methods(http.MethodPost)
	hooks.HandleFunc("/b2c/result", h.B2CResult).Methods(http.MethodPost)
	hooks.HandleFunc("/b2c/timeout", h.B2CTimeout).Methods(http.MethodPost)

	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg, h.log))
	authRouter.HandleFunc("/loans", h.ApplyLoan).Methods(http.MethodPost)
	authRouter.HandleFunc("/loans/{id}/guarantors/respond", h.RespondAsGuarantor).Methods(http.MethodPost)
	authRouter.HandleFunc("/loans/{id}/cancel", h.CancelLoan).Methods(http.MethodPost)
	authRouter.HandleFunc("/loans/{id}/payments/push", h.InitiatePush).Methods(http.MethodPost)
	authRouter.HandleFunc("/payments/{correlationId}/status", h.PaymentStatus).Methods(http.MethodGet)
	authRouter.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)

	admin := authRouter.PathPrefix("/").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/loans/{id}/approve", h.ApproveLoan).Methods(http.MethodPost)
	admin.HandleFunc("/loans/{id}/reject", h.RejectLoan).Methods(http.MethodPost)
	admin.HandleFunc("/loans/{id}/disburse", h.Disburse).Methods(http.MethodPost)
	admin.HandleFunc("/loans/{id}/payments/manual", h.ManualPayment).Methods(http.MethodPost)
	admin.HandleFunc("/admin/deductions/run", h.RunDeductions).Methods(http.MethodPost)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
