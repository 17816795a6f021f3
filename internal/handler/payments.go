package handler

import (
	"net/http"

	"github.com/Dan9191/advance-service/internal/middleware"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type pushRequest struct {
	Phone  string          `json:"phone" validate:"required,numeric,len=12,startswith=254"`
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
}

type manualPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reference string          `json:"reference" validate:"required,max=64"`
}

// InitiatePush prompts the payer's phone for a repayment
func (h *Handler) InitiatePush(w http.ResponseWriter, r *http.Request) {
	loanID, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req pushRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	payment, err := h.deps.Payments.InitiatePush(r.Context(), service.PushPaymentRequest{
		LoanID: loanID,
		Phone:  req.Phone,
		Amount: req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, payment)
}

// PaymentStatus asks the gateway for the outcome of a push payment
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Payments.QueryStatus(r.Context(), mux.Vars(r)["correlationId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Disburse pays an approved loan out to the borrower
func (h *Handler) Disburse(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	loanID, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	payment, err := h.deps.Payments.Disburse(r.Context(), loanID, actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, payment)
}

// ManualPayment records money received outside the gateway
func (h *Handler) ManualPayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	loanID, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req manualPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	entry, err := h.deps.Reconciler.ManualPayment(r.Context(), service.ManualPaymentRequest{
		LoanID:    loanID,
		ActorID:   actor.UserID,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
