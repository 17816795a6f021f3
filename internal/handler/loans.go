package handler

import (
	"net/http"
	"strconv"

	"github.com/Dan9191/advance-service/internal/middleware"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/shopspring/decimal"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type applyRequest struct {
	LoanTypeID   int64           `json:"loan_type_id" validate:"required,gt=0"`
	Principal    decimal.Decimal `json:"principal" validate:"required,gt=0"`
	TenureMonths int             `json:"tenure_months" validate:"required,gt=0"`
	GuarantorIDs []int64         `json:"guarantor_ids" validate:"dive,gt=0"`
}

type respondRequest struct {
	Accept  *bool  `json:"accept" validate:"required"`
	Remarks string `json:"remarks" validate:"max=500"`
}

// approveRequest may lower the amount; the service checks it against the principal
type approveRequest struct {
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Remarks string           `json:"remarks" validate:"max=500"`
}

type rejectRequest struct {
	Remarks string `json:"remarks" validate:"required,max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	token, err := h.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ApplyLoan records an application for the authenticated borrower
func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req applyRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	loan, err := h.deps.Applications.Apply(r.Context(), service.ApplyRequest{
		BorrowerID:   actor.UserID,
		LoanTypeID:   req.LoanTypeID,
		Principal:    req.Principal,
		TenureMonths: req.TenureMonths,
		GuarantorIDs: req.GuarantorIDs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// RespondAsGuarantor records the caller's answer to a guarantee request
func (h *Handler) RespondAsGuarantor(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	loanID, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req respondRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	state, err := h.deps.Consensus.Respond(r.Context(), service.RespondRequest{
		LoanID:      loanID,
		GuarantorID: actor.UserID,
		Accept:      *req.Accept,
		Remarks:     req.Remarks,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"consensus": string(state)})
}

// ApproveLoan handles an administrator's approval
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	loanID, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req approveRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	loan, err := h.deps.Approvals.Approve(r.Context(), service.ApproveRequest{
		LoanID:  loanID,
		ActorID: actor.UserID,
		Amount:  req.Amount,
		Remarks: req.Remarks,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	loanID, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req rejectRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	loan, err := h.deps.Approvals.Reject(r.Context(), loanID, actor.UserID, req.Remarks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// CancelLoan lets a borrower withdraw an undecided application
func (h *Handler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	loanID, err := pathID(r, "id")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req cancelRequest
	if err := h.decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	loan, err := h.deps.Approvals.Cancel(r.Context(), loanID, actor.UserID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// RunDeductions triggers the daily batch outside its schedule
func (h *Handler) RunDeductions(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Deductions.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListNotifications returns the caller's most recent in-app notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	list, err := h.deps.Notifications.ListByRecipient(r.Context(), actor.UserID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
