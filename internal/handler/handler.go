package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Applier interface {
	Apply(ctx context.Context, req service.ApplyRequest) (*models.Loan, error)
}

type Responder interface {
	Respond(ctx context.Context, req service.RespondRequest) (service.ConsensusState, error)
}

type Approver interface {
	Approve(ctx context.Context, req service.ApproveRequest) (*models.Loan, error)
	Reject(ctx context.Context, loanID, actorID int64, remarks string) (*models.Loan, error)
	Cancel(ctx context.Context, loanID, borrowerID int64, reason string) (*models.Loan, error)
}

type Payments interface {
	InitiatePush(ctx context.Context, req service.PushPaymentRequest) (*models.PaymentTransaction, error)
	QueryStatus(ctx context.Context, correlationID string) (*service.PaymentStatus, error)
	Disburse(ctx context.Context, loanID, actorID int64) (*models.PaymentTransaction, error)
}

type Reconciler interface {
	HandleSTKCallback(ctx context.Context, result mpesa.STKResult) error
	ValidateMerchantPayment(ctx context.Context, p mpesa.C2BPayment) mpesa.ValidationResponse
	ConfirmMerchantPayment(ctx context.Context, p mpesa.C2BPayment) error
	HandleDisbursementResult(ctx context.Context, result mpesa.B2CResult) error
	ManualPayment(ctx context.Context, req service.ManualPaymentRequest) (*models.LedgerEntry, error)
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

type DeductionRunner interface {
	RunOnce(ctx context.Context) (service.DeductionReport, error)
}

type NotificationLister interface {
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*models.Notification, error)
}

// Deps are the services the HTTP layer delegates to
type Deps struct {
	Applications  Applier
	Consensus     Responder
	Approvals     Approver
	Payments      Payments
	Reconciler    Reconciler
	Auth          Authenticator
	Deductions    DeductionRunner
	Notifications NotificationLister
}

type Handler struct {
	deps     Deps
	validate *validator.Validate
	log      *logrus.Logger
}

func NewHandler(deps Deps, log *logrus.Logger) *Handler {
	return &Handler{deps: deps, validate: newValidator(), log: log}
}

// newValidator teaches the validator to compare decimals numerically
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// decode reads and validates a JSON body. An empty body decodes as an empty object.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var apiErr *mpesa.APIError
	switch {
	case errors.Is(err, service.ErrInvalidApplication), errors.Is(err, service.ErrInvalidPayment):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrUnknownGuarantor):
		return http.StatusForbidden
	case errors.Is(err, service.ErrLoanNotFound), errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyProcessed), errors.Is(err, service.ErrConsensusPending):
		return http.StatusConflict
	case errors.Is(err, service.ErrLimitExceeded), errors.Is(err, service.ErrNotQualified),
		errors.Is(err, service.ErrGuarantorNotQualified), errors.Is(err, service.ErrGuarantorOverCommitted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, mpesa.ErrBlocked), errors.Is(err, mpesa.ErrAuth), errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithField("path", r.URL.Path).Errorf("Request failed: %v", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
