package handler

import (
	"net/http"

	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/sirupsen/logrus"
)

// Gateway callbacks are acknowledged as soon as the payload parses so the gateway stops retrying.
// Processing failures are logged; replays are absorbed by the reconciler.

// STKCallback receives the outcome of a push payment
func (h *Handler) STKCallback(w http.ResponseWriter, r *http.Request) {
	var cb mpesa.STKCallback
	if err := h.decode(r, &cb); err != nil {
		writeBadRequest(w, err)
		return
	}
	result := cb.Body.STKCallback
	if err := h.deps.Reconciler.HandleSTKCallback(r.Context(), result); err != nil {
		h.log.WithField("checkout_request_id", result.CheckoutRequestID).Errorf("Failed to apply push callback: %v", err)
	}
	writeJSON(w, http.StatusOK, mpesa.Accepted)
}

// C2BValidation accepts or refuses a merchant payment before the gateway completes it
func (h *Handler) C2BValidation(w http.ResponseWriter, r *http.Request) {
	var p mpesa.C2BPayment
	if err := h.decode(r, &p); err != nil {
		h.log.Warnf("Refusing unparseable merchant validation: %v", err)
		writeJSON(w, http.StatusOK, mpesa.ValidationResponse{
			ResultCode: mpesa.ValidationOtherError,
			ResultDesc: "Rejected",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Reconciler.ValidateMerchantPayment(r.Context(), p))
}

// C2BConfirmation receives a completed merchant payment
func (h *Handler) C2BConfirmation(w http.ResponseWriter, r *http.Request) {
	var p mpesa.C2BPayment
	if err := h.decode(r, &p); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.deps.Reconciler.ConfirmMerchantPayment(r.Context(), p); err != nil {
		h.log.WithField("trans_id", p.TransID).Errorf("Failed to apply merchant payment: %v", err)
	}
	writeJSON(w, http.StatusOK, mpesa.Accepted)
}

// B2CResult receives the outcome of a payout
func (h *Handler) B2CResult(w http.ResponseWriter, r *http.Request) {
	var cb mpesa.B2CCallback
	if err := h.decode(r, &cb); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := h.deps.Reconciler.HandleDisbursementResult(r.Context(), cb.Result); err != nil {
		h.log.WithField("conversation_id", cb.Result.OriginatorConversationID).Errorf("Failed to apply payout result: %v", err)
	}
	writeJSON(w, http.StatusOK, mpesa.Accepted)
}

// B2CTimeout is called when a payout expired in the gateway queue. Its outcome is unknown, so the
// transaction stays pending until a result arrives or an operator resolves it.
func (h *Handler) B2CTimeout(w http.ResponseWriter, r *http.Request) {
	var cb mpesa.B2CCallback
	if err := h.decode(r, &cb); err != nil {
		writeBadRequest(w, err)
		return
	}
	h.log.WithFields(logrus.Fields{
		"conversation_id": cb.Result.OriginatorConversationID,
		"result_code":     cb.Result.ResultCode,
	}).Warnf("Payout timed out in gateway queue: %s", cb.Result.ResultDesc)
	writeJSON(w, http.StatusOK, mpesa.Accepted)
}
