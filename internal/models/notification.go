package models

import "time"

// NotificationType keys the template used for an in-app notification
type NotificationType string

const (
	NotificationGuarantorRequest      NotificationType = "guarantor_request"
	NotificationApplicationAdmin      NotificationType = "loan_application_admin"
	NotificationApplicationReceived   NotificationType = "loan_application_received"
	NotificationLoanRejected          NotificationType = "loan_rejected"
	NotificationReadyForApproval      NotificationType = "loan_ready_for_approval"
	NotificationGuarantorsAccepted    NotificationType = "guarantors_accepted"
	NotificationLoanApproved          NotificationType = "loan_approved"
	NotificationLoanCancelled         NotificationType = "loan_cancelled"
	NotificationDeductionApplied      NotificationType = "deduction_applied"
	NotificationPaymentReceived       NotificationType = "payment_received"
	NotificationPaymentFailed         NotificationType = "payment_failed"
	NotificationDisbursementCompleted NotificationType = "disbursement_completed"
)

// Notification is a persisted in-app notification
type Notification struct {
	ID          int64            `json:"id"`
	RecipientID int64            `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Payload     map[string]any   `json:"payload"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
