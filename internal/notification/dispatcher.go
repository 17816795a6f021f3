package notification

import (
	"context"

	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Store persists in-app notifications
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

// UserLookup resolves a recipient's contact details
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// SMSSender queues a text message
type SMSSender interface {
	Enqueue(ctx context.Context, phone, kind, text string) error
}

// EmailQueue queues an email
type EmailQueue interface {
	Enqueue(to, name string, msg Message)
}

// Dispatcher delivers committed notification events. Every event becomes an in-app notification;
// SMS and email go out when the event asks for them. Delivery failures are logged and dropped.
type Dispatcher struct {
	store Store
	users UserLookup
	sms   SMSSender
	email EmailQueue
	log   *logrus.Logger
}

// NewDispatcher creates a dispatcher. A nil sms or email sender disables that channel.
func NewDispatcher(store Store, users UserLookup, sms SMSSender, email EmailQueue, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{store: store, users: users, sms: sms, email: email, log: log}
}

// Register subscribes the dispatcher to the bus
func (d *Dispatcher) Register(bus *events.Bus) {
	bus.Subscribe(events.EventTypeNotification, d.handleNotification)
	bus.Subscribe(events.EventTypeLoanStatusChanged, d.handleStatusChanged)
}

func (d *Dispatcher) handleNotification(ctx context.Context, event events.Event) {
	n, ok := event.(events.NotificationEvent)
	if !ok {
		return
	}
	logger := d.log.WithFields(logrus.Fields{
		"recipient_id": n.RecipientID,
		"kind":         n.Kind,
	})

	if err := d.store.Create(ctx, &models.Notification{
		RecipientID: n.RecipientID,
		Type:        n.Kind,
		Payload:     n.Payload,
	}); err != nil {
		logger.Errorf("Failed to store notification: %v", err)
	}

	if !n.SMS && !n.Email {
		return
	}
	user, err := d.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		logger.Errorf("Failed to resolve recipient: %v", err)
		return
	}
	if user == nil {
		logger.Warn("Notification recipient does not exist")
		return
	}

	msg := Render(n.Kind, n.Payload)
	if n.SMS && d.sms != nil {
		if user.Phone == "" {
			logger.Warn("Recipient has no phone number, skipping SMS")
		} else if err := d.sms.Enqueue(ctx, user.Phone, string(n.Kind), msg.Body); err != nil {
			logger.Errorf("Failed to queue SMS: %v", err)
		}
	}
	if n.Email && d.email != nil {
		if user.Email == "" {
			logger.Warn("Recipient has no email address, skipping email")
		} else {
			d.email.Enqueue(user.Email, user.Name, msg)
		}
	}
}

func (d *Dispatcher) handleStatusChanged(ctx context.Context, event events.Event) {
	e, ok := event.(events.LoanStatusChangedEvent)
	if !ok {
		return
	}
	fields := logrus.Fields{
		"loan_id": e.LoanID,
		"from":    e.OldStatus,
		"to":      e.NewStatus,
	}
	if e.ActorID != nil {
		fields["actor_id"] = *e.ActorID
	}
	d.log.WithFields(fields).Info("Loan status changed")
}
