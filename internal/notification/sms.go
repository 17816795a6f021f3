package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const smsStream = "sms_outbound"

// SMSMessage is the envelope published for the SMS gateway worker
type SMSMessage struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Text      string    `json:"text"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// jetStreamPublisher is the part of nats.JetStreamContext the queue uses
type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// SMSQueue hands text messages to the SMS worker through a NATS JetStream subject.
// JetStream stores the message, so delivery is at least once.
type SMSQueue struct {
	subject string
	nc      *nats.Conn
	js      jetStreamPublisher
}

// ConnectSMSQueue connects to NATS and makes sure the outbound stream exists
func ConnectSMSQueue(url, subject string) (*SMSQueue, error) {
	opts := []nats.Option{
		nats.Name("advance-service"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(smsStream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:        smsStream,
			Subjects:    []string{subject},
			Retention:   nats.WorkQueuePolicy,
			MaxAge:      72 * time.Hour,
			Storage:     nats.FileStorage,
			Replicas:    1,
			Description: "Outbound SMS for loan notifications",
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream %s: %w", smsStream, err)
		}
		log.WithFields(log.Fields{"stream": smsStream, "subject": subject}).Info("Created JetStream stream")
	}

	log.WithField("url", url).Info("Connected to NATS with JetStream")
	return &SMSQueue{subject: subject, nc: nc, js: js}, nil
}

// Enqueue publishes one SMS
func (q *SMSQueue) Enqueue(ctx context.Context, phone, kind, text string) error {
	msg := SMSMessage{
		ID:        uuid.NewString(),
		Phone:     phone,
		Text:      text,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal sms: %w", err)
	}
	// Dedupe on the message id if a publish is retried.
	if _, err := q.js.Publish(q.subject, data, nats.MsgId(msg.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish sms to subject %s: %w", q.subject, err)
	}

	log.WithFields(log.Fields{
		"subject": q.subject,
		"kind":    kind,
	}).Debug("Queued SMS")
	return nil
}

// Close drains the connection
func (q *SMSQueue) Close() {
	if q.nc != nil {
		if err := q.nc.Drain(); err != nil {
			log.WithError(err).Warn("Failed to drain NATS connection")
		}
	}
}
