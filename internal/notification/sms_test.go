package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Dan9191/advance-service/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJetStream struct {
	subject string
	data    []byte
	err     error
}

func (r *recordingJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	r.subject, r.data = subj, data
	if r.err != nil {
		return nil, r.err
	}
	return &nats.PubAck{Stream: smsStream, Sequence: 1}, nil
}

func TestSMSQueue_Enqueue(t *testing.T) {
	js := &recordingJetStream{}
	queue := &SMSQueue{subject: "sms.outbound", js: js}

	err := queue.Enqueue(context.Background(), "254712345678", string(models.NotificationLoanApproved), "Your loan is approved")
	require.NoError(t, err)

	assert.Equal(t, "sms.outbound", js.subject)
	var msg SMSMessage
	require.NoError(t, json.Unmarshal(js.data, &msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "254712345678", msg.Phone)
	assert.Equal(t, "loan_approved", msg.Kind)
	assert.Equal(t, "Your loan is approved", msg.Text)
}

func TestSMSQueue_EnqueuePublishError(t *testing.T) {
	queue := &SMSQueue{subject: "sms.outbound", js: &recordingJetStream{err: errors.New("no responders")}}

	err := queue.Enqueue(context.Background(), "254712345678", "loan_approved", "text")
	assert.ErrorContains(t, err, "failed to publish sms")
}
