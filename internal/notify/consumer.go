package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/pkg/messaging"
)

const sendTimeout = 15 * time.Second

// Consumer subscribes to hospital events and turns them into emails. All
// subscriptions join the notifier queue group so each event is mailed once
// regardless of how many notifier instances run.
type Consumer struct {
	nats   *messaging.Client
	mailer *Mailer
	logger *zap.Logger
}

func NewConsumer(client *messaging.Client, mailer *Mailer, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{nats: client, mailer: mailer, logger: logger}
}

// Start registers all subscriptions. Handlers log and drop bad payloads;
// the bus is not a retry queue.
func (c *Consumer) Start() error {
	if err := c.nats.QueueSubscribe(messaging.SubjectAppointmentCreated, messaging.NotifierQueue, c.onCreated); err != nil {
		return err
	}
	if err := c.nats.QueueSubscribe(messaging.SubjectAppointmentRescheduled, messaging.NotifierQueue, c.onRescheduled); err != nil {
		return err
	}
	return c.nats.QueueSubscribe(messaging.SubjectPasswordReset, messaging.NotifierQueue, c.onPasswordReset)
}

func (c *Consumer) onCreated(msg *nats.Msg) {
	var ev messaging.AppointmentCreatedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		c.logger.Error("bad appointment event payload", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.mailer.SendConfirmation(ctx, ev); err != nil {
		c.logger.Error("failed to send confirmation email",
			zap.String("appointment_id", ev.AppointmentID), zap.Error(err))
	}
}

func (c *Consumer) onRescheduled(msg *nats.Msg) {
	var ev messaging.AppointmentRescheduledEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		c.logger.Error("bad reschedule event payload", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.mailer.SendReschedule(ctx, ev); err != nil {
		c.logger.Error("failed to send reschedule email",
			zap.String("appointment_id", ev.AppointmentID), zap.Error(err))
	}
}

func (c *Consumer) onPasswordReset(msg *nats.Msg) {
	var ev messaging.PasswordResetEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		c.logger.Error("bad password reset payload", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.mailer.SendPasswordReset(ctx, ev); err != nil {
		c.logger.Error("failed to send password reset email", zap.Error(err))
	}
}
