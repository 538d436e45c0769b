package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/pkg/circuit"
	"github.com/terminal-bench/careflow/pkg/messaging"
)

// SMTPConfig configures the outbound mail relay. An empty Host disables
// sending entirely; notifications are then logged and dropped.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c SMTPConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Mailer sends patient notification emails through a circuit breaker so a
// dead relay fails fast instead of stacking up blocked sends.
type Mailer struct {
	cfg     SMTPConfig
	breaker *circuit.Breaker
	logger  *zap.Logger

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewMailer(cfg SMTPConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := circuit.NewBreaker(circuit.Config{
		Name:        "smtp",
		MaxFailures: 3,
		Cooldown:    30 * time.Second,
		HalfOpenMax: 1,
		OnStateChange: func(from, to circuit.State) {
			logger.Warn("smtp breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Mailer{cfg: cfg, breaker: breaker, logger: logger, send: smtp.SendMail}
}

// SendConfirmation emails the appointment confirmation for a new intake.
func (m *Mailer) SendConfirmation(ctx context.Context, ev messaging.AppointmentCreatedEvent) error {
	body := fmt.Sprintf(`<html><body>
<h2>Appointment Confirmed</h2>
<p>Dear %s,</p>
<p>Your appointment in <b>%s</b> has been scheduled.</p>
<ul>
<li>Doctor: %s</li>
<li>Estimated wait: %d minutes</li>
<li>Bed type: %s</li>
</ul>
<p>Please arrive at the front desk with this confirmation.</p>
</body></html>`,
		ev.PatientName, ev.Department, ev.AssignedDoctorName,
		ev.PredictedWaitMinutes, ev.BedType)
	return m.deliver(ctx, ev.PatientEmail, "Appointment Confirmation", body)
}

// SendReschedule emails a patient whose appointment was bumped by an
// emergency case.
func (m *Mailer) SendReschedule(ctx context.Context, ev messaging.AppointmentRescheduledEvent) error {
	body := fmt.Sprintf(`<html><body>
<h2>Appointment Rescheduled</h2>
<p>Dear %s,</p>
<p>Your appointment with %s in %s has been rescheduled.</p>
<p>Reason: %s</p>
<p>The front desk will contact you with a new time slot.</p>
</body></html>`,
		ev.PatientName, ev.AssignedDoctorName, ev.Department, ev.Reason)
	return m.deliver(ctx, ev.PatientEmail, "Appointment Rescheduled", body)
}

// SendPasswordReset emails a doctor their temporary password.
func (m *Mailer) SendPasswordReset(ctx context.Context, ev messaging.PasswordResetEvent) error {
	body := fmt.Sprintf(`<html><body>
<h2>Password Reset</h2>
<p>Your temporary password is: <b>%s</b></p>
<p>Please sign in and change it immediately.</p>
</body></html>`, ev.TempPassword)
	return m.deliver(ctx, ev.Email, "Password Reset", body)
}

func (m *Mailer) deliver(ctx context.Context, to, subject, htmlBody string) error {
	if to == "" {
		return nil
	}
	if m.cfg.Host == "" {
		m.logger.Info("smtp not configured, dropping notification",
			zap.String("to", to), zap.String("subject", subject))
		return nil
	}

	msg := buildMessage(m.cfg.From, to, subject, htmlBody)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	return m.breaker.Execute(ctx, func() error {
		return m.send(m.cfg.addr(), auth, m.cfg.From, []string{to}, msg)
	})
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
