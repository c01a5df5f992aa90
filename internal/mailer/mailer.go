package mailer

import (
	"context"
	"fmt"

	"medshop/internal/config"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer queues messages on a bounded worker pool so request handlers
// never wait on the SMTP server.
type SMTPMailer struct {
	from    string
	dialer  dialer
	workers *ants.Pool
	log     *zap.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, log *zap.Logger) (*SMTPMailer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("mailer: worker pool: %w", err)
	}

	d := gomail.NewDialer(cfg.Server, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.Port == 465

	return &SMTPMailer{
		from:    cfg.From,
		dialer:  d,
		workers: pool,
		log:     log.Named("mailer"),
	}, nil
}

// Send queues msg for delivery. Delivery failures are logged, not returned.
func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	err := m.workers.Submit(func() {
		if err := m.dialer.DialAndSend(gm); err != nil {
			m.log.Error("Failed to send email", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		m.log.Info("Email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	})
	if err != nil {
		return fmt.Errorf("mailer: queue message: %w", err)
	}
	return nil
}

// Close releases the worker pool. Queued messages still running finish on their own.
func (m *SMTPMailer) Close() {
	m.workers.Release()
}

// LogMailer writes messages to the log instead of sending them. Used when
// SMTP is not configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log.Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Warn("SMTP not configured, email not sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
