// Package mail implements notification.Mailer over SMTP.
package mail

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/notification"
)

// Config is the SMTP relay configuration.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

var (
	_ notification.Mailer = (*SMTP)(nil)
	_ notification.Mailer = LogMailer{}
)

// SMTP sends messages through an SMTP relay. A connection is opened per
// message.
type SMTP struct {
	cfg  Config
	opts []gomail.Option
}

// NewSMTP validates cfg and returns an SMTP mailer.
func NewSMTP(cfg Config) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return &SMTP{cfg: cfg, opts: opts}, nil
}

func (s *SMTP) Send(ctx context.Context, msg notification.Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	client, err := gomail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return errors.Wrap(err, "create smtp client")
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrap(err, "send mail")
	}
	return nil
}

func (s *SMTP) build(msg notification.Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return nil, errors.Wrap(err, "from")
	}
	if err := m.To(msg.To); err != nil {
		return nil, errors.Wrap(err, "to")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

// LogMailer logs messages instead of sending them. It is used when no SMTP
// relay is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg notification.Message) error {
	zctx.From(ctx).Info("Mail not sent, no relay configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTML)),
	)
	return nil
}
