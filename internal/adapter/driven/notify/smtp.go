package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

var _ driven.Notifier = (*SMTPNotifier)(nil)

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// sender is the part of *mail.Client the notifier uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends notifications as multipart text/HTML email.
type SMTPNotifier struct {
	client sender
	from   string
}

// NewSMTPNotifier creates a notifier for cfg. Authentication is enabled when
// a username is set; STARTTLS is used whenever the server offers it.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, from: cfg.From}, nil
}

// Notify builds and sends one message. Failures wrap model.ErrGateway.
func (s *SMTPNotifier) Notify(ctx context.Context, n model.Notification) error {
	msg, err := s.buildMessage(n)
	if err != nil {
		return model.Wrap(model.ErrGateway, "build notification", err)
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return model.Wrap(model.ErrGateway, "send notification", err)
	}
	return nil
}

func (s *SMTPNotifier) buildMessage(n model.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(n.Subject)
	msg.SetBodyString(mail.TypeTextPlain, n.Body)

	body := n.BodyHTML
	if body == "" {
		body = RenderHTML(n.Body)
	}
	if body != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, body)
	}
	return msg, nil
}
