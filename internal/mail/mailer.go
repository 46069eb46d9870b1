// Package mail assembles and dispatches delivery emails over SMTP. The
// transport connection is verified before the message is handed over; a
// verification failure and a send failure are reported as distinct stages,
// and neither is retried.
package mail

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/config"
)

// DeliveryError reports an SMTP failure. Stage distinguishes a transport
// verification failure from a send failure; both are fatal.
type DeliveryError struct {
	Stage string // "verify" or "send"
	Err   error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("smtp %s: %v", e.Stage, e.Err) }

func (e *DeliveryError) Unwrap() error { return e.Err }

// Transport is the slice of go-mail's client the mailer needs; tests swap in
// a stub.
type Transport interface {
	DialWithContext(ctx context.Context) error
	Send(msgs ...*gomail.Msg) error
	Close() error
}

// Mailer builds and sends delivery messages.
type Mailer struct {
	transport Transport
	from      string
}

// New constructs a Mailer with a real SMTP client from the Config.
func New(cfg *config.Config) (*Mailer, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is not configured")
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
	}
	if cfg.SMTPSecure {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.SMTPUser != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.SMTPUser),
			gomail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &Mailer{transport: client, from: cfg.SenderAddr}, nil
}

// NewWithTransport wires a custom transport; used by tests.
func NewWithTransport(t Transport, from string) *Mailer {
	return &Mailer{transport: t, from: from}
}

// Send verifies the transport, then dispatches the message. Page images are
// attached with a content-id matching their asset name so the HTML body can
// reference them inline. Returns the generated message id.
func (m *Mailer) Send(ctx context.Context, content *Content) (string, error) {
	msg, msgID, err := m.build(content)
	if err != nil {
		return "", &DeliveryError{Stage: "send", Err: err}
	}
	if err := m.transport.DialWithContext(ctx); err != nil {
		return "", &DeliveryError{Stage: "verify", Err: err}
	}
	defer m.transport.Close()
	if err := m.transport.Send(msg); err != nil {
		return "", &DeliveryError{Stage: "send", Err: err}
	}
	return msgID, nil
}

func (m *Mailer) build(content *Content) (*gomail.Msg, string, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, "", fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(content.Recipient); err != nil {
		return nil, "", fmt.Errorf("recipient address: %w", err)
	}
	msgID := fmt.Sprintf("%s@pagesend", uuid.NewString())
	msg.SetMessageIDWithValue(msgID)
	msg.Subject(content.Subject())
	msg.SetBodyString(gomail.TypeTextPlain, content.TextBody())
	msg.AddAlternativeString(gomail.TypeTextHTML, content.HTMLBody())
	for _, asset := range content.Assets {
		msg.AttachFile(asset.Path,
			gomail.WithFileName(asset.Name),
			gomail.WithFileContentID(asset.Name),
		)
	}
	return msg, msgID, nil
}
