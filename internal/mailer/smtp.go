package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"licensewatch/pkg/circuitbreaker"
	"licensewatch/pkg/config"
	"licensewatch/pkg/metrics"
	"licensewatch/pkg/otel"
	"licensewatch/pkg/util"
)

// Transport delivers one message and returns its Message-ID.
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// ValidateSMTPConfig rejects configurations that cannot authenticate.
func ValidateSMTPConfig(cfg config.SMTPConfig) error {
	var missing []string
	if strings.TrimSpace(cfg.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(cfg.From) == "" {
		missing = append(missing, "from")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// SMTPTransport sends through one relay, dialing per message.
// It is safe for concurrent use.
type SMTPTransport struct {
	cfg     config.SMTPConfig
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewSMTPTransport(cfg config.SMTPConfig, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) (*SMTPTransport, error) {
	if err := ValidateSMTPConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	}
	return &SMTPTransport{cfg: cfg, breaker: breaker, logger: logger}, nil
}

func (t *SMTPTransport) tlsPolicy() mail.TLSPolicy {
	switch strings.ToLower(t.cfg.TLSPolicy) {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}

func (t *SMTPTransport) buildMessage(msg *Message) (*mail.Msg, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, &SendError{Kind: KindNoRecipient, Err: fmt.Errorf("empty recipient")}
	}

	m := mail.NewMsg()
	var err error
	if t.cfg.FromName != "" {
		err = m.FromFormat(t.cfg.FromName, t.cfg.From)
	} else {
		err = m.From(t.cfg.From)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", t.cfg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, &SendError{Kind: KindNoRecipient, Err: fmt.Errorf("invalid recipient %q: %w", msg.To, err)}
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if msg.Text != "" {
		m.AddAlternativeString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}

// Send delivers msg. Every failure is a *SendError.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (string, error) {
	ctx, span := otel.StartSpan(ctx, "smtp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("smtp.host", t.cfg.Host),
		attribute.Int("smtp.port", t.cfg.Port),
	)

	m, err := t.buildMessage(msg)
	if err != nil {
		sendErr := NewSendError(err)
		otel.SetSpanStatus(span, sendErr)
		return "", sendErr
	}

	start := time.Now()
	var deliveryErr error
	err = t.breaker.Execute(func() error {
		client, err := mail.NewClient(t.cfg.Host,
			mail.WithPort(t.cfg.Port),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
			mail.WithTimeout(t.cfg.Timeout()),
			mail.WithTLSPolicy(t.tlsPolicy()),
		)
		if err != nil {
			return fmt.Errorf("failed to create smtp client: %w", err)
		}
		deliveryErr = client.DialAndSendWithContext(ctx, m)
		if mailboxRejected(deliveryErr) {
			// the relay answered; only this recipient is refused
			return nil
		}
		return deliveryErr
	})
	if err == nil {
		err = deliveryErr
	}

	if err != nil {
		sendErr := NewSendError(err)
		metrics.RecordSMTPSend("failed", time.Since(start))
		otel.SetSpanStatus(span, sendErr)
		t.logger.Warn("SMTP send failed",
			zap.String("recipient", msg.To),
			zap.String("kind", string(sendErr.Kind)),
			zap.String("breaker_state", t.breaker.GetState().String()),
			zap.Error(err),
		)
		return "", sendErr
	}

	metrics.RecordSMTPSend("sent", time.Since(start))
	otel.SetSpanStatus(span, nil)
	return m.GetMessageID(), nil
}

// mailboxRejected reports a permanent, non-auth refusal of one message.
// Those do not count against the relay's circuit breaker.
func mailboxRejected(err error) bool {
	return err != nil && util.ClassifySMTPError(err) == util.SMTPErrorRejected
}
