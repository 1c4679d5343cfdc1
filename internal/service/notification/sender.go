package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "licensewatch/contracts/mq"
	"licensewatch/internal/mailer"
	"licensewatch/internal/model"
	"licensewatch/pkg/logger"
	"licensewatch/pkg/metrics"
	"licensewatch/pkg/trace"
)

// Sender composes a digest, hands it to the transport and marks the
// included licenses notified.
type Sender struct {
	composer  *mailer.Composer
	transport mailer.Transport
	licenses  LicenseStore
	events    EventRecorder
	logger    *zap.Logger
}

// NewSender accepts a nil events recorder; delivery outcomes are then only logged.
func NewSender(composer *mailer.Composer, transport mailer.Transport, licenses LicenseStore, events EventRecorder, logger *zap.Logger) *Sender {
	return &Sender{
		composer:  composer,
		transport: transport,
		licenses:  licenses,
		events:    events,
		logger:    logger,
	}
}

// SendDigest sends items to recipient and returns the Message-ID.
// Transport failures are returned as *mailer.SendError.
func (s *Sender) SendDigest(ctx context.Context, recipient string, items []model.ExpiringLicense) (string, error) {
	return s.Deliver(ctx, &model.DigestRequest{Recipient: recipient, Items: items})
}

// Deliver sends one digest. Marking licenses notified is best-effort:
// a failed update is logged and does not fail the delivery.
func (s *Sender) Deliver(ctx context.Context, d *model.DigestRequest) (string, error) {
	log := logger.WithTrace(ctx, s.logger).With(
		zap.String("recipient", d.Recipient),
		zap.Int("licenses", len(d.Items)),
	)

	msg, err := s.composer.Compose(d.Recipient, d.Items)
	if err != nil {
		return "", err
	}

	messageID, err := s.transport.Send(ctx, msg)
	if err != nil {
		sendErr := mailer.NewSendError(err)
		metrics.IncrementDigest("failed")
		log.Error("Failed to send digest", zap.String("kind", string(sendErr.Kind)), zap.Error(err))
		s.record(ctx, mqcontracts.RoutingKeyDigestFailed, d.UserID, mqcontracts.DigestFailedPayload{
			Recipient:  d.Recipient,
			UserID:     d.UserID,
			LicenseIDs: d.LicenseIDs(),
			Kind:       string(sendErr.Kind),
			Error:      err.Error(),
			TraceID:    trace.FromContext(ctx),
		})
		return "", sendErr
	}

	metrics.IncrementDigest("sent")
	log.Info("Digest sent", zap.String("message_id", messageID))

	for _, it := range d.Items {
		if err := s.licenses.MarkNotified(ctx, it.ID); err != nil {
			metrics.MarkNotifiedFailures.Inc()
			log.Error("Failed to mark license notified",
				zap.Int64("license_id", it.ID),
				zap.Error(err),
			)
		}
	}

	s.record(ctx, mqcontracts.RoutingKeyDigestSent, d.UserID, mqcontracts.DigestSentPayload{
		Recipient:  d.Recipient,
		UserID:     d.UserID,
		LicenseIDs: d.LicenseIDs(),
		MessageID:  messageID,
		SentAt:     time.Now().UTC(),
		TraceID:    trace.FromContext(ctx),
	})
	return messageID, nil
}

// SendTest sends msg without touching any license.
func (s *Sender) SendTest(ctx context.Context, recipient string, items []model.ExpiringLicense) (*mailer.Message, string, error) {
	msg, err := s.composer.Compose(recipient, items)
	if err != nil {
		return nil, "", err
	}
	messageID, err := s.transport.Send(ctx, msg)
	if err != nil {
		return msg, "", mailer.NewSendError(err)
	}
	return msg, messageID, nil
}

func (s *Sender) record(ctx context.Context, routingKey string, userID *int64, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, routingKey, userID, payload); err != nil {
		s.logger.Warn("Failed to record digest event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
