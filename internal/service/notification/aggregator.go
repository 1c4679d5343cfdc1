package notification

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"licensewatch/internal/model"
	"licensewatch/pkg/metrics"
)

type ResolveFunc func(ctx context.Context, item model.ExpiringLicense) (Recipient, error)

// NormalizeAddress is the grouping key for recipients.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Aggregate groups items into one digest per normalized recipient address,
// preserving item order. It returns the digests and the number of items
// skipped because no recipient could be resolved.
func Aggregate(ctx context.Context, items []model.ExpiringLicense, resolve ResolveFunc, logger *zap.Logger) (map[string]*model.DigestRequest, int) {
	digests := make(map[string]*model.DigestRequest)
	skipped := 0

	for _, it := range items {
		rcpt, err := resolve(ctx, it)
		key := NormalizeAddress(rcpt.Address)
		if err == nil && key == "" {
			err = ErrNoRecipient
		}
		if err != nil {
			skipped++
			metrics.RecipientSkipped.Inc()
			logger.Warn("Skipping license without recipient",
				zap.Int64("license_id", it.ID),
				zap.String("license", it.Name),
				zap.Error(err),
			)
			continue
		}

		d, ok := digests[key]
		if !ok {
			d = &model.DigestRequest{Recipient: key, UserID: rcpt.UserID}
			digests[key] = d
		}
		d.Items = append(d.Items, it)
	}

	for k, d := range digests {
		if len(d.Items) == 0 {
			delete(digests, k)
		}
	}
	return digests, skipped
}
