package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"licensewatch/internal/model"
)

func TestAggregate_GroupsByNormalizedAddress(t *testing.T) {
	items := []model.ExpiringLicense{
		{License: license(1, "a", -1, true), DaysUntilExpiry: -1},
		{License: license(2, "b", 2, true), DaysUntilExpiry: 2},
		{License: license(3, "c", 4, true), DaysUntilExpiry: 4},
		{License: license(4, "d", 9, true), DaysUntilExpiry: 9},
	}
	addresses := map[int64]string{
		1: "Team@X.com",
		2: "team@x.com ",
		3: "other@x.com",
		4: "team@x.com",
	}

	digests, skipped := Aggregate(context.Background(), items, func(_ context.Context, it model.ExpiringLicense) (Recipient, error) {
		return Recipient{Address: addresses[it.ID]}, nil
	}, zap.NewNop())

	assert.Equal(t, 0, skipped)
	require.Len(t, digests, 2)
	require.Contains(t, digests, "team@x.com")
	assert.Equal(t, []int64{1, 2, 4}, digests["team@x.com"].LicenseIDs())
	assert.Equal(t, []int64{3}, digests["other@x.com"].LicenseIDs())
}

func TestAggregate_SkipsUnresolvable(t *testing.T) {
	items := []model.ExpiringLicense{
		{License: license(1, "a", 1, true), DaysUntilExpiry: 1},
		{License: license(2, "b", 2, true), DaysUntilExpiry: 2},
		{License: license(3, "c", 3, true), DaysUntilExpiry: 3},
	}

	digests, skipped := Aggregate(context.Background(), items, func(_ context.Context, it model.ExpiringLicense) (Recipient, error) {
		switch it.ID {
		case 1:
			return Recipient{}, ErrNoRecipient
		case 2:
			return Recipient{Address: "   "}, nil
		default:
			return Recipient{Address: "u@x.com"}, nil
		}
	}, zap.NewNop())

	assert.Equal(t, 2, skipped)
	require.Len(t, digests, 1)
	assert.Equal(t, []int64{3}, digests["u@x.com"].LicenseIDs())
}

func TestAggregate_NothingResolvedNoDigests(t *testing.T) {
	items := []model.ExpiringLicense{{License: license(1, "a", 1, true), DaysUntilExpiry: 1}}

	digests, skipped := Aggregate(context.Background(), items, func(context.Context, model.ExpiringLicense) (Recipient, error) {
		return Recipient{}, ErrNoRecipient
	}, zap.NewNop())

	assert.Empty(t, digests)
	assert.Equal(t, 1, skipped)
}
