package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"licensewatch/internal/model"
	"licensewatch/pkg/metrics"
)

var ErrInvalidLookahead = errors.New("days ahead must not be negative")

// Selector picks expired and soon-to-expire licenses.
type Selector struct {
	store        LicenseStore
	loc          *time.Location
	skipNotified bool
	now          func() time.Time
}

// NewSelector evaluates "today" in loc. With skipNotified, licenses already
// marked notification_sent are left out.
func NewSelector(store LicenseStore, loc *time.Location, skipNotified bool) *Selector {
	if loc == nil {
		loc = time.UTC
	}
	return &Selector{store: store, loc: loc, skipNotified: skipNotified, now: time.Now}
}

// Today is the current calendar date in the selector's zone, as UTC midnight.
func (s *Selector) Today() time.Time {
	return civilDate(s.now().In(s.loc))
}

// SelectExpiring returns licenses with expiration_date <= today+daysAhead:
// expired ones first, each partition ordered by distance from today.
func (s *Selector) SelectExpiring(ctx context.Context, daysAhead int, includeInactive bool) ([]model.ExpiringLicense, error) {
	if daysAhead < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLookahead, daysAhead)
	}

	today := s.Today()
	cutoff := today.AddDate(0, 0, daysAhead)

	rows, err := s.store.ListExpiringCandidates(ctx, cutoff, !includeInactive, s.skipNotified)
	if err != nil {
		return nil, err
	}

	out := make([]model.ExpiringLicense, 0, len(rows))
	expired := 0
	for _, l := range rows {
		if !includeInactive && !l.IsActive {
			continue
		}
		if s.skipNotified && l.NotificationSent {
			continue
		}
		days := DaysUntil(l.ExpirationDate, today)
		if days > daysAhead {
			continue
		}
		if days < 0 {
			expired++
		}
		out = append(out, model.ExpiringLicense{License: l, DaysUntilExpiry: days})
	}

	SortByUrgency(out)
	metrics.AddLicensesSelected(expired, len(out)-expired)
	return out, nil
}

// SortByUrgency orders expired before upcoming, then by |days|, then by id.
func SortByUrgency(items []model.ExpiringLicense) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Expired() != b.Expired() {
			return a.Expired()
		}
		da, db := abs(a.DaysUntilExpiry), abs(b.DaysUntilExpiry)
		if da != db {
			return da < db
		}
		return a.ID < b.ID
	})
}

// DaysUntil is the number of calendar days from today to expiration;
// 0 when it expires today, negative once past.
func DaysUntil(expiration, today time.Time) int {
	return int(civilDate(expiration).Sub(civilDate(today)).Hours() / 24)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
