package model

import "time"

type License struct {
	ID               int64
	Name             string
	VendorID         *int64
	CustomerID       *int64
	VendorName       string
	CustomerName     string
	ExpirationDate   time.Time
	IsActive         bool
	NotificationSent bool
	UpdatedAt        time.Time
}

// ExpiringLicense is a selected license with its civil-day distance from today.
// Negative DaysUntilExpiry means already expired.
type ExpiringLicense struct {
	License
	DaysUntilExpiry int
}

func (e ExpiringLicense) Expired() bool {
	return e.DaysUntilExpiry < 0
}
