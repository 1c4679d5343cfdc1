package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"licensewatch/internal/model"
	"licensewatch/pkg/otel"
)

type LicenseRepository struct {
	db *pgxpool.Pool
}

func NewLicenseRepository(db *pgxpool.Pool) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// ListExpiringCandidates returns licenses with expiration_date <= cutoff,
// joined with vendor and customer display names.
func (r *LicenseRepository) ListExpiringCandidates(ctx context.Context, cutoff time.Time, activeOnly, unnotifiedOnly bool) ([]model.License, error) {
	query := `
        SELECT l.id, l.name, l.vendor_id, l.customer_id,
               COALESCE(v.name, ''), COALESCE(c.name, ''),
               l.expiration_date, l.is_active, l.notification_sent, l.updated_at
        FROM licenses l
        LEFT JOIN vendors v ON v.id = l.vendor_id
        LEFT JOIN customers c ON c.id = l.customer_id
        WHERE l.expiration_date <= $1::date
          AND ($2 = FALSE OR l.is_active = TRUE)
          AND ($3 = FALSE OR l.notification_sent = FALSE)
        ORDER BY l.expiration_date, l.id
    `
	var licenses []model.License
	err := otel.WithDBSpan(ctx, "SELECT", "licenses", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, cutoff.Format("2006-01-02"), activeOnly, unnotifiedOnly)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var l model.License
			if err := rows.Scan(
				&l.ID,
				&l.Name,
				&l.VendorID,
				&l.CustomerID,
				&l.VendorName,
				&l.CustomerName,
				&l.ExpirationDate,
				&l.IsActive,
				&l.NotificationSent,
				&l.UpdatedAt,
			); err != nil {
				return err
			}
			licenses = append(licenses, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring licenses: %w", err)
	}
	return licenses, nil
}

// MarkNotified sets notification_sent on a single license.
func (r *LicenseRepository) MarkNotified(ctx context.Context, licenseID int64) error {
	query := `UPDATE licenses SET notification_sent = TRUE, updated_at = NOW() WHERE id = $1`
	return otel.WithDBSpan(ctx, "UPDATE", "licenses", func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, licenseID)
		if err != nil {
			return fmt.Errorf("failed to mark license %d notified: %w", licenseID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("license %d not found", licenseID)
		}
		return nil
	})
}
