package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensewatch/internal/model"
)

// openTestDB connects to LICENSEWATCH_TEST_DB_URL and resets the schema.
func openTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("LICENSEWATCH_TEST_DB_URL")
	if dsn == "" {
		t.Skip("LICENSEWATCH_TEST_DB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("cannot connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("cannot reach test database: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE user_notification_settings, licenses, vendors, customers, users, outbox_events RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, email string, active bool) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, is_active) VALUES ($1, $2) RETURNING id`, email, active).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestUserRepository_GetUser(t *testing.T) {
	pool := openTestDB(t)
	repo := NewUserRepository(pool, 30, "09:00")
	id := insertUser(t, pool, "u@x.com", true)

	u, err := repo.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "u@x.com", u.Email)
	assert.True(t, u.IsActive)

	_, err = repo.GetUser(context.Background(), id+100)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_ListUsersWithEmailNotificationsEnabled(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(pool, 30, "09:00")
	settings := NewSettingsRepository(pool)

	withDefaults := insertUser(t, pool, "defaults@x.com", true)
	custom := insertUser(t, pool, "custom@x.com", true)
	disabled := insertUser(t, pool, "disabled@x.com", true)
	insertUser(t, pool, "inactive@x.com", false)

	override := "team@x.com"
	_, err := settings.UpsertNotificationSettings(ctx, &model.NotificationSettings{
		UserID: custom, DaysBeforeExpiration: 10, SendToEmail: true,
		NotificationTime: "07:45", EmailAddress: &override, IncludeInactive: true,
	})
	require.NoError(t, err)
	_, err = settings.UpsertNotificationSettings(ctx, &model.NotificationSettings{
		UserID: disabled, DaysBeforeExpiration: 30, SendToEmail: false, NotificationTime: "09:00",
	})
	require.NoError(t, err)

	list, err := users.ListUsersWithEmailNotificationsEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, withDefaults, list[0].UserID)
	assert.Equal(t, "09:00", list[0].NotificationTime)
	assert.Equal(t, 30, list[0].DaysBeforeExpiration)
	assert.Nil(t, list[0].EmailAddress)

	assert.Equal(t, custom, list[1].UserID)
	assert.Equal(t, "07:45", list[1].NotificationTime)
	assert.Equal(t, 10, list[1].DaysBeforeExpiration)
	assert.True(t, list[1].IncludeInactive)
	require.NotNil(t, list[1].EmailAddress)
	assert.Equal(t, "team@x.com", *list[1].EmailAddress)
}

func TestSettingsRepository_GetMissingReturnsNil(t *testing.T) {
	pool := openTestDB(t)
	id := insertUser(t, pool, "u@x.com", true)

	s, err := NewSettingsRepository(pool).GetNotificationSettings(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSettingsRepository_UpsertBlankOverrideStoresNull(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	repo := NewSettingsRepository(pool)
	id := insertUser(t, pool, "u@x.com", true)

	blank := "   "
	stored, err := repo.UpsertNotificationSettings(ctx, &model.NotificationSettings{
		UserID: id, DaysBeforeExpiration: 14, SendToEmail: true, NotificationTime: "18:30", EmailAddress: &blank,
	})
	require.NoError(t, err)
	assert.Nil(t, stored.EmailAddress)
	assert.Equal(t, "18:30", stored.NotificationTime)

	stored, err = repo.UpsertNotificationSettings(ctx, &model.NotificationSettings{
		UserID: id, DaysBeforeExpiration: 7, SendToEmail: false, NotificationTime: "06:00",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, stored.DaysBeforeExpiration)
	assert.False(t, stored.SendToEmail)
}

func TestLicenseRepository_ListExpiringCandidatesAndMarkNotified(t *testing.T) {
	pool := openTestDB(t)
	ctx := context.Background()
	repo := NewLicenseRepository(pool)

	var vendorID int64
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO vendors (name) VALUES ('Acme') RETURNING id`).Scan(&vendorID))

	today := time.Now().UTC().Truncate(24 * time.Hour)
	insert := func(name string, offsetDays int, active, sent bool) int64 {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO licenses (name, vendor_id, expiration_date, is_active, notification_sent)
			VALUES ($1, $2, $3::date, $4, $5) RETURNING id`,
			name, vendorID, today.AddDate(0, 0, offsetDays).Format("2006-01-02"), active, sent).Scan(&id)
		require.NoError(t, err)
		return id
	}
	expired := insert("expired", -2, true, false)
	soon := insert("soon", 5, true, true)
	insert("far", 90, true, false)
	inactive := insert("inactive", 1, false, false)

	cutoff := today.AddDate(0, 0, 30)

	all, err := repo.ListExpiringCandidates(ctx, cutoff, false, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "Acme", all[0].VendorName)

	active, err := repo.ListExpiringCandidates(ctx, cutoff, true, false)
	require.NoError(t, err)
	for _, l := range active {
		assert.NotEqual(t, inactive, l.ID)
	}

	unnotified, err := repo.ListExpiringCandidates(ctx, cutoff, false, true)
	require.NoError(t, err)
	for _, l := range unnotified {
		assert.NotEqual(t, soon, l.ID)
	}

	require.NoError(t, repo.MarkNotified(ctx, expired))
	var sent bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT notification_sent FROM licenses WHERE id = $1`, expired).Scan(&sent))
	assert.True(t, sent)

	assert.Error(t, repo.MarkNotified(ctx, 999999))
}
