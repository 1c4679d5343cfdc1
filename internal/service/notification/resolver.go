package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"licensewatch/internal/model"
	"licensewatch/internal/repository"
)

var ErrNoRecipient = errors.New("no recipient address")

// Recipient sources
const (
	SourceAdmin    = "admin_fallback"
	SourceOverride = "settings_override"
	SourceLogin    = "login_email"
)

type Recipient struct {
	Address string
	UserID  *int64
	// Source records which rule produced Address.
	Source string
}

type resolved struct {
	recipient Recipient
	err       error
}

// Resolver maps (license, user) to an address. Results are memoized per user,
// so build one Resolver per pipeline run.
type Resolver struct {
	users      UserStore
	settings   SettingsStore
	adminEmail string

	mu   sync.Mutex
	memo map[int64]resolved
}

func NewResolver(users UserStore, settings SettingsStore, adminEmail string) *Resolver {
	return &Resolver{
		users:      users,
		settings:   settings,
		adminEmail: strings.TrimSpace(adminEmail),
		memo:       make(map[int64]resolved),
	}
}

// Resolve returns ErrNoRecipient when neither an override, a login email
// nor (for unscoped runs) an admin address is available. The license does
// not influence the result: licenses carry no owner.
func (r *Resolver) Resolve(ctx context.Context, _ model.ExpiringLicense, userID *int64) (Recipient, error) {
	if userID == nil {
		if r.adminEmail == "" {
			return Recipient{}, fmt.Errorf("%w: admin email not configured", ErrNoRecipient)
		}
		return Recipient{Address: r.adminEmail, Source: SourceAdmin}, nil
	}

	id := *userID
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit, ok := r.memo[id]; ok {
		return hit.recipient, hit.err
	}

	rcpt, err := r.lookup(ctx, id)
	if err != nil && !errors.Is(err, ErrNoRecipient) {
		// store failures are not memoized
		return Recipient{}, err
	}
	r.memo[id] = resolved{recipient: rcpt, err: err}
	return rcpt, err
}

func (r *Resolver) lookup(ctx context.Context, userID int64) (Recipient, error) {
	uid := userID

	settings, err := r.settings.GetNotificationSettings(ctx, userID)
	if err != nil {
		return Recipient{}, fmt.Errorf("failed to load notification settings: %w", err)
	}
	if addr := settings.OverrideAddress(); addr != "" {
		return Recipient{Address: addr, UserID: &uid, Source: SourceOverride}, nil
	}

	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Recipient{}, fmt.Errorf("%w: user %d not found", ErrNoRecipient, userID)
		}
		return Recipient{}, fmt.Errorf("failed to load user: %w", err)
	}
	if addr := strings.TrimSpace(user.Email); addr != "" {
		return Recipient{Address: addr, UserID: &uid, Source: SourceLogin}, nil
	}
	return Recipient{}, fmt.Errorf("%w: user %d has no email", ErrNoRecipient, userID)
}
