package rbac

// Permissions
const (
	PermissionManageOwnSettings  = "settings:manage_own"
	PermissionSendTestEmail      = "notification:test"
	PermissionRefreshOwnSchedule = "schedule:refresh_own"
	PermissionRefreshAnySchedule = "schedule:refresh_any"
	PermissionPreviewExpiring    = "license:preview_expiring"
	PermissionRunAdminSweep      = "notification:run_admin"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionManageOwnSettings,
		PermissionSendTestEmail,
		PermissionRefreshOwnSchedule,
	},
	RoleAdmin: {
		PermissionManageOwnSettings,
		PermissionSendTestEmail,
		PermissionRefreshOwnSchedule,
		PermissionRefreshAnySchedule,
		PermissionPreviewExpiring,
		PermissionRunAdminSweep,
	},
}

// NormalizeRole maps an empty or unknown role claim to RoleUser.
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleUser
}

// HasPermission reports whether role grants permission
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[NormalizeRole(role)] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission is HasPermission returning an error
func CheckPermission(userID int64, role string, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError is returned when a role lacks a permission
type PermissionDeniedError struct {
	UserID     int64
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
