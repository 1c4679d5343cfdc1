package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleUser, PermissionSendTestEmail))
	assert.False(t, HasPermission(RoleUser, PermissionRefreshAnySchedule))
	assert.True(t, HasPermission(RoleAdmin, PermissionRefreshAnySchedule))
	assert.False(t, HasPermission("", PermissionRunAdminSweep))
	assert.True(t, HasPermission("unknown", PermissionManageOwnSettings))
}

func TestCheckPermission(t *testing.T) {
	err := CheckPermission(7, RoleUser, PermissionPreviewExpiring)
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
	assert.Equal(t, int64(7), denied.UserID)

	assert.NoError(t, CheckPermission(7, RoleAdmin, PermissionPreviewExpiring))
}
