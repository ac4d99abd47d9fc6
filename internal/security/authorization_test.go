package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRolePermissions(t *testing.T) {
	as := NewAuthorizationService(nil)

	assert.True(t, as.HasPermission(RolePlatformAdmin, PermManageCatalog))
	assert.False(t, as.HasPermission(RoleTenantAdmin, PermManageCatalog))
	assert.True(t, as.HasPermission(RoleRiskManager, PermWriteRisk))
	assert.False(t, as.HasPermission(RoleAuditor, PermWriteRisk))
	assert.True(t, as.HasPermission(RoleAuditor, PermApproveTask))
	assert.False(t, as.HasPermission(RoleViewer, PermConsumeQuota))
	assert.False(t, as.HasPermission("intruder", PermReadRisk))

	for role := range RolePermissions {
		assert.True(t, as.HasPermission(role, PermReadRisk), role)
	}

	err := as.ValidatePermission(RoleViewer, PermWriteTask)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestResourceAccess(t *testing.T) {
	a := NewResourceAuthorizer(nil)
	task := ResourcePermission{ResourceType: ResourceTask, ResourceID: "t1", OwnerID: "alice", Action: ActionDecide}

	assert.NoError(t, a.ValidateResourceAccess("alice", RoleAuditor, task))
	assert.ErrorIs(t, a.ValidateResourceAccess("bob", RoleAuditor, task), ErrForbidden)
	assert.NoError(t, a.ValidateResourceAccess("bob", RoleTenantAdmin, task))

	task.OwnerID = ""
	assert.NoError(t, a.ValidateResourceAccess("bob", RoleRiskManager, task))
}
