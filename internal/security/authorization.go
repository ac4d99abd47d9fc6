package security

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// ErrForbidden is returned when a role lacks a permission
var ErrForbidden = errors.New("forbidden")

// Role represents a user role
type Role string

const (
	RolePlatformAdmin Role = "platform_admin"
	RoleTenantAdmin   Role = "tenant_admin"
	RoleRiskManager   Role = "risk_manager"
	RoleAuditor       Role = "auditor"
	RoleViewer        Role = "viewer"
)

// Permission represents an action permission
type Permission string

const (
	PermManageCatalog      Permission = "manage_catalog"
	PermReadCatalog        Permission = "read_catalog"
	PermManageSubscription Permission = "manage_subscription"
	PermReadSubscription   Permission = "read_subscription"
	PermConsumeQuota       Permission = "consume_quota"
	PermManageQuota        Permission = "manage_quota"
	PermReadQuota          Permission = "read_quota"
	PermWriteRisk          Permission = "write_risk"
	PermReadRisk           Permission = "read_risk"
	PermWriteTask          Permission = "write_task"
	PermApproveTask        Permission = "approve_task"
	PermReadTask           Permission = "read_task"
	PermStreamEvents       Permission = "stream_events"
)

var readOnly = []Permission{
	PermReadCatalog, PermReadSubscription, PermReadQuota, PermReadRisk, PermReadTask,
}

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RolePlatformAdmin: append(slices.Clone(readOnly),
		PermManageCatalog, PermManageSubscription, PermConsumeQuota, PermManageQuota,
		PermWriteRisk, PermWriteTask, PermApproveTask, PermStreamEvents,
	),
	RoleTenantAdmin: append(slices.Clone(readOnly),
		PermManageSubscription, PermConsumeQuota, PermManageQuota,
		PermWriteRisk, PermWriteTask, PermApproveTask, PermStreamEvents,
	),
	RoleRiskManager: append(slices.Clone(readOnly),
		PermConsumeQuota, PermWriteRisk, PermWriteTask, PermApproveTask, PermStreamEvents,
	),
	RoleAuditor: append(slices.Clone(readOnly),
		PermConsumeQuota, PermApproveTask, PermStreamEvents,
	),
	RoleViewer: slices.Clone(readOnly),
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{logger: logger}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role Role, permission Permission) bool {
	return slices.Contains(RolePermissions[role], permission)
}

// ValidatePermission validates that a role has a specific permission
func (as *AuthorizationService) ValidatePermission(role Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", ErrForbidden, role, permission)
	}
	return nil
}

// GetRolePermissions returns all permissions for a role
func (as *AuthorizationService) GetRolePermissions(role Role) []Permission {
	return RolePermissions[role]
}
