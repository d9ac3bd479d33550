package rbac

import "github.com/tsiken/backend/internal/models"

// Permission constants
const (
	PermViewOwnLogs      = "view_own_logs"
	PermViewAllLogs      = "view_all_logs"
	PermExportLogs       = "export_logs"
	PermManageUsers      = "manage_users"
	PermCaptureDetection = "capture_detection"
	PermReviewDetection  = "review_detection"
	PermDeleteDetection  = "delete_detection"
	PermRecordSensor     = "record_sensor"
	PermManageSchedules  = "manage_schedules"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	models.RoleAdmin: {
		PermViewOwnLogs, PermViewAllLogs, PermExportLogs, PermManageUsers,
		PermCaptureDetection, PermReviewDetection, PermDeleteDetection, PermRecordSensor,
		PermManageSchedules,
	},
	models.RoleUser: {
		PermViewOwnLogs, PermCaptureDetection, PermReviewDetection, PermRecordSensor,
		PermManageSchedules,
		// User CANNOT: PermViewAllLogs, PermExportLogs, PermManageUsers, PermDeleteDetection
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// RequiresAdminSession reports whether permission needs an active admin
// session on the calling device in addition to the admin role.
func RequiresAdminSession(permission string) bool {
	return permission == PermViewAllLogs || permission == PermExportLogs || permission == PermManageUsers
}
