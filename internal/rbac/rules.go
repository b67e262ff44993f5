package rbac

const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleLearner: {
		"lesson:view",
		"session:start",
		"session:play",
		"session:view-own",
		"media:view",
		"user:change_password",
	},
	RoleInstructor: {
		"lesson:create",
		"lesson:view",
		"lesson:delete_own",
		"lesson:validate",
		"session:start",
		"session:play",
		"session:view-all",
		"media:upload",
		"media:view",
		"users:bulk_upsert",
		"users:list",
		"user:change_password",
	},
	RoleAdmin: {
		"*",
	},
}

// ValidRole reports whether role is one the default policy knows.
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
