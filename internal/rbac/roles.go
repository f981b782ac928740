package rbac

// Role names. Keep these stable; they are stored on user rows and in tokens.
const (
	RoleStaff     = "staff"
	RoleSuperuser = "superuser"
)

func IsSuperuser(role string) bool { return role == RoleSuperuser }

func IsKnownRole(role string) bool { return role == RoleStaff || role == RoleSuperuser }
