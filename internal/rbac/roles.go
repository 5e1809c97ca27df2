package rbac

// Role names. Keep these stable; they are part of auth contracts and are
// persisted on user records.
const (
	RoleTutor   = "tutor"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RoleTutor, RoleStudent, RoleAdmin:
		return true
	default:
		return false
	}
}
