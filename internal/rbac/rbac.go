// Package rbac decides what a space member may do based on their role in that space.
package rbac

type Role string
type Action string

const (
	RoleNone      Role = ""
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead     Action = "read"
	ActionPost     Action = "post"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return action == ActionRead || action == ActionPost || action == ActionModerate
	case RoleMember:
		return action == ActionRead || action == ActionPost
	default:
		return false
	}
}

// Normalize maps unknown stored roles to RoleNone so they grant nothing.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleNone
	}
}
