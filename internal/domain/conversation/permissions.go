package conversation

// Action names a capability checked against a participant's role.
type Action string

const (
	ActionSendMessage     Action = "send_message"
	ActionAddParticipants Action = "add_participants"
	ActionChangeRoles     Action = "change_roles"
	ActionReact           Action = "react"
)

// permissionTable is the single source of truth for role capabilities.
// Roles absent from the table can do nothing.
var permissionTable = map[string]map[Action]bool{
	RoleAdmin: {
		ActionSendMessage:     true,
		ActionAddParticipants: true,
		ActionChangeRoles:     true,
		ActionReact:           true,
	},
	RoleModerator: {
		ActionSendMessage:     true,
		ActionAddParticipants: true,
		ActionReact:           true,
	},
	RoleMember: {
		ActionSendMessage: true,
		ActionReact:       true,
	},
	RoleReadOnly: {
		ActionReact: true,
	},
	RoleMuted: {},
}

// RoleAllows reports whether the role grants the action.
func RoleAllows(role string, action Action) bool {
	return permissionTable[role][action]
}

// IsPrivileged reports whether the role carries moderation powers.
func IsPrivileged(role string) bool {
	return role == RoleAdmin || role == RoleModerator
}
