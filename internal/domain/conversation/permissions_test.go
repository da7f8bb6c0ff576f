package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAllows(t *testing.T) {
	assert.True(t, RoleAllows(RoleAdmin, ActionAddParticipants))
	assert.True(t, RoleAllows(RoleModerator, ActionAddParticipants))
	assert.False(t, RoleAllows(RoleMember, ActionAddParticipants))

	assert.True(t, RoleAllows(RoleMember, ActionSendMessage))
	assert.False(t, RoleAllows(RoleReadOnly, ActionSendMessage))
	assert.False(t, RoleAllows(RoleMuted, ActionSendMessage))

	// Read-only participants can still react.
	assert.True(t, RoleAllows(RoleReadOnly, ActionReact))

	// Unknown roles get nothing.
	assert.False(t, RoleAllows("OWNER", ActionSendMessage))
}

func TestIsPrivileged(t *testing.T) {
	assert.True(t, IsPrivileged(RoleAdmin))
	assert.True(t, IsPrivileged(RoleModerator))
	assert.False(t, IsPrivileged(RoleMember))
}

func TestSettingsRoundTrip(t *testing.T) {
	s := DefaultSettings(TypeBroadcast)
	require.NotNil(t, s.Broadcast)
	assert.True(t, s.Broadcast.OnlyAdminsCanPost)
	assert.False(t, s.Broadcast.AllowReplies)

	raw, err := EncodeSettings(s)
	require.NoError(t, err)

	decoded, err := DecodeSettings(TypeBroadcast, raw)
	require.NoError(t, err)
	require.NotNil(t, decoded.Broadcast)
	assert.Equal(t, *s.Broadcast, *decoded.Broadcast)
	assert.Nil(t, decoded.Group)
}

func TestDecodeSettingsEmptyFallsBackToDefaults(t *testing.T) {
	decoded, err := DecodeSettings(TypeGroup, "")
	require.NoError(t, err)
	require.NotNil(t, decoded.Group)
	assert.True(t, decoded.Group.AllowReactions)
}
