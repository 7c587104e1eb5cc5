package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEvent_ToJSON(t *testing.T) {
	event := &AuditEvent{
		ID:           "c0ffee",
		Timestamp:    time.Now().UTC(),
		EventType:    EventTypeAdminRoleCreate,
		Status:       EventStatusSuccess,
		Actor:        "User:1",
		ResourceType: ResourceTypeRole,
		ResourceName: "editor",
		Changes: &ChangeDetails{
			After: map[string]interface{}{"description": "Writes posts"},
		},
	}

	jsonData, err := event.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"event_type":"admin.role_create"`)

	parsed, err := FromJSON(jsonData)
	require.NoError(t, err)
	assert.Equal(t, event.ID, parsed.ID)
	assert.Equal(t, event.Actor, parsed.Actor)
	assert.Equal(t, "Writes posts", parsed.Changes.After["description"])
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("{"))
	assert.Error(t, err)
}
