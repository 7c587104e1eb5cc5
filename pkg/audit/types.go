package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization decisions
	EventTypeAuthzPermissionCheck EventType = "authz.permission_check"
	EventTypeAuthzAccessDenied    EventType = "authz.access_denied"

	// Subject grants
	EventTypeGrantRoleAssign       EventType = "grant.role_assign"
	EventTypeGrantRoleRemove       EventType = "grant.role_remove"
	EventTypeGrantRoleSync         EventType = "grant.role_sync"
	EventTypeGrantPermissionAssign EventType = "grant.permission_assign"
	EventTypeGrantPermissionRevoke EventType = "grant.permission_revoke"
	EventTypeGrantPermissionSync   EventType = "grant.permission_sync"

	// Permission and role administration
	EventTypeAdminPermissionCreate EventType = "admin.permission_create"
	EventTypeAdminPermissionUpdate EventType = "admin.permission_update"
	EventTypeAdminPermissionDelete EventType = "admin.permission_delete"
	EventTypeAdminRoleCreate       EventType = "admin.role_create"
	EventTypeAdminRoleUpdate       EventType = "admin.role_update"
	EventTypeAdminRoleDelete       EventType = "admin.role_delete"
	EventTypeAdminRolePermissions  EventType = "admin.role_permissions"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being changed or checked
type ResourceType string

const (
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeSubject    ResourceType = "subject"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// Core fields
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is the subject that made the request, as "type:id"
	Actor string `json:"actor,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	// Request context
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}
