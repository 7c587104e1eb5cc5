// Package audit records authorization decisions and administrative changes
// to permissions, roles and subject grants.
//
// Handlers log through the Logger stored in the request context, which is a
// no-op when auditing is disabled:
//
//	ctx = audit.WithLogger(ctx, fileLogger)
//	audit.LogSuccess(ctx, audit.EventTypeAdminRoleCreate, audit.ResourceTypeRole, role.Name, nil)
//
// FileLogger writes one JSON object per line and can rotate by size.
package audit
