// Package middleware provides HTTP middleware that identifies the calling
// subject and enforces permission checks against it.
//
// SubjectMiddleware reads the subject from the X-Subject-Type and
// X-Subject-Id headers, which must be set by a trusted component in front of
// the server:
//
//	router.Use(middleware.SubjectFromHeaders(false))
//
// PermissionMiddleware guards routes using the rbac Checker:
//
//	pm := middleware.NewPermissionMiddleware(manager.Checker(), manager.Roles())
//	router.Handle("/posts/{id}", pm.RequirePermission("posts.edit")(editHandler))
//	router.Handle("/reports", pm.RequireAnyPermission("reports.read", "reports.admin")(reports))
//
// Responses: 401 when no subject is present, 403 when the check denies,
// 503 when the store is unreachable, 500 when the guard names a permission
// that does not exist.
package middleware
