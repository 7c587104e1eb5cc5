// Package api exposes the RBAC manager over HTTP. The OpenAPI document is
// served at /openapi.yaml, /openapi.json and /api-docs.
//
// Routes live under /v1:
//
//	POST   /v1/check                                    decide a permission check
//	GET    /v1/permissions                              list permissions
//	POST   /v1/permissions                              create a permission
//	GET    /v1/permissions/{name}                       get a permission
//	PUT    /v1/permissions/{name}                       rename or redescribe
//	DELETE /v1/permissions/{name}                       delete a permission
//	GET    /v1/roles                                    list roles
//	POST   /v1/roles                                    create a role
//	GET    /v1/roles/{name}                             get a role
//	PUT    /v1/roles/{name}                             rename or redescribe
//	DELETE /v1/roles/{name}                             delete a role
//	POST   /v1/roles/{name}/permissions                 add permissions
//	PUT    /v1/roles/{name}/permissions                 replace permissions
//	DELETE /v1/roles/{name}/permissions                 revoke all permissions
//	DELETE /v1/roles/{name}/permissions/{permission}    revoke one permission
//	GET    /v1/subjects/{type}/{id}/roles               roles held by a subject
//	PUT    /v1/subjects/{type}/{id}/roles               replace a subject's roles
//	GET    /v1/subjects/{type}/{id}/roles/{role}        does the subject hold role
//	POST   /v1/subjects/{type}/{id}/roles/{role}        assign a role
//	DELETE /v1/subjects/{type}/{id}/roles/{role}        remove a role
//	GET    /v1/subjects/{type}/{id}/permissions         direct permissions
//	PUT    /v1/subjects/{type}/{id}/permissions         replace direct permissions
//	POST   /v1/subjects/{type}/{id}/permissions/{name}  grant a permission
//	DELETE /v1/subjects/{type}/{id}/permissions/{name}  revoke a permission
//	GET    /v1/subjects/{type}/{id}/effective-permissions
//	GET    /v1/stats
//
// Callers identify themselves with the X-Subject-Type and X-Subject-Id
// headers. When the server is built WithAdminPermission, every route except
// /v1/check requires the caller to hold that permission.
package api
