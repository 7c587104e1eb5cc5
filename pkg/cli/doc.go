// Package cli implements the gatekeeper administration tool.
//
// Every command talks to the store directly. The backend comes from the
// GATEKEEPER_* environment (see pkg/config) and can be overridden per
// command with -driver, -database-url and -redis-url. Flags go before
// positional arguments.
//
//	gatekeeper migrate -driver postgres -database-url postgres://localhost/rbac
//	gatekeeper seed -file rbac.yaml
//	gatekeeper permission create -description "Edit posts" posts.edit
//	gatekeeper role create -permissions posts.view,posts.edit editor
//	gatekeeper role sync editor posts.view
//	gatekeeper grant role User 42 editor
//	gatekeeper check -any User 42 posts.edit posts.delete
//
// check prints "allowed" or "denied" and fails with ErrDenied on denial so
// scripts can use the exit status.
package cli
