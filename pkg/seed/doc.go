// Package seed applies a declarative YAML description of permissions, roles
// and subject grants to an rbac store.
//
// Example file:
//
//	permissions:
//	  - name: posts.edit
//	    description: Edit any post
//	  - posts.view
//	roles:
//	  - name: editor
//	    permissions: [posts.edit, posts.view]
//	subjects:
//	  - type: User
//	    id: "42"
//	    roles: [editor]
//
// Roles and subjects listed in the file end up with exactly the permissions
// and roles the file names. Anything the file does not mention is left alone.
package seed
