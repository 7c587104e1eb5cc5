package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// ErrDenied is returned by check when the subject lacks the permissions
var ErrDenied = errors.New("permission denied")

func (a *App) newGrantCommand() *Command {
	return a.group("grant", "Grant a role or permission to a subject",
		a.newSubjectCommand("role", "Assign a role: role <type> <id> <role>",
			func(ctx context.Context, m *rbac.Manager, subject rbac.Subject, name string) error {
				return m.Roles().AssignRoleTo(ctx, subject, name)
			}),
		a.newSubjectCommand("permission", "Grant a permission directly: permission <type> <id> <permission>",
			func(ctx context.Context, m *rbac.Manager, subject rbac.Subject, name string) error {
				return m.Permissions().AssignPermissionTo(ctx, subject, rbac.PermissionName(name))
			}),
	)
}

func (a *App) newRevokeCommand() *Command {
	return a.group("revoke", "Remove a role or permission from a subject",
		a.newSubjectCommand("role", "Remove a role: role <type> <id> <role>",
			func(ctx context.Context, m *rbac.Manager, subject rbac.Subject, name string) error {
				return m.Roles().RemoveRoleFrom(ctx, subject, name)
			}),
		a.newSubjectCommand("permission", "Revoke a direct permission: permission <type> <id> <permission>",
			func(ctx context.Context, m *rbac.Manager, subject rbac.Subject, name string) error {
				return m.Permissions().RevokePermissionFrom(ctx, subject, rbac.PermissionName(name))
			}),
	)
}

func (a *App) newSubjectCommand(name, description string, apply func(context.Context, *rbac.Manager, rbac.Subject, string) error) *Command {
	cmd := &Command{
		Name:        name,
		Description: description,
		Flags:       a.flagSet(name),
	}
	store := addStoreFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 3 {
			return fmt.Errorf("usage: %s <type> <id> <name>", name)
		}
		subject := rbac.Subject{Type: cmd.Flags.Arg(0), ID: cmd.Flags.Arg(1)}
		if err := subject.Validate(); err != nil {
			return err
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			if err := apply(ctx, m, subject, cmd.Flags.Arg(2)); err != nil {
				return err
			}
			a.printf("%s: %s %s\n", subject, name, cmd.Flags.Arg(2))
			return nil
		})
	}
	return cmd
}

func (a *App) newCheckCommand() *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Check a subject's permissions: check [-any] <type> <id> <permission>...",
		Flags:       a.flagSet("check"),
	}
	store := addStoreFlags(cmd.Flags)
	anyOf := cmd.Flags.Bool("any", false, "Allow when any permission is held instead of all")
	effective := cmd.Flags.Bool("effective", false, "List every permission the subject holds")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() < 2 || (!*effective && cmd.Flags.NArg() < 3) {
			return fmt.Errorf("usage: check [-any] <type> <id> <permission>... | check -effective <type> <id>")
		}
		subject := rbac.Subject{Type: cmd.Flags.Arg(0), ID: cmd.Flags.Arg(1)}
		if err := subject.Validate(); err != nil {
			return err
		}

		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			checker := m.Checker()
			if *effective {
				perms, err := checker.EffectivePermissions(ctx, subject)
				if err != nil {
					return err
				}
				names := make([]string, len(perms))
				for i, p := range perms {
					names[i] = p.Name
				}
				a.printf("%s: %s\n", subject, strings.Join(names, ","))
				return nil
			}

			refs := rbac.Names(cmd.Flags.Args()[2:]...)
			var allowed bool
			var err error
			if *anyOf {
				allowed, err = checker.HasAnyPermission(ctx, subject, refs)
			} else {
				allowed, err = checker.HasAllPermissions(ctx, subject, refs)
			}
			if err != nil {
				return err
			}
			if !allowed {
				a.printf("denied\n")
				return ErrDenied
			}
			a.printf("allowed\n")
			return nil
		})
	}
	return cmd
}
