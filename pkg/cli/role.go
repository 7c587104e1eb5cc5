package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func (a *App) newRoleCommand() *Command {
	return a.group("role", "Manage roles",
		a.newRoleListCommand(),
		a.newRoleCreateCommand(),
		a.newRoleDeleteCommand(),
		a.newRolePermissionsCommand("assign", "Add permissions to a role: assign <role> <permission>...",
			func(ctx context.Context, m *rbac.Manager, role *rbac.Role, names []string) error {
				return m.Roles().AssignPermissionsByName(ctx, role, names)
			}),
		a.newRolePermissionsCommand("sync", "Replace a role's permissions: sync <role> [permission]...",
			func(ctx context.Context, m *rbac.Manager, role *rbac.Role, names []string) error {
				return m.Roles().SyncPermissions(ctx, role, rbac.Names(names...))
			}),
	)
}

func (a *App) newRoleListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List roles and their permissions",
		Flags:       a.flagSet("role list"),
	}
	store := addStoreFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			roles, err := m.Roles().ListAll(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPERMISSIONS\tDESCRIPTION")
			for _, r := range roles {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, strings.Join(permissionNames(r), ","), r.Description)
			}
			return tw.Flush()
		})
	}
	return cmd
}

func (a *App) newRoleCreateCommand() *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create a role: create [-description text] [-permissions a,b] <name>",
		Flags:       a.flagSet("role create"),
	}
	store := addStoreFlags(cmd.Flags)
	description := cmd.Flags.String("description", "", "Role description")
	permissions := cmd.Flags.String("permissions", "", "Comma separated permission names")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: role create [-description text] [-permissions a,b] <name>")
		}
		names := splitList(*permissions)
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			if len(names) > 0 {
				if _, err := m.Permissions().ResolveAll(ctx, rbac.Names(names...)); err != nil {
					return err
				}
			}
			role, err := m.Roles().Create(ctx, cmd.Flags.Arg(0), *description)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				if err := m.Roles().AssignPermissionsByName(ctx, role, names); err != nil {
					return err
				}
			}
			a.printf("Created role %s with %d permissions\n", role.Name, role.PermissionCount())
			return nil
		})
	}
	return cmd
}

func (a *App) newRoleDeleteCommand() *Command {
	cmd := &Command{
		Name:        "delete",
		Description: "Delete a role and every grant of it",
		Flags:       a.flagSet("role delete"),
	}
	store := addStoreFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: role delete <name>")
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			role, err := m.Roles().FindByName(ctx, cmd.Flags.Arg(0))
			if err != nil {
				return err
			}
			if err := m.Roles().Delete(ctx, role); err != nil {
				return err
			}
			a.printf("Deleted role %s\n", role.Name)
			return nil
		})
	}
	return cmd
}

func (a *App) newRolePermissionsCommand(name, description string, change func(context.Context, *rbac.Manager, *rbac.Role, []string) error) *Command {
	cmd := &Command{
		Name:        name,
		Description: description,
		Flags:       a.flagSet("role " + name),
	}
	store := addStoreFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() < 1 {
			return fmt.Errorf("usage: role %s <role> [permission]...", name)
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			role, err := m.Roles().FindByName(ctx, cmd.Flags.Arg(0))
			if err != nil {
				return err
			}
			if err := change(ctx, m, role, cmd.Flags.Args()[1:]); err != nil {
				return err
			}
			a.printf("Role %s: %s\n", role.Name, strings.Join(permissionNames(role), ","))
			return nil
		})
	}
	return cmd
}

func permissionNames(role *rbac.Role) []string {
	perms := role.Permissions()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
