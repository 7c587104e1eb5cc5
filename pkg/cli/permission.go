package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

func (a *App) newPermissionCommand() *Command {
	return a.group("permission", "Manage permissions",
		a.newPermissionListCommand(),
		a.newPermissionCreateCommand(),
		a.newPermissionDeleteCommand(),
	)
}

func (a *App) newPermissionListCommand() *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List permissions",
		Flags:       a.flagSet("permission list"),
	}
	store := addStoreFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			perms, err := m.Permissions().ListAll(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, p := range perms {
				fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Description)
			}
			return tw.Flush()
		})
	}
	return cmd
}

func (a *App) newPermissionCreateCommand() *Command {
	cmd := &Command{
		Name:        "create",
		Description: "Create a permission: create [-description text] <name>",
		Flags:       a.flagSet("permission create"),
	}
	store := addStoreFlags(cmd.Flags)
	description := cmd.Flags.String("description", "", "Permission description")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: permission create [-description text] <name>")
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			perm, err := m.Permissions().Create(ctx, cmd.Flags.Arg(0), *description)
			if err != nil {
				return err
			}
			a.printf("Created permission %s\n", perm.Name)
			return nil
		})
	}
	return cmd
}

func (a *App) newPermissionDeleteCommand() *Command {
	cmd := &Command{
		Name:        "delete",
		Description: "Delete a permission and every grant of it",
		Flags:       a.flagSet("permission delete"),
	}
	store := addStoreFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: permission delete <name>")
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			perm, err := m.Permissions().FindByName(ctx, cmd.Flags.Arg(0))
			if err != nil {
				return err
			}
			if err := m.Permissions().Delete(ctx, perm); err != nil {
				return err
			}
			a.printf("Deleted permission %s\n", perm.Name)
			return nil
		})
	}
	return cmd
}
