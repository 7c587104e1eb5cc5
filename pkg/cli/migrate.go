package cli

import (
	"context"
	"fmt"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/seed"
)

func (a *App) newMigrateCommand() *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Create or upgrade the store schema",
		Flags:       a.flagSet("migrate"),
	}
	store := addStoreFlags(cmd.Flags)

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		return a.withManager(ctx, store, func(*rbac.Manager) error {
			a.printf("Schema is up to date\n")
			return nil
		})
	}
	return cmd
}

func (a *App) newSeedCommand() *Command {
	cmd := &Command{
		Name:        "seed",
		Description: "Apply a permissions and roles seed file",
		Flags:       a.flagSet("seed"),
	}
	store := addStoreFlags(cmd.Flags)
	file := cmd.Flags.String("file", "", "Seed file (YAML)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			return fmt.Errorf("-file is required")
		}
		return a.withManager(ctx, store, func(m *rbac.Manager) error {
			result, err := seed.NewApplier(m, a.logger).ApplyFile(ctx, *file)
			if err != nil {
				return err
			}
			a.printf("Permissions: %d created, %d updated\n", result.PermissionsCreated, result.PermissionsUpdated)
			a.printf("Roles: %d created, %d updated\n", result.RolesCreated, result.RolesUpdated)
			a.printf("Subjects: %d synced\n", result.SubjectsSynced)
			return nil
		})
	}
	return cmd
}
