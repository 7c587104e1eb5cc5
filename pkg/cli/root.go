package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// App carries what every command shares
type App struct {
	out    io.Writer
	logger *observability.Logger
}

// Option configures the CLI
type Option func(*App)

// WithOutput sends command output to w instead of stdout
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithLogger sets the logger handed to the storage layer and the seed applier
func WithLogger(logger *observability.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// NewRootCommand creates the root command
func NewRootCommand(opts ...Option) *Command {
	app := &App{
		out:    os.Stdout,
		logger: observability.NewLogger(observability.WarnLevel, os.Stderr),
	}
	for _, opt := range opts {
		opt(app)
	}

	root := &Command{
		Name:        "gatekeeper",
		Description: "Gatekeeper - role based access control administration",
		Subcommands: make(map[string]*Command),
		Flags:       app.flagSet("gatekeeper"),
	}

	// Add subcommands
	root.Subcommands["migrate"] = app.newMigrateCommand()
	root.Subcommands["seed"] = app.newSeedCommand()
	root.Subcommands["permission"] = app.newPermissionCommand()
	root.Subcommands["role"] = app.newRoleCommand()
	root.Subcommands["grant"] = app.newGrantCommand()
	root.Subcommands["revoke"] = app.newRevokeCommand()
	root.Subcommands["check"] = app.newCheckCommand()

	return root
}

// Execute runs the command with the process arguments
func (c *Command) Execute() error {
	return c.ExecuteArgs(context.Background(), os.Args[1:])
}

// ExecuteArgs runs the command with args, dispatching to a subcommand when
// the first argument names one
func (c *Command) ExecuteArgs(ctx context.Context, args []string) error {
	if len(c.Subcommands) == 0 {
		return c.Run(ctx, args)
	}
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage()
	}

	// Check for subcommand
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.ExecuteArgs(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.Flags.Output()
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// group builds a command whose only job is to dispatch to subcommands
func (a *App) group(name, description string, subcommands ...*Command) *Command {
	cmd := &Command{
		Name:        name,
		Description: description,
		Subcommands: make(map[string]*Command, len(subcommands)),
		Flags:       a.flagSet(name),
	}
	for _, sub := range subcommands {
		cmd.Subcommands[sub.Name] = sub
	}
	return cmd
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}
