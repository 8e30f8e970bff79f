// Package commands implements the CLI commands for knot.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/knot/internal/app"
	"go.trai.ch/knot/internal/build"
)

// CLI represents the command line interface for knot.
type CLI struct {
	app     Application
	log     LogSettings
	rootCmd *cobra.Command

	verbosity int
	logJSON   bool
}

// Application represents the application logic interface.
type Application interface {
	Check(ctx context.Context, opts app.CheckOptions) error
}

// LogSettings receives the global logging flags.
type LogSettings interface {
	SetVerbosity(count int)
	SetJSON(enable bool)
}

// New creates a new CLI instance with the given app.
func New(a Application, log LogSettings) *CLI {
	rootCmd := &cobra.Command{
		Use:           "knot",
		Short:         "An incremental import checker for Python workspaces",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c := &CLI{
		app:     a,
		log:     log,
		rootCmd: rootCmd,
	}

	rootCmd.PersistentFlags().CountVarP(&c.verbosity, "verbose", "v",
		"Increase log verbosity (-v info, -vv debug, -vvv debug with metrics)")
	rootCmd.PersistentFlags().BoolVar(&c.logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		c.log.SetVerbosity(c.verbosity)
		c.log.SetJSON(c.logJSON)
	}

	rootCmd.AddCommand(c.newCheckCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
