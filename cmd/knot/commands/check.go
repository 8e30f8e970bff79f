package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/knot/internal/app"
	"go.trai.ch/knot/internal/core/domain"
)

func (c *CLI) newCheckCmd() *cobra.Command {
	var opts app.CheckOptions
	targetVersion := domain.DefaultPythonVersion

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the imports of the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("target-version") {
				opts.TargetVersion = &targetVersion
			}
			opts.Verbosity = c.verbosity
			return c.app.Check(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.CurrentDirectory, "current-directory", "",
		"Directory to search for the workspace (defaults to the working directory)")
	flags.StringVar(&opts.CustomTypeshed, "custom-typeshed-dir", "",
		"Typeshed directory to use instead of the bundled stubs")
	flags.StringArrayVar(&opts.ExtraSearchPaths, "extra-search-path", nil,
		"Additional module search path, consulted before the workspace (repeatable)")
	flags.StringArrayVar(&opts.SitePackages, "site-packages", nil,
		"Site-packages directory, consulted last (repeatable)")
	flags.Var(&targetVersion, "target-version", "Python version to check against")
	flags.BoolVarP(&opts.Watch, "watch", "W", false, "Re-check the workspace whenever a file changes")
	return cmd
}
