// Package cli is the command-line front end of the helper. Every command
// resolves an app.Runner and calls one or more orchestrator operations.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-helper/internal/app"
	"github.com/rancher/cherry-pick-helper/internal/repo"
)

var version = "dev"

// App holds the global flags and the dependency resolver, and builds the
// command tree.
type App struct {
	resolveRunner func(cmd *cobra.Command) (*app.Runner, error)

	configPath string
	repoPath   string
	verbose    bool
	dryRun     bool
	format     string
}

// NewApp creates an App with the default resolver.
func NewApp() *App {
	a := &App{}
	a.resolveRunner = a.defaultResolveRunner
	return a
}

// BuildRootCmd builds the complete CLI command tree.
func (a *App) BuildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cherry-pick-helper",
		Short:         "Compare branches and cherry-pick the missing commits",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(a.format)
			if err != nil {
				return err
			}
			setColors(f == formatTable)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("cherry-pick-helper version %s\n", version))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default <user config dir>/cherry-pick-helper/config.yaml)")
	flags.StringVarP(&a.repoPath, "repo", "C", "", "Repository path, overrides repository_path")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&a.dryRun, "dry-run", false, "Log repository mutations instead of running them")
	flags.StringVarP(&a.format, "format", "o", string(formatTable), "Output format: table, json or markdown")

	rootCmd.AddCommand(a.branchesCmd())
	rootCmd.AddCommand(a.commitsCmd())
	rootCmd.AddCommand(a.diffCmd())
	rootCmd.AddCommand(a.applyCmd())
	rootCmd.AddCommand(a.pickCmd())
	rootCmd.AddCommand(a.syncCmd())
	rootCmd.AddCommand(a.checkoutCmd())
	rootCmd.AddCommand(a.pullCmd())
	rootCmd.AddCommand(a.statusCmd())
	rootCmd.AddCommand(a.currentCmd())
	rootCmd.AddCommand(a.remotesCmd())
	rootCmd.AddCommand(a.configCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewApp().BuildRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

func (a *App) configFile() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return app.DefaultConfigPath()
}

func (a *App) defaultResolveRunner(cmd *cobra.Command) (*app.Runner, error) {
	path, err := a.configFile()
	if err != nil {
		return nil, err
	}
	cfg, err := app.Load(path)
	if err != nil {
		return nil, err
	}
	if a.repoPath != "" {
		cfg.RepositoryPath = a.repoPath
	}
	if a.dryRun {
		cfg.DryRun = true
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	return app.NewRunner(cfg, cmd.ErrOrStderr())
}

// withRepo resolves the runner and opens the configured repository.
func (a *App) withRepo(cmd *cobra.Command, fn func(r *app.Runner, h repo.Handle) error) error {
	r, err := a.resolveRunner(cmd)
	if err != nil {
		return err
	}
	h, err := r.Repository()
	if err != nil {
		return err
	}
	return fn(r, h)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cherry-pick-helper version %s\n", version)
			return err
		},
	}
}
