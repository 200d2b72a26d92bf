package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-helper/internal/app"
	"github.com/rancher/cherry-pick-helper/internal/repo"
)

func (a *App) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(a.configShowCmd())
	cmd.AddCommand(a.configSetRepoCmd())
	cmd.AddCommand(a.configSetTokenCmd())
	cmd.AddCommand(a.configResetCmd())
	return cmd
}

func (a *App) configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, then environment)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configFile()
			if err != nil {
				return err
			}
			cfg, err := app.Load(path)
			if err != nil {
				return err
			}
			if a.repoPath != "" {
				cfg.RepositoryPath = a.repoPath
			}
			return a.printConfig(cmd.OutOrStdout(), path, cfg.Redacted())
		},
	}
}

func (a *App) configSetRepoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-repo <path>",
		Short: "Save the repository the helper works on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := repo.Open(args[0])
			if err != nil {
				return err
			}
			return a.updateConfig(cmd, func(cfg *app.Config) {
				cfg.RepositoryPath = h.Path()
			}, fmt.Sprintf("Repository set to %s", h.Path()))
		},
	}
}

func (a *App) configSetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token [token|-]",
		Short: "Save the GitHub token; '-' or no argument reads it from stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 && args[0] != "-" {
				token = args[0]
			} else {
				read, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = read
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty token")
			}
			return a.updateConfig(cmd, func(cfg *app.Config) {
				cfg.GitHub.Token = token
			}, "GitHub token saved")
		},
	}
}

func (a *App) configResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirmPrompt(cmd, "Discard the saved repository, token and all other settings?") {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return err
			}
			path, err := a.configFile()
			if err != nil {
				return err
			}
			if err := app.Save(path, app.DefaultConfig()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Configuration reset (%s)\n", path)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// updateConfig edits the saved file only; environment overrides are never
// written back.
func (a *App) updateConfig(cmd *cobra.Command, edit func(*app.Config), done string) error {
	path, err := a.configFile()
	if err != nil {
		return err
	}
	cfg, err := app.LoadFile(path)
	if err != nil {
		return err
	}
	edit(&cfg)
	if err := app.Save(path, cfg); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), green(done))
	return err
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return "", nil
}

type configJSON struct {
	File            string `json:"file"`
	RepositoryPath  string `json:"repository_path"`
	Remote          string `json:"remote"`
	SinceMonths     int    `json:"since_months"`
	IgnoreUntracked bool   `json:"ignore_untracked"`
	GitBinary       string `json:"git_binary"`
	NetworkTimeout  string `json:"network_timeout"`
	DryRun          bool   `json:"dry_run"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
	GitHubToken     string `json:"github_token"`
	GitHubBaseURL   string `json:"github_base_url"`
	GitHubUploadURL string `json:"github_upload_url"`
}

func (a *App) printConfig(w io.Writer, path string, cfg app.Config) error {
	cj := configJSON{
		File:            path,
		RepositoryPath:  cfg.RepositoryPath,
		Remote:          cfg.Remote,
		SinceMonths:     cfg.SinceMonths,
		IgnoreUntracked: cfg.IgnoreUntracked,
		GitBinary:       cfg.GitBinary,
		NetworkTimeout:  cfg.NetworkTimeout.String(),
		DryRun:          cfg.DryRun,
		LogLevel:        cfg.LogLevel,
		LogFormat:       cfg.LogFormat,
		GitHubToken:     cfg.GitHub.Token,
		GitHubBaseURL:   cfg.GitHub.BaseURL,
		GitHubUploadURL: cfg.GitHub.UploadURL,
	}
	f := a.outputFormat()
	if f == formatJSON {
		return printJSON(w, cj)
	}

	orUnset := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return s
	}
	rows := []table.Row{
		{"file", path},
		{"repository_path", orUnset(cj.RepositoryPath)},
		{"remote", cj.Remote},
		{"since_months", strconv.Itoa(cj.SinceMonths)},
		{"ignore_untracked", strconv.FormatBool(cj.IgnoreUntracked)},
		{"git_binary", cj.GitBinary},
		{"network_timeout", cj.NetworkTimeout},
		{"dry_run", strconv.FormatBool(cj.DryRun)},
		{"log_level", cj.LogLevel},
		{"log_format", cj.LogFormat},
		{"github.token", orUnset(cj.GitHubToken)},
		{"github.base_url", orUnset(cj.GitHubBaseURL)},
		{"github.upload_url", orUnset(cj.GitHubUploadURL)},
	}
	renderTable(w, f, table.Row{"KEY", "VALUE"}, rows)
	return nil
}
