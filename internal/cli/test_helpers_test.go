package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/rancher/cherry-pick-helper/internal/app"
	"github.com/rancher/cherry-pick-helper/internal/testutil"
)

// isolate keeps the developer's environment and config file out of a test and
// returns a config path inside t.TempDir().
func isolate(t *testing.T) string {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "CHERRY_PICK_") {
			t.Setenv(key, "")
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("unset %s: %v", key, err)
			}
		}
	}
	t.Setenv("GITHUB_TOKEN", "")
	return filepath.Join(t.TempDir(), "config.yaml")
}

// executeCommand runs the CLI command tree with the given stdin and args and
// returns stdout and stderr.
func executeCommand(t *testing.T, a *App, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := a.BuildRootCmd()
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// appWithRunnerError creates an App whose resolver always fails.
func appWithRunnerError(err error) *App {
	return &App{resolveRunner: func(*cobra.Command) (*app.Runner, error) { return nil, err }}
}

// scenario is a clone whose main is two commits ahead of release. Both are
// pushed and main is checked out.
type scenario struct {
	repo    *testutil.Repo
	config  string
	release string
	picks   []string
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	config := isolate(t)
	r := testutil.NewRepo(t)
	r.Git("branch", "release")
	release := r.Head()

	var picks []string
	for i := 1; i <= 2; i++ {
		picks = append(picks, r.Commit(fmt.Sprintf("fix%d.txt", i), fmt.Sprintf("fix %d\n", i), fmt.Sprintf("fix: backport %d", i)))
	}
	r.Push("main", "release")
	return &scenario{repo: r, config: config, release: release, picks: picks}
}

// run executes the CLI against the scenario repository.
func (s *scenario) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	full := append([]string{"--config", s.config, "--repo", s.repo.Dir}, args...)
	return executeCommand(t, NewApp(), stdin, full...)
}
