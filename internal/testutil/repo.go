// Package testutil builds throwaway git repositories for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// T is the subset of testing.TB the helpers need. GinkgoT() satisfies it too.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
	Skip(args ...any)
	TempDir() string
}

// RequireGit skips the test when no git binary is available.
func RequireGit(t T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// Repo is a working clone of a bare origin, both under t.TempDir().
type Repo struct {
	t      T
	Dir    string
	Remote string
}

// NewRepo creates a bare origin seeded with one commit on main and returns a
// clone of it, so origin/main and origin/HEAD exist in the clone.
func NewRepo(t T) *Repo {
	t.Helper()
	RequireGit(t)

	tmp := t.TempDir()
	seed := filepath.Join(tmp, "seed")
	remote := filepath.Join(tmp, "remote.git")
	work := filepath.Join(tmp, "work")

	RunGit(t, tmp, "init", "--bare", remote)
	RunGit(t, seed, "init")
	configure(t, seed)
	WriteFile(t, filepath.Join(seed, "README.md"), "initial\n")
	RunGit(t, seed, "add", "README.md")
	RunGit(t, seed, "commit", "-m", "initial commit")
	RunGit(t, seed, "branch", "-M", "main")
	RunGit(t, seed, "remote", "add", "origin", remote)
	RunGit(t, seed, "push", "-u", "origin", "main")
	RunGit(t, "", "--git-dir", remote, "symbolic-ref", "HEAD", "refs/heads/main")

	RunGit(t, tmp, "clone", remote, work)
	configure(t, work)

	return &Repo{t: t, Dir: work, Remote: remote}
}

func configure(t T, dir string) {
	RunGit(t, dir, "config", "user.name", "Test User")
	RunGit(t, dir, "config", "user.email", "test@example.com")
	RunGit(t, dir, "config", "commit.gpgsign", "false")
}

// Git runs git in the working clone.
func (r *Repo) Git(args ...string) string {
	r.t.Helper()
	return CaptureGit(r.t, r.Dir, args...)
}

// Commit writes content to name, commits it with message and returns the hash.
func (r *Repo) Commit(name, content, message string) string {
	r.t.Helper()
	WriteFile(r.t, filepath.Join(r.Dir, name), content)
	r.Git("add", name)
	r.Git("commit", "-m", message)
	return r.Head()
}

// Head returns the full hash of HEAD.
func (r *Repo) Head() string {
	r.t.Helper()
	return strings.TrimSpace(r.Git("rev-parse", "HEAD"))
}

// Push pushes the named branches to origin.
func (r *Repo) Push(branches ...string) {
	r.t.Helper()
	r.Git(append([]string{"push", "origin"}, branches...)...)
}

// RunGit runs git in dir and fails the test on error. An empty dir runs git
// without -C.
func RunGit(t T, dir string, args ...string) {
	t.Helper()
	CaptureGit(t, dir, args...)
}

// CaptureGit runs git in dir and returns its combined output.
func CaptureGit(t T, dir string, args ...string) string {
	t.Helper()
	cmdArgs := args
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		cmdArgs = append([]string{"-C", dir}, args...)
	}
	cmd := exec.Command("git", cmdArgs...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(cmdArgs, " "), err, string(output))
	}
	return string(output)
}

// WriteFile writes contents to path, creating parent directories.
func WriteFile(t T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write file failed: %v", err)
	}
}

// InitRepo creates an empty, non-bare repository without shelling out to git
// and returns its path.
func InitRepo(t T) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := gogit.PlainInit(dir, false); err != nil {
		t.Fatalf("init repository failed: %v", err)
	}
	return dir
}
