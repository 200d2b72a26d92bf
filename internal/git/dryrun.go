package git

import (
	"context"
	"log/slog"
	"strings"
)

// NewDryRunGateway returns a Gateway that answers read-only queries from next
// and skips every operation that would change the repository, its refs or its
// remote-tracking state. Skipped operations succeed and are logged at info.
func NewDryRunGateway(next Gateway, logger *slog.Logger) Gateway {
	return &dryRunGateway{next: next, log: logger}
}

type dryRunGateway struct {
	next Gateway
	log  *slog.Logger
}

func (d *dryRunGateway) skip(op, path string, args ...string) {
	if d.log == nil {
		return
	}
	d.log.Info("dry run: skipping git "+op, "repo", path, "args", strings.Join(args, " "))
}

func (d *dryRunGateway) BranchList(ctx context.Context, path string) (BranchListing, error) {
	return d.next.BranchList(ctx, path)
}

func (d *dryRunGateway) PruneRemote(_ context.Context, path, remote string) error {
	d.skip("remote prune", path, remote)
	return nil
}

func (d *dryRunGateway) Log(ctx context.Context, path string, opts LogOptions) ([]LogEntry, error) {
	return d.next.Log(ctx, path, opts)
}

func (d *dryRunGateway) Fetch(_ context.Context, path, remote string, refs []string) error {
	d.skip("fetch", path, append([]string{remote}, refs...)...)
	return nil
}

func (d *dryRunGateway) Checkout(_ context.Context, path, ref string) error {
	d.skip("checkout", path, ref)
	return nil
}

func (d *dryRunGateway) CherryPick(_ context.Context, path, commit string) error {
	d.skip("cherry-pick", path, commit)
	return nil
}

func (d *dryRunGateway) Status(ctx context.Context, path string) (Status, error) {
	return d.next.Status(ctx, path)
}

func (d *dryRunGateway) ResetHard(_ context.Context, path, ref string) error {
	d.skip("reset --hard", path, ref)
	return nil
}

func (d *dryRunGateway) ListRemotes(ctx context.Context, path string) ([]Remote, error) {
	return d.next.ListRemotes(ctx, path)
}

func (d *dryRunGateway) Pull(_ context.Context, path, remote string) error {
	d.skip("pull", path, remote)
	return nil
}
