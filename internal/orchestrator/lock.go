package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pathLocks serializes mutations per repository path. Callers queue rather
// than being rejected; a wait ends early when ctx is done.
type pathLocks struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newPathLocks() *pathLocks {
	return &pathLocks{sems: make(map[string]*semaphore.Weighted)}
}

func (l *pathLocks) acquire(ctx context.Context, path string) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[path]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.sems[path] = sem
	}
	l.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
