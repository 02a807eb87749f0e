package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"lotledger/pkg/domain"
)

// lockTable hands out one exclusive lock per record key. Entries are reference
// counted and dropped once no transaction holds or waits on them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

func (t *lockTable) ref(key string) *lockEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.locks[key]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		t.locks[key] = e
	}
	e.refs++
	return e
}

func (t *lockTable) unref(key string, e *lockEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.locks, key)
	}
}

// acquire blocks until key is free, ctx ends, or timeout elapses.
func (t *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	e := t.ref(key)
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		t.unref(key, e)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.ContentionError{Key: key, Wait: timeout, Err: err}
		}
		return nil, err
	}
	return func() {
		e.sem.Release(1)
		t.unref(key, e)
	}, nil
}

// heldLocks tracks the locks owned by one transaction.
type heldLocks struct {
	table    *lockTable
	timeout  time.Duration
	ctx      context.Context
	releases map[string]func()
}

func (h *heldLocks) lock(keys ...string) error {
	pending := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := h.releases[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		pending = append(pending, k)
	}
	// A stable acquisition order keeps two transactions locking the same set
	// from deadlocking each other.
	sort.Strings(pending)
	for _, k := range pending {
		release, err := h.table.acquire(h.ctx, k, h.timeout)
		if err != nil {
			return err
		}
		h.releases[k] = release
	}
	return nil
}

func (h *heldLocks) releaseAll() {
	for k, release := range h.releases {
		release()
		delete(h.releases, k)
	}
}
