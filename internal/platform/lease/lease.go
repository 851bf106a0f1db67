// Package lease provides short-lived exclusive locks so that only one server
// instance runs a periodic job at a time.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Unlock releases a held lease. Releasing an expired or stolen lease is a
// no-op.
type Unlock func(ctx context.Context) error

// Locker hands out leases by key. ok is false when another holder owns the
// key; err is reserved for backend failures.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock Unlock, ok bool, err error)
}

// Local is an in-process Locker used when no Redis is configured. It only
// coordinates goroutines of one process.
type Local struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]localLease
}

type localLease struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{now: time.Now, leases: make(map[string]localLease)}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, held := l.leases[key]; held && now.Before(cur.expires) {
		return nil, false, nil
	}
	token := uuid.NewString()
	l.leases[key] = localLease{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, held := l.leases[key]; held && cur.token == token {
			delete(l.leases, key)
		}
		return nil
	}, true, nil
}
