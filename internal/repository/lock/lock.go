package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/lexrag/internal/domain"
)

// store is the consumer interface for the lock (ISP).
type store interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	DelIfEqual(ctx context.Context, key string, value []byte) (bool, error)
}

// Locker hands out per-document ingestion leases (SET NX PX).
type Locker struct {
	store  store
	prefix string
}

// New creates a locker with keys under <prefix>lock:.
func New(s store, keyPrefix string) *Locker {
	return &Locker{store: s, prefix: keyPrefix + "lock:"}
}

// lease is a held lock. The TTL bounds how long a crashed holder blocks others.
type lease struct {
	store store
	key   string
	token []byte
}

// Acquire takes the lock for documentID or returns ErrIngestionInProgress.
func (l *Locker) Acquire(ctx context.Context, documentID string, ttl time.Duration) (domain.Lease, error) {
	key := l.prefix + documentID
	token := []byte(uuid.NewString())

	ok, err := l.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrIngestionInProgress)
	}
	return &lease{store: l.store, key: key, token: token}, nil
}

// Release drops the lock if this lease still owns it.
func (l *lease) Release(ctx context.Context) error {
	if _, err := l.store.DelIfEqual(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
