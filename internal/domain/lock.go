package domain

import "context"

// Lease is a held exclusive lock. Release is safe to call after the lock expired.
type Lease interface {
	Release(ctx context.Context) error
}
