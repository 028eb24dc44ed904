package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates session access across replicas. The session
// manager serializes runs per session in-process; deployments with more than
// one instance add a DistributedLocker on top.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired, the context is
	// cancelled, or the implementation gives up. The returned UnlockFunc
	// must be called to release the lock; the TTL bounds how long a crashed
	// holder can wedge the key.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
