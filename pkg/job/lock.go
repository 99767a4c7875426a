package job

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
)

const lockKey = "crm-sync:job-lock"

// RunLock serializes job invocations across triggers. Two overlapping jobs
// would race on the same delete/insert cycle downstream, so the boundary
// layer admits one at a time. The TTL bounds how long a crashed run can
// hold the lock.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration

	token string
}

func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	return &RunLock{client: client, ttl: ttl}
}

// Acquire returns false when another run already holds the lock.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lock if this instance still owns it. An expired lock
// taken over by another run is left alone.
func (l *RunLock) Release(ctx context.Context) {
	current, err := l.client.Get(ctx, lockKey).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Log.WithError(err).Warn("Failed to inspect job lock on release")
		}
		return
	}
	if current != l.token {
		logger.Log.Warn("Job lock owned by another run, leaving it")
		return
	}
	if err := l.client.Del(ctx, lockKey).Err(); err != nil {
		logger.Log.WithError(err).Warn("Failed to release job lock")
	}
}
