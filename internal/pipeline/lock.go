package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	runLockKey = "pipeline:run_lock"
	runLockTTL = 10 * time.Minute
)

// TryLock takes the invocation lock so the HTTP trigger and the
// scheduler tick cannot sweep concurrently. Fails open when redis is
// unavailable; the scheduler's own serialization still applies.
func (o *Orchestrator) TryLock(ctx context.Context) bool {
	if o.redis == nil {
		return true
	}
	ok, err := o.redis.SetNX(ctx, runLockKey, time.Now().UTC().Format(time.RFC3339), runLockTTL).Result()
	if err != nil {
		o.logger.Warn("run lock unavailable, proceeding without it", zap.Error(err))
		return true
	}
	return ok
}

// Unlock releases the invocation lock.
func (o *Orchestrator) Unlock(ctx context.Context) {
	if o.redis == nil {
		return
	}
	if err := o.redis.Del(ctx, runLockKey).Err(); err != nil {
		o.logger.Warn("failed to release run lock", zap.Error(err))
	}
}
