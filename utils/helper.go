package utils

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/poultry_backend/config"
	"github.com/bsm/redislock"
)

func UniqueSlice[T comparable](values []T) []T {
	seen := make(map[T]bool, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// BatchLock obtains a best-effort cross-instance lock for a batch id and
// returns a release func. Reliability must not depend on Redis: batch
// mutations are also serialized via MySQL advisory locks in the store, so a
// missing Redis lock only widens the retry window, it cannot corrupt counts.
func BatchLock(ctx context.Context, batchId int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		return func() {}, nil
	}
	lockKey := fmt.Sprintf("batch:%d", batchId)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for batch", batchId, err)
		return func() {}, nil
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for batch", batchId, err)
		return func() {}, nil
	}
	return func() {
		_ = lock.Release(ctx)
	}, nil
}
