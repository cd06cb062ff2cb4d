package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/cache"
)

const (
	outcomesKey       = "payments:counters:outcomes"
	outcomesDayKeyFmt = "payments:counters:outcomes:%s"
	dailyRetention    = 30 * 24 * time.Hour
)

// AddOutcome increments the reconciliation outcome counter for a provider.
// Counters are best effort; a Redis hiccup must never fail the request that
// produced the outcome, so callers ignore the returned error or just log it.
func AddOutcome(provider, status string) error {
	ctx := context.Background()
	rdb := cache.GetClient()
	if rdb == nil {
		return nil
	}

	field := provider + ":" + status
	if err := rdb.HIncrBy(ctx, outcomesKey, field, 1).Err(); err != nil {
		return err
	}

	dayKey := fmt.Sprintf(outcomesDayKeyFmt, time.Now().UTC().Format("2006-01-02"))
	if err := rdb.HIncrBy(ctx, dayKey, field, 1).Err(); err != nil {
		return err
	}
	return rdb.Expire(ctx, dayKey, dailyRetention).Err()
}

// Snapshot returns the all-time outcome counters as "<provider>:<status>" -> count.
func Snapshot(ctx context.Context) (map[string]string, error) {
	rdb := cache.GetClient()
	if rdb == nil {
		return map[string]string{}, nil
	}
	return rdb.HGetAll(ctx, outcomesKey).Result()
}

// SnapshotDay returns the outcome counters for one UTC day (format 2006-01-02).
func SnapshotDay(ctx context.Context, day string) (map[string]string, error) {
	rdb := cache.GetClient()
	if rdb == nil {
		return map[string]string{}, nil
	}
	return rdb.HGetAll(ctx, fmt.Sprintf(outcomesDayKeyFmt, day)).Result()
}
