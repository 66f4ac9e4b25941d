package streaming

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	mirrorKeyPrefix = "plan:events:"
	mirrorMaxLen    = 1000
	mirrorTTL       = 24 * time.Hour
	mirrorTimeout   = 2 * time.Second
)

// RedisMirror copies events into a capped Redis Stream per workflow so
// external consumers can tail runs. Mirroring is best-effort: failures
// are logged and never affect in-process delivery.
type RedisMirror struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisMirror(rdb *redis.Client, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{rdb: rdb, logger: logger}
}

// Append XADDs the event to the workflow's stream with an approximate
// MAXLEN cap and refreshes the stream TTL.
func (m *RedisMirror) Append(workflowID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	key := mirrorKeyPrefix + workflowID
	err := m.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: mirrorMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"seq":  evt.Seq,
			"type": evt.Type,
			"data": string(evt.Marshal()),
		},
	}).Err()
	if err != nil {
		m.logger.Debug("event mirror append failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
		return
	}
	_ = m.rdb.Expire(ctx, key, mirrorTTL).Err()
}
