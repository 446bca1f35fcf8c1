// internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Rdb is the shared Redis client. A nil Rdb means the historian and session
// pub/sub are disabled and callers should skip cache operations.
var Rdb *redis.Client

// actionQueueKey is the list the historian consumer drains.
const actionQueueKey = "phase10:game_actions"

// InitRedis creates the shared client and verifies connectivity.
func InitRedis(ctx context.Context, addr, password string) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	Rdb = client
	logrus.Info("cache: redis connected")
	return nil
}

// Close releases the shared client.
func Close() {
	if Rdb != nil {
		if err := Rdb.Close(); err != nil {
			logrus.WithError(err).Warn("cache: close failed")
		}
		Rdb = nil
	}
}

// GameActionRecord is one entry in the ordered action history of a game,
// consumed asynchronously by the historian service.
type GameActionRecord struct {
	GameID        uuid.UUID              `json:"gameId"`
	ActionIndex   int                    `json:"actionIndex"`
	ActorUserID   uuid.UUID              `json:"actorUserId"`
	ActionType    string                 `json:"actionType"`
	ActionPayload map[string]interface{} `json:"actionPayload"`
	Timestamp     int64                  `json:"timestamp"`
}

// PublishGameAction pushes an action record onto the historian queue.
func PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action record: %w", err)
	}
	if err := Rdb.LPush(ctx, actionQueueKey, data).Err(); err != nil {
		return fmt.Errorf("lpush action record: %w", err)
	}
	return nil
}

// sessionChannel is the pub/sub channel carrying update notifications for
// one session.
func sessionChannel(sessionID uuid.UUID) string {
	return "phase10:session:" + sessionID.String()
}

// SessionUpdate notifies subscribers that a session committed a new version.
// Subscribers reload the session from the database rather than trusting the
// notification payload.
type SessionUpdate struct {
	SessionID uuid.UUID `json:"sessionId"`
	Version   int64     `json:"version"`
	Status    string    `json:"status"`
}

// PublishSessionUpdate broadcasts a committed session version to subscribers.
func PublishSessionUpdate(ctx context.Context, upd SessionUpdate) error {
	data, err := json.Marshal(upd)
	if err != nil {
		return fmt.Errorf("marshal session update: %w", err)
	}
	if err := Rdb.Publish(ctx, sessionChannel(upd.SessionID), data).Err(); err != nil {
		return fmt.Errorf("publish session update: %w", err)
	}
	return nil
}

// SubscribeSession subscribes to a session's update channel. The caller owns
// the returned PubSub and must Close it.
func SubscribeSession(ctx context.Context, sessionID uuid.UUID) *redis.PubSub {
	return Rdb.Subscribe(ctx, sessionChannel(sessionID))
}
