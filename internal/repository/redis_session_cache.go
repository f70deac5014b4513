package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tta-server/internal/interfaces"
	"tta-server/internal/models"
)

// Compile-time check to ensure redisSessionCache implements SessionCache
var _ interfaces.SessionCache = (*redisSessionCache)(nil)

const (
	sessionKeyPrefix     = "session_state:"
	turnLockKeyPrefix    = "turn_lock:"
	consequenceKeyPrefix = "consequence_applied:"
	distressKeyPrefix    = "distress_window:"

	// Маркеры идемпотентности живут дольше сессии, чтобы повторная
	// доставка задержавшегося сообщения не применила последствия второй раз.
	consequenceMarkerTTL = 7 * 24 * time.Hour
	distressWindowTTL    = time.Hour
)

type redisSessionCache struct {
	client     *redis.Client
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewRedisSessionCache creates a new Redis-backed SessionCache.
func NewRedisSessionCache(client *redis.Client, sessionTTL time.Duration, logger *zap.Logger) interfaces.SessionCache {
	return &redisSessionCache{
		client:     client,
		sessionTTL: sessionTTL,
		logger:     logger.Named("RedisSessionCache"),
	}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func (c *redisSessionCache) SetSession(ctx context.Context, state *models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("ошибка сериализации состояния сессии: %w", err)
	}

	key := sessionKey(state.ID)
	if err := c.client.Set(ctx, key, data, c.sessionTTL).Err(); err != nil {
		c.logger.Error("Failed to cache session state", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("ошибка записи состояния сессии в redis: %w", err)
	}
	c.logger.Debug("Session state cached", zap.String("key", key), zap.Duration("ttl", c.sessionTTL))
	return nil
}

func (c *redisSessionCache) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	key := sessionKey(id)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, models.ErrNotFound
		}
		c.logger.Error("Failed to read session state from cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("ошибка чтения состояния сессии из redis: %w", err)
	}

	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		// Битую запись не возвращаем: вызывающий должен восстановиться из графа.
		c.logger.Error("Corrupted session state in cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrSessionStateCorrupted, err)
	}
	return &state, nil
}

func (c *redisSessionCache) DeleteSession(ctx context.Context, id uuid.UUID) error {
	key := sessionKey(id)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Failed to delete session state from cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("ошибка удаления состояния сессии из redis: %w", err)
	}
	return nil
}

// AcquireTurnLock берет блокировку хода через SET NX PX.
// Блокировка защищает от параллельной обработки двух выборов одной сессии.
func (c *redisSessionCache) AcquireTurnLock(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (bool, error) {
	key := turnLockKeyPrefix + sessionID.String()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		c.logger.Error("Failed to acquire turn lock", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("ошибка взятия блокировки хода: %w", err)
	}
	if !ok {
		c.logger.Debug("Turn lock already held", zap.Stringer("sessionID", sessionID))
	}
	return ok, nil
}

func (c *redisSessionCache) ReleaseTurnLock(ctx context.Context, sessionID uuid.UUID) error {
	key := turnLockKeyPrefix + sessionID.String()
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("Failed to release turn lock", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("ошибка снятия блокировки хода: %w", err)
	}
	return nil
}

// MarkConsequenceApplied ставит идемпотентный маркер.
// Возвращает false, если последствия для этого выбора уже применялись.
func (c *redisSessionCache) MarkConsequenceApplied(ctx context.Context, choiceID uuid.UUID) (bool, error) {
	key := consequenceKeyPrefix + choiceID.String()
	ok, err := c.client.SetNX(ctx, key, "1", consequenceMarkerTTL).Result()
	if err != nil {
		c.logger.Error("Failed to set consequence marker", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("ошибка установки маркера последствий: %w", err)
	}
	return ok, nil
}

// PushDistressScore поддерживает скользящее окно последних оценок дистресса.
// LPUSH + LTRIM держат ровно window элементов, EXPIRE сбрасывает окно
// после часа неактивности.
func (c *redisSessionCache) PushDistressScore(ctx context.Context, sessionID uuid.UUID, score float64, window int) ([]float64, error) {
	key := distressKeyPrefix + sessionID.String()

	pipe := c.client.Pipeline()
	pipe.LPush(ctx, key, strconv.FormatFloat(score, 'f', -1, 64))
	pipe.LTrim(ctx, key, 0, int64(window-1))
	pipe.Expire(ctx, key, distressWindowTTL)
	rangeCmd := pipe.LRange(ctx, key, 0, int64(window-1))

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("Failed to update distress window", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("ошибка обновления окна дистресса: %w", err)
	}

	raw, err := rangeCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения окна дистресса: %w", err)
	}

	scores := make([]float64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.logger.Warn("Malformed distress score in window", zap.String("key", key), zap.String("value", s))
			continue
		}
		scores = append(scores, v)
	}
	return scores, nil
}
