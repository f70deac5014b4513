package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"tta-server/internal/interfaces"
	"tta-server/internal/models"
	"tta-server/internal/repository"
)

// RedisCacheSuite - интеграционные тесты кэша сессий против реального Redis.
type RedisCacheSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *goredis.Client
	cache     interfaces.SessionCache
}

func (s *RedisCacheSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(s.T(), err)
	s.container = container

	connStr, err := container.ConnectionString(ctx)
	require.NoError(s.T(), err)

	opts, err := goredis.ParseURL(connStr)
	require.NoError(s.T(), err)
	s.client = goredis.NewClient(opts)
	require.NoError(s.T(), s.client.Ping(ctx).Err())

	s.cache = repository.NewRedisSessionCache(s.client, time.Hour, zap.NewNop())
}

func (s *RedisCacheSuite) TearDownSuite() {
	ctx := context.Background()
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		require.NoError(s.T(), s.container.Terminate(ctx))
	}
}

func (s *RedisCacheSuite) SetupTest() {
	require.NoError(s.T(), s.client.FlushAll(context.Background()).Err())
}

func newTestSessionState() *models.SessionState {
	now := time.Now().UTC().Truncate(time.Millisecond)
	sceneID := uuid.New()
	return &models.SessionState{
		ID:             uuid.New(),
		PlayerID:       uuid.New(),
		Status:         models.SessionStatusActive,
		CurrentSceneID: &sceneID,
		Character:      models.NewCharacterState(),
		Difficulty:     models.DifficultyMedium,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func (s *RedisCacheSuite) TestSetGetDeleteSession() {
	ctx := context.Background()
	state := newTestSessionState()

	err := s.cache.SetSession(ctx, state)
	require.NoError(s.T(), err)

	got, err := s.cache.GetSession(ctx, state.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), state.ID, got.ID)
	assert.Equal(s.T(), state.PlayerID, got.PlayerID)
	assert.Equal(s.T(), state.Status, got.Status)
	require.NotNil(s.T(), got.CurrentSceneID)
	assert.Equal(s.T(), *state.CurrentSceneID, *got.CurrentSceneID)
	assert.Equal(s.T(), state.Difficulty, got.Difficulty)

	err = s.cache.DeleteSession(ctx, state.ID)
	require.NoError(s.T(), err)

	_, err = s.cache.GetSession(ctx, state.ID)
	assert.ErrorIs(s.T(), err, models.ErrNotFound)
}

func (s *RedisCacheSuite) TestGetSessionCorrupted() {
	ctx := context.Background()
	id := uuid.New()

	// Пишем в ключ заведомо не-JSON.
	err := s.client.Set(ctx, "session_state:"+id.String(), "not-json{", time.Minute).Err()
	require.NoError(s.T(), err)

	_, err = s.cache.GetSession(ctx, id)
	assert.ErrorIs(s.T(), err, models.ErrSessionStateCorrupted)
}

func (s *RedisCacheSuite) TestTurnLock() {
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := s.cache.AcquireTurnLock(ctx, sessionID, time.Minute)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok, "first acquire should succeed")

	ok, err = s.cache.AcquireTurnLock(ctx, sessionID, time.Minute)
	require.NoError(s.T(), err)
	assert.False(s.T(), ok, "second acquire must fail while lock is held")

	require.NoError(s.T(), s.cache.ReleaseTurnLock(ctx, sessionID))

	ok, err = s.cache.AcquireTurnLock(ctx, sessionID, time.Minute)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok, "acquire after release should succeed")
}

func (s *RedisCacheSuite) TestTurnLockExpires() {
	ctx := context.Background()
	sessionID := uuid.New()

	ok, err := s.cache.AcquireTurnLock(ctx, sessionID, 100*time.Millisecond)
	require.NoError(s.T(), err)
	require.True(s.T(), ok)

	time.Sleep(200 * time.Millisecond)

	ok, err = s.cache.AcquireTurnLock(ctx, sessionID, time.Minute)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok, "lock must expire after its TTL")
}

func (s *RedisCacheSuite) TestMarkConsequenceApplied() {
	ctx := context.Background()
	choiceID := uuid.New()

	first, err := s.cache.MarkConsequenceApplied(ctx, choiceID)
	require.NoError(s.T(), err)
	assert.True(s.T(), first)

	second, err := s.cache.MarkConsequenceApplied(ctx, choiceID)
	require.NoError(s.T(), err)
	assert.False(s.T(), second, "marker must be set exactly once")
}

func (s *RedisCacheSuite) TestPushDistressScoreWindow() {
	ctx := context.Background()
	sessionID := uuid.New()
	window := 3

	var scores []float64
	var err error
	for _, v := range []float64{1.0, 2.5, 4.0, 7.5} {
		scores, err = s.cache.PushDistressScore(ctx, sessionID, v, window)
		require.NoError(s.T(), err)
	}

	// Окно держит ровно window элементов, новые значения первыми.
	require.Len(s.T(), scores, window)
	assert.Equal(s.T(), []float64{7.5, 4.0, 2.5}, scores)
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode.")
	}
	suite.Run(t, new(RedisCacheSuite))
}
