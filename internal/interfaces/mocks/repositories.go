package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"tta-server/internal/models"
)

// Mock SessionRepository
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Create(ctx context.Context, state *models.SessionState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionState), args.Error(1)
}

func (m *SessionRepository) ListByPlayer(ctx context.Context, playerID uuid.UUID) ([]*models.SessionState, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SessionState), args.Error(1)
}

func (m *SessionRepository) Update(ctx context.Context, state *models.SessionState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *SessionRepository) CountActive(ctx context.Context, playerID uuid.UUID) (int, error) {
	args := m.Called(ctx, playerID)
	return args.Int(0), args.Error(1)
}

func (m *SessionRepository) LinkTherapeuticConcepts(ctx context.Context, sessionID uuid.UUID, concepts []string) error {
	args := m.Called(ctx, sessionID, concepts)
	return args.Error(0)
}

// Mock SceneRepository
type SceneRepository struct {
	mock.Mock
}

func (m *SceneRepository) Create(ctx context.Context, scene *models.Scene) error {
	args := m.Called(ctx, scene)
	return args.Error(0)
}

func (m *SceneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scene), args.Error(1)
}

func (m *SceneRepository) LinkLeadsTo(ctx context.Context, fromSceneID, toSceneID uuid.UUID) error {
	args := m.Called(ctx, fromSceneID, toSceneID)
	return args.Error(0)
}

// Mock ConsequenceRepository
type ConsequenceRepository struct {
	mock.Mock
}

func (m *ConsequenceRepository) Create(ctx context.Context, cs *models.ConsequenceSet) (bool, error) {
	args := m.Called(ctx, cs)
	return args.Bool(0), args.Error(1)
}

func (m *ConsequenceRepository) RecordChoiceMade(ctx context.Context, playerID, choiceID uuid.UUID, madeAt time.Time) error {
	args := m.Called(ctx, playerID, choiceID, madeAt)
	return args.Error(0)
}

// Mock SessionCache
type SessionCache struct {
	mock.Mock
}

func (m *SessionCache) SetSession(ctx context.Context, state *models.SessionState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *SessionCache) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionState), args.Error(1)
}

func (m *SessionCache) DeleteSession(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *SessionCache) AcquireTurnLock(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, sessionID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *SessionCache) ReleaseTurnLock(ctx context.Context, sessionID uuid.UUID) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *SessionCache) MarkConsequenceApplied(ctx context.Context, choiceID uuid.UUID) (bool, error) {
	args := m.Called(ctx, choiceID)
	return args.Bool(0), args.Error(1)
}

func (m *SessionCache) PushDistressScore(ctx context.Context, sessionID uuid.UUID, score float64, window int) ([]float64, error) {
	args := m.Called(ctx, sessionID, score, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}
