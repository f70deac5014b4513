package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tta-server/internal/config"
	interfaceMocks "tta-server/internal/interfaces/mocks"
	"tta-server/internal/messaging"
	messagingMocks "tta-server/internal/messaging/mocks"
	"tta-server/internal/models"
	"tta-server/internal/service"
)

// loopHarness собирает сервис с моками хранилищ и реальными подсистемами.
type loopHarness struct {
	svc             service.GameplayLoopService
	sessionRepo     *interfaceMocks.SessionRepository
	sceneRepo       *interfaceMocks.SceneRepository
	consequenceRepo *interfaceMocks.ConsequenceRepository
	cache           *interfaceMocks.SessionCache
	taskPublisher   *messagingMocks.TaskPublisher
	clientPublisher *messagingMocks.ClientUpdatePublisher
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	h := &loopHarness{
		sessionRepo:     new(interfaceMocks.SessionRepository),
		sceneRepo:       new(interfaceMocks.SceneRepository),
		consequenceRepo: new(interfaceMocks.ConsequenceRepository),
		cache:           new(interfaceMocks.SessionCache),
		taskPublisher:   new(messagingMocks.TaskPublisher),
		clientPublisher: new(messagingMocks.ClientUpdatePublisher),
	}
	logger := zap.NewNop()
	cfg := &config.Config{
		MaxActiveSessions: 3,
		TurnLockTTL:       5 * time.Second,
		SessionCacheTTL:   24 * time.Hour,
	}
	h.svc = service.NewGameplayLoopService(
		h.sessionRepo,
		h.sceneRepo,
		h.consequenceRepo,
		h.cache,
		h.taskPublisher,
		h.clientPublisher,
		service.NewNarrativeEngine(logger),
		service.NewChoiceArchitectureManager(logger),
		service.NewConsequenceSystem(logger),
		service.NewAdaptiveDifficultyEngine(logger),
		service.NewEmotionalSafetySystem(h.cache, logger),
		cfg,
		logger,
	)
	return h
}

func (h *loopHarness) assertExpectations(t *testing.T) {
	t.Helper()
	h.sessionRepo.AssertExpectations(t)
	h.sceneRepo.AssertExpectations(t)
	h.consequenceRepo.AssertExpectations(t)
	h.cache.AssertExpectations(t)
	h.taskPublisher.AssertExpectations(t)
	h.clientPublisher.AssertExpectations(t)
}

// activeSessionState строит активную сессию с текущей сценой для тестов хода.
func activeSessionState(playerID uuid.UUID, scene *models.Scene) *models.SessionState {
	now := time.Now().UTC().Add(-30 * time.Second)
	return &models.SessionState{
		ID:             scene.SessionID,
		PlayerID:       playerID,
		Status:         models.SessionStatusActive,
		CurrentSceneID: &scene.ID,
		ChoiceHistory:  []uuid.UUID{},
		Character:      models.NewCharacterState(),
		Difficulty:     models.DifficultyMedium,
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func testScene(sessionID uuid.UUID) *models.Scene {
	scene := &models.Scene{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		Narrative:          "Перед тобой развилка лесной тропы.",
		EmotionalIntensity: 3,
		CreatedAt:          time.Now().UTC(),
		Choices: []models.Choice{
			{
				ID:               uuid.New(),
				Text:             "Остановиться и прислушаться к себе",
				Approach:         models.ApproachMindfulness,
				DifficultyRating: 2,
				AttributeDeltas:  map[string]int{models.AttrCalm: 2},
			},
			{
				ID:               uuid.New(),
				Text:             "Разобрать, чего именно ты боишься",
				Approach:         models.ApproachCBT,
				DifficultyRating: 3,
				AttributeDeltas:  map[string]int{models.AttrInsight: 2, models.AttrCalm: -1},
			},
		},
	}
	scene.ContentHash = scene.ComputeContentHash()
	return scene
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()
	playerID := uuid.New()

	t.Run("Successful start queues initial generation", func(t *testing.T) {
		h := newLoopHarness(t)

		h.sessionRepo.On("CountActive", mock.Anything, playerID).Return(0, nil).Once()
		h.sessionRepo.On("Create", mock.Anything, mock.MatchedBy(func(state *models.SessionState) bool {
			assert.Equal(t, playerID, state.PlayerID)
			assert.Equal(t, models.SessionStatusGeneratingScene, state.Status)
			assert.Equal(t, models.DifficultyMedium, state.Difficulty)
			assert.Equal(t, 50, state.Character.Attributes[models.AttrResilience])
			return true
		})).Return(nil).Once()
		h.sessionRepo.On("LinkTherapeuticConcepts", mock.Anything, mock.Anything, []string{"cbt", "mindfulness"}).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()
		h.taskPublisher.On("PublishNarrativeTask", mock.Anything, mock.MatchedBy(func(task messaging.NarrativeTaskPayload) bool {
			assert.Equal(t, messaging.PromptTypeInitialScene, task.PromptType)
			assert.NotEmpty(t, task.TaskID)
			assert.Equal(t, playerID.String(), task.PlayerID)
			assert.NotEmpty(t, task.DifficultyDirective)
			return true
		})).Return(nil).Once()

		state, err := h.svc.StartSession(ctx, playerID, []string{"cbt", "mindfulness"})

		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, models.SessionStatusGeneratingScene, state.Status)
		h.assertExpectations(t)
	})

	t.Run("Active session limit reached", func(t *testing.T) {
		h := newLoopHarness(t)
		h.sessionRepo.On("CountActive", mock.Anything, playerID).Return(3, nil).Once()

		state, err := h.svc.StartSession(ctx, playerID, nil)

		assert.ErrorIs(t, err, models.ErrSessionLimitReached)
		assert.Nil(t, state)
		h.assertExpectations(t)
	})

	t.Run("Unknown therapeutic concept rejected", func(t *testing.T) {
		h := newLoopHarness(t)

		state, err := h.svc.StartSession(ctx, playerID, []string{"hypnosis"})

		assert.ErrorIs(t, err, models.ErrInvalidInput)
		assert.Nil(t, state)
	})

	t.Run("Publish failure installs fallback scene", func(t *testing.T) {
		h := newLoopHarness(t)

		h.sessionRepo.On("CountActive", mock.Anything, playerID).Return(0, nil).Once()
		h.sessionRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil)
		h.taskPublisher.On("PublishNarrativeTask", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
		h.sceneRepo.On("Create", mock.Anything, mock.MatchedBy(func(scene *models.Scene) bool {
			assert.True(t, scene.IsFallback)
			assert.NotEmpty(t, scene.Choices)
			return true
		})).Return(nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()

		state, err := h.svc.StartSession(ctx, playerID, nil)

		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, models.SessionStatusActive, state.Status)
		require.NotNil(t, state.CurrentSceneID)
		h.assertExpectations(t)
	})
}

func TestGetCurrentScene(t *testing.T) {
	ctx := context.Background()
	playerID := uuid.New()

	t.Run("Returns current scene", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("GetByID", mock.Anything, scene.ID).Return(scene, nil).Once()

		got, err := h.svc.GetCurrentScene(ctx, playerID, state.ID)

		require.NoError(t, err)
		assert.Equal(t, scene.ID, got.ID)
		h.assertExpectations(t)
	})

	t.Run("Generation pending", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		state.Status = models.SessionStatusGeneratingScene

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		_, err := h.svc.GetCurrentScene(ctx, playerID, state.ID)

		assert.ErrorIs(t, err, models.ErrSceneGenerationPending)
	})

	t.Run("Non-owner is forbidden", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		_, err := h.svc.GetCurrentScene(ctx, uuid.New(), state.ID)

		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("Cache miss recovers from graph", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("GetSession", mock.Anything, state.ID).Return(nil, models.ErrNotFound).Once()
		h.sessionRepo.On("GetByID", mock.Anything, state.ID).Return(state, nil).Once()
		h.cache.On("SetSession", mock.Anything, state).Return(nil).Once()
		h.sceneRepo.On("GetByID", mock.Anything, scene.ID).Return(scene, nil).Once()

		got, err := h.svc.GetCurrentScene(ctx, playerID, state.ID)

		require.NoError(t, err)
		assert.Equal(t, scene.ID, got.ID)
		h.assertExpectations(t)
	})
}

func TestMakeChoice(t *testing.T) {
	ctx := context.Background()
	playerID := uuid.New()

	t.Run("Successful turn applies consequences and queues generation", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		choice := scene.Choices[1] // cbt: insight +2, calm -1

		h.cache.On("AcquireTurnLock", mock.Anything, state.ID, 5*time.Second).Return(true, nil).Once()
		h.cache.On("ReleaseTurnLock", mock.Anything, state.ID).Return(nil).Once()
		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("GetByID", mock.Anything, scene.ID).Return(scene, nil).Once()
		h.cache.On("PushDistressScore", mock.Anything, state.ID, mock.Anything, 5).Return([]float64{0}, nil).Once()
		h.cache.On("MarkConsequenceApplied", mock.Anything, choice.ID).Return(true, nil).Once()
		h.consequenceRepo.On("Create", mock.Anything, mock.MatchedBy(func(cs *models.ConsequenceSet) bool {
			assert.Equal(t, choice.ID, cs.ChoiceID)
			assert.Equal(t, 2, cs.AttributeDeltas[models.AttrInsight])
			return true
		})).Return(true, nil).Once()
		h.consequenceRepo.On("RecordChoiceMade", mock.Anything, playerID, choice.ID, mock.Anything).Return(nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.MatchedBy(func(st *models.SessionState) bool {
			assert.Equal(t, models.SessionStatusGeneratingScene, st.Status)
			assert.Contains(t, st.ChoiceHistory, choice.ID)
			return true
		})).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()
		h.taskPublisher.On("PublishNarrativeTask", mock.Anything, mock.MatchedBy(func(task messaging.NarrativeTaskPayload) bool {
			assert.Equal(t, messaging.PromptTypeNextScene, task.PromptType)
			assert.Equal(t, choice.Text, task.SceneContext.LastChoiceText)
			assert.Equal(t, 1, task.SceneContext.TurnNumber)
			return true
		})).Return(nil).Once()

		result, err := h.svc.MakeChoice(ctx, playerID, state.ID, choice.ID, "I feel a bit anxious")

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.Intervention)
		assert.Equal(t, models.SessionStatusGeneratingScene, result.SessionStatus)
		require.NotNil(t, result.Consequences)
		assert.Equal(t, 52, state.Character.Attributes[models.AttrInsight])
		assert.Equal(t, 49, state.Character.Attributes[models.AttrCalm])
		assert.Len(t, state.RecentTurns, 1)
		h.assertExpectations(t)
	})

	t.Run("Turn already in progress", func(t *testing.T) {
		h := newLoopHarness(t)
		sessionID := uuid.New()

		h.cache.On("AcquireTurnLock", mock.Anything, sessionID, mock.Anything).Return(false, nil).Once()

		_, err := h.svc.MakeChoice(ctx, playerID, sessionID, uuid.New(), "")

		assert.ErrorIs(t, err, models.ErrTurnInProgress)
		h.assertExpectations(t)
	})

	t.Run("Crisis text suspends session without consuming choice", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("AcquireTurnLock", mock.Anything, state.ID, mock.Anything).Return(true, nil).Once()
		h.cache.On("ReleaseTurnLock", mock.Anything, state.ID).Return(nil).Once()
		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("GetByID", mock.Anything, scene.ID).Return(scene, nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.MatchedBy(func(st *models.SessionState) bool {
			return st.Status == models.SessionStatusSuspended
		})).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()
		h.clientPublisher.On("PublishClientUpdate", mock.Anything, mock.MatchedBy(func(update models.ClientSessionUpdate) bool {
			assert.Equal(t, models.ClientUpdateSessionSuspended, update.Type)
			require.NotNil(t, update.Safety)
			assert.Equal(t, models.DistressCritical, update.Safety.Level)
			assert.NotEmpty(t, update.Safety.CrisisResources)
			return true
		})).Return(nil).Once()

		result, err := h.svc.MakeChoice(ctx, playerID, state.ID, scene.Choices[0].ID, "sometimes I want to die")

		require.NoError(t, err)
		assert.True(t, result.Intervention)
		assert.Equal(t, models.SessionStatusSuspended, result.SessionStatus)
		assert.Nil(t, result.Consequences)
		assert.Empty(t, state.ChoiceHistory)
		h.assertExpectations(t)
	})

	t.Run("Choice not in scene", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("AcquireTurnLock", mock.Anything, state.ID, mock.Anything).Return(true, nil).Once()
		h.cache.On("ReleaseTurnLock", mock.Anything, state.ID).Return(nil).Once()
		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("GetByID", mock.Anything, scene.ID).Return(scene, nil).Once()
		h.cache.On("PushDistressScore", mock.Anything, state.ID, mock.Anything, 5).Return([]float64{0}, nil).Once()

		_, err := h.svc.MakeChoice(ctx, playerID, state.ID, uuid.New(), "")

		assert.ErrorIs(t, err, models.ErrInvalidChoice)
		h.assertExpectations(t)
	})

	t.Run("Replayed choice detected by graph", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		choice := scene.Choices[0]

		h.cache.On("AcquireTurnLock", mock.Anything, state.ID, mock.Anything).Return(true, nil).Once()
		h.cache.On("ReleaseTurnLock", mock.Anything, state.ID).Return(nil).Once()
		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("GetByID", mock.Anything, scene.ID).Return(scene, nil).Once()
		h.cache.On("PushDistressScore", mock.Anything, state.ID, mock.Anything, 5).Return([]float64{0}, nil).Once()
		h.cache.On("MarkConsequenceApplied", mock.Anything, choice.ID).Return(false, nil).Once()
		h.consequenceRepo.On("Create", mock.Anything, mock.Anything).Return(false, nil).Once()

		_, err := h.svc.MakeChoice(ctx, playerID, state.ID, choice.ID, "")

		assert.ErrorIs(t, err, models.ErrChoiceAlreadyMade)
		assert.Equal(t, 50, state.Character.Attributes[models.AttrCalm])
		h.assertExpectations(t)
	})

	t.Run("Suspended session rejects turns", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		state.Status = models.SessionStatusSuspended

		h.cache.On("AcquireTurnLock", mock.Anything, state.ID, mock.Anything).Return(true, nil).Once()
		h.cache.On("ReleaseTurnLock", mock.Anything, state.ID).Return(nil).Once()
		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		_, err := h.svc.MakeChoice(ctx, playerID, state.ID, scene.Choices[0].ID, "")

		assert.ErrorIs(t, err, models.ErrSessionSuspended)
	})
}

func TestProcessNarrativeResult(t *testing.T) {
	ctx := context.Background()
	playerID := uuid.New()

	const validSceneJSON = `{"n":"Ты выходишь к озеру, над водой поднимается туман.","ei":4,` +
		`"tf":["mindfulness"],"ns":"Герой добрался до озера в поисках покоя.",` +
		`"ch":[{"t":"Сесть у воды и понаблюдать за туманом","a":"mindfulness","dr":2,"ad":{"calm":2}},` +
		`{"t":"Записать мысли, которые привели сюда","a":"cbt","dr":3,"ad":{"insight":2}}]}`

	t.Run("Successful result installs generated scene", func(t *testing.T) {
		h := newLoopHarness(t)
		prevScene := testScene(uuid.New())
		state := activeSessionState(playerID, prevScene)
		state.Status = models.SessionStatusGeneratingScene

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("Create", mock.Anything, mock.MatchedBy(func(scene *models.Scene) bool {
			assert.Equal(t, state.ID, scene.SessionID)
			assert.Len(t, scene.Choices, 2)
			assert.NotEmpty(t, scene.ContentHash)
			return true
		})).Return(nil).Once()
		h.sceneRepo.On("LinkLeadsTo", mock.Anything, prevScene.ID, mock.Anything).Return(nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()
		h.clientPublisher.On("PublishClientUpdate", mock.Anything, mock.MatchedBy(func(update models.ClientSessionUpdate) bool {
			return update.Type == models.ClientUpdateSceneReady && update.SceneID != nil
		})).Return(nil).Once()

		err := h.svc.ProcessNarrativeResult(ctx, messaging.NarrativeResultPayload{
			TaskID:           uuid.New().String(),
			SessionID:        state.ID.String(),
			PlayerID:         playerID.String(),
			PromptType:       messaging.PromptTypeNextScene,
			Status:           messaging.ResultStatusSuccess,
			GeneratedContent: validSceneJSON,
		})

		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusActive, state.Status)
		assert.NotEqual(t, prevScene.ID, *state.CurrentSceneID)
		assert.Equal(t, "Герой добрался до озера в поисках покоя.", state.NarrativeSummary)
		h.assertExpectations(t)
	})

	t.Run("Error result installs fallback scene", func(t *testing.T) {
		h := newLoopHarness(t)
		prevScene := testScene(uuid.New())
		state := activeSessionState(playerID, prevScene)
		state.Status = models.SessionStatusGeneratingScene

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("Create", mock.Anything, mock.MatchedBy(func(scene *models.Scene) bool {
			return scene.IsFallback
		})).Return(nil).Once()
		h.sceneRepo.On("LinkLeadsTo", mock.Anything, prevScene.ID, mock.Anything).Return(nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()
		h.clientPublisher.On("PublishClientUpdate", mock.Anything, mock.MatchedBy(func(update models.ClientSessionUpdate) bool {
			return update.Type == models.ClientUpdateGenerationFailed
		})).Return(nil).Once()

		err := h.svc.ProcessNarrativeResult(ctx, messaging.NarrativeResultPayload{
			TaskID:       uuid.New().String(),
			SessionID:    state.ID.String(),
			PlayerID:     playerID.String(),
			Status:       messaging.ResultStatusError,
			ErrorDetails: "модель не ответила",
		})

		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusActive, state.Status)
		h.assertExpectations(t)
	})

	t.Run("Invalid generated content falls back", func(t *testing.T) {
		h := newLoopHarness(t)
		prevScene := testScene(uuid.New())
		state := activeSessionState(playerID, prevScene)
		state.Status = models.SessionStatusGeneratingScene

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sceneRepo.On("Create", mock.Anything, mock.MatchedBy(func(scene *models.Scene) bool {
			return scene.IsFallback
		})).Return(nil).Once()
		h.sceneRepo.On("LinkLeadsTo", mock.Anything, prevScene.ID, mock.Anything).Return(nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()
		h.clientPublisher.On("PublishClientUpdate", mock.Anything, mock.Anything).Return(nil).Once()

		err := h.svc.ProcessNarrativeResult(ctx, messaging.NarrativeResultPayload{
			TaskID:           uuid.New().String(),
			SessionID:        state.ID.String(),
			PlayerID:         playerID.String(),
			Status:           messaging.ResultStatusSuccess,
			GeneratedContent: `{"n":"сцена без выборов","ei":2,"ch":[]}`,
		})

		require.NoError(t, err)
		h.assertExpectations(t)
	})

	t.Run("Result ignored when session is not generating", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		err := h.svc.ProcessNarrativeResult(ctx, messaging.NarrativeResultPayload{
			TaskID:           uuid.New().String(),
			SessionID:        state.ID.String(),
			Status:           messaging.ResultStatusSuccess,
			GeneratedContent: validSceneJSON,
		})

		require.NoError(t, err)
		h.sceneRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	playerID := uuid.New()

	t.Run("EndSession archives and evicts cache", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.MatchedBy(func(st *models.SessionState) bool {
			assert.Equal(t, models.SessionStatusArchived, st.Status)
			assert.NotNil(t, st.ArchivedAt)
			return true
		})).Return(nil).Once()
		h.cache.On("DeleteSession", mock.Anything, state.ID).Return(nil).Once()

		err := h.svc.EndSession(ctx, playerID, state.ID)

		require.NoError(t, err)
		h.assertExpectations(t)
	})

	t.Run("EndSession is idempotent for archived sessions", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		state.Status = models.SessionStatusArchived

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		err := h.svc.EndSession(ctx, playerID, state.ID)

		require.NoError(t, err)
		h.sessionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("ResumeSession reactivates suspended session", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		state.Status = models.SessionStatusSuspended

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.Anything).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()

		got, err := h.svc.ResumeSession(ctx, playerID, state.ID)

		require.NoError(t, err)
		assert.Equal(t, models.SessionStatusActive, got.Status)
		h.assertExpectations(t)
	})

	t.Run("ResumeSession rejects active session", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		_, err := h.svc.ResumeSession(ctx, playerID, state.ID)

		assert.ErrorIs(t, err, models.ErrSessionNotSuspended)
	})

	t.Run("RetryGeneration requeues failed generation", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		state.Status = models.SessionStatusError
		details := "таймаут модели"
		state.ErrorDetails = &details
		state.ChoiceHistory = []uuid.UUID{uuid.New()}
		state.NarrativeSummary = "Герой на распутье."

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()
		h.taskPublisher.On("PublishNarrativeTask", mock.Anything, mock.MatchedBy(func(task messaging.NarrativeTaskPayload) bool {
			assert.Equal(t, messaging.PromptTypeNextScene, task.PromptType)
			assert.Equal(t, "Герой на распутье.", task.SceneContext.NarrativeSummary)
			return true
		})).Return(nil).Once()
		h.sessionRepo.On("Update", mock.Anything, mock.MatchedBy(func(st *models.SessionState) bool {
			return st.Status == models.SessionStatusGeneratingScene && st.ErrorDetails == nil
		})).Return(nil).Once()
		h.cache.On("SetSession", mock.Anything, mock.Anything).Return(nil).Once()

		err := h.svc.RetryGeneration(ctx, playerID, state.ID)

		require.NoError(t, err)
		h.assertExpectations(t)
	})

	t.Run("RetryGeneration rejects healthy session", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		err := h.svc.RetryGeneration(ctx, playerID, state.ID)

		assert.ErrorIs(t, err, models.ErrNothingToRetry)
	})

	t.Run("GetSafetyStatus reflects suspension", func(t *testing.T) {
		h := newLoopHarness(t)
		scene := testScene(uuid.New())
		state := activeSessionState(playerID, scene)
		state.Status = models.SessionStatusSuspended
		state.Emotional = models.EmotionalSnapshot{Level: models.DistressHigh, Score: 7.0, ObservedAt: time.Now().UTC()}

		h.cache.On("GetSession", mock.Anything, state.ID).Return(state, nil).Once()

		assessment, err := h.svc.GetSafetyStatus(ctx, playerID, state.ID)

		require.NoError(t, err)
		assert.Equal(t, models.DistressHigh, assessment.Level)
		assert.True(t, assessment.SuspendSession)
		assert.NotEmpty(t, assessment.CrisisResources)
		// Лестница эскалации целиком, а не только кризисные ресурсы.
		assert.NotEmpty(t, assessment.SupportOptions)
		assert.NotEmpty(t, assessment.ContentWarnings)
	})
}
