package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tta-server/internal/config"
	"tta-server/internal/generation"
	"tta-server/internal/interfaces"
	"tta-server/internal/messaging"
	"tta-server/internal/models"
)

// GameplayLoopService - единственный владелец SessionState и оркестратор
// игрового цикла. Подсистемы (нарратив, выборы, последствия, сложность,
// безопасность) вызываются только отсюда и не трогают хранилища сами.
type GameplayLoopService interface {
	// StartSession создает новую сессию и ставит задачу генерации первой сцены.
	StartSession(ctx context.Context, playerID uuid.UUID, focusConcepts []string) (*models.SessionState, error)
	// GetCurrentScene возвращает текущую сцену сессии.
	GetCurrentScene(ctx context.Context, playerID, sessionID uuid.UUID) (*models.Scene, error)
	// MakeChoice обрабатывает ход игрока: безопасность, валидация выбора,
	// последствия, калибровка сложности и постановка генерации следующей сцены.
	MakeChoice(ctx context.Context, playerID, sessionID, choiceID uuid.UUID, playerText string) (*models.TurnResult, error)
	// ListSessions возвращает сессии игрока (новые первыми).
	ListSessions(ctx context.Context, playerID uuid.UUID) ([]*models.SessionState, error)
	// EndSession архивирует сессию. Данные никогда не удаляются.
	EndSession(ctx context.Context, playerID, sessionID uuid.UUID) error
	// RetryGeneration повторяет неудавшуюся генерацию сцены.
	RetryGeneration(ctx context.Context, playerID, sessionID uuid.UUID) error
	// ResumeSession возобновляет приостановленную системой безопасности сессию.
	ResumeSession(ctx context.Context, playerID, sessionID uuid.UUID) (*models.SessionState, error)
	// GetSafetyStatus возвращает последнюю оценку безопасности сессии.
	GetSafetyStatus(ctx context.Context, playerID, sessionID uuid.UUID) (*models.SafetyAssessment, error)

	// ProcessNarrativeResult принимает результат генерации от воркера.
	// Реализует messaging.ResultProcessor.
	ProcessNarrativeResult(ctx context.Context, payload messaging.NarrativeResultPayload) error
}

type gameplayLoopServiceImpl struct {
	sessionRepo     interfaces.SessionRepository
	sceneRepo       interfaces.SceneRepository
	consequenceRepo interfaces.ConsequenceRepository
	cache           interfaces.SessionCache
	taskPublisher   messaging.TaskPublisher
	clientPublisher messaging.ClientUpdatePublisher

	narrative    NarrativeEngine
	choices      ChoiceArchitectureManager
	consequences ConsequenceSystem
	difficulty   AdaptiveDifficultyEngine
	safety       EmotionalSafetySystem

	cfg    *config.Config
	logger *zap.Logger
}

// NewGameplayLoopService creates a new GameplayLoopService.
func NewGameplayLoopService(
	sessionRepo interfaces.SessionRepository,
	sceneRepo interfaces.SceneRepository,
	consequenceRepo interfaces.ConsequenceRepository,
	cache interfaces.SessionCache,
	taskPublisher messaging.TaskPublisher,
	clientPublisher messaging.ClientUpdatePublisher,
	narrative NarrativeEngine,
	choices ChoiceArchitectureManager,
	consequences ConsequenceSystem,
	difficulty AdaptiveDifficultyEngine,
	safety EmotionalSafetySystem,
	cfg *config.Config,
	logger *zap.Logger,
) GameplayLoopService {
	if cfg == nil {
		panic("GameplayLoopService: cfg не может быть nil")
	}
	return &gameplayLoopServiceImpl{
		sessionRepo:     sessionRepo,
		sceneRepo:       sceneRepo,
		consequenceRepo: consequenceRepo,
		cache:           cache,
		taskPublisher:   taskPublisher,
		clientPublisher: clientPublisher,
		narrative:       narrative,
		choices:         choices,
		consequences:    consequences,
		difficulty:      difficulty,
		safety:          safety,
		cfg:             cfg,
		logger:          logger.Named("GameplayLoopService"),
	}
}

func (s *gameplayLoopServiceImpl) StartSession(ctx context.Context, playerID uuid.UUID, focusConcepts []string) (*models.SessionState, error) {
	log := s.logger.With(zap.Stringer("playerID", playerID))
	log.Info("StartSession called", zap.Strings("focusConcepts", focusConcepts))

	for _, c := range focusConcepts {
		if !models.IsValidApproach(models.TherapeuticApproach(c)) {
			return nil, fmt.Errorf("%w: неизвестный терапевтический концепт '%s'", models.ErrInvalidInput, c)
		}
	}

	active, err := s.sessionRepo.CountActive(ctx, playerID)
	if err != nil {
		log.Error("Failed to count active sessions", zap.Error(err))
		return nil, fmt.Errorf("ошибка подсчета активных сессий: %w", err)
	}
	if active >= s.cfg.MaxActiveSessions {
		log.Warn("Active session limit reached", zap.Int("active", active), zap.Int("limit", s.cfg.MaxActiveSessions))
		return nil, models.ErrSessionLimitReached
	}

	now := time.Now().UTC()
	state := &models.SessionState{
		ID:             uuid.New(),
		PlayerID:       playerID,
		Status:         models.SessionStatusGeneratingScene,
		ChoiceHistory:  []uuid.UUID{},
		Character:      models.NewCharacterState(),
		Difficulty:     models.DifficultyMedium,
		FocusConcepts:  focusConcepts,
		StartedAt:      now,
		LastActivityAt: now,
	}

	if err := s.sessionRepo.Create(ctx, state); err != nil {
		log.Error("Failed to create session in graph", zap.Error(err))
		return nil, fmt.Errorf("ошибка создания сессии: %w", err)
	}
	if len(focusConcepts) > 0 {
		if err := s.sessionRepo.LinkTherapeuticConcepts(ctx, state.ID, focusConcepts); err != nil {
			// Связи FOCUSES_ON вторичны для игрового цикла, сессию не ломаем.
			log.Warn("Failed to link therapeutic concepts", zap.Error(err))
		}
	}
	if err := s.cache.SetSession(ctx, state); err != nil {
		log.Warn("Failed to cache new session", zap.Error(err))
	}

	task := s.narrative.BuildInitialTask(state, s.difficulty.Directive(state.Difficulty), "")
	if err := s.taskPublisher.PublishNarrativeTask(ctx, task); err != nil {
		log.Error("Failed to publish initial generation task, falling back", zap.Error(err))
		if fbErr := s.installFallbackScene(ctx, state, nil); fbErr != nil {
			return nil, fbErr
		}
		return state, nil
	}

	log.Info("Session started, initial scene generation queued",
		zap.Stringer("sessionID", state.ID),
		zap.String("taskID", task.TaskID))
	return state, nil
}

func (s *gameplayLoopServiceImpl) GetCurrentScene(ctx context.Context, playerID, sessionID uuid.UUID) (*models.Scene, error) {
	log := s.logger.With(zap.Stringer("sessionID", sessionID))

	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.PlayerID != playerID {
		log.Warn("Scene requested by non-owner", zap.Stringer("playerID", playerID))
		return nil, models.ErrForbidden
	}

	switch state.Status {
	case models.SessionStatusGeneratingScene:
		return nil, models.ErrSceneGenerationPending
	case models.SessionStatusSuspended:
		return nil, models.ErrSessionSuspended
	case models.SessionStatusError:
		return nil, models.ErrSessionInError
	case models.SessionStatusCompleted, models.SessionStatusArchived:
		return nil, models.ErrSessionArchived
	}

	if state.CurrentSceneID == nil {
		return nil, models.ErrSceneNotFound
	}

	scene, err := s.sceneRepo.GetByID(ctx, *state.CurrentSceneID)
	if err != nil {
		log.Error("Failed to load current scene", zap.Stringer("sceneID", *state.CurrentSceneID), zap.Error(err))
		return nil, err
	}
	return scene, nil
}

func (s *gameplayLoopServiceImpl) MakeChoice(ctx context.Context, playerID, sessionID, choiceID uuid.UUID, playerText string) (*models.TurnResult, error) {
	log := s.logger.With(
		zap.Stringer("sessionID", sessionID),
		zap.Stringer("choiceID", choiceID))

	// Один ход за раз: блокировка снимает гонку двойной подачи.
	locked, err := s.cache.AcquireTurnLock(ctx, sessionID, s.cfg.TurnLockTTL)
	if err != nil {
		log.Error("Failed to acquire turn lock", zap.Error(err))
		return nil, fmt.Errorf("ошибка блокировки хода: %w", err)
	}
	if !locked {
		return nil, models.ErrTurnInProgress
	}
	defer func() {
		if err := s.cache.ReleaseTurnLock(context.WithoutCancel(ctx), sessionID); err != nil {
			log.Warn("Failed to release turn lock", zap.Error(err))
		}
	}()

	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.PlayerID != playerID {
		log.Warn("Choice submitted by non-owner", zap.Stringer("playerID", playerID))
		return nil, models.ErrForbidden
	}

	switch state.Status {
	case models.SessionStatusActive:
		// Ход возможен.
	case models.SessionStatusGeneratingScene:
		return nil, models.ErrSceneGenerationPending
	case models.SessionStatusSuspended:
		return nil, models.ErrSessionSuspended
	case models.SessionStatusError:
		return nil, models.ErrSessionInError
	default:
		return nil, models.ErrSessionArchived
	}

	if state.CurrentSceneID == nil {
		return nil, models.ErrSceneNotFound
	}
	scene, err := s.sceneRepo.GetByID(ctx, *state.CurrentSceneID)
	if err != nil {
		log.Error("Failed to load scene for choice", zap.Error(err))
		return nil, err
	}

	// Безопасность оценивается ПЕРВОЙ, до валидации выбора: кризисный
	// сигнал важнее корректности хода.
	assessment := s.safety.Assess(ctx, sessionID, playerText, scene.EmotionalIntensity)
	now := time.Now().UTC()
	state.Emotional = models.EmotionalSnapshot{
		Level:      assessment.Level,
		Score:      assessment.Score,
		ObservedAt: now,
	}

	if assessment.SuspendSession {
		return s.suspendSession(ctx, state, assessment)
	}

	choice, err := s.choices.ResolveChoice(scene, choiceID, state.ChoiceHistory)
	if err != nil {
		return nil, err
	}

	cs := s.consequences.Derive(sessionID, choice)

	// Идемпотентность применения: быстрый маркер в кэше плюс MERGE в графе.
	// Источник истины - граф: только первая запись RESULTS_IN применяет дельты.
	fresh, err := s.cache.MarkConsequenceApplied(ctx, choiceID)
	if err != nil {
		log.Warn("Consequence marker check failed, relying on graph", zap.Error(err))
	} else if !fresh {
		log.Warn("Consequence marker already present for choice")
	}
	created, err := s.consequenceRepo.Create(ctx, cs)
	if err != nil {
		log.Error("Failed to persist consequence set", zap.Error(err))
		return nil, fmt.Errorf("ошибка сохранения последствий: %w", err)
	}
	if !created {
		log.Warn("Consequence set already exists for choice, treating as replay")
		return nil, models.ErrChoiceAlreadyMade
	}

	s.consequences.Apply(&state.Character, &state.Progress, cs)

	responseDelay := now.Sub(state.LastActivityAt)
	state.AppendTurn(models.TurnOutcome{
		ChoiceID:      choiceID,
		Success:       cs.NetDelta() >= 0,
		Distress:      assessment.Level,
		ResponseDelay: responseDelay,
		CompletedAt:   now,
	})
	state.ChoiceHistory = append(state.ChoiceHistory, choiceID)

	newLevel, explanation := s.difficulty.Calibrate(state.Difficulty, state.RecentTurns)
	if newLevel != state.Difficulty {
		log.Info("Difficulty adjusted",
			zap.String("from", state.Difficulty.String()),
			zap.String("to", newLevel.String()))
		state.Difficulty = newLevel
	}

	if err := s.consequenceRepo.RecordChoiceMade(ctx, playerID, choiceID, now); err != nil {
		// История MADE_CHOICE аналитическая, ход из-за нее не откатываем.
		log.Warn("Failed to record MADE_CHOICE relation", zap.Error(err))
	}

	state.Status = models.SessionStatusGeneratingScene
	state.LastActivityAt = now
	if err := s.persistState(ctx, state); err != nil {
		return nil, err
	}

	result := &models.TurnResult{
		SessionStatus:         state.Status,
		Consequences:          cs,
		DifficultyExplanation: explanation,
		Safety:                assessment,
	}

	task := s.narrative.BuildNextTask(state, choice, cs,
		s.difficulty.Directive(state.Difficulty),
		SafetyDirectiveFor(assessment.Level))
	if err := s.taskPublisher.PublishNarrativeTask(ctx, task); err != nil {
		log.Error("Failed to publish next scene task, falling back", zap.Error(err))
		if fbErr := s.installFallbackScene(ctx, state, state.CurrentSceneID); fbErr != nil {
			return nil, fbErr
		}
		result.SessionStatus = state.Status
		return result, nil
	}

	log.Info("Choice processed, next scene generation queued",
		zap.String("taskID", task.TaskID),
		zap.Int("turn", len(state.ChoiceHistory)))
	return result, nil
}

// suspendSession переводит сессию в suspended и уведомляет клиента.
// Ход при этом НЕ обрабатывается: выбор не потребляется, последствия не применяются.
func (s *gameplayLoopServiceImpl) suspendSession(ctx context.Context, state *models.SessionState, assessment models.SafetyAssessment) (*models.TurnResult, error) {
	log := s.logger.With(zap.Stringer("sessionID", state.ID))
	log.Warn("Suspending session on safety assessment",
		zap.String("level", assessment.Level.String()),
		zap.Bool("degraded", assessment.Degraded))

	state.Status = models.SessionStatusSuspended
	state.LastActivityAt = time.Now().UTC()
	if err := s.persistState(ctx, state); err != nil {
		return nil, err
	}

	update := models.ClientSessionUpdate{
		Type:      models.ClientUpdateSessionSuspended,
		PlayerID:  state.PlayerID,
		SessionID: state.ID,
		Message:   "Сессия приостановлена. Мы рядом: посмотри варианты поддержки ниже.",
		Safety:    &assessment,
	}
	if err := s.clientPublisher.PublishClientUpdate(ctx, update); err != nil {
		log.Error("Failed to publish suspension update", zap.Error(err))
	}

	return &models.TurnResult{
		SessionStatus: state.Status,
		Safety:        assessment,
		Intervention:  true,
	}, nil
}

func (s *gameplayLoopServiceImpl) ListSessions(ctx context.Context, playerID uuid.UUID) ([]*models.SessionState, error) {
	sessions, err := s.sessionRepo.ListByPlayer(ctx, playerID)
	if err != nil {
		s.logger.Error("Failed to list sessions", zap.Stringer("playerID", playerID), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка сессий: %w", err)
	}
	return sessions, nil
}

func (s *gameplayLoopServiceImpl) EndSession(ctx context.Context, playerID, sessionID uuid.UUID) error {
	log := s.logger.With(zap.Stringer("sessionID", sessionID))

	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.PlayerID != playerID {
		return models.ErrForbidden
	}
	if state.Status == models.SessionStatusArchived {
		return nil
	}

	now := time.Now().UTC()
	state.Status = models.SessionStatusArchived
	state.ArchivedAt = &now
	state.LastActivityAt = now
	if err := s.sessionRepo.Update(ctx, state); err != nil {
		log.Error("Failed to archive session", zap.Error(err))
		return fmt.Errorf("ошибка архивирования сессии: %w", err)
	}
	if err := s.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Warn("Failed to evict archived session from cache", zap.Error(err))
	}

	log.Info("Session archived")
	return nil
}

func (s *gameplayLoopServiceImpl) RetryGeneration(ctx context.Context, playerID, sessionID uuid.UUID) error {
	log := s.logger.With(zap.Stringer("sessionID", sessionID))

	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.PlayerID != playerID {
		return models.ErrForbidden
	}
	if state.Status != models.SessionStatusError && state.Status != models.SessionStatusGeneratingScene {
		return models.ErrNothingToRetry
	}

	var task messaging.NarrativeTaskPayload
	if len(state.ChoiceHistory) == 0 {
		task = s.narrative.BuildInitialTask(state, s.difficulty.Directive(state.Difficulty), SafetyDirectiveFor(state.Emotional.Level))
	} else {
		// Текст последнего выбора не сохраняется в состоянии; генерация
		// при retry опирается на сводку сюжета.
		task = s.narrative.BuildNextTask(state, &models.Choice{}, nil,
			s.difficulty.Directive(state.Difficulty),
			SafetyDirectiveFor(state.Emotional.Level))
	}

	if err := s.taskPublisher.PublishNarrativeTask(ctx, task); err != nil {
		log.Error("Retry publish failed", zap.Error(err))
		return fmt.Errorf("ошибка повторной постановки генерации: %w", err)
	}

	state.Status = models.SessionStatusGeneratingScene
	state.ErrorDetails = nil
	state.LastActivityAt = time.Now().UTC()
	if err := s.persistState(ctx, state); err != nil {
		return err
	}

	log.Info("Generation retry queued", zap.String("taskID", task.TaskID))
	return nil
}

func (s *gameplayLoopServiceImpl) ResumeSession(ctx context.Context, playerID, sessionID uuid.UUID) (*models.SessionState, error) {
	log := s.logger.With(zap.Stringer("sessionID", sessionID))

	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.PlayerID != playerID {
		return nil, models.ErrForbidden
	}
	if state.Status != models.SessionStatusSuspended {
		return nil, models.ErrSessionNotSuspended
	}

	// Возобновление - осознанное действие игрока; если текущей сцены нет
	// (приостановка случилась до первой генерации), сразу ставим генерацию.
	state.Status = models.SessionStatusActive
	if state.CurrentSceneID == nil {
		state.Status = models.SessionStatusGeneratingScene
	}
	state.LastActivityAt = time.Now().UTC()
	if err := s.persistState(ctx, state); err != nil {
		return nil, err
	}

	if state.Status == models.SessionStatusGeneratingScene {
		task := s.narrative.BuildInitialTask(state, s.difficulty.Directive(state.Difficulty), SafetyDirectiveFor(state.Emotional.Level))
		if err := s.taskPublisher.PublishNarrativeTask(ctx, task); err != nil {
			log.Error("Failed to queue generation on resume, falling back", zap.Error(err))
			if fbErr := s.installFallbackScene(ctx, state, nil); fbErr != nil {
				return nil, fbErr
			}
		}
	}

	log.Info("Session resumed", zap.String("status", string(state.Status)))
	return state, nil
}

func (s *gameplayLoopServiceImpl) GetSafetyStatus(ctx context.Context, playerID, sessionID uuid.UUID) (*models.SafetyAssessment, error) {
	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.PlayerID != playerID {
		return nil, models.ErrForbidden
	}

	// Сохраненный уровень идет через ту же лестницу эскалации, что и
	// живая оценка: предупреждения и варианты поддержки включительно.
	assessment := s.safety.AssessmentFor(state.Emotional.Level, state.Emotional.Score)
	if state.Status == models.SessionStatusSuspended {
		assessment.SuspendSession = true
	}
	return &assessment, nil
}

func (s *gameplayLoopServiceImpl) ProcessNarrativeResult(ctx context.Context, payload messaging.NarrativeResultPayload) error {
	log := s.logger.With(
		zap.String("taskID", payload.TaskID),
		zap.String("sessionID", payload.SessionID))

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		log.Error("Result carries invalid session ID", zap.Error(err))
		return fmt.Errorf("некорректный SessionID в результате генерации: %w", err)
	}

	state, err := s.getSession(ctx, sessionID)
	if err != nil {
		log.Error("Session not found for generation result", zap.Error(err))
		return err
	}

	// Результат принимается только в статусе генерации: поздние дубликаты
	// и результаты после fallback просто игнорируются.
	if state.Status != models.SessionStatusGeneratingScene {
		log.Warn("Ignoring generation result: session is not generating",
			zap.String("status", string(state.Status)))
		return nil
	}

	if payload.Status != messaging.ResultStatusSuccess {
		log.Warn("Generation failed on worker side, installing fallback scene",
			zap.String("errorDetails", payload.ErrorDetails))
		return s.handleGenerationFailure(ctx, state, payload.ErrorDetails)
	}

	parsed, err := generation.ParseSceneContent(payload.GeneratedContent, sessionID)
	if err != nil {
		log.Error("Generated scene failed validation, installing fallback scene", zap.Error(err))
		return s.handleGenerationFailure(ctx, state, fmt.Sprintf("невалидный контент сцены: %v", err))
	}

	scene := parsed.Scene
	s.choices.EnsureChoices(scene)

	if err := s.sceneRepo.Create(ctx, scene); err != nil {
		log.Error("Failed to persist generated scene", zap.Error(err))
		return s.markSessionError(ctx, state, fmt.Sprintf("ошибка сохранения сцены: %v", err))
	}
	if state.CurrentSceneID != nil {
		if err := s.sceneRepo.LinkLeadsTo(ctx, *state.CurrentSceneID, scene.ID); err != nil {
			log.Warn("Failed to link LEADS_TO", zap.Error(err))
		}
	}

	state.CurrentSceneID = &scene.ID
	if parsed.NarrativeSummary != "" {
		state.NarrativeSummary = parsed.NarrativeSummary
	}
	state.Status = models.SessionStatusActive
	state.ErrorDetails = nil
	state.LastActivityAt = time.Now().UTC()
	if err := s.persistState(ctx, state); err != nil {
		return err
	}

	update := models.ClientSessionUpdate{
		Type:      models.ClientUpdateSceneReady,
		PlayerID:  state.PlayerID,
		SessionID: state.ID,
		SceneID:   &scene.ID,
	}
	if err := s.clientPublisher.PublishClientUpdate(ctx, update); err != nil {
		// Клиент доберет сцену повторным GET, push вторичен.
		log.Warn("Failed to publish scene_ready update", zap.Error(err))
	}

	log.Info("Generated scene installed",
		zap.Stringer("sceneID", scene.ID),
		zap.Int("choices", len(scene.Choices)))
	return nil
}

// handleGenerationFailure ставит fallback-сцену вместо упавшей генерации
// и уведомляет клиента. Сессия не остается мертвой.
func (s *gameplayLoopServiceImpl) handleGenerationFailure(ctx context.Context, state *models.SessionState, details string) error {
	if err := s.installFallbackScene(ctx, state, state.CurrentSceneID); err != nil {
		return s.markSessionError(ctx, state, details)
	}

	update := models.ClientSessionUpdate{
		Type:      models.ClientUpdateGenerationFailed,
		PlayerID:  state.PlayerID,
		SessionID: state.ID,
		SceneID:   state.CurrentSceneID,
		Message:   "История сделала небольшую паузу. Продолжай - следующая сцена уже ждет.",
	}
	if err := s.clientPublisher.PublishClientUpdate(ctx, update); err != nil {
		s.logger.Warn("Failed to publish generation_failed update",
			zap.Stringer("sessionID", state.ID), zap.Error(err))
	}
	return nil
}

// installFallbackScene сохраняет шаблонную сцену, связывает ее с предыдущей
// и активирует сессию.
func (s *gameplayLoopServiceImpl) installFallbackScene(ctx context.Context, state *models.SessionState, prevSceneID *uuid.UUID) error {
	log := s.logger.With(zap.Stringer("sessionID", state.ID))

	scene := s.narrative.FallbackScene(state.ID)
	if err := s.sceneRepo.Create(ctx, scene); err != nil {
		log.Error("Failed to persist fallback scene", zap.Error(err))
		return s.markSessionError(ctx, state, fmt.Sprintf("ошибка сохранения fallback-сцены: %v", err))
	}
	if prevSceneID != nil {
		if err := s.sceneRepo.LinkLeadsTo(ctx, *prevSceneID, scene.ID); err != nil {
			log.Warn("Failed to link LEADS_TO for fallback scene", zap.Error(err))
		}
	}

	state.CurrentSceneID = &scene.ID
	state.Status = models.SessionStatusActive
	state.ErrorDetails = nil
	state.LastActivityAt = time.Now().UTC()
	return s.persistState(ctx, state)
}

// markSessionError переводит сессию в error для последующего retry через API.
func (s *gameplayLoopServiceImpl) markSessionError(ctx context.Context, state *models.SessionState, details string) error {
	state.Status = models.SessionStatusError
	state.ErrorDetails = &details
	state.LastActivityAt = time.Now().UTC()
	if err := s.persistState(ctx, state); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", models.ErrSessionInError, details)
}

// persistState записывает состояние в граф и обновляет кэш.
// Граф - источник истины: ошибка записи в граф фатальна, ошибка кэша - нет.
func (s *gameplayLoopServiceImpl) persistState(ctx context.Context, state *models.SessionState) error {
	if err := s.sessionRepo.Update(ctx, state); err != nil {
		s.logger.Error("Failed to persist session state",
			zap.Stringer("sessionID", state.ID), zap.Error(err))
		return fmt.Errorf("ошибка сохранения состояния сессии: %w", err)
	}
	if err := s.cache.SetSession(ctx, state); err != nil {
		s.logger.Warn("Failed to refresh session cache",
			zap.Stringer("sessionID", state.ID), zap.Error(err))
	}
	return nil
}

// getSession читает состояние из кэша с восстановлением из графа.
func (s *gameplayLoopServiceImpl) getSession(ctx context.Context, sessionID uuid.UUID) (*models.SessionState, error) {
	state, err := s.cache.GetSession(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if errors.Is(err, models.ErrSessionStateCorrupted) {
		s.logger.Warn("Cached session state corrupted, recovering from graph",
			zap.Stringer("sessionID", sessionID), zap.Error(err))
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("Session cache read failed, falling back to graph",
			zap.Stringer("sessionID", sessionID), zap.Error(err))
	}

	state, err = s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cacheErr := s.cache.SetSession(ctx, state); cacheErr != nil {
		s.logger.Warn("Failed to re-cache recovered session",
			zap.Stringer("sessionID", sessionID), zap.Error(cacheErr))
	}
	return state, nil
}
