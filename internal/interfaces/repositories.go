package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tta-server/internal/models"
)

// SessionRepository управляет узлами (:Session) в графе.
// Реализация обязана возвращать models.ErrNotFound / models.ErrSessionNotFound
// для отсутствующих записей, чтобы сервисный слой мог различать ошибки через errors.Is.
type SessionRepository interface {
	Create(ctx context.Context, state *models.SessionState) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	ListByPlayer(ctx context.Context, playerID uuid.UUID) ([]*models.SessionState, error)
	Update(ctx context.Context, state *models.SessionState) error
	CountActive(ctx context.Context, playerID uuid.UUID) (int, error)
	// LinkTherapeuticConcepts создает связи (:Session)-[:FOCUSES_ON]->(:TherapeuticConcept).
	LinkTherapeuticConcepts(ctx context.Context, sessionID uuid.UUID, concepts []string) error
}

// SceneRepository управляет узлами (:Scene) и (:Choice).
// Create сохраняет сцену вместе с ее выборами (OFFERS_CHOICE) атомарно;
// сцена после создания неизменяема.
type SceneRepository interface {
	Create(ctx context.Context, scene *models.Scene) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Scene, error)
	// LinkLeadsTo создает связь (:Scene)-[:LEADS_TO]->(:Scene) между последовательными сценами.
	LinkLeadsTo(ctx context.Context, fromSceneID, toSceneID uuid.UUID) error
}

// ConsequenceRepository фиксирует примененные последствия.
type ConsequenceRepository interface {
	// Create сохраняет ConsequenceSet и связь (:Choice)-[:RESULTS_IN]->(:ConsequenceSet)
	// через MERGE по ChoiceID. Возвращает false, если для выбора набор уже существует
	// (повторное применение).
	Create(ctx context.Context, cs *models.ConsequenceSet) (bool, error)
	// RecordChoiceMade создает связь (:Player)-[:MADE_CHOICE]->(:Choice).
	RecordChoiceMade(ctx context.Context, playerID, choiceID uuid.UUID, madeAt time.Time) error
}

// SessionCache - быстрый кэш эфемерного состояния сессии (Redis).
type SessionCache interface {
	SetSession(ctx context.Context, state *models.SessionState) error
	// GetSession возвращает models.ErrNotFound при промахе и
	// models.ErrSessionStateCorrupted, если запись не десериализуется.
	GetSession(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// AcquireTurnLock берет короткую блокировку на обработку хода (SET NX PX).
	// Возвращает false, если ход уже обрабатывается.
	AcquireTurnLock(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) (bool, error)
	ReleaseTurnLock(ctx context.Context, sessionID uuid.UUID) error

	// MarkConsequenceApplied ставит идемпотентный маркер применения последствий.
	// Возвращает false, если маркер уже стоял.
	MarkConsequenceApplied(ctx context.Context, choiceID uuid.UUID) (bool, error)

	// PushDistressScore добавляет оценку в скользящее окно дистресса сессии
	// и возвращает текущее окно (новые значения первыми).
	PushDistressScore(ctx context.Context, sessionID uuid.UUID, score float64, window int) ([]float64, error)
}
