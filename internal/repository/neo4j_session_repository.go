package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"tta-server/internal/interfaces"
	"tta-server/internal/models"
)

// Compile-time check to ensure neo4jSessionRepository implements SessionRepository
var _ interfaces.SessionRepository = (*neo4jSessionRepository)(nil)

type neo4jSessionRepository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jSessionRepository creates a new Neo4j-backed SessionRepository.
func NewNeo4jSessionRepository(driver neo4j.DriverWithContext, logger *zap.Logger) interfaces.SessionRepository {
	return &neo4jSessionRepository{
		driver: driver,
		logger: logger.Named("Neo4jSessionRepo"),
	}
}

// Статусы, считающиеся активными для лимита сессий.
var activeStatuses = []string{
	string(models.SessionStatusActive),
	string(models.SessionStatusGeneratingScene),
	string(models.SessionStatusSuspended),
	string(models.SessionStatusError),
}

func (r *neo4jSessionRepository) Create(ctx context.Context, state *models.SessionState) error {
	props, err := sessionToProps(state)
	if err != nil {
		return err
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Игрок создается лениво при первой сессии.
		_, err := tx.Run(ctx, `
			MERGE (p:Player {id: $player_id})
			CREATE (s:Session)
			SET s = $props
		`, map[string]any{
			"player_id": state.PlayerID.String(),
			"props":     props,
		})
		return nil, err
	})
	if err != nil {
		r.logger.Error("Failed to create session node", zap.Stringer("sessionID", state.ID), zap.Error(err))
		return fmt.Errorf("ошибка создания узла сессии: %w", err)
	}
	r.logger.Debug("Session node created", zap.Stringer("sessionID", state.ID))
	return nil
}

func (r *neo4jSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Session {id: $id})
			RETURN s
		`, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			// Single возвращает ошибку и для пустого результата.
			return nil, models.ErrSessionNotFound
		}
		node, ok := record.Get("s")
		if !ok {
			return nil, models.ErrSessionNotFound
		}
		return node.(neo4j.Node).Props, nil
	})
	if err != nil {
		if err == models.ErrSessionNotFound {
			return nil, models.ErrSessionNotFound
		}
		r.logger.Error("Failed to get session node", zap.Stringer("sessionID", id), zap.Error(err))
		return nil, fmt.Errorf("ошибка чтения узла сессии: %w", err)
	}

	state, err := sessionFromProps(result.(map[string]any))
	if err != nil {
		r.logger.Error("Failed to decode session node", zap.Stringer("sessionID", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrSessionStateCorrupted, err)
	}
	return state, nil
}

func (r *neo4jSessionRepository) ListByPlayer(ctx context.Context, playerID uuid.UUID) ([]*models.SessionState, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Session {player_id: $player_id})
			RETURN s
			ORDER BY s.last_activity_at DESC
		`, map[string]any{"player_id": playerID.String()})
		if err != nil {
			return nil, err
		}
		var states []*models.SessionState
		for res.Next(ctx) {
			node, ok := res.Record().Get("s")
			if !ok {
				continue
			}
			state, convErr := sessionFromProps(node.(neo4j.Node).Props)
			if convErr != nil {
				// Битую запись пропускаем, но логируем: остальные сессии игрока должны быть доступны.
				r.logger.Warn("Skipping corrupted session node", zap.Stringer("playerID", playerID), zap.Error(convErr))
				continue
			}
			states = append(states, state)
		}
		return states, res.Err()
	})
	if err != nil {
		r.logger.Error("Failed to list sessions", zap.Stringer("playerID", playerID), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка сессий: %w", err)
	}
	return result.([]*models.SessionState), nil
}

func (r *neo4jSessionRepository) Update(ctx context.Context, state *models.SessionState) error {
	props, err := sessionToProps(state)
	if err != nil {
		return err
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Session {id: $id})
			SET s = $props
			RETURN count(s) AS updated
		`, map[string]any{
			"id":    state.ID.String(),
			"props": props,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		updated, _ := record.Get("updated")
		return updated, nil
	})
	if err != nil {
		r.logger.Error("Failed to update session node", zap.Stringer("sessionID", state.ID), zap.Error(err))
		return fmt.Errorf("ошибка обновления узла сессии: %w", err)
	}
	if updated, ok := result.(int64); ok && updated == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (r *neo4jSessionRepository) CountActive(ctx context.Context, playerID uuid.UUID) (int, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (s:Session {player_id: $player_id})
			WHERE s.status IN $statuses
			RETURN count(s) AS active
		`, map[string]any{
			"player_id": playerID.String(),
			"statuses":  activeStatuses,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		active, _ := record.Get("active")
		return active, nil
	})
	if err != nil {
		r.logger.Error("Failed to count active sessions", zap.Stringer("playerID", playerID), zap.Error(err))
		return 0, fmt.Errorf("ошибка подсчета активных сессий: %w", err)
	}
	return int(result.(int64)), nil
}

func (r *neo4jSessionRepository) LinkTherapeuticConcepts(ctx context.Context, sessionID uuid.UUID, concepts []string) error {
	if len(concepts) == 0 {
		return nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (s:Session {id: $id})
			UNWIND $concepts AS concept
			MERGE (t:TherapeuticConcept {name: concept})
			MERGE (s)-[:FOCUSES_ON]->(t)
		`, map[string]any{
			"id":       sessionID.String(),
			"concepts": concepts,
		})
		return nil, err
	})
	if err != nil {
		r.logger.Error("Failed to link therapeutic concepts", zap.Stringer("sessionID", sessionID), zap.Error(err))
		return fmt.Errorf("ошибка создания связей FOCUSES_ON: %w", err)
	}
	return nil
}

// --- Преобразование SessionState <-> свойства узла ---

// Вложенные структуры сериализуются в JSON строки: граф хранит их
// как непрозрачные снапшоты, навигация по ним не нужна.
func sessionToProps(state *models.SessionState) (map[string]any, error) {
	characterJSON, err := json.Marshal(state.Character)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации Character: %w", err)
	}
	progressJSON, err := json.Marshal(state.Progress)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации Progress: %w", err)
	}
	emotionalJSON, err := json.Marshal(state.Emotional)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации Emotional: %w", err)
	}
	turnsJSON, err := json.Marshal(state.RecentTurns)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации RecentTurns: %w", err)
	}

	history := make([]string, len(state.ChoiceHistory))
	for i, id := range state.ChoiceHistory {
		history[i] = id.String()
	}

	props := map[string]any{
		"id":                state.ID.String(),
		"player_id":         state.PlayerID.String(),
		"status":            string(state.Status),
		"choice_history":    history,
		"character":         string(characterJSON),
		"progress":          string(progressJSON),
		"emotional":         string(emotionalJSON),
		"difficulty":        state.Difficulty.String(),
		"recent_turns":      string(turnsJSON),
		"narrative_summary": state.NarrativeSummary,
		"focus_concepts":    state.FocusConcepts,
		"started_at":        state.StartedAt,
		"last_activity_at":  state.LastActivityAt,
	}
	if state.CurrentSceneID != nil {
		props["current_scene_id"] = state.CurrentSceneID.String()
	}
	if state.ErrorDetails != nil {
		props["error_details"] = *state.ErrorDetails
	}
	if state.ArchivedAt != nil {
		props["archived_at"] = *state.ArchivedAt
	}
	return props, nil
}

func sessionFromProps(props map[string]any) (*models.SessionState, error) {
	state := &models.SessionState{}

	id, err := uuid.Parse(stringProp(props, "id"))
	if err != nil {
		return nil, fmt.Errorf("невалидный id сессии: %w", err)
	}
	state.ID = id

	playerID, err := uuid.Parse(stringProp(props, "player_id"))
	if err != nil {
		return nil, fmt.Errorf("невалидный player_id: %w", err)
	}
	state.PlayerID = playerID

	state.Status = models.SessionStatus(stringProp(props, "status"))

	if raw := stringProp(props, "current_scene_id"); raw != "" {
		sceneID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("невалидный current_scene_id: %w", err)
		}
		state.CurrentSceneID = &sceneID
	}

	for _, raw := range stringSliceProp(props, "choice_history") {
		choiceID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("невалидный элемент choice_history: %w", err)
		}
		state.ChoiceHistory = append(state.ChoiceHistory, choiceID)
	}

	if err := json.Unmarshal([]byte(stringProp(props, "character")), &state.Character); err != nil {
		return nil, fmt.Errorf("ошибка десериализации Character: %w", err)
	}
	if err := json.Unmarshal([]byte(stringProp(props, "progress")), &state.Progress); err != nil {
		return nil, fmt.Errorf("ошибка десериализации Progress: %w", err)
	}
	if err := json.Unmarshal([]byte(stringProp(props, "emotional")), &state.Emotional); err != nil {
		return nil, fmt.Errorf("ошибка десериализации Emotional: %w", err)
	}
	if raw := stringProp(props, "recent_turns"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &state.RecentTurns); err != nil {
			return nil, fmt.Errorf("ошибка десериализации RecentTurns: %w", err)
		}
	}

	if level, ok := models.ParseDifficultyLevel(stringProp(props, "difficulty")); ok {
		state.Difficulty = level
	}

	state.NarrativeSummary = stringProp(props, "narrative_summary")
	state.FocusConcepts = stringSliceProp(props, "focus_concepts")

	if details := stringProp(props, "error_details"); details != "" {
		state.ErrorDetails = &details
	}

	state.StartedAt = timeProp(props, "started_at")
	state.LastActivityAt = timeProp(props, "last_activity_at")
	if t := timeProp(props, "archived_at"); !t.IsZero() {
		state.ArchivedAt = &t
	}

	return state, nil
}

// --- Helpers для чтения свойств узла ---

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceProp(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func timeProp(props map[string]any, key string) time.Time {
	if v, ok := props[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

func intProp(props map[string]any, key string) int {
	if v, ok := props[key].(int64); ok {
		return int(v)
	}
	return 0
}

func boolProp(props map[string]any, key string) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return false
}
