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

var _ interfaces.ConsequenceRepository = (*neo4jConsequenceRepository)(nil)

type neo4jConsequenceRepository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jConsequenceRepository creates a new Neo4j-backed ConsequenceRepository.
func NewNeo4jConsequenceRepository(driver neo4j.DriverWithContext, logger *zap.Logger) interfaces.ConsequenceRepository {
	return &neo4jConsequenceRepository{
		driver: driver,
		logger: logger.Named("Neo4jConsequenceRepo"),
	}
}

// Create сохраняет набор последствий через MERGE по choice_id.
// MERGE - точка идемпотентности на уровне графа: у одного выбора
// может быть ровно один ConsequenceSet. Возвращает false, если
// набор уже существовал (повторное применение не производилось).
func (r *neo4jConsequenceRepository) Create(ctx context.Context, cs *models.ConsequenceSet) (bool, error) {
	immediateJSON, err := json.Marshal(cs.Immediate)
	if err != nil {
		return false, fmt.Errorf("ошибка сериализации Immediate: %w", err)
	}
	delayedJSON, err := json.Marshal(cs.Delayed)
	if err != nil {
		return false, fmt.Errorf("ошибка сериализации Delayed: %w", err)
	}
	insightsJSON, err := json.Marshal(cs.Insights)
	if err != nil {
		return false, fmt.Errorf("ошибка сериализации Insights: %w", err)
	}
	deltasJSON, err := json.Marshal(cs.AttributeDeltas)
	if err != nil {
		return false, fmt.Errorf("ошибка сериализации AttributeDeltas: %w", err)
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:Choice {id: $choice_id})
			MERGE (c)-[:RESULTS_IN]->(cs:ConsequenceSet {choice_id: $choice_id})
			ON CREATE SET
				cs.id = $id,
				cs.session_id = $session_id,
				cs.immediate = $immediate,
				cs.delayed = $delayed,
				cs.insights = $insights,
				cs.attribute_deltas = $attribute_deltas,
				cs.created_at = $created_at
			RETURN cs.id = $id AS created
		`, map[string]any{
			"id":               cs.ID.String(),
			"choice_id":        cs.ChoiceID.String(),
			"session_id":       cs.SessionID.String(),
			"immediate":        string(immediateJSON),
			"delayed":          string(delayedJSON),
			"insights":         string(insightsJSON),
			"attribute_deltas": string(deltasJSON),
			"created_at":       cs.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			// Пустой результат означает, что узел Choice не найден.
			return nil, models.ErrNotFound
		}
		created, _ := record.Get("created")
		return created, nil
	})
	if err != nil {
		if err == models.ErrNotFound {
			return false, models.ErrNotFound
		}
		r.logger.Error("Failed to persist consequence set", zap.Stringer("choiceID", cs.ChoiceID), zap.Error(err))
		return false, fmt.Errorf("ошибка сохранения набора последствий: %w", err)
	}

	created := result.(bool)
	if !created {
		r.logger.Warn("Consequence set already exists, skipping", zap.Stringer("choiceID", cs.ChoiceID))
	}
	return created, nil
}

// RecordChoiceMade фиксирует факт выбора: (:Player)-[:MADE_CHOICE {made_at}]->(:Choice).
// MERGE по паре узлов делает повторную запись безопасной.
func (r *neo4jConsequenceRepository) RecordChoiceMade(ctx context.Context, playerID, choiceID uuid.UUID, madeAt time.Time) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (p:Player {id: $player_id})
			MATCH (c:Choice {id: $choice_id})
			MERGE (p)-[m:MADE_CHOICE]->(c)
			ON CREATE SET m.made_at = $made_at
		`, map[string]any{
			"player_id": playerID.String(),
			"choice_id": choiceID.String(),
			"made_at":   madeAt,
		})
		return nil, err
	})
	if err != nil {
		r.logger.Error("Failed to record choice",
			zap.Stringer("playerID", playerID),
			zap.Stringer("choiceID", choiceID),
			zap.Error(err))
		return fmt.Errorf("ошибка создания связи MADE_CHOICE: %w", err)
	}
	return nil
}
