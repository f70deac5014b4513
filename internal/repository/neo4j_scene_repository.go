package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"tta-server/internal/interfaces"
	"tta-server/internal/models"
)

var _ interfaces.SceneRepository = (*neo4jSceneRepository)(nil)

type neo4jSceneRepository struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jSceneRepository creates a new Neo4j-backed SceneRepository.
func NewNeo4jSceneRepository(driver neo4j.DriverWithContext, logger *zap.Logger) interfaces.SceneRepository {
	return &neo4jSceneRepository{
		driver: driver,
		logger: logger.Named("Neo4jSceneRepo"),
	}
}

// Create сохраняет сцену и ее выборы одной транзакцией:
// (:Session)-[:HAS_SCENE]->(:Scene)-[:OFFERS_CHOICE]->(:Choice).
// Сцена неизменяема, поэтому используется CREATE, а не MERGE.
func (r *neo4jSceneRepository) Create(ctx context.Context, scene *models.Scene) error {
	choices := make([]map[string]any, len(scene.Choices))
	for i, ch := range scene.Choices {
		deltasJSON, err := json.Marshal(ch.AttributeDeltas)
		if err != nil {
			return fmt.Errorf("ошибка сериализации AttributeDeltas: %w", err)
		}
		choices[i] = map[string]any{
			"id":                  ch.ID.String(),
			"text":                ch.Text,
			"consequence_preview": ch.ConsequencePreview,
			"approach":            string(ch.Approach),
			"difficulty_rating":   ch.DifficultyRating,
			"attribute_deltas":    string(deltasJSON),
			"order":               i,
		}
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (sess:Session {id: $session_id})
			CREATE (sc:Scene {
				id: $id,
				session_id: $session_id,
				narrative: $narrative,
				emotional_intensity: $emotional_intensity,
				therapeutic_focus: $therapeutic_focus,
				content_hash: $content_hash,
				is_fallback: $is_fallback,
				created_at: $created_at
			})
			CREATE (sess)-[:HAS_SCENE]->(sc)
			WITH sc
			UNWIND $choices AS choice
			CREATE (c:Choice {
				id: choice.id,
				text: choice.text,
				consequence_preview: choice.consequence_preview,
				approach: choice.approach,
				difficulty_rating: choice.difficulty_rating,
				attribute_deltas: choice.attribute_deltas,
				order: choice.order
			})
			CREATE (sc)-[:OFFERS_CHOICE]->(c)
		`, map[string]any{
			"id":                  scene.ID.String(),
			"session_id":          scene.SessionID.String(),
			"narrative":           scene.Narrative,
			"emotional_intensity": scene.EmotionalIntensity,
			"therapeutic_focus":   scene.TherapeuticFocus,
			"content_hash":        scene.ContentHash,
			"is_fallback":         scene.IsFallback,
			"created_at":          scene.CreatedAt,
			"choices":             choices,
		})
		return nil, err
	})
	if err != nil {
		r.logger.Error("Failed to create scene node", zap.Stringer("sceneID", scene.ID), zap.Error(err))
		return fmt.Errorf("ошибка создания узла сцены: %w", err)
	}
	r.logger.Debug("Scene node created",
		zap.Stringer("sceneID", scene.ID),
		zap.Int("choices", len(scene.Choices)))
	return nil
}

func (r *neo4jSceneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Scene, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (sc:Scene {id: $id})
			OPTIONAL MATCH (sc)-[:OFFERS_CHOICE]->(c:Choice)
			WITH sc, c ORDER BY c.order
			RETURN sc, collect(c) AS choices
		`, map[string]any{"id": id.String()})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, models.ErrSceneNotFound
		}
		sceneNode, ok := record.Get("sc")
		if !ok {
			return nil, models.ErrSceneNotFound
		}
		scene, err := sceneFromProps(sceneNode.(neo4j.Node).Props)
		if err != nil {
			return nil, err
		}
		rawChoices, _ := record.Get("choices")
		for _, raw := range rawChoices.([]any) {
			node, ok := raw.(neo4j.Node)
			if !ok {
				continue
			}
			choice, err := choiceFromProps(node.Props)
			if err != nil {
				return nil, err
			}
			scene.Choices = append(scene.Choices, *choice)
		}
		return scene, nil
	})
	if err != nil {
		if err == models.ErrSceneNotFound {
			return nil, models.ErrSceneNotFound
		}
		r.logger.Error("Failed to get scene node", zap.Stringer("sceneID", id), zap.Error(err))
		return nil, fmt.Errorf("ошибка чтения узла сцены: %w", err)
	}
	return result.(*models.Scene), nil
}

// LinkLeadsTo связывает последовательные сцены. MERGE делает связь
// идемпотентной при повторной доставке результата генерации.
func (r *neo4jSceneRepository) LinkLeadsTo(ctx context.Context, fromSceneID, toSceneID uuid.UUID) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (from:Scene {id: $from_id})
			MATCH (to:Scene {id: $to_id})
			MERGE (from)-[:LEADS_TO]->(to)
		`, map[string]any{
			"from_id": fromSceneID.String(),
			"to_id":   toSceneID.String(),
		})
		return nil, err
	})
	if err != nil {
		r.logger.Error("Failed to link scenes",
			zap.Stringer("fromSceneID", fromSceneID),
			zap.Stringer("toSceneID", toSceneID),
			zap.Error(err))
		return fmt.Errorf("ошибка создания связи LEADS_TO: %w", err)
	}
	return nil
}

func sceneFromProps(props map[string]any) (*models.Scene, error) {
	scene := &models.Scene{}

	id, err := uuid.Parse(stringProp(props, "id"))
	if err != nil {
		return nil, fmt.Errorf("невалидный id сцены: %w", err)
	}
	scene.ID = id

	sessionID, err := uuid.Parse(stringProp(props, "session_id"))
	if err != nil {
		return nil, fmt.Errorf("невалидный session_id сцены: %w", err)
	}
	scene.SessionID = sessionID

	scene.Narrative = stringProp(props, "narrative")
	scene.EmotionalIntensity = intProp(props, "emotional_intensity")
	scene.TherapeuticFocus = stringSliceProp(props, "therapeutic_focus")
	scene.ContentHash = stringProp(props, "content_hash")
	scene.IsFallback = boolProp(props, "is_fallback")
	scene.CreatedAt = timeProp(props, "created_at")
	return scene, nil
}

func choiceFromProps(props map[string]any) (*models.Choice, error) {
	choice := &models.Choice{}

	id, err := uuid.Parse(stringProp(props, "id"))
	if err != nil {
		return nil, fmt.Errorf("невалидный id выбора: %w", err)
	}
	choice.ID = id

	choice.Text = stringProp(props, "text")
	choice.ConsequencePreview = stringProp(props, "consequence_preview")
	choice.Approach = models.TherapeuticApproach(stringProp(props, "approach"))
	choice.DifficultyRating = intProp(props, "difficulty_rating")

	if raw := stringProp(props, "attribute_deltas"); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &choice.AttributeDeltas); err != nil {
			return nil, fmt.Errorf("ошибка десериализации AttributeDeltas: %w", err)
		}
	}
	return choice, nil
}
