package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// NewNeo4jDriver создает драйвер и проверяет соединение.
func NewNeo4jDriver(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания драйвера Neo4j: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("не удалось подключиться к Neo4j (verify failed): %w", err)
	}
	return driver, nil
}

// schemaStatements - уникальные ограничения графовой схемы.
// Применяются идемпотентно при старте сервиса.
var schemaStatements = []string{
	"CREATE CONSTRAINT session_id_unique IF NOT EXISTS FOR (s:Session) REQUIRE s.id IS UNIQUE",
	"CREATE CONSTRAINT scene_id_unique IF NOT EXISTS FOR (sc:Scene) REQUIRE sc.id IS UNIQUE",
	"CREATE CONSTRAINT choice_id_unique IF NOT EXISTS FOR (c:Choice) REQUIRE c.id IS UNIQUE",
	"CREATE CONSTRAINT consequence_choice_unique IF NOT EXISTS FOR (cs:ConsequenceSet) REQUIRE cs.choice_id IS UNIQUE",
	"CREATE CONSTRAINT player_id_unique IF NOT EXISTS FOR (p:Player) REQUIRE p.id IS UNIQUE",
	"CREATE CONSTRAINT concept_name_unique IF NOT EXISTS FOR (t:TherapeuticConcept) REQUIRE t.name IS UNIQUE",
}

// EnsureSchema применяет ограничения уникальности к графу.
func EnsureSchema(ctx context.Context, driver neo4j.DriverWithContext, logger *zap.Logger) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ошибка применения ограничения схемы %q: %w", stmt, err)
		}
	}
	logger.Info("Neo4j schema constraints ensured", zap.Int("constraints", len(schemaStatements)))
	return nil
}
