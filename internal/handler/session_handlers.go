package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tta-server/internal/models"
)

// getUserIDFromContext извлекает UUID игрока, положенный auth middleware.
func getUserIDFromContext(c echo.Context) (uuid.UUID, error) {
	userID, ok := models.GetUserIDFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, fmt.Errorf("user_id не найден в контексте")
	}
	return userID, nil
}

// parseSessionID разбирает параметр :id.
func parseSessionID(c echo.Context) (uuid.UUID, error) {
	return uuid.Parse(c.Param("id"))
}

// startSession обрабатывает POST /sessions.
func (h *GameplayHandler) startSession(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}

	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Validation failed: " + err.Error()})
	}

	state, err := h.service.StartSession(c.Request().Context(), userID, req.FocusConcepts)
	if err != nil {
		return handleServiceError(c, err)
	}

	sessionsStartedTotal.Inc()
	return c.JSON(http.StatusCreated, toSessionResponse(state))
}

// listSessions обрабатывает GET /sessions.
func (h *GameplayHandler) listSessions(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}

	sessions, err := h.service.ListSessions(c.Request().Context(), userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	resp := make([]SessionResponseDTO, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s))
	}
	return c.JSON(http.StatusOK, resp)
}

// getCurrentScene обрабатывает GET /sessions/:id/scene.
func (h *GameplayHandler) getCurrentScene(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	scene, err := h.service.GetCurrentScene(c.Request().Context(), userID, sessionID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toSceneResponse(scene))
}

// makeChoice обрабатывает POST /sessions/:id/choice.
func (h *GameplayHandler) makeChoice(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	var req makeChoiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Validation failed: " + err.Error()})
	}
	choiceID, err := uuid.Parse(req.ChoiceID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid choice ID format"})
	}

	start := time.Now()
	result, err := h.service.MakeChoice(c.Request().Context(), userID, sessionID, choiceID, req.ReflectionText)
	choiceProcessingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return handleServiceError(c, err)
	}

	if result.Intervention {
		safetyInterventionsTotal.WithLabelValues(result.Safety.Level.String()).Inc()
		h.logger.Warn("Safety intervention on choice submission",
			zap.Stringer("sessionID", sessionID),
			zap.String("level", result.Safety.Level.String()))
	}

	return c.JSON(http.StatusOK, toTurnResultResponse(result))
}

// retryGeneration обрабатывает POST /sessions/:id/retry.
func (h *GameplayHandler) retryGeneration(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	if err := h.service.RetryGeneration(c.Request().Context(), userID, sessionID); err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "generation_queued"})
}

// resumeSession обрабатывает POST /sessions/:id/resume.
func (h *GameplayHandler) resumeSession(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	state, err := h.service.ResumeSession(c.Request().Context(), userID, sessionID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(state))
}

// getSafetyStatus обрабатывает GET /sessions/:id/safety.
func (h *GameplayHandler) getSafetyStatus(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	assessment, err := h.service.GetSafetyStatus(c.Request().Context(), userID, sessionID)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, assessment)
}

// endSession обрабатывает DELETE /sessions/:id.
func (h *GameplayHandler) endSession(c echo.Context) error {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, APIError{Message: err.Error()})
	}
	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, APIError{Message: "Invalid session ID format"})
	}

	if err := h.service.EndSession(c.Request().Context(), userID, sessionID); err != nil {
		return handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
