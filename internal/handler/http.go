package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tta-server/internal/authutils"
	"tta-server/internal/middleware"
	"tta-server/internal/models"
	"tta-server/internal/service"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// GameplayHandler обрабатывает HTTP запросы игрового цикла.
type GameplayHandler struct {
	service           service.GameplayLoopService
	logger            *zap.Logger
	userTokenVerifier *authutils.JWTVerifier
}

// NewGameplayHandler создает новый GameplayHandler.
func NewGameplayHandler(s service.GameplayLoopService, logger *zap.Logger, jwtSecret string) *GameplayHandler {
	verifier, err := authutils.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create User JWT Verifier", zap.Error(err))
	}
	return &GameplayHandler{
		service:           s,
		logger:            logger.Named("GameplayHandler"),
		userTokenVerifier: verifier,
	}
}

// RegisterRoutes регистрирует маршруты игрового цикла.
func (h *GameplayHandler) RegisterRoutes(e *echo.Echo, ws *WebSocketHandler) {
	e.Validator = NewCustomValidator()
	e.Use(MetricsMiddleware())

	authMiddleware := echo.WrapMiddleware(middleware.AuthMiddleware(h.userTokenVerifier.VerifyToken, h.logger))

	sessionsGroup := e.Group("/sessions", authMiddleware)
	{
		sessionsGroup.POST("", h.startSession)
		sessionsGroup.GET("", h.listSessions)
		sessionsGroup.GET("/:id/scene", h.getCurrentScene)
		sessionsGroup.POST("/:id/choice", h.makeChoice)
		sessionsGroup.POST("/:id/retry", h.retryGeneration)
		sessionsGroup.POST("/:id/resume", h.resumeSession)
		sessionsGroup.GET("/:id/safety", h.getSafetyStatus)
		sessionsGroup.DELETE("/:id", h.endSession)
	}

	// Токен для WebSocket передается query-параметром: браузерный API
	// не позволяет выставить заголовок Authorization при апгрейде.
	e.GET("/ws", ws.HandleWS)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// handleServiceError переводит сентинельные ошибки сервиса в HTTP статусы.
func handleServiceError(c echo.Context, err error) error {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		apiErr = APIError{Message: "Unauthorized"}
	case errors.Is(err, models.ErrForbidden):
		statusCode = http.StatusForbidden
		apiErr = APIError{Message: "Forbidden"}
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrSceneNotFound), errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found"}
	case errors.Is(err, models.ErrSceneGenerationPending):
		// Сцена еще не готова: клиент повторяет запрос или ждет push.
		statusCode = http.StatusAccepted
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrSessionLimitReached),
		errors.Is(err, models.ErrTurnInProgress),
		errors.Is(err, models.ErrChoiceAlreadyMade),
		errors.Is(err, models.ErrSceneIntegrity),
		errors.Is(err, models.ErrSessionInError),
		errors.Is(err, models.ErrNothingToRetry),
		errors.Is(err, models.ErrSessionNotSuspended):
		statusCode = http.StatusConflict
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrSessionSuspended):
		statusCode = http.StatusLocked
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrSessionArchived):
		statusCode = http.StatusGone
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrInvalidChoice), errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}
	return c.JSON(statusCode, apiErr)
}
