package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/domain/repositories"
	"github.com/orbvoice/orb/internal/auth"
	"github.com/orbvoice/orb/internal/memory"
	"github.com/orbvoice/orb/internal/websocket"
)

const defaultListLimit = 50

// Handler carries the collaborators behind the REST routes.
type Handler struct {
	store      repositories.Store
	state      StateReader
	highlight  *memory.Ranker
	cache      *memory.FactCache
	tokens     *auth.TokenService
	requireJWT bool
	logger     *zap.Logger
}

// StateReader exposes the engine's live status to the API.
type StateReader interface {
	State() entities.TurnState
	AutoConverse() bool
}

// NewHandler builds the REST handler. The highlight ranker carries the
// UI hit weight, which differs from the prompt ranker's.
func NewHandler(store repositories.Store, state StateReader, highlight *memory.Ranker, cache *memory.FactCache, tokens *auth.TokenService, requireJWT bool, logger *zap.Logger) *Handler {
	return &Handler{
		store:      store,
		state:      state,
		highlight:  highlight,
		cache:      cache,
		tokens:     tokens,
		requireJWT: requireJWT,
		logger:     logger,
	}
}

// InitRoutes initializes all API routes.
func InitRoutes(e *echo.Echo, h *Handler, hub *websocket.Hub) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "orb-server",
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", h.issueToken)

	v1.GET("/state", h.getState)

	v1.GET("/conversations", h.getConversations)
	v1.GET("/conversations/search", h.searchConversations)

	v1.GET("/sessions", h.getSessions)
	v1.POST("/sessions", h.createSession)

	v1.GET("/personality", h.getPersonality)
	v1.PUT("/personality", h.upsertPersonality)
	v1.DELETE("/personality/:key", h.deletePersonality)
	v1.GET("/personality/highlight", h.highlightPersonality)

	v1.GET("/preferences/:key", h.getPreference)
	v1.PUT("/preferences/:key", h.setPreference)

	e.GET("/ws", func(c echo.Context) error {
		return h.websocketWithAuth(hub, c)
	})
}

// issueToken hands the local window a WebSocket credential. The server
// only listens on loopback; the token keeps other local processes from
// driving the engine.
func (h *Handler) issueToken(c echo.Context) error {
	token, err := h.tokens.GenerateClientToken(uuid.New().String())
	if err != nil {
		h.logger.Error("Failed to issue client token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate client token",
		})
	}

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})
}

func (h *Handler) getState(c echo.Context) error {
	return c.JSON(http.StatusOK, StateResponse{
		State:        h.state.State(),
		AutoConverse: h.state.AutoConverse(),
	})
}

func (h *Handler) getConversations(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	limit := queryLimit(c, defaultListLimit)

	messages, err := h.store.GetConversations(c.Request().Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("Failed to load conversations", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, messages)
}

func (h *Handler) searchConversations(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_query",
			Message: "q parameter is required",
		})
	}

	sessionID := c.QueryParam("session_id")
	limit := queryLimit(c, defaultListLimit)

	messages, err := h.store.SearchConversations(c.Request().Context(), query, sessionID, limit)
	if err != nil {
		h.logger.Error("Conversation search failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, messages)
}

func (h *Handler) getSessions(c echo.Context) error {
	sessions, err := h.store.GetSessions(c.Request().Context(), queryLimit(c, defaultListLimit))
	if err != nil {
		h.logger.Error("Failed to load sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *Handler) createSession(c echo.Context) error {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}

	session, err := h.store.CreateSession(c.Request().Context(), req.Title)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusCreated, session)
}

func (h *Handler) getPersonality(c echo.Context) error {
	facts, err := h.store.GetPersonality(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to load personality", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, facts)
}

func (h *Handler) upsertPersonality(c echo.Context) error {
	var req FactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}

	fact := &entities.PersonalityFact{Key: req.Key, Value: req.Value, Confidence: req.Confidence}
	if err := fact.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_fact",
			Message: err.Error(),
		})
	}

	if err := h.store.UpdatePersonality(c.Request().Context(), fact); err != nil {
		h.logger.Error("Failed to upsert fact", zap.String("key", req.Key), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	h.refreshCache(c)
	return c.JSON(http.StatusOK, fact)
}

func (h *Handler) deletePersonality(c echo.Context) error {
	key := c.Param("key")
	if err := h.store.DeletePersonality(c.Request().Context(), key); err != nil {
		h.logger.Error("Failed to delete fact", zap.String("key", key), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	h.refreshCache(c)
	return c.NoContent(http.StatusNoContent)
}

// highlightPersonality ranks the stored facts against a context
// utterance (typically the last user message) so the UI can glow the
// memories the assistant is likely drawing on.
func (h *Handler) highlightPersonality(c echo.Context) error {
	context := c.QueryParam("context")
	limit := queryLimit(c, 5)

	facts, err := h.store.GetPersonality(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to load personality", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}

	return c.JSON(http.StatusOK, HighlightResponse{
		Context: context,
		Facts:   h.highlight.Rank(facts, context, limit),
	})
}

func (h *Handler) getPreference(c echo.Context) error {
	key := c.Param("key")
	value, err := h.store.GetPreference(c.Request().Context(), key)
	if err != nil {
		h.logger.Error("Failed to load preference", zap.String("key", key), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, PreferenceResponse{Key: key, Value: value})
}

func (h *Handler) setPreference(c echo.Context) error {
	key := c.Param("key")

	var req PreferenceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request"})
	}

	pref := &entities.Preference{Key: key, Value: req.Value, Category: req.Category}
	if err := h.store.SetPreference(c.Request().Context(), pref); err != nil {
		h.logger.Error("Failed to set preference", zap.String("key", key), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "storage_error"})
	}
	return c.JSON(http.StatusOK, PreferenceResponse{Key: key, Value: req.Value})
}

// websocketWithAuth validates the client token before the upgrade. With
// no secret configured the check is skipped; the server binds loopback
// only.
func (h *Handler) websocketWithAuth(hub *websocket.Hub, c echo.Context) error {
	if h.requireJWT {
		token := c.QueryParam("token")
		if token == "" {
			authHeader := c.Request().Header.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				token = authHeader[7:]
			}
		}
		if token == "" {
			h.logger.Warn("WebSocket connection rejected: missing token")
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "client token required",
			})
		}

		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "invalid or expired client token",
			})
		}
		if claims.Role != "client" {
			return c.JSON(http.StatusForbidden, ErrorResponse{Error: "invalid_role"})
		}
	}

	return websocket.HandleWebSocket(hub, c, h.logger)
}

func (h *Handler) refreshCache(c echo.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Refresh(c.Request().Context()); err != nil {
		h.logger.Warn("Failed to refresh fact cache", zap.Error(err))
	}
}

func queryLimit(c echo.Context, fallback int) int {
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
