package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/projectchat-server/internal/core"
	"github.com/vovakirdan/projectchat-server/internal/proto"
	"github.com/vovakirdan/projectchat-server/internal/store"
)

// ProjectHandlers serves read-only project chat endpoints.
type ProjectHandlers struct {
	store        store.Store
	hub          *core.Hub
	historyLimit int
	log          *zerolog.Logger
}

// NewProjectHandlers creates a new project handlers instance.
func NewProjectHandlers(st store.Store, hub *core.Hub, historyLimit int, logger *zerolog.Logger) *ProjectHandlers {
	return &ProjectHandlers{
		store:        st,
		hub:          hub,
		historyLimit: historyLimit,
		log:          logger,
	}
}

// MessagesResponse wraps a page of history.
type MessagesResponse struct {
	Data []proto.ChatMessage `json:"data"`
}

// ListMessages returns project history, oldest first.
// GET /api/projects/:projectId/messages?limit=&before=
func (h *ProjectHandlers) ListMessages(c *gin.Context) {
	projectID, ok := h.authorizeProject(c)
	if !ok {
		return
	}

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	messages, err := h.store.ListMessages(c.Request.Context(), projectID, limit, c.Query("before"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "before must name a message of this project"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("project_id", projectID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := MessagesResponse{Data: make([]proto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		resp.Data = append(resp.Data, chatMessageFromStore(msg))
	}
	c.JSON(http.StatusOK, resp)
}

// Online returns the users currently connected to the project room.
// GET /api/projects/:projectId/online
func (h *ProjectHandlers) Online(c *gin.Context) {
	projectID, ok := h.authorizeProject(c)
	if !ok {
		return
	}

	online, err := h.hub.Presence(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, core.ErrHubStopped) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "chat is shutting down"})
			return
		}
		h.log.Error().Err(err).Str("project_id", projectID).Msg("failed to read presence")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, proto.OnlineUsers{ProjectID: projectID, Online: online})
}

// authorizeProject writes the error response itself when it returns false.
func (h *ProjectHandlers) authorizeProject(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextKeyUserID)
	if userID == "" {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return "", false
	}

	projectID := c.Param("projectId")
	member, err := h.store.IsProjectMember(c.Request.Context(), projectID, userID)
	if err != nil {
		h.log.Error().Err(err).Str("project_id", projectID).Str("user_id", userID).Msg("membership lookup failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return "", false
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this project"})
		return "", false
	}
	return projectID, true
}
