package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"polychat/internal/annotate"
	"polychat/internal/models"
	"polychat/internal/service/chat"
)

// Chatbot is the single caller-facing operation of the core.
type Chatbot interface {
	Generate(ctx context.Context, userID, sessionID, text string) (string, error)
}

// HistoryReader exposes stored conversation state for display.
type HistoryReader interface {
	SessionMessages(ctx context.Context, sessionID string) ([]*models.Message, error)
	PreferredLanguage(ctx context.Context, userID string) (string, error)
}

// Handler wires HTTP routes to the chatbot and the message store.
type Handler struct {
	bot   Chatbot
	store HistoryReader
}

// NewHandler constructs a Handler instance.
func NewHandler(bot Chatbot, store HistoryReader) *Handler {
	return &Handler{bot: bot, store: store}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/chat", h.chatTurn)
	api.GET("/sessions/:session_id/messages", h.getSessionMessages)
	api.GET("/users/:user_id/preferred-language", h.getPreferredLanguage)
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *Handler) chatTurn(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := h.bot.Generate(c.Request.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		// model failures are reportable, not silently replaced
		if errors.Is(err, chat.ErrLLM) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":     reply,
		"language":  annotate.DetectLanguage(req.Message),
		"sentiment": annotate.ScoreSentiment(req.Message),
	})
}

func (h *Handler) getSessionMessages(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	messages, err := h.store.SessionMessages(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(messages) == 0 {
		c.JSON(http.StatusOK, gin.H{"messages": make([]models.Message, 0)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) getPreferredLanguage(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	language, err := h.store.PreferredLanguage(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"language": language,
	})
}
