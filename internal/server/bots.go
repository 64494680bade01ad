package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/comigor/botdesk/internal/logger"
	"github.com/comigor/botdesk/internal/store"
)

func internalError(c *gin.Context, msg string, err error) {
	logger.FromContext(c.Request.Context()).Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// getBot returns the public part of a bot, used by the embeddable widget.
func (h *handler) getBot(c *gin.Context) {
	bot, err := h.store.GetBot(c.Request.Context(), c.Param("botId"))
	if err != nil {
		internalError(c, "get bot failed", err)
		return
	}
	if bot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": bot.ID, "name": bot.Name, "primaryColor": bot.PrimaryColor})
}

// createBot accepts { name, systemPrompt, primaryColor?, userId? }.
func (h *handler) createBot(c *gin.Context) {
	var req struct {
		Name         string `json:"name"`
		SystemPrompt string `json:"systemPrompt"`
		PrimaryColor string `json:"primaryColor"`
		UserID       string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.SystemPrompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and systemPrompt are required"})
		return
	}

	bot := &store.Bot{Name: req.Name, SystemPrompt: req.SystemPrompt, PrimaryColor: req.PrimaryColor, UserID: req.UserID}
	if err := h.store.CreateBot(c.Request.Context(), bot); err != nil {
		internalError(c, "create bot failed", err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *handler) addDocument(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	ctx := c.Request.Context()
	botID := c.Param("botId")
	bot, err := h.store.GetBot(ctx, botID)
	if err != nil {
		internalError(c, "get bot failed", err)
		return
	}
	if bot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bot not found"})
		return
	}

	doc, err := h.store.AddDocument(ctx, botID, req.Content)
	if err != nil {
		internalError(c, "add document failed", err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *handler) listBots(c *gin.Context) {
	bots, err := h.store.ListBots(c.Request.Context())
	if err != nil {
		internalError(c, "list bots failed", err)
		return
	}
	c.JSON(http.StatusOK, bots)
}

// listConversations accepts ?limit=N, capped at the store default of 100.
func (h *handler) listConversations(c *gin.Context) {
	limit := store.DefaultConversationLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, store.DefaultConversationLimit)
	}

	convs, err := h.store.ListConversations(c.Request.Context(), limit)
	if err != nil {
		internalError(c, "list conversations failed", err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *handler) listMessages(c *gin.Context) {
	msgs, err := h.store.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		internalError(c, "list messages failed", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handler) stats(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		internalError(c, "stats failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
