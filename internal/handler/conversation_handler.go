package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
	"github.com/noah-isme/grit-challenge-api/pkg/response"
)

type conversationService interface {
	List(ctx context.Context, actor *models.JWTClaims) ([]models.Conversation, error)
	Thread(ctx context.Context, actor *models.JWTClaims, conversationID string) (*dto.ConversationThread, error)
	Reply(ctx context.Context, actor *models.JWTClaims, conversationID string, req dto.SendMessageRequest) (*models.Message, error)
	MarkRead(ctx context.Context, actor *models.JWTClaims, conversationID string) error
	Announce(ctx context.Context, actor *models.JWTClaims, req dto.AnnouncementRequest) (*dto.ConversationThread, error)
	StartDirect(ctx context.Context, actor *models.JWTClaims, req dto.DirectMessageRequest) (*dto.ConversationThread, error)
}

// ConversationHandler exposes review threads, announcements and direct messages.
type ConversationHandler struct {
	service conversationService
}

// NewConversationHandler constructs the handler.
func NewConversationHandler(service conversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// List godoc
// @Summary List conversations visible to the caller
// @Tags Conversations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	items, err := h.service.List(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Messages godoc
// @Summary Get a conversation with its messages
// @Tags Conversations
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} response.Envelope
// @Router /conversations/{id}/messages [get]
func (h *ConversationHandler) Messages(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	thread, err := h.service.Thread(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thread, nil)
}

// Reply godoc
// @Summary Post a message to a conversation
// @Tags Conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param payload body dto.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Router /conversations/{id}/messages [post]
func (h *ConversationHandler) Reply(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid message payload"))
		return
	}
	message, err := h.service.Reply(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// MarkRead godoc
// @Summary Mark a conversation read
// @Tags Conversations
// @Param id path string true "Conversation ID"
// @Success 204
// @Router /conversations/{id}/read [post]
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Announce godoc
// @Summary Broadcast an announcement to the school or a year level
// @Tags Conversations
// @Accept json
// @Produce json
// @Param payload body dto.AnnouncementRequest true "Announcement"
// @Success 201 {object} response.Envelope
// @Router /announcements [post]
func (h *ConversationHandler) Announce(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid announcement payload"))
		return
	}
	thread, err := h.service.Announce(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, thread)
}

// StartDirect godoc
// @Summary Open a direct thread with a student's family
// @Tags Conversations
// @Accept json
// @Produce json
// @Param payload body dto.DirectMessageRequest true "Direct message"
// @Success 201 {object} response.Envelope
// @Router /conversations/direct [post]
func (h *ConversationHandler) StartDirect(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.DirectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid direct message payload"))
		return
	}
	thread, err := h.service.StartDirect(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, thread)
}
