package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grit-challenge-api/internal/middleware"
	"github.com/noah-isme/grit-challenge-api/internal/models"
)

// Handlers groups the route handlers mounted under the API prefix.
type Handlers struct {
	Challenges    *ChallengeHandler
	Evidence      *EvidenceHandler
	Reviews       *ReviewHandler
	Conversations *ConversationHandler
	Reports       *ReportHandler
}

// RegisterRoutes mounts every authenticated endpoint on group.
func RegisterRoutes(group *gin.RouterGroup, tokens middleware.TokenValidator, h Handlers) {
	family := middleware.RequireRoles(models.RoleFamily)
	leader := middleware.RequireRoles(models.RoleLeader)

	secured := group.Group("", middleware.JWT(tokens))

	secured.GET("/challenges", h.Challenges.List)
	secured.GET("/challenges/:id", h.Challenges.Get)
	secured.POST("/challenges/:id/begin", family, h.Challenges.Begin)
	secured.GET("/progress", h.Challenges.Progress)
	secured.GET("/students/:id/summary", h.Challenges.Summary)

	secured.POST("/evidence", family, h.Evidence.Submit)
	secured.GET("/evidence", h.Evidence.List)
	secured.GET("/evidence/:id", h.Evidence.Get)
	secured.POST("/evidence/:id/resubmit", family, h.Evidence.Resubmit)

	reviews := secured.Group("/reviews", leader)
	reviews.GET("/pending", h.Reviews.Pending)
	reviews.POST("/:id/approve", h.Reviews.Approve)
	reviews.POST("/:id/request-changes", h.Reviews.RequestChanges)

	secured.GET("/conversations", h.Conversations.List)
	secured.POST("/conversations/direct", leader, h.Conversations.StartDirect)
	secured.GET("/conversations/:id/messages", h.Conversations.Messages)
	secured.POST("/conversations/:id/messages", h.Conversations.Reply)
	secured.POST("/conversations/:id/read", h.Conversations.MarkRead)
	secured.POST("/announcements", leader, h.Conversations.Announce)

	secured.GET("/reports/progress", leader, h.Reports.Progress)
}
