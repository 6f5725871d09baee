package notify

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kunaal-theme/notify/internal/pkg/response"
)

// Content types that trigger subscriber notifications. Drafts, pages and
// micro-posts publish silently.
var notifiableTypes = map[string]bool{
	"post":  true,
	"essay": true,
}

const statusPublished = "published"

// Handler receives publish events from the CMS (server-to-server, behind
// admin auth) and decides whether to fan out.
type Handler struct {
	enq *Enqueuer
}

func NewHandler(enq *Enqueuer) *Handler { return &Handler{enq: enq} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.POST("/events/publish", authMW, h.publishEvent)
}

type publishEventDTO struct {
	ContentID   uint64 `json:"content_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Markdown    string `json:"markdown"`
	ContentType string `json:"content_type"`
	PrevStatus  string `json:"prev_status"`
	NewStatus   string `json:"new_status" binding:"required"`
	// Notify mirrors the per-post opt-out toggle; omitted means enabled.
	Notify       *bool      `json:"notify"`
	ScheduleMode string     `json:"schedule_mode"`
	DelayMinutes int        `json:"delay_minutes"`
	SendAt       *time.Time `json:"send_at"`
}

// publishEvent fans out only on a transition into published of a notifiable
// content type with notifications enabled. Everything else is acknowledged
// without side effects so the CMS can fire the hook unconditionally.
func (h *Handler) publishEvent(c *gin.Context) {
	var dto publishEventDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if skip, reason := shouldSkip(&dto); skip {
		response.Accepted(c, gin.H{"enqueued": 0, "skipped": reason})
		return
	}

	opts := ScheduleOptions{
		Mode:         dto.ScheduleMode,
		DelayMinutes: dto.DelayMinutes,
	}
	if dto.SendAt != nil {
		opts.At = dto.SendAt.UTC()
	}

	enqueued, err := h.enq.EnqueuePostNotification(c.Request.Context(), PublishedContent{
		ID:       dto.ContentID,
		Title:    dto.Title,
		URL:      dto.URL,
		Markdown: dto.Markdown,
	}, opts)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	response.Accepted(c, gin.H{"enqueued": enqueued})
}

func shouldSkip(dto *publishEventDTO) (bool, string) {
	if dto.NewStatus != statusPublished {
		return true, "not a publish"
	}
	if dto.PrevStatus == statusPublished {
		return true, "already published"
	}
	contentType := dto.ContentType
	if contentType == "" {
		contentType = "post"
	}
	if !notifiableTypes[contentType] {
		return true, "content type not notifiable"
	}
	if dto.Notify != nil && !*dto.Notify {
		return true, "notifications disabled for this content"
	}
	return false, ""
}
