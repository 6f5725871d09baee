package blast

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kunaal-theme/notify/internal/middleware"
	"github.com/kunaal-theme/notify/internal/modules/notify"
	"github.com/kunaal-theme/notify/internal/modules/queue"
	"github.com/kunaal-theme/notify/internal/modules/subscribe"
	"github.com/kunaal-theme/notify/internal/pkg/cron"
	"github.com/kunaal-theme/notify/internal/pkg/jwt"
	"github.com/kunaal-theme/notify/internal/pkg/mail"
	"github.com/kunaal-theme/notify/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	adminTokenTTL   = 12 * time.Hour
	overviewRecent  = 50
	maxTestBodySize = 64 * 1024
)

type transport interface {
	mail.Sender
	Preflight(ctx context.Context) error
}

// Handler is the operator surface: compose blasts, send tests, watch the
// queue, requeue failures and poke cron jobs.
type Handler struct {
	enq         *notify.Enqueuer
	sched       *notify.Scheduler
	renderer    *notify.Renderer
	queueStore  *queue.Store
	subStore    *subscribe.Store
	mailer      transport
	jobs        *cron.Scheduler
	adminSecret string
	logger      *zap.Logger
}

func NewHandler(
	enq *notify.Enqueuer,
	sched *notify.Scheduler,
	renderer *notify.Renderer,
	queueStore *queue.Store,
	subStore *subscribe.Store,
	mailer transport,
	jobs *cron.Scheduler,
	adminSecret string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		enq:         enq,
		sched:       sched,
		renderer:    renderer,
		queueStore:  queueStore,
		subStore:    subStore,
		mailer:      mailer,
		jobs:        jobs,
		adminSecret: adminSecret,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.POST("/auth/token", h.issueToken)

	g := rg.Group("/admin", authMW)
	g.POST("/blast", h.createBlast)
	g.POST("/blast/test", h.testSend)
	g.GET("/queue", h.queueOverview)
	g.POST("/queue/:id/requeue", h.requeue)
	g.GET("/jobs", h.listJobs)
	g.POST("/jobs/:name/run", h.runJob)
}

type tokenDTO struct {
	Secret string `json:"secret" binding:"required"`
}

// issueToken exchanges the configured admin secret for a short-lived JWT.
func (h *Handler) issueToken(c *gin.Context) {
	var dto tokenDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if h.adminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(dto.Secret), []byte(h.adminSecret)) != 1 {
		response.Unauthorized(c)
		return
	}

	token, err := jwt.Sign(middleware.RoleAdmin, adminTokenTTL)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"token": token, "expires_in": int(adminTokenTTL.Seconds())})
}

type blastDTO struct {
	Subject      string     `json:"subject" binding:"required"`
	Body         string     `json:"body" binding:"required"`
	Mode         string     `json:"mode"`
	DelayMinutes int        `json:"delay_minutes"`
	SendAt       *time.Time `json:"send_at"`
}

func (h *Handler) createBlast(c *gin.Context) {
	var dto blastDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(dto.Subject) == "" || strings.TrimSpace(dto.Body) == "" {
		response.BadRequest(c, "subject and body must not be empty")
		return
	}

	opts := notify.ScheduleOptions{
		Mode:         dto.Mode,
		DelayMinutes: dto.DelayMinutes,
	}
	if dto.SendAt != nil {
		opts.At = dto.SendAt.UTC()
	}
	sendAt := h.sched.ComputeSendTime(time.Now().UTC(), opts)

	blastID := uuid.NewString()
	enqueued, err := h.enq.EnqueueBroadcast(c.Request.Context(), dto.Subject, dto.Body, sendAt)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	h.logger.Info("blast queued",
		zap.String("blast_id", blastID),
		zap.Int("enqueued", enqueued),
		zap.Time("scheduled_at", sendAt),
	)
	response.Created(c, gin.H{
		"blast_id":     blastID,
		"enqueued":     enqueued,
		"scheduled_at": sendAt,
	})
}

type testSendDTO struct {
	Subject string `json:"subject" binding:"required"`
	Body    string `json:"body" binding:"required"`
	To      string `json:"to" binding:"required"`
}

// testSend delivers one rendered copy immediately, bypassing the queue.
func (h *Handler) testSend(c *gin.Context) {
	var dto testSendDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	to := subscribe.NormalizeEmail(dto.To)
	if !subscribe.ValidEmail(to) {
		response.BadRequest(c, "please enter a valid recipient address")
		return
	}
	if len(dto.Body) > maxTestBodySize {
		response.BadRequest(c, "body too large")
		return
	}

	ctx := c.Request.Context()
	if err := h.mailer.Preflight(ctx); err != nil {
		response.ServiceUnavailable(c, err.Error())
		return
	}

	subject, body := h.renderer.RenderBroadcast(dto.Subject, dto.Body, "")
	if err := h.mailer.Send(ctx, mail.Message{To: to, Subject: "[test] " + subject, Body: body}); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "test email sent", "to": to})
}

func (h *Handler) queueOverview(c *gin.Context) {
	items, err := h.queueStore.ListRecent(overviewRecent)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	queueCounts, err := h.queueStore.CountByStatus()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	subCounts, err := h.subStore.CountByStatus()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"recent":      items,
		"queue":       queueCounts,
		"subscribers": subCounts,
	})
}

func (h *Handler) requeue(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid queue id")
		return
	}
	if err := h.queueStore.Requeue(id); err != nil {
		if errors.Is(err, queue.ErrNotRequeueable) {
			response.Conflict(c, "only failed items can be requeued")
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "requeued", "id": id})
}

func (h *Handler) listJobs(c *gin.Context) {
	response.OK(c, h.jobs.List())
}

func (h *Handler) runJob(c *gin.Context) {
	name := c.Param("name")
	if err := h.jobs.Run(c.Request.Context(), name); err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	response.Accepted(c, gin.H{"message": "job triggered", "name": name})
}
