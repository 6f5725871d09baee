package subscribe

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kunaal-theme/notify/internal/config"
	"github.com/kunaal-theme/notify/internal/models"
	"github.com/kunaal-theme/notify/internal/modules/notify"
	"github.com/kunaal-theme/notify/internal/pkg/mail"
	"github.com/kunaal-theme/notify/internal/pkg/response"
	"github.com/kunaal-theme/notify/internal/pkg/signature"
	"go.uber.org/zap"
)

// transport is the slice of the mail transport the handler touches.
// Confirmation emails are interactive, so reachability is probed first.
type transport interface {
	mail.Sender
	Preflight(ctx context.Context) error
}

// Handler serves the public subscribe / confirm / unsubscribe surface.
type Handler struct {
	store    *Store
	signer   *signature.Service
	mailer   transport
	renderer *notify.Renderer
	cfg      config.NewsletterConfig
	logger   *zap.Logger
}

func NewHandler(
	store *Store,
	signer *signature.Service,
	mailer transport,
	renderer *notify.Renderer,
	cfg config.NewsletterConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		store:    store,
		signer:   signer,
		mailer:   mailer,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterAPIRoutes mounts the JSON endpoints.
func (h *Handler) RegisterAPIRoutes(rg *gin.RouterGroup) {
	rg.POST("/subscribe", h.subscribe)
}

// RegisterPublicRoutes mounts the human-facing link endpoints.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	g := r.Group("/subscribe")
	g.GET("/confirm", h.confirm)
	g.GET("/unsubscribe", h.unsubscribe)
}

type subscribeDTO struct {
	Email  string `json:"email" binding:"required"`
	Source string `json:"source"`
}

// Responses deliberately stay generic for existing addresses; the endpoint
// must not become an address oracle.
func (h *Handler) subscribe(c *gin.Context) {
	var dto subscribeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !ValidEmail(NormalizeEmail(dto.Email)) {
		response.BadRequest(c, "please enter a valid email address")
		return
	}

	existing, err := h.store.GetByEmail(dto.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		h.subscribeNew(c, dto)
		return
	case err != nil:
		response.InternalError(c, err)
		return
	}

	switch existing.Status {
	case models.SubscriberConfirmed:
		response.OK(c, gin.H{"message": "you're already subscribed"})
	case models.SubscriberPending:
		h.resendConfirmation(c, existing)
	default:
		// Unsubscribed stays unsubscribed; statuses never move backward.
		response.OK(c, gin.H{"message": "check your inbox"})
	}
}

func (h *Handler) subscribeNew(c *gin.Context, dto subscribeDTO) {
	sub, err := h.store.Insert(dto.Email, dto.Source)
	if errors.Is(err, ErrDuplicateEmail) {
		// Raced with another request for the same address.
		response.OK(c, gin.H{"message": "check your inbox"})
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}

	if err := h.sendConfirmation(c.Request.Context(), sub); err != nil {
		// The pending row stays; a later subscribe attempt resends.
		h.logger.Warn("confirmation send failed",
			zap.Uint64("subscriber_id", sub.ID), zap.Error(err))
		response.ServiceUnavailable(c, "we could not send the confirmation email right now, please try again later")
		return
	}

	h.logger.Info("subscriber created",
		zap.Uint64("subscriber_id", sub.ID), zap.String("source", sub.Source))
	response.Created(c, gin.H{"message": "check your inbox to confirm your subscription"})
}

func (h *Handler) resendConfirmation(c *gin.Context, sub *models.Subscriber) {
	cooldown := time.Duration(h.cfg.ResendCooldownMinutes) * time.Minute
	if sub.LastConfirmSentAt != nil && time.Since(*sub.LastConfirmSentAt) < cooldown {
		response.OK(c, gin.H{"message": "a confirmation email was sent recently, check your inbox"})
		return
	}
	if err := h.sendConfirmation(c.Request.Context(), sub); err != nil {
		h.logger.Warn("confirmation resend failed",
			zap.Uint64("subscriber_id", sub.ID), zap.Error(err))
		response.ServiceUnavailable(c, "we could not send the confirmation email right now, please try again later")
		return
	}
	response.OK(c, gin.H{"message": "confirmation email sent, check your inbox"})
}

// sendConfirmation rotates the token, stores only its hash, then delivers.
// The hash is written before the send so a delivered link always matches.
func (h *Handler) sendConfirmation(ctx context.Context, sub *models.Subscriber) error {
	if err := h.mailer.Preflight(ctx); err != nil {
		return err
	}

	token, err := signature.GenerateToken()
	if err != nil {
		return err
	}
	if err := h.store.SetTokenHash(sub.ID, h.signer.HashToken(token)); err != nil {
		return err
	}

	subject, body := h.renderer.RenderConfirm(h.signer.ConfirmURL(token))
	return h.mailer.Send(ctx, mail.Message{
		To:      sub.Email,
		Subject: subject,
		Body:    body,
	})
}

// confirm handles the emailed double-opt-in link. Only pending subscribers
// can confirm; a reused or unknown token renders the invalid page.
func (h *Handler) confirm(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		renderPage(c, http.StatusBadRequest, "Invalid link", msgInvalidConfirm)
		return
	}

	sub, err := h.store.GetByTokenHash(h.signer.HashToken(token))
	if errors.Is(err, ErrNotFound) {
		renderPage(c, http.StatusBadRequest, "Invalid link", msgInvalidConfirm)
		return
	}
	if err != nil {
		renderPage(c, http.StatusInternalServerError, "Something went wrong", msgTryLater)
		return
	}
	if sub.Status != models.SubscriberPending {
		renderPage(c, http.StatusBadRequest, "Invalid link", msgInvalidConfirm)
		return
	}

	if err := h.store.UpdateStatus(sub.ID, models.SubscriberConfirmed); err != nil {
		renderPage(c, http.StatusInternalServerError, "Something went wrong", msgTryLater)
		return
	}
	h.logger.Info("subscriber confirmed", zap.Uint64("subscriber_id", sub.ID))
	renderPage(c, http.StatusOK, "Subscription confirmed", msgConfirmed)
}

// unsubscribe handles the signed one-click link from every email footer.
// It is idempotent: a second click renders the same success page.
func (h *Handler) unsubscribe(c *gin.Context) {
	sid, err := strconv.ParseUint(c.Query("sid"), 10, 64)
	if err != nil || sid == 0 {
		renderPage(c, http.StatusBadRequest, "Invalid link", msgInvalidUnsub)
		return
	}
	email := c.Query("email")
	sig := c.Query("sig")
	if !h.signer.VerifyUnsubscribe(sid, email, sig) {
		renderPage(c, http.StatusBadRequest, "Invalid link", msgInvalidUnsub)
		return
	}

	sub, err := h.store.GetByID(sid)
	if errors.Is(err, ErrNotFound) {
		// Row is gone; there is nothing left to unsubscribe.
		renderPage(c, http.StatusOK, "Unsubscribed", msgUnsubscribed)
		return
	}
	if err != nil {
		renderPage(c, http.StatusInternalServerError, "Something went wrong", msgTryLater)
		return
	}

	if sub.Status != models.SubscriberUnsubscribed {
		if err := h.store.UpdateStatus(sub.ID, models.SubscriberUnsubscribed); err != nil {
			renderPage(c, http.StatusInternalServerError, "Something went wrong", msgTryLater)
			return
		}
		h.logger.Info("subscriber unsubscribed", zap.Uint64("subscriber_id", sub.ID))
	}
	renderPage(c, http.StatusOK, "Unsubscribed", msgUnsubscribed)
}
