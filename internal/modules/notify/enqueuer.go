package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kunaal-theme/notify/internal/config"
	"github.com/kunaal-theme/notify/internal/models"
	"github.com/kunaal-theme/notify/internal/pkg/signature"
	"go.uber.org/zap"
)

// RecipientLister pages through confirmed subscribers during fan-out.
type RecipientLister interface {
	ListConfirmedPage(offset, limit int) ([]models.Subscriber, error)
}

// QueueInserter writes rendered rows into the outbound queue.
type QueueInserter interface {
	Insert(item *models.QueueItem) error
	// InsertIgnoreDuplicate reports false when the dedup index already holds
	// a row for (type, content, subscriber).
	InsertIgnoreDuplicate(item *models.QueueItem) (bool, error)
}

// Enqueuer renders and fans out one queue row per confirmed subscriber.
type Enqueuer struct {
	cfg        config.NewsletterConfig
	recipients RecipientLister
	queue      QueueInserter
	sched      *Scheduler
	signer     *signature.Service
	renderer   *Renderer
	logger     *zap.Logger
}

func NewEnqueuer(
	cfg config.NewsletterConfig,
	recipients RecipientLister,
	queue QueueInserter,
	sched *Scheduler,
	signer *signature.Service,
	renderer *Renderer,
	logger *zap.Logger,
) *Enqueuer {
	return &Enqueuer{
		cfg:        cfg,
		recipients: recipients,
		queue:      queue,
		sched:      sched,
		signer:     signer,
		renderer:   renderer,
		logger:     logger,
	}
}

// EnqueuePostNotification fans out a published-content notification. The
// dedup index makes a re-fired publish event a no-op, so the returned count
// only covers rows actually created.
func (e *Enqueuer) EnqueuePostNotification(ctx context.Context, content PublishedContent, opts ScheduleOptions) (int, error) {
	if content.ID == 0 {
		return 0, fmt.Errorf("enqueue post notification: content id is required")
	}
	sendAt := e.sched.ComputeSendTime(time.Now().UTC(), opts)
	contentID := content.ID

	enqueued := 0
	err := e.eachConfirmed(ctx, func(sub models.Subscriber) error {
		unsubURL := e.signer.UnsubscribeURL(sub.ID, sub.Email)
		subject, body := e.renderer.RenderPost(content, unsubURL)
		item := &models.QueueItem{
			Type:         models.QueueTypePostNotify,
			SubscriberID: sub.ID,
			ContentID:    &contentID,
			Subject:      subject,
			Body:         body,
			Headers:      encodeHeaders(listUnsubscribeHeader(unsubURL)),
			ScheduledAt:  sendAt,
			Status:       models.QueueStatusQueued,
		}
		inserted, err := e.queue.InsertIgnoreDuplicate(item)
		if err != nil {
			return err
		}
		if inserted {
			enqueued++
		}
		return nil
	})
	if err != nil {
		return enqueued, err
	}

	e.logger.Info("post notification fan-out complete",
		zap.Uint64("content_id", content.ID),
		zap.Int("enqueued", enqueued),
		zap.Time("scheduled_at", sendAt),
	)
	return enqueued, nil
}

// EnqueueBroadcast fans out a manual blast. Blasts carry no dedup key; each
// composed blast is its own batch of rows.
func (e *Enqueuer) EnqueueBroadcast(ctx context.Context, subjectTpl, bodyTpl string, sendAt time.Time) (int, error) {
	enqueued := 0
	err := e.eachConfirmed(ctx, func(sub models.Subscriber) error {
		unsubURL := e.signer.UnsubscribeURL(sub.ID, sub.Email)
		subject, body := e.renderer.RenderBroadcast(subjectTpl, bodyTpl, unsubURL)
		item := &models.QueueItem{
			Type:         models.QueueTypeManualBlast,
			SubscriberID: sub.ID,
			Subject:      subject,
			Body:         body,
			Headers:      encodeHeaders(listUnsubscribeHeader(unsubURL)),
			ScheduledAt:  sendAt,
			Status:       models.QueueStatusQueued,
		}
		if err := e.queue.Insert(item); err != nil {
			return err
		}
		enqueued++
		return nil
	})
	if err != nil {
		return enqueued, err
	}

	e.logger.Info("broadcast fan-out complete",
		zap.Int("enqueued", enqueued),
		zap.Time("scheduled_at", sendAt),
	)
	return enqueued, nil
}

// eachConfirmed walks confirmed subscribers in fan-out pages. Paging keeps
// memory flat however large the list grows.
func (e *Enqueuer) eachConfirmed(ctx context.Context, fn func(models.Subscriber) error) error {
	pageSize := e.cfg.FanoutBatchSize
	if pageSize <= 0 {
		pageSize = 500
	}
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := e.recipients.ListConfirmedPage(offset, pageSize)
		if err != nil {
			return fmt.Errorf("list confirmed subscribers (offset %d): %w", offset, err)
		}
		for _, sub := range page {
			if err := fn(sub); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

func listUnsubscribeHeader(unsubURL string) string {
	return "List-Unsubscribe: <" + unsubURL + ">"
}

func encodeHeaders(headers ...string) string {
	raw, _ := json.Marshal(headers)
	return string(raw)
}
