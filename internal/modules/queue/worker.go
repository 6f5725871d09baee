package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kunaal-theme/notify/internal/config"
	"github.com/kunaal-theme/notify/internal/models"
	"github.com/kunaal-theme/notify/internal/modules/subscribe"
	"github.com/kunaal-theme/notify/internal/pkg/mail"
	"github.com/kunaal-theme/notify/internal/pkg/signature"
	"go.uber.org/zap"
)

const retryBaseDelay = 5 * time.Minute

// QueueStore is the worker's view of the queue.
type QueueStore interface {
	FetchDue(now time.Time, limit int) ([]models.QueueItem, error)
	Claim(id uint64, now time.Time) (bool, error)
	MarkSent(id uint64) error
	MarkFailed(id uint64, errMsg string) error
	MarkRetry(id uint64, errMsg string, nextAt time.Time) error
}

// RecipientSource resolves subscribers at send time.
type RecipientSource interface {
	GetByID(id uint64) (*models.Subscriber, error)
	TouchLastSent(id uint64) error
}

// BatchResult summarizes one worker pass for the cron log line.
type BatchResult struct {
	Processed int
	Sent      int
	Failed    int
	Retried   int
	Skipped   int
}

// Worker drains due queue rows. Rows are processed sequentially; throughput
// comes from the batch cadence, and correctness under overlapping workers
// comes from the claim UPDATE, not cooperation.
type Worker struct {
	cfg        config.NewsletterConfig
	store      QueueStore
	recipients RecipientSource
	sender     mail.Sender
	signer     *signature.Service
	logger     *zap.Logger
}

func NewWorker(
	cfg config.NewsletterConfig,
	store QueueStore,
	recipients RecipientSource,
	sender mail.Sender,
	signer *signature.Service,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		cfg:        cfg,
		store:      store,
		recipients: recipients,
		sender:     sender,
		signer:     signer,
		logger:     logger,
	}
}

// ProcessDueBatch claims and delivers up to the configured batch of due rows.
func (w *Worker) ProcessDueBatch(ctx context.Context, now time.Time) (BatchResult, error) {
	var result BatchResult

	limit := w.cfg.WorkerBatchLimit
	if limit <= 0 {
		limit = 30
	}
	items, err := w.store.FetchDue(now, limit)
	if err != nil {
		return result, fmt.Errorf("fetch due queue items: %w", err)
	}

	for i := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		w.processItem(ctx, &items[i], now, &result)
	}
	return result, nil
}

func (w *Worker) processItem(ctx context.Context, item *models.QueueItem, now time.Time, result *BatchResult) {
	claimed, err := w.store.Claim(item.ID, now)
	if err != nil {
		w.logger.Warn("claim failed", zap.Uint64("queue_id", item.ID), zap.Error(err))
		result.Skipped++
		return
	}
	if !claimed {
		// Another worker won the row between fetch and claim.
		result.Skipped++
		return
	}
	result.Processed++
	attempts := item.Attempts + 1 // mirrors the claim UPDATE

	sub, err := w.recipients.GetByID(item.SubscriberID)
	switch {
	case errors.Is(err, subscribe.ErrNotFound):
		w.fail(item.ID, "recipient no longer exists", result)
		return
	case err != nil:
		w.retryOrFail(item.ID, attempts, now, fmt.Errorf("load recipient: %w", err), FailureTransient, result)
		return
	}

	if !subscribe.ValidEmail(sub.Email) {
		w.fail(item.ID, fmt.Sprintf("invalid recipient address %q", sub.Email), result)
		return
	}
	if sub.Status == models.SubscriberUnsubscribed {
		w.fail(item.ID, "recipient unsubscribed", result)
		return
	}

	body := item.Body
	if w.cfg.ClickTracking {
		body = w.rewriteLinks(body, item.ID, sub.ID)
	}

	headers := decodeHeaders(item.Headers)
	headers = append(headers, "X-Entity-Ref-ID: "+uuid.NewString())

	sendErr := w.sender.Send(ctx, mail.Message{
		To:      sub.Email,
		Subject: item.Subject,
		Body:    body,
		Headers: headers,
	})
	if sendErr == nil {
		if err := w.store.MarkSent(item.ID); err != nil {
			w.logger.Error("mark sent failed", zap.Uint64("queue_id", item.ID), zap.Error(err))
		}
		if err := w.recipients.TouchLastSent(sub.ID); err != nil {
			w.logger.Warn("touch last sent failed", zap.Uint64("subscriber_id", sub.ID), zap.Error(err))
		}
		result.Sent++
		return
	}

	w.retryOrFail(item.ID, attempts, now, sendErr, Classify(sendErr), result)
}

func (w *Worker) fail(id uint64, reason string, result *BatchResult) {
	if err := w.store.MarkFailed(id, reason); err != nil {
		w.logger.Error("mark failed errored", zap.Uint64("queue_id", id), zap.Error(err))
	}
	result.Failed++
}

func (w *Worker) retryOrFail(id uint64, attempts int, now time.Time, sendErr error, class FailureClass, result *BatchResult) {
	maxAttempts := w.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	if class == FailureTransient && attempts < maxAttempts {
		nextAt := now.Add(retryBackoff(attempts))
		if err := w.store.MarkRetry(id, sendErr.Error(), nextAt); err != nil {
			w.logger.Error("mark retry failed", zap.Uint64("queue_id", id), zap.Error(err))
		}
		w.logger.Info("delivery will be retried",
			zap.Uint64("queue_id", id),
			zap.Int("attempt", attempts),
			zap.Time("next_at", nextAt),
			zap.Error(sendErr),
		)
		result.Retried++
		return
	}

	if err := w.store.MarkFailed(id, sendErr.Error()); err != nil {
		w.logger.Error("mark failed errored", zap.Uint64("queue_id", id), zap.Error(err))
	}
	w.logger.Warn("delivery failed terminally",
		zap.Uint64("queue_id", id),
		zap.Int("attempt", attempts),
		zap.String("class", string(class)),
		zap.Error(sendErr),
	)
	result.Failed++
}

// retryBackoff doubles per attempt: 5m, 10m, 20m, ...
func retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return retryBaseDelay << (attempts - 1)
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// rewriteLinks swaps body links for signed redirects. Unsubscribe and
// already-tracked links stay untouched; rewriting them would either break
// one-click unsubscribe or double-wrap.
func (w *Worker) rewriteLinks(body string, queueID, subscriberID uint64) string {
	return linkPattern.ReplaceAllStringFunc(body, func(raw string) string {
		target := trimLinkPunctuation(raw)
		trailing := raw[len(target):]
		if target == "" {
			return raw
		}
		if strings.Contains(target, "/subscribe/") || strings.Contains(target, "/t/c?") {
			return raw
		}
		return w.signer.ClickURL(queueID, subscriberID, target) + trailing
	})
}

// trimLinkPunctuation strips sentence punctuation that the link regexp
// swallows. A trailing ")" only comes off while it has no matching "(" in
// the URL, so paths like /wiki/Go_(game) keep their closing paren.
func trimLinkPunctuation(raw string) string {
	target := raw
	for {
		trimmed := strings.TrimRight(target, ".,;:!?")
		if strings.HasSuffix(trimmed, ")") &&
			strings.Count(trimmed, ")") > strings.Count(trimmed, "(") {
			trimmed = strings.TrimSuffix(trimmed, ")")
		}
		if trimmed == target {
			return target
		}
		target = trimmed
	}
}

func decodeHeaders(raw string) []string {
	if raw == "" {
		return nil
	}
	var headers []string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil
	}
	return headers
}
