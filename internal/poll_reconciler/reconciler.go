// Package poll_reconciler folds vote callbacks from the update feed into
// poll tallies and keeps the poll messages in the chat up to date.
package poll_reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"teleraid/internal/cursor"
	"teleraid/internal/gateway"
	"teleraid/internal/message_store"
	"teleraid/internal/metrics"
	"teleraid/internal/models"
	"teleraid/internal/poll"
)

// Reconciler owns the update cursor. Run and Cycle must not be called
// concurrently.
type Reconciler struct {
	gw        gateway.Gateway
	messages  *message_store.Store
	renderer  *poll.Renderer
	cursor    cursor.Store
	baseDelay time.Duration
	maxDelay  time.Duration
	logger    *zap.Logger

	offset int
	delay  time.Duration
	// retry holds records whose last edit failed.
	retry map[int]struct{}
}

// New creates a Reconciler. The poll delay starts at baseDelay, doubles on
// each failed fetch up to maxDelay, and resets after a clean cycle.
func New(
	gw gateway.Gateway,
	messages *message_store.Store,
	renderer *poll.Renderer,
	cursor cursor.Store,
	baseDelay, maxDelay time.Duration,
	logger *zap.Logger,
) *Reconciler {
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Reconciler{
		gw:        gw,
		messages:  messages,
		renderer:  renderer,
		cursor:    cursor,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		logger:    logger,
		delay:     baseDelay,
		retry:     make(map[int]struct{}),
	}
}

// Run restores the cursor and reconciles until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	offset, err := r.cursor.Load(ctx)
	if err != nil {
		r.logger.Warn("Failed to load update cursor, starting from the oldest pending update", zap.Error(err))
	}
	r.offset = offset
	r.logger.Info("Poll reconciler started", zap.Int("offset", r.offset))

	for {
		err := r.Cycle(ctx)
		if ctx.Err() != nil {
			r.logger.Info("Poll reconciler stopped.")
			return nil
		}
		if err != nil {
			r.logger.Warn("Reconcile cycle failed", zap.Error(err), zap.Duration("retry_in", r.nextDelay(err)))
		} else {
			r.nextDelay(nil)
		}
		metrics.SetReconcileDelay(r.delay)

		select {
		case <-ctx.Done():
			r.logger.Info("Poll reconciler stopped.")
			return nil
		case <-time.After(r.delay):
		}
	}
}

// Offset returns the id of the next update to fetch.
func (r *Reconciler) Offset() int { return r.offset }

// Delay returns the current wait between cycles.
func (r *Reconciler) Delay() time.Duration { return r.delay }

func (r *Reconciler) nextDelay(cycleErr error) time.Duration {
	if cycleErr == nil {
		r.delay = r.baseDelay
		return r.delay
	}
	r.delay *= 2
	if r.delay > r.maxDelay {
		r.delay = r.maxDelay
	}
	return r.delay
}

// Cycle fetches one batch of updates, folds the votes in it and edits
// every touched poll. Only a failed fetch is reported; the cursor is not
// advanced in that case.
func (r *Reconciler) Cycle(ctx context.Context) error {
	updates, err := r.gw.PollUpdates(ctx, r.offset)
	if err != nil {
		return fmt.Errorf("failed to fetch updates: %w", err)
	}

	touched := make(map[int]struct{}, len(r.retry))
	for id := range r.retry {
		touched[id] = struct{}{}
	}

	next := r.offset
	for _, u := range updates {
		if u.ID+1 > next {
			next = u.ID + 1
		}
		if u.Callback == nil {
			continue
		}
		if id, ok := r.fold(u.Callback); ok {
			touched[id] = struct{}{}
		}
	}

	if next != r.offset {
		r.offset = next
		if err := r.cursor.Save(ctx, next); err != nil {
			r.logger.Warn("Failed to save update cursor", zap.Int("offset", next), zap.Error(err))
		}
	}

	ids := make([]int, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		r.refresh(ctx, id)
	}
	return nil
}

// fold records one vote callback. It reports the message id to refresh.
func (r *Reconciler) fold(cb *gateway.Callback) (int, bool) {
	choice, ok := models.ParseChoice(cb.Data)
	if !ok || cb.MessageID == 0 {
		r.logger.Debug("Ignoring callback", zap.String("data", cb.Data), zap.Int("message_id", cb.MessageID))
		return 0, false
	}

	vote := models.Vote{UserID: cb.UserID, DisplayName: cb.DisplayName, Choice: choice}
	created, err := r.messages.Vote(cb.MessageID, vote, func() models.MessageRecord {
		text, spans := r.renderer.TrimRoster(cb.MessageText, cb.Spans)
		return models.MessageRecord{ChatID: cb.ChatID, Text: text, Spans: spans}
	})
	if errors.Is(err, message_store.ErrNotFound) {
		r.logger.Debug("Ignoring vote for removed message", zap.Int("message_id", cb.MessageID))
		return 0, false
	}
	if err != nil {
		r.logger.Error("Failed to record vote", zap.Int("message_id", cb.MessageID), zap.Error(err))
		return 0, false
	}

	metrics.VotesTotal.Inc()
	if created {
		r.logger.Info("Tracking poll for unknown message", zap.Int("message_id", cb.MessageID))
	}
	return cb.MessageID, true
}

// refresh recounts a poll and edits its message when the render changed.
// The record lock is held during the edit.
func (r *Reconciler) refresh(ctx context.Context, id int) {
	err := r.messages.Update(id, func(rec *models.MessageRecord) error {
		rec.Poll.Recount()
		if rec.Poll.Yes == 0 && rec.Poll.No == 0 {
			return nil
		}

		text, err := r.renderer.Render(*rec)
		if err != nil {
			return err
		}
		fp := poll.Fingerprint(text, rec.Poll)
		if fp == rec.Rendered {
			return nil
		}

		err = r.gw.EditMessage(ctx, rec.ChatID, rec.ID, text, gateway.ModeHTML, r.renderer.CountedKeyboard(rec.Poll))
		switch {
		case err == nil:
			metrics.EditsTotal.WithLabelValues("ok").Inc()
		case errors.Is(err, gateway.ErrNotModified):
			metrics.EditsTotal.WithLabelValues("not_modified").Inc()
		default:
			metrics.EditsTotal.WithLabelValues("error").Inc()
			return err
		}
		rec.Rendered = fp
		return nil
	})

	switch {
	case err == nil, errors.Is(err, message_store.ErrNotFound):
		delete(r.retry, id)
	default:
		r.retry[id] = struct{}{}
		r.logger.Warn("Failed to update poll message, will retry", zap.Int("message_id", id), zap.Error(err))
	}
}
