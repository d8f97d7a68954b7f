// Package scheduler drives the raid lifecycle: it consumes webhook events,
// expires ended raids and hands due raids to the notifier.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"teleraid/internal/gateway"
	"teleraid/internal/message_store"
	"teleraid/internal/metrics"
	"teleraid/internal/models"
	"teleraid/internal/notifier"
	"teleraid/internal/queue"
	"teleraid/internal/raid_store"
)

// Notifier announces a raid. A nil error means the whole unit was sent.
type Notifier interface {
	Notify(ctx context.Context, r models.Raid) (models.MessageRecord, error)
}

// Scheduler is the single consumer of the event queue.
type Scheduler struct {
	events   *queue.Queue[models.Envelope]
	raids    *raid_store.Store
	messages *message_store.Store
	notifier Notifier
	gw       gateway.Gateway
	filter   raid_store.Filter
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a Scheduler. Expired raids have their messages deleted
// through gw.
func New(
	events *queue.Queue[models.Envelope],
	raids *raid_store.Store,
	messages *message_store.Store,
	n Notifier,
	gw gateway.Gateway,
	filter raid_store.Filter,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		events:   events,
		raids:    raids,
		messages: messages,
		notifier: n,
		gw:       gw,
		filter:   filter,
		now:      time.Now,
		logger:   logger,
	}
}

// Run pops events until ctx is cancelled. Each event is followed by an
// expiry pass and a notification pass, so lifecycle transitions happen only
// when events arrive.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started")
	for {
		env, err := s.events.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("Scheduler shutting down...")
				return nil
			}
			return err
		}
		s.Handle(ctx, env)
	}
}

// Handle runs one step of the driving loop for env.
func (s *Scheduler) Handle(ctx context.Context, env models.Envelope) {
	metrics.QueueDepth.Set(float64(s.events.Len()))

	now := s.now()
	s.ProcessEvent(env, now)
	s.Expire(ctx, now)
	s.NotifyDue(ctx, now)

	metrics.RaidsTracked.Set(float64(s.raids.Len()))
	metrics.MessageRecords.Set(float64(s.messages.Len()))
}

// ProcessEvent adds the raid carried by env if its gym is not yet tracked.
func (s *Scheduler) ProcessEvent(env models.Envelope, now time.Time) {
	log := s.logger.With(zap.String("delivery_id", env.DeliveryID))

	if env.Type != models.EventTypeRaid {
		metrics.EventsTotal.WithLabelValues("ignored").Inc()
		log.Debug("Ignoring event", zap.String("type", env.Type))
		return
	}

	raid, ok, err := models.DecodeRaid(env)
	if err != nil {
		metrics.EventsTotal.WithLabelValues("malformed").Inc()
		log.Warn("Discarding malformed event", zap.Error(err))
		return
	}
	if !ok {
		metrics.EventsTotal.WithLabelValues("egg").Inc()
		return
	}

	if raid.Expired(now) {
		metrics.EventsTotal.WithLabelValues("stale").Inc()
		log.Debug("Ignoring ended raid", zap.String("gym_id", raid.GymID))
		return
	}

	if !s.raids.Add(raid, now) {
		metrics.EventsTotal.WithLabelValues("duplicate").Inc()
		return
	}
	metrics.EventsTotal.WithLabelValues("added").Inc()
	log.Info("Raid tracked",
		zap.String("gym_id", raid.GymID),
		zap.Int("pokemon_id", raid.PokemonID),
		zap.Int("level", raid.Level),
		zap.Time("start", raid.Start),
		zap.Time("end", raid.End),
	)
}

// Expire drops every ended raid and deletes the messages sent for it.
// Each message id is requested for deletion once; failures are logged and
// the local record is removed anyway.
func (s *Scheduler) Expire(ctx context.Context, now time.Time) {
	for _, raid := range s.raids.Expire(now) {
		s.logger.Info("Raid expired", zap.String("gym_id", raid.GymID))

		s.messages.RemoveByGym(raid.GymID, func(rec models.MessageRecord) {
			for _, id := range rec.Siblings.IDs() {
				if err := s.gw.DeleteMessage(ctx, rec.ChatID, id); err != nil {
					metrics.DeletesTotal.WithLabelValues("error").Inc()
					s.logger.Warn("Failed to delete message",
						zap.String("gym_id", raid.GymID),
						zap.Int("message_id", id),
						zap.Error(err),
					)
					continue
				}
				metrics.DeletesTotal.WithLabelValues("ok").Inc()
			}
		})
	}
}

// NotifyDue announces every due raid in gym order and marks it notified on
// success. A failed raid stays eligible for the next pass.
func (s *Scheduler) NotifyDue(ctx context.Context, now time.Time) {
	for _, raid := range s.raids.Due(now, s.filter) {
		if ctx.Err() != nil {
			return
		}

		if _, err := s.notifier.Notify(ctx, raid); err != nil {
			stage := "unknown"
			var sendErr *notifier.SendError
			if errors.As(err, &sendErr) {
				stage = sendErr.Stage.String()
			}
			metrics.NotificationsTotal.WithLabelValues("failed_" + stage).Inc()
			s.logger.Error("Failed to notify raid",
				zap.String("gym_id", raid.GymID),
				zap.String("stage", stage),
				zap.Error(err),
			)
			continue
		}

		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		s.raids.MarkNotified(raid.GymID)
	}
}
