// workers/notification_worker.go
package workers

import (
	"context"

	"github.com/rs/zerolog/log"

	"match-lobby-system/models"
	"match-lobby-system/services"
)

// NotificationWorker decouples match resolution from event delivery: the
// engine enqueues without blocking and a single goroutine drains the buffer
// into the sink. A failed or dropped delivery is logged and forgotten; it
// never rolls back a match.
type NotificationWorker struct {
	sink   services.NotificationSink
	events chan models.MatchResolvedEvent
}

func NewNotificationWorker(sink services.NotificationSink, buffer int) *NotificationWorker {
	if buffer <= 0 {
		buffer = 256
	}
	return &NotificationWorker{
		sink:   sink,
		events: make(chan models.MatchResolvedEvent, buffer),
	}
}

// Enqueue hands an event to the worker. Never blocks: when the buffer is
// full the event is dropped with a warning.
func (w *NotificationWorker) Enqueue(event models.MatchResolvedEvent) {
	select {
	case w.events <- event:
	default:
		log.Warn().Str("match_id", event.MatchID).Msg("notification buffer full, event dropped")
	}
}

// Start drains the buffer until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	log.Info().Msg("notification worker started")
	for {
		select {
		case event := <-w.events:
			if err := w.sink.Notify(ctx, event); err != nil {
				log.Warn().Err(err).Str("match_id", event.MatchID).Msg("notification delivery failed")
			}
		case <-ctx.Done():
			log.Info().Msg("notification worker stopped")
			return
		}
	}
}
