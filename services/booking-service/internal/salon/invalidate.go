package salon

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// EventConfigChanged is published by salon-service whenever anything a booking config is built
// from changes.
const EventConfigChanged = "salon.config.changed.v1"

type configChanged struct {
	SalonID string `json:"salon_id"`
	Reason  string `json:"reason"`
}

// InvalidateOnChange returns a consumer handler dropping the cached configs of the salon named
// in the event. Malformed payloads are logged and skipped; Redis errors are returned so the
// consumer retries.
func InvalidateOnChange(cache *Cache, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt configChanged
		if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.SalonID == "" {
			logger.Error("invalid config change payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if err := cache.Invalidate(ctx, evt.SalonID); err != nil {
			return err
		}
		logger.Info("salon config cache invalidated", "salon_id", evt.SalonID, "reason", evt.Reason)
		return nil
	}
}
