package consumer

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/omniwallet/chain-indexer/internal/metrics"
	"github.com/omniwallet/chain-indexer/model"
	"github.com/omniwallet/chain-indexer/push"
)

// NotificationsConsumer implements C9: the final delivery step for
// both NotificationsTransactions and NotificationsPriceAlerts, since
// both queues carry the same NotificationsPayload envelope. A delivery
// failure for one message does not stop delivery of the rest of the
// payload; once all have been attempted, Handle returns the last
// failure, so the payload is nacked and redelivered. §5 tolerates the
// resulting duplicate pushes far more readily than one bad device
// token blocking every other notification in the same payload.
type NotificationsConsumer struct {
	pusher push.Pusher
}

func NewNotificationsConsumer(pusher push.Pusher) *NotificationsConsumer {
	return &NotificationsConsumer{pusher: pusher}
}

func (c *NotificationsConsumer) Handle(ctx context.Context, body []byte) error {
	var payload model.NotificationsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return errors.Wrap(err, "consumer: decode NotificationsPayload")
	}
	var lastErr error
	for _, msg := range payload.Notifications {
		if err := c.pusher.Push(ctx, msg); err != nil {
			logger.Warn("push failed", "deviceToken", msg.DeviceToken, "err", err)
			lastErr = err
			continue
		}
		metrics.NotificationsSent()
	}
	return lastErr
}
