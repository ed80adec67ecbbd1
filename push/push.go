// Package push defines the Pusher boundary: the actual
// push-notification gateway (FCM/APNs or similar) is an external
// collaborator, out of this repository's scope. This package exists
// so the Notifications Consumer (C9) and the Transactions Consumer
// (C7) compile and test against a narrow interface instead of an
// inline function type.
package push

import (
	"context"

	"github.com/omniwallet/chain-indexer/model"
)

// Pusher delivers a push message to one device. Implementations (APNs,
// FCM, or a fan-out gateway) live outside this module. The
// Notifications Consumer (C9) is the only caller.
type Pusher interface {
	Push(ctx context.Context, msg model.PushMessage) error
}

// MessageBuilder renders a device/transaction/subscription tuple into
// the PushMessage the Transactions Consumer (C7) publishes to the
// notifications queue (§4.3 step 3e); the actual delivery happens
// later, downstream, in C9.
type MessageBuilder interface {
	Build(device model.Device, tx model.Transaction, sub model.Subscription) model.PushMessage
}

// NoopPusher discards every message; useful for tests and for running
// the pipeline with notifications disabled.
type NoopPusher struct{}

func (NoopPusher) Push(ctx context.Context, msg model.PushMessage) error { return nil }

var _ Pusher = NoopPusher{}

// DefaultMessageBuilder renders a terse, locale-agnostic notification;
// richer templating (locale/currency formatting) is an external
// collaborator's concern.
type DefaultMessageBuilder struct{}

func (DefaultMessageBuilder) Build(device model.Device, tx model.Transaction, sub model.Subscription) model.PushMessage {
	return model.PushMessage{
		DeviceToken: device.Token,
		Title:       "Transaction",
		Body:        tx.Hash,
		Data: map[string]string{
			"txId":      tx.ID,
			"direction": string(tx.Direction),
			"assetId":   tx.AssetID.String(),
			"value":     tx.Value,
		},
	}
}

var _ MessageBuilder = DefaultMessageBuilder{}
