package consumer

import "context"

// Publisher is the narrow slice of broker.Client the C7/C8 consumers
// need to republish downstream payloads. Depending on the interface
// rather than *broker.Client keeps these consumers testable against a
// fake.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload interface{}) error
}
