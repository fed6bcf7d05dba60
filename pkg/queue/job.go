package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes the raw JSON payload of one message.
	Handle(ctx context.Context, payload []byte) error
}
