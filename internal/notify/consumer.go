package notify

import (
	"context"

	"github.com/numera-app/numera/internal/backend"
)

// MessageSource is the slice of the backend API the consumer needs.
type MessageSource interface {
	ConsumeMessages(ctx context.Context) (backend.Messages, error)
}

// Consumer pulls accumulated backend warnings and errors into the store.
type Consumer struct {
	source MessageSource
	store  *Store
}

func NewConsumer(source MessageSource, store *Store) *Consumer {
	return &Consumer{
		source: source,
		store:  store,
	}
}

// Consume fetches one message batch and appends it atomically, errors
// first, in the order the backend returned them. On transport failure it
// synthesizes exactly one error notification and reports the failure to
// the caller.
func (c *Consumer) Consume(ctx context.Context) error {
	msgs, err := c.source.ConsumeMessages(ctx)
	if err != nil {
		c.store.Push("Backend messages unavailable", err.Error(), SeverityError)
		return err
	}
	if msgs.Empty() {
		return nil
	}

	batch := make([]draft, 0, len(msgs.Errors)+len(msgs.Warnings))
	for _, m := range msgs.Errors {
		batch = append(batch, draft{title: "Backend error", message: m, severity: SeverityError})
	}
	for _, m := range msgs.Warnings {
		batch = append(batch, draft{title: "Backend warning", message: m, severity: SeverityWarning})
	}
	c.store.append(batch)
	return nil
}
