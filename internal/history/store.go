package history

import (
	"context"
	"strings"
	"time"

	"github.com/numera-app/numera/internal/task"
)

// Entry is the journal record of one settled task.
type Entry struct {
	TaskID      task.ID   `json:"task_id"`
	Type        task.Type `json:"type"`
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	SettledAt   time.Time `json:"settled_at"`
}

type Store interface {
	SaveEntry(ctx context.Context, entry Entry) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// NewStore returns a nil store when no database is configured; the journal
// then keeps its in-memory ring only.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
