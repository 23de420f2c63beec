package port

import (
	"context"

	"github.com/rl1809/stockkeeper/internal/core/domain"
)

type EventNotifier interface {
	Record(ctx context.Context, eventType domain.EventType, details map[string]any) (domain.Event, error)

	// List returns up to limit events, newest first. limit <= 0 returns all retained events.
	List(ctx context.Context, limit int) ([]domain.Event, error)
}
