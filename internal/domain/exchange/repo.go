package exchange

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Save(ctx context.Context, msg *InboundMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*InboundMessage, error)
	// GetByControlID returns the most recently received message with the
	// given control id. Senders may reuse control ids on resend.
	GetByControlID(ctx context.Context, controlID string) (*InboundMessage, error)
	List(ctx context.Context, limit, offset int) ([]*InboundMessage, int, error)
	ListByType(ctx context.Context, messageType string, limit, offset int) ([]*InboundMessage, int, error)
	Count(ctx context.Context) (int64, error)
}
