package intake

import (
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

// Event is an order submission or cancellation from an external channel.
type Event struct {
	// Key identifies the event for de-duplication. Empty disables it.
	Key        string
	Type       string
	Draft      *domain.OrderDraft
	OrderID    int64
	CustomerID *int64
	Reason     string
	CreatedAt  time.Time
}
