package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/service/intake"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

// SubmissionDTO is an intake message. Order is set for submissions, OrderID
// for cancellations.
type SubmissionDTO struct {
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	Order      *wire.CreateOrder `json:"order,omitempty"`
	OrderID    int64             `json:"order_id,omitempty"`
	CustomerID *int64            `json:"customer_id,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ToDomain converts SubmissionDTO to intake.Event.
func ToDomain(dto SubmissionDTO) (intake.Event, error) {
	typ := strings.TrimSpace(dto.Type)
	if typ == "" {
		return intake.Event{}, Permanent(fmt.Errorf("empty type"))
	}
	ev := intake.Event{
		Key:        strings.TrimSpace(dto.EventID),
		Type:       typ,
		OrderID:    dto.OrderID,
		CustomerID: dto.CustomerID,
		Reason:     strings.TrimSpace(dto.Reason),
		CreatedAt:  dto.CreatedAt,
	}
	if dto.Order != nil {
		d := dto.Order.ToDraft()
		ev.Draft = &d
	}
	return ev, nil
}

// OrderEventDTO is published for every committed order change.
type OrderEventDTO struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	OrderID        int64     `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	CourierID      *int64    `json:"courier_id,omitempty"`
	Version        int64     `json:"version"`
	At             time.Time `json:"at"`
}
