package realtime

import (
	"context"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/service/courier"
	"github.com/israelreshef/delivery-app-sub000/internal/service/dispatch"
	"github.com/israelreshef/delivery-app-sub000/internal/service/orders"
	"github.com/israelreshef/delivery-app-sub000/internal/service/tracking"
	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

var (
	_ dispatch.Notifier            = (*Hub)(nil)
	_ tracking.Broadcaster         = (*Hub)(nil)
	_ orders.Listener              = (*Hub)(nil)
	_ courier.AvailabilityListener = (*Hub)(nil)
)

// OfferOrder sends an offer to the courier's room.
func (h *Hub) OfferOrder(_ context.Context, courierID int64, o domain.Order, expiresAt time.Time) {
	h.Broadcast(TypeNewOrderOffer, OrderOffer{Order: wire.FromOrder(o), ExpiresAt: expiresAt}, RoomCourier(courierID))
}

// RevokeOffer withdraws an offer from the courier.
func (h *Hub) RevokeOffer(_ context.Context, courierID, orderID int64, reason string) {
	h.Broadcast(TypeOfferRevoked, OfferRevoked{OrderID: orderID, Reason: reason}, RoomCourier(courierID))
}

// SearchingForCourier tells the order's watchers and admins nobody accepted yet.
func (h *Hub) SearchingForCourier(_ context.Context, o domain.Order) {
	h.Broadcast(TypeSearchingForCourier, SearchingForCourier{OrderID: o.ID}, RoomOrder(o.ID), RoomAdmin)
}

// CourierLocation fans a position out to admins and the order being delivered.
func (h *Hub) CourierLocation(_ context.Context, courierID int64, loc domain.Location, orderID *int64) {
	msg := CourierLocation{
		CourierID:  courierID,
		Lat:        loc.Lat,
		Lng:        loc.Lng,
		OrderID:    orderID,
		RecordedAt: loc.RecordedAt,
	}
	rooms := []string{RoomAdmin}
	if orderID != nil {
		rooms = append(rooms, RoomOrder(*orderID))
	}
	h.Broadcast(TypeCourierLocationUpdate, msg, rooms...)
}

// OrderChanged publishes a committed change. Watchers get a compact update,
// the assigned courier gets the full order.
func (h *Hub) OrderChanged(_ context.Context, ch domain.OrderChange) {
	o := ch.Order
	h.Broadcast(TypeOrderUpdate, OrderUpdate{
		OrderID:   o.ID,
		Number:    o.Number,
		Status:    string(o.Status),
		Previous:  string(ch.Previous),
		CourierID: o.CourierID,
		Version:   o.Version,
		At:        o.UpdatedAt,
	}, RoomOrder(o.ID), RoomAdmin)

	if o.CourierID != nil {
		h.Broadcast(TypeDeliveryStatusUpdate, DeliveryStatusUpdate{Order: wire.FromOrder(o)}, RoomCourier(*o.CourierID))
		if o.Status == domain.OrderAssigned && ch.Previous == domain.OrderPending {
			h.Broadcast(TypeCourierAvailabilityUpdate, CourierAvailability{CourierID: *o.CourierID}, RoomAdmin)
		}
	}
	if ch.ReleasedCourierID != nil {
		h.Broadcast(TypeCourierAvailabilityUpdate, CourierAvailability{CourierID: *ch.ReleasedCourierID, Available: true}, RoomAdmin)
	}
}

// CourierAvailabilityChanged tells admins a courier toggled online or offline.
func (h *Hub) CourierAvailabilityChanged(_ context.Context, c domain.Courier) {
	h.Broadcast(TypeCourierAvailabilityUpdate, CourierAvailability{CourierID: c.ID, Available: c.Available}, RoomAdmin)
}
