package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/wire"
)

// Inbound message types.
const (
	TypeJoin                  = "join"
	TypeTrack                 = "track"
	TypeLeave                 = "leave"
	TypeLocationUpdate        = "location_update"
	TypeCourierLocationUpdate = "courier_location_update"
	TypeStatusUpdate          = "status_update"
	TypePing                  = "ping"
)

// Outbound message types.
const (
	TypeJoined                    = "joined"
	TypeError                     = "error"
	TypePong                      = "pong"
	TypeNewOrderOffer             = "new_order_offer"
	TypeOfferRevoked              = "offer_revoked"
	TypeOrderUpdate               = "order_update"
	TypeDeliveryStatusUpdate      = "delivery_status_update"
	TypeCourierAvailabilityUpdate = "courier_availability_update"
	TypeSearchingForCourier       = "searching_for_courier"
	TypeStatusUpdateResult        = "status_update_result"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Room names.
const RoomAdmin = "role:admin"

// RoomOrder is the room of watchers of one order.
func RoomOrder(orderID int64) string { return fmt.Sprintf("order:%d", orderID) }

// RoomCourier is the private room of one courier.
func RoomCourier(courierID int64) string { return fmt.Sprintf("role:courier:%d", courierID) }

// JoinRequest authenticates the connection and subscribes it.
type JoinRequest struct {
	Role    string `json:"role"`
	ID      int64  `json:"id"`
	OrderID *int64 `json:"order_id,omitempty"`
	Token   string `json:"token"`
}

// TrackRequest subscribes to one more order.
type TrackRequest struct {
	OrderID int64 `json:"order_id"`
}

// LeaveRequest unsubscribes from a room.
type LeaveRequest struct {
	Room string `json:"room"`
}

// LocationRequest is a courier position report. CourierID is optional and
// must match the session when set.
type LocationRequest struct {
	CourierID int64   `json:"courier_id,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// StatusRequest moves the courier's order along its lifecycle.
type StatusRequest struct {
	RequestID string `json:"request_id"`
	OrderID   int64  `json:"order_id"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	ProofRef  string `json:"proof_ref,omitempty"`
}

// Joined confirms a join or track.
type Joined struct {
	Rooms []string `json:"rooms"`
}

// ErrorMessage reports a rejected inbound message.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OrderOffer is sent to a courier offered an order.
type OrderOffer struct {
	Order     wire.Order `json:"order"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// OfferRevoked withdraws an offer.
type OfferRevoked struct {
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderUpdate is a committed status change.
type OrderUpdate struct {
	OrderID   int64     `json:"order_id"`
	Number    string    `json:"order_number"`
	Status    string    `json:"status"`
	Previous  string    `json:"previous_status,omitempty"`
	CourierID *int64    `json:"courier_id"`
	Version   int64     `json:"version"`
	At        time.Time `json:"at"`
}

// DeliveryStatusUpdate carries the full order to its courier.
type DeliveryStatusUpdate struct {
	Order wire.Order `json:"order"`
}

// CourierLocation is a courier position broadcast.
type CourierLocation struct {
	CourierID  int64     `json:"courier_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	OrderID    *int64    `json:"order_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CourierAvailability tells admins a courier went online or offline.
type CourierAvailability struct {
	CourierID int64 `json:"courier_id"`
	Available bool  `json:"available"`
}

// SearchingForCourier tells watchers nobody took the order yet.
type SearchingForCourier struct {
	OrderID int64 `json:"order_id"`
}

// StatusResult answers a status_update.
type StatusResult struct {
	RequestID string        `json:"request_id"`
	OK        bool          `json:"ok"`
	Order     *wire.Order   `json:"order,omitempty"`
	Error     *ErrorMessage `json:"error,omitempty"`
}

func encode(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: raw})
}
