// Package wire holds the JSON shapes shared by the REST API, the realtime
// channel, the event stream and the courier client.
package wire

import (
	"time"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

// Address is a geocoded street address.
type Address struct {
	Street string  `json:"street"`
	City   string  `json:"city"`
	Notes  string  `json:"notes,omitempty"`
	Lat    float64 `json:"lat,omitempty"`
	Lng    float64 `json:"lng,omitempty"`
}

// Stop is a pickup or dropoff point.
type Stop struct {
	Address      Address `json:"address"`
	ContactName  string  `json:"contact_name"`
	ContactPhone string  `json:"contact_phone"`
}

// Package describes the parcel.
type Package struct {
	Description string  `json:"description,omitempty"`
	WeightKg    float64 `json:"weight_kg,omitempty"`
	Size        string  `json:"size,omitempty"`
}

// HistoryEntry is one status change.
type HistoryEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

// Order is the public view of an order.
type Order struct {
	ID                int64          `json:"id"`
	Number            string         `json:"order_number"`
	CustomerID        int64          `json:"customer_id"`
	Pickup            Stop           `json:"pickup"`
	Dropoff           Stop           `json:"dropoff"`
	Package           Package        `json:"package"`
	PriceCents        int64          `json:"price_cents"`
	Insured           bool           `json:"insured"`
	InsuredValueCents int64          `json:"insured_value_cents,omitempty"`
	Priority          string         `json:"priority"`
	DeliveryType      string         `json:"delivery_type"`
	CourierID         *int64         `json:"courier_id"`
	Status            string         `json:"status"`
	Version           int64          `json:"version"`
	ProofRef          string         `json:"proof_ref,omitempty"`
	History           []HistoryEntry `json:"history"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// CreateOrder is the body of an order submission.
type CreateOrder struct {
	CustomerID        int64   `json:"customer_id"`
	Pickup            Stop    `json:"pickup"`
	Dropoff           Stop    `json:"dropoff"`
	Package           Package `json:"package"`
	PriceCents        *int64  `json:"price_cents,omitempty"`
	Insured           bool    `json:"insured,omitempty"`
	InsuredValueCents int64   `json:"insured_value_cents,omitempty"`
	Priority          string  `json:"priority,omitempty"`
	DeliveryType      string  `json:"delivery_type,omitempty"`
}

// Courier is the public view of a courier.
type Courier struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Phone           string  `json:"phone"`
	VehicleType     string  `json:"vehicle_type"`
	Rating          float64 `json:"rating"`
	TotalDeliveries int     `json:"total_deliveries"`
	Onboarding      string  `json:"onboarding_status"`
	Available       bool    `json:"is_available"`
}

// Location is a courier position.
type Location struct {
	CourierID  int64     `json:"courier_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
	DistanceKm *float64  `json:"distance_km,omitempty"`
}

// Offer is a live offer round.
type Offer struct {
	OrderID     int64     `json:"order_id"`
	Outstanding []int64   `json:"outstanding"`
	Tried       []int64   `json:"tried"`
	Remaining   int       `json:"remaining"`
	OfferedAt   time.Time `json:"offered_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Error is the body of every failed response.
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func fromStop(s domain.Stop) Stop {
	return Stop{
		Address: Address{
			Street: s.Address.Street,
			City:   s.Address.City,
			Notes:  s.Address.Notes,
			Lat:    s.Address.Lat,
			Lng:    s.Address.Lng,
		},
		ContactName:  s.Contact.Name,
		ContactPhone: s.Contact.Phone,
	}
}

func (s Stop) toModel() domain.Stop {
	return domain.Stop{
		Address: domain.Address{
			Street: s.Address.Street,
			City:   s.Address.City,
			Notes:  s.Address.Notes,
			Lat:    s.Address.Lat,
			Lng:    s.Address.Lng,
		},
		Contact: domain.Contact{Name: s.ContactName, Phone: s.ContactPhone},
	}
}

// FromOrder converts a domain order.
func FromOrder(o domain.Order) Order {
	history := make([]HistoryEntry, 0, len(o.History))
	for _, h := range o.History {
		history = append(history, HistoryEntry{Status: string(h.Status), At: h.At, Note: h.Note})
	}
	var courierID *int64
	if o.CourierID != nil {
		id := *o.CourierID
		courierID = &id
	}
	return Order{
		ID:                o.ID,
		Number:            o.Number,
		CustomerID:        o.CustomerID,
		Pickup:            fromStop(o.Pickup),
		Dropoff:           fromStop(o.Dropoff),
		Package:           Package{Description: o.Package.Description, WeightKg: o.Package.WeightKg, Size: string(o.Package.Size)},
		PriceCents:        o.PriceCents,
		Insured:           o.Insured,
		InsuredValueCents: o.InsuredValueCents,
		Priority:          string(o.Priority),
		DeliveryType:      string(o.DeliveryType),
		CourierID:         courierID,
		Status:            string(o.Status),
		Version:           o.Version,
		ProofRef:          o.ProofRef,
		History:           history,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

// FromOrders converts a list of domain orders.
func FromOrders(list []domain.Order) []Order {
	out := make([]Order, 0, len(list))
	for _, o := range list {
		out = append(out, FromOrder(o))
	}
	return out
}

// ToModel converts the order back to its domain form.
func (o Order) ToModel() domain.Order {
	history := make([]domain.HistoryEntry, 0, len(o.History))
	for _, h := range o.History {
		history = append(history, domain.HistoryEntry{Status: domain.OrderStatus(h.Status), At: h.At, Note: h.Note})
	}
	return domain.Order{
		ID:                o.ID,
		Number:            o.Number,
		CustomerID:        o.CustomerID,
		Pickup:            o.Pickup.toModel(),
		Dropoff:           o.Dropoff.toModel(),
		Package:           domain.Package{Description: o.Package.Description, WeightKg: o.Package.WeightKg, Size: domain.PackageSize(o.Package.Size)},
		PriceCents:        o.PriceCents,
		Insured:           o.Insured,
		InsuredValueCents: o.InsuredValueCents,
		Priority:          domain.Priority(o.Priority),
		DeliveryType:      domain.DeliveryType(o.DeliveryType),
		CourierID:         o.CourierID,
		Status:            domain.OrderStatus(o.Status),
		Version:           o.Version,
		ProofRef:          o.ProofRef,
		History:           history,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

// ToDraft converts a submission into a draft.
func (r CreateOrder) ToDraft() domain.OrderDraft {
	return domain.OrderDraft{
		CustomerID:        r.CustomerID,
		Pickup:            r.Pickup.toModel(),
		Dropoff:           r.Dropoff.toModel(),
		Package:           domain.Package{Description: r.Package.Description, WeightKg: r.Package.WeightKg, Size: domain.PackageSize(r.Package.Size)},
		PriceCents:        r.PriceCents,
		Insured:           r.Insured,
		InsuredValueCents: r.InsuredValueCents,
		Priority:          domain.Priority(r.Priority),
		DeliveryType:      domain.DeliveryType(r.DeliveryType),
	}
}

// FromCourier converts a domain courier.
func FromCourier(c domain.Courier) Courier {
	return Courier{
		ID:              c.ID,
		Name:            c.Name,
		Phone:           c.Phone,
		VehicleType:     string(c.VehicleType),
		Rating:          c.Rating,
		TotalDeliveries: c.TotalDeliveries,
		Onboarding:      string(c.Onboarding),
		Available:       c.Available,
	}
}

// FromCouriers converts a list of domain couriers.
func FromCouriers(list []domain.Courier) []Courier {
	out := make([]Courier, 0, len(list))
	for _, c := range list {
		out = append(out, FromCourier(c))
	}
	return out
}

// FromOffers converts engine snapshots.
func FromOffers(list []domain.Offer) []Offer {
	out := make([]Offer, 0, len(list))
	for _, o := range list {
		out = append(out, Offer{
			OrderID:     o.OrderID,
			Outstanding: o.Outstanding,
			Tried:       o.Tried,
			Remaining:   o.Remaining,
			OfferedAt:   o.OfferedAt,
			ExpiresAt:   o.ExpiresAt,
		})
	}
	return out
}

// FromNearby converts radius search results.
func FromNearby(list []domain.NearbyCourier) []Location {
	out := make([]Location, 0, len(list))
	for _, n := range list {
		d := n.DistanceKm
		out = append(out, Location{
			CourierID:  n.CourierID,
			Lat:        n.Location.Lat,
			Lng:        n.Location.Lng,
			RecordedAt: n.Location.RecordedAt,
			DistanceKm: &d,
		})
	}
	return out
}
