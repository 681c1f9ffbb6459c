package domain

import "time"

type (
	// OrderStatus is a lifecycle state of an order.
	OrderStatus string
	// PackageSize is the size class of a parcel.
	PackageSize string
	// Priority is the customer-chosen urgency.
	Priority string
	// DeliveryType is the service level.
	DeliveryType string
)

// List of package sizes
const (
	SizeSmall  PackageSize = "small"
	SizeMedium PackageSize = "medium"
	SizeLarge  PackageSize = "large"
	SizeXLarge PackageSize = "xlarge"
)

// List of priorities
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// List of delivery types
const (
	DeliveryStandard DeliveryType = "standard"
	DeliveryExpress  DeliveryType = "express"
)

// Contact is the person to meet at a stop.
type Contact struct {
	Name  string
	Phone string
}

// Address is a geocoded street address. Zero Lat/Lng means not geocoded.
type Address struct {
	Street string
	City   string
	Notes  string
	Lat    float64
	Lng    float64
}

// HasCoordinates reports whether the address carries a position.
func (a Address) HasCoordinates() bool {
	return a.Lat != 0 || a.Lng != 0
}

// Stop is a pickup or dropoff point.
type Stop struct {
	Address Address
	Contact Contact
}

// Package describes the parcel.
type Package struct {
	Description string
	WeightKg    float64
	Size        PackageSize
}

// HistoryEntry is one committed status change.
type HistoryEntry struct {
	Status OrderStatus
	At     time.Time
	Note   string
}

// Order is a delivery job.
type Order struct {
	ID                int64
	Number            string
	CustomerID        int64
	Pickup            Stop
	Dropoff           Stop
	Package           Package
	PriceCents        int64
	Insured           bool
	InsuredValueCents int64
	Priority          Priority
	DeliveryType      DeliveryType
	CourierID         *int64
	Status            OrderStatus
	// History is append-only; its last entry always carries Status.
	History   []HistoryEntry
	Version   int64
	ProofRef  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether courierID is the order's assignee.
func (o Order) OwnedBy(courierID int64) bool {
	return o.CourierID != nil && *o.CourierID == courierID
}

// Clone returns a deep copy, safe to hand out of a lock.
func (o Order) Clone() Order {
	cp := o
	if o.CourierID != nil {
		id := *o.CourierID
		cp.CourierID = &id
	}
	cp.History = append([]HistoryEntry(nil), o.History...)
	return cp
}

// OrderDraft is the input of order creation.
type OrderDraft struct {
	CustomerID        int64
	Pickup            Stop
	Dropoff           Stop
	Package           Package
	PriceCents        *int64
	Insured           bool
	InsuredValueCents int64
	Priority          Priority
	DeliveryType      DeliveryType
}

// OrderFilter narrows order listings. Zero fields are ignored.
type OrderFilter struct {
	Status     OrderStatus
	CourierID  int64
	CustomerID int64
	Limit      int
	Offset     int
}
