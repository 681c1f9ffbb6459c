package domain

// List of order statuses
const (
	OrderPending   OrderStatus = "pending"
	OrderAssigned  OrderStatus = "assigned"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// transitions is the only source of allowed status changes.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderAssigned, OrderCancelled},
	OrderAssigned:  {OrderPickedUp, OrderCancelled},
	OrderPickedUp:  {OrderInTransit, OrderDelivered, OrderCancelled},
	OrderInTransit: {OrderDelivered, OrderCancelled},
	OrderDelivered: {},
	OrderCancelled: {},
}

// Valid checks if the OrderStatus is known
func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Active reports whether the order is held by a courier.
func (s OrderStatus) Active() bool {
	return s == OrderAssigned || s == OrderPickedUp || s == OrderInTransit
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid checks if the PackageSize is known
func (s PackageSize) Valid() bool {
	switch s {
	case SizeSmall, SizeMedium, SizeLarge, SizeXLarge:
		return true
	}
	return false
}

// Valid checks if the Priority is known
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Valid checks if the DeliveryType is known
func (t DeliveryType) Valid() bool {
	return t == DeliveryStandard || t == DeliveryExpress
}
