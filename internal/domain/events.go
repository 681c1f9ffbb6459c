package domain

// OrderChange is a committed order mutation as seen by subscribers.
type OrderChange struct {
	Order Order
	// Previous is empty for a newly created order.
	Previous OrderStatus
	// ReleasedCourierID is set when the change made the courier available again.
	ReleasedCourierID *int64
}

// Created reports whether the change is the order's creation.
func (c OrderChange) Created() bool {
	return c.Previous == ""
}
