package domain

type (
	// OnboardingStatus is the courier's registration state.
	OnboardingStatus string
	// VehicleType is the courier's means of transport.
	VehicleType string
)

// Courier represents a delivery courier.
type Courier struct {
	ID              int64
	Name            string
	Phone           string
	VehicleType     VehicleType
	Rating          float64
	TotalDeliveries int
	Onboarding      OnboardingStatus
	// Available is false while the courier is offline or holds an active order.
	Available bool
}

// Eligible reports whether the courier may receive offers right now.
func (c Courier) Eligible() bool {
	return c.Available && c.Onboarding == OnboardingActive
}

// PartialCourierUpdate carries optional fields to update a courier.
// A nil field means “do not change” that attribute.
type PartialCourierUpdate struct {
	ID          int64
	Name        *string
	Phone       *string
	VehicleType *VehicleType
	Onboarding  *OnboardingStatus
	Rating      *float64
}

// Empty reports whether the update changes nothing.
func (u PartialCourierUpdate) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.VehicleType == nil && u.Onboarding == nil && u.Rating == nil
}
