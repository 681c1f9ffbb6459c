package domain

import "regexp"

// List of courier onboarding states
const (
	OnboardingNew       OnboardingStatus = "new"
	OnboardingActive    OnboardingStatus = "active"
	OnboardingSuspended OnboardingStatus = "suspended"
)

// List of vehicle types
const (
	VehicleBicycle    VehicleType = "bicycle"
	VehicleScooter    VehicleType = "scooter"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
	VehicleVan        VehicleType = "van"
)

var allowedOnboarding = [...]OnboardingStatus{
	OnboardingNew, OnboardingActive, OnboardingSuspended,
}

var allowedVehicles = [...]VehicleType{
	VehicleBicycle, VehicleScooter, VehicleMotorcycle, VehicleCar, VehicleVan,
}

// Valid checks if the OnboardingStatus is valid
func (s OnboardingStatus) Valid() bool {
	for _, v := range allowedOnboarding {
		if s == v {
			return true
		}
	}
	return false
}

// Valid checks if the VehicleType is valid
func (t VehicleType) Valid() bool {
	for _, v := range allowedVehicles {
		if t == v {
			return true
		}
	}
	return false
}

// vehiclesBySize lists vehicles able to carry a package of the given size.
var vehiclesBySize = map[PackageSize][]VehicleType{
	SizeSmall:  allowedVehicles[:],
	SizeMedium: {VehicleScooter, VehicleMotorcycle, VehicleCar, VehicleVan},
	SizeLarge:  {VehicleCar, VehicleVan},
	SizeXLarge: {VehicleVan},
}

// CanCarry reports whether the vehicle fits a package of size s.
// Unknown sizes are treated as small.
func (t VehicleType) CanCarry(s PackageSize) bool {
	allowed, ok := vehiclesBySize[s]
	if !ok {
		allowed = vehiclesBySize[SizeSmall]
	}
	for _, v := range allowed {
		if v == t {
			return true
		}
	}
	return false
}

// rePhone is a regex to validate phone numbers
var rePhone = regexp.MustCompile(`^\+[0-9]{10,15}$`)

// ValidatePhone validates the phone number format
func ValidatePhone(s string) bool {
	return rePhone.MatchString(s)
}
