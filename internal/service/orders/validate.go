package orders

import (
	"strings"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

// validateDraft checks required fields and fills defaults. It never touches storage.
func validateDraft(d *domain.OrderDraft) error {
	if d.CustomerID <= 0 {
		return apperr.Validation("customer_id", "must be positive")
	}
	if err := validateStop("pickup", d.Pickup); err != nil {
		return err
	}
	if err := validateStop("dropoff", d.Dropoff); err != nil {
		return err
	}
	if d.Package.WeightKg < 0 {
		return apperr.Validation("package.weight_kg", "must not be negative")
	}
	if d.Package.Size == "" {
		d.Package.Size = domain.SizeSmall
	}
	if !d.Package.Size.Valid() {
		return apperr.Validation("package.size", "unknown size")
	}
	if d.Priority == "" {
		d.Priority = domain.PriorityNormal
	}
	if !d.Priority.Valid() {
		return apperr.Validation("priority", "unknown priority")
	}
	if d.DeliveryType == "" {
		d.DeliveryType = domain.DeliveryStandard
	}
	if !d.DeliveryType.Valid() {
		return apperr.Validation("delivery_type", "unknown delivery type")
	}
	if d.PriceCents != nil && *d.PriceCents < 0 {
		return apperr.Validation("price", "must not be negative")
	}
	if d.Insured && d.InsuredValueCents <= 0 {
		return apperr.Validation("insured_value", "required for insured orders")
	}
	return nil
}

func validateStop(prefix string, s domain.Stop) error {
	switch {
	case strings.TrimSpace(s.Address.Street) == "":
		return apperr.Validation(prefix+".street", "required")
	case strings.TrimSpace(s.Address.City) == "":
		return apperr.Validation(prefix+".city", "required")
	case strings.TrimSpace(s.Contact.Name) == "":
		return apperr.Validation(prefix+".contact_name", "required")
	case strings.TrimSpace(s.Contact.Phone) == "":
		return apperr.Validation(prefix+".contact_phone", "required")
	case !domain.ValidCoordinates(s.Address.Lat, s.Address.Lng):
		return apperr.Validation(prefix+".coordinates", "out of range")
	}
	return nil
}
