package repository

import (
	"encoding/json"
	"fmt"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

const orderColumns = `id, order_number, customer_id, pickup, dropoff, package, price_cents, insured,
        insured_value_cents, priority, delivery_type, courier_id, status, status_version, proof_ref,
        created_at, updated_at`

const courierColumns = `id, name, phone, vehicle_type, rating, total_deliveries, onboarding, is_available`

// stopJSON and packageJSON are the JSONB shapes of order columns.
type stopJSON struct {
	Street       string  `json:"street"`
	City         string  `json:"city"`
	Notes        string  `json:"notes,omitempty"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	ContactName  string  `json:"contact_name"`
	ContactPhone string  `json:"contact_phone"`
}

type packageJSON struct {
	Description string  `json:"description"`
	WeightKg    float64 `json:"weight_kg"`
	Size        string  `json:"size"`
}

func encodeStop(s domain.Stop) ([]byte, error) {
	return json.Marshal(stopJSON{
		Street:       s.Address.Street,
		City:         s.Address.City,
		Notes:        s.Address.Notes,
		Lat:          s.Address.Lat,
		Lng:          s.Address.Lng,
		ContactName:  s.Contact.Name,
		ContactPhone: s.Contact.Phone,
	})
}

func decodeStop(raw []byte) (domain.Stop, error) {
	var s stopJSON
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Stop{}, err
	}
	return domain.Stop{
		Address: domain.Address{Street: s.Street, City: s.City, Notes: s.Notes, Lat: s.Lat, Lng: s.Lng},
		Contact: domain.Contact{Name: s.ContactName, Phone: s.ContactPhone},
	}, nil
}

func encodePackage(p domain.Package) ([]byte, error) {
	return json.Marshal(packageJSON{Description: p.Description, WeightKg: p.WeightKg, Size: string(p.Size)})
}

func decodePackage(raw []byte) (domain.Package, error) {
	var p packageJSON
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Package{}, err
	}
	return domain.Package{Description: p.Description, WeightKg: p.WeightKg, Size: domain.PackageSize(p.Size)}, nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o                       domain.Order
		pickup, dropoff, parcel []byte
		priority, delivery      string
		status                  string
	)
	if err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &pickup, &dropoff, &parcel, &o.PriceCents, &o.Insured,
		&o.InsuredValueCents, &priority, &delivery, &o.CourierID, &status, &o.Version, &o.ProofRef,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if o.Pickup, err = decodeStop(pickup); err != nil {
		return nil, fmt.Errorf("decode pickup of order %d: %w", o.ID, err)
	}
	if o.Dropoff, err = decodeStop(dropoff); err != nil {
		return nil, fmt.Errorf("decode dropoff of order %d: %w", o.ID, err)
	}
	if o.Package, err = decodePackage(parcel); err != nil {
		return nil, fmt.Errorf("decode package of order %d: %w", o.ID, err)
	}
	o.Priority = domain.Priority(priority)
	o.DeliveryType = domain.DeliveryType(delivery)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func scanCourier(row scanner) (*domain.Courier, error) {
	var (
		c                   domain.Courier
		vehicle, onboarding string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &vehicle, &c.Rating, &c.TotalDeliveries, &onboarding, &c.Available); err != nil {
		return nil, err
	}
	c.VehicleType = domain.VehicleType(vehicle)
	c.Onboarding = domain.OnboardingStatus(onboarding)
	return &c, nil
}
