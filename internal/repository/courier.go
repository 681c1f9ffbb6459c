package repository

import (
	"context"
	"fmt"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
)

// CourierRepo represents courier repository.
type CourierRepo struct{ db DB }

// NewCourierRepo creates a new CourierRepo.
func NewCourierRepo(db DB) *CourierRepo { return &CourierRepo{db: db} }

// Get - returns courier by its ID.
func (r *CourierRepo) Get(ctx context.Context, id int64) (*domain.Courier, error) {
	c, err := scanCourier(r.db.QueryRow(ctx, `SELECT `+courierColumns+` FROM couriers WHERE id=$1`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get courier %d: %w", id, err)
	}
	return c, nil
}

// List returns couriers ordered by id. If limit/offset are nil, returns the full list.
func (r *CourierRepo) List(ctx context.Context, limit, offset *int) ([]domain.Courier, error) {
	q := `SELECT ` + courierColumns + ` FROM couriers ORDER BY id`
	args := make([]any, 0, 2)
	if limit != nil {
		q += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, *limit)
	}
	if offset != nil {
		q += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, *offset)
	}
	return r.query(ctx, q, args...)
}

// ListEligible returns couriers that are online and onboarded.
func (r *CourierRepo) ListEligible(ctx context.Context) ([]domain.Courier, error) {
	return r.query(ctx,
		`SELECT `+courierColumns+` FROM couriers WHERE is_available AND onboarding = $1 ORDER BY id`,
		string(domain.OnboardingActive),
	)
}

func (r *CourierRepo) query(ctx context.Context, q string, args ...any) ([]domain.Courier, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query couriers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Courier, 0)
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan courier: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Create - creates a new courier.
func (r *CourierRepo) Create(ctx context.Context, c *domain.Courier) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
        INSERT INTO couriers (name, phone, vehicle_type, rating, onboarding, is_available)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `, c.Name, c.Phone, string(c.VehicleType), c.Rating, string(c.Onboarding), c.Available).Scan(&id)
	if err != nil {
		if IsDuplicate(err) {
			return 0, apperr.ErrConflict
		}
		return 0, fmt.Errorf("create courier: %w", err)
	}
	return id, nil
}

// UpdatePartial applies a partial update to a courier and returns true if a row was affected.
func (r *CourierRepo) UpdatePartial(ctx context.Context, u domain.PartialCourierUpdate) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE couriers
        SET
            name         = COALESCE($2, name),
            phone        = COALESCE($3, phone),
            vehicle_type = COALESCE($4, vehicle_type),
            onboarding   = COALESCE($5, onboarding),
            rating       = COALESCE($6, rating),
            updated_at   = now()
        WHERE id = $1
    `, u.ID, u.Name, u.Phone, (*string)(u.VehicleType), (*string)(u.Onboarding), u.Rating)
	if err != nil {
		if IsDuplicate(err) {
			return false, apperr.ErrConflict
		}
		return false, fmt.Errorf("update courier %d: %w", u.ID, err)
	}
	return ct.RowsAffected() > 0, nil
}

// SetOnline toggles availability. Going online is refused while the courier
// holds an active order. It reports whether the flag changed.
func (r *CourierRepo) SetOnline(ctx context.Context, courierID int64, online bool) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE couriers c
        SET is_available = $2, updated_at = now()
        WHERE c.id = $1
          AND c.is_available <> $2
          AND (NOT $2 OR NOT EXISTS (
              SELECT 1 FROM orders o
              WHERE o.courier_id = c.id AND o.status IN ('assigned', 'picked_up', 'in_transit')
          ))
    `, courierID, online)
	if err != nil {
		return false, fmt.Errorf("set courier %d online=%t: %w", courierID, online, err)
	}
	return ct.RowsAffected() == 1, nil
}
