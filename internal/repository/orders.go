package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/ports/ordertx"
)

// OrderRepo represents order repository.
type OrderRepo struct {
	db DB
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(db DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *OrderRepo) WithTx(ctx context.Context, fn func(tx ordertx.Repository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// откатываем при панике
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&TxRepo{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetOrder returns the order with its history, or nil.
func (r *OrderRepo) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	if err := r.attachHistory(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders returns orders matching f, newest first.
func (r *OrderRepo) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.CourierID != 0 {
		args = append(args, f.CourierID)
		where = append(where, fmt.Sprintf("courier_id = $%d", len(args)))
	}
	if f.CustomerID != 0 {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return r.queryOrders(ctx, q, args...)
}

// ListPending returns up to limit pending orders, oldest first.
func (r *OrderRepo) ListPending(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY id LIMIT $2`,
		string(domain.OrderPending), limit,
	)
}

// ActiveOrderForCourier returns the courier's in-flight order, or nil.
func (r *OrderRepo) ActiveOrderForCourier(ctx context.Context, courierID int64) (*domain.Order, error) {
	list, err := r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
        WHERE courier_id = $1 AND status IN ('assigned', 'picked_up', 'in_transit')
        LIMIT 1`,
		courierID,
	)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (r *OrderRepo) queryOrders(ctx context.Context, q string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachHistory(ctx, ptrs); err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(ptrs))
	for _, o := range ptrs {
		out = append(out, *o)
	}
	return out, nil
}

func (r *OrderRepo) attachHistory(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := r.db.Query(ctx, `
        SELECT order_id, status, note, created_at
        FROM order_status_history
        WHERE order_id = ANY($1)
        ORDER BY order_id, id
    `, ids)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			status  string
			e       domain.HistoryEntry
		)
		if err := rows.Scan(&orderID, &status, &e.Note, &e.At); err != nil {
			return fmt.Errorf("scan history: %w", err)
		}
		e.Status = domain.OrderStatus(status)
		if o := byID[orderID]; o != nil {
			o.History = append(o.History, e)
		}
	}
	return rows.Err()
}

// TxRepo represents transaction repository.
type TxRepo struct {
	tx pgx.Tx
}

var _ ordertx.Repository = (*TxRepo)(nil)

// GetOrder locks the order row and loads its history.
func (r *TxRepo) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %d for update: %w", id, err)
	}

	rows, err := r.tx.Query(ctx,
		`SELECT status, note, created_at FROM order_status_history WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query history of order %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			e      domain.HistoryEntry
		)
		if err := rows.Scan(&status, &e.Note, &e.At); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Status = domain.OrderStatus(status)
		o.History = append(o.History, e)
	}
	return o, rows.Err()
}

// InsertOrder inserts a new order and sets its id and version.
func (r *TxRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	pickup, err := encodeStop(o.Pickup)
	if err != nil {
		return fmt.Errorf("encode pickup: %w", err)
	}
	dropoff, err := encodeStop(o.Dropoff)
	if err != nil {
		return fmt.Errorf("encode dropoff: %w", err)
	}
	parcel, err := encodePackage(o.Package)
	if err != nil {
		return fmt.Errorf("encode package: %w", err)
	}

	err = r.tx.QueryRow(ctx, `
        INSERT INTO orders (order_number, customer_id, pickup, dropoff, package, price_cents, insured,
                            insured_value_cents, priority, delivery_type, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
        RETURNING id, status_version
    `, o.Number, o.CustomerID, pickup, dropoff, parcel, o.PriceCents, o.Insured,
		o.InsuredValueCents, string(o.Priority), string(o.DeliveryType), string(o.Status), o.CreatedAt,
	).Scan(&o.ID, &o.Version)
	if err != nil {
		if IsDuplicate(err) {
			return apperr.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	o.UpdatedAt = o.CreatedAt
	return nil
}

// CompareAndSetStatus moves the order only if status and version still match.
func (r *TxRepo) CompareAndSetStatus(
	ctx context.Context, id int64, from domain.OrderStatus, version int64, to domain.OrderStatus, courierID *int64,
) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE orders
        SET status = $4,
            courier_id = COALESCE($5, courier_id),
            status_version = status_version + 1,
            updated_at = now()
        WHERE id = $1 AND status = $2 AND status_version = $3
    `, id, string(from), version, string(to), courierID)
	if err != nil {
		if IsDuplicate(err) {
			return false, nil
		}
		return false, fmt.Errorf("update order %d status: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

// AppendHistory appends a status history row.
func (r *TxRepo) AppendHistory(ctx context.Context, id int64, e domain.HistoryEntry) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO order_status_history (order_id, status, note, created_at) VALUES ($1, $2, $3, $4)`,
		id, string(e.Status), e.Note, e.At)
	if err != nil {
		return fmt.Errorf("append history of order %d: %w", id, err)
	}
	return nil
}

// SetProofRef stores the proof-of-delivery reference.
func (r *TxRepo) SetProofRef(ctx context.Context, id int64, ref string) error {
	if _, err := r.tx.Exec(ctx, `UPDATE orders SET proof_ref = $2 WHERE id = $1`, id, ref); err != nil {
		return fmt.Errorf("set proof ref of order %d: %w", id, err)
	}
	return nil
}

// GetCourier locks and returns the courier, or nil.
func (r *TxRepo) GetCourier(ctx context.Context, id int64) (*domain.Courier, error) {
	c, err := scanCourier(r.tx.QueryRow(ctx, `SELECT `+courierColumns+` FROM couriers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get courier %d for update: %w", id, err)
	}
	return c, nil
}

// CompareAndSetAvailability flips is_available only from the expected value.
func (r *TxRepo) CompareAndSetAvailability(ctx context.Context, courierID int64, from, to bool) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE couriers
        SET is_available = $3, updated_at = now()
        WHERE id = $1 AND is_available = $2
    `, courierID, from, to)
	if err != nil {
		return false, fmt.Errorf("update courier %d availability: %w", courierID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// IncrementDeliveries bumps the courier's completed delivery counter.
func (r *TxRepo) IncrementDeliveries(ctx context.Context, courierID int64) error {
	if _, err := r.tx.Exec(ctx,
		`UPDATE couriers SET total_deliveries = total_deliveries + 1 WHERE id = $1`, courierID); err != nil {
		return fmt.Errorf("increment deliveries of courier %d: %w", courierID, err)
	}
	return nil
}
