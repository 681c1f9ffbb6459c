//go:build integration

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/ports/ordertx"
	"github.com/israelreshef/delivery-app-sub000/internal/repository"
)

type OrderRepositorySuite struct {
	suite.Suite
	orders   *repository.OrderRepo
	couriers *repository.CourierRepo
}

func (s *OrderRepositorySuite) SetupSuite() {
	s.Require().NotNil(tcPool, "tcPool must be initialized in TestMain")
	s.orders = repository.NewOrderRepo(tcPool)
	s.couriers = repository.NewCourierRepo(tcPool)
}

func (s *OrderRepositorySuite) SetupTest() {
	_, err := tcPool.Exec(context.Background(), `TRUNCATE order_status_history, orders, couriers RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
}

func (s *OrderRepositorySuite) insertPending(number string) *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &domain.Order{
		Number:     number,
		CustomerID: 5,
		Pickup: domain.Stop{
			Address: domain.Address{Street: "Herzl 1", City: "Tel Aviv", Lat: 32.06, Lng: 34.77},
			Contact: domain.Contact{Name: "Dana", Phone: "+972500000001"},
		},
		Dropoff: domain.Stop{
			Address: domain.Address{Street: "Jaffa 10", City: "Jerusalem"},
			Contact: domain.Contact{Name: "Noa", Phone: "+972500000002"},
		},
		Package:      domain.Package{Description: "docs", WeightKg: 0.5, Size: domain.SizeSmall},
		Priority:     domain.PriorityNormal,
		DeliveryType: domain.DeliveryStandard,
		Status:       domain.OrderPending,
		CreatedAt:    now,
	}
	err := s.orders.WithTx(context.Background(), func(tx ordertx.Repository) error {
		if err := tx.InsertOrder(context.Background(), o); err != nil {
			return err
		}
		return tx.AppendHistory(context.Background(), o.ID, domain.HistoryEntry{Status: domain.OrderPending, At: now})
	})
	s.Require().NoError(err)
	return o
}

func (s *OrderRepositorySuite) TestInsertAndGet_RoundTripsStopsAndHistory() {
	o := s.insertPending("ORD-A")

	got, err := s.orders.GetOrder(context.Background(), o.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got)

	s.Equal(o.Pickup, got.Pickup)
	s.Equal(o.Dropoff, got.Dropoff)
	s.Equal(o.Package, got.Package)
	s.Equal(int64(1), got.Version)
	s.Require().Len(got.History, 1)
	s.Equal(domain.OrderPending, got.History[0].Status)
	s.Nil(got.CourierID)
}

func (s *OrderRepositorySuite) TestCompareAndSetStatus_StaleVersionLoses() {
	ctx := context.Background()
	o := s.insertPending("ORD-B")
	cid, err := s.couriers.Create(ctx, newCourier(1))
	s.Require().NoError(err)

	var first, second bool
	err = s.orders.WithTx(ctx, func(tx ordertx.Repository) error {
		var err error
		first, err = tx.CompareAndSetStatus(ctx, o.ID, domain.OrderPending, o.Version, domain.OrderAssigned, &cid)
		if err != nil {
			return err
		}
		second, err = tx.CompareAndSetStatus(ctx, o.ID, domain.OrderPending, o.Version, domain.OrderAssigned, &cid)
		return err
	})
	s.Require().NoError(err)
	s.True(first)
	s.False(second)

	active, err := s.orders.ActiveOrderForCourier(ctx, cid)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.Equal(o.ID, active.ID)

	changed, err := s.couriers.SetOnline(ctx, cid, true)
	s.Require().NoError(err)
	s.False(changed, "courier with an active order cannot go online")
}

func (s *OrderRepositorySuite) TestWithTx_RollsBackOnError() {
	ctx := context.Background()
	o := s.insertPending("ORD-C")

	boom := errors.New("boom")
	err := s.orders.WithTx(ctx, func(tx ordertx.Repository) error {
		if _, err := tx.CompareAndSetStatus(ctx, o.ID, domain.OrderPending, o.Version, domain.OrderCancelled, nil); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	got, err := s.orders.GetOrder(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderPending, got.Status)

	pending, err := s.orders.ListPending(ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func TestOrderRepositorySuite(t *testing.T) {
	suite.Run(t, new(OrderRepositorySuite))
}
