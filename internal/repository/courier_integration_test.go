//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/israelreshef/delivery-app-sub000/internal/apperr"
	"github.com/israelreshef/delivery-app-sub000/internal/domain"
	"github.com/israelreshef/delivery-app-sub000/internal/repository"
)

type CourierRepositorySuite struct {
	suite.Suite
	pool *pgxpool.Pool
	repo *repository.CourierRepo
}

func (s *CourierRepositorySuite) SetupSuite() {
	s.Require().NotNil(tcPool, "tcPool must be initialized in TestMain")

	s.pool = tcPool
	s.repo = repository.NewCourierRepo(tcPool)
}

func (s *CourierRepositorySuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), `TRUNCATE order_status_history, orders, couriers RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)
}

func newCourier(i int) *domain.Courier {
	return &domain.Courier{
		Name:        fmt.Sprintf("Courier %d", i),
		Phone:       fmt.Sprintf("+97250000000%d", i),
		VehicleType: domain.VehicleScooter,
		Rating:      4.5,
		Onboarding:  domain.OnboardingActive,
	}
}

func (s *CourierRepositorySuite) TestCreateAndGet() {
	ctx := context.Background()

	in := newCourier(1)
	id, err := s.repo.Create(ctx, in)
	s.Require().NoError(err)

	got, err := s.repo.Get(ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(got)

	s.Equal(id, got.ID)
	s.Equal(in.Name, got.Name)
	s.Equal(in.Phone, got.Phone)
	s.Equal(in.VehicleType, got.VehicleType)
	s.Equal(in.Onboarding, got.Onboarding)
	s.False(got.Available)
}

func (s *CourierRepositorySuite) TestCreate_IsDuplicate() {
	ctx := context.Background()

	_, err := s.repo.Create(ctx, newCourier(1))
	s.Require().NoError(err)

	_, err = s.repo.Create(ctx, newCourier(1))
	s.ErrorIs(err, apperr.ErrConflict, "duplicate phone must conflict")
}

func (s *CourierRepositorySuite) TestGetNotFound() {
	got, err := s.repo.Get(context.Background(), 9999)
	s.Require().NoError(err)
	s.Require().Nil(got)
}

func (s *CourierRepositorySuite) TestListWithLimitOffset() {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.repo.Create(ctx, newCourier(i))
		s.Require().NoError(err)
	}

	limit, offset := 2, 1
	list, err := s.repo.List(ctx, &limit, &offset)
	s.Require().NoError(err)

	s.Len(list, 2)
	s.True(list[0].ID < list[1].ID)
}

func (s *CourierRepositorySuite) TestUpdatePartial_IsDuplicate() {
	ctx := context.Background()

	_, err := s.repo.Create(ctx, newCourier(1))
	s.Require().NoError(err)
	id2, err := s.repo.Create(ctx, newCourier(2))
	s.Require().NoError(err)

	phone := newCourier(1).Phone
	ok, err := s.repo.UpdatePartial(ctx, domain.PartialCourierUpdate{ID: id2, Phone: &phone})
	s.False(ok, "row must not be marked as updated on duplicate")
	s.ErrorIs(err, apperr.ErrConflict)
}

func (s *CourierRepositorySuite) TestSetOnline_AndListEligible() {
	ctx := context.Background()

	id, err := s.repo.Create(ctx, newCourier(1))
	s.Require().NoError(err)

	changed, err := s.repo.SetOnline(ctx, id, true)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.repo.SetOnline(ctx, id, true)
	s.Require().NoError(err)
	s.False(changed, "second toggle is a no-op")

	list, err := s.repo.ListEligible(ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(id, list[0].ID)
}

func (s *CourierRepositorySuite) TestGet_ContextCanceled_ReturnsError() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := s.repo.Get(ctx, 1)
	s.Nil(got)
	s.ErrorIs(err, context.Canceled)
}

func TestCourierRepositorySuite(t *testing.T) {
	suite.Run(t, new(CourierRepositorySuite))
}
