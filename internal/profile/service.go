package profile

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/apperr"
)

const (
	MinSearchRadiusKm     = 1.0
	MaxSearchRadiusKm     = 50.0
	DefaultSearchRadiusKm = 10.0
)

type Repository interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetCameraman(ctx context.Context, id uuid.UUID) (*Cameraman, error)
	ListCameramen(ctx context.Context, filter CameramanFilter) ([]*Cameraman, error)
}

type CameramanFilter struct {
	ApprovalStatus *ApprovalStatus
	Availability   *Availability
	Category       string
	MinRating      float64
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Customer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// Cameraman returns the cameraman with their package catalogue loaded.
func (s *Service) Cameraman(ctx context.Context, id uuid.UUID) (*Cameraman, error) {
	return s.repo.GetCameraman(ctx, id)
}

// PayoutNumber returns the normalized Orange Money number payouts are sent to.
func (s *Service) PayoutNumber(ctx context.Context, cameramanID uuid.UUID) (string, error) {
	c, err := s.repo.GetCameraman(ctx, cameramanID)
	if err != nil {
		return "", err
	}

	return NormalizePhone(c.OrangeMoneyNumber)
}

type SortBy string

const (
	SortByDistance SortBy = "distance"
	SortByRating   SortBy = "rating"
)

type SearchFilters struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
	SortBy    SortBy
	Category  string
	MinRating float64
}

type Nearby struct {
	Cameraman  *Cameraman
	DistanceKm float64
}

// Nearby lists approved cameramen within the search radius of a point.
func (s *Service) Nearby(ctx context.Context, f SearchFilters) ([]Nearby, error) {
	if !(Location{Latitude: f.Latitude, Longitude: f.Longitude}).Valid() {
		return nil, apperr.Invalid("location", fmt.Sprintf("coordinates %f,%f out of range", f.Latitude, f.Longitude))
	}

	radius := f.RadiusKm
	if radius == 0 {
		radius = DefaultSearchRadiusKm
	}

	radius = min(max(radius, MinSearchRadiusKm), MaxSearchRadiusKm)

	approved := ApprovalApproved

	cameramen, err := s.repo.ListCameramen(ctx, CameramanFilter{
		ApprovalStatus: &approved,
		Category:       f.Category,
		MinRating:      f.MinRating,
	})
	if err != nil {
		return nil, fmt.Errorf("listing cameramen: %w", err)
	}

	var out []Nearby

	for _, c := range cameramen {
		d := DistanceKm(f.Latitude, f.Longitude, c.Location.Latitude, c.Location.Longitude)
		if d > radius {
			continue
		}

		out = append(out, Nearby{Cameraman: c, DistanceKm: d})
	}

	slices.SortStableFunc(out, func(a, b Nearby) int {
		if f.SortBy == SortByRating && a.Cameraman.Rating != b.Cameraman.Rating {
			if a.Cameraman.Rating > b.Cameraman.Rating {
				return -1
			}

			return 1
		}

		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}

		return strings.Compare(a.Cameraman.BrandName, b.Cameraman.BrandName)
	})

	return out, nil
}
