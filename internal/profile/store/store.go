package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

const selectCameramanColumns = `
	u.id, u.phone_number, u.role, u.name, u.created_at, u.updated_at,
	c.approval_status, c.brand_name, c.profile_image, array_to_json(c.service_categories)::text,
	c.latitude, c.longitude, c.address, c.availability, c.rating::float8, c.review_count,
	c.completed_jobs, c.price_per_hour, c.orange_money_number
`

func scanCameraman(s scanner) (*profile.Cameraman, error) {
	var (
		c            profile.Cameraman
		role         string
		approval     string
		availability string
		categories   string
		pricePerHour sql.NullInt64
	)

	if err := s.Scan(
		&c.ID, &c.PhoneNumber, &role, &c.Name, &c.CreatedAt, &c.UpdatedAt,
		&approval, &c.BrandName, &c.ProfileImage, &categories,
		&c.Location.Latitude, &c.Location.Longitude, &c.Location.Address, &availability, &c.Rating, &c.ReviewCount,
		&c.CompletedJobs, &pricePerHour, &c.OrangeMoneyNumber,
	); err != nil {
		return nil, err
	}

	c.Role = profile.Role(role)
	c.ApprovalStatus = profile.ApprovalStatus(approval)
	c.Availability = profile.Availability(availability)

	if pricePerHour.Valid {
		c.PricePerHour = &pricePerHour.Int64
	}

	if err := json.Unmarshal([]byte(categories), &c.ServiceCategories); err != nil {
		return nil, fmt.Errorf("decoding service categories: %w", err)
	}

	return &c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*profile.Customer, error) {
	query := `
		SELECT u.id, u.phone_number, u.role, u.name, u.created_at, u.updated_at,
			COALESCE(c.profile_image, ''), COALESCE(c.orange_money_number, '')
		FROM users u
		LEFT JOIN customer_profiles c ON c.user_id = u.id
		WHERE u.id = $1 AND u.role = 'customer'`

	var (
		c    profile.Customer
		role string
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.PhoneNumber, &role, &c.Name, &c.CreatedAt, &c.UpdatedAt,
		&c.ProfileImage, &c.OrangeMoneyNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, apperr.ErrNotFound)
		}

		return nil, fmt.Errorf("getting customer: %w", err)
	}

	c.Role = profile.Role(role)

	return &c, nil
}

func (s *Store) GetCameraman(ctx context.Context, id uuid.UUID) (*profile.Cameraman, error) {
	query := `SELECT ` + selectCameramanColumns + `
		FROM users u
		JOIN cameraman_profiles c ON c.user_id = u.id
		WHERE u.id = $1`

	c, err := scanCameraman(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cameraman %s: %w", id, apperr.ErrNotFound)
		}

		return nil, fmt.Errorf("getting cameraman: %w", err)
	}

	packages, err := s.listPackages(ctx, id)
	if err != nil {
		return nil, err
	}

	c.Packages = packages

	return c, nil
}

func (s *Store) ListCameramen(ctx context.Context, filter profile.CameramanFilter) ([]*profile.Cameraman, error) {
	query := `SELECT ` + selectCameramanColumns + `
		FROM users u
		JOIN cameraman_profiles c ON c.user_id = u.id
		WHERE u.role = 'cameraman'`

	var args []any

	argIdx := 1

	if filter.ApprovalStatus != nil {
		query += fmt.Sprintf(" AND c.approval_status = $%d", argIdx)

		args = append(args, *filter.ApprovalStatus)
		argIdx++
	}

	if filter.Availability != nil {
		query += fmt.Sprintf(" AND c.availability = $%d", argIdx)

		args = append(args, *filter.Availability)
		argIdx++
	}

	if filter.Category != "" {
		query += fmt.Sprintf(" AND $%d = ANY(c.service_categories)", argIdx)

		args = append(args, filter.Category)
		argIdx++
	}

	if filter.MinRating > 0 {
		query += fmt.Sprintf(" AND c.rating >= $%d", argIdx)

		args = append(args, filter.MinRating)
		argIdx++
	}

	query += " ORDER BY c.brand_name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cameramen: %w", err)
	}
	defer rows.Close()

	var out []*profile.Cameraman

	for rows.Next() {
		c, err := scanCameraman(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cameraman: %w", err)
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cameramen: %w", err)
	}

	return out, nil
}

func (s *Store) listPackages(ctx context.Context, cameramanID uuid.UUID) ([]profile.Package, error) {
	query := `
		SELECT p.id, p.name, p.description, p.duration, p.base_price,
			a.id, a.name, a.description, a.price
		FROM service_packages p
		LEFT JOIN package_add_ons a ON a.package_id = p.id
		WHERE p.cameraman_id = $1 AND p.active
		ORDER BY p.base_price ASC, p.id, a.price ASC`

	rows, err := s.db.QueryContext(ctx, query, cameramanID)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	defer rows.Close()

	var packages []profile.Package

	index := make(map[uuid.UUID]int)

	for rows.Next() {
		var (
			p         profile.Package
			addOnID   *uuid.UUID
			addOnName sql.NullString
			addOnDesc sql.NullString
			addOnCost sql.NullInt64
		)

		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Duration, &p.BasePrice,
			&addOnID, &addOnName, &addOnDesc, &addOnCost); err != nil {
			return nil, fmt.Errorf("scanning package: %w", err)
		}

		i, seen := index[p.ID]
		if !seen {
			i = len(packages)
			index[p.ID] = i
			packages = append(packages, p)
		}

		if addOnID != nil {
			packages[i].AddOns = append(packages[i].AddOns, profile.AddOn{
				ID:          *addOnID,
				Name:        addOnName.String,
				Description: addOnDesc.String,
				Price:       addOnCost.Int64,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating packages: %w", err)
	}

	return packages, nil
}
