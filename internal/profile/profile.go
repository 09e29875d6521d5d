package profile

import (
	"time"

	"github.com/google/uuid"
)

// Role discriminates the role-specific record attached to a User.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleCameraman Role = "cameraman"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCameraman, RoleAdmin:
		return true
	}

	return false
}

// User is the identity record shared by every role.
type User struct {
	ID          uuid.UUID
	PhoneNumber string
	Role        Role
	Name        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Customer struct {
	User
	ProfileImage      string
	OrangeMoneyNumber string // refunds
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type Availability string

const (
	Available Availability = "available"
	Busy      Availability = "busy"
)

type Cameraman struct {
	User
	ApprovalStatus    ApprovalStatus
	BrandName         string
	ProfileImage      string
	ServiceCategories []string
	Location          Location
	Availability      Availability
	Rating            float64
	ReviewCount       int
	CompletedJobs     int
	PricePerHour      *int64
	OrangeMoneyNumber string
	Packages          []Package
}

// Bookable reports whether new booking requests may be sent to the cameraman.
func (c *Cameraman) Bookable() bool {
	return c.ApprovalStatus == ApprovalApproved && c.Availability == Available
}

// Package returns the cameraman's package with the given id.
func (c *Cameraman) Package(id uuid.UUID) (Package, bool) {
	for _, p := range c.Packages {
		if p.ID == id {
			return p, true
		}
	}

	return Package{}, false
}

// Package is a priced service offering. Prices are whole Leones.
type Package struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"` // hours
	BasePrice   int64     `json:"base_price"`
	AddOns      []AddOn   `json:"add_ons,omitempty"`
}

func (p Package) AddOn(id uuid.UUID) (AddOn, bool) {
	for _, a := range p.AddOns {
		if a.ID == id {
			return a, true
		}
	}

	return AddOn{}, false
}

type AddOn struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}
