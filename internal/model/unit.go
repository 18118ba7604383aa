package model

import "time"

// UnitStatus describes a unit's availability.
type UnitStatus string

const (
	UnitStatusAvailable UnitStatus = "available"
	UnitStatusOccupied  UnitStatus = "occupied"
	UnitStatusUnknown   UnitStatus = "unknown"
)

// Unit is a single rentable unit scraped from a listing.
type Unit struct {
	ID               string     `json:"id"`
	ListingID        string     `json:"listing_id"`
	UnitNumber       string     `json:"unit_number"`
	Bedrooms         int        `json:"bedrooms"`
	Bathrooms        float64    `json:"bathrooms"`
	SquareFeet       int        `json:"square_feet,omitempty"`
	Rent             float64    `json:"rent"`
	AvailabilityDate string     `json:"availability_date,omitempty"`
	Status           UnitStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Available reports whether the unit is currently on the market.
func (u Unit) Available() bool {
	return u.Status == UnitStatusAvailable
}
