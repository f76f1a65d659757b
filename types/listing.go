package types

import "time"

// ListingStatus is the marketplace state of a waste listing.
type ListingStatus string

// Supported listing statuses, in forward order.
const (
	ListingAvailable ListingStatus = "available"
	ListingPending   ListingStatus = "pending"
	ListingCollected ListingStatus = "collected"
)

// Valid reports whether s is a supported listing status.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingAvailable, ListingPending, ListingCollected:
		return true
	}
	return false
}

// rank orders listing statuses so transitions only move forward.
func (s ListingStatus) rank() int {
	switch s {
	case ListingAvailable:
		return 0
	case ListingPending:
		return 1
	case ListingCollected:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether s may move to next. Listings only move
// forward: available, then pending, then collected.
func (s ListingStatus) CanTransitionTo(next ListingStatus) bool {
	return next.Valid() && next.rank() > s.rank()
}

// WasteListing represents a marketplace offer of waste material posted by
// a consumer for providers to pick up.
type WasteListing struct {
	// ID is the unique identifier of the listing.
	ID int `json:"id" db:"id"`

	// UserID identifies the consumer who posted the listing.
	UserID int `json:"user_id" db:"user_id"`

	// Title is the short human-readable name of the listing.
	Title string `json:"title" db:"title"`

	// Description contains the full material description.
	Description string `json:"description" db:"description"`

	// Category classifies the waste material. Any supported category is
	// allowed here, not just the pickup subset.
	Category Category `json:"category" db:"category"`

	// Quantity and Unit describe how much material is offered
	// (e.g. 250 "kg").
	Quantity float64 `json:"quantity" db:"quantity"`
	Unit     string  `json:"unit" db:"unit"`

	// Location is the free-form pickup location.
	Location string `json:"location" db:"location"`

	// Price is the asking price, if any. Nil means negotiable or free.
	Price *float64 `json:"price" db:"price"`

	// Tags are free-form labels used for filtering and search.
	Tags []string `json:"tags" db:"tags"`

	// Photos holds the object-storage keys of uploaded listing photos.
	Photos []string `json:"photos" db:"photos"`

	// Status is the marketplace state of the listing.
	Status ListingStatus `json:"status" db:"status"`

	// CreatedAt and UpdatedAt are audit timestamps.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
