package types

import "time"

// Status is the lifecycle state of a pickup request.
//
// Transitions are one-way: pending may move to accepted or rejected, and
// accepted may move to completed. Rejected and completed are terminal;
// nothing reopens a request.
type Status string

// Supported request statuses.
const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Category classifies the waste covered by a pickup request or listing.
type Category string

// Supported waste categories. Pickup requests use the subset accepted by
// ValidForPickup; marketplace listings accept the full set.
const (
	CategoryPlastic      Category = "plastic"
	CategoryPaper        Category = "paper"
	CategoryMetal        Category = "metal"
	CategoryGlass        Category = "glass"
	CategoryOrganic      Category = "organic"
	CategoryElectronic   Category = "electronic"
	CategoryTextile      Category = "textile"
	CategoryConstruction Category = "construction"
	CategoryHazardous    Category = "hazardous"
	CategoryOthers       Category = "others"
)

// Valid reports whether c is any supported category.
func (c Category) Valid() bool {
	switch c {
	case CategoryPlastic, CategoryPaper, CategoryMetal, CategoryGlass,
		CategoryOrganic, CategoryElectronic, CategoryTextile,
		CategoryConstruction, CategoryHazardous, CategoryOthers:
		return true
	}
	return false
}

// ValidForPickup reports whether c is a category a pickup request may use.
func (c Category) ValidForPickup() bool {
	switch c {
	case CategoryPlastic, CategoryPaper, CategoryMetal, CategoryOrganic,
		CategoryElectronic, CategoryOthers:
		return true
	}
	return false
}

// PickupRequest represents a waste-collection job and its lifecycle.
type PickupRequest struct {
	// ID is the unique identifier of the request.
	ID int `json:"id" db:"id"`

	// UserID identifies the consumer who created the request. Immutable.
	UserID int `json:"user_id" db:"user_id"`

	// CollectorID identifies the collector who accepted the request.
	// Nil until the request is accepted.
	CollectorID *int `json:"collector_id" db:"collector_id"`

	// Name, Phone, and Address are the contact details captured at creation
	// time. They may diverge from the live user profile.
	Name    string `json:"name" db:"name"`
	Phone   string `json:"phone" db:"phone"`
	Address string `json:"address" db:"address"`

	// Category classifies the waste to be collected.
	Category Category `json:"category" db:"category"`

	// Description is free text supplied by the consumer. Optional.
	Description string `json:"description" db:"description"`

	// Status is the current lifecycle state.
	Status Status `json:"status" db:"status"`

	// CreatedAt is set when the request is created. The remaining
	// timestamps are each set at most once by their transition and are
	// never cleared.
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at" db:"accepted_at"`
	RejectedAt  *time.Time `json:"rejected_at" db:"rejected_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`

	// Requester and Collector are identity summaries joined in for list
	// and fetch views. Collector is nil until the request is accepted.
	Requester *PartySummary `json:"requester,omitempty"`
	Collector *PartySummary `json:"collector,omitempty"`
}
