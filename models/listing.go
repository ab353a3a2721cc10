package models

import (
	"time"

	"github.com/google/uuid"
)

// ListingRecord is one apartment row in the shared datastore. Name is the
// unique key; uniqueness there is case-sensitive, matching here is not.
type ListingRecord struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	StreetAddress    *string    `json:"street_address" db:"street_address"`
	City             *string    `json:"city" db:"city"`
	State            *string    `json:"state" db:"state"`
	ZipCode          *string    `json:"zip_code" db:"zip_code"`
	FormattedAddress *string    `json:"formatted_address" db:"formatted_address"`
	Phone            *string    `json:"phone" db:"phone"`
	URL              *string    `json:"url" db:"url"`
	Latitude         *float64   `json:"latitude" db:"latitude"`
	Longitude        *float64   `json:"longitude" db:"longitude"`
	PriceRange       *string    `json:"price_range" db:"price_range"`
	BedRange         *string    `json:"bed_range" db:"bed_range"`
	UserGenerated    bool       `json:"user_generated" db:"user_generated"`
	GoogleVerified   bool       `json:"google_verified" db:"google_verified"`
	GooglePlaceID    *string    `json:"google_place_id" db:"google_place_id"`
	CreatedAt        *time.Time `json:"created_at,omitempty" db:"created_at"`
}

// HasCoordinates reports whether both coordinates are present.
func (r *ListingRecord) HasCoordinates() bool {
	return r != nil && r.Latitude != nil && r.Longitude != nil
}

// Candidate sources
const (
	SourceExact            = "exact"
	SourceFuzzyNameAddress = "fuzzy_name_address"
	SourceFuzzyCoordinates = "fuzzy_coordinates"
	SourceExternalLookup   = "external_lookup"
	SourceLocalPartial     = "local_partial"
)

// Confidence tiers
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
)

// Duplicate reasons reported by the create-time check
const (
	DuplicateReasonNameAddress = "name_address"
	DuplicateReasonCoordinates = "coordinates"
)

// MatchCandidate is a proposed or existing listing surfaced during
// resolution. Transient, never persisted.
type MatchCandidate struct {
	Record     *ListingRecord `json:"record"`
	Source     string         `json:"source"`
	Score      float64        `json:"score"`
	Confidence string         `json:"confidence,omitempty"`
}
