package models

// PlaceResult is a single hit from the external place lookup.
// Fields the provider omitted are nil, never zero-valued strings.
type PlaceResult struct {
	ID               string   `json:"id"`
	DisplayName      string   `json:"display_name"`
	FormattedAddress *string  `json:"formatted_address"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Phone            *string  `json:"phone"`
	URL              *string  `json:"url"`
	CategoryTags     []string `json:"category_tags"`
}

// HasCoordinates reports whether both coordinates are present.
func (p *PlaceResult) HasCoordinates() bool {
	return p != nil && p.Latitude != nil && p.Longitude != nil
}
