package resolver

import (
	"strings"

	"gt_housing/models"
)

// housingCategories are the lookup category tags accepted as residential.
var housingCategories = map[string]bool{
	"apartment_complex":   true,
	"apartment_building":  true,
	"condominium_complex": true,
	"housing_complex":     true,
	"real_estate_agency":  true,
	"lodging":             true,
}

// housingKeywords accept a result by name when its tags say nothing.
var housingKeywords = []string{
	"apartment", "housing", "residence", "complex",
	"loft", "tower", "village", "place",
}

// HousingRelated reports whether a lookup result plausibly names student
// housing: a housing category tag, or a housing keyword in the name.
func HousingRelated(place *models.PlaceResult) bool {
	for _, tag := range place.CategoryTags {
		if housingCategories[tag] {
			return true
		}
	}

	name := strings.ToLower(place.DisplayName)
	for _, keyword := range housingKeywords {
		if strings.Contains(name, keyword) {
			return true
		}
	}
	return false
}

// recordFromPlace builds a proposed listing from a lookup result. The
// result's address and coordinates mark the record google-verified.
func recordFromPlace(place *models.PlaceResult) *models.ListingRecord {
	rec := &models.ListingRecord{
		Name:             place.DisplayName,
		FormattedAddress: place.FormattedAddress,
		Phone:            place.Phone,
		URL:              place.URL,
		Latitude:         place.Latitude,
		Longitude:        place.Longitude,
		UserGenerated:    true,
		GoogleVerified:   true,
	}
	if place.ID != "" {
		id := place.ID
		rec.GooglePlaceID = &id
	}
	if place.FormattedAddress != nil {
		fillAddressParts(rec, *place.FormattedAddress)
	}
	return rec
}

// fillAddressParts splits a "street, city, ST zip, country" formatted
// address into its columns, best effort.
func fillAddressParts(rec *models.ListingRecord, formatted string) {
	parts := strings.Split(formatted, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 {
		return
	}

	street := parts[0]
	city := parts[1]
	rec.StreetAddress = &street
	rec.City = &city

	stateZip := strings.Fields(parts[2])
	if len(stateZip) >= 1 {
		state := stateZip[0]
		rec.State = &state
	}
	if len(stateZip) >= 2 && isDigits(stateZip[1]) {
		zip := stateZip[1]
		rec.ZipCode = &zip
	}
}
