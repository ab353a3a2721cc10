package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"gt_housing/models"
	"gt_housing/places"
	"gt_housing/storage"
)

var (
	// ErrDataUnavailable means the initial cache load failed; the resolver
	// is unusable until a Load retry succeeds.
	ErrDataUnavailable = errors.New("resolver: listing data unavailable")

	// ErrEmptyInput means the query was blank after trimming.
	ErrEmptyInput = errors.New("resolver: empty input")

	// ErrCreateFailed means an insert failed after the store's
	// schema-mismatch retry. The cache is left unmodified.
	ErrCreateFailed = errors.New("resolver: create failed")
)

// Campus bias for external lookups.
const (
	campusLat        = 33.7756
	campusLng        = -84.3963
	campusRadiusM    = 5000
	maxRawResults    = 5
	maxExternalCands = 3
	maxLocalCands    = 3
)

// Thresholds are the tunable matching constants. The resolve-time fuzzy
// threshold and the create-time duplicate threshold both default to 0.6
// but are deliberately independent knobs.
type Thresholds struct {
	FuzzyMatch    float64 `yaml:"fuzzy_match"`
	FuzzyHigh     float64 `yaml:"fuzzy_high"`
	Duplicate     float64 `yaml:"duplicate"`
	DuplicateHigh float64 `yaml:"duplicate_high"`
	PartialFloor  float64 `yaml:"partial_floor"`
	CoordinateKm  float64 `yaml:"coordinate_km"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FuzzyMatch:    0.6,
		FuzzyHigh:     0.8,
		Duplicate:     0.6,
		DuplicateHigh: 0.8,
		PartialFloor:  0.3,
		CoordinateKm:  0.1,
	}
}

// Resolver turns free-text apartment names into existing or newly created
// listings without duplicating entries. It owns a per-session cache of the
// datastore, loaded once and appended to on every create.
type Resolver struct {
	store      storage.ListingStore
	lookup     places.Searcher
	thresholds Thresholds

	// The source's session cache had exactly one reader and writer; the
	// HTTP surface and the background refresh make that many, so the
	// cache is guarded here even though each call's own store ordering
	// stays strictly sequential.
	mu     sync.RWMutex
	loaded bool
	cache  []models.ListingRecord
}

func New(store storage.ListingStore, lookup places.Searcher, thresholds Thresholds) *Resolver {
	return &Resolver{
		store:      store,
		lookup:     lookup,
		thresholds: thresholds,
	}
}

// Load fetches every listing into the cache. On failure no partial state
// is kept and the resolver stays unusable.
func (r *Resolver) Load(ctx context.Context) error {
	records, err := r.store.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	r.mu.Lock()
	r.cache = records
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// CachedCount reports how many listings the session cache holds.
func (r *Resolver) CachedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Resolution is the outcome of a Resolve call: either a confirmed match,
// or suggestion lists the caller must put in front of the user.
type Resolution struct {
	Input               string                  `json:"input"`
	Match               *models.MatchCandidate  `json:"match,omitempty"`
	ExternalSuggestions []models.MatchCandidate `json:"external_suggestions,omitempty"`
	LocalSuggestions    []models.MatchCandidate `json:"local_suggestions,omitempty"`
}

// NeedsConfirmation reports whether the caller must confirm a suggestion
// (or a manual create) before a listing exists for this input.
func (res *Resolution) NeedsConfirmation() bool {
	return res.Match == nil
}

// Resolve matches user input against the cached listings: exact first,
// then fuzzy by name. On a miss it assembles external and local partial
// suggestions instead of matching.
func (r *Resolver) Resolve(ctx context.Context, input string) (*Resolution, error) {
	if !r.isLoaded() {
		return nil, ErrDataUnavailable
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	res := &Resolution{Input: input}

	if exact := r.exactMatch(input); exact != nil {
		res.Match = &models.MatchCandidate{
			Record:     exact,
			Source:     models.SourceExact,
			Score:      1.0,
			Confidence: models.ConfidenceHigh,
		}
		return res, nil
	}

	if best, score := r.bestFuzzyName(input); best != nil && score >= r.thresholds.FuzzyMatch {
		confidence := models.ConfidenceMedium
		if score >= r.thresholds.FuzzyHigh {
			confidence = models.ConfidenceHigh
		}
		res.Match = &models.MatchCandidate{
			Record:     best,
			Source:     models.SourceFuzzyNameAddress,
			Score:      score,
			Confidence: confidence,
		}
		return res, nil
	}

	res.ExternalSuggestions = r.externalSuggestions(ctx, input)
	res.LocalSuggestions = r.localSuggestions(input)
	return res, nil
}

func (r *Resolver) isLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

func (r *Resolver) exactMatch(input string) *models.ListingRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.cache {
		if strings.EqualFold(r.cache[i].Name, input) {
			return &r.cache[i]
		}
	}
	return nil
}

func (r *Resolver) bestFuzzyName(input string) (*models.ListingRecord, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.ListingRecord
	bestScore := 0.0
	for i := range r.cache {
		if score := Similarity(input, r.cache[i].Name); score > bestScore {
			best = &r.cache[i]
			bestScore = score
		}
	}
	return best, bestScore
}

// externalSuggestions queries the place lookup and keeps housing-related
// results as pass-through candidates. Lookup failure degrades to none.
func (r *Resolver) externalSuggestions(ctx context.Context, input string) []models.MatchCandidate {
	if r.lookup == nil {
		return nil
	}

	query := fmt.Sprintf("%s Atlanta GA apartment housing", input)
	bias := places.LocationBias{Lat: campusLat, Lng: campusLng, RadiusMeters: campusRadiusM}

	results, err := r.lookup.SearchText(ctx, query, bias, maxRawResults)
	if err != nil {
		log.Printf("Warning: place lookup failed for %q: %v", input, err)
		return nil
	}

	var candidates []models.MatchCandidate
	for i := range results {
		if !HousingRelated(&results[i]) {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			Record: recordFromPlace(&results[i]),
			Source: models.SourceExternalLookup,
		})
		if len(candidates) == maxExternalCands {
			break
		}
	}
	return candidates
}

// localSuggestions surfaces cached names containing the input as a
// substring, scored by similarity, best three above the partial floor.
func (r *Resolver) localSuggestions(input string) []models.MatchCandidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(input)

	var candidates []models.MatchCandidate
	for i := range r.cache {
		name := r.cache[i].Name
		if strings.EqualFold(name, input) {
			continue
		}
		if !strings.Contains(strings.ToLower(name), lower) {
			continue
		}
		score := Similarity(input, name)
		if score <= r.thresholds.PartialFloor {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			Record: &r.cache[i],
			Source: models.SourceLocalPartial,
			Score:  score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxLocalCands {
		candidates = candidates[:maxLocalCands]
	}
	return candidates
}

// CreateFromCandidate materializes a suggestion as a listing row. The
// existence re-check runs against the datastore itself immediately before
// the insert, and a conflict from the store still resolves to the
// existing row rather than an error.
func (r *Resolver) CreateFromCandidate(ctx context.Context, cand *models.MatchCandidate) (*models.ListingRecord, error) {
	if !r.isLoaded() {
		return nil, ErrDataUnavailable
	}
	if cand == nil || cand.Record == nil || strings.TrimSpace(cand.Record.Name) == "" {
		return nil, ErrEmptyInput
	}

	existing, err := r.store.FindByName(ctx, cand.Record.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: existence check: %v", ErrCreateFailed, err)
	}
	if existing != nil {
		r.remember(existing)
		return existing, nil
	}

	created, err := r.store.Insert(ctx, cand.Record)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another session won the insert race; the store's constraint
			// is the authority, so surface its row as ours.
			winner, findErr := r.store.FindByName(ctx, cand.Record.Name)
			if findErr == nil && winner != nil {
				r.remember(winner)
				return winner, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	r.remember(created)
	return created, nil
}

// remember appends a record to the session cache unless the name is
// already present, so later duplicate checks see it without a round-trip.
func (r *Resolver) remember(rec *models.ListingRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.cache {
		if strings.EqualFold(r.cache[i].Name, rec.Name) {
			return
		}
	}
	r.cache = append(r.cache, *rec)
}

// Duplicate is a create-time decision outcome, not an error: the proposed
// listing already exists and the caller must confirm before forcing.
type Duplicate struct {
	Existing   *models.ListingRecord `json:"existing"`
	Reason     string                `json:"reason"`
	Score      float64               `json:"score"`
	Confidence string                `json:"confidence"`
}

// CreateWithValidation looks the name up externally before creating. A
// housing-related result is checked against the cache for duplicates; a
// flagged duplicate blocks creation and is returned for confirmation.
// When external validation fails entirely the listing is created
// unverified, with no duplicate check, since there is nothing to compare.
func (r *Resolver) CreateWithValidation(ctx context.Context, name string) (*models.ListingRecord, *Duplicate, error) {
	return r.create(ctx, name, true)
}

// ForceCreate is CreateWithValidation minus the duplicate check, for a
// caller who has seen the Duplicate outcome and confirmed anyway.
func (r *Resolver) ForceCreate(ctx context.Context, name string) (*models.ListingRecord, error) {
	created, _, err := r.create(ctx, name, false)
	return created, err
}

func (r *Resolver) create(ctx context.Context, name string, checkDuplicates bool) (*models.ListingRecord, *Duplicate, error) {
	if !r.isLoaded() {
		return nil, nil, ErrDataUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ErrEmptyInput
	}

	place := r.validateExternally(ctx, name)
	if place == nil {
		created, err := r.CreateFromCandidate(ctx, ManualCandidate(name))
		return created, nil, err
	}

	if checkDuplicates {
		if dup := r.findDuplicate(place); dup != nil {
			return nil, dup, nil
		}
	}

	rec := recordFromPlace(place)
	rec.Name = name
	created, err := r.CreateFromCandidate(ctx, &models.MatchCandidate{
		Record: rec,
		Source: models.SourceExternalLookup,
	})
	return created, nil, err
}

// validateExternally returns the first housing-related lookup result for
// the name, or nil when the lookup errors or finds nothing usable.
func (r *Resolver) validateExternally(ctx context.Context, name string) *models.PlaceResult {
	if r.lookup == nil {
		return nil
	}

	bias := places.LocationBias{Lat: campusLat, Lng: campusLng, RadiusMeters: campusRadiusM}
	results, err := r.lookup.SearchText(ctx, name, bias, maxRawResults)
	if err != nil {
		log.Printf("Warning: validation lookup failed for %q: %v", name, err)
		return nil
	}
	for i := range results {
		if HousingRelated(&results[i]) {
			return &results[i]
		}
	}
	return nil
}

// findDuplicate checks a validated place against the cache, coordinates
// first (always high confidence), then combined name+address similarity.
func (r *Resolver) findDuplicate(place *models.PlaceResult) *Duplicate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if place.HasCoordinates() {
		for i := range r.cache {
			rec := &r.cache[i]
			if !rec.HasCoordinates() {
				continue
			}
			dist := HaversineKm(*place.Latitude, *place.Longitude, *rec.Latitude, *rec.Longitude)
			if dist <= r.thresholds.CoordinateKm {
				return &Duplicate{
					Existing:   rec,
					Reason:     models.DuplicateReasonCoordinates,
					Score:      1 - dist/r.thresholds.CoordinateKm,
					Confidence: models.ConfidenceHigh,
				}
			}
		}
	}

	address := ""
	if place.FormattedAddress != nil {
		address = *place.FormattedAddress
	}

	for i := range r.cache {
		rec := &r.cache[i]
		recAddress := ""
		if rec.FormattedAddress != nil {
			recAddress = *rec.FormattedAddress
		}
		score := CombinedSimilarity(place.DisplayName, address, rec.Name, recAddress)
		if score > r.thresholds.Duplicate {
			confidence := models.ConfidenceMedium
			if score > r.thresholds.DuplicateHigh {
				confidence = models.ConfidenceHigh
			}
			return &Duplicate{
				Existing:   rec,
				Reason:     models.DuplicateReasonNameAddress,
				Score:      score,
				Confidence: confidence,
			}
		}
	}
	return nil
}

// ManualCandidate builds the minimal unverified candidate for a bare name.
func ManualCandidate(name string) *models.MatchCandidate {
	city := "Atlanta"
	state := "GA"
	return &models.MatchCandidate{
		Record: &models.ListingRecord{
			Name:          strings.TrimSpace(name),
			City:          &city,
			State:         &state,
			UserGenerated: true,
		},
		Source: models.SourceLocalPartial,
	}
}
