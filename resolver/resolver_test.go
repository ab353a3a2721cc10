package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"gt_housing/models"
	"gt_housing/places"
	"gt_housing/storage"
)

// fakeStore is an in-memory ListingStore with the datastore's uniqueness
// semantics.
type fakeStore struct {
	mu       sync.Mutex
	records  []models.ListingRecord
	fetchErr error
	inserts  int
	finds    int
}

func (f *fakeStore) FetchAll(ctx context.Context) ([]models.ListingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]models.ListingRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeStore) FindByName(ctx context.Context, name string) (*models.ListingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	for i := range f.records {
		if strings.EqualFold(f.records[i].Name, name) {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Insert(ctx context.Context, rec *models.ListingRecord) (*models.ListingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	for i := range f.records {
		if strings.EqualFold(f.records[i].Name, rec.Name) {
			return nil, storage.ErrConflict
		}
	}
	f.records = append(f.records, *rec)
	stored := *rec
	return &stored, nil
}

type fakeLookup struct {
	results   []models.PlaceResult
	err       error
	lastQuery string
	calls     int
}

func (f *fakeLookup) SearchText(ctx context.Context, query string, bias places.LocationBias, maxResults int) ([]models.PlaceResult, error) {
	f.calls++
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func record(name string) models.ListingRecord {
	return models.ListingRecord{Name: name}
}

func recordAt(name string, lat, lng float64) models.ListingRecord {
	rec := record(name)
	rec.Latitude = &lat
	rec.Longitude = &lng
	return rec
}

func loadedResolver(t *testing.T, store *fakeStore, lookup places.Searcher) *Resolver {
	t.Helper()
	r := New(store, lookup, DefaultThresholds())
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return r
}

func TestLoad_FailureLeavesResolverUnusable(t *testing.T) {
	store := &fakeStore{fetchErr: errors.New("connection refused")}
	r := New(store, nil, DefaultThresholds())

	if err := r.Load(context.Background()); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "anything"); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected resolver unusable before successful load, got %v", err)
	}

	// A retried load recovers with no partial state in between.
	store.mu.Lock()
	store.fetchErr = nil
	store.records = []models.ListingRecord{record("The Exchange")}
	store.mu.Unlock()
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("retried load failed: %v", err)
	}
	if r.CachedCount() != 1 {
		t.Fatalf("expected 1 cached listing, got %d", r.CachedCount())
	}
}

func TestResolve_EmptyInput(t *testing.T) {
	r := loadedResolver(t, &fakeStore{}, nil)

	for _, input := range []string{"", "   ", "\t\n"} {
		if _, err := r.Resolve(context.Background(), input); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Resolve(%q): expected ErrEmptyInput, got %v", input, err)
		}
	}
}

func TestResolve_ExactMatchAnyCasing(t *testing.T) {
	store := &fakeStore{records: []models.ListingRecord{
		record("Square on Fifth"),
		record("The Exchange"),
	}}
	r := loadedResolver(t, store, nil)

	for _, input := range []string{"Square on Fifth", "square on fifth", "SQUARE ON FIFTH", "  square on fifth  "} {
		res, err := r.Resolve(context.Background(), input)
		if err != nil {
			t.Fatalf("resolve %q failed: %v", input, err)
		}
		if res.NeedsConfirmation() {
			t.Fatalf("expected a match for %q", input)
		}
		if res.Match.Source != models.SourceExact {
			t.Fatalf("expected exact match, got %s", res.Match.Source)
		}
		if res.Match.Score != 1.0 || res.Match.Confidence != models.ConfidenceHigh {
			t.Fatalf("exact match score/confidence = %v/%s", res.Match.Score, res.Match.Confidence)
		}
		if res.Match.Record.Name != "Square on Fifth" {
			t.Fatalf("matched wrong record: %s", res.Match.Record.Name)
		}
	}
}

func TestResolve_FuzzyMatchHighConfidence(t *testing.T) {
	store := &fakeStore{records: []models.ListingRecord{record("Square on Fifth")}}
	r := loadedResolver(t, store, nil)

	// Edit distance 3 over max length 15 gives exactly 0.8.
	res, err := r.Resolve(context.Background(), "square on 5th")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.NeedsConfirmation() {
		t.Fatalf("expected a fuzzy match")
	}
	if res.Match.Source != models.SourceFuzzyNameAddress {
		t.Fatalf("expected fuzzy match, got %s", res.Match.Source)
	}
	if res.Match.Confidence != models.ConfidenceHigh {
		t.Fatalf("expected high confidence at score %v, got %s", res.Match.Score, res.Match.Confidence)
	}
}

func TestResolve_FuzzyMatchNeverBelowThreshold(t *testing.T) {
	store := &fakeStore{records: []models.ListingRecord{record("Square on Fifth")}}
	lookup := &fakeLookup{}
	r := loadedResolver(t, store, lookup)

	res, err := r.Resolve(context.Background(), "xz")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.NeedsConfirmation() {
		t.Fatalf("expected no match for dissimilar input, got %s score %v",
			res.Match.Source, res.Match.Score)
	}
}

func TestResolve_ExternalSuggestionsOnMiss(t *testing.T) {
	lookup := &fakeLookup{results: []models.PlaceResult{
		{
			ID:           "place-1",
			DisplayName:  "The Exchange",
			CategoryTags: []string{"apartment_complex"},
		},
		{
			ID:           "place-2",
			DisplayName:  "Bobby Dodd Stadium",
			CategoryTags: []string{"stadium"},
		},
	}}
	r := loadedResolver(t, &fakeStore{}, lookup)

	res, err := r.Resolve(context.Background(), "exchange")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.NeedsConfirmation() {
		t.Fatalf("expected needs-confirmation outcome")
	}
	if res.Input != "exchange" {
		t.Fatalf("expected trimmed input carried through, got %q", res.Input)
	}
	if lookup.lastQuery != "exchange Atlanta GA apartment housing" {
		t.Fatalf("unexpected lookup query %q", lookup.lastQuery)
	}
	if len(res.ExternalSuggestions) != 1 {
		t.Fatalf("expected 1 housing-related suggestion, got %d", len(res.ExternalSuggestions))
	}
	sug := res.ExternalSuggestions[0]
	if sug.Source != models.SourceExternalLookup {
		t.Fatalf("expected external_lookup source, got %s", sug.Source)
	}
	if sug.Record.Name != "The Exchange" {
		t.Fatalf("unexpected suggestion name %s", sug.Record.Name)
	}
	if len(res.LocalSuggestions) != 0 {
		t.Fatalf("expected no local suggestions from empty cache, got %d", len(res.LocalSuggestions))
	}
}

func TestResolve_LookupFailureDegradesToLocal(t *testing.T) {
	store := &fakeStore{records: []models.ListingRecord{
		record("The Exchange Atlanta"),
	}}
	lookup := &fakeLookup{err: errors.New("quota exceeded")}
	r := loadedResolver(t, store, lookup)

	res, err := r.Resolve(context.Background(), "exchange")
	if err != nil {
		t.Fatalf("lookup failure must not fail resolution: %v", err)
	}
	if len(res.ExternalSuggestions) != 0 {
		t.Fatalf("expected no external suggestions after lookup failure")
	}
	if len(res.LocalSuggestions) != 1 {
		t.Fatalf("expected 1 local partial suggestion, got %d", len(res.LocalSuggestions))
	}
	if res.LocalSuggestions[0].Source != models.SourceLocalPartial {
		t.Fatalf("expected local_partial source, got %s", res.LocalSuggestions[0].Source)
	}
	if res.LocalSuggestions[0].Score <= 0.3 {
		t.Fatalf("local suggestion below floor: %v", res.LocalSuggestions[0].Score)
	}
}

func TestResolve_LocalSuggestionsCappedAndOrdered(t *testing.T) {
	store := &fakeStore{records: []models.ListingRecord{
		record("Midtown Flats"),
		record("Midtown Heights"),
		record("Midtown Lofts West"),
		record("Midtown Vantage Apartments"),
	}}
	lookup := &fakeLookup{}
	r := loadedResolver(t, store, lookup)

	res, err := r.Resolve(context.Background(), "Midtown")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.NeedsConfirmation() {
		t.Fatalf("no cached name is close enough to match outright")
	}
	if len(res.LocalSuggestions) != 3 {
		t.Fatalf("expected 3 local suggestions, got %d", len(res.LocalSuggestions))
	}
	for _, sug := range res.LocalSuggestions {
		if sug.Record.Name == "Midtown Vantage Apartments" {
			t.Fatalf("suggestion below the partial floor must be dropped")
		}
	}
	for i := 1; i < len(res.LocalSuggestions); i++ {
		if res.LocalSuggestions[i].Score > res.LocalSuggestions[i-1].Score {
			t.Fatalf("local suggestions not sorted by score")
		}
	}
}

func TestCreateFromCandidate_ReturnsExisting(t *testing.T) {
	store := &fakeStore{records: []models.ListingRecord{record("The Exchange")}}
	r := New(store, nil, DefaultThresholds())
	// Load before the record exists in the resolver's view of the world.
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	created, err := r.CreateFromCandidate(context.Background(), ManualCandidate("the exchange"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Name != "The Exchange" {
		t.Fatalf("expected existing record back, got %s", created.Name)
	}
	if store.inserts != 0 {
		t.Fatalf("expected no insert for existing name, got %d", store.inserts)
	}
}

func TestCreateFromCandidate_ConcurrentCreatesConverge(t *testing.T) {
	store := &fakeStore{}

	a := loadedResolver(t, store, nil)
	b := loadedResolver(t, store, nil)

	first, err := a.CreateFromCandidate(context.Background(), ManualCandidate("Westmar Lofts"))
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	// The second flow's cache predates the first insert, so its pre-check
	// passes locally and the store's conflict must resolve to the winner.
	second, err := b.CreateFromCandidate(context.Background(), ManualCandidate("Westmar Lofts"))
	if err != nil {
		t.Fatalf("second create must resolve to existing, got %v", err)
	}
	if first.Name != second.Name {
		t.Fatalf("flows diverged: %s vs %s", first.Name, second.Name)
	}
	if store.inserts != 1 {
		t.Fatalf("expected exactly 1 successful insert, got %d", store.inserts)
	}
}

func TestCreateFromCandidate_AppendsToSessionCache(t *testing.T) {
	store := &fakeStore{}
	r := loadedResolver(t, store, nil)

	if _, err := r.CreateFromCandidate(context.Background(), ManualCandidate("Inman Quarter")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	res, err := r.Resolve(context.Background(), "inman quarter")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.NeedsConfirmation() || res.Match.Source != models.SourceExact {
		t.Fatalf("expected created record to be cached for exact match")
	}
}

func TestCreateFromCandidate_ManualDefaults(t *testing.T) {
	store := &fakeStore{}
	r := loadedResolver(t, store, nil)

	created, err := r.CreateFromCandidate(context.Background(), ManualCandidate("Home Park House"))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created.UserGenerated {
		t.Fatalf("manual record must be user generated")
	}
	if created.GoogleVerified {
		t.Fatalf("manual record must not be google verified")
	}
	if created.City == nil || *created.City != "Atlanta" {
		t.Fatalf("expected default city Atlanta")
	}
	if created.State == nil || *created.State != "GA" {
		t.Fatalf("expected default state GA")
	}
}

func TestCreateWithValidation_CoordinateDuplicate(t *testing.T) {
	// Existing record and the validated place sit roughly 80m apart.
	store := &fakeStore{records: []models.ListingRecord{
		recordAt("100midtown", 33.7810, -84.3860),
	}}
	lat := 33.78172
	lng := -84.3860
	addr := "10 10th St NW, Atlanta, GA 30309"
	lookup := &fakeLookup{results: []models.PlaceResult{
		{
			ID:               "place-mid",
			DisplayName:      "100 Midtown",
			FormattedAddress: &addr,
			Latitude:         &lat,
			Longitude:        &lng,
			CategoryTags:     []string{"apartment_complex"},
		},
	}}
	r := loadedResolver(t, store, lookup)

	created, dup, err := r.CreateWithValidation(context.Background(), "100 Midtown")
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if created != nil {
		t.Fatalf("expected no creation on duplicate")
	}
	if dup == nil {
		t.Fatalf("expected duplicate outcome")
	}
	if dup.Reason != models.DuplicateReasonCoordinates {
		t.Fatalf("expected coordinates reason, got %s", dup.Reason)
	}
	if dup.Confidence != models.ConfidenceHigh {
		t.Fatalf("coordinate duplicates are always high confidence, got %s", dup.Confidence)
	}
	if dup.Existing.Name != "100midtown" {
		t.Fatalf("wrong existing record: %s", dup.Existing.Name)
	}
	if store.inserts != 0 {
		t.Fatalf("expected no insert, got %d", store.inserts)
	}
}

func TestCreateWithValidation_NameAddressDuplicate(t *testing.T) {
	existingAddr := "123 Fifth St NE, Atlanta, GA 30308"
	existing := record("Square on Fifth")
	existing.FormattedAddress = &existingAddr

	store := &fakeStore{records: []models.ListingRecord{existing}}
	placeAddr := "123 5th Street NE, Atlanta, GA 30308"
	lookup := &fakeLookup{results: []models.PlaceResult{
		{
			ID:               "place-sq5",
			DisplayName:      "Square on 5th Apartments",
			FormattedAddress: &placeAddr,
			CategoryTags:     []string{"apartment_complex"},
		},
	}}
	r := loadedResolver(t, store, lookup)

	_, dup, err := r.CreateWithValidation(context.Background(), "Square on 5th")
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if dup == nil {
		t.Fatalf("expected duplicate outcome")
	}
	if dup.Reason != models.DuplicateReasonNameAddress {
		t.Fatalf("expected name_address reason, got %s", dup.Reason)
	}
	if dup.Confidence != models.ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s (score %v)", dup.Confidence, dup.Score)
	}
}

func TestCreateWithValidation_LookupFailureCreatesUnverified(t *testing.T) {
	store := &fakeStore{}
	lookup := &fakeLookup{err: errors.New("service unavailable")}
	r := loadedResolver(t, store, lookup)

	created, dup, err := r.CreateWithValidation(context.Background(), "Ghost Lofts")
	if err != nil {
		t.Fatalf("unverified create failed: %v", err)
	}
	if dup != nil {
		t.Fatalf("no duplicate check applies without an address to compare")
	}
	if created.GoogleVerified {
		t.Fatalf("expected unverified record after lookup failure")
	}
	if !created.UserGenerated {
		t.Fatalf("expected user-generated record")
	}
}

func TestCreateWithValidation_VerifiedCreate(t *testing.T) {
	store := &fakeStore{}
	addr := "251 10th St NW, Atlanta, GA 30318"
	lat := 33.7815
	lng := -84.4050
	lookup := &fakeLookup{results: []models.PlaceResult{
		{
			ID:               "place-nine",
			DisplayName:      "The Nine Apartments",
			FormattedAddress: &addr,
			Latitude:         &lat,
			Longitude:        &lng,
			Phone:            strP("(404) 555-0199"),
			CategoryTags:     []string{"apartment_complex"},
		},
	}}
	r := loadedResolver(t, store, lookup)

	created, dup, err := r.CreateWithValidation(context.Background(), "The Nine")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if dup != nil {
		t.Fatalf("unexpected duplicate against empty cache")
	}
	if !created.GoogleVerified {
		t.Fatalf("expected google-verified record")
	}
	if created.Name != "The Nine" {
		t.Fatalf("record keeps the user's name, got %s", created.Name)
	}
	if created.GooglePlaceID == nil || *created.GooglePlaceID != "place-nine" {
		t.Fatalf("expected place id provenance")
	}
	if created.City == nil || *created.City != "Atlanta" {
		t.Fatalf("expected city parsed from formatted address")
	}
	if created.ZipCode == nil || *created.ZipCode != "30318" {
		t.Fatalf("expected zip parsed from formatted address")
	}
}

func TestForceCreate_SkipsDuplicateCheck(t *testing.T) {
	store := &fakeStore{records: []models.ListingRecord{
		recordAt("100midtown", 33.7810, -84.3860),
	}}
	lat := 33.78172
	lng := -84.3860
	lookup := &fakeLookup{results: []models.PlaceResult{
		{
			ID:           "place-mid",
			DisplayName:  "100 Midtown West Tower",
			Latitude:     &lat,
			Longitude:    &lng,
			CategoryTags: []string{"apartment_complex"},
		},
	}}
	r := loadedResolver(t, store, lookup)

	created, err := r.ForceCreate(context.Background(), "100 Midtown West")
	if err != nil {
		t.Fatalf("force create failed: %v", err)
	}
	if created == nil {
		t.Fatalf("expected a created record")
	}
	if store.inserts != 1 {
		t.Fatalf("expected 1 insert, got %d", store.inserts)
	}
}

func strP(s string) *string {
	return &s
}
