package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gt_housing/config"
	"gt_housing/models"
)

// SupabaseStore talks to the hosted datastore over PostgREST.
type SupabaseStore struct {
	url        string
	serviceKey string
	table      string
	client     *http.Client
}

func NewSupabaseStore(cfg *config.SupabaseConfig, client *http.Client) *SupabaseStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SupabaseStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		table:      "apartments",
		client:     client,
	}
}

func (s *SupabaseStore) FetchAll(ctx context.Context) ([]models.ListingRecord, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?select=*", s.url, s.table)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("supabase error %d: %s", resp.StatusCode, string(body))
	}

	var records []models.ListingRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return records, nil
}

func (s *SupabaseStore) FindByName(ctx context.Context, name string) (*models.ListingRecord, error) {
	// ilike with no wildcards is a case-insensitive equality check, which
	// is what matching needs even though the key itself is case-sensitive.
	endpoint := fmt.Sprintf("%s/rest/v1/%s?select=*&name=ilike.%s&limit=1",
		s.url, s.table, url.QueryEscape(escapePattern(name)))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("supabase error %d: %s", resp.StatusCode, string(body))
	}

	var records []models.ListingRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Insert writes one listing. A duplicate-name rejection comes back as
// ErrConflict. An unknown-column rejection triggers a single retry with
// the universal column set before the error is surfaced.
func (s *SupabaseStore) Insert(ctx context.Context, rec *models.ListingRecord) (*models.ListingRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	created, err := s.insertRow(ctx, fullRow(rec))
	if err == nil {
		return created, nil
	}
	if !isUnknownColumn(err) {
		return nil, err
	}

	created, retryErr := s.insertRow(ctx, reducedRow(rec))
	if retryErr != nil {
		return nil, fmt.Errorf("%w (after reduced-column retry: %v)", err, retryErr)
	}
	return created, nil
}

func (s *SupabaseStore) insertRow(ctx context.Context, row map[string]interface{}) (*models.ListingRecord, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", s.url, s.table)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyInsertError(resp.StatusCode, body)
	}

	var records []models.ListingRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode inserted listing: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("insert returned no row")
	}
	return &records[0], nil
}

func (s *SupabaseStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

// classifyInsertError maps PostgREST failure bodies onto the store's
// error classes. 23505 is Postgres unique_violation, 42703 is
// undefined_column; PGRST204 is PostgREST's missing-column code.
func classifyInsertError(status int, body []byte) error {
	var pgErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &pgErr)

	switch {
	case status == http.StatusConflict || pgErr.Code == "23505":
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	case pgErr.Code == "42703" || pgErr.Code == "PGRST204" ||
		strings.Contains(pgErr.Message, "column"):
		return fmt.Errorf("%w: %s", ErrUnknownColumn, pgErr.Message)
	}
	return fmt.Errorf("supabase error %d: %s", status, string(body))
}

// fullRow carries every column, with explicit nulls for absent values.
func fullRow(rec *models.ListingRecord) map[string]interface{} {
	row := reducedRow(rec)
	row["latitude"] = rec.Latitude
	row["longitude"] = rec.Longitude
	row["google_verified"] = rec.GoogleVerified
	row["google_place_id"] = rec.GooglePlaceID
	return row
}

// reducedRow carries only the columns present in every schema revision.
func reducedRow(rec *models.ListingRecord) map[string]interface{} {
	return map[string]interface{}{
		"id":                rec.ID,
		"name":              rec.Name,
		"street_address":    rec.StreetAddress,
		"city":              rec.City,
		"state":             rec.State,
		"zip_code":          rec.ZipCode,
		"formatted_address": rec.FormattedAddress,
		"phone":             rec.Phone,
		"url":               rec.URL,
		"price_range":       rec.PriceRange,
		"bed_range":         rec.BedRange,
		"user_generated":    rec.UserGenerated,
	}
}

// escapePattern escapes ilike wildcards in a literal name.
func escapePattern(name string) string {
	name = strings.ReplaceAll(name, `\`, `\\`)
	name = strings.ReplaceAll(name, "%", `\%`)
	name = strings.ReplaceAll(name, "_", `\_`)
	name = strings.ReplaceAll(name, "*", `\*`)
	return name
}
