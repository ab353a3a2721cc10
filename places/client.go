package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"gt_housing/models"
)

const DefaultBaseURL = "https://places.googleapis.com/v1"

const fieldMask = "places.id,places.displayName,places.formattedAddress," +
	"places.location,places.nationalPhoneNumber,places.websiteUri,places.types"

// LocationBias biases a text search toward a circle around a point.
type LocationBias struct {
	Lat          float64
	Lng          float64
	RadiusMeters float64
}

// Searcher is the external place lookup consumed by the resolver.
type Searcher interface {
	SearchText(ctx context.Context, query string, bias LocationBias, maxResults int) ([]models.PlaceResult, error)
}

// Client queries the Places text-search endpoint. Lookups are cached by
// query string when a cache is attached; lookup failures are the caller's
// problem to degrade, never the client's to retry.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *Cache
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount"`
	LocationBias   *struct {
		Circle struct {
			Center struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationBias,omitempty"`
}

type searchResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		NationalPhoneNumber string   `json:"nationalPhoneNumber"`
		WebsiteURI          string   `json:"websiteUri"`
		Types               []string `json:"types"`
	} `json:"places"`
}

func (c *Client) SearchText(ctx context.Context, query string, bias LocationBias, maxResults int) ([]models.PlaceResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	if c.cache != nil {
		if results, ok := c.cache.Get(query); ok {
			return results, nil
		}
	}

	results, err := c.search(ctx, query, bias, maxResults)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(query, results); err != nil {
			log.Printf("Warning: failed to cache place lookup: %v", err)
		}
	}
	return results, nil
}

func (c *Client) search(ctx context.Context, query string, bias LocationBias, maxResults int) ([]models.PlaceResult, error) {
	reqBody := searchRequest{
		TextQuery:      query,
		MaxResultCount: maxResults,
	}
	if bias.RadiusMeters > 0 {
		reqBody.LocationBias = &struct {
			Circle struct {
				Center struct {
					Latitude  float64 `json:"latitude"`
					Longitude float64 `json:"longitude"`
				} `json:"center"`
				Radius float64 `json:"radius"`
			} `json:"circle"`
		}{}
		reqBody.LocationBias.Circle.Center.Latitude = bias.Lat
		reqBody.LocationBias.Circle.Center.Longitude = bias.Lng
		reqBody.LocationBias.Circle.Radius = bias.RadiusMeters
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("place search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("place search status %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode place search: %w", err)
	}

	results := make([]models.PlaceResult, 0, len(parsed.Places))
	for _, p := range parsed.Places {
		result := models.PlaceResult{
			ID:               p.ID,
			DisplayName:      p.DisplayName.Text,
			FormattedAddress: strPtr(p.FormattedAddress),
			Phone:            strPtr(p.NationalPhoneNumber),
			URL:              strPtr(p.WebsiteURI),
			CategoryTags:     p.Types,
		}
		if p.Location != nil {
			lat := p.Location.Latitude
			lng := p.Location.Longitude
			result.Latitude = &lat
			result.Longitude = &lng
		}
		results = append(results, result)
	}
	return results, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
