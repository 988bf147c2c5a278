// Package places looks up therapists near a coordinate.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://places.googleapis.com/v1"
	DefaultRadius  = 5000.0

	textQuery    = "therapist"
	fallbackType = "health"
	maxResults   = 20
	fieldMask    = "places.id,places.displayName,places.formattedAddress,places.location,places.rating"
)

var (
	ErrNotConfigured = errors.New("places api key not configured")
	ErrNoneFound     = errors.New("No therapists found nearby.")
)

// Place is one therapist or health facility.
type Place struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Rating  float64 `json:"rating"`
}

// Options configures a Client.
type Options struct {
	APIKey       string
	BaseURL      string
	RadiusMeters float64
	HTTPClient   *http.Client
}

// Client calls the places REST API.
type Client struct {
	apiKey  string
	baseURL string
	radius  float64
	http    *http.Client
	logger  *zap.Logger
}

// New builds a Client.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid places base url %q", opts.BaseURL)
	}
	radius := opts.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadius
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: strings.TrimRight(base, "/"),
		radius:  radius,
		http:    httpClient,
		logger:  logger.Named("places"),
	}, nil
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type area struct {
	Circle circle `json:"circle"`
}

type textSearchRequest struct {
	TextQuery      string `json:"textQuery"`
	LocationBias   area   `json:"locationBias"`
	MaxResultCount int    `json:"maxResultCount"`
	RankPreference string `json:"rankPreference"`
}

type nearbySearchRequest struct {
	IncludedTypes       []string `json:"includedTypes"`
	MaxResultCount      int      `json:"maxResultCount"`
	LocationRestriction area     `json:"locationRestriction"`
}

// NearbyTherapists searches for therapists around lat/lng and falls back
// to health facilities. Results are ordered by rating, best first.
func (c *Client) NearbyTherapists(ctx context.Context, lat, lng float64) ([]Place, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("coordinate out of range: %f,%f", lat, lng)
	}
	circ := area{Circle: circle{Center: latLng{Latitude: lat, Longitude: lng}, Radius: c.radius}}

	found, err := c.search(ctx, "/places:searchText", textSearchRequest{
		TextQuery:      textQuery,
		LocationBias:   circ,
		MaxResultCount: maxResults,
		RankPreference: "RELEVANCE",
	})
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		c.logger.Debug("text search empty, trying nearby search")
		found, err = c.search(ctx, "/places:searchNearby", nearbySearchRequest{
			IncludedTypes:       []string{fallbackType},
			MaxResultCount:      maxResults,
			LocationRestriction: circ,
		})
		if err != nil {
			return nil, err
		}
	}
	if len(found) == 0 {
		return nil, ErrNoneFound
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Rating > found[j].Rating })
	return found, nil
}

func (c *Client) search(ctx context.Context, path string, body any) ([]Place, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = resp.Status
		}
		c.logger.Warn("places api error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("places %s: %s", path, msg)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode %s response: invalid json", path)
	}
	return parsePlaces(raw), nil
}

func parsePlaces(raw []byte) []Place {
	var out []Place
	gjson.GetBytes(raw, "places").ForEach(func(_, p gjson.Result) bool {
		out = append(out, Place{
			ID:      p.Get("id").String(),
			Name:    p.Get("displayName.text").String(),
			Address: p.Get("formattedAddress").String(),
			Lat:     p.Get("location.latitude").Float(),
			Lng:     p.Get("location.longitude").Float(),
			Rating:  p.Get("rating").Float(),
		})
		return true
	})
	return out
}
