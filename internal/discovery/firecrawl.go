// Package discovery finds candidate listings for a property, extracts their
// units, and runs a discovery job through to subject resolution.
package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/internal/resilience"
	"github.com/sells-group/rentcomp/pkg/firecrawl"
)

// ErrEmptyExtraction is returned when neither a scrape nor an extract job
// yields structured data for a page.
var ErrEmptyExtraction = eris.New("discovery: empty extraction")

// Source finds candidate listings on a search results page.
type Source interface {
	DiscoverListings(ctx context.Context, searchURL string) ([]model.DiscoveredListing, error)
}

const (
	listingsPrompt = "Extract every apartment community listed on this search results page. " +
		"For each, return its name, full street address, and the URL of its listing page."
	unitsPrompt = "Extract every rentable unit or floor plan on this apartment listing page. " +
		"Return unit number (or floor plan name), bedrooms (0 for studio), bathrooms, square feet, " +
		"monthly rent in dollars, and availability (a date, \"now\", or \"not available\")."
)

var listingsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"listings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"address": map[string]any{"type": "string"},
					"url":     map[string]any{"type": "string"},
				},
				"required": []string{"name", "url"},
			},
		},
	},
	"required": []string{"listings"},
}

var unitsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"units": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"unit_number":  map[string]any{"type": "string"},
					"bedrooms":     map[string]any{"type": "number"},
					"bathrooms":    map[string]any{"type": "number"},
					"square_feet":  map[string]any{"type": "number"},
					"rent":         map[string]any{"type": "number"},
					"availability": map[string]any{"type": "string"},
				},
			},
		},
	},
	"required": []string{"units"},
}

// SourceConfig tunes the Firecrawl-backed source.
type SourceConfig struct {
	RatePerSec float64
	Timeout    time.Duration
	Retry      resilience.RetryConfig
	Breaker    resilience.BreakerConfig
	// PollInterval is the first wait between /extract status checks. Zero
	// keeps the client default.
	PollInterval time.Duration
}

// FirecrawlSource discovers listings and extracts units through Firecrawl's
// schema-driven /scrape, falling back to an /extract job when a scrape comes
// back empty. Calls are rate limited, retried on transient failures, and
// guarded by a circuit breaker.
type FirecrawlSource struct {
	client  firecrawl.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	timeout time.Duration

	pollInterval time.Duration
}

// NewFirecrawlSource creates a FirecrawlSource.
func NewFirecrawlSource(client firecrawl.Client, cfg SourceConfig) *FirecrawlSource {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &FirecrawlSource{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: resilience.NewBreaker("firecrawl", cfg.Breaker),
		retry:   cfg.Retry,
		timeout: timeout,

		pollInterval: cfg.PollInterval,
	}
}

// DiscoverListings extracts the listings on a search results page.
func (s *FirecrawlSource) DiscoverListings(ctx context.Context, searchURL string) ([]model.DiscoveredListing, error) {
	raw, err := s.extract(ctx, "discover_listings", searchURL, listingsPrompt, listingsSchema)
	if err != nil {
		return nil, err
	}
	var out struct {
		Listings []model.DiscoveredListing `json:"listings"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrapf(err, "discovery: decode listings from %s", searchURL)
	}
	return out.Listings, nil
}

type extractedUnit struct {
	UnitNumber   string  `json:"unit_number"`
	Bedrooms     float64 `json:"bedrooms"`
	Bathrooms    float64 `json:"bathrooms"`
	SquareFeet   float64 `json:"square_feet"`
	Rent         float64 `json:"rent"`
	Availability string  `json:"availability"`
}

// ExtractUnits extracts the units advertised on a listing page. Units
// without a rent are dropped.
func (s *FirecrawlSource) ExtractUnits(ctx context.Context, listingURL string) ([]model.Unit, error) {
	raw, err := s.extract(ctx, "extract_units", listingURL, unitsPrompt, unitsSchema)
	if err != nil {
		return nil, err
	}
	var out struct {
		Units []extractedUnit `json:"units"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrapf(err, "discovery: decode units from %s", listingURL)
	}

	units := make([]model.Unit, 0, len(out.Units))
	for _, u := range out.Units {
		if u.Rent <= 0 {
			continue
		}
		status, date := parseAvailability(u.Availability)
		units = append(units, model.Unit{
			UnitNumber:       strings.TrimSpace(u.UnitNumber),
			Bedrooms:         int(u.Bedrooms),
			Bathrooms:        u.Bathrooms,
			SquareFeet:       int(u.SquareFeet),
			Rent:             u.Rent,
			AvailabilityDate: date,
			Status:           status,
		})
	}
	return units, nil
}

// parseAvailability maps free-text availability to a status and, when the
// text names a date, that date.
func parseAvailability(s string) (model.UnitStatus, string) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case lower == "":
		return model.UnitStatusUnknown, ""
	case strings.Contains(lower, "not available"), strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "leased"), strings.Contains(lower, "occupied"):
		return model.UnitStatusOccupied, ""
	case lower == "now", strings.Contains(lower, "available now"), lower == "available":
		return model.UnitStatusAvailable, ""
	default:
		return model.UnitStatusAvailable, strings.TrimPrefix(s, "Available ")
	}
}

// extract scrapes pageURL with a JSON schema. When the synchronous scrape
// comes back without structured data, it falls back to an /extract job.
func (s *FirecrawlSource) extract(ctx context.Context, op, pageURL, prompt string, schema map[string]any) (json.RawMessage, error) {
	raw, err := s.scrapeJSON(ctx, op, pageURL, prompt, schema)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: %s %s", op, pageURL)
	}
	if !emptyJSON(raw) {
		return raw, nil
	}

	zap.L().Debug("discovery: scrape returned no data, starting extract job",
		zap.String("op", op),
		zap.String("url", pageURL),
	)
	raw, err = s.extractJob(ctx, op, pageURL, prompt, schema)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: %s %s", op, pageURL)
	}
	if emptyJSON(raw) {
		return nil, eris.Wrapf(ErrEmptyExtraction, "%s %s", op, pageURL)
	}
	return raw, nil
}

func (s *FirecrawlSource) scrapeJSON(ctx context.Context, op, pageURL, prompt string, schema map[string]any) (json.RawMessage, error) {
	retry := s.retry
	retry.OnRetry = resilience.RetryLogger("firecrawl", op)

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (json.RawMessage, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return resilience.Guard(ctx, s.breaker, func(ctx context.Context) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			resp, err := s.client.Scrape(ctx, firecrawl.ScrapeRequest{
				URL:             pageURL,
				Formats:         []string{firecrawl.FormatJSON},
				JSONOptions:     &firecrawl.JSONOptions{Schema: schema, Prompt: prompt},
				OnlyMainContent: true,
				Timeout:         int(s.timeout / time.Millisecond),
			})
			if err != nil {
				return nil, err
			}
			return resp.Data.JSON, nil
		})
	})
}

// extractJob starts an asynchronous /extract for a single page and polls it
// to completion within the source timeout.
func (s *FirecrawlSource) extractJob(ctx context.Context, op, pageURL, prompt string, schema map[string]any) (json.RawMessage, error) {
	retry := s.retry
	retry.OnRetry = resilience.RetryLogger("firecrawl", op+"_extract")

	var jobID string
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := resilience.Guard(ctx, s.breaker, func(ctx context.Context) (*firecrawl.ExtractResponse, error) {
			return s.client.Extract(ctx, firecrawl.ExtractRequest{
				URLs:   []string{pageURL},
				Prompt: prompt,
				Schema: schema,
			})
		})
		if err != nil {
			return err
		}
		if !resp.Success || resp.ID == "" {
			return resilience.NewTransientError(eris.New("firecrawl: extract job not accepted"), 0)
		}
		jobID = resp.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var opts []firecrawl.PollOption
	if s.pollInterval > 0 {
		opts = append(opts, firecrawl.WithPollInterval(s.pollInterval), firecrawl.WithPollCap(4*s.pollInterval))
	}
	status, err := firecrawl.PollExtract(pollCtx, s.client, jobID, opts...)
	if err != nil {
		return nil, err
	}
	return status.Data, nil
}

func emptyJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
