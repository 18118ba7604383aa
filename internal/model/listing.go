package model

import "time"

// PlaceholderAddress is stored when the listings source omits an address.
const PlaceholderAddress = "Address to be determined"

// DiscoveredListing is a raw result from the listings-discovery service.
type DiscoveredListing struct {
	URL     string `json:"url" yaml:"url"`
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

// Listing is a scraped candidate listing belonging to a scrape job.
// Position records discovery order; batches are always read back in
// ascending Position so that earliest-wins tie-breaks are reproducible.
type Listing struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Position   int       `json:"position"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	URL        string    `json:"url"`
	MatchScore *int      `json:"match_score,omitempty"`
	IsSubject  bool      `json:"is_subject_property"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListingPatch is a partial update to a listing. Nil fields are left untouched.
type ListingPatch struct {
	MatchScore *int
	IsSubject  *bool
}

// Score returns the persisted match score, or -1 when the listing has not
// been scored yet.
func (l Listing) Score() int {
	if l.MatchScore == nil {
		return -1
	}
	return *l.MatchScore
}

// DiscoveryCache is a cached discovery result for one search URL.
type DiscoveryCache struct {
	ID        string              `json:"id"`
	SearchURL string              `json:"search_url"`
	Listings  []DiscoveredListing `json:"listings"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}
