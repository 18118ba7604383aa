// Package store persists properties, scrape jobs, listings, units, and the
// discovery cache.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rentcomp/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for properties and their scrape jobs.
type Store interface {
	// Properties
	CreateProperty(ctx context.Context, p model.Property) (*model.Property, error)
	GetProperty(ctx context.Context, id string) (*model.Property, error)
	ListProperties(ctx context.Context) ([]model.Property, error)

	// Scrape jobs
	CreateJob(ctx context.Context, propertyID, searchURL string) (*model.ScrapeJob, error)
	GetJob(ctx context.Context, id string) (*model.ScrapeJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error
	LatestJob(ctx context.Context, propertyID string) (*model.ScrapeJob, error)

	// Listings. ListListings returns a batch in discovery order.
	CreateListings(ctx context.Context, jobID string, found []model.DiscoveredListing) ([]model.Listing, error)
	ListListings(ctx context.Context, jobID string) ([]model.Listing, error)
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	UpdateListing(ctx context.Context, id string, patch model.ListingPatch) error

	// Units
	ReplaceUnits(ctx context.Context, listingID string, units []model.Unit) error
	ListUnits(ctx context.Context, listingID string) ([]model.Unit, error)

	// Discovery cache. GetCachedDiscovery returns nil, nil on a miss.
	GetCachedDiscovery(ctx context.Context, searchURL string) (*model.DiscoveryCache, error)
	SetCachedDiscovery(ctx context.Context, searchURL string, listings []model.DiscoveredListing, ttl time.Duration) error
	DeleteExpiredDiscovery(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}
