// Package subject decides which scraped listing in a scrape job is the
// user's own property, and lets operators inspect and correct that choice.
package subject

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rentcomp/internal/match"
	"github.com/sells-group/rentcomp/internal/model"
)

var (
	// ErrListingNotInBatch is returned when an override names a listing that
	// does not belong to the job.
	ErrListingNotInBatch = eris.New("subject: listing not in batch")
	// ErrEmptyBatch is returned by operations that need at least one listing.
	ErrEmptyBatch = eris.New("subject: empty batch")
	// ErrNoUnitExtractor is returned by SyncUnits when no extractor is set.
	ErrNoUnitExtractor = eris.New("subject: no unit extractor configured")
)

// Store is the persistence the service depends on.
type Store interface {
	GetProperty(ctx context.Context, id string) (*model.Property, error)
	GetJob(ctx context.Context, id string) (*model.ScrapeJob, error)
	ListListings(ctx context.Context, jobID string) ([]model.Listing, error)
	UpdateListing(ctx context.Context, id string, patch model.ListingPatch) error
	ReplaceUnits(ctx context.Context, listingID string, units []model.Unit) error
}

// UnitExtractor fetches the units advertised on a listing page.
type UnitExtractor interface {
	ExtractUnits(ctx context.Context, listingURL string) ([]model.Unit, error)
}

// Service runs subject resolution, inspection, overrides, and unit sync
// against stored scrape jobs. Mutations to one job are serialized.
type Service struct {
	store       Store
	scorer      *match.Scorer
	units       UnitExtractor
	concurrency int
	locks       *jobLocks
}

// Option configures a Service.
type Option func(*Service)

// WithUnitExtractor sets the collaborator used by SyncUnits.
func WithUnitExtractor(u UnitExtractor) Option {
	return func(s *Service) { s.units = u }
}

// WithConcurrency bounds parallel competitor unit extraction.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a Service.
func NewService(st Store, scorer *match.Scorer, opts ...Option) *Service {
	if scorer == nil {
		scorer = match.NewScorer(match.DefaultConfig())
	}
	s := &Service{
		store:       st,
		scorer:      scorer,
		concurrency: 4,
		locks:       newJobLocks(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scorer returns the scorer used for resolution.
func (s *Service) Scorer() *match.Scorer {
	return s.scorer
}

// jobLocks hands out one mutex per job so a resolution and an override of
// the same batch never interleave. Entries are dropped once no caller holds
// or waits on them.
type jobLocks struct {
	mu sync.Mutex
	m  map[string]*jobLock
}

type jobLock struct {
	sync.Mutex
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{m: make(map[string]*jobLock)}
}

func (l *jobLocks) lock(jobID string) func() {
	l.mu.Lock()
	jl, ok := l.m[jobID]
	if !ok {
		jl = &jobLock{}
		l.m[jobID] = jl
	}
	jl.refs++
	l.mu.Unlock()

	jl.Lock()
	return func() {
		jl.Unlock()
		l.mu.Lock()
		jl.refs--
		if jl.refs == 0 {
			delete(l.m, jobID)
		}
		l.mu.Unlock()
	}
}

// loadBatch reads the job's subject property and its listings in discovery order.
func (s *Service) loadBatch(ctx context.Context, jobID string) (*model.Property, []model.Listing, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "subject: get job %s", jobID)
	}
	prop, err := s.store.GetProperty(ctx, job.PropertyID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "subject: get property %s", job.PropertyID)
	}
	listings, err := s.store.ListListings(ctx, jobID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "subject: list listings for job %s", jobID)
	}
	return prop, listings, nil
}

func batchJobID(listings []model.Listing) string {
	if len(listings) == 0 {
		return ""
	}
	return listings[0].JobID
}

func holders(listings []model.Listing) []int {
	var idx []int
	for i, l := range listings {
		if l.IsSubject {
			idx = append(idx, i)
		}
	}
	return idx
}

func boolPtr(b bool) *bool { return &b }

func intPtr(n int) *int { return &n }
