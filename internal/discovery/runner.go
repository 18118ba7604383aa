package discovery

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/internal/subject"
)

// ErrNoLocation is returned when no search URL is given and the property's
// city and state cannot be determined.
var ErrNoLocation = eris.New("discovery: cannot derive city and state")

// RunnerStore is the persistence a discovery run needs.
type RunnerStore interface {
	GetProperty(ctx context.Context, id string) (*model.Property, error)
	CreateJob(ctx context.Context, propertyID, searchURL string) (*model.ScrapeJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error
	CreateListings(ctx context.Context, jobID string, found []model.DiscoveredListing) ([]model.Listing, error)
}

// Resolver picks the subject listing of a stored job.
type Resolver interface {
	ResolveJob(ctx context.Context, jobID string) (*subject.Resolution, error)
}

// RunnerConfig controls which discovered listings are kept.
type RunnerConfig struct {
	ListingDomain string
	MaxListings   int
}

// RunResult is the outcome of one discovery run.
type RunResult struct {
	Job        *model.ScrapeJob    `json:"job"`
	Found      int                 `json:"found"`
	Kept       int                 `json:"kept"`
	Dropped    int                 `json:"dropped"`
	Resolution *subject.Resolution `json:"resolution,omitempty"`
}

// Runner runs a scrape job end to end: discover, filter, persist, resolve.
type Runner struct {
	store    RunnerStore
	source   Source
	resolver Resolver
	cfg      RunnerConfig
}

// NewRunner creates a Runner.
func NewRunner(store RunnerStore, source Source, resolver Resolver, cfg RunnerConfig) *Runner {
	if cfg.ListingDomain == "" {
		cfg.ListingDomain = "apartments.com"
	}
	return &Runner{store: store, source: source, resolver: resolver, cfg: cfg}
}

// Run discovers listings for a property. When searchURL is empty it is
// derived from the property's city and state, parsing them from the address
// if needed. The job ends resolved or failed; a failed job is returned along
// with the error.
func (r *Runner) Run(ctx context.Context, propertyID, searchURL string) (*RunResult, error) {
	prop, err := r.store.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: get property %s", propertyID)
	}

	if searchURL == "" {
		searchURL, err = r.searchURLFor(prop)
		if err != nil {
			return nil, err
		}
	}

	job, err := r.store.CreateJob(ctx, prop.ID, searchURL)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: create job")
	}
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("property_id", prop.ID))
	result := &RunResult{Job: job}

	fail := func(cause error) (*RunResult, error) {
		log.Error("discovery: run failed", zap.Error(cause))
		if err := r.setStatus(ctx, job, model.JobStatusFailed, cause.Error()); err != nil {
			log.Warn("discovery: mark job failed", zap.Error(err))
		}
		return result, cause
	}

	if err := r.setStatus(ctx, job, model.JobStatusDiscovering, ""); err != nil {
		return fail(err)
	}

	found, err := r.source.DiscoverListings(ctx, searchURL)
	if err != nil {
		return fail(eris.Wrapf(err, "discovery: discover listings for job %s", job.ID))
	}
	result.Found = len(found)

	kept := FilterListings(found, r.cfg.ListingDomain, r.cfg.MaxListings)
	result.Kept = len(kept)
	result.Dropped = len(found) - len(kept)
	log.Info("discovery: listings found",
		zap.String("search_url", searchURL),
		zap.Int("found", result.Found),
		zap.Int("kept", result.Kept),
	)

	if len(kept) > 0 {
		if _, err := r.store.CreateListings(ctx, job.ID, kept); err != nil {
			return fail(eris.Wrapf(err, "discovery: store listings for job %s", job.ID))
		}
	}

	res, err := r.resolver.ResolveJob(ctx, job.ID)
	result.Resolution = res
	if err != nil {
		return fail(eris.Wrapf(err, "discovery: resolve job %s", job.ID))
	}

	if err := r.setStatus(ctx, job, model.JobStatusResolved, ""); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) setStatus(ctx context.Context, job *model.ScrapeJob, status model.JobStatus, msg string) error {
	if err := r.store.UpdateJobStatus(ctx, job.ID, status, msg); err != nil {
		return eris.Wrapf(err, "discovery: set job %s %s", job.ID, status)
	}
	job.Status = status
	job.Error = msg
	return nil
}

func (r *Runner) searchURLFor(p *model.Property) (string, error) {
	city, state := strings.TrimSpace(p.City), strings.TrimSpace(p.State)
	if city == "" || state == "" {
		pc, ps := ParseCityState(p.Address)
		if city == "" {
			city = pc
		}
		if state == "" {
			state = ps
		}
	}
	if city == "" || state == "" {
		return "", eris.Wrapf(ErrNoLocation, "property %s address %q", p.ID, p.Address)
	}
	return SearchURL(r.cfg.ListingDomain, city, state), nil
}

// FilterListings drops listings whose URL is not on domain (relative URLs
// are resolved against it) and duplicate URLs, fills blank addresses with
// the placeholder, and keeps at most limit listings in discovery order.
func FilterListings(found []model.DiscoveredListing, domain string, limit int) []model.DiscoveredListing {
	seen := make(map[string]bool, len(found))
	kept := make([]model.DiscoveredListing, 0, len(found))
	for _, l := range found {
		if limit > 0 && len(kept) >= limit {
			break
		}
		u, ok := resolveListingURL(l.URL, domain)
		if !ok || seen[u] {
			continue
		}
		seen[u] = true
		l.URL = u
		l.Name = strings.TrimSpace(l.Name)
		l.Address = strings.TrimSpace(l.Address)
		if l.Address == "" {
			l.Address = model.PlaceholderAddress
		}
		kept = append(kept, l)
	}
	return kept
}
