package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/rentcomp/internal/model"
)

// MemoryStore implements Store in process memory. It backs tests and
// one-shot CLI runs that do not need durable state.
type MemoryStore struct {
	mu         sync.RWMutex
	properties map[string]model.Property
	jobs       map[string]model.ScrapeJob
	jobOrder   []string
	listings   map[string]model.Listing
	units      map[string][]model.Unit
	cache      map[string]model.DiscoveryCache
	now        func() time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		properties: make(map[string]model.Property),
		jobs:       make(map[string]model.ScrapeJob),
		listings:   make(map[string]model.Listing),
		units:      make(map[string][]model.Unit),
		cache:      make(map[string]model.DiscoveryCache),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateProperty(_ context.Context, p model.Property) (*model.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = s.now()
	s.properties[p.ID] = p
	return &p, nil
}

func (s *MemoryStore) GetProperty(_ context.Context, id string) (*model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.properties[id]
	if !ok {
		return nil, notFound("property", id)
	}
	return &p, nil
}

func (s *MemoryStore) ListProperties(context.Context) ([]model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Property, 0, len(s.properties))
	for _, p := range s.properties {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateJob(_ context.Context, propertyID, searchURL string) (*model.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.properties[propertyID]; !ok {
		return nil, notFound("property", propertyID)
	}
	now := s.now()
	job := model.ScrapeJob{
		ID:         uuid.New().String(),
		PropertyID: propertyID,
		SearchURL:  searchURL,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.jobs[job.ID] = job
	s.jobOrder = append(s.jobOrder, job.ID)
	return &job, nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, notFound("job", id)
	}
	return &job, nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, id string, status model.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return notFound("job", id)
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) LatestJob(_ context.Context, propertyID string) (*model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		job := s.jobs[s.jobOrder[i]]
		if job.PropertyID == propertyID {
			return &job, nil
		}
	}
	return nil, notFound("job for property", propertyID)
}

func (s *MemoryStore) CreateListings(_ context.Context, jobID string, found []model.DiscoveredListing) ([]model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil, notFound("job", jobID)
	}
	offset := 0
	for _, l := range s.listings {
		if l.JobID == jobID {
			offset++
		}
	}

	now := s.now()
	out := make([]model.Listing, 0, len(found))
	for i, d := range found {
		l := model.Listing{
			ID:        uuid.New().String(),
			JobID:     jobID,
			Position:  offset + i,
			Name:      d.Name,
			Address:   d.Address,
			URL:       d.URL,
			CreatedAt: now,
		}
		s.listings[l.ID] = l
		out = append(out, l)
	}
	return out, nil
}

func (s *MemoryStore) ListListings(_ context.Context, jobID string) ([]model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Listing
	for _, l := range s.listings {
		if l.JobID == jobID {
			out = append(out, copyListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, notFound("listing", id)
	}
	l = copyListing(l)
	return &l, nil
}

func (s *MemoryStore) UpdateListing(_ context.Context, id string, patch model.ListingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return notFound("listing", id)
	}
	if patch.MatchScore != nil {
		score := *patch.MatchScore
		l.MatchScore = &score
	}
	if patch.IsSubject != nil {
		l.IsSubject = *patch.IsSubject
	}
	s.listings[id] = l
	return nil
}

func (s *MemoryStore) ReplaceUnits(_ context.Context, listingID string, units []model.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[listingID]; !ok {
		return notFound("listing", listingID)
	}
	now := s.now()
	stored := make([]model.Unit, len(units))
	for i, u := range units {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		u.ListingID = listingID
		u.CreatedAt = now
		stored[i] = u
	}
	s.units[listingID] = stored
	return nil
}

func (s *MemoryStore) ListUnits(_ context.Context, listingID string) ([]model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := s.units[listingID]
	out := make([]model.Unit, len(units))
	copy(out, units)
	return out, nil
}

func (s *MemoryStore) GetCachedDiscovery(_ context.Context, searchURL string) (*model.DiscoveryCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dc, ok := s.cache[searchURL]
	if !ok || !dc.ExpiresAt.After(s.now()) {
		return nil, nil
	}
	dc.Listings = append([]model.DiscoveredListing(nil), dc.Listings...)
	return &dc, nil
}

func (s *MemoryStore) SetCachedDiscovery(_ context.Context, searchURL string, listings []model.DiscoveredListing, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cache[searchURL] = model.DiscoveryCache{
		ID:        uuid.New().String(),
		SearchURL: searchURL,
		Listings:  append([]model.DiscoveredListing(nil), listings...),
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (s *MemoryStore) DeleteExpiredDiscovery(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, dc := range s.cache {
		if !dc.ExpiresAt.After(now) {
			delete(s.cache, k)
			n++
		}
	}
	return n, nil
}

func copyListing(l model.Listing) model.Listing {
	if l.MatchScore != nil {
		score := *l.MatchScore
		l.MatchScore = &score
	}
	return l
}
