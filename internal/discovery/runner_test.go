package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rentcomp/internal/match"
	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/internal/store"
	"github.com/sells-group/rentcomp/internal/subject"
)

func newTestRunner(t *testing.T, src Source) (*Runner, *store.MemoryStore, *model.Property) {
	t.Helper()
	st := store.NewMemory()
	p, err := st.CreateProperty(context.Background(), model.Property{
		Name:    "The Duo",
		Address: "222 S 15th St, Omaha, NE 68102",
	})
	require.NoError(t, err)
	svc := subject.NewService(st, match.NewScorer(match.DefaultConfig()))
	r := NewRunner(st, src, svc, RunnerConfig{ListingDomain: "apartments.com", MaxListings: 10})
	return r, st, p
}

func TestRunner_Run(t *testing.T) {
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, omahaURL).Return([]model.DiscoveredListing{
		{URL: "https://www.zillow.com/b/the-duo/", Name: "The Duo", Address: "222 S 15th St"},
		{URL: "/midtown/", Name: "Midtown", Address: "S 15th St"},
		{URL: "https://www.apartments.com/the-duo/", Name: "The Duo Apartments", Address: "222 S 15th Street, Omaha, NE 68102"},
	}, nil)
	r, st, p := newTestRunner(t, src)
	ctx := context.Background()

	res, err := r.Run(ctx, p.ID, "")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Found)
	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, model.JobStatusResolved, res.Job.Status)
	assert.Equal(t, omahaURL, res.Job.SearchURL)
	require.NotNil(t, res.Resolution)
	assert.Equal(t, match.TierConfident, res.Resolution.Tier)

	job, err := st.GetJob(ctx, res.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusResolved, job.Status)

	listings, err := st.ListListings(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "https://www.apartments.com/midtown/", listings[0].URL)
	assert.False(t, listings[0].IsSubject)
	assert.True(t, listings[1].IsSubject)
	assert.Equal(t, res.Resolution.ChosenID, listings[1].ID)
}

func TestRunner_ExplicitSearchURL(t *testing.T) {
	const custom = "https://www.apartments.com/downtown-omaha-omaha-ne/"
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, custom).Return([]model.DiscoveredListing{}, nil)
	r, _, p := newTestRunner(t, src)

	res, err := r.Run(context.Background(), p.ID, custom)
	require.NoError(t, err)
	assert.Equal(t, custom, res.Job.SearchURL)
	assert.Equal(t, match.TierNone, res.Resolution.Tier)
	assert.NotEmpty(t, res.Resolution.Suggestions)
	assert.Equal(t, model.JobStatusResolved, res.Job.Status)
}

func TestRunner_SourceFailureMarksJobFailed(t *testing.T) {
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, omahaURL).Return(nil, errors.New("firecrawl down"))
	r, st, p := newTestRunner(t, src)
	ctx := context.Background()

	res, err := r.Run(ctx, p.ID, "")
	require.Error(t, err)
	require.NotNil(t, res)

	job, err := st.GetJob(ctx, res.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "firecrawl down")
}

func TestRunner_UsesPropertyCityState(t *testing.T) {
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, "https://www.apartments.com/council-bluffs-ia/").Return([]model.DiscoveredListing{}, nil)

	st := store.NewMemory()
	p, err := st.CreateProperty(context.Background(), model.Property{
		Name: "River Lofts", Address: "1 Broadway", City: "Council Bluffs", State: "IA",
	})
	require.NoError(t, err)
	r := NewRunner(st, src, subject.NewService(st, nil), RunnerConfig{})

	_, err = r.Run(context.Background(), p.ID, "")
	require.NoError(t, err)
	src.AssertExpectations(t)
}

func TestRunner_NoCityState(t *testing.T) {
	src := &mockSource{}
	st := store.NewMemory()
	p, err := st.CreateProperty(context.Background(), model.Property{Name: "Somewhere", Address: "1 Main St"})
	require.NoError(t, err)
	r := NewRunner(st, src, subject.NewService(st, nil), RunnerConfig{ListingDomain: "apartments.com"})

	_, err = r.Run(context.Background(), p.ID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoLocation)
	src.AssertNotCalled(t, "DiscoverListings", mock.Anything, mock.Anything)

	_, err = st.LatestJob(context.Background(), p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunner_UnknownProperty(t *testing.T) {
	r, _, _ := newTestRunner(t, &mockSource{})
	_, err := r.Run(context.Background(), "missing", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
