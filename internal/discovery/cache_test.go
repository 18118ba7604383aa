package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/internal/store"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) DiscoverListings(ctx context.Context, searchURL string) ([]model.DiscoveredListing, error) {
	args := m.Called(ctx, searchURL)
	found, _ := args.Get(0).([]model.DiscoveredListing)
	return found, args.Error(1)
}

const omahaURL = "https://www.apartments.com/omaha-ne/"

var omahaListings = []model.DiscoveredListing{
	{URL: "https://www.apartments.com/the-duo/", Name: "The Duo Apartments", Address: "222 S 15th Street, Omaha, NE 68102"},
	{URL: "https://www.apartments.com/midtown/", Name: "Midtown", Address: "S 15th St"},
}

func TestCachedSource_MissThenHit(t *testing.T) {
	st := store.NewMemory()
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, omahaURL).Return(omahaListings, nil).Once()

	cached := NewCachedSource(src, st, time.Hour)
	ctx := context.Background()

	first, err := cached.DiscoverListings(ctx, omahaURL)
	require.NoError(t, err)
	assert.Equal(t, omahaListings, first)

	second, err := cached.DiscoverListings(ctx, omahaURL)
	require.NoError(t, err)
	assert.Equal(t, omahaListings, second)

	src.AssertNumberOfCalls(t, "DiscoverListings", 1)
}

func TestCachedSource_EmptyResultNotCached(t *testing.T) {
	st := store.NewMemory()
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, omahaURL).Return([]model.DiscoveredListing{}, nil)

	cached := NewCachedSource(src, st, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		found, err := cached.DiscoverListings(ctx, omahaURL)
		require.NoError(t, err)
		assert.Empty(t, found)
	}
	src.AssertNumberOfCalls(t, "DiscoverListings", 2)

	entry, err := st.GetCachedDiscovery(ctx, omahaURL)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCachedSource_Disabled(t *testing.T) {
	st := store.NewMemory()
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, omahaURL).Return(omahaListings, nil)

	cached := NewCachedSource(src, st, 0)
	for i := 0; i < 2; i++ {
		_, err := cached.DiscoverListings(context.Background(), omahaURL)
		require.NoError(t, err)
	}
	src.AssertNumberOfCalls(t, "DiscoverListings", 2)
}

func TestCachedSource_SourceError(t *testing.T) {
	src := &mockSource{}
	src.On("DiscoverListings", mock.Anything, omahaURL).Return(nil, errors.New("upstream down"))

	cached := NewCachedSource(src, store.NewMemory(), time.Hour)
	_, err := cached.DiscoverListings(context.Background(), omahaURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}
