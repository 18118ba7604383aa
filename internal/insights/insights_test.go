package insights

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/internal/store"
	"github.com/sells-group/rentcomp/pkg/anthropic"
)

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*anthropic.MessageResponse)
	return resp, args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 400, OutputTokens: 80},
	}
}

func seedReport(t *testing.T) (*store.MemoryStore, string) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	p, err := st.CreateProperty(ctx, model.Property{Name: "The Duo", Address: "222 S 15th St, Omaha, NE 68102"})
	require.NoError(t, err)
	job, err := st.CreateJob(ctx, p.ID, "https://www.apartments.com/omaha-ne/")
	require.NoError(t, err)
	listings, err := st.CreateListings(ctx, job.ID, []model.DiscoveredListing{
		{URL: "https://www.apartments.com/the-duo/", Name: "The Duo Apartments", Address: "222 S 15th Street"},
		{URL: "https://www.apartments.com/midtown/", Name: "Midtown", Address: "S 15th St"},
		{URL: "https://www.apartments.com/zephyr/", Name: "Zephyr Flats", Address: "9 Oak Rd"},
	})
	require.NoError(t, err)

	subject := true
	require.NoError(t, st.UpdateListing(ctx, listings[0].ID, model.ListingPatch{IsSubject: &subject}))
	require.NoError(t, st.ReplaceUnits(ctx, listings[0].ID, []model.Unit{
		{Bedrooms: 1, Rent: 1500, Status: model.UnitStatusAvailable},
		{Bedrooms: 2, Rent: 2000, Status: model.UnitStatusOccupied},
	}))
	require.NoError(t, st.ReplaceUnits(ctx, listings[1].ID, []model.Unit{
		{Bedrooms: 1, Rent: 1400, Status: model.UnitStatusAvailable},
	}))
	require.NoError(t, st.ReplaceUnits(ctx, listings[2].ID, []model.Unit{
		{Bedrooms: 1, Rent: 1600, Status: model.UnitStatusOccupied},
		{Bedrooms: 2, Rent: 2000, Status: model.UnitStatusAvailable},
	}))
	return st, job.ID
}

func TestServiceReport(t *testing.T) {
	st, jobID := seedReport(t)
	svc := NewService(st, nil)

	r, err := svc.Report(context.Background(), jobID, true)
	require.NoError(t, err)

	assert.Equal(t, "The Duo Apartments", r.Subject.Name)
	assert.Equal(t, 2, r.Competitors)
	assert.Equal(t, 2, r.Summary.SubjectUnits)
	assert.Equal(t, 3, r.Summary.MarketUnits)
	assert.Equal(t, PositionAt, r.Summary.Position)
	assert.Empty(t, r.Narrative)
}

func TestServiceReport_WithNarrative(t *testing.T) {
	st, jobID := seedReport(t)
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.MaxTokens == 512 &&
			len(req.Messages) == 1 &&
			strings.Contains(req.Messages[0].Content, "The Duo")
	})).Return(textResponse("  Rents are in line with the market.  "), nil)

	svc := NewService(st, NewNarrator(client, "claude-sonnet-4-5-20250929", 512))
	r, err := svc.Report(context.Background(), jobID, true)
	require.NoError(t, err)
	assert.Equal(t, "Rents are in line with the market.", r.Narrative)
	client.AssertExpectations(t)
}

func TestServiceReport_NarrativeFailureIsNotFatal(t *testing.T) {
	st, jobID := seedReport(t)
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	svc := NewService(st, NewNarrator(client, "claude-sonnet-4-5-20250929", 0))
	r, err := svc.Report(context.Background(), jobID, true)
	require.NoError(t, err)
	assert.Empty(t, r.Narrative)
}

func TestServiceReport_NarrateFlagOff(t *testing.T) {
	st, jobID := seedReport(t)
	client := &mockAnthropic{}
	svc := NewService(st, NewNarrator(client, "m", 0))

	_, err := svc.Report(context.Background(), jobID, false)
	require.NoError(t, err)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestServiceReport_NoSubject(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	p, err := st.CreateProperty(ctx, model.Property{Name: "The Duo", Address: "222 S 15th St"})
	require.NoError(t, err)
	job, err := st.CreateJob(ctx, p.ID, "https://www.apartments.com/omaha-ne/")
	require.NoError(t, err)

	_, err = NewService(st, nil).Report(ctx, job.ID, false)
	assert.ErrorIs(t, err, ErrNoSubject)

	_, err = NewService(st, nil).Report(ctx, "missing", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNarrate_EmptyResponse(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil)

	_, err := NewNarrator(client, "m", 0).Narrate(context.Background(), model.Property{Name: "X"}, Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty narrative")
}
