package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rentcomp/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetProperty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, name, address, city, state, created_at FROM properties WHERE id = \$1`).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "address", "city", "state", "created_at"}).
			AddRow("p1", "The Duo", "222 S 15th St", "Omaha", "NE", now))

	p, err := s.GetProperty(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "The Duo", p.Name)
	assert.Equal(t, "NE", p.State)
	assert.Equal(t, now, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProperty_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, address, city, state, created_at FROM properties`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetProperty(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProperty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO properties`).
		WithArgs(pgxmock.AnyArg(), "The Duo", "222 S 15th St", "Omaha", "NE", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p, err := s.CreateProperty(context.Background(), model.Property{Name: "The Duo", Address: "222 S 15th St", City: "Omaha", State: "NE"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJob_UnknownProperty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO scrape_jobs`).
		WithArgs(pgxmock.AnyArg(), "missing", "https://www.apartments.com/omaha-ne/", "pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := s.CreateJob(context.Background(), "missing", "https://www.apartments.com/omaha-ne/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM scrape_jobs WHERE id = \$1`).
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "property_id", "search_url", "status", "error", "created_at", "updated_at"}).
			AddRow("j1", "p1", "https://www.apartments.com/omaha-ne/", "resolved", "", now, now))

	job, err := s.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusResolved, job.Status)
	assert.Equal(t, "p1", job.PropertyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJobStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE scrape_jobs SET status`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateJobStatus(context.Background(), "missing", model.JobStatusFailed, "boom")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateListings_ContinuesPositions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{"exists", "count"}).AddRow(true, 2))
	mock.ExpectCopyFrom(pgx.Identifier{"listings"}, listingColumns).WillReturnResult(2)
	mock.ExpectCommit()

	created, err := s.CreateListings(context.Background(), "j1", []model.DiscoveredListing{
		{URL: "https://www.apartments.com/duo/", Name: "The Duo", Address: "222 S 15th St"},
		{URL: "https://www.apartments.com/atlas/", Name: "Atlas", Address: model.PlaceholderAddress},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, 2, created[0].Position)
	assert.Equal(t, 3, created[1].Position)
	assert.Equal(t, "j1", created[1].JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateListings_UnknownJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists", "count"}).AddRow(false, 0))

	_, err := s.CreateListings(context.Background(), "missing", []model.DiscoveredListing{{Name: "X"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateListing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE listings SET match_score = COALESCE`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "l1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	score, subject := 91, true
	err := s.UpdateListing(context.Background(), "l1", model.ListingPatch{MatchScore: &score, IsSubject: &subject})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateListing_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE listings`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	subject := false
	err := s.UpdateListing(context.Background(), "missing", model.ListingPatch{IsSubject: &subject})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceUnits(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("l1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM units WHERE listing_id = \$1`).
		WithArgs("l1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"units"}, unitColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := s.ReplaceUnits(context.Background(), "l1", []model.Unit{
		{UnitNumber: "101", Bedrooms: 1, Bathrooms: 1, Rent: 1295, Status: model.UnitStatusAvailable},
		{UnitNumber: "202", Bedrooms: 2, Bathrooms: 2, Rent: 1850, Status: model.UnitStatusOccupied},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceUnits_UnknownListing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := s.ReplaceUnits(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUnits(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM units WHERE listing_id = \$1`).
		WithArgs("l1").
		WillReturnRows(pgxmock.NewRows(unitColumns).
			AddRow("u1", "l1", "101", 1, 1.0, 700, 1295.0, "2026-04-01", "available", now).
			AddRow("u2", "l1", "202", 2, 2.0, 1050, 1850.0, "", "occupied", now))

	units, err := s.ListUnits(context.Background(), "l1")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, model.UnitStatusAvailable, units[0].Status)
	assert.Equal(t, 1050, units[1].SquareFeet)
	assert.InDelta(t, 1850.0, units[1].Rent, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedDiscovery_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, search_url, listings, cached_at, expires_at FROM discovery_cache`).
		WithArgs("https://www.apartments.com/lincoln-ne/").
		WillReturnError(pgx.ErrNoRows)

	result, err := s.GetCachedDiscovery(context.Background(), "https://www.apartments.com/lincoln-ne/")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedDiscovery_Hit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM discovery_cache`).
		WithArgs("key").
		WillReturnRows(pgxmock.NewRows([]string{"id", "search_url", "listings", "cached_at", "expires_at"}).
			AddRow("c1", "key", []byte(`[{"url":"https://www.apartments.com/duo/","name":"The Duo","address":"222 S 15th St"}]`), now, now.Add(time.Hour)))

	result, err := s.GetCachedDiscovery(context.Background(), "key")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Listings, 1)
	assert.Equal(t, "The Duo", result.Listings[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedDiscovery_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "key", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedDiscovery(context.Background(), "key", []model.DiscoveredListing{{Name: "The Duo"}}, 24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredDiscovery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM discovery_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredDiscovery(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
