package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rentcomp/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	city       TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL REFERENCES properties(id),
	search_url  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT NOT NULL DEFAULT '',
	seq         INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	id          TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL REFERENCES scrape_jobs(id),
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL,
	url         TEXT NOT NULL,
	match_score INTEGER,
	is_subject  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS units (
	id                TEXT PRIMARY KEY,
	listing_id        TEXT NOT NULL REFERENCES listings(id),
	unit_number       TEXT NOT NULL,
	bedrooms          INTEGER NOT NULL,
	bathrooms         REAL NOT NULL,
	square_feet       INTEGER NOT NULL DEFAULT 0,
	rent              REAL NOT NULL,
	availability_date TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'unknown',
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS discovery_cache (
	id         TEXT PRIMARY KEY,
	search_url TEXT NOT NULL UNIQUE,
	listings   TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_property ON scrape_jobs(property_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS idx_listings_job_position ON listings(job_id, position);
CREATE INDEX IF NOT EXISTS idx_units_listing ON units(listing_id);
CREATE INDEX IF NOT EXISTS idx_discovery_cache_expires_at ON discovery_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Properties ---

func (s *SQLiteStore) CreateProperty(ctx context.Context, p model.Property) (*model.Property, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO properties (id, name, address, city, state, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Address, p.City, p.State, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert property")
	}
	return &p, nil
}

func (s *SQLiteStore) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, city, state, created_at FROM properties WHERE id = ?`, id,
	)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("property", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get property %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListProperties(ctx context.Context) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, address, city, state, created_at FROM properties ORDER BY created_at, name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list properties")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan property")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list properties iterate")
}

// --- Scrape jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, propertyID, searchURL string) (*model.ScrapeJob, error) {
	if _, err := s.GetProperty(ctx, propertyID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := model.ScrapeJob{
		ID:         uuid.New().String(),
		PropertyID: propertyID,
		SearchURL:  searchURL,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (id, property_id, search_url, status, seq, created_at, updated_at)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM scrape_jobs), ?, ?)`,
		job.ID, job.PropertyID, job.SearchURL, string(job.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ScrapeJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, search_url, status, error, created_at, updated_at FROM scrape_jobs WHERE id = ?`, id,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("job", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) LatestJob(ctx context.Context, propertyID string) (*model.ScrapeJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, search_url, status, error, created_at, updated_at FROM scrape_jobs
		 WHERE property_id = ? ORDER BY seq DESC LIMIT 1`, propertyID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("job for property", propertyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest job for %s", propertyID)
	}
	return job, nil
}

// --- Listings ---

func (s *SQLiteStore) CreateListings(ctx context.Context, jobID string, found []model.DiscoveredListing) ([]model.Listing, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create listings")
	}
	defer tx.Rollback() //nolint:errcheck

	var offset int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE job_id = ?`, jobID).Scan(&offset); err != nil {
		return nil, eris.Wrap(err, "sqlite: count listings")
	}

	now := time.Now().UTC()
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
		_, err := tx.ExecContext(ctx,
			`INSERT INTO listings (id, job_id, position, name, address, url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.JobID, l.Position, l.Name, l.Address, l.URL, l.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert listing %d", l.Position)
		}
		out = append(out, l)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit listings")
	}
	return out, nil
}

const sqliteListingColumns = `id, job_id, position, name, address, url, match_score, is_subject, created_at`

func (s *SQLiteStore) ListListings(ctx context.Context, jobID string) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteListingColumns+` FROM listings WHERE job_id = ? ORDER BY position`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list listings for %s", jobID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list listings iterate")
}

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteListingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("listing", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get listing %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) UpdateListing(ctx context.Context, id string, patch model.ListingPatch) error {
	var score sql.NullInt64
	if patch.MatchScore != nil {
		score = sql.NullInt64{Int64: int64(*patch.MatchScore), Valid: true}
	}
	var subject sql.NullBool
	if patch.IsSubject != nil {
		subject = sql.NullBool{Bool: *patch.IsSubject, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET
			match_score = CASE WHEN ? THEN ? ELSE match_score END,
			is_subject  = CASE WHEN ? THEN ? ELSE is_subject END
		 WHERE id = ?`,
		score.Valid, score, subject.Valid, subject, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update listing %s", id)
	}
	return checkRowsAffected(res, "listing", id)
}

// --- Units ---

func (s *SQLiteStore) ReplaceUnits(ctx context.Context, listingID string, units []model.Unit) error {
	if _, err := s.GetListing(ctx, listingID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace units")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE listing_id = ?`, listingID); err != nil {
		return eris.Wrapf(err, "sqlite: delete units for %s", listingID)
	}

	now := time.Now().UTC()
	for _, u := range units {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO units (id, listing_id, unit_number, bedrooms, bathrooms, square_feet, rent, availability_date, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, listingID, u.UnitNumber, u.Bedrooms, u.Bathrooms, u.SquareFeet, u.Rent, u.AvailabilityDate, string(u.Status), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert unit %s", u.UnitNumber)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit units")
}

func (s *SQLiteStore) ListUnits(ctx context.Context, listingID string) ([]model.Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing_id, unit_number, bedrooms, bathrooms, square_feet, rent, availability_date, status, created_at
		 FROM units WHERE listing_id = ? ORDER BY unit_number`, listingID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list units for %s", listingID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Unit
	for rows.Next() {
		var u model.Unit
		if err := rows.Scan(&u.ID, &u.ListingID, &u.UnitNumber, &u.Bedrooms, &u.Bathrooms, &u.SquareFeet,
			&u.Rent, &u.AvailabilityDate, &u.Status, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unit")
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list units iterate")
}

// --- Discovery cache ---

func (s *SQLiteStore) GetCachedDiscovery(ctx context.Context, searchURL string) (*model.DiscoveryCache, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, search_url, listings, cached_at, expires_at FROM discovery_cache
		 WHERE search_url = ? AND expires_at > ?`,
		searchURL, time.Now().UTC(),
	)

	var dc model.DiscoveryCache
	var listingsJSON string
	err := row.Scan(&dc.ID, &dc.SearchURL, &listingsJSON, &dc.CachedAt, &dc.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached discovery")
	}
	if err := json.Unmarshal([]byte(listingsJSON), &dc.Listings); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached listings")
	}
	return &dc, nil
}

func (s *SQLiteStore) SetCachedDiscovery(ctx context.Context, searchURL string, listings []model.DiscoveredListing, ttl time.Duration) error {
	listingsJSON, err := json.Marshal(listings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal listings")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO discovery_cache (id, search_url, listings, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (search_url) DO UPDATE SET listings = excluded.listings, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		uuid.New().String(), searchURL, string(listingsJSON), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached discovery")
}

func (s *SQLiteStore) DeleteExpiredDiscovery(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM discovery_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired discovery")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProperty(row scannable) (*model.Property, error) {
	var p model.Property
	if err := row.Scan(&p.ID, &p.Name, &p.Address, &p.City, &p.State, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanJob(row scannable) (*model.ScrapeJob, error) {
	var j model.ScrapeJob
	if err := row.Scan(&j.ID, &j.PropertyID, &j.SearchURL, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func scanListing(row scannable) (*model.Listing, error) {
	var l model.Listing
	var score sql.NullInt64
	if err := row.Scan(&l.ID, &l.JobID, &l.Position, &l.Name, &l.Address, &l.URL, &score, &l.IsSubject, &l.CreatedAt); err != nil {
		return nil, err
	}
	if score.Valid {
		v := int(score.Int64)
		l.MatchScore = &v
	}
	return &l, nil
}
