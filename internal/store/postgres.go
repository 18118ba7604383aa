package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rentcomp/internal/db"
	"github.com/sells-group/rentcomp/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
// Resolution re-reads a batch and patches listings one at a time, so these
// are the hot paths.
var preparedStatements = map[string]string{
	"get_job":        `SELECT id, property_id, search_url, status, error, created_at, updated_at FROM scrape_jobs WHERE id = $1`,
	"list_listings":  `SELECT ` + pgListingColumns + ` FROM listings WHERE job_id = $1 ORDER BY position`,
	"update_listing": pgUpdateListing,
	"list_units":     pgListUnits,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	city       TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scrape_jobs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	property_id TEXT NOT NULL REFERENCES properties(id),
	search_url  TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	error       TEXT NOT NULL DEFAULT '',
	seq         BIGSERIAL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listings (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id      TEXT NOT NULL REFERENCES scrape_jobs(id),
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL,
	url         TEXT NOT NULL,
	match_score INTEGER,
	is_subject  BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, position)
);

CREATE TABLE IF NOT EXISTS units (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	listing_id        TEXT NOT NULL REFERENCES listings(id),
	unit_number       TEXT NOT NULL,
	bedrooms          INTEGER NOT NULL,
	bathrooms         DOUBLE PRECISION NOT NULL,
	square_feet       INTEGER NOT NULL DEFAULT 0,
	rent              DOUBLE PRECISION NOT NULL,
	availability_date TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'unknown',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS discovery_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	search_url TEXT NOT NULL UNIQUE,
	listings   JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_property ON scrape_jobs(property_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_units_listing ON units(listing_id);
CREATE INDEX IF NOT EXISTS idx_discovery_cache_expires_at ON discovery_cache(expires_at);
`

const (
	pgListingColumns = `id, job_id, position, name, address, url, match_score, is_subject, created_at`
	pgUpdateListing  = `UPDATE listings SET match_score = COALESCE($1, match_score), is_subject = COALESCE($2, is_subject) WHERE id = $3`
	pgListUnits      = `SELECT id, listing_id, unit_number, bedrooms, bathrooms, square_feet, rent, availability_date, status, created_at
		 FROM units WHERE listing_id = $1 ORDER BY unit_number`
)

var unitColumns = []string{"id", "listing_id", "unit_number", "bedrooms", "bathrooms", "square_feet", "rent", "availability_date", "status", "created_at"}

var listingColumns = []string{"id", "job_id", "position", "name", "address", "url", "created_at"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Properties ---

func (s *PostgresStore) CreateProperty(ctx context.Context, p model.Property) (*model.Property, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO properties (id, name, address, city, state, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Address, p.City, p.State, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert property")
	}
	return &p, nil
}

func (s *PostgresStore) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	var p model.Property
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, address, city, state, created_at FROM properties WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Address, &p.City, &p.State, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("property", id)
		}
		return nil, eris.Wrapf(err, "postgres: get property %s", id)
	}
	return &p, nil
}

func (s *PostgresStore) ListProperties(ctx context.Context) ([]model.Property, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, address, city, state, created_at FROM properties ORDER BY created_at, name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list properties")
	}
	defer rows.Close()

	var out []model.Property
	for rows.Next() {
		var p model.Property
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.City, &p.State, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan property")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list properties iterate")
}

// --- Scrape jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, propertyID, searchURL string) (*model.ScrapeJob, error) {
	now := time.Now().UTC()
	job := model.ScrapeJob{
		ID:         uuid.New().String(),
		PropertyID: propertyID,
		SearchURL:  searchURL,
		Status:     model.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (id, property_id, search_url, status, created_at, updated_at)
		 SELECT $1, id, $3, $4, $5, $6 FROM properties WHERE id = $2`,
		job.ID, propertyID, searchURL, string(job.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	if tag.RowsAffected() == 0 {
		return nil, notFound("property", propertyID)
	}
	return &job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ScrapeJob, error) {
	job, err := scanPgJob(s.pool.QueryRow(ctx,
		`SELECT id, property_id, search_url, status, error, created_at, updated_at FROM scrape_jobs WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job", id)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("job", id)
	}
	return nil
}

func (s *PostgresStore) LatestJob(ctx context.Context, propertyID string) (*model.ScrapeJob, error) {
	job, err := scanPgJob(s.pool.QueryRow(ctx,
		`SELECT id, property_id, search_url, status, error, created_at, updated_at FROM scrape_jobs
		 WHERE property_id = $1 ORDER BY seq DESC LIMIT 1`, propertyID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("job for property", propertyID)
		}
		return nil, eris.Wrapf(err, "postgres: latest job for %s", propertyID)
	}
	return job, nil
}

// --- Listings ---

// CreateListings appends a discovered batch to a job. Positions continue
// from the job's current listing count so discovery order is preserved.
func (s *PostgresStore) CreateListings(ctx context.Context, jobID string, found []model.DiscoveredListing) ([]model.Listing, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create listings")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	var offset int
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scrape_jobs WHERE id = $1), (SELECT COUNT(*) FROM listings WHERE job_id = $1)`, jobID,
	).Scan(&exists, &offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count listings")
	}
	if !exists {
		return nil, notFound("job", jobID)
	}

	now := time.Now().UTC()
	out := make([]model.Listing, 0, len(found))
	rows := make([][]any, 0, len(found))
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
		out = append(out, l)
		rows = append(rows, []any{l.ID, l.JobID, l.Position, l.Name, l.Address, l.URL, l.CreatedAt})
	}

	if _, err := db.CopyFrom(ctx, tx, "listings", listingColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: copy listings")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit listings")
	}
	return out, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, jobID string) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgListingColumns+` FROM listings WHERE job_id = $1 ORDER BY position`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list listings for %s", jobID)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list listings iterate")
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	l, err := scanPgListing(s.pool.QueryRow(ctx,
		`SELECT `+pgListingColumns+` FROM listings WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("listing", id)
		}
		return nil, eris.Wrapf(err, "postgres: get listing %s", id)
	}
	return l, nil
}

func (s *PostgresStore) UpdateListing(ctx context.Context, id string, patch model.ListingPatch) error {
	tag, err := s.pool.Exec(ctx, pgUpdateListing, patch.MatchScore, patch.IsSubject, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update listing %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("listing", id)
	}
	return nil
}

// --- Units ---

func (s *PostgresStore) ReplaceUnits(ctx context.Context, listingID string, units []model.Unit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace units")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, listingID).Scan(&exists); err != nil {
		return eris.Wrapf(err, "postgres: check listing %s", listingID)
	}
	if !exists {
		return notFound("listing", listingID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM units WHERE listing_id = $1`, listingID); err != nil {
		return eris.Wrapf(err, "postgres: delete units for %s", listingID)
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(units))
	for _, u := range units {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		rows = append(rows, []any{
			u.ID, listingID, u.UnitNumber, u.Bedrooms, u.Bathrooms, u.SquareFeet,
			u.Rent, u.AvailabilityDate, string(u.Status), now,
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "units", unitColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: copy units")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit units")
}

func (s *PostgresStore) ListUnits(ctx context.Context, listingID string) ([]model.Unit, error) {
	rows, err := s.pool.Query(ctx, pgListUnits, listingID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list units for %s", listingID)
	}
	defer rows.Close()

	var out []model.Unit
	for rows.Next() {
		var u model.Unit
		var status string
		if err := rows.Scan(&u.ID, &u.ListingID, &u.UnitNumber, &u.Bedrooms, &u.Bathrooms, &u.SquareFeet,
			&u.Rent, &u.AvailabilityDate, &status, &u.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unit")
		}
		u.Status = model.UnitStatus(status)
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list units iterate")
}

// --- Discovery cache ---

func (s *PostgresStore) GetCachedDiscovery(ctx context.Context, searchURL string) (*model.DiscoveryCache, error) {
	var dc model.DiscoveryCache
	var listingsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, search_url, listings, cached_at, expires_at FROM discovery_cache
		 WHERE search_url = $1 AND expires_at > now()`,
		searchURL,
	).Scan(&dc.ID, &dc.SearchURL, &listingsJSON, &dc.CachedAt, &dc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached discovery")
	}
	if err := json.Unmarshal(listingsJSON, &dc.Listings); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached listings")
	}
	return &dc, nil
}

func (s *PostgresStore) SetCachedDiscovery(ctx context.Context, searchURL string, listings []model.DiscoveredListing, ttl time.Duration) error {
	listingsJSON, err := json.Marshal(listings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal listings")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO discovery_cache (id, search_url, listings, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (search_url) DO UPDATE SET listings = $3, cached_at = $4, expires_at = $5`,
		uuid.New().String(), searchURL, listingsJSON, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached discovery")
}

func (s *PostgresStore) DeleteExpiredDiscovery(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM discovery_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired discovery")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgJob(row pgx.Row) (*model.ScrapeJob, error) {
	var j model.ScrapeJob
	var status string
	if err := row.Scan(&j.ID, &j.PropertyID, &j.SearchURL, &status, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

func scanPgListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	if err := row.Scan(&l.ID, &l.JobID, &l.Position, &l.Name, &l.Address, &l.URL, &l.MatchScore, &l.IsSubject, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
