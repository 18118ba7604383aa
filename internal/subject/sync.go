package subject

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rentcomp/internal/match"
	"github.com/sells-group/rentcomp/internal/model"
)

// SyncReport summarises a unit sync.
type SyncReport struct {
	JobID       string `json:"job_id"`
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	// FallbackUsed is set when no listing was flagged and the fallback
	// cascade picked one before syncing.
	FallbackUsed bool           `json:"fallback_used"`
	Tier         match.Tier     `json:"tier,omitempty"`
	Scores       []match.Result `json:"scores"`
	// Repaired lists listings that were unmarked because more than one
	// listing was flagged.
	Repaired          []string `json:"repaired,omitempty"`
	SubjectUnits      int      `json:"subject_units"`
	CompetitorsSynced int      `json:"competitors_synced"`
	CompetitorsFailed int      `json:"competitors_failed"`
	CompetitorUnits   int      `json:"competitor_units"`
}

// SyncUnits materialises the subject's units, and optionally every
// competitor's. If no listing is flagged as the subject the fallback
// cascade picks one first. A failure on the subject is returned; competitor
// failures are logged and counted.
func (s *Service) SyncUnits(ctx context.Context, jobID string, includeCompetitors bool) (*SyncReport, error) {
	if s.units == nil {
		return nil, ErrNoUnitExtractor
	}

	report, subject, competitors, err := s.prepareSync(ctx, jobID)
	if err != nil {
		return report, err
	}

	log := zap.L().With(zap.String("job_id", jobID), zap.String("listing_id", subject.ID))

	n, err := s.syncListing(ctx, subject)
	if err != nil {
		log.Error("subject: sync subject units failed", zap.Error(err))
		return report, eris.Wrapf(err, "subject: sync units for %s", subject.ID)
	}
	report.SubjectUnits = n

	if !includeCompetitors || len(competitors) == 0 {
		log.Info("subject: units synced", zap.Int("units", n))
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, c := range competitors {
		g.Go(func() error {
			count, err := s.syncListing(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.CompetitorsFailed++
				log.Warn("subject: sync competitor units failed",
					zap.String("competitor_id", c.ID),
					zap.String("url", c.URL),
					zap.Error(err),
				)
				return nil
			}
			report.CompetitorsSynced++
			report.CompetitorUnits += count
			return nil
		})
	}
	_ = g.Wait()

	log.Info("subject: units synced",
		zap.Int("units", n),
		zap.Int("competitors_synced", report.CompetitorsSynced),
		zap.Int("competitors_failed", report.CompetitorsFailed),
	)
	return report, nil
}

// prepareSync makes sure exactly one listing is flagged, holding the job lock
// only while it reads and repairs the batch.
func (s *Service) prepareSync(ctx context.Context, jobID string) (*SyncReport, model.Listing, []model.Listing, error) {
	defer s.locks.lock(jobID)()

	prop, listings, err := s.loadBatch(ctx, jobID)
	if err != nil {
		return nil, model.Listing{}, nil, err
	}
	if len(listings) == 0 {
		return nil, model.Listing{}, nil, eris.Wrapf(ErrEmptyBatch, "job %s", jobID)
	}

	report := &SyncReport{JobID: jobID}

	listings, report.Repaired, err = s.repair(ctx, listings)
	if err != nil {
		return report, model.Listing{}, nil, err
	}

	idx := holders(listings)
	if len(idx) == 0 {
		res, err := s.resolve(ctx, *prop, listings, s.scorer.DecideFallback)
		if res != nil {
			report.Scores = res.Scores
			report.Tier = res.Tier
		}
		if err != nil {
			return report, model.Listing{}, nil, err
		}
		report.FallbackUsed = true
		for i := range listings {
			listings[i].IsSubject = listings[i].ID == res.ChosenID
		}
		idx = holders(listings)
	} else {
		report.Scores = s.scorer.ScoreAll(*prop, listings)
	}

	subject := listings[idx[0]]
	report.SubjectID = subject.ID
	report.SubjectName = subject.Name

	competitors := make([]model.Listing, 0, len(listings)-1)
	for i, l := range listings {
		if i != idx[0] {
			competitors = append(competitors, l)
		}
	}
	return report, subject, competitors, nil
}

// repair keeps a single flagged listing when more than one is flagged: the
// highest persisted score wins, earliest on ties.
func (s *Service) repair(ctx context.Context, listings []model.Listing) ([]model.Listing, []string, error) {
	idx := holders(listings)
	if len(idx) < 2 {
		return listings, nil, nil
	}

	keep := idx[0]
	for _, i := range idx[1:] {
		if listings[i].Score() > listings[keep].Score() {
			keep = i
		}
	}

	var unmarked []string
	for _, i := range idx {
		if i == keep {
			continue
		}
		if err := s.store.UpdateListing(ctx, listings[i].ID, model.ListingPatch{IsSubject: boolPtr(false)}); err != nil {
			return listings, unmarked, eris.Wrapf(err, "subject: repair listing %s", listings[i].ID)
		}
		listings[i].IsSubject = false
		unmarked = append(unmarked, listings[i].ID)
	}

	zap.L().Warn("subject: repaired multiple subject flags",
		zap.String("job_id", batchJobID(listings)),
		zap.String("kept_id", listings[keep].ID),
		zap.Strings("unmarked_ids", unmarked),
	)
	return listings, unmarked, nil
}

func (s *Service) syncListing(ctx context.Context, l model.Listing) (int, error) {
	units, err := s.units.ExtractUnits(ctx, l.URL)
	if err != nil {
		return 0, eris.Wrapf(err, "subject: extract units from %s", l.URL)
	}
	if err := s.store.ReplaceUnits(ctx, l.ID, units); err != nil {
		return 0, eris.Wrapf(err, "subject: store units for %s", l.ID)
	}
	return len(units), nil
}
