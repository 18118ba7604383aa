package subject

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rentcomp/internal/match"
	"github.com/sells-group/rentcomp/internal/model"
)

// Suggestions surfaced when a job has no listings to resolve.
var emptyBatchSuggestions = []string{
	"re-run discovery for this property",
	"link the subject listing manually",
	"inspect match scores once listings exist",
}

// Resolution is the outcome of resolving one batch.
type Resolution struct {
	JobID    string         `json:"job_id"`
	ChosenID string         `json:"chosen_id,omitempty"`
	Tier     match.Tier     `json:"tier"`
	Scores   []match.Result `json:"scores"`
	// Tied holds the listing IDs sharing the best score when there is a tie.
	Tied        []string `json:"tied,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Resolve scores every candidate against subject, picks exactly one as the
// subject via the tier cascade, and persists match scores on all candidates
// and the subject flag on the chosen one. An empty batch returns TierNone
// without touching the store.
//
// When persisting fails the scores are still returned, ChosenID is empty,
// and the error is non-nil; callers must not assume a subject is set.
func (s *Service) Resolve(ctx context.Context, subject model.Property, candidates []model.Listing) (*Resolution, error) {
	if jobID := batchJobID(candidates); jobID != "" {
		defer s.locks.lock(jobID)()
	}
	return s.resolve(ctx, subject, candidates, s.scorer.Decide)
}

// ResolveJob loads the job's property and listings and resolves them.
func (s *Service) ResolveJob(ctx context.Context, jobID string) (*Resolution, error) {
	defer s.locks.lock(jobID)()

	prop, listings, err := s.loadBatch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res, err := s.resolve(ctx, *prop, listings, s.scorer.Decide)
	if res != nil {
		res.JobID = jobID
	}
	return res, err
}

func (s *Service) resolve(
	ctx context.Context,
	subject model.Property,
	candidates []model.Listing,
	decide func([]match.Result) match.Decision,
) (*Resolution, error) {
	jobID := batchJobID(candidates)
	log := zap.L().With(zap.String("job_id", jobID), zap.String("property_id", subject.ID))

	scores := s.scorer.ScoreAll(subject, candidates)
	d := decide(scores)

	res := &Resolution{JobID: jobID, Tier: d.Tier, Scores: scores}
	if d.Index < 0 {
		res.Suggestions = emptyBatchSuggestions
		log.Info("subject: no candidates to resolve")
		return res, nil
	}

	// A confident pick may precede the tied maximum; only report ties that
	// decided the choice.
	if slices.Contains(d.Tied, d.Index) {
		for _, i := range d.Tied {
			res.Tied = append(res.Tied, candidates[i].ID)
		}
		log.Warn("subject: tie among best scores, earliest listing wins",
			zap.Int("score", d.BestScore),
			zap.Strings("listing_ids", res.Tied),
		)
	}

	chosen := candidates[d.Index]
	if err := s.persist(ctx, candidates, scores, d.Index); err != nil {
		log.Error("subject: persist resolution failed",
			zap.String("listing_id", chosen.ID),
			zap.String("tier", string(d.Tier)),
			zap.Error(err),
		)
		return res, eris.Wrapf(err, "subject: resolve job %s", jobID)
	}
	res.ChosenID = chosen.ID

	fields := []zap.Field{
		zap.String("tier", string(d.Tier)),
		zap.String("listing_id", chosen.ID),
		zap.String("listing_name", chosen.Name),
		zap.Int("score", scores[d.Index].Score),
		zap.Int("candidates", len(candidates)),
	}
	switch d.Tier {
	case match.TierForcedFallback, match.TierEmergencyFallback:
		log.Warn("subject: low-confidence subject chosen", fields...)
	default:
		log.Info("subject: resolved", fields...)
	}
	return res, nil
}

// persist writes every score and moves the subject flag to candidates[chosen].
// Other holders are cleared before the chosen listing is marked so at most
// one listing is ever flagged.
func (s *Service) persist(ctx context.Context, candidates []model.Listing, scores []match.Result, chosen int) error {
	for i, l := range candidates {
		if i == chosen {
			continue
		}
		patch := model.ListingPatch{
			MatchScore: intPtr(scores[i].Score),
			IsSubject:  boolPtr(false),
		}
		if err := s.store.UpdateListing(ctx, l.ID, patch); err != nil {
			return eris.Wrapf(err, "subject: update listing %s", l.ID)
		}
	}
	target := candidates[chosen]
	patch := model.ListingPatch{
		MatchScore: intPtr(scores[chosen].Score),
		IsSubject:  boolPtr(true),
	}
	if err := s.store.UpdateListing(ctx, target.ID, patch); err != nil {
		return eris.Wrapf(err, "subject: mark listing %s", target.ID)
	}
	return nil
}
