package subject

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rentcomp/internal/model"
)

// Override makes listingID the job's subject, bypassing scoring. Any other
// flagged listing in the batch is unmarked first. Calling it again with the
// same listing is a no-op.
func (s *Service) Override(ctx context.Context, jobID, listingID string) error {
	defer s.locks.lock(jobID)()

	listings, err := s.store.ListListings(ctx, jobID)
	if err != nil {
		return eris.Wrapf(err, "subject: list listings for job %s", jobID)
	}
	if len(listings) == 0 {
		return eris.Wrapf(ErrEmptyBatch, "job %s", jobID)
	}

	target := -1
	for i, l := range listings {
		if l.ID == listingID {
			target = i
			break
		}
	}
	if target < 0 {
		return eris.Wrapf(ErrListingNotInBatch, "listing %s in job %s", listingID, jobID)
	}

	log := zap.L().With(zap.String("job_id", jobID), zap.String("listing_id", listingID))

	var previous []string
	for i, l := range listings {
		if i == target || !l.IsSubject {
			continue
		}
		if err := s.store.UpdateListing(ctx, l.ID, model.ListingPatch{IsSubject: boolPtr(false)}); err != nil {
			log.Error("subject: unmark previous subject failed", zap.String("previous_id", l.ID), zap.Error(err))
			return eris.Wrapf(err, "subject: unmark listing %s", l.ID)
		}
		previous = append(previous, l.ID)
	}

	if !listings[target].IsSubject {
		if err := s.store.UpdateListing(ctx, listingID, model.ListingPatch{IsSubject: boolPtr(true)}); err != nil {
			log.Error("subject: mark override failed", zap.Error(err))
			return eris.Wrapf(err, "subject: mark listing %s", listingID)
		}
	}

	log.Info("subject: manual override",
		zap.Strings("previous_ids", previous),
		zap.String("listing_name", listings[target].Name),
	)
	return nil
}
