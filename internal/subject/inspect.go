package subject

import (
	"context"
	"sort"

	"github.com/sells-group/rentcomp/internal/match"
	"github.com/sells-group/rentcomp/internal/model"
)

// Inspection is a read-only view of how a batch scores against its subject.
type Inspection struct {
	JobID          string               `json:"job_id"`
	Subject        model.Property       `json:"subject"`
	Ranked         []match.Result       `json:"ranked"`
	Current        *match.Result        `json:"current,omitempty"`
	Recommendation match.Recommendation `json:"recommendation"`
	// Tier and ChosenID are what a resolution of the batch would pick now.
	Tier     match.Tier `json:"tier"`
	ChosenID string     `json:"chosen_id,omitempty"`
}

// InspectBatch scores candidates against subject without persisting anything.
// Ranked is ordered by score descending; equal scores keep batch order.
func (s *Service) InspectBatch(subject model.Property, candidates []model.Listing) *Inspection {
	scores := s.scorer.ScoreAll(subject, candidates)

	var current *match.Result
	for i, l := range candidates {
		if l.IsSubject {
			r := scores[i]
			current = &r
			break
		}
	}

	ranked := make([]match.Result, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	var best *match.Result
	if len(ranked) > 0 {
		best = &ranked[0]
	}
	d := s.scorer.Decide(scores)
	in := &Inspection{
		JobID:          batchJobID(candidates),
		Subject:        subject,
		Ranked:         ranked,
		Current:        current,
		Recommendation: s.scorer.Recommend(best, current),
		Tier:           d.Tier,
	}
	if d.Index >= 0 {
		in.ChosenID = candidates[d.Index].ID
	}
	return in
}

// Inspect loads a job and inspects its batch.
func (s *Service) Inspect(ctx context.Context, jobID string) (*Inspection, error) {
	prop, listings, err := s.loadBatch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	in := s.InspectBatch(*prop, listings)
	in.JobID = jobID
	return in, nil
}
