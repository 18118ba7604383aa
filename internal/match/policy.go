package match

// Tier names the rung of the resolution cascade that chose the subject.
type Tier string

const (
	TierConfident         Tier = "confident"
	TierGoodFallback      Tier = "good-fallback"
	TierForcedFallback    Tier = "forced-fallback"
	TierEmergencyFallback Tier = "emergency-fallback"
	TierNone              Tier = "none"
)

// Fallback reports whether the tier was reached without a confident match.
func (t Tier) Fallback() bool {
	switch t {
	case TierGoodFallback, TierForcedFallback, TierEmergencyFallback:
		return true
	default:
		return false
	}
}

// Decision is the outcome of running the cascade over a scored batch.
type Decision struct {
	// Index into the scored batch of the chosen listing, -1 when none.
	Index int
	Tier  Tier
	// BestIndex is the earliest listing holding the maximum score.
	BestIndex int
	BestScore int
	// Tied lists every index sharing BestScore when more than one does.
	Tied []int
}

// Decide runs the full cascade: the first listing at or above the threshold
// wins; otherwise the best score picks the fallback tier. Ties go to the
// earliest listing. An empty batch yields TierNone.
func (s *Scorer) Decide(results []Result) Decision {
	d := scan(results)
	if len(results) == 0 {
		return d
	}
	for i, r := range results {
		if r.Score >= s.cfg.Threshold {
			d.Index, d.Tier = i, TierConfident
			return d
		}
	}
	return s.fallback(d)
}

// DecideFallback runs only the fallback rungs. It is used to repair a batch
// whose confident rung already ran without leaving a subject, so the best
// listing is taken even when it clears the threshold.
func (s *Scorer) DecideFallback(results []Result) Decision {
	d := scan(results)
	if len(results) == 0 {
		return d
	}
	return s.fallback(d)
}

func (s *Scorer) fallback(d Decision) Decision {
	switch {
	case d.BestScore >= s.cfg.GoodFallbackFloor:
		d.Index, d.Tier = d.BestIndex, TierGoodFallback
	case d.BestScore > 0:
		d.Index, d.Tier = d.BestIndex, TierForcedFallback
	default:
		d.Index, d.Tier = 0, TierEmergencyFallback
	}
	return d
}

func scan(results []Result) Decision {
	d := Decision{Index: -1, Tier: TierNone, BestIndex: -1}
	for i, r := range results {
		if d.BestIndex < 0 || r.Score > d.BestScore {
			d.BestIndex, d.BestScore = i, r.Score
		}
	}
	if d.BestIndex < 0 {
		return d
	}
	var tied []int
	for i, r := range results {
		if r.Score == d.BestScore {
			tied = append(tied, i)
		}
	}
	if len(tied) > 1 {
		d.Tied = tied
	}
	return d
}

// Recommendation is operator guidance derived from a batch's scores.
type Recommendation struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// Recommendation actions.
const (
	ActionAutoLink   = "auto_link"
	ActionForceLink  = "force_link"
	ActionRescrape   = "rescrape"
	ActionRediscover = "rediscover"
)

// Recommend derives guidance from the best score in a batch and, when a
// subject is already marked, its own score.
func (s *Scorer) Recommend(best *Result, current *Result) Recommendation {
	var rec Recommendation
	switch {
	case best == nil:
		rec = Recommendation{
			Action:  ActionRediscover,
			Message: "no candidate listings found: re-run discovery or link the property manually",
		}
	case best.Score >= s.cfg.Threshold:
		rec = Recommendation{
			Action:  ActionAutoLink,
			Message: "best candidate clears the match threshold: auto-link is safe",
		}
	case best.Score >= s.cfg.GoodFallbackFloor:
		rec = Recommendation{
			Action:  ActionForceLink,
			Message: "best candidate is a moderate match: manual force-link recommended",
		}
	default:
		rec = Recommendation{
			Action:  ActionRescrape,
			Message: "no candidate is a plausible match: re-scrape with a better address",
		}
	}
	if current != nil && current.Score < s.cfg.Threshold {
		rec.Warning = "current subject property is a low-confidence match: verify it manually"
	}
	return rec
}
