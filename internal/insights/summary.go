// Package insights compares a subject property's units with its competitors
// and optionally narrates the comparison.
package insights

import (
	"math"
	"sort"

	"github.com/sells-group/rentcomp/internal/model"
)

// Rent positions relative to the market.
const (
	PositionBelow   = "below_market"
	PositionAt      = "at_market"
	PositionAbove   = "above_market"
	PositionUnknown = "unknown"
)

// atMarketBand is the percentage band around the market average that counts
// as at market.
const atMarketBand = 5.0

// RentStats summarises the rents of a group of units.
type RentStats struct {
	Units   int     `json:"units"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// BedroomComparison compares subject and market rents for one bedroom count.
type BedroomComparison struct {
	Bedrooms int        `json:"bedrooms"`
	Subject  *RentStats `json:"subject,omitempty"`
	Market   *RentStats `json:"market,omitempty"`
	// DeltaPct is the subject average relative to the market average, set
	// only when both sides have units.
	DeltaPct *float64 `json:"delta_pct,omitempty"`
	Position string   `json:"position"`
}

// Summary is the market comparison for a subject property.
type Summary struct {
	SubjectUnits        int                 `json:"subject_units"`
	MarketUnits         int                 `json:"market_units"`
	SubjectAvailability float64             `json:"subject_availability"`
	MarketAvailability  float64             `json:"market_availability"`
	Bedrooms            []BedroomComparison `json:"bedrooms"`
	// DeltaPct is the per-bedroom delta weighted by subject unit count.
	DeltaPct float64 `json:"delta_pct"`
	Position string  `json:"position"`
}

// Summarize compares subject units with market (competitor) units. Units
// without a rent count toward availability but not toward rent statistics.
func Summarize(subject, market []model.Unit) Summary {
	s := Summary{
		SubjectUnits:        len(subject),
		MarketUnits:         len(market),
		SubjectAvailability: availability(subject),
		MarketAvailability:  availability(market),
		Position:            PositionUnknown,
	}

	subjectRents := rentsByBedroom(subject)
	marketRents := rentsByBedroom(market)

	beds := make([]int, 0, len(subjectRents)+len(marketRents))
	for b := range subjectRents {
		beds = append(beds, b)
	}
	for b := range marketRents {
		if _, ok := subjectRents[b]; !ok {
			beds = append(beds, b)
		}
	}
	sort.Ints(beds)

	var weighted float64
	var weight int
	for _, b := range beds {
		c := BedroomComparison{
			Bedrooms: b,
			Subject:  stats(subjectRents[b]),
			Market:   stats(marketRents[b]),
			Position: PositionUnknown,
		}
		if c.Subject != nil && c.Market != nil && c.Market.Average > 0 {
			d := round1((c.Subject.Average - c.Market.Average) / c.Market.Average * 100)
			c.DeltaPct = &d
			c.Position = position(d)
			weighted += d * float64(c.Subject.Units)
			weight += c.Subject.Units
		}
		s.Bedrooms = append(s.Bedrooms, c)
	}

	if weight > 0 {
		s.DeltaPct = round1(weighted / float64(weight))
		s.Position = position(s.DeltaPct)
	}
	return s
}

func rentsByBedroom(units []model.Unit) map[int][]float64 {
	out := make(map[int][]float64)
	for _, u := range units {
		if u.Rent > 0 {
			out[u.Bedrooms] = append(out[u.Bedrooms], u.Rent)
		}
	}
	return out
}

func stats(rents []float64) *RentStats {
	if len(rents) == 0 {
		return nil
	}
	st := &RentStats{Units: len(rents), Min: rents[0], Max: rents[0]}
	var sum float64
	for _, r := range rents {
		sum += r
		st.Min = math.Min(st.Min, r)
		st.Max = math.Max(st.Max, r)
	}
	st.Average = math.Round(sum/float64(len(rents))*100) / 100
	return st
}

func availability(units []model.Unit) float64 {
	if len(units) == 0 {
		return 0
	}
	n := 0
	for _, u := range units {
		if u.Available() {
			n++
		}
	}
	return math.Round(float64(n)/float64(len(units))*1000) / 1000
}

func position(deltaPct float64) string {
	switch {
	case deltaPct < -atMarketBand:
		return PositionBelow
	case deltaPct > atMarketBand:
		return PositionAbove
	default:
		return PositionAt
	}
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
