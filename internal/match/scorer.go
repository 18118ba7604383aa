// Package match scores scraped listings against a subject property and
// decides which listing, if any, is the subject.
package match

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/rentcomp/internal/model"
)

// Point budget per component.
const (
	StreetNumberPoints = 30
	StreetNamePoints   = 25
	PropertyNamePoints = 20
	FullAddressPoints  = 15
	CityPoints         = 5
	StatePoints        = 5
)

// Defaults for Config.
const (
	DefaultThreshold         = 50
	DefaultGoodFallbackFloor = 40
)

// Rationale markers prefixed to each reason line.
const (
	markStrong  = "✓"
	markPartial = "⚠"
	markNone    = "✗"
)

// Config holds the tunable thresholds shared by scoring and resolution.
type Config struct {
	// Threshold is the minimum score for a confident match.
	Threshold int `yaml:"threshold" mapstructure:"threshold"`
	// GoodFallbackFloor is the minimum score for the good-fallback tier.
	GoodFallbackFloor int `yaml:"good_fallback_floor" mapstructure:"good_fallback_floor"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, GoodFallbackFloor: DefaultGoodFallbackFloor}
}

// Components breaks a score down by factor. MaxPoints is the sum of the
// maximum points of the components that applied.
type Components struct {
	StreetNumber int `json:"street_number"`
	StreetName   int `json:"street_name"`
	PropertyName int `json:"property_name"`
	FullAddress  int `json:"full_address"`
	CityState    int `json:"city_state"`
	Awarded      int `json:"awarded"`
	MaxPoints    int `json:"max_points"`
}

// Result is the outcome of scoring one listing against the subject.
type Result struct {
	ListingID  string     `json:"listing_id"`
	Name       string     `json:"name"`
	Address    string     `json:"address"`
	Score      int        `json:"score"`
	IsMatch    bool       `json:"is_match"`
	Reasons    []string   `json:"reasons"`
	Components Components `json:"components"`
}

// Scorer compares listings with a subject property. It is pure and safe for
// concurrent use.
type Scorer struct {
	cfg Config
}

// NewScorer creates a Scorer. Zero-valued thresholds fall back to defaults.
func NewScorer(cfg Config) *Scorer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.GoodFallbackFloor <= 0 {
		cfg.GoodFallbackFloor = DefaultGoodFallbackFloor
	}
	return &Scorer{cfg: cfg}
}

// Config returns the effective thresholds.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score computes the weighted match score of listing against subject.
func (s *Scorer) Score(subject model.Property, listing model.Listing) Result {
	var (
		c       Components
		reasons []string
	)

	pts, reason := scoreStreetNumber(subject.Address, listing.Address)
	c.StreetNumber = pts
	c.MaxPoints += StreetNumberPoints
	reasons = append(reasons, reason)

	pts, reason = scoreStreetName(subject.Address, listing.Address)
	c.StreetName = pts
	c.MaxPoints += StreetNamePoints
	reasons = append(reasons, reason)

	pts, reason = scorePropertyName(subject.Name, listing.Name)
	c.PropertyName = pts
	c.MaxPoints += PropertyNamePoints
	reasons = append(reasons, reason)

	candidateAddr := NormalizeAddress(listing.Address)

	pts, reason = scoreFullAddress(NormalizeAddress(subject.Address), candidateAddr)
	c.FullAddress = pts
	c.MaxPoints += FullAddressPoints
	reasons = append(reasons, reason)

	if cityMax, ok := cityStateMax(subject); ok {
		pts, reason = scoreCityState(subject, candidateAddr)
		c.CityState = pts
		c.MaxPoints += cityMax
		reasons = append(reasons, reason)
	}

	c.Awarded = c.StreetNumber + c.StreetName + c.PropertyName + c.FullAddress + c.CityState

	score := 0
	if c.MaxPoints > 0 {
		score = int(math.Round(float64(c.Awarded) / float64(c.MaxPoints) * 100))
	}

	return Result{
		ListingID:  listing.ID,
		Name:       listing.Name,
		Address:    listing.Address,
		Score:      score,
		IsMatch:    score >= s.cfg.Threshold,
		Reasons:    reasons,
		Components: c,
	}
}

// ScoreAll scores every listing, preserving input order.
func (s *Scorer) ScoreAll(subject model.Property, listings []model.Listing) []Result {
	results := make([]Result, len(listings))
	for i, l := range listings {
		results[i] = s.Score(subject, l)
	}
	return results
}

func scoreStreetNumber(subjectAddr, candidateAddr string) (int, string) {
	a := ExtractStreetNumber(subjectAddr)
	b := ExtractStreetNumber(candidateAddr)
	switch {
	case a == "" && b == "":
		return 0, fmt.Sprintf("%s Street number: none on either side", markNone)
	case a == "" || b == "":
		return 10, fmt.Sprintf("%s Street number missing: %q vs %q", markPartial, a, b)
	case a == b:
		return StreetNumberPoints, fmt.Sprintf("%s Street number exact match: %s", markStrong, a)
	case strings.HasPrefix(a, b) || strings.HasPrefix(b, a):
		return 15, fmt.Sprintf("%s Street number partial match: %s vs %s", markPartial, a, b)
	default:
		return 0, fmt.Sprintf("%s Street number mismatch: %s vs %s", markNone, a, b)
	}
}

func scoreStreetName(subjectAddr, candidateAddr string) (int, string) {
	a := ExtractStreetName(subjectAddr)
	b := ExtractStreetName(candidateAddr)
	sim := Similarity(a, b)
	switch {
	case sim >= 80:
		return proportional(sim, StreetNamePoints),
			fmt.Sprintf("%s Street name match (%d%%): %q vs %q", markStrong, sim, a, b)
	case sim >= 60:
		return proportional(sim, 20),
			fmt.Sprintf("%s Street name partial match (%d%%): %q vs %q", markPartial, sim, a, b)
	default:
		return 0, fmt.Sprintf("%s Street name mismatch (%d%%): %q vs %q", markNone, sim, a, b)
	}
}

func scorePropertyName(subjectName, candidateName string) (int, string) {
	a := NormalizePropertyName(subjectName)
	b := NormalizePropertyName(candidateName)
	sim := Similarity(a, b)
	containment := wordContainment(a, b)
	substring := a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a))

	switch {
	case sim >= 70:
		return PropertyNamePoints,
			fmt.Sprintf("%s Property name strong match (%d%%): %q vs %q", markStrong, sim, a, b)
	case containment >= 50 || substring:
		return 15,
			fmt.Sprintf("%s Property name contained (%d%% words): %q vs %q", markStrong, containment, a, b)
	case sim >= 50:
		return proportional(sim, PropertyNamePoints),
			fmt.Sprintf("%s Property name partial match (%d%%): %q vs %q", markPartial, sim, a, b)
	case a != "" && coreName(a) == coreName(b):
		return 12,
			fmt.Sprintf("%s Property name core match: %q", markPartial, coreName(a))
	default:
		return 0, fmt.Sprintf("%s Property name mismatch (%d%%): %q vs %q", markNone, sim, a, b)
	}
}

// wordContainment is the share of the shorter name's significant words that
// also appear in the other name, on a 0..100 scale.
func wordContainment(a, b string) int {
	wa, wb := significantWords(a), significantWords(b)
	shorter := min(len(wa), len(wb))
	if shorter == 0 {
		return 0
	}
	inB := make(map[string]bool, len(wb))
	for _, w := range wb {
		inB[w] = true
	}
	common := 0
	for _, w := range wa {
		if inB[w] {
			common++
		}
	}
	return int(math.Round(float64(common) / float64(shorter) * 100))
}

func scoreFullAddress(a, b string) (int, string) {
	sim := Similarity(a, b)
	if sim >= 70 {
		return proportional(sim, FullAddressPoints),
			fmt.Sprintf("%s Full address match (%d%%)", markStrong, sim)
	}
	return 0, fmt.Sprintf("%s Full address mismatch (%d%%): %q vs %q", markNone, sim, a, b)
}

func cityStateMax(subject model.Property) (int, bool) {
	total := 0
	if NormalizeAddress(subject.City) != "" {
		total += CityPoints
	}
	if NormalizeAddress(subject.State) != "" {
		total += StatePoints
	}
	return total, total > 0
}

// scoreCityState awards points for each of the subject's city and state found
// anywhere in the normalized candidate address.
func scoreCityState(subject model.Property, candidateAddr string) (int, string) {
	var (
		pts   int
		found []string
		miss  []string
	)
	if city := NormalizeAddress(subject.City); city != "" {
		if strings.Contains(candidateAddr, city) {
			pts += CityPoints
			found = append(found, city)
		} else {
			miss = append(miss, city)
		}
	}
	if state := NormalizeAddress(subject.State); state != "" {
		if strings.Contains(candidateAddr, state) {
			pts += StatePoints
			found = append(found, state)
		} else {
			miss = append(miss, state)
		}
	}
	switch {
	case len(miss) == 0:
		return pts, fmt.Sprintf("%s City/state match: %s", markStrong, strings.Join(found, ", "))
	case len(found) > 0:
		return pts, fmt.Sprintf("%s City/state partial match: found %s, missing %s",
			markPartial, strings.Join(found, ", "), strings.Join(miss, ", "))
	default:
		return 0, fmt.Sprintf("%s City/state not found: %s", markNone, strings.Join(miss, ", "))
	}
}

func proportional(sim, points int) int {
	return int(math.Round(float64(sim) / 100 * float64(points)))
}
