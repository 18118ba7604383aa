package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/pkg/anthropic"
)

// ErrNoSubject is returned when a job has no listing flagged as the subject.
var ErrNoSubject = eris.New("insights: no subject listing")

// Store is the persistence insights read from.
type Store interface {
	GetJob(ctx context.Context, id string) (*model.ScrapeJob, error)
	GetProperty(ctx context.Context, id string) (*model.Property, error)
	ListListings(ctx context.Context, jobID string) ([]model.Listing, error)
	ListUnits(ctx context.Context, listingID string) ([]model.Unit, error)
}

// Report is the market comparison for one job.
type Report struct {
	JobID       string         `json:"job_id"`
	Property    model.Property `json:"property"`
	Subject     model.Listing  `json:"subject"`
	Competitors int            `json:"competitors"`
	Summary     Summary        `json:"summary"`
	Narrative   string         `json:"narrative,omitempty"`
}

// Service builds reports from stored units.
type Service struct {
	store    Store
	narrator *Narrator
}

// NewService creates a Service. narrator may be nil to skip narratives.
func NewService(st Store, narrator *Narrator) *Service {
	return &Service{store: st, narrator: narrator}
}

// Report summarises the subject's units against every competitor's units.
// When narrate is set and a narrator is configured, a narrative is added; a
// narrative failure is logged and leaves Narrative empty.
func (s *Service) Report(ctx context.Context, jobID string, narrate bool) (*Report, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "insights: get job %s", jobID)
	}
	prop, err := s.store.GetProperty(ctx, job.PropertyID)
	if err != nil {
		return nil, eris.Wrapf(err, "insights: get property %s", job.PropertyID)
	}
	listings, err := s.store.ListListings(ctx, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "insights: list listings for job %s", jobID)
	}

	subjectIdx := -1
	for i, l := range listings {
		if l.IsSubject {
			subjectIdx = i
			break
		}
	}
	if subjectIdx < 0 {
		return nil, eris.Wrapf(ErrNoSubject, "job %s", jobID)
	}

	units := make([][]model.Unit, len(listings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, l := range listings {
		g.Go(func() error {
			u, err := s.store.ListUnits(gctx, l.ID)
			if err != nil {
				return eris.Wrapf(err, "insights: list units for %s", l.ID)
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var market []model.Unit
	for i, u := range units {
		if i != subjectIdx {
			market = append(market, u...)
		}
	}

	r := &Report{
		JobID:       jobID,
		Property:    *prop,
		Subject:     listings[subjectIdx],
		Competitors: len(listings) - 1,
		Summary:     Summarize(units[subjectIdx], market),
	}

	if narrate && s.narrator != nil {
		text, err := s.narrator.Narrate(ctx, *prop, r.Summary)
		if err != nil {
			zap.L().Warn("insights: narrative failed", zap.String("job_id", jobID), zap.Error(err))
		} else {
			r.Narrative = text
		}
	}
	return r, nil
}

const narrativeSystem = "You are a multifamily rental market analyst. Write a short, plain-language " +
	"assessment (at most 150 words) of how a property's rents and availability compare with " +
	"nearby competitors. Use only the numbers provided. Do not invent data."

// Narrator writes a short market narrative with Claude.
type Narrator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewNarrator creates a Narrator.
func NewNarrator(client anthropic.Client, model string, maxTokens int64) *Narrator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Narrator{client: client, model: model, maxTokens: maxTokens}
}

// Narrate describes the summary for the given property.
func (n *Narrator) Narrate(ctx context.Context, p model.Property, s Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "insights: marshal summary")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Property: %s\nAddress: %s\n\n", p.Name, p.Address)
	b.WriteString("Market comparison (rents in USD per month, availability as a fraction of units, ")
	b.WriteString("delta_pct is the subject average relative to the market average):\n")
	b.Write(data)

	temp := 0.2
	resp, err := n.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       n.model,
		MaxTokens:   n.maxTokens,
		System:      narrativeSystem,
		Messages:    []anthropic.Message{{Role: "user", Content: b.String()}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "insights: narrate")
	}
	resp.Usage.LogCost(n.model, "market_narrative")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("insights: empty narrative")
	}
	return text, nil
}
