package main

import (
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rentcomp/internal/match"
	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/internal/store"
	"github.com/sells-group/rentcomp/internal/subject"
)

var (
	matchJob         string
	matchListing     string
	matchCompetitors bool
	matchFile        string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Inspect and correct subject-listing matches",
}

var matchInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show every listing's score and the recommended action for a job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := env.Subjects.Inspect(ctx, matchJob)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), in)
	},
}

var matchResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Re-run subject resolution for a job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Subjects.ResolveJob(ctx, matchJob)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var matchOverrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Mark a listing as the job's subject",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Subjects.Override(ctx, matchJob, matchListing); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"status":     "ok",
			"job_id":     matchJob,
			"listing_id": matchListing,
		})
	},
}

var matchSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync unit pricing for a job's subject listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Subjects.SyncUnits(ctx, matchJob, matchCompetitors)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var matchScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a batch described in a YAML file without touching the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		batch, err := loadScoreFile(matchFile)
		if err != nil {
			return err
		}
		scorer := match.NewScorer(match.Config{
			Threshold:         cfg.Match.Threshold,
			GoodFallbackFloor: cfg.Match.GoodFallbackFloor,
		})
		return printJSON(cmd.OutOrStdout(), scoreBatch(scorer, batch))
	},
}

// scoreFile is the YAML input of `match score`.
type scoreFile struct {
	Subject struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
		City    string `yaml:"city"`
		State   string `yaml:"state"`
	} `yaml:"subject"`
	Listings []struct {
		Name      string `yaml:"name"`
		Address   string `yaml:"address"`
		URL       string `yaml:"url"`
		IsSubject bool   `yaml:"is_subject"`
	} `yaml:"listings"`
}

type scoreBatchInput struct {
	Subject  model.Property
	Listings []model.Listing
}

func loadScoreFile(path string) (*scoreBatchInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var f scoreFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if f.Subject.Name == "" && f.Subject.Address == "" {
		return nil, eris.Errorf("%s: subject name or address is required", path)
	}

	in := &scoreBatchInput{Subject: model.Property{
		ID:      "subject",
		Name:    f.Subject.Name,
		Address: f.Subject.Address,
		City:    f.Subject.City,
		State:   f.Subject.State,
	}}
	for i, l := range f.Listings {
		in.Listings = append(in.Listings, model.Listing{
			ID:        strconv.Itoa(i + 1),
			Position:  i,
			Name:      l.Name,
			Address:   l.Address,
			URL:       l.URL,
			IsSubject: l.IsSubject,
		})
	}
	return in, nil
}

// scoreBatch inspects the batch the same way GET /jobs/{id}/matches does.
func scoreBatch(scorer *match.Scorer, in *scoreBatchInput) *subject.Inspection {
	return subject.NewService(store.NewMemory(), scorer).InspectBatch(in.Subject, in.Listings)
}

func init() {
	for _, c := range []*cobra.Command{matchInspectCmd, matchResolveCmd, matchOverrideCmd, matchSyncCmd} {
		c.Flags().StringVar(&matchJob, "job", "", "scrape job ID (required)")
		_ = c.MarkFlagRequired("job")
	}
	matchOverrideCmd.Flags().StringVar(&matchListing, "listing", "", "listing ID to mark as the subject (required)")
	_ = matchOverrideCmd.MarkFlagRequired("listing")
	matchSyncCmd.Flags().BoolVar(&matchCompetitors, "competitors", false, "also sync competitor units")
	matchScoreCmd.Flags().StringVar(&matchFile, "file", "", "YAML batch file (required)")
	_ = matchScoreCmd.MarkFlagRequired("file")

	matchCmd.AddCommand(matchInspectCmd, matchResolveCmd, matchOverrideCmd, matchSyncCmd, matchScoreCmd)
	rootCmd.AddCommand(matchCmd)
}
