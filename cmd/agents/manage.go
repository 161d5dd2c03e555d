package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/store"
	"github.com/needze/agentflow/internal/config"
	"github.com/needze/agentflow/internal/llm"
	"github.com/needze/agentflow/internal/management"
	"github.com/needze/agentflow/internal/search"
)

func newManageCmd(a *app) *cobra.Command {
	var retries int

	cmd := &cobra.Command{
		Use:   "manage <query>",
		Short: "Search for reputational issues and build a management report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.WorkflowManagement); err != nil {
				return err
			}
			ctx := cmd.Context()

			st, closeStore, err := openStore[management.State](a)
			if err != nil {
				return err
			}
			defer closeStore()

			wf, closeWF, err := a.newManagement(ctx, st)
			if err != nil {
				return err
			}
			defer closeWF()

			if !cmd.Flags().Changed("retries") {
				retries = a.cfg.Workflows.Management.MaxRetries
			}
			final, err := wf.SafeRun(ctx, strings.Join(args, " "), retries)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), final, func(w io.Writer) { printManagement(w, final) })
		},
	}
	cmd.Flags().IntVar(&retries, "retries", 2, "additional attempts when a run fails")
	return cmd
}

// newManagement wires the management workflow from configuration. The
// returned function releases the search cache.
func (a *app) newManagement(ctx context.Context, st store.Store[management.State]) (*management.Workflow, func(), error) {
	mc := a.cfg.Workflows.Management

	var cache search.Cache = search.NewMemoryCache(a.cfg.Search.CacheTTL)
	closeCache := func() {}
	if a.cfg.Search.RedisURL != "" {
		rc, err := search.NewRedisCache(ctx, a.cfg.Search.RedisURL, a.cfg.Search.CacheTTL, a.logger)
		if err != nil {
			return nil, nil, err
		}
		cache = rc
		closeCache = func() {
			if err := rc.Close(); err != nil {
				a.logger.Warn("close redis cache", zap.Error(err))
			}
		}
	}

	searcher := search.NewClient(search.Options{
		APIKey:     a.cfg.Search.TavilyAPIKey,
		URL:        a.cfg.Search.TavilyURL,
		MaxResults: a.cfg.Search.MaxResults,
		Cache:      cache,
		Logger:     a.logger.Named("search"),
	})

	keywordModel, err := a.models.New(ctx, mc.Provider, llm.Options{
		Temperature: ptr(0.3),
		JSONMode:    true,
		Schema:      management.KeywordSchema(),
		SchemaName:  "keyword_extraction",
	})
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	analysisModel, err := a.models.New(ctx, mc.Provider, llm.Options{
		Temperature: ptr(0.1),
		JSONMode:    true,
		Schema:      management.AnalysisSchema(),
		SchemaName:  "issue_analysis",
	})
	if err != nil {
		closeCache()
		return nil, nil, err
	}

	logger := a.logger.Named("management")
	wf, err := management.New(management.Options{
		Searcher:      searcher,
		Keywords:      &management.KeywordExtractor{Model: keywordModel, Logger: logger},
		Analyzer:      &management.IssueAnalyzer{Model: analysisModel, Logger: logger},
		Store:         st,
		Emitter:       a.emitter(),
		Logger:        logger,
		Metrics:       a.metrics,
		Costs:         a.costs,
		MaxSteps:      mc.MaxSteps,
		ParallelLimit: mc.ParallelLimit,
	})
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return wf, closeCache, nil
}

func printManagement(w io.Writer, s management.State) {
	sum := management.Summary(s)
	fmt.Fprintf(w, "run:          %s\n", s.RunID)
	fmt.Fprintf(w, "query:        %s\n", sum.Query)
	fmt.Fprintf(w, "alert level:  %s\n", sum.AlertLevel)
	fmt.Fprintf(w, "success rate: %.1f%%\n", management.SuccessRate(s))
	fmt.Fprintf(w, "results:      %d initial, %d detailed\n", sum.InitialResultsCount, sum.DetailedResultsCount)
	fmt.Fprintf(w, "issues:       %d of %d analyzed\n", sum.RealIssuesCount, sum.AnalyzedIssuesCount)

	if r := s.FinalReport; r != nil {
		fmt.Fprintf(w, "\nrisk: %s (%s)\n", r.ExecutiveSummary.RiskLevel, r.ExecutiveSummary.RiskAssessment)
		for _, d := range r.IssueAnalysis.IssueDetails {
			fmt.Fprintf(w, "  [%d] %s: %s\n", d.Severity, d.Category, d.Title)
		}
		if len(r.KeywordTrends.ExtractedKeywords) > 0 {
			fmt.Fprintf(w, "keywords: %s\n", strings.Join(r.KeywordTrends.ExtractedKeywords, ", "))
		}
		for _, act := range r.Recommendations.ImmediateActions {
			fmt.Fprintf(w, "  - %s\n", act)
		}
	}
	for _, msg := range s.ErrorMessages {
		fmt.Fprintf(w, "error: %s\n", msg)
	}
}
