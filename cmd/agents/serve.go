package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/needze/agentflow/graph/tool"
	"github.com/needze/agentflow/internal/config"
	"github.com/needze/agentflow/internal/llm"
	"github.com/needze/agentflow/internal/management"
	"github.com/needze/agentflow/internal/music"
	"github.com/needze/agentflow/internal/news"
	"github.com/needze/agentflow/internal/server"
	"github.com/needze/agentflow/internal/verify"
)

// newVerifier uses Perplexity as the primary model and OpenAI as the
// fallback, each only when its key is set.
func (a *app) newVerifier(ctx context.Context) (*verify.Verifier, error) {
	v := &verify.Verifier{Logger: a.logger.Named("verify")}
	opts := llm.Options{Temperature: ptr(verify.Temperature), MaxTokens: verify.MaxTokens}

	if a.cfg.Providers.Perplexity.APIKey != "" {
		m, err := a.models.New(ctx, "perplexity", opts)
		if err != nil {
			return nil, err
		}
		v.Primary = m
	}
	if a.cfg.Providers.OpenAI.APIKey != "" {
		m, err := a.models.New(ctx, "openai", opts)
		if err != nil {
			return nil, err
		}
		v.Fallback = m
	}
	return v, nil
}

// toolRegistry collects every tool the server exposes.
func (a *app) toolRegistry(ctx context.Context) (*tool.Registry, error) {
	v, err := a.newVerifier(ctx)
	if err != nil {
		return nil, err
	}
	if !v.Configured() {
		a.logger.Warn("no verification model configured; verify_content uses the keyword heuristic")
	}

	tools := []tool.Tool{
		news.NewClient(news.Options{
			APIKey: a.cfg.Search.NewsAPIKey,
			URL:    a.cfg.Search.NewsURL,
			Logger: a.logger.Named("news"),
		}).Tool(),
		music.NewWeatherService(music.WeatherOptions{
			ServiceKey: a.cfg.Workflows.Music.WeatherAPIKey,
			URL:        a.cfg.Workflows.Music.WeatherURL,
			Logger:     a.logger.Named("weather"),
		}).Tool(),
	}
	tools = append(tools, v.Tools()...)
	if hosts := a.cfg.Server.HTTPToolHosts; len(hosts) > 0 {
		tools = append(tools, tool.NewHTTPTool(tool.WithAllowedHosts(hosts...)))
	}
	return tool.NewRegistry(tools...)
}

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools and the management workflow over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if err := a.cfg.Validate(config.WorkflowServer); err != nil {
				return err
			}
			ctx := cmd.Context()

			registry, err := a.toolRegistry(ctx)
			if err != nil {
				return err
			}

			opts := server.Options{
				Addr:       a.cfg.Server.Addr,
				Tools:      registry,
				MaxRetries: a.cfg.Workflows.Management.MaxRetries,
				Gatherer:   a.registry,
				Logger:     a.logger.Named("server"),
			}
			if a.telemetry.Enabled() {
				opts.ServiceName = a.cfg.Telemetry.ServiceName
			}

			if err := a.cfg.Validate(config.WorkflowManagement); err != nil {
				a.logger.Warn("management workflow disabled", zap.Error(err))
			} else {
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
				opts.Management = wf
			}

			srv, err := server.New(opts)
			if err != nil {
				return err
			}
			a.logger.Info("serving", zap.String("addr", opts.Addr), zap.Strings("tools", registry.Names()))
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config)")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		contentType string
		category    string
		audience    string
		brand       string
	)

	cmd := &cobra.Command{
		Use:   "check <text>",
		Short: "Review a post against platform policy and brand guidelines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, ok := verify.ParseContentType(contentType)
			if !ok {
				return fmt.Errorf("unknown content type %q", contentType)
			}
			ctx := cmd.Context()
			text := strings.Join(args, " ")

			v, err := a.newVerifier(ctx)
			if err != nil {
				return err
			}

			checker := &verify.ContentChecker{Verifier: v}
			res, err := checker.Check(ctx, verify.CheckRequest{
				Text:            text,
				Type:            ct,
				Category:        verify.ParseCategory(category),
				TargetAudience:  audience,
				BrandGuidelines: brand,
			})
			if errors.Is(err, verify.ErrNotConfigured) {
				a.logger.Warn("no verification model configured; grading by keyword")
				verdict := verify.FallbackAnalysis(text, string(ct))
				return a.print(cmd.OutOrStdout(), verdict, func(w io.Writer) {
					printReview(w, verdict.IsApproved, verdict.Score, verdict.RiskLevel, verdict.Reasons, verdict.Warnings, verdict.Suggestions)
				})
			}
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), res, func(w io.Writer) {
				printReview(w, res.IsApproved, res.Score, res.RiskLevel, res.Reasons, res.Warnings, res.Suggestions)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "text", "image, video, text, story or reel")
	cmd.Flags().StringVar(&category, "category", "other", "entertainment, news, lifestyle, technology, education or other")
	cmd.Flags().StringVar(&audience, "audience", "", "target audience")
	cmd.Flags().StringVar(&brand, "brand", "", "brand guidelines")
	return cmd
}

func printReview(w io.Writer, approved bool, score float64, risk string, reasons, warnings, suggestions []string) {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	fmt.Fprintf(w, "%s (score %.2f, risk %s)\n", verdict, score, risk)
	for _, group := range []struct {
		label string
		items []string
	}{{"reason", reasons}, {"warning", warnings}, {"suggestion", suggestions}} {
		for _, item := range group.items {
			fmt.Fprintf(w, "  %s: %s\n", group.label, item)
		}
	}
}
