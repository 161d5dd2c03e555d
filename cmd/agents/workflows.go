package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/needze/agentflow/internal/comments"
	"github.com/needze/agentflow/internal/config"
	"github.com/needze/agentflow/internal/image"
	"github.com/needze/agentflow/internal/llm"
	"github.com/needze/agentflow/internal/music"
	"github.com/needze/agentflow/internal/persona"
	"github.com/needze/agentflow/internal/textflow"
)

func newTextCmd(a *app) *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "text <topic>",
		Short: "Write an Instagram caption in the persona's voice and check it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.WorkflowText); err != nil {
				return err
			}
			ctx := cmd.Context()
			tc := a.cfg.Workflows.Text

			writer, err := a.models.New(ctx, tc.Provider, llm.Options{})
			if err != nil {
				return err
			}
			safety, err := a.models.New(ctx, "groq", llm.Options{Model: tc.SafetyModel, Temperature: ptr(0.0)})
			if err != nil {
				return err
			}
			judge, err := a.models.New(ctx, tc.Provider, llm.Options{Temperature: ptr(0.0)})
			if err != nil {
				return err
			}

			st, closeStore, err := openStore[textflow.State](a)
			if err != nil {
				return err
			}
			defer closeStore()

			logger := a.logger.Named("text")
			wf, err := textflow.New(textflow.Options{
				Writer:  writer,
				Checker: &textflow.Checker{Safety: safety, Judge: judge, Logger: logger},
				Store:   st,
				Emitter: a.emitter(),
				Logger:  logger,
				Metrics: a.metrics,
				Costs:   a.costs,
			})
			if err != nil {
				return err
			}

			final, err := wf.Run(ctx, strings.Join(args, " "), contentType)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), final, func(w io.Writer) {
				fmt.Fprintf(w, "run: %s\n\n%s\n", final.RunID, final.InstagramText)
				if c := final.CheckResult; c != nil {
					fmt.Fprintf(w, "\n%s\n", c.Message)
					for _, r := range c.Reason {
						fmt.Fprintf(w, "  failed: %s\n", r)
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "daily", "kind of post, e.g. daily, promotion, music")
	return cmd
}

func newMusicCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "music <query>",
		Short: "Write lyrics that reflect the current weather",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(config.WorkflowMusic); err != nil {
				return err
			}
			ctx := cmd.Context()
			mc := a.cfg.Workflows.Music

			writer, err := a.models.New(ctx, mc.Provider, llm.Options{Temperature: ptr(0.8)})
			if err != nil {
				return err
			}

			opts := music.Options{
				Writer:  writer,
				NX:      mc.NX,
				NY:      mc.NY,
				Emitter: a.emitter(),
				Logger:  a.logger.Named("music"),
				Metrics: a.metrics,
				Costs:   a.costs,
			}
			if mc.WeatherAPIKey != "" {
				opts.Weather = music.NewWeatherService(music.WeatherOptions{
					ServiceKey: mc.WeatherAPIKey,
					URL:        mc.WeatherURL,
					Logger:     a.logger.Named("weather"),
				})
			} else {
				a.logger.Warn("WEATHER_API_KEY not set; writing lyrics without weather")
			}

			st, closeStore, err := openStore[music.State](a)
			if err != nil {
				return err
			}
			defer closeStore()
			opts.Store = st

			wf, err := music.New(opts)
			if err != nil {
				return err
			}
			final, err := wf.Run(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), final, func(w io.Writer) {
				fmt.Fprintf(w, "run: %s\n", final.RunID)
				if final.WeatherInfo != "" {
					fmt.Fprintf(w, "%s\n", final.WeatherInfo)
				}
				fmt.Fprintf(w, "\n%s\n", final.Lyrics)
			})
		},
	}
	return cmd
}

func newImageCmd(a *app) *cobra.Command {
	var (
		fixedImage  string
		personaText string
	)

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Generate the persona's face, or re-render a fixed face with ComfyUI",
		Long: `Without --fixed-image a new face is drawn by the image model and
stored. With --fixed-image the stored reference face is re-rendered by the
ComfyUI face workflow.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(config.WorkflowImage); err != nil {
				return err
			}
			ctx := cmd.Context()
			ic := a.cfg.Workflows.Image

			imageModel, err := a.models.New(ctx, "google", llm.Options{Model: ic.ImageModel})
			if err != nil {
				return err
			}
			prompter, err := a.models.New(ctx, ic.Provider, llm.Options{JSONMode: true})
			if err != nil {
				return err
			}

			images, err := image.NewStore(ic.Storage)
			if err != nil {
				return err
			}
			if ms, ok := images.(*image.MinioStore); ok {
				if err := ms.EnsureBucket(ctx); err != nil {
					return err
				}
			}

			st, closeStore, err := openStore[image.State](a)
			if err != nil {
				return err
			}
			defer closeStore()

			wf, err := image.New(image.Options{
				ImageModel: imageModel,
				Prompter:   prompter,
				Images:     images,
				ComfyUI:    &image.ComfyUI{URL: ic.ComfyUIURL},
				Store:      st,
				Emitter:    a.emitter(),
				Logger:     a.logger.Named("image"),
				Metrics:    a.metrics,
				Costs:      a.costs,
			})
			if err != nil {
				return err
			}

			final, err := wf.Run(ctx, personaText, fixedImage != "", fixedImage)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), final, func(w io.Writer) {
				fmt.Fprintf(w, "run: %s\n", final.RunID)
				switch {
				case final.Response != "":
					fmt.Fprintln(w, final.Response)
				case final.Generated != nil:
					fmt.Fprintf(w, "prompt: %s\n", final.Prompt)
					keys := make([]string, 0, len(final.Generated))
					for k := range final.Generated {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Fprintf(w, "  %s: %v\n", k, final.Generated[k])
					}
				default:
					fmt.Fprintf(w, "fixed image: %s\n", final.FixedImage)
				}
			})
		},
	}
	cmd.Flags().StringVar(&fixedImage, "fixed-image", "", "reference face to re-render")
	cmd.Flags().StringVar(&personaText, "persona", persona.Profile, "persona description")
	return cmd
}

func newCommentsCmd(a *app) *cobra.Command {
	var (
		profileURL string
		maxPosts   int
	)

	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Collect comments from the latest posts of a profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := &a.cfg.Workflows.Comments
			if profileURL != "" {
				cc.ProfileURL = profileURL
			}
			if maxPosts > 0 {
				cc.MaxPosts = maxPosts
			}
			if err := a.cfg.Validate(config.WorkflowComments); err != nil {
				return err
			}

			st, closeStore, err := openStore[comments.State](a)
			if err != nil {
				return err
			}
			defer closeStore()

			wf, err := comments.New(comments.Options{
				MaxPosts: cc.MaxPosts,
				Store:    st,
				Emitter:  a.emitter(),
				Logger:   a.logger.Named("comments"),
				Metrics:  a.metrics,
			})
			if err != nil {
				return err
			}
			final, err := wf.Run(cmd.Context(), cc.ProfileURL)
			if err != nil {
				return err
			}
			if len(final.Errors) > 0 {
				a.logger.Warn("some posts were skipped", zap.Strings("errors", final.Errors))
			}
			return a.print(cmd.OutOrStdout(), final, func(w io.Writer) {
				fmt.Fprintf(w, "run: %s\n%d comments from %d posts\n", final.RunID, final.Total(), len(final.Comments))
				for _, link := range final.PostLinks {
					list, ok := final.Comments[link]
					if !ok {
						continue
					}
					fmt.Fprintf(w, "\n%s\n", link)
					for _, c := range list {
						fmt.Fprintf(w, "  - %s\n", c)
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&profileURL, "profile", "", "profile URL (overrides the config)")
	cmd.Flags().IntVar(&maxPosts, "max-posts", 0, "number of posts to visit (overrides the config)")
	return cmd
}
