package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprintdeck/sprintdeck/internal/app"
	"github.com/sprintdeck/sprintdeck/internal/config"
	"github.com/sprintdeck/sprintdeck/internal/observability"
	"github.com/sprintdeck/sprintdeck/internal/tools/common"
	"github.com/sprintdeck/sprintdeck/internal/tools/loadgen"
	"github.com/sprintdeck/sprintdeck/internal/tools/ui"
)

func main() {
	root := &cobra.Command{
		Use:           "sprintdeck",
		Short:         "Sprintdeck credential and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newLoadgenCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := common.LoadEnvFile(envFile); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
			if err != nil {
				return err
			}
			runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
			if err != nil {
				return err
			}
			a, err := app.Build(ctx, cfg, logger, runtime)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	return cmd
}

func newLoadgenCommand() *cobra.Command {
	var (
		baseURL     string
		profile     string
		duration    time.Duration
		rps         int
		concurrency int
		seed        int64
		ci          bool
	)
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Generate synthetic traffic against a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			task := func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     baseURL,
					Profile:     profile,
					Duration:    duration,
					RPS:         rps,
					Concurrency: concurrency,
					Seed:        seed,
				})
				if err != nil {
					return nil, err
				}
				details := []string{
					fmt.Sprintf("total=%d failures=%d", res.TotalRequests, res.Failures),
				}
				for class, count := range res.StatusClasses {
					details = append(details, fmt.Sprintf("%s=%d", class, count))
				}
				return details, nil
			}

			var (
				details []string
				err     error
			)
			if ci {
				ctx, cancel := context.WithTimeout(cmd.Context(), duration+time.Minute)
				defer cancel()
				details, err = task(ctx)
				common.PrintCIResult(err == nil, "loadgen", details, err)
			} else {
				details, err = ui.Run("loadgen "+profile, task)
				for _, d := range details {
					fmt.Println(d)
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&profile, "profile", "mixed", "traffic profile: mixed, auth or health")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run")
	cmd.Flags().IntVar(&rps, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for the request mix")
	cmd.Flags().BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}
