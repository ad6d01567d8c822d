package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alias1177/MatchPredictor/internal/metrics"
	"github.com/Alias1177/MatchPredictor/internal/scheduler"
	"github.com/Alias1177/MatchPredictor/models"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func predictCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict one match from a JSON match context (file or stdin)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("opening match file: %w", err)
				}
				defer f.Close()
				r = f
			}

			var match models.MatchContext
			if err := json.NewDecoder(r).Decode(&match); err != nil {
				return fmt.Errorf("decoding match context: %w", err)
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.service.Predict(ctx, match)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVarP(&input, "match", "m", "-", "path to match context JSON, - for stdin")
	return cmd
}

func outcomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outcome <match-id> <home-goals> <away-goals>",
		Short: "Record the final score of a match",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid home goals %q", args[1])
			}
			away, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid away goals %q", args[2])
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.service.RecordOutcome(cmd.Context(), args[0], home, away)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func learnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "learn",
		Short: "Apply bounded corrections from recently completed matches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.service.RunLearning(cmd.Context())
			if err != nil {
				return err
			}
			printAccuracy(cmd.OutOrStdout(), report.Summary)
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func printAccuracy(w io.Writer, s models.AccuracySummary) {
	if s.Total == 0 {
		return
	}
	fmt.Fprintf(w, "Overall: %d/%d (%.1f%%)\n", s.Correct, s.Total, s.Accuracy*100)
	for _, o := range models.Outcomes {
		if c, ok := s.ByClass[o]; ok {
			fmt.Fprintf(w, "  %-5s %d/%d (%.1f%%)\n", o, c.Correct, c.Total, c.Accuracy*100)
		}
	}

	leagues := make([]string, 0, len(s.ByLeague))
	for l := range s.ByLeague {
		leagues = append(leagues, l)
	}
	sort.Strings(leagues)
	for _, l := range leagues {
		c := s.ByLeague[l]
		fmt.Fprintf(w, "  %-20s %d/%d (%.1f%%)\n", l, c.Correct, c.Total, c.Accuracy*100)
	}
}

func evolveCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "evolve",
		Short: "Retrain the outcome classifier when due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.RunEvolution(cmd.Context(), force)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "retrain even if not due")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the model version and accuracy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd.OutOrStdout(), a.service.VersionInfo())
		},
	}
}

func scheduleCmd() *cobra.Command {
	var (
		jobTimeout time.Duration
		runNow     []string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run learn and evolve on their cron schedules and serve /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.New(a.service, jobTimeout)
			if err := sched.Schedule(a.cfg.LearnSchedule, a.cfg.EvolveSchedule); err != nil {
				return err
			}
			for _, job := range runNow {
				if err := sched.RunNow(job); err != nil {
					return err
				}
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				log.Info().Str("addr", a.cfg.MetricsAddr).Msg("Serving metrics")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("Metrics server failed")
				}
			}()

			sched.Start()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Metrics server shutdown failed")
			}
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", time.Hour, "upper bound for one job run")
	cmd.Flags().StringSliceVar(&runNow, "run-now", nil, "jobs to run once before the schedule starts (learn, evolve)")
	return cmd
}
