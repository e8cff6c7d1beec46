package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/automaton-intel/internal/application/pipeline"
	"github.com/bryanwahyu/automaton-intel/internal/config"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
	"github.com/bryanwahyu/automaton-intel/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-intel/internal/infra/jira"
)

const banner = "SOC in a Box - Security Operations Center Automation"

var (
	configPath string
	logLevel   string
	logFormat  string

	runDays   int
	runSinks  []string
	runDryRun bool

	modulesDays int
)

var rootCmd = &cobra.Command{
	Use:           "intel",
	Short:         "Metasploit module threat-intel pipeline",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Detect new modules, analyse them and publish the results once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("days") {
			cfg.GitHub.Days = runDays
		}
		if len(runSinks) > 0 {
			if err := config.ValidateSinks(runSinks); err != nil {
				return err
			}
			cfg.Pipeline.Sinks = runSinks
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, banner)
		fmt.Fprintln(out)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.pipeline.Run(ctx, pipeline.RunOptions{DryRun: runDryRun})
		if report != nil {
			printReport(out, report)
		}
		return err
	},
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules changed inside the lookback window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("days") {
			cfg.GitHub.Days = modulesDays
		}
		_, mon, err := newMonitor(cfg)
		if err != nil {
			return err
		}
		printModules(cmd.OutOrStdout(), mon.RecentModules(cmd.Context()))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose health, metrics and the run trigger over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		baseCtx, cancelRuns := context.WithCancel(context.Background())
		defer cancelRuns()

		a, err := buildApp(baseCtx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := httpserver.Options{
			APIKeys:     cfg.Server.APIKeys,
			RateBurst:   cfg.Server.RateBurst,
			RatePerSec:  float64(cfg.Server.RatePerSec),
			Checkers:    a.checkers,
			Sinks:       a.sinks,
			BaseContext: baseCtx,
		}
		if a.repo != nil {
			opts.Repo = a.repo
		}
		router, handler := httpserver.NewRouter(a.pipeline, opts)

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// graceful shutdown
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		}
		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		cancelRuns()
		router.Wait()
		return nil
	},
}

var ticketTestCmd = &cobra.Command{
	Use:   "ticket-test",
	Short: "Create a Hello World issue to check the Jira credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateJira(); err != nil {
			return err
		}
		client, err := jira.NewClient(jira.Options{
			BaseURL:   cfg.Jira.BaseURL,
			Email:     cfg.Jira.Email,
			APIToken:  cfg.Jira.APIToken,
			Project:   cfg.Jira.Project,
			IssueType: cfg.Jira.IssueType,
		})
		if err != nil {
			return err
		}
		key, err := client.SmokeTest(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created issue: %s\n", key)
		return nil
	},
}

func init() {
	defaultConfig := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "path to config.yaml (may be absent)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")

	runCmd.Flags().IntVar(&runDays, "days", 8, "lookback window in days")
	runCmd.Flags().StringSliceVar(&runSinks, "sink", nil, "sinks to publish to (jira, confluence)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "analyse without publishing")

	modulesCmd.Flags().IntVar(&modulesDays, "days", 8, "lookback window in days")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ticketTestCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}
	return cfg, nil
}

func printModules(w io.Writer, mods []modules.Module) {
	if len(mods) == 0 {
		fmt.Fprintln(w, "No new modules found")
		return
	}
	fmt.Fprintf(w, "Found %d new modules to process\n", len(mods))
	for _, m := range mods {
		fmt.Fprintf(w, "- %s (%s, %s) %s\n", m.Path, m.Status, m.LastCommit.UTC().Format(time.RFC3339), m.URL)
	}
}

func printReport(w io.Writer, r *pipeline.Report) {
	if r.Run.Found == 0 {
		fmt.Fprintln(w, "No new modules found")
		return
	}
	fmt.Fprintf(w, "Found %d new modules to process\n", r.Run.Found)
	for _, res := range r.Results {
		switch {
		case res.Error != "":
			fmt.Fprintf(w, "[FAILED] %s: %s\n", res.Module.Name, res.Error)
		case res.Published():
			fmt.Fprintf(w, "[OK] %s", res.Module.Name)
			if res.TicketKey != "" {
				fmt.Fprintf(w, " ticket=%s", res.TicketKey)
			}
			if res.PageID != "" {
				fmt.Fprintf(w, " page=%s", res.PageID)
			}
			fmt.Fprintln(w)
		default:
			fmt.Fprintf(w, "[ANALYZED] %s\n", res.Module.Name)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Run ID:    %s\n", r.Run.ID)
	fmt.Fprintf(w, "  Found:     %d\n", r.Run.Found)
	fmt.Fprintf(w, "  Analyzed:  %d\n", r.Run.Analyzed)
	fmt.Fprintf(w, "  Published: %d\n", r.Run.Published)
	fmt.Fprintf(w, "  Failed:    %d\n", r.Run.Failed)
}
