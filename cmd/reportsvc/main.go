package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/finpanel/report-service/internal/config"
	"github.com/finpanel/report-service/internal/notify"
	"github.com/finpanel/report-service/internal/ratelimit"
	"github.com/finpanel/report-service/internal/report"
	"github.com/finpanel/report-service/internal/risk"
	"github.com/finpanel/report-service/internal/secretroute"
	"github.com/finpanel/report-service/internal/server"
	"github.com/finpanel/report-service/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "reportsvc",
		Short: "Web report intake service with risk scoring and admin access control",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	hashCmd := &cobra.Command{
		Use:   "hash-password",
		Short: "generate a bcrypt hash for the admin password",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			pw := strings.TrimRight(line, "\r\n")
			if len(pw) < 12 {
				return errors.New("password must be at least 12 characters")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Println(string(hash))
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, hashCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "reportsvc: %s\n", err)
		os.Exit(1)
	}
}

func serve(cfg config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.NewSQLiteStore(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	scorer, err := buildScorer(cfg.KeywordsFile)
	if err != nil {
		return err
	}

	limits := ratelimit.DefaultConfig()
	limits.ReportsPerHour = cfg.RateLimit.ReportsPerHour
	limits.ReportsPerDay = cfg.RateLimit.ReportsPerDay
	limiter := ratelimit.NewLimiter(limits)
	defer limiter.Stop()

	notifier := notify.NewEmailNotifier(notify.EmailConfig{
		APIKey:      cfg.SendGrid.APIKey,
		FromAddress: cfg.SendGrid.FromAddress,
		FromName:    cfg.SendGrid.FromName,
		ToAddress:   cfg.SendGrid.ToAddress,
		SandboxMode: cfg.SendGrid.SandboxMode,
	})
	if notifier == nil {
		logger.Info("spam notifications disabled, no sendgrid key or recipient configured")
	}

	var submitterNotifier report.Notifier
	if notifier != nil {
		submitterNotifier = notifier
	}
	submitter := report.NewSubmitter(scorer, limiter, db, submitterNotifier, logger)
	routes := secretroute.NewManager(db, logger)

	srv := server.NewServer(server.Config{
		AdminUsername:     cfg.Admin.Username,
		AdminPasswordHash: cfg.Admin.PasswordHash,
	}, db, submitter, routes, logger)
	defer srv.Stop()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if cfg.KeywordsFile != "" {
		reloader, err := risk.NewReloader(cfg.KeywordsFile, submitter.SetScorer, logger)
		if err != nil {
			return fmt.Errorf("keyword reloader: %w", err)
		}
		g.Go(func() error { return reloader.Run(ctx) })
		logger.Info("watching keyword file", "path", cfg.KeywordsFile)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildScorer(keywordsFile string) (*risk.Scorer, error) {
	if keywordsFile == "" {
		return risk.NewScorer(), nil
	}
	keywords, err := risk.LoadKeywordsFile(keywordsFile)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}
	return risk.NewScorerWithKeywords(keywords), nil
}
