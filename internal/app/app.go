// Package app wires the configured components into a report service.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blackmichael/skystats/internal/bluesky"
	"github.com/blackmichael/skystats/internal/config"
	"github.com/blackmichael/skystats/internal/domain"
	"github.com/blackmichael/skystats/internal/identity"
	"github.com/blackmichael/skystats/internal/report"
	"github.com/blackmichael/skystats/internal/sqlite"
	"github.com/blackmichael/skystats/internal/stats"
)

// App holds the long-lived components shared by the server and the CLI.
type App struct {
	Client  *bluesky.Client
	Repo    *sqlite.Repository // nil when archiving is disabled
	Service *report.Service
}

// New builds an App from cfg. It logs the client in when credentials are
// configured and opens the archive when a database path is set.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	cutoff, err := cfg.CutoffTime()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	lexicon, err := loadLexicon(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := bluesky.NewClient(cfg.ServiceURL(), cfg.RateLimit)
	if cfg.HasCredentials() {
		if err := client.Login(ctx, cfg.Handle, cfg.AppPassword); err != nil {
			return nil, fmt.Errorf("login as %s: %w", cfg.Handle, err)
		}
		logger.Info("logged in", "did", client.DID())
	}

	a := &App{Client: client}

	var (
		reports domain.ReportRepository
		cursors domain.CursorRepository
	)
	if cfg.DatabasePath != "" {
		repo, err := sqlite.NewRepository(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("create repository: %w", err)
		}
		a.Repo = repo
		reports, cursors = repo, repo
		logger.Debug("opened report archive", "path", cfg.DatabasePath)
	}

	fetcher := domain.NewFetcher(client, domain.FetchLimits{
		DefaultLimit:        cfg.DefaultLimit,
		LikesLimit:          cfg.LikesLimit,
		PerPage:             cfg.PerPage,
		MaxConcurrentLikes:  cfg.MaxConcurrentLikes,
		TolerateLikesErrors: cfg.TolerateLikesErrors,
	}, logger)

	aggregator := stats.NewAggregator()
	aggregator.Cutoff = cutoff
	aggregator.Location = loc
	aggregator.Lexicon = lexicon

	a.Service = report.NewService(
		report.Config{FeedLimit: cfg.FeedLimit, FollowersLimit: cfg.FollowersLimit},
		client,
		fetcher,
		identity.NewResolver(cfg.PLCURL),
		aggregator,
		reports,
		cursors,
		logger,
	)

	return a, nil
}

// loadLexicon returns the lexicon at cfg.LexiconPath, or the embedded one
// when no path is set.
func loadLexicon(cfg *config.Config, logger *slog.Logger) (stats.Lexicon, error) {
	if cfg.LexiconPath == "" {
		return stats.DefaultLexicon(), nil
	}
	lexicon, err := stats.LoadLexiconFile(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon %s: %w", cfg.LexiconPath, err)
	}
	logger.Debug("loaded emotion lexicon", "path", cfg.LexiconPath, "words", len(lexicon))
	return lexicon, nil
}

// Close releases the archive, if one is open.
func (a *App) Close() error {
	if a.Repo == nil {
		return nil
	}
	return a.Repo.Close()
}
