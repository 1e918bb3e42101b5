// Package report composes data acquisition, identity resolution and
// aggregation into account reports.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/skystats/internal/domain"
	"github.com/blackmichael/skystats/internal/stats"
)

const (
	DefaultFeedLimit      = 1000
	DefaultFollowersLimit = 100
)

var (
	// ErrArchiveDisabled is returned by History when no report repository is
	// configured.
	ErrArchiveDisabled = errors.New("report archive is disabled")

	// ErrNoCursor is returned by Continue when no unread author feed remains
	// from an earlier report.
	ErrNoCursor = errors.New("no saved feed cursor")

	ErrInvalidActor = errors.New("actor must be a handle or a DID")
	ErrEmptyQuery   = errors.New("query is required")
	ErrInvalidFeed  = errors.New("feed must be an at:// URI")
)

// Config sizes the collections a report is computed from.
type Config struct {
	// FeedLimit is the number of author feed items analyzed.
	FeedLimit int

	// FollowersLimit is the number of followers passed through.
	FollowersLimit int
}

// Service is the core application service. It resolves actors, fetches
// everything a report needs concurrently, aggregates it and archives a
// summary.
type Service struct {
	cfg        Config
	network    domain.Network
	fetcher    *domain.Fetcher
	identity   domain.IdentityResolver
	aggregator *stats.Aggregator

	// optional; nil disables archiving
	reports domain.ReportRepository
	cursors domain.CursorRepository

	logger *slog.Logger
}

// NewService creates a Service. reports and cursors may be nil.
func NewService(
	cfg Config,
	network domain.Network,
	fetcher *domain.Fetcher,
	identity domain.IdentityResolver,
	aggregator *stats.Aggregator,
	reports domain.ReportRepository,
	cursors domain.CursorRepository,
	logger *slog.Logger,
) *Service {
	if cfg.FeedLimit <= 0 {
		cfg.FeedLimit = DefaultFeedLimit
	}
	if cfg.FollowersLimit <= 0 {
		cfg.FollowersLimit = DefaultFollowersLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		network:    network,
		fetcher:    fetcher,
		identity:   identity,
		aggregator: aggregator,
		reports:    reports,
		cursors:    cursors,
		logger:     logger,
	}
}

// ResolveActor returns the DID of actor, which is either a DID or a handle
// with an optional leading "@".
func (s *Service) ResolveActor(ctx context.Context, actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if strings.HasPrefix(actor, "did:") {
		return actor, nil
	}

	handle := strings.ToLower(strings.TrimPrefix(actor, "@"))
	if handle == "" {
		return "", ErrInvalidActor
	}
	did, err := s.network.ResolveHandle(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("resolve handle %s: %w", handle, err)
	}
	return did, nil
}

// Generate builds the report of actor. Any acquisition failure fails the
// whole report; archiving failures are only logged.
func (s *Service) Generate(ctx context.Context, actor string) (*domain.Report, error) {
	return s.run(ctx, actor, "")
}

// Continue builds the report of actor from the author feed cursor the last
// archived report stopped at, so consecutive calls walk further back through
// the feed.
func (s *Service) Continue(ctx context.Context, actor string) (*domain.Report, error) {
	if s.cursors == nil {
		return nil, ErrArchiveDisabled
	}
	did, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("continue report for %s: %w", actor, err)
	}
	cursor, err := s.cursors.GetCursor(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("load feed cursor of %s: %w", did, err)
	}
	if cursor == "" {
		return nil, fmt.Errorf("continue report for %s: %w", actor, ErrNoCursor)
	}
	return s.run(ctx, did, cursor)
}

func (s *Service) run(ctx context.Context, actor, cursor string) (*domain.Report, error) {
	start := time.Now()

	report, did, feedCursor, err := s.generate(ctx, actor, cursor)
	reportDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reportsGenerated.WithLabelValues("error").Inc()
		s.logger.Error("report generation failed", "actor", actor, "error", err)
		return nil, fmt.Errorf("generate report for %s: %w", actor, err)
	}
	reportsGenerated.WithLabelValues("success").Inc()

	s.logger.Info("report generated",
		"did", did,
		"posts", len(report.AuthorFeed),
		"followers", len(report.Followers),
		"continued", cursor != "",
		"duration", time.Since(start),
	)

	s.archive(ctx, did, report, feedCursor)
	return report, nil
}

func (s *Service) generate(ctx context.Context, actor, cursor string) (*domain.Report, string, string, error) {
	did, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, "", "", err
	}

	var (
		in         stats.Input
		feedCursor string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := s.network.GetProfile(gctx, did)
		if err != nil {
			return fmt.Errorf("fetch profile of %s: %w", did, err)
		}
		in.Profile = profile
		return nil
	})
	g.Go(func() error {
		followers, _, err := s.fetcher.Followers(gctx, did, domain.FetchOptions{Limit: s.cfg.FollowersLimit})
		if err != nil {
			return err
		}
		in.Followers = followers
		return nil
	})
	g.Go(func() error {
		feed, cursor, err := s.fetcher.EnrichedAuthorFeed(gctx, did, domain.FetchOptions{Limit: s.cfg.FeedLimit, Cursor: cursor})
		if err != nil {
			return err
		}
		in.Feed = feed
		feedCursor = cursor
		return nil
	})
	g.Go(func() error {
		info, err := s.identity.Resolve(gctx, did)
		if err != nil {
			return fmt.Errorf("resolve identity of %s: %w", did, err)
		}
		in.Identity = info
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, did, "", err
	}

	return s.aggregator.Aggregate(in), did, feedCursor, nil
}

func (s *Service) archive(ctx context.Context, did string, report *domain.Report, feedCursor string) {
	if s.reports != nil {
		data, err := json.Marshal(report.Derived())
		if err != nil {
			s.logger.Warn("failed to encode report summary", "did", did, "error", err)
			return
		}

		handle := ""
		if report.User != nil {
			handle = report.User.Handle
		}
		summary := &domain.ReportSummary{
			DID:           did,
			Handle:        handle,
			GeneratedAt:   time.Now().UTC(),
			FeedCursor:    feedCursor,
			PostsAnalyzed: len(report.AuthorFeed),
			Stats:         data,
		}
		if err := s.reports.SaveReport(ctx, summary); err != nil {
			s.logger.Warn("failed to archive report", "did", did, "error", err)
		}
	}

	// An empty cursor is saved too: it marks the feed as read to the end.
	if s.cursors != nil {
		if err := s.cursors.UpdateCursor(ctx, did, feedCursor); err != nil {
			s.logger.Warn("failed to save feed cursor", "did", did, "error", err)
		}
	}
}

// Follows returns up to limit accounts actor follows, and the cursor where
// the fetch stopped.
func (s *Service) Follows(ctx context.Context, actor string, limit int) ([]domain.Profile, string, error) {
	did, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, "", err
	}
	return s.fetcher.Follows(ctx, did, domain.FetchOptions{Limit: limit})
}

// Followers returns up to limit followers of actor.
func (s *Service) Followers(ctx context.Context, actor string, limit int) ([]domain.Profile, string, error) {
	did, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, "", err
	}
	return s.fetcher.Followers(ctx, did, domain.FetchOptions{Limit: limit})
}

// Search returns up to limit posts matching query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.FeedItem, string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, "", ErrEmptyQuery
	}
	return s.fetcher.Search(ctx, query, domain.FetchOptions{Limit: limit})
}

// Feed returns up to limit posts of the feed generator at feedURI.
func (s *Service) Feed(ctx context.Context, feedURI string, limit int) ([]domain.FeedItem, string, error) {
	feedURI = strings.TrimSpace(feedURI)
	if !strings.HasPrefix(feedURI, "at://") {
		return nil, "", ErrInvalidFeed
	}
	return s.fetcher.Feed(ctx, feedURI, domain.FetchOptions{Limit: limit})
}

// Timeline returns up to limit posts of the logged in account's home
// timeline. It fails with domain.ErrAuthRequired without a session.
func (s *Service) Timeline(ctx context.Context, limit int) ([]domain.FeedItem, string, error) {
	return s.fetcher.Timeline(ctx, domain.FetchOptions{Limit: limit})
}

// Identity resolves the identity of actor.
func (s *Service) Identity(ctx context.Context, actor string) (*domain.IdentityInfo, error) {
	did, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	info, err := s.identity.Resolve(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("resolve identity of %s: %w", did, err)
	}
	return info, nil
}

// History returns archived report summaries of actor, newest first.
func (s *Service) History(ctx context.Context, actor string, limit int, cursor string) ([]domain.ReportSummary, string, error) {
	if s.reports == nil {
		return nil, "", ErrArchiveDisabled
	}
	did, err := s.ResolveActor(ctx, actor)
	if err != nil {
		return nil, "", err
	}
	summaries, next, err := s.reports.ListReports(ctx, did, limit, cursor)
	if err != nil {
		return nil, "", fmt.Errorf("list reports: %w", err)
	}
	return summaries, next, nil
}

// StartCleanupJob runs a background loop that removes archived reports older
// than maxAge and caps the total at maxRows. It runs immediately on start and
// then repeats at the given interval. It blocks until ctx is cancelled.
func (s *Service) StartCleanupJob(ctx context.Context, interval time.Duration, maxAge time.Duration, maxRows int) {
	if s.reports == nil {
		return
	}

	s.runCleanup(ctx, maxAge, maxRows)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup(ctx, maxAge, maxRows)
		}
	}
}

func (s *Service) runCleanup(ctx context.Context, maxAge time.Duration, maxRows int) {
	deleted, err := s.reports.DeleteOldReports(ctx, maxAge, maxRows)
	if err != nil {
		s.logger.Error("report cleanup failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info("report cleanup complete", "deleted", deleted)
	}
}
