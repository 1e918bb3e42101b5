package domain

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	DefaultFetchLimit = 10
	DefaultLikesLimit = 500
)

// FetchLimits are the defaults a Fetcher applies when a call leaves its
// options unset.
type FetchLimits struct {
	// DefaultLimit is the target size of follows, followers, author feed and
	// search fetches.
	DefaultLimit int

	// LikesLimit is the target size of each per-post likes fetch.
	LikesLimit int

	// PerPage is the page size requested from the AppView.
	PerPage int

	// MaxConcurrentLikes bounds the likes fetches in flight during enrichment.
	// Zero means unbounded.
	MaxConcurrentLikes int

	// TolerateLikesErrors keeps a post without likes when its likes fetch
	// fails, instead of failing the whole enrichment.
	TolerateLikesErrors bool
}

// DefaultFetchLimits returns the limits used when nothing is configured.
func DefaultFetchLimits() FetchLimits {
	return FetchLimits{
		DefaultLimit: DefaultFetchLimit,
		LikesLimit:   DefaultLikesLimit,
		PerPage:      MaxPageSize,
	}
}

// FetchOptions override the Fetcher's limits for one call. Zero values fall
// back to the Fetcher's FetchLimits.
type FetchOptions struct {
	Limit   int
	PerPage int

	// Cursor resumes the collection where an earlier fetch stopped.
	Cursor string
}

// Fetcher turns the paginated endpoints of a Network into bounded
// collections. It holds no per-call state and is safe for concurrent use.
type Fetcher struct {
	network Network
	limits  FetchLimits
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. Unset limits take their defaults.
func NewFetcher(network Network, limits FetchLimits, logger *slog.Logger) *Fetcher {
	defaults := DefaultFetchLimits()
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = defaults.DefaultLimit
	}
	if limits.LikesLimit <= 0 {
		limits.LikesLimit = defaults.LikesLimit
	}
	if limits.PerPage <= 0 {
		limits.PerPage = defaults.PerPage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		network: network,
		limits:  limits,
		logger:  logger,
	}
}

// Limits returns the effective limits of the Fetcher.
func (f *Fetcher) Limits() FetchLimits {
	return f.limits
}

// Follows fetches the accounts actor follows.
func (f *Fetcher) Follows(ctx context.Context, actor string, opts FetchOptions) ([]Profile, string, error) {
	fetch := func(ctx context.Context, cursor string, limit int) (Page[Profile], error) {
		return f.network.GetFollows(ctx, actor, cursor, limit)
	}
	follows, cursor, err := PaginateFrom(ctx, fetch, opts.Cursor, f.target(opts, f.limits.DefaultLimit), f.perPage(opts), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch follows of %s: %w", actor, err)
	}
	return follows, cursor, nil
}

// Followers fetches the accounts following actor.
func (f *Fetcher) Followers(ctx context.Context, actor string, opts FetchOptions) ([]Profile, string, error) {
	fetch := func(ctx context.Context, cursor string, limit int) (Page[Profile], error) {
		return f.network.GetFollowers(ctx, actor, cursor, limit)
	}
	followers, cursor, err := PaginateFrom(ctx, fetch, opts.Cursor, f.target(opts, f.limits.DefaultLimit), f.perPage(opts), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch followers of %s: %w", actor, err)
	}
	return followers, cursor, nil
}

// AuthorFeed fetches the posts and reposts in actor's feed, newest first.
func (f *Fetcher) AuthorFeed(ctx context.Context, actor string, opts FetchOptions) ([]FeedItem, string, error) {
	feed, cursor, err := PaginateFrom(ctx, f.authorFeedPage(actor), opts.Cursor, f.target(opts, f.limits.DefaultLimit), f.perPage(opts), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch author feed of %s: %w", actor, err)
	}
	return feed, cursor, nil
}

// Likes fetches the likes of the post at uri. The default target is the
// LikesLimit rather than the DefaultLimit.
func (f *Fetcher) Likes(ctx context.Context, uri string, opts FetchOptions) ([]Like, string, error) {
	fetch := func(ctx context.Context, cursor string, limit int) (Page[Like], error) {
		return f.network.GetLikes(ctx, uri, cursor, limit)
	}
	likes, cursor, err := PaginateFrom(ctx, fetch, opts.Cursor, f.target(opts, f.limits.LikesLimit), f.perPage(opts), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch likes of %s: %w", uri, err)
	}
	return likes, cursor, nil
}

// Search fetches posts matching query.
func (f *Fetcher) Search(ctx context.Context, query string, opts FetchOptions) ([]FeedItem, string, error) {
	fetch := func(ctx context.Context, cursor string, limit int) (Page[FeedItem], error) {
		return f.network.SearchPosts(ctx, query, cursor, limit)
	}
	posts, cursor, err := PaginateFrom(ctx, fetch, opts.Cursor, f.target(opts, f.limits.DefaultLimit), f.perPage(opts), nil)
	if err != nil {
		return nil, "", fmt.Errorf("search posts %q: %w", query, err)
	}
	return posts, cursor, nil
}

// Feed fetches the posts of the custom feed generator at feedURI.
func (f *Fetcher) Feed(ctx context.Context, feedURI string, opts FetchOptions) ([]FeedItem, string, error) {
	fetch := func(ctx context.Context, cursor string, limit int) (Page[FeedItem], error) {
		return f.network.GetFeed(ctx, feedURI, cursor, limit)
	}
	posts, cursor, err := PaginateFrom(ctx, fetch, opts.Cursor, f.target(opts, f.limits.DefaultLimit), f.perPage(opts), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch feed %s: %w", feedURI, err)
	}
	return posts, cursor, nil
}

// Timeline fetches the home timeline of the authenticated account.
func (f *Fetcher) Timeline(ctx context.Context, opts FetchOptions) ([]FeedItem, string, error) {
	posts, cursor, err := PaginateFrom(ctx, f.network.GetTimeline, opts.Cursor, f.target(opts, f.limits.DefaultLimit), f.perPage(opts), nil)
	if err != nil {
		return nil, "", fmt.Errorf("fetch timeline: %w", err)
	}
	return posts, cursor, nil
}

func (f *Fetcher) authorFeedPage(actor string) PageFunc[FeedItem] {
	return func(ctx context.Context, cursor string, limit int) (Page[FeedItem], error) {
		return f.network.GetAuthorFeed(ctx, actor, cursor, limit)
	}
}

func (f *Fetcher) target(opts FetchOptions, fallback int) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return fallback
}

func (f *Fetcher) perPage(opts FetchOptions) int {
	if opts.PerPage > 0 {
		return opts.PerPage
	}
	return f.limits.PerPage
}
