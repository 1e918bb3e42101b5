package domain

import (
	"context"
	"errors"
	"time"
)

// Network is the read capability of the AT Protocol AppView. Paginated
// endpoints take an opaque cursor ("" for the first page) and a page size; the
// returned page carries the cursor for the next request.
type Network interface {
	GetProfile(ctx context.Context, actor string) (*ProfileDetailed, error)
	ResolveHandle(ctx context.Context, handle string) (string, error)
	GetFollows(ctx context.Context, actor, cursor string, limit int) (Page[Profile], error)
	GetFollowers(ctx context.Context, actor, cursor string, limit int) (Page[Profile], error)
	GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (Page[FeedItem], error)
	GetLikes(ctx context.Context, uri, cursor string, limit int) (Page[Like], error)
	SearchPosts(ctx context.Context, query, cursor string, limit int) (Page[FeedItem], error)
	GetFeed(ctx context.Context, feedURI, cursor string, limit int) (Page[FeedItem], error)

	// GetTimeline reads the home timeline of the authenticated account. It
	// fails with ErrAuthRequired when the capability has no session.
	GetTimeline(ctx context.Context, cursor string, limit int) (Page[FeedItem], error)
}

// ErrAuthRequired is returned by endpoints that need a logged-in session.
var ErrAuthRequired = errors.New("authentication required")

// IdentityResolver resolves a DID to its document and audit trail.
type IdentityResolver interface {
	Resolve(ctx context.Context, did string) (*IdentityInfo, error)
}

// ReportRepository defines persistence operations for archived reports.
type ReportRepository interface {
	// SaveReport inserts a report summary. An empty ID is assigned by the store.
	SaveReport(ctx context.Context, summary *ReportSummary) error

	// ListReports retrieves summaries for a DID ordered by generation time
	// descending. The cursor is opaque and implementation-defined. Returns the
	// summaries and the next cursor (empty string if no more results).
	ListReports(ctx context.Context, did string, limit int, cursor string) ([]ReportSummary, string, error)

	// DeleteOldReports removes reports older than maxAge and any excess rows
	// beyond maxRows, keeping the most recent. Returns the number of rows deleted.
	DeleteOldReports(ctx context.Context, maxAge time.Duration, maxRows int) (int64, error)
}

// CursorRepository defines persistence operations for author feed cursors.
type CursorRepository interface {
	// GetCursor retrieves the last author feed cursor saved for a DID. Returns
	// "" if none has been saved.
	GetCursor(ctx context.Context, did string) (string, error)

	// UpdateCursor persists the author feed cursor for a DID.
	UpdateCursor(ctx context.Context, did, cursor string) error
}
