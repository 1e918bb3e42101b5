// Package domaintest provides in-memory fakes of the domain ports.
package domaintest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/blackmichael/skystats/internal/domain"
)

// Network is an in-memory domain.Network. Collections are served in pages of
// the requested limit; the cursor is the offset of the next item. Errors and
// delays can be injected per key.
type Network struct {
	Profiles  map[string]*domain.ProfileDetailed
	Handles   map[string]string
	Follows   map[string][]domain.Profile
	Followers map[string][]domain.Profile
	Feeds     map[string][]domain.FeedItem
	Likes     map[string][]domain.Like
	Search    map[string][]domain.FeedItem

	// CustomFeeds are the posts of feed generators, keyed by feed URI.
	CustomFeeds map[string][]domain.FeedItem

	// Timeline is served only when Authenticated is set.
	Timeline      []domain.FeedItem
	Authenticated bool

	// LikesErr fails GetLikes for the given post URIs.
	LikesErr map[string]error

	// FeedErr fails GetAuthorFeed for the given actors.
	FeedErr map[string]error

	// LikesDelay delays every GetLikes call.
	LikesDelay time.Duration

	mu    sync.Mutex
	calls []Call
}

// Call records a single request made to the Network.
type Call struct {
	Method string
	Key    string
	Cursor string
	Limit  int
}

// NewNetwork returns an empty Network.
func NewNetwork() *Network {
	return &Network{
		Profiles:  make(map[string]*domain.ProfileDetailed),
		Handles:   make(map[string]string),
		Follows:   make(map[string][]domain.Profile),
		Followers: make(map[string][]domain.Profile),
		Feeds:     make(map[string][]domain.FeedItem),
		Likes:     make(map[string][]domain.Like),
		Search:    make(map[string][]domain.FeedItem),
		LikesErr:  make(map[string]error),
		FeedErr:   make(map[string]error),

		CustomFeeds: make(map[string][]domain.FeedItem),
	}
}

// Calls returns the requests made so far.
func (n *Network) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Call(nil), n.calls...)
}

// CallsTo returns the requests made to method.
func (n *Network) CallsTo(method string) []Call {
	var out []Call
	for _, c := range n.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (n *Network) record(method, key, cursor string, limit int) {
	n.mu.Lock()
	n.calls = append(n.calls, Call{Method: method, Key: key, Cursor: cursor, Limit: limit})
	n.mu.Unlock()
}

func (n *Network) GetProfile(_ context.Context, actor string) (*domain.ProfileDetailed, error) {
	n.record("getProfile", actor, "", 0)
	p, ok := n.Profiles[actor]
	if !ok {
		return nil, fmt.Errorf("app.bsky.actor.getProfile: profile not found: %s", actor)
	}
	return p, nil
}

func (n *Network) ResolveHandle(_ context.Context, handle string) (string, error) {
	n.record("resolveHandle", handle, "", 0)
	did, ok := n.Handles[handle]
	if !ok {
		return "", fmt.Errorf("com.atproto.identity.resolveHandle: unable to resolve handle: %s", handle)
	}
	return did, nil
}

func (n *Network) GetFollows(_ context.Context, actor, cursor string, limit int) (domain.Page[domain.Profile], error) {
	n.record("getFollows", actor, cursor, limit)
	return page(n.Follows[actor], cursor, limit)
}

func (n *Network) GetFollowers(_ context.Context, actor, cursor string, limit int) (domain.Page[domain.Profile], error) {
	n.record("getFollowers", actor, cursor, limit)
	return page(n.Followers[actor], cursor, limit)
}

func (n *Network) GetAuthorFeed(_ context.Context, actor, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	n.record("getAuthorFeed", actor, cursor, limit)
	if err := n.FeedErr[actor]; err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}
	return page(n.Feeds[actor], cursor, limit)
}

func (n *Network) GetLikes(ctx context.Context, uri, cursor string, limit int) (domain.Page[domain.Like], error) {
	n.record("getLikes", uri, cursor, limit)
	if n.LikesDelay > 0 {
		select {
		case <-ctx.Done():
			return domain.Page[domain.Like]{}, ctx.Err()
		case <-time.After(n.LikesDelay):
		}
	}
	if err := n.LikesErr[uri]; err != nil {
		return domain.Page[domain.Like]{}, err
	}
	return page(n.Likes[uri], cursor, limit)
}

func (n *Network) SearchPosts(_ context.Context, query, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	n.record("searchPosts", query, cursor, limit)
	return page(n.Search[query], cursor, limit)
}

func (n *Network) GetFeed(_ context.Context, feedURI, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	n.record("getFeed", feedURI, cursor, limit)
	items, ok := n.CustomFeeds[feedURI]
	if !ok {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("app.bsky.feed.getFeed: unknown feed: %s", feedURI)
	}
	return page(items, cursor, limit)
}

func (n *Network) GetTimeline(_ context.Context, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	n.record("getTimeline", "", cursor, limit)
	if !n.Authenticated {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("app.bsky.feed.getTimeline: %w", domain.ErrAuthRequired)
	}
	return page(n.Timeline, cursor, limit)
}

func page[T any](all []T, cursor string, limit int) (domain.Page[T], error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil {
			return domain.Page[T]{}, fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	p := domain.Page[T]{Items: append([]T(nil), all[start:end]...)}
	if end < len(all) {
		p.Cursor = strconv.Itoa(end)
	}
	return p, nil
}

// Resolver is an in-memory domain.IdentityResolver.
type Resolver struct {
	Identities map[string]*domain.IdentityInfo
	Err        error

	// Delay holds every Resolve call until it passes or ctx is done.
	Delay time.Duration
}

func (r *Resolver) Resolve(ctx context.Context, did string) (*domain.IdentityInfo, error) {
	if r.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.Delay):
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	info, ok := r.Identities[did]
	if !ok {
		return &domain.IdentityInfo{DID: did, Audit: []domain.AuditEntry{}, PDS: "unknown"}, nil
	}
	return info, nil
}
