package bluesky

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/skystats/internal/domain"
)

func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	for nsid, h := range routes {
		mux.HandleFunc("/xrpc/"+nsid, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_GetProfile(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"app.bsky.actor.getProfile": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "alice.bsky.social", r.URL.Query().Get("actor"))
			assert.Empty(t, r.Header.Get("Authorization"))
			respond(`{
				"did": "did:plc:alice",
				"handle": "alice.bsky.social",
				"displayName": "Alice",
				"followersCount": 12,
				"followsCount": 34,
				"postsCount": 56,
				"createdAt": "2023-05-01T10:00:00.000Z"
			}`)(w, r)
		},
	})

	p, err := NewClient(srv.URL, 0).GetProfile(context.Background(), "alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", p.DID)
	assert.Equal(t, "Alice", p.Name())
	assert.Equal(t, 12, p.FollowersCount)
	assert.Equal(t, 34, p.FollowsCount)
	assert.Equal(t, 56, p.PostsCount)
	assert.True(t, time.Date(2023, time.May, 1, 10, 0, 0, 0, time.UTC).Equal(p.CreatedAt))
}

func TestClient_PaginationParams(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"app.bsky.graph.getFollowers": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			calls = append(calls, r.URL.RawQuery)
			mu.Unlock()
			if r.URL.Query().Get("cursor") == "" {
				respond(`{"followers": [{"did": "did:plc:a", "handle": "a.test"}], "cursor": "c1"}`)(w, r)
				return
			}
			respond(`{"followers": [{"did": "did:plc:b", "handle": "b.test"}]}`)(w, r)
		},
	})
	c := NewClient(srv.URL, 0)

	page, err := c.GetFollowers(context.Background(), "did:plc:subject", "", 50)
	require.NoError(t, err)
	assert.Equal(t, []domain.Profile{{DID: "did:plc:a", Handle: "a.test"}}, page.Items)
	assert.Equal(t, "c1", page.Cursor)

	page, err = c.GetFollowers(context.Background(), "did:plc:subject", "c1", 50)
	require.NoError(t, err)
	assert.Equal(t, "did:plc:b", page.Items[0].DID)
	assert.Empty(t, page.Cursor)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"actor=did%3Aplc%3Asubject&limit=50",
		"actor=did%3Aplc%3Asubject&cursor=c1&limit=50",
	}, calls)
}

func TestClient_GetAuthorFeed(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"app.bsky.feed.getAuthorFeed": respond(`{
			"feed": [
				{
					"post": {
						"uri": "at://did:plc:alice/app.bsky.feed.post/1",
						"cid": "cid1",
						"author": {"did": "did:plc:alice", "handle": "alice.bsky.social"},
						"record": {"$type": "app.bsky.feed.post", "text": "hello", "createdAt": "2024-03-01T12:00:00Z"},
						"embed": {"$type": "app.bsky.embed.images#view", "images": []},
						"likeCount": 3, "replyCount": 1, "repostCount": 2, "quoteCount": 4,
						"indexedAt": "2024-03-01T12:00:01.5Z"
					},
					"reason": {"$type": "app.bsky.feed.defs#reasonPin"}
				},
				{
					"post": {
						"uri": "at://did:plc:bob/app.bsky.feed.post/2",
						"author": {"did": "did:plc:bob", "handle": "bob.test"},
						"record": {"text": "", "createdAt": "not a date"},
						"embed": {"$type": "app.bsky.embed.recordWithMedia#view"},
						"indexedAt": "2024-03-02T00:00:00Z"
					},
					"reason": {
						"$type": "app.bsky.feed.defs#reasonRepost",
						"by": {"did": "did:plc:alice", "handle": "alice.bsky.social"},
						"indexedAt": "2024-03-02T01:00:00Z"
					}
				},
				{
					"post": {
						"uri": "at://did:plc:alice/app.bsky.feed.post/3",
						"author": {"did": "did:plc:alice", "handle": "alice.bsky.social"},
						"record": {"text": "agreed"},
						"embed": {"$type": "app.bsky.embed.external#view"}
					},
					"reply": {
						"root": {"$type": "app.bsky.feed.defs#postView", "uri": "at://root"},
						"parent": {"$type": "app.bsky.feed.defs#notFoundPost", "uri": "at://parent", "notFound": true}
					}
				}
			],
			"cursor": "next"
		}`),
	})

	page, err := NewClient(srv.URL, 0).GetAuthorFeed(context.Background(), "did:plc:alice", "", 3)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "next", page.Cursor)

	pinned := page.Items[0]
	assert.False(t, pinned.IsRepost(), "a pin is not a repost")
	assert.Equal(t, domain.EmbedImage, pinned.Post.Embed)
	assert.Equal(t, 10, pinned.Post.InteractionCount())
	assert.Equal(t, "hello", pinned.Post.Text)
	assert.True(t, time.Date(2024, time.March, 1, 12, 0, 1, 500_000_000, time.UTC).Equal(pinned.Post.IndexedAt))

	reposted := page.Items[1]
	require.True(t, reposted.IsRepost())
	assert.Equal(t, "did:plc:alice", reposted.Reason.By.DID)
	assert.Equal(t, domain.EmbedQuote, reposted.Post.Embed)
	assert.True(t, reposted.Post.CreatedAt.IsZero())

	reply := page.Items[2]
	require.NotNil(t, reply.Reply)
	assert.Equal(t, domain.ReplyRef{RootURI: "at://root", ParentURI: "at://parent"}, *reply.Reply)
	assert.Equal(t, domain.EmbedExternal, reply.Post.Embed)
}

func TestClient_GetLikesAndSearch(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"app.bsky.feed.getLikes": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "at://did:plc:alice/app.bsky.feed.post/1", r.URL.Query().Get("uri"))
			respond(`{"uri": "at://did:plc:alice/app.bsky.feed.post/1", "likes": [
				{"actor": {"did": "did:plc:fan", "handle": "fan.test"}, "createdAt": "2024-03-01T13:00:00Z", "indexedAt": "2024-03-01T13:00:01Z"}
			]}`)(w, r)
		},
		"app.bsky.feed.searchPosts": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "sunny days", r.URL.Query().Get("q"))
			respond(`{"posts": [{"uri": "at://x/app.bsky.feed.post/9", "record": {"text": "sunny days"}}], "cursor": "25", "hitsTotal": 900}`)(w, r)
		},
		"com.atproto.identity.resolveHandle": respond(`{"did": "did:plc:alice"}`),
	})
	c := NewClient(srv.URL, 0)
	ctx := context.Background()

	likes, err := c.GetLikes(ctx, "at://did:plc:alice/app.bsky.feed.post/1", "", 100)
	require.NoError(t, err)
	require.Len(t, likes.Items, 1)
	assert.Equal(t, "did:plc:fan", likes.Items[0].Actor.DID)
	assert.Empty(t, likes.Cursor)

	posts, err := c.SearchPosts(ctx, "sunny days", "", 25)
	require.NoError(t, err)
	require.Len(t, posts.Items, 1)
	assert.Equal(t, "sunny days", posts.Items[0].Post.Text)
	assert.Nil(t, posts.Items[0].Reason)
	assert.Equal(t, "25", posts.Cursor)

	did, err := c.ResolveHandle(ctx, "alice.bsky.social")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)
}

func TestClient_APIError(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"app.bsky.feed.getLikes": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": "RateLimitExceeded", "message": "Rate Limit Exceeded"}`))
		},
		"app.bsky.actor.getProfile": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		},
	})
	c := NewClient(srv.URL, 0)

	_, err := c.GetLikes(context.Background(), "at://post", "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.bsky.feed.getLikes: API error (status 429)")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "app.bsky.feed.getLikes", apiErr.NSID)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "RateLimitExceeded", apiErr.Type)
	assert.Equal(t, "Rate Limit Exceeded", apiErr.Message)

	_, err = c.GetProfile(context.Background(), "alice")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Type)
	assert.Equal(t, "upstream down", apiErr.Body)
}

func TestClient_LoginSetsBearer(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"com.atproto.server.createSession": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			respond(`{"accessJwt": "jwt-token", "did": "did:plc:me", "handle": "me.test"}`)(w, r)
		},
		"app.bsky.graph.getFollows": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
			respond(`{"follows": []}`)(w, r)
		},
	})
	c := NewClient(srv.URL, 0)

	require.NoError(t, c.Login(context.Background(), "me.test", "app-password"))
	assert.Equal(t, "did:plc:me", c.DID())

	page, err := c.GetFollows(context.Background(), "did:plc:me", "", 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestClient_RefreshesExpiredSession(t *testing.T) {
	var (
		mu        sync.Mutex
		refreshes int
	)
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"com.atproto.server.createSession": respond(`{"accessJwt": "access-1", "refreshJwt": "refresh-1", "did": "did:plc:me"}`),
		"com.atproto.server.refreshSession": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer refresh-1", r.Header.Get("Authorization"))
			mu.Lock()
			refreshes++
			mu.Unlock()
			respond(`{"accessJwt": "access-2", "refreshJwt": "refresh-2", "did": "did:plc:me"}`)(w, r)
		},
		"app.bsky.graph.getFollows": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer access-2" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error": "ExpiredToken", "message": "Token has expired"}`))
				return
			}
			respond(`{"follows": [{"did": "did:plc:bob", "handle": "bob.test"}]}`)(w, r)
		},
	})
	c := NewClient(srv.URL, 0)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "me.test", "app-password"))

	page, err := c.GetFollows(ctx, "did:plc:me", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	_, err = c.GetFollows(ctx, "did:plc:me", "", 10)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, refreshes, "the refreshed token is reused")
}

func TestClient_RefreshFailure(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"com.atproto.server.createSession": respond(`{"accessJwt": "access-1", "refreshJwt": "refresh-1", "did": "did:plc:me"}`),
		"com.atproto.server.refreshSession": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "ExpiredToken", "message": "Refresh token has expired"}`))
		},
		"app.bsky.feed.getTimeline": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "ExpiredToken"}`))
		},
	})
	c := NewClient(srv.URL, 0)
	require.NoError(t, c.Login(context.Background(), "me.test", "app-password"))

	_, err := c.GetTimeline(context.Background(), "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.bsky.feed.getTimeline: refresh session")
	assert.Contains(t, err.Error(), "com.atproto.server.refreshSession")
}

func TestClient_GetFeedAndTimeline(t *testing.T) {
	const feedURI = "at://did:plc:gen/app.bsky.feed.generator/cats"
	feed := `{"feed": [{"post": {"uri": "at://did:plc:x/app.bsky.feed.post/1", "record": {"text": "meow"}}}], "cursor": "c2"}`

	srv := newTestServer(t, map[string]http.HandlerFunc{
		"app.bsky.feed.getFeed": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, feedURI, r.URL.Query().Get("feed"))
			assert.Equal(t, "c1", r.URL.Query().Get("cursor"))
			respond(feed)(w, r)
		},
		"com.atproto.server.createSession": respond(`{"accessJwt": "jwt", "did": "did:plc:me"}`),
		"app.bsky.feed.getTimeline": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			respond(feed)(w, r)
		},
	})
	c := NewClient(srv.URL, 0)
	ctx := context.Background()

	page, err := c.GetFeed(ctx, feedURI, "c1", 30)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "meow", page.Items[0].Post.Text)
	assert.Equal(t, "c2", page.Cursor)

	_, err = c.GetTimeline(ctx, "", 5)
	require.ErrorIs(t, err, domain.ErrAuthRequired)

	require.NoError(t, c.Login(ctx, "me.test", "app-password"))
	page, err = c.GetTimeline(ctx, "", 5)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestClient_RateLimitHonorsContext(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"com.atproto.identity.resolveHandle": respond(`{"did": "did:plc:alice"}`),
	})
	c := NewClient(srv.URL, 0.001)

	_, err := c.ResolveHandle(context.Background(), "alice.test")
	require.NoError(t, err, "the first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ResolveHandle(ctx, "alice.test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
