package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/blackmichael/skystats/internal/domain"
)

const (
	defaultService = "https://public.api.bsky.app"

	nsidCreateSession  = "com.atproto.server.createSession"
	nsidRefreshSession = "com.atproto.server.refreshSession"
)

// Client is a read-only AT Protocol XRPC client for the AppView endpoints a
// report needs. It implements domain.Network.
type Client struct {
	service    string
	httpClient *http.Client
	limiter    *rate.Limiter

	// populated after Login, rotated by refreshSession
	mu         sync.RWMutex
	accessJwt  string
	refreshJwt string
	did        string

	refreshMu sync.Mutex
}

var _ domain.Network = (*Client)(nil)

// NewClient creates a new XRPC client. If service is empty, it defaults to
// the public AppView at https://public.api.bsky.app. A positive
// requestsPerSecond throttles every request made by the client.
func NewClient(service string, requestsPerSecond float64) *Client {
	if service == "" {
		service = defaultService
	}
	c := &Client{
		service: strings.TrimRight(service, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if requestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond)))
	}
	return c
}

// Login authenticates with the service and stores the session token. Use an
// App Password, not your account password. The public AppView does not accept
// sessions; point the client at a PDS such as https://bsky.social instead.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("create session: marshal request: %w", err)
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, nsidCreateSession, c.xrpcURL(nsidCreateSession), payload, "", &resp); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	c.setSession(resp)
	return nil
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.did
}

func (c *Client) setSession(s sessionResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessJwt = s.AccessJwt
	c.refreshJwt = s.RefreshJwt
	c.did = s.DID
}

func (c *Client) tokens() (access, refresh string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessJwt, c.refreshJwt
}

// refreshSession trades the refresh token for a new session. Concurrent
// callers that saw the same expired token share one refresh.
func (c *Client) refreshSession(ctx context.Context, expired string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	access, refresh := c.tokens()
	if access != expired {
		return nil
	}
	if refresh == "" {
		return errors.New("refresh session: no refresh token")
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, nsidRefreshSession, c.xrpcURL(nsidRefreshSession), nil, refresh, &resp); err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	c.setSession(resp)
	return nil
}

func (c *Client) GetProfile(ctx context.Context, actor string) (*domain.ProfileDetailed, error) {
	var resp profileViewDetailed
	if err := c.get(ctx, "app.bsky.actor.getProfile", url.Values{"actor": {actor}}, &resp); err != nil {
		return nil, err
	}
	profile := resp.toDomain()
	return &profile, nil
}

func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	var resp resolveHandleResponse
	if err := c.get(ctx, "com.atproto.identity.resolveHandle", url.Values{"handle": {handle}}, &resp); err != nil {
		return "", err
	}
	return resp.DID, nil
}

func (c *Client) GetFollows(ctx context.Context, actor, cursor string, limit int) (domain.Page[domain.Profile], error) {
	var resp followsResponse
	if err := c.get(ctx, "app.bsky.graph.getFollows", pageParams("actor", actor, cursor, limit), &resp); err != nil {
		return domain.Page[domain.Profile]{}, err
	}
	return domain.Page[domain.Profile]{Items: profiles(resp.Follows), Cursor: resp.Cursor}, nil
}

func (c *Client) GetFollowers(ctx context.Context, actor, cursor string, limit int) (domain.Page[domain.Profile], error) {
	var resp followersResponse
	if err := c.get(ctx, "app.bsky.graph.getFollowers", pageParams("actor", actor, cursor, limit), &resp); err != nil {
		return domain.Page[domain.Profile]{}, err
	}
	return domain.Page[domain.Profile]{Items: profiles(resp.Followers), Cursor: resp.Cursor}, nil
}

func (c *Client) GetAuthorFeed(ctx context.Context, actor, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	var resp feedResponse
	if err := c.get(ctx, "app.bsky.feed.getAuthorFeed", pageParams("actor", actor, cursor, limit), &resp); err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}
	return resp.toPage(), nil
}

// GetFeed reads a feed generator's skeleton, hydrated by the AppView.
func (c *Client) GetFeed(ctx context.Context, feedURI, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	var resp feedResponse
	if err := c.get(ctx, "app.bsky.feed.getFeed", pageParams("feed", feedURI, cursor, limit), &resp); err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}
	return resp.toPage(), nil
}

// GetTimeline reads the home timeline of the logged-in account.
func (c *Client) GetTimeline(ctx context.Context, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	const nsid = "app.bsky.feed.getTimeline"
	if access, _ := c.tokens(); access == "" {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("%s: %w", nsid, domain.ErrAuthRequired)
	}

	params := url.Values{}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp feedResponse
	if err := c.get(ctx, nsid, params, &resp); err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}
	return resp.toPage(), nil
}

func (c *Client) GetLikes(ctx context.Context, uri, cursor string, limit int) (domain.Page[domain.Like], error) {
	var resp likesResponse
	if err := c.get(ctx, "app.bsky.feed.getLikes", pageParams("uri", uri, cursor, limit), &resp); err != nil {
		return domain.Page[domain.Like]{}, err
	}

	likes := make([]domain.Like, 0, len(resp.Likes))
	for _, l := range resp.Likes {
		likes = append(likes, domain.Like{
			Actor:     l.Actor.toDomain(),
			CreatedAt: parseTime(l.CreatedAt),
			IndexedAt: parseTime(l.IndexedAt),
		})
	}
	return domain.Page[domain.Like]{Items: likes, Cursor: resp.Cursor}, nil
}

func (c *Client) SearchPosts(ctx context.Context, query, cursor string, limit int) (domain.Page[domain.FeedItem], error) {
	var resp searchPostsResponse
	if err := c.get(ctx, "app.bsky.feed.searchPosts", pageParams("q", query, cursor, limit), &resp); err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}

	items := make([]domain.FeedItem, 0, len(resp.Posts))
	for _, pv := range resp.Posts {
		items = append(items, domain.FeedItem{Post: pv.toDomain()})
	}
	return domain.Page[domain.FeedItem]{Items: items, Cursor: resp.Cursor}, nil
}

func pageParams(key, value, cursor string, limit int) url.Values {
	params := url.Values{key: {value}}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}

func profiles(views []profileView) []domain.Profile {
	out := make([]domain.Profile, 0, len(views))
	for _, v := range views {
		out = append(out, v.toDomain())
	}
	return out
}

func (c *Client) xrpcURL(nsid string) string {
	return c.service + "/xrpc/" + nsid
}

func (c *Client) get(ctx context.Context, nsid string, params url.Values, result any) error {
	u := c.xrpcURL(nsid)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.call(ctx, http.MethodGet, nsid, u, nil, result)
}

// call sends a request with the current access token. If the service rejects
// the token as expired, the session is refreshed once and the request retried.
func (c *Client) call(ctx context.Context, method, nsid, u string, payload []byte, result any) error {
	access, _ := c.tokens()
	err := c.do(ctx, method, nsid, u, payload, access, result)

	var apiErr *APIError
	if access == "" || !errors.As(err, &apiErr) || !apiErr.ExpiredToken() {
		return err
	}
	if err := c.refreshSession(ctx, access); err != nil {
		return fmt.Errorf("%s: %w", nsid, err)
	}

	access, _ = c.tokens()
	return c.do(ctx, method, nsid, u, payload, access, result)
}

func (c *Client) do(ctx context.Context, method, nsid, u string, payload []byte, token string, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: wait for rate limiter: %w", nsid, err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", nsid, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(nsid).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(nsid, "error").Inc()
		return fmt.Errorf("%s: send request: %w", nsid, err)
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(nsid, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", nsid, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(nsid, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%s: unmarshal response: %w", nsid, err)
		}
	}

	return nil
}
