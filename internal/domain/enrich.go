package domain

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EnrichedAuthorFeed fetches actor's feed and the likes of every post in it.
//
// Pages are fetched one after another. As soon as a page arrives, a likes
// fetch is started for each of its posts without waiting for earlier ones, so
// the whole run takes roughly the pagination time plus the slowest likes
// fetch. All likes fetches are joined before anything is returned, including
// when pagination fails.
//
// opts.Cursor resumes the feed where an earlier run stopped. A post URI seen
// on an earlier page is skipped. Output order is page order.
// When a likes fetch fails the run fails, unless the Fetcher tolerates likes
// errors, in which case the post is returned without likes.
func (f *Fetcher) EnrichedAuthorFeed(ctx context.Context, actor string, opts FetchOptions) ([]EnrichedPost, string, error) {
	g, gctx := errgroup.WithContext(ctx)
	if f.limits.MaxConcurrentLikes > 0 {
		g.SetLimit(f.limits.MaxConcurrentLikes)
	}

	likesOpts := FetchOptions{Limit: f.limits.LikesLimit}

	var (
		mu    sync.Mutex
		likes = make(map[string][]Like)
		seen  = make(map[string]struct{})
		items []FeedItem
	)

	onPage := func(page []FeedItem) {
		for _, item := range page {
			uri := item.Post.URI
			if _, ok := seen[uri]; ok {
				continue
			}
			seen[uri] = struct{}{}
			items = append(items, item)

			g.Go(func() error {
				postLikes, _, err := f.Likes(gctx, uri, likesOpts)
				if err != nil {
					if f.limits.TolerateLikesErrors {
						f.logger.Warn("likes fetch failed, keeping post without likes", "uri", uri, "error", err)
						return nil
					}
					return err
				}
				mu.Lock()
				likes[uri] = postLikes
				mu.Unlock()
				return nil
			})
		}
	}

	_, cursor, pageErr := PaginateFrom(gctx, f.authorFeedPage(actor), opts.Cursor, f.target(opts, f.limits.DefaultLimit), f.perPage(opts), onPage)
	waitErr := g.Wait()

	// A failed likes fetch cancels gctx, which can surface as a pagination
	// error; report the likes failure in that case.
	if waitErr != nil {
		return nil, "", fmt.Errorf("enrich author feed of %s: %w", actor, waitErr)
	}
	if pageErr != nil {
		return nil, "", fmt.Errorf("fetch author feed of %s: %w", actor, pageErr)
	}

	enriched := make([]EnrichedPost, len(items))
	for i, item := range items {
		enriched[i] = EnrichedPost{
			FeedItem: item,
			Likes:    likes[item.Post.URI],
		}
	}

	f.logger.Debug("author feed enriched", "actor", actor, "posts", len(enriched), "cursor", cursor)
	return enriched, cursor, nil
}
