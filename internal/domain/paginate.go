package domain

import "context"

// MaxPageSize is the largest page the AppView serves per request.
const MaxPageSize = 100

// PageFunc fetches a single page starting at cursor.
type PageFunc[T any] func(ctx context.Context, cursor string, limit int) (Page[T], error)

// Paginate follows cursors from the first page until at least target items
// have been collected or the collection is exhausted. Each request asks for
// min(remaining, perPage) items; perPage is clamped to [1, MaxPageSize]. A
// target below one fetches a single page.
//
// onPage, if non-nil, is called with each page's items as soon as the page
// arrives. Paginate returns the items in remote order and the cursor the last
// page returned, so a later call can continue from there. An error from fetch
// aborts the whole run.
func Paginate[T any](ctx context.Context, fetch PageFunc[T], target, perPage int, onPage func([]T)) ([]T, string, error) {
	return PaginateFrom(ctx, fetch, "", target, perPage, onPage)
}

// PaginateFrom is Paginate starting at cursor instead of the first page.
func PaginateFrom[T any](ctx context.Context, fetch PageFunc[T], cursor string, target, perPage int, onPage func([]T)) ([]T, string, error) {
	perPage = clampPageSize(perPage)

	items := make([]T, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		limit := perPage
		if remaining := target - len(items); remaining > 0 && remaining < limit {
			limit = remaining
		}

		page, err := fetch(ctx, cursor, limit)
		if err != nil {
			return nil, "", err
		}

		items = append(items, page.Items...)
		if onPage != nil && len(page.Items) > 0 {
			onPage(page.Items)
		}

		// A server handing back the cursor we sent would loop forever.
		stuck := page.Cursor != "" && page.Cursor == cursor
		cursor = page.Cursor
		if cursor == "" || stuck || len(items) >= target {
			return items, cursor, nil
		}
	}
}

func clampPageSize(n int) int {
	if n < 1 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
