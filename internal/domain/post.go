package domain

import "time"

// EmbedKind classifies the non-text content attached to a post. A post carries
// at most one kind.
type EmbedKind string

const (
	EmbedNone     EmbedKind = ""
	EmbedQuote    EmbedKind = "quote"
	EmbedImage    EmbedKind = "image"
	EmbedVideo    EmbedKind = "video"
	EmbedExternal EmbedKind = "external"
)

// Post is a snapshot of a BlueSky post as returned by the AppView.
type Post struct {
	// URI is the AT-URI of the post (e.g. at://did:plc:abc/app.bsky.feed.post/3l3qo2vuowo2b).
	URI string `json:"uri"`

	// CID is the content identifier of the record.
	CID string `json:"cid"`

	Author Profile `json:"author"`

	// Text is the post body. Empty when the record carries no text.
	Text string `json:"text,omitempty"`

	// CreatedAt is the author-supplied creation time of the record.
	CreatedAt time.Time `json:"createdAt"`

	// IndexedAt is when the AppView indexed the post.
	IndexedAt time.Time `json:"indexedAt"`

	Embed EmbedKind `json:"embed,omitempty"`

	LikeCount   int `json:"likeCount"`
	ReplyCount  int `json:"replyCount"`
	RepostCount int `json:"repostCount"`
	QuoteCount  int `json:"quoteCount"`
}

// InteractionCount is the sum of the post's like, reply, repost and quote
// counters.
func (p *Post) InteractionCount() int {
	return p.LikeCount + p.ReplyCount + p.RepostCount + p.QuoteCount
}

// ReplyRef points at the thread a reply belongs to.
type ReplyRef struct {
	RootURI   string `json:"root"`
	ParentURI string `json:"parent"`
}

// RepostReason is attached to feed items that appear in an author feed
// because the author reposted them.
type RepostReason struct {
	By        Profile   `json:"by"`
	IndexedAt time.Time `json:"indexedAt"`
}

// FeedItem is a single entry of an author feed or search result.
type FeedItem struct {
	Post   Post          `json:"post"`
	Reply  *ReplyRef     `json:"reply,omitempty"`
	Reason *RepostReason `json:"reason,omitempty"`
}

// IsRepost reports whether the item is in the feed because it was reposted.
func (f *FeedItem) IsRepost() bool {
	return f.Reason != nil
}

// Like records an actor liking a post.
type Like struct {
	Actor     Profile   `json:"actor"`
	CreatedAt time.Time `json:"createdAt"`
	IndexedAt time.Time `json:"indexedAt"`
}

// EnrichedPost is a feed item together with the likes fetched for it.
type EnrichedPost struct {
	FeedItem

	// Likes is ordered the way the AppView returned them, most recent first.
	Likes []Like `json:"likes,omitempty"`

	// InteractionCount is only set on the best post of a report.
	InteractionCount int `json:"interactionCount,omitempty"`
}

// Page is one page of a cursor-paginated collection. An empty Cursor means the
// collection is exhausted.
type Page[T any] struct {
	Items  []T
	Cursor string
}
