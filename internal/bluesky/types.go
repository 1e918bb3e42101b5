package bluesky

import (
	"time"

	"github.com/blackmichael/skystats/internal/domain"
)

const (
	reasonRepost = "app.bsky.feed.defs#reasonRepost"

	embedRecord          = "app.bsky.embed.record#view"
	embedRecordWithMedia = "app.bsky.embed.recordWithMedia#view"
	embedImages          = "app.bsky.embed.images#view"
	embedVideo           = "app.bsky.embed.video#view"
	embedExternal        = "app.bsky.embed.external#view"
)

// sessionResponse is returned by createSession and refreshSession.
type sessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}

type resolveHandleResponse struct {
	DID string `json:"did"`
}

type profileView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Description string `json:"description"`
}

func (v profileView) toDomain() domain.Profile {
	return domain.Profile{
		DID:         v.DID,
		Handle:      v.Handle,
		DisplayName: v.DisplayName,
		Avatar:      v.Avatar,
		Description: v.Description,
	}
}

type profileViewDetailed struct {
	profileView
	FollowersCount int    `json:"followersCount"`
	FollowsCount   int    `json:"followsCount"`
	PostsCount     int    `json:"postsCount"`
	CreatedAt      string `json:"createdAt"`
}

func (v profileViewDetailed) toDomain() domain.ProfileDetailed {
	return domain.ProfileDetailed{
		Profile:        v.profileView.toDomain(),
		FollowersCount: v.FollowersCount,
		FollowsCount:   v.FollowsCount,
		PostsCount:     v.PostsCount,
		CreatedAt:      parseTime(v.CreatedAt),
	}
}

type followsResponse struct {
	Follows []profileView `json:"follows"`
	Cursor  string        `json:"cursor"`
}

type followersResponse struct {
	Followers []profileView `json:"followers"`
	Cursor    string        `json:"cursor"`
}

type postRecord struct {
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type embedView struct {
	Type string `json:"$type"`
}

type postView struct {
	URI         string      `json:"uri"`
	CID         string      `json:"cid"`
	Author      profileView `json:"author"`
	Record      postRecord  `json:"record"`
	Embed       *embedView  `json:"embed"`
	LikeCount   int         `json:"likeCount"`
	ReplyCount  int         `json:"replyCount"`
	RepostCount int         `json:"repostCount"`
	QuoteCount  int         `json:"quoteCount"`
	IndexedAt   string      `json:"indexedAt"`
}

func (v postView) toDomain() domain.Post {
	post := domain.Post{
		URI:         v.URI,
		CID:         v.CID,
		Author:      v.Author.toDomain(),
		Text:        v.Record.Text,
		CreatedAt:   parseTime(v.Record.CreatedAt),
		IndexedAt:   parseTime(v.IndexedAt),
		LikeCount:   v.LikeCount,
		ReplyCount:  v.ReplyCount,
		RepostCount: v.RepostCount,
		QuoteCount:  v.QuoteCount,
	}
	if v.Embed != nil {
		post.Embed = embedKind(v.Embed.Type)
	}
	return post
}

func embedKind(t string) domain.EmbedKind {
	switch t {
	case embedRecord, embedRecordWithMedia:
		return domain.EmbedQuote
	case embedImages:
		return domain.EmbedImage
	case embedVideo:
		return domain.EmbedVideo
	case embedExternal:
		return domain.EmbedExternal
	default:
		return domain.EmbedNone
	}
}

// postRef is a reply root or parent. Blocked and deleted posts only carry
// the URI.
type postRef struct {
	URI string `json:"uri"`
}

type replyRef struct {
	Root   postRef `json:"root"`
	Parent postRef `json:"parent"`
}

type reasonView struct {
	Type      string      `json:"$type"`
	By        profileView `json:"by"`
	IndexedAt string      `json:"indexedAt"`
}

type feedViewPost struct {
	Post   postView    `json:"post"`
	Reply  *replyRef   `json:"reply"`
	Reason *reasonView `json:"reason"`
}

func (v feedViewPost) toDomain() domain.FeedItem {
	item := domain.FeedItem{Post: v.Post.toDomain()}
	if v.Reply != nil {
		item.Reply = &domain.ReplyRef{RootURI: v.Reply.Root.URI, ParentURI: v.Reply.Parent.URI}
	}
	// Pinned posts also carry a reason; only reposts count.
	if v.Reason != nil && v.Reason.Type == reasonRepost {
		item.Reason = &domain.RepostReason{By: v.Reason.By.toDomain(), IndexedAt: parseTime(v.Reason.IndexedAt)}
	}
	return item
}

// feedResponse is the body of getAuthorFeed, getFeed and getTimeline.
type feedResponse struct {
	Feed   []feedViewPost `json:"feed"`
	Cursor string         `json:"cursor"`
}

func (r feedResponse) toPage() domain.Page[domain.FeedItem] {
	items := make([]domain.FeedItem, 0, len(r.Feed))
	for _, fv := range r.Feed {
		items = append(items, fv.toDomain())
	}
	return domain.Page[domain.FeedItem]{Items: items, Cursor: r.Cursor}
}

type likeView struct {
	Actor     profileView `json:"actor"`
	CreatedAt string      `json:"createdAt"`
	IndexedAt string      `json:"indexedAt"`
}

type likesResponse struct {
	URI    string     `json:"uri"`
	Likes  []likeView `json:"likes"`
	Cursor string     `json:"cursor"`
}

type searchPostsResponse struct {
	Posts     []postView `json:"posts"`
	Cursor    string     `json:"cursor"`
	HitsTotal int        `json:"hitsTotal"`
}

// parseTime parses an AT Protocol datetime. Records are author-supplied and
// not always well formed; those yield the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
