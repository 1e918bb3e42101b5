package domain

import (
	"encoding/json"
	"time"
)

// Report is the statistics summary of one account. Fields that cannot be
// computed (a zero divisor, no sign-up date) are nil and encode as null.
type Report struct {
	Basic        BasicStats       `json:"basic"`
	Totals       Totals           `json:"totals"`
	BestPost     *EnrichedPost    `json:"bestPost"`
	PostTypes    PostTypeStats    `json:"postTypes"`
	ContentTypes ContentTypeStats `json:"contentTypes"`
	Words        WordStats        `json:"words"`
	Emotions     map[string]int   `json:"emotions"`
	Sentiments   Sentiments       `json:"sentiments"`
	SignUp       SignUp           `json:"signUp"`
	Averages     Averages         `json:"averages"`
	Activity     Activity         `json:"activity"`
	BiggestFans  []Fan            `json:"biggestFans"`

	// The input the report was computed from, passed through unchanged.
	User       *ProfileDetailed `json:"user"`
	Followers  []Profile        `json:"followers"`
	AuthorFeed []EnrichedPost   `json:"authorFeed"`
	DIDInfo    *IdentityInfo    `json:"didInfo"`
}

type BasicStats struct {
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
	PostsCount     int    `json:"postsCount"`
	Name           string `json:"name"`
	Avatar         string `json:"avatar,omitempty"`
}

type Totals struct {
	Likes   int `json:"totalLikes"`
	Replies int `json:"totalReplies"`
	Reposts int `json:"totalReposts"`
	Quotes  int `json:"totalQuotes"`
}

type PostTypeCounts struct {
	Standalone int `json:"standalonePosts"`
	Reply      int `json:"replyPosts"`
	Repost     int `json:"repostPosts"`
}

func (c PostTypeCounts) Total() int {
	return c.Standalone + c.Reply + c.Repost
}

type PostTypePercentages struct {
	Standalone *float64 `json:"standalonePosts"`
	Reply      *float64 `json:"replyPosts"`
	Repost     *float64 `json:"repostPosts"`
}

type PostTypeStats struct {
	Counts      PostTypeCounts      `json:"counts"`
	Percentages PostTypePercentages `json:"percentages"`
}

type ContentTypeCounts struct {
	Text  int `json:"textPosts"`
	Image int `json:"imagePosts"`
	Video int `json:"videoPosts"`
	Link  int `json:"linkPosts"`
	Quote int `json:"quotePosts"`
}

func (c ContentTypeCounts) Total() int {
	return c.Text + c.Image + c.Video + c.Link + c.Quote
}

type ContentTypePercentages struct {
	Text  *float64 `json:"textPosts"`
	Image *float64 `json:"imagePosts"`
	Video *float64 `json:"videoPosts"`
	Link  *float64 `json:"linkPosts"`
	Quote *float64 `json:"quotePosts"`
}

type ContentTypeStats struct {
	Counts      ContentTypeCounts      `json:"counts"`
	Percentages ContentTypePercentages `json:"percentages"`
}

type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

type WordStats struct {
	WordCounts      map[string]int `json:"wordCounts"`
	MostCommonWords []WordCount    `json:"mostCommonWords"`
}

// Sentiments holds the mean sentiment scores over all posts with text.
type Sentiments struct {
	Positive *float64 `json:"pos"`
	Neutral  *float64 `json:"neu"`
	Negative *float64 `json:"neg"`
	Compound *float64 `json:"compound"`
}

type SignUp struct {
	Date         *time.Time `json:"signUpDate"`
	DaysSince    *int       `json:"daysSinceSignUp"`
	MinutesSince *int       `json:"minutesSinceSignUp"`
}

type Averages struct {
	PostsPerDay    *float64 `json:"averagePostsPerDay"`
	LikesPerDay    *float64 `json:"averageLikesPerDay"`
	LikesPerPost   *float64 `json:"averageLikesPerPost"`
	RepliesPerPost *float64 `json:"averageRepliesPerPost"`
}

// Activity holds post histograms. Weekday is indexed Sunday = 0.
type Activity struct {
	Weekday        [7]int  `json:"weekdayActivity"`
	Hour           [24]int `json:"hourActivity"`
	MostActiveDay  int     `json:"mostActiveDay"`
	MostActiveHour int     `json:"mostActiveHour"`
}

// Fan is an actor together with the number of the subject's posts they liked.
type Fan struct {
	Likes int     `json:"likes"`
	Actor Profile `json:"actor"`
}

// Derived returns a copy of the report without the fetched input, keeping only
// what was computed. The best post is kept without its likes.
func (r *Report) Derived() *Report {
	out := *r
	out.User = nil
	out.Followers = nil
	out.AuthorFeed = nil
	out.DIDInfo = nil
	if r.BestPost != nil {
		best := *r.BestPost
		best.Likes = nil
		out.BestPost = &best
	}
	return &out
}

// ReportSummary is an archived report.
type ReportSummary struct {
	ID          string    `json:"id"`
	DID         string    `json:"did"`
	Handle      string    `json:"handle"`
	GeneratedAt time.Time `json:"generatedAt"`

	// FeedCursor is where the author feed fetch stopped.
	FeedCursor string `json:"feedCursor,omitempty"`

	PostsAnalyzed int `json:"postsAnalyzed"`

	// Stats is the JSON encoding of Report.Derived.
	Stats json.RawMessage `json:"stats"`
}
