package stats

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/skystats/internal/domain"
)

var (
	subject = &domain.ProfileDetailed{
		Profile:        domain.Profile{DID: "did:plc:subject", Handle: "subject.bsky.social", Avatar: "https://cdn.example/avatar.jpg"},
		FollowersCount: 120,
		FollowsCount:   80,
		PostsCount:     40,
	}
	posted = time.Date(2024, time.March, 3, 15, 30, 0, 0, time.UTC) // a Sunday
)

func newTestAggregator() *Aggregator {
	return &Aggregator{
		Cutoff:    DefaultCutoff,
		Location:  time.UTC,
		Lexicon:   DefaultLexicon(),
		Sentiment: NewVaderScorer(),
		Now:       func() time.Time { return time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func textPost(uri, text string, likes int) domain.EnrichedPost {
	return domain.EnrichedPost{FeedItem: domain.FeedItem{Post: domain.Post{
		URI:       uri,
		Text:      text,
		CreatedAt: posted,
		IndexedAt: posted,
		LikeCount: likes,
	}}}
}

func repost(uri string, embed domain.EmbedKind) domain.EnrichedPost {
	return domain.EnrichedPost{FeedItem: domain.FeedItem{
		Post: domain.Post{
			URI:       uri,
			CreatedAt: posted,
			IndexedAt: posted,
			Embed:     embed,
		},
		Reason: &domain.RepostReason{By: subject.Profile, IndexedAt: posted},
	}}
}

func fan(n int) domain.Like {
	return domain.Like{Actor: domain.Profile{DID: fmt.Sprintf("did:plc:fan%d", n), Handle: fmt.Sprintf("fan%d.bsky.social", n)}}
}

func TestAggregate_TextPostAndRepost(t *testing.T) {
	feed := []domain.EnrichedPost{
		textPost("at://subject/post/1", "I love sunny days #happy", 5),
		repost("at://other/post/9", domain.EmbedImage),
	}

	r := newTestAggregator().Aggregate(Input{Profile: subject, Feed: feed})

	assert.Equal(t, 5, r.Totals.Likes)
	assert.Equal(t, domain.PostTypeCounts{Standalone: 1, Repost: 1}, r.PostTypes.Counts)
	assert.Equal(t, domain.ContentTypeCounts{Text: 1, Image: 1}, r.ContentTypes.Counts)

	require.NotNil(t, r.BestPost)
	assert.Equal(t, "at://subject/post/1", r.BestPost.Post.URI)
	assert.Equal(t, 5, r.BestPost.InteractionCount)
	assert.Zero(t, feed[0].InteractionCount, "input must not be mutated")

	assert.Equal(t, map[string]int{"i": 1, "love": 1, "sunny": 1, "days": 1, "happy": 1}, r.Words.WordCounts)
	assert.Equal(t, 3, r.Emotions["joy"], "love, sunny and happy all carry joy")
	assert.Equal(t, 1, r.Emotions["trust"])
	assert.Equal(t, 3, r.Emotions["positive"])

	require.NotNil(t, r.Sentiments.Compound)
	assert.Greater(t, *r.Sentiments.Compound, 0.5)
	assert.Greater(t, *r.Sentiments.Positive, *r.Sentiments.Negative)

	assert.Equal(t, 2, r.Activity.Weekday[time.Sunday])
	assert.Equal(t, 2, r.Activity.Hour[15])
	assert.Equal(t, int(time.Sunday), r.Activity.MostActiveDay)
	assert.Equal(t, 15, r.Activity.MostActiveHour)

	assert.Equal(t, "subject.bsky.social", r.Basic.Name)
	assert.Equal(t, 120, r.Basic.FollowersCount)
	assert.Equal(t, 80, r.Basic.FollowingCount)
	assert.Same(t, subject, r.User)
	assert.Equal(t, feed, r.AuthorFeed)
}

func TestAggregate_Emotions(t *testing.T) {
	r := newTestAggregator().Aggregate(Input{Feed: []domain.EnrichedPost{
		textPost("at://p/1", "I love sunny days #happy", 0),
	}})

	// love: joy positive; sunny: anticipation joy positive surprise;
	// happy: anticipation joy positive trust.
	assert.Equal(t, map[string]int{
		"joy":          3,
		"positive":     3,
		"anticipation": 2,
		"surprise":     1,
		"trust":        1,
	}, r.Emotions)
}

func TestAggregate_CutoffExcludesOldPosts(t *testing.T) {
	old := textPost("at://p/old", "terrible awful day", 1000)
	old.Post.CreatedAt = time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC)
	old.Post.Embed = domain.EmbedVideo
	old.Post.ReplyCount = 7
	old.Likes = []domain.Like{fan(1)}

	atCutoff := textPost("at://p/new", "good", 2)
	atCutoff.Post.CreatedAt = DefaultCutoff

	undated := textPost("at://p/undated", "", 1)
	undated.Post.CreatedAt = time.Time{}

	r := newTestAggregator().Aggregate(Input{Feed: []domain.EnrichedPost{old, atCutoff, undated}})

	assert.Equal(t, domain.Totals{Likes: 3}, r.Totals)
	assert.Equal(t, 2, r.PostTypes.Counts.Total())
	assert.Zero(t, r.ContentTypes.Counts.Video)
	assert.Empty(t, r.BiggestFans)
	assert.NotContains(t, r.Words.WordCounts, "terrible")
	assert.Equal(t, "at://p/new", r.BestPost.Post.URI)

	hist := 0
	for _, v := range r.Activity.Weekday {
		hist += v
	}
	assert.Equal(t, 2, hist)
}

func TestAggregate_ConfigurableCutoff(t *testing.T) {
	agg := newTestAggregator()
	agg.Cutoff = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	r := agg.Aggregate(Input{Feed: []domain.EnrichedPost{textPost("at://p/1", "hello", 3)}})
	assert.Zero(t, r.Totals.Likes)
	assert.Nil(t, r.BestPost)
}

func TestAggregate_Classification(t *testing.T) {
	tt := []struct {
		name        string
		item        domain.EnrichedPost
		postType    domain.PostTypeCounts
		contentType domain.ContentTypeCounts
	}{
		{
			name:        "plain text",
			item:        textPost("at://p/1", "hello", 0),
			postType:    domain.PostTypeCounts{Standalone: 1},
			contentType: domain.ContentTypeCounts{Text: 1},
		},
		{
			name: "reply with image",
			item: func() domain.EnrichedPost {
				p := textPost("at://p/2", "look", 0)
				p.Reply = &domain.ReplyRef{RootURI: "at://root", ParentURI: "at://root"}
				p.Post.Embed = domain.EmbedImage
				return p
			}(),
			postType:    domain.PostTypeCounts{Reply: 1},
			contentType: domain.ContentTypeCounts{Image: 1},
		},
		{
			name: "reposted reply counts as reply",
			item: func() domain.EnrichedPost {
				p := repost("at://p/3", domain.EmbedQuote)
				p.Reply = &domain.ReplyRef{RootURI: "at://root", ParentURI: "at://root"}
				return p
			}(),
			postType:    domain.PostTypeCounts{Reply: 1},
			contentType: domain.ContentTypeCounts{Quote: 1},
		},
		{
			name:        "repost of video",
			item:        repost("at://p/4", domain.EmbedVideo),
			postType:    domain.PostTypeCounts{Repost: 1},
			contentType: domain.ContentTypeCounts{Video: 1},
		},
		{
			name: "external link",
			item: func() domain.EnrichedPost {
				p := textPost("at://p/5", "read this", 0)
				p.Post.Embed = domain.EmbedExternal
				return p
			}(),
			postType:    domain.PostTypeCounts{Standalone: 1},
			contentType: domain.ContentTypeCounts{Link: 1},
		},
		{
			name:        "repost without embed falls back to text",
			item:        repost("at://p/6", domain.EmbedNone),
			postType:    domain.PostTypeCounts{Repost: 1},
			contentType: domain.ContentTypeCounts{Text: 1},
		},
	}

	for i := range tt {
		tc := tt[i]

		t.Run(tc.name, func(t *testing.T) {
			r := newTestAggregator().Aggregate(Input{Feed: []domain.EnrichedPost{tc.item}})
			assert.Equal(t, tc.postType, r.PostTypes.Counts)
			assert.Equal(t, tc.contentType, r.ContentTypes.Counts)
			assert.Equal(t, 1, r.PostTypes.Counts.Total())
			assert.Equal(t, 1, r.ContentTypes.Counts.Total())
		})
	}
}

func TestAggregate_Percentages(t *testing.T) {
	var feed []domain.EnrichedPost
	for i := 0; i < 7; i++ {
		p := textPost(fmt.Sprintf("at://p/%d", i), "x", 0)
		switch i % 3 {
		case 0:
			p.Post.Embed = domain.EmbedImage
		case 1:
			p.Reply = &domain.ReplyRef{}
			p.Post.Embed = domain.EmbedExternal
		}
		feed = append(feed, p)
	}
	feed = append(feed, repost("at://p/r", domain.EmbedQuote))

	r := newTestAggregator().Aggregate(Input{Feed: feed})

	pt := r.PostTypes.Percentages
	require.NotNil(t, pt.Standalone)
	assert.InDelta(t, 100, *pt.Standalone+*pt.Reply+*pt.Repost, 1e-9)

	ct := r.ContentTypes.Percentages
	require.NotNil(t, ct.Text)
	assert.InDelta(t, 100, *ct.Text+*ct.Image+*ct.Video+*ct.Link+*ct.Quote, 1e-9)
	assert.InDelta(t, 12.5, *ct.Quote, 1e-9)
}

func TestAggregate_EmptyFeedLeavesRatiosUndefined(t *testing.T) {
	profile := *subject
	profile.PostsCount = 0

	r := newTestAggregator().Aggregate(Input{Profile: &profile})

	assert.Nil(t, r.BestPost)
	assert.Nil(t, r.PostTypes.Percentages.Standalone)
	assert.Nil(t, r.ContentTypes.Percentages.Text)
	assert.Nil(t, r.Sentiments.Compound)
	assert.Nil(t, r.SignUp.Date)
	assert.Nil(t, r.Averages.PostsPerDay)
	assert.Nil(t, r.Averages.LikesPerPost)
	assert.Zero(t, r.Activity.MostActiveDay)
	assert.Zero(t, r.Activity.MostActiveHour)
	assert.NotNil(t, r.Words.MostCommonWords)
	assert.NotNil(t, r.BiggestFans)

	data, err := json.Marshal(r)
	require.NoError(t, err, "undefined values must encode, not fail as NaN")
	assert.Contains(t, string(data), `"averagePostsPerDay":null`)
	assert.Contains(t, string(data), `"compound":null`)
}

func TestAggregate_SignUpAndAverages(t *testing.T) {
	signUp := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	identity := &domain.IdentityInfo{
		DID: "did:plc:subject",
		Audit: []domain.AuditEntry{
			{CreatedAt: signUp, Operation: domain.PLCOp{Sig: "a"}},
			{CreatedAt: signUp.Add(48 * time.Hour), Operation: domain.PLCOp{Sig: "b"}},
		},
	}
	feed := []domain.EnrichedPost{textPost("at://p/1", "hi", 31)}
	feed[0].Post.ReplyCount = 10

	r := newTestAggregator().Aggregate(Input{Profile: subject, Feed: feed, Identity: identity})

	require.NotNil(t, r.SignUp.Date)
	assert.Equal(t, signUp, *r.SignUp.Date)
	// 2024-05-01T12:00 to 2024-06-01T00:00 is 30.5 days.
	assert.Equal(t, 30, *r.SignUp.DaysSince)
	assert.Equal(t, 30*24*60+12*60, *r.SignUp.MinutesSince)

	assert.InDelta(t, 40.0/30, *r.Averages.PostsPerDay, 1e-9)
	assert.InDelta(t, 31.0/30, *r.Averages.LikesPerDay, 1e-9)
	assert.InDelta(t, 31.0/40, *r.Averages.LikesPerPost, 1e-9)
	assert.InDelta(t, 10.0/40, *r.Averages.RepliesPerPost, 1e-9)
}

func TestAggregate_SignUpToday(t *testing.T) {
	agg := newTestAggregator()
	identity := &domain.IdentityInfo{Audit: []domain.AuditEntry{{CreatedAt: agg.Now().Add(-time.Hour)}}}

	r := agg.Aggregate(Input{Profile: subject, Identity: identity})
	assert.Equal(t, 0, *r.SignUp.DaysSince)
	assert.Equal(t, 60, *r.SignUp.MinutesSince)
	assert.Nil(t, r.Averages.PostsPerDay, "zero days since sign-up must not divide")
	assert.Nil(t, r.Averages.LikesPerDay)
}

func TestAggregate_BestPost(t *testing.T) {
	first := textPost("at://p/1", "a", 3)
	tie := textPost("at://p/2", "b", 1)
	tie.Post.ReplyCount = 2
	boosted := repost("at://p/3", domain.EmbedNone)
	boosted.Post.LikeCount = 500
	winner := textPost("at://p/4", "c", 2)
	winner.Post.RepostCount = 1
	winner.Post.QuoteCount = 1

	r := newTestAggregator().Aggregate(Input{Feed: []domain.EnrichedPost{first, tie, boosted, winner}})
	require.NotNil(t, r.BestPost)
	assert.Equal(t, "at://p/4", r.BestPost.Post.URI)
	assert.Equal(t, 4, r.BestPost.InteractionCount)

	r = newTestAggregator().Aggregate(Input{Feed: []domain.EnrichedPost{first, tie, boosted}})
	assert.Equal(t, "at://p/1", r.BestPost.Post.URI, "ties keep the earlier post")

	r = newTestAggregator().Aggregate(Input{Feed: []domain.EnrichedPost{boosted}})
	assert.Nil(t, r.BestPost, "reposts are never the best post")
}

func TestAggregate_BiggestFans(t *testing.T) {
	var feed []domain.EnrichedPost
	// fan0..fan11 like post 0; fan5 and fan7 like post 1 too; fan7 also post 2.
	p0 := textPost("at://p/0", "", 0)
	for i := 0; i < 12; i++ {
		p0.Likes = append(p0.Likes, fan(i))
	}
	p1 := textPost("at://p/1", "", 0)
	renamed := fan(5)
	renamed.Actor.DisplayName = "Fan Five"
	p1.Likes = []domain.Like{fan(7), renamed}
	p2 := textPost("at://p/2", "", 0)
	p2.Likes = []domain.Like{fan(7)}
	feed = append(feed, p0, p1, p2)

	r := newTestAggregator().Aggregate(Input{Feed: feed})

	require.Len(t, r.BiggestFans, 10)
	assert.Equal(t, "did:plc:fan7", r.BiggestFans[0].Actor.DID)
	assert.Equal(t, 3, r.BiggestFans[0].Likes)
	assert.Equal(t, "did:plc:fan5", r.BiggestFans[1].Actor.DID)
	assert.Equal(t, "Fan Five", r.BiggestFans[1].Actor.DisplayName, "last snapshot of an actor wins")

	// Remaining fans tie at one like and keep discovery order.
	want := []string{"did:plc:fan0", "did:plc:fan1", "did:plc:fan2", "did:plc:fan3", "did:plc:fan4", "did:plc:fan6", "did:plc:fan8", "did:plc:fan9"}
	for i, did := range want {
		assert.Equal(t, did, r.BiggestFans[i+2].Actor.DID)
		assert.Equal(t, 1, r.BiggestFans[i+2].Likes)
	}
	for i := 1; i < len(r.BiggestFans); i++ {
		assert.GreaterOrEqual(t, r.BiggestFans[i-1].Likes, r.BiggestFans[i].Likes)
	}
}

func TestAggregate_Words(t *testing.T) {
	long := "supercalifragilistic"
	var text string
	for i := 0; i < 120; i++ {
		text += fmt.Sprintf("w%d ", i)
	}
	feed := []domain.EnrichedPost{
		textPost("at://p/1", text+"Hello hello HELLO "+long, 0),
		textPost("at://p/2", "World, hello! https://example.com/path", 0),
	}

	r := newTestAggregator().Aggregate(Input{Feed: feed})

	assert.Equal(t, 4, r.Words.WordCounts["hello"])
	assert.NotContains(t, r.Words.WordCounts, long)
	assert.Equal(t, 1, r.Words.WordCounts["https"])
	assert.Equal(t, 1, r.Words.WordCounts["example"])

	require.Len(t, r.Words.MostCommonWords, 100)
	assert.Equal(t, domain.WordCount{Word: "hello", Count: 4}, r.Words.MostCommonWords[0])
	assert.Equal(t, "w0", r.Words.MostCommonWords[1].Word, "ties keep discovery order")
	assert.Equal(t, "w98", r.Words.MostCommonWords[99].Word)
	for i := 1; i < len(r.Words.MostCommonWords); i++ {
		assert.GreaterOrEqual(t, r.Words.MostCommonWords[i-1].Count, r.Words.MostCommonWords[i].Count)
	}
}

func TestAggregate_ActivityUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	agg := newTestAggregator()
	agg.Location = tokyo

	p := textPost("at://p/1", "", 0)
	p.Post.IndexedAt = time.Date(2024, time.March, 2, 20, 0, 0, 0, time.UTC) // Saturday 20:00 UTC

	r := agg.Aggregate(Input{Feed: []domain.EnrichedPost{p}})
	assert.Equal(t, 1, r.Activity.Weekday[time.Sunday])
	assert.Equal(t, 1, r.Activity.Hour[5])
	assert.Equal(t, int(time.Sunday), r.Activity.MostActiveDay)
	assert.Equal(t, 5, r.Activity.MostActiveHour)
}

func TestAggregate_MostActiveTiesPickLowestIndex(t *testing.T) {
	mon := textPost("at://p/1", "", 0)
	mon.Post.IndexedAt = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	fri := textPost("at://p/2", "", 0)
	fri.Post.IndexedAt = time.Date(2024, time.March, 8, 7, 0, 0, 0, time.UTC)

	r := newTestAggregator().Aggregate(Input{Feed: []domain.EnrichedPost{fri, mon}})
	assert.Equal(t, int(time.Monday), r.Activity.MostActiveDay)
	assert.Equal(t, 7, r.Activity.MostActiveHour)
}

func TestAggregate_Idempotent(t *testing.T) {
	feed := []domain.EnrichedPost{
		textPost("at://p/1", "I love sunny days", 5),
		textPost("at://p/2", "bad weather, sad", 1),
		repost("at://p/3", domain.EmbedImage),
	}
	feed[0].Likes = []domain.Like{fan(1), fan(2)}
	feed[1].Likes = []domain.Like{fan(2)}
	in := Input{Profile: subject, Feed: feed, Identity: &domain.IdentityInfo{Audit: []domain.AuditEntry{{CreatedAt: posted}}}}

	agg := newTestAggregator()
	first, err := json.Marshal(agg.Aggregate(in))
	require.NoError(t, err)
	second, err := json.Marshal(agg.Aggregate(in))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
