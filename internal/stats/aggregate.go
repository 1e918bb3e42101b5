// Package stats computes account statistics from an enriched author feed.
package stats

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/blackmichael/skystats/internal/domain"
)

// DefaultCutoff drops posts created before 2024.
var DefaultCutoff = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

const (
	topFans       = 10
	topWords      = 100
	maxWordLength = 15
)

// Input is everything a report is computed from.
type Input struct {
	Profile   *domain.ProfileDetailed
	Followers []domain.Profile
	Feed      []domain.EnrichedPost
	Identity  *domain.IdentityInfo
}

// Aggregator computes reports. It keeps no state between calls and is safe
// for concurrent use.
type Aggregator struct {
	// Cutoff excludes posts created strictly before it. Posts without a
	// creation time are kept.
	Cutoff time.Time

	// Location is the time zone of the activity histograms. Nil means
	// time.Local.
	Location *time.Location

	Lexicon   EmotionLexicon
	Sentiment SentimentScorer

	// Now is the reference time for sign-up ages. Nil means time.Now.
	Now func() time.Time
}

// NewAggregator returns an Aggregator with the default cutoff, the embedded
// emotion lexicon and the VADER scorer.
func NewAggregator() *Aggregator {
	return &Aggregator{
		Cutoff:    DefaultCutoff,
		Lexicon:   DefaultLexicon(),
		Sentiment: NewVaderScorer(),
	}
}

// Aggregate computes the report for in in a single pass over the feed.
func (a *Aggregator) Aggregate(in Input) *domain.Report {
	loc := a.Location
	if loc == nil {
		loc = time.Local
	}

	acc := newAccumulator()
	for i := range in.Feed {
		post := &in.Feed[i]
		if created := post.Post.CreatedAt; !created.IsZero() && created.Before(a.Cutoff) {
			continue
		}
		acc.add(post, loc, a.Lexicon, a.Sentiment)
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return acc.report(in, now())
}

type fanTally struct {
	likes int
	actor domain.Profile
}

// accumulator holds the running state of one Aggregate call.
type accumulator struct {
	totals       domain.Totals
	postTypes    domain.PostTypeCounts
	contentTypes domain.ContentTypeCounts
	activity     domain.Activity

	best      *domain.EnrichedPost
	bestCount int

	words     map[string]int
	wordOrder []string
	emotions  map[string]int

	sentiment      Scores
	sentimentCount int

	fans     map[string]*fanTally
	fanOrder []string
}

func newAccumulator() *accumulator {
	return &accumulator{
		words:    make(map[string]int),
		emotions: make(map[string]int),
		fans:     make(map[string]*fanTally),
	}
}

func (acc *accumulator) add(post *domain.EnrichedPost, loc *time.Location, lex EmotionLexicon, scorer SentimentScorer) {
	p := &post.Post

	acc.totals.Likes += p.LikeCount
	acc.totals.Replies += p.ReplyCount
	acc.totals.Reposts += p.RepostCount
	acc.totals.Quotes += p.QuoteCount

	for _, like := range post.Likes {
		did := like.Actor.DID
		tally, ok := acc.fans[did]
		if !ok {
			tally = &fanTally{}
			acc.fans[did] = tally
			acc.fanOrder = append(acc.fanOrder, did)
		}
		tally.likes++
		tally.actor = like.Actor
	}

	interactions := p.InteractionCount()
	if !post.IsRepost() && (acc.best == nil || interactions > acc.bestCount) {
		acc.best = post
		acc.bestCount = interactions
	}

	indexed := p.IndexedAt.In(loc)
	acc.activity.Weekday[indexed.Weekday()]++
	acc.activity.Hour[indexed.Hour()]++

	switch {
	case post.Reply != nil:
		acc.postTypes.Reply++
	case post.IsRepost():
		acc.postTypes.Repost++
	default:
		acc.postTypes.Standalone++
	}

	switch p.Embed {
	case domain.EmbedQuote:
		acc.contentTypes.Quote++
	case domain.EmbedImage:
		acc.contentTypes.Image++
	case domain.EmbedVideo:
		acc.contentTypes.Video++
	case domain.EmbedExternal:
		acc.contentTypes.Link++
	default:
		acc.contentTypes.Text++
	}

	if p.Text == "" {
		return
	}

	for _, word := range Tokenize(p.Text) {
		if lex != nil {
			for _, emotion := range lex.Emotions(word) {
				acc.emotions[emotion]++
			}
		}
		if len(word) > maxWordLength {
			continue
		}
		if _, ok := acc.words[word]; !ok {
			acc.wordOrder = append(acc.wordOrder, word)
		}
		acc.words[word]++
	}

	if scorer != nil {
		s := scorer.PolarityScores(p.Text)
		acc.sentiment.Positive += s.Positive
		acc.sentiment.Neutral += s.Neutral
		acc.sentiment.Negative += s.Negative
		acc.sentiment.Compound += s.Compound
	}
	acc.sentimentCount++
}

func (acc *accumulator) report(in Input, now time.Time) *domain.Report {
	r := &domain.Report{
		Totals:     acc.totals,
		Emotions:   acc.emotions,
		Activity:   acc.activity,
		User:       in.Profile,
		Followers:  in.Followers,
		AuthorFeed: in.Feed,
		DIDInfo:    in.Identity,
	}

	postsCount := 0
	if in.Profile != nil {
		postsCount = in.Profile.PostsCount
		r.Basic = domain.BasicStats{
			FollowersCount: in.Profile.FollowersCount,
			FollowingCount: in.Profile.FollowsCount,
			PostsCount:     in.Profile.PostsCount,
			Name:           in.Profile.Name(),
			Avatar:         in.Profile.Avatar,
		}
	}

	if acc.best != nil {
		best := *acc.best
		best.InteractionCount = acc.bestCount
		r.BestPost = &best
	}

	if acc.sentimentCount > 0 {
		n := float64(acc.sentimentCount)
		r.Sentiments = domain.Sentiments{
			Positive: ptr(acc.sentiment.Positive / n),
			Neutral:  ptr(acc.sentiment.Neutral / n),
			Negative: ptr(acc.sentiment.Negative / n),
			Compound: ptr(acc.sentiment.Compound / n),
		}
	}

	r.PostTypes = domain.PostTypeStats{Counts: acc.postTypes}
	if total := acc.postTypes.Total(); total > 0 {
		r.PostTypes.Percentages = domain.PostTypePercentages{
			Standalone: percent(acc.postTypes.Standalone, total),
			Reply:      percent(acc.postTypes.Reply, total),
			Repost:     percent(acc.postTypes.Repost, total),
		}
	}

	r.ContentTypes = domain.ContentTypeStats{Counts: acc.contentTypes}
	if total := acc.contentTypes.Total(); total > 0 {
		r.ContentTypes.Percentages = domain.ContentTypePercentages{
			Text:  percent(acc.contentTypes.Text, total),
			Image: percent(acc.contentTypes.Image, total),
			Video: percent(acc.contentTypes.Video, total),
			Link:  percent(acc.contentTypes.Link, total),
			Quote: percent(acc.contentTypes.Quote, total),
		}
	}

	r.Words = domain.WordStats{
		WordCounts:      acc.words,
		MostCommonWords: acc.topWords(),
	}
	r.BiggestFans = acc.topFans()

	if in.Identity != nil && len(in.Identity.Audit) > 0 {
		signUp := in.Identity.Audit[0].CreatedAt
		elapsed := now.Sub(signUp)
		r.SignUp = domain.SignUp{
			Date:         &signUp,
			DaysSince:    ptr(int(math.Floor(elapsed.Hours() / 24))),
			MinutesSince: ptr(int(math.Floor(elapsed.Minutes()))),
		}
	}

	if days := r.SignUp.DaysSince; days != nil && *days != 0 {
		r.Averages.PostsPerDay = ptr(float64(postsCount) / float64(*days))
		r.Averages.LikesPerDay = ptr(float64(acc.totals.Likes) / float64(*days))
	}
	if postsCount != 0 {
		r.Averages.LikesPerPost = ptr(float64(acc.totals.Likes) / float64(postsCount))
		r.Averages.RepliesPerPost = ptr(float64(acc.totals.Replies) / float64(postsCount))
	}

	r.Activity.MostActiveDay = argmax(r.Activity.Weekday[:])
	r.Activity.MostActiveHour = argmax(r.Activity.Hour[:])

	return r
}

func (acc *accumulator) topWords() []domain.WordCount {
	words := make([]domain.WordCount, len(acc.wordOrder))
	for i, w := range acc.wordOrder {
		words[i] = domain.WordCount{Word: w, Count: acc.words[w]}
	}
	slices.SortStableFunc(words, func(a, b domain.WordCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(words) > topWords {
		words = words[:topWords]
	}
	return words
}

func (acc *accumulator) topFans() []domain.Fan {
	fans := make([]domain.Fan, len(acc.fanOrder))
	for i, did := range acc.fanOrder {
		tally := acc.fans[did]
		fans[i] = domain.Fan{Likes: tally.likes, Actor: tally.actor}
	}
	slices.SortStableFunc(fans, func(a, b domain.Fan) int {
		return cmp.Compare(b.Likes, a.Likes)
	})
	if len(fans) > topFans {
		fans = fans[:topFans]
	}
	return fans
}

// argmax returns the index of the first largest bucket.
func argmax(buckets []int) int {
	best := 0
	for i, v := range buckets {
		if v > buckets[best] {
			best = i
		}
	}
	return best
}

func percent(n, total int) *float64 {
	return ptr(float64(n) / float64(total) * 100)
}

func ptr[T any](v T) *T {
	return &v
}
