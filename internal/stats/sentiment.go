package stats

import "github.com/jonreiter/govader"

// Scores are the polarity scores of a text. Positive, Neutral and Negative are
// proportions summing to about 1; Compound is normalized to [-1, 1].
type Scores struct {
	Positive float64
	Neutral  float64
	Negative float64
	Compound float64
}

// SentimentScorer scores the sentiment of a text.
type SentimentScorer interface {
	PolarityScores(text string) Scores
}

// VaderScorer scores text with the VADER lexicon and rules. It is read-only
// after construction and safe for concurrent use.
type VaderScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewVaderScorer loads the VADER lexicon. Loading takes a few milliseconds, so
// build one scorer and share it.
func NewVaderScorer() *VaderScorer {
	return &VaderScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (s *VaderScorer) PolarityScores(text string) Scores {
	v := s.analyzer.PolarityScores(text)
	return Scores{
		Positive: v.Positive,
		Neutral:  v.Neutral,
		Negative: v.Negative,
		Compound: v.Compound,
	}
}
