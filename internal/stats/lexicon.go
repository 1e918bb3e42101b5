package stats

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

//go:embed emotion_lexicon.json
var emotionLexiconJSON []byte

// EmotionLexicon maps a lowercase word to the emotion tags it carries.
type EmotionLexicon interface {
	Emotions(word string) []string
}

// Lexicon is a word-to-emotions table.
type Lexicon map[string][]string

func (l Lexicon) Emotions(word string) []string {
	return l[word]
}

// DefaultLexicon returns the embedded emotion lexicon.
func DefaultLexicon() Lexicon {
	lex, err := parseLexicon(emotionLexiconJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded emotion lexicon: %v", err))
	}
	return lex
}

// LoadLexicon reads a JSON object of word to emotion tag lists, such as an
// export of the NRC Emotion Lexicon.
func LoadLexicon(r io.Reader) (Lexicon, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return parseLexicon(data)
}

// LoadLexiconFile reads a lexicon with LoadLexicon from path.
func LoadLexiconFile(path string) (Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()
	return LoadLexicon(f)
}

func parseLexicon(data []byte) (Lexicon, error) {
	var lex Lexicon
	if err := json.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("unmarshal lexicon: %w", err)
	}
	return lex, nil
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// Tokenize lowercases text and splits it into ASCII word tokens.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}
