package htmldoc

import (
	"strings"
	"unicode"
)

// Strategy names how a section was matched to a category.
type Strategy int

const (
	ExactKey Strategy = iota + 1
	HeadingText
	KeywordOverlap
)

func (s Strategy) String() string {
	switch s {
	case ExactKey:
		return "exact-key"
	case HeadingText:
		return "heading-text"
	case KeywordOverlap:
		return "keyword-overlap"
	}
	return "none"
}

// Match is the result of locating a category.
type Match struct {
	Strategy Strategy
	Section  *Section
}

var stopwords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "von": true, "und": true, "der": true, "die": true, "das": true,
}

// Locate finds the section that should receive entries of category. Only
// sections with an entry list are candidates.
func Locate(doc *Document, category string) (Match, bool) {
	label := strings.ToLower(strings.TrimSpace(category))
	if label == "" {
		return Match{}, false
	}
	var candidates []*Section
	for _, s := range doc.Sections {
		if s.HasList() {
			candidates = append(candidates, s)
		}
	}

	for _, s := range candidates {
		if s.Key != "" && strings.ToLower(s.Key) == label {
			return Match{Strategy: ExactKey, Section: s}, true
		}
	}
	for _, s := range candidates {
		if h := strings.ToLower(s.Heading); h != "" && h == label {
			return Match{Strategy: HeadingText, Section: s}, true
		}
	}
	for _, s := range candidates {
		if h := strings.ToLower(s.Heading); h != "" && (strings.Contains(h, label) || strings.Contains(label, h)) {
			return Match{Strategy: HeadingText, Section: s}, true
		}
	}

	want := Keywords(category)
	if len(want) == 0 {
		return Match{}, false
	}
	var best *Section
	bestScore := 0
	for _, s := range candidates {
		have := Keywords(s.Key + " " + s.Heading)
		score := 0
		for w := range want {
			if have[w] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	if best == nil {
		return Match{}, false
	}
	return Match{Strategy: KeywordOverlap, Section: best}, true
}

// Keywords splits s into its lowercase significant words.
func Keywords(s string) map[string]bool {
	out := map[string]bool{}
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
