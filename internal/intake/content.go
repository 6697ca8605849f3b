package intake

import (
	"fmt"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// DefaultDenyList holds the spam-indicative terms rejected by the content policy.
var DefaultDenyList = []string{
	"viagra",
	"casino",
	"lottery",
	"winner",
	"congratulations",
	"click here",
	"free money",
}

// ContentPolicy rejects text containing any deny-listed term as a whole word,
// ignoring case. One Aho-Corasick automaton serves every term.
type ContentPolicy struct {
	matcher *goahocorasick.Machine
}

// NewContentPolicy builds an automaton over terms. An empty list yields a
// policy that matches nothing.
func NewContentPolicy(terms []string) (*ContentPolicy, error) {
	patterns := make([][]rune, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		patterns = append(patterns, lowerRunes(term))
	}
	if len(patterns) == 0 {
		return &ContentPolicy{}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("failed to build deny-list matcher: %w", err)
	}
	return &ContentPolicy{matcher: m}, nil
}

// MustContentPolicy is NewContentPolicy that panics on error, for package-level defaults.
func MustContentPolicy(terms []string) *ContentPolicy {
	p, err := NewContentPolicy(terms)
	if err != nil {
		panic(err)
	}
	return p
}

// Match returns the first deny-listed term found in text as a whole word.
func (p *ContentPolicy) Match(text string) (string, bool) {
	if p == nil || p.matcher == nil || text == "" {
		return "", false
	}

	runes := lowerRunes(text)
	for _, term := range p.matcher.MultiPatternSearch(runes, false) {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(runes) {
			continue
		}
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		return string(term.Word), true
	}
	return "", false
}

// lowerRunes lower-cases rune by rune so indexes line up with the input.
func lowerRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

// isWordRune mirrors the \w class used for word boundaries.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
