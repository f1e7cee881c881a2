// Package moderation masks forbidden words in inbound message text
// before it reaches the room history.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator wraps an Aho-Corasick automaton built from a censored word
// list. Matching runs on a lowercased, noise-free view of the text and
// masking is applied back onto the original runes so spacing and
// punctuation survive.
type Moderator struct {
	matcher  *goahocorasick.Machine
	maskRune rune
}

func NewModerator(censoredWords []string, maskRune rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		if p := normalizeRunes([]rune(word)); len(p) > 0 {
			patterns = append(patterns, p)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, maskRune: maskRune}, nil
}

// Censor returns the text with every forbidden span masked, and whether
// anything was masked at all.
func (m *Moderator) Censor(text string) (string, bool) {
	origRunes := []rune(text)
	normalized, origIdx := normalizeIndexed(origRunes)
	if len(normalized) == 0 {
		return text, false
	}

	spans := m.matcher.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return text, false
	}

	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			origRunes[i] = m.maskRune
		}
	}
	return string(origRunes), true
}

// normalizeIndexed lowercases and strips noise, keeping a mapping from
// each normalized rune back to its original position.
func normalizeIndexed(orig []rune) ([]rune, []int) {
	norm := make([]rune, 0, len(orig))
	idx := make([]int, 0, len(orig))
	for i, r := range orig {
		if isNoise(r) {
			continue
		}
		norm = append(norm, unicode.ToLower(r))
		idx = append(idx, i)
	}
	return norm, idx
}

func normalizeRunes(in []rune) []rune {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if isNoise(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func isNoise(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}
