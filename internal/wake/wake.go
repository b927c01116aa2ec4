// Package wake matches transcribed text against the wake word.
//
// Matching is fuzzy: the text is split into ASCII alphanumeric tokens and the
// first token within a bounded Levenshtein distance of the wake word counts
// as a hit. Everything after that token is the command remainder. A second,
// exact check ([Strict]) exists only to measure how often the fuzzy path is
// needed.
package wake

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// DefaultMaxDistance is the largest edit distance accepted as a match.
const DefaultMaxDistance = 2

// Match is the result of matching one transcription.
type Match struct {
	// Matched reports whether any token was close enough to the wake word.
	Matched bool

	// Remainder is the original text after the matched token with leading
	// punctuation and whitespace removed. Empty for a wake-word-only
	// utterance or when Matched is false.
	Remainder string

	// Token is the lower-cased token that matched.
	Token string

	// Distance is the Levenshtein distance between Token and the wake word.
	Distance int
}

// Option is a functional option for [New].
type Option func(*Matcher)

// WithMaxDistance overrides [DefaultMaxDistance].
func WithMaxDistance(d int) Option {
	return func(m *Matcher) {
		m.maxDistance = d
	}
}

// Matcher is a fuzzy wake-word matcher. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	word        string
	maxDistance int
}

// New creates a Matcher for word.
func New(word string, opts ...Option) *Matcher {
	m := &Matcher{
		word:        strings.ToLower(strings.TrimSpace(word)),
		maxDistance: DefaultMaxDistance,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Word returns the lower-cased wake word.
func (m *Matcher) Word() string { return m.word }

// Match scans text token by token. The first token whose distance to the
// wake word is at most the configured maximum wins; later tokens are not
// considered even if closer.
func (m *Matcher) Match(text string) Match {
	if m.word == "" {
		return Match{}
	}
	for _, tok := range tokenize(text) {
		lower := strings.ToLower(tok.text)
		d := matchr.Levenshtein(lower, m.word)
		if d > m.maxDistance {
			continue
		}
		return Match{
			Matched:   true,
			Remainder: trimLeading(text[tok.end:]),
			Token:     lower,
			Distance:  d,
		}
	}
	return Match{}
}

// TextAfterWord returns the text following the first exact,
// case-insensitive occurrence of word as a whole token.
func TextAfterWord(text, word string) (string, bool) {
	word = strings.ToLower(word)
	for _, tok := range tokenize(text) {
		if strings.ToLower(tok.text) == word {
			return trimLeading(text[tok.end:]), true
		}
	}
	return "", false
}

// StrictMatch is the exact-match classification of one transcription.
type StrictMatch struct {
	// FirstWord is true when the first token equals the wake word.
	FirstWord bool
	// Contains is true when any token equals the wake word.
	Contains bool
}

// Strict classifies text by exact, case-insensitive token equality.
func Strict(text, word string) StrictMatch {
	word = strings.ToLower(strings.TrimSpace(word))
	var sm StrictMatch
	for i, tok := range tokenize(text) {
		if strings.ToLower(tok.text) != word {
			continue
		}
		sm.Contains = true
		if i == 0 {
			sm.FirstWord = true
		}
		break
	}
	return sm
}

var soundTag = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)

// StripSoundTags removes parenthesized and bracketed annotations such as
// "(laughs)" or "[noise]" that recognisers emit for non-speech audio.
func StripSoundTags(text string) string {
	return strings.TrimSpace(soundTag.ReplaceAllString(text, " "))
}

// IsSoundTag reports whether text carries nothing but sound annotations.
func IsSoundTag(text string) bool {
	return strings.TrimSpace(text) != "" && StripSoundTags(text) == ""
}

type token struct {
	text       string
	start, end int
}

// tokenize splits text into maximal runs of ASCII letters and digits,
// keeping byte offsets into the original string. Any other rune, including
// accented letters, separates tokens.
func tokenize(text string) []token {
	var toks []token
	start := -1
	for i, r := range text {
		word := isWordRune(r)
		switch {
		case word && start < 0:
			start = i
		case !word && start >= 0:
			toks = append(toks, token{text: text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		toks = append(toks, token{text: text[start:], start: start, end: len(text)})
	}
	return toks
}

func isWordRune(r rune) bool {
	return ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func trimLeading(s string) string {
	return strings.TrimLeftFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
