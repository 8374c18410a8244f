package textsim

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultLocale         = "tr"
	DefaultMinTokenLength = 2
)

// TokenizerOptions configures normalization. The zero value is not usable;
// start from DefaultTokenizerOptions.
type TokenizerOptions struct {
	// Locale selects casing rules (BCP 47). Turkish maps I to ı and İ to i.
	Locale               string
	MinTokenLength       int
	DropApostropheSuffix bool
	StopWords            StopWords
}

func DefaultTokenizerOptions() (TokenizerOptions, error) {
	stop, err := DefaultStopWords()
	if err != nil {
		return TokenizerOptions{}, err
	}
	return TokenizerOptions{
		Locale:               DefaultLocale,
		MinTokenLength:       DefaultMinTokenLength,
		DropApostropheSuffix: true,
		StopWords:            stop,
	}, nil
}

// Tokenizer turns raw text into normalized tokens. It is safe for concurrent
// use; casers are created per call.
type Tokenizer struct {
	tag        language.Tag
	minLen     int
	dropSuffix bool
	stop       map[string]struct{}
}

func NewTokenizer(opts TokenizerOptions) (*Tokenizer, error) {
	locale := strings.TrimSpace(opts.Locale)
	tag := language.Und
	if locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", locale, err)
		}
		tag = parsed
	}
	if opts.MinTokenLength < 1 {
		return nil, fmt.Errorf("min token length must be >= 1, got %d", opts.MinTokenLength)
	}

	t := &Tokenizer{
		tag:        tag,
		minLen:     opts.MinTokenLength,
		dropSuffix: opts.DropApostropheSuffix,
		stop:       make(map[string]struct{}),
	}
	for _, word := range opts.StopWords.Words() {
		for _, piece := range t.split(t.lower(word)) {
			t.stop[piece] = struct{}{}
		}
	}
	return t, nil
}

// Tokens returns the normalized tokens of text in order of appearance.
// Blank input yields nil.
func (t *Tokenizer) Tokens(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := t.split(t.lower(text))
	tokens := pieces[:0]
	for _, p := range pieces {
		if utf8.RuneCountInString(p) < t.minLen {
			continue
		}
		if _, ok := t.stop[p]; ok {
			continue
		}
		tokens = append(tokens, p)
	}
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

func (t *Tokenizer) Terms(text string) Terms {
	return NewTerms(t.Tokens(text))
}

func (t *Tokenizer) IsStopWord(token string) bool {
	_, ok := t.stop[token]
	return ok
}

// StopWordCount is the number of distinct normalized stop words.
func (t *Tokenizer) StopWordCount() int {
	return len(t.stop)
}

func (t *Tokenizer) lower(text string) string {
	return cases.Lower(t.tag).String(text)
}

// split breaks lowered text on every rune that is not a letter or number.
// Combining marks are dropped without ending the token, so a decomposed
// "i̇" still reads as "i".
func (t *Tokenizer) split(text string) []string {
	var (
		tokens   []string
		b        strings.Builder
		skipping bool
	)
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
		skipping = false
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if skipping {
				continue
			}
			b.WriteRune(r)
		case unicode.Is(unicode.Mn, r):
			continue
		case t.dropSuffix && isApostrophe(r) && b.Len() > 0:
			// Turkish inflects proper nouns after an apostrophe: Ankara'da.
			skipping = true
		default:
			flush()
		}
	}
	flush()
	return tokens
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '’', '‘', 'ʼ', '`':
		return true
	default:
		return false
	}
}

// Terms is a bag of tokens kept as a sorted slice so every computation over
// it visits tokens in the same order.
type Terms struct {
	tokens []string
	counts []int
	norm   float64
}

func NewTerms(tokens []string) Terms {
	if len(tokens) == 0 {
		return Terms{}
	}

	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)

	terms := Terms{
		tokens: make([]string, 0, len(sorted)),
		counts: make([]int, 0, len(sorted)),
	}
	for _, tok := range sorted {
		n := len(terms.tokens)
		if n > 0 && terms.tokens[n-1] == tok {
			terms.counts[n-1]++
			continue
		}
		terms.tokens = append(terms.tokens, tok)
		terms.counts = append(terms.counts, 1)
	}

	var sumSquares int64
	for _, c := range terms.counts {
		sumSquares += int64(c) * int64(c)
	}
	terms.norm = math.Sqrt(float64(sumSquares))
	return terms
}

// Len is the number of distinct tokens.
func (t Terms) Len() int {
	return len(t.tokens)
}

func (t Terms) Empty() bool {
	return len(t.tokens) == 0
}

// Set returns the distinct tokens, for Jaccard comparison.
func (t Terms) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(t.tokens))
	for _, tok := range t.tokens {
		set[tok] = struct{}{}
	}
	return set
}

// Freq returns token counts, for term-frequency comparison.
func (t Terms) Freq() map[string]int {
	freq := make(map[string]int, len(t.tokens))
	for i, tok := range t.tokens {
		freq[tok] = t.counts[i]
	}
	return freq
}

// Tokens returns the distinct tokens in sorted order.
func (t Terms) Tokens() []string {
	return append([]string(nil), t.tokens...)
}

func (t Terms) Norm() float64 {
	return t.norm
}
