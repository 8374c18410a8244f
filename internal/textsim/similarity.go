package textsim

import (
	"fmt"
	"math"
)

const (
	DefaultTitleWeight = 0.6
	DefaultBodyWeight  = 0.4

	weightSumTolerance = 1e-9
)

// Weights controls how title and body agreement combine into one score.
type Weights struct {
	Title float64 `json:"title"`
	Body  float64 `json:"body"`
}

func DefaultWeights() Weights {
	return Weights{Title: DefaultTitleWeight, Body: DefaultBodyWeight}
}

func (w Weights) Validate() error {
	if math.IsNaN(w.Title) || w.Title < 0 || w.Title > 1 {
		return fmt.Errorf("title weight must be within [0,1], got %v", w.Title)
	}
	if math.IsNaN(w.Body) || w.Body < 0 || w.Body > 1 {
		return fmt.Errorf("body weight must be within [0,1], got %v", w.Body)
	}
	if math.Abs(w.Title+w.Body-1) > weightSumTolerance {
		return fmt.Errorf("title and body weights must sum to 1, got %v + %v", w.Title, w.Body)
	}
	return nil
}

// Document is the text of one article as seen by the scorer.
type Document struct {
	Title string
	Body  string
}

// Profile holds the pre-tokenized form of a Document. Building profiles once
// per article keeps pairwise scoring free of tokenization work.
type Profile struct {
	Title Terms
	Body  Terms
}

// Breakdown explains a score.
type Breakdown struct {
	TitleJaccard float64 `json:"title_jaccard"`
	BodyCosine   float64 `json:"body_cosine"`
	Combined     float64 `json:"combined"`
}

type Scorer struct {
	tokenizer *Tokenizer
	weights   Weights
}

func NewScorer(tokenizer *Tokenizer, weights Weights) (*Scorer, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("tokenizer is nil")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{tokenizer: tokenizer, weights: weights}, nil
}

func (s *Scorer) Weights() Weights {
	return s.weights
}

func (s *Scorer) Profile(doc Document) Profile {
	return Profile{
		Title: s.tokenizer.Terms(doc.Title),
		Body:  s.tokenizer.Terms(doc.Body),
	}
}

// Score returns the combined similarity of two documents in [0,1].
func (s *Scorer) Score(a, b Document) float64 {
	return s.Compare(s.Profile(a), s.Profile(b)).Combined
}

func (s *Scorer) Compare(a, b Profile) Breakdown {
	jaccard := Jaccard(a.Title, b.Title)
	cosine := Cosine(a.Body, b.Body)
	return Breakdown{
		TitleJaccard: jaccard,
		BodyCosine:   cosine,
		Combined:     clamp01(s.weights.Title*jaccard + s.weights.Body*cosine),
	}
}

// Jaccard is |A ∩ B| / |A ∪ B| over distinct tokens; 0 when either side is
// empty.
func Jaccard(a, b Terms) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}

	intersection := 0
	i, j := 0, 0
	for i < len(a.tokens) && j < len(b.tokens) {
		switch {
		case a.tokens[i] == b.tokens[j]:
			intersection++
			i++
			j++
		case a.tokens[i] < b.tokens[j]:
			i++
		default:
			j++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(a.tokens) + len(b.tokens) - intersection
	return clamp01(float64(intersection) / float64(union))
}

// Cosine is the normalized dot product of the term-frequency vectors; 0 when
// either vector has zero norm. The dot product is accumulated as an integer
// so the result does not depend on argument order.
func Cosine(a, b Terms) float64 {
	if a.norm == 0 || b.norm == 0 {
		return 0
	}

	var dot int64
	i, j := 0, 0
	for i < len(a.tokens) && j < len(b.tokens) {
		switch {
		case a.tokens[i] == b.tokens[j]:
			dot += int64(a.counts[i]) * int64(b.counts[j])
			i++
			j++
		case a.tokens[i] < b.tokens[j]:
			i++
		default:
			j++
		}
	}
	if dot == 0 {
		return 0
	}
	return clamp01(float64(dot) / (a.norm * b.norm))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
