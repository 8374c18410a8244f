package grouping

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/onuralpArsln/AINewspaper/internal/textsim"
)

const scoreChunkSize = 1024

type edge struct {
	lo    int
	hi    int
	score float64
}

func buildProfiles(scorer *textsim.Scorer, articles []Article) []textsim.Profile {
	profiles := make([]textsim.Profile, len(articles))
	for i, article := range articles {
		profiles[i] = scorer.Profile(textsim.Document{Title: article.Title, Body: article.Body})
	}
	return profiles
}

// scorePairs scores pairs on a bounded pool. Each score lands at its pair's
// index so the output never depends on scheduling.
func scorePairs(ctx context.Context, scorer *textsim.Scorer, profiles []textsim.Profile, pairs []pair, workers int) ([]float64, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	scores := make([]float64, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(pairs); start += scoreChunkSize {
		if gctx.Err() != nil {
			break
		}
		end := min(start+scoreChunkSize, len(pairs))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for k := start; k < end; k++ {
				p := pairs[k]
				scores[k] = scorer.Compare(profiles[p.lo], profiles[p.hi]).Combined
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

// acceptEdges keeps pairs at or above threshold in canonical order: score
// descending, then ids ascending.
func acceptEdges(pairs []pair, scores []float64, threshold float64) []edge {
	edges := make([]edge, 0)
	for k, p := range pairs {
		if scores[k] >= threshold {
			edges = append(edges, edge{lo: p.lo, hi: p.hi, score: scores[k]})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].score != edges[j].score {
			return edges[i].score > edges[j].score
		}
		if edges[i].lo != edges[j].lo {
			return edges[i].lo < edges[j].lo
		}
		return edges[i].hi < edges[j].hi
	})
	return edges
}
