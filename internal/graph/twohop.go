package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// TwoHopBounds infers similarities to songs reachable through one
// intermediate song, without calling the recommender.
//
// For a chain id -> m -> other the bound is P(id->m) + P(m->other) - 1. The
// two directions of an edge measure different audiences, so when the reverse
// edge other -> id is stored the bound is rescaled by P(other->id) / P(id->m).
// Only the best bound per other song is kept; bounds <= 0 are dropped.
// Results are ordered by descending bound, then by song id.
func (s *Store) TwoHopBounds(ctx context.Context, id int64) ([]Bound, error) {
	first, err := s.backend.Similars(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading similars of %d: %w", id, err)
	}

	best := make(map[int64]Bound)
	reverse := make(map[int64]*float64)

	for _, hop1 := range first {
		m := hop1.Song.ID
		if m == id || hop1.Similarity <= 0 {
			continue
		}

		second, err := s.backend.Similars(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("loading similars of %d: %w", m, err)
		}

		for _, hop2 := range second {
			other := hop2.Song.ID
			if other == id {
				continue
			}

			bound := hop1.Similarity + hop2.Similarity - 1
			if bound <= 0 {
				continue
			}

			rev, err := s.reverseSimilarity(ctx, reverse, other, id)
			if err != nil {
				return nil, err
			}
			if rev != nil {
				bound *= *rev / hop1.Similarity
			}
			if bound <= 0 {
				continue
			}

			if cur, ok := best[other]; !ok || bound > cur.Bound {
				best[other] = Bound{Song: hop2.Song, Bound: bound}
			}
		}
	}

	bounds := make([]Bound, 0, len(best))
	for _, b := range best {
		bounds = append(bounds, b)
	}
	slices.SortFunc(bounds, func(a, b Bound) int {
		if c := cmp.Compare(b.Bound, a.Bound); c != 0 {
			return c
		}
		return cmp.Compare(a.Song.ID, b.Song.ID)
	})
	return bounds, nil
}

// reverseSimilarity memoizes other -> id lookups; a nil entry means no edge.
func (s *Store) reverseSimilarity(ctx context.Context, memo map[int64]*float64, other, id int64) (*float64, error) {
	if v, ok := memo[other]; ok {
		return v, nil
	}
	sim, ok, err := s.backend.Similarity(ctx, other, id)
	if err != nil {
		return nil, fmt.Errorf("loading similarity %d -> %d: %w", other, id, err)
	}
	var v *float64
	if ok {
		v = &sim
	}
	memo[other] = v
	return v, nil
}
