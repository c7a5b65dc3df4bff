package ga

import (
	"context"
	"sort"
)

// TruncationSelector keeps the best PopulationSize individuals out of the
// current population plus the evaluated offspring. Ranking is stable: on
// equal fitness, current population members outrank offspring and lower
// indexes outrank higher ones. Surviving offspring fill the vacated
// population slots in ascending slot order, best offspring first.
type TruncationSelector struct{}

func (TruncationSelector) Apply(ctx context.Context, g *GA) error {
	next, err := g.Data().readGeneration(ctx, g)
	if err != nil {
		return err
	}
	o := g.Options()
	pop := o.PopulationSize

	// Rank population and offspring together. Index < pop is a population
	// slot, index >= pop is offspring index-pop.
	value := func(i int) float32 {
		if i < pop {
			return g.Data().individuals[i].Result
		}
		return next[i-pop].Result
	}
	order := make([]int, pop+o.GenerationSize)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return o.Direction.Better(value(order[a]), value(order[b]))
	})

	kept := make(map[int]bool, pop)
	var incoming []int
	for _, index := range order[:pop] {
		if index < pop {
			kept[index] = true
		} else {
			incoming = append(incoming, index-pop)
		}
	}

	replacements := make([]replacement, 0, len(incoming))
	slot := 0
	for _, offspring := range incoming {
		for kept[slot] {
			slot++
		}
		replacements = append(replacements, replacement{index: slot, individual: next[offspring]})
		slot++
	}
	return g.Data().updatePopulation(g, replacements)
}
