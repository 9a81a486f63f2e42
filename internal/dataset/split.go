package dataset

import (
	"fmt"
	"math/rand"
	"sort"
)

// Split partitions triplets into train and eval sets. The shuffle is
// seeded so splits are reproducible across runs; evalFraction must be
// in (0, 1).
func Split(triplets []Triplet, evalFraction float64, seed int64) (train, eval []Triplet, err error) {
	if evalFraction <= 0 || evalFraction >= 1 {
		return nil, nil, fmt.Errorf("eval fraction %.3f outside (0, 1)", evalFraction)
	}

	idx := rand.New(rand.NewSource(seed)).Perm(len(triplets))

	nEval := int(float64(len(triplets)) * evalFraction)
	if nEval == 0 && len(triplets) > 1 {
		nEval = 1
	}

	evalIdx := make(map[int]bool, nEval)
	for _, i := range idx[:nEval] {
		evalIdx[i] = true
	}

	for i, t := range triplets {
		if evalIdx[i] {
			eval = append(eval, t)
		} else {
			train = append(train, t)
		}
	}
	return train, eval, nil
}

// FilterByLength drops triplets whose total character length falls above
// the given percentile of the batch. Over-length records are dropped,
// never truncated: a truncated preference pair can lose the very turn
// the preference was about. Returns kept triplets and the cutoff used.
func FilterByLength(triplets []Triplet, percentile float64) ([]Triplet, int, error) {
	if percentile <= 0 || percentile > 1 {
		return nil, 0, fmt.Errorf("percentile %.3f outside (0, 1]", percentile)
	}
	if len(triplets) == 0 {
		return nil, 0, nil
	}

	lengths := make([]int, len(triplets))
	for i, t := range triplets {
		lengths[i] = tripletLength(t)
	}
	sorted := append([]int(nil), lengths...)
	sort.Ints(sorted)

	cut := sorted[min(int(float64(len(sorted))*percentile), len(sorted)-1)]

	var kept []Triplet
	for i, t := range triplets {
		if lengths[i] <= cut {
			kept = append(kept, t)
		}
	}
	return kept, cut, nil
}

func tripletLength(t Triplet) int {
	n := len(t.Chosen.Content) + len(t.Rejected.Content)
	for _, m := range t.Prompt {
		n += len(m.Content)
	}
	return n
}
