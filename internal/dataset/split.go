package dataset

import "math/rand"

// StratifiedKFold partitions row indices into k folds so that each fold
// holds roughly the same share of each class. Within a class the order is
// shuffled with seed; the result is deterministic for a given seed.
func StratifiedKFold(y []float64, k int, seed int64) [][]int {
	if k < 2 {
		k = 2
	}
	var neg, pos []int
	for i, v := range y {
		if v == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	rnd := rand.New(rand.NewSource(seed))
	rnd.Shuffle(len(neg), func(i, j int) { neg[i], neg[j] = neg[j], neg[i] })
	rnd.Shuffle(len(pos), func(i, j int) { pos[i], pos[j] = pos[j], pos[i] })

	folds := make([][]int, k)
	n := 0
	for _, group := range [][]int{neg, pos} {
		for _, idx := range group {
			folds[n%k] = append(folds[n%k], idx)
			n++
		}
	}
	return folds
}

// TrainIndices returns every index in [0, n) not contained in fold.
func TrainIndices(n int, fold []int) []int {
	held := make(map[int]struct{}, len(fold))
	for _, i := range fold {
		held[i] = struct{}{}
	}
	out := make([]int, 0, n-len(fold))
	for i := 0; i < n; i++ {
		if _, ok := held[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}
