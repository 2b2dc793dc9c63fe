package dataset

import (
	"errors"
	"math"
	"path/filepath"
	"sort"
	"testing"

	"network-security/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	d, err := FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}}, []float64{0, 1, 1})
	require.NoError(t, err)

	assert.Equal(t, 3, d.Rows())
	assert.Equal(t, 2, d.Cols())
	assert.Equal(t, 2, d.Positives())
}

func TestFromRows_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		rows   [][]float64
		labels []float64
	}{
		{"no rows", nil, nil},
		{"ragged rows", [][]float64{{1, 2}, {3}}, []float64{0, 1}},
		{"label count mismatch", [][]float64{{1}, {2}}, []float64{0}},
		{"non-binary label", [][]float64{{1}, {2}}, []float64{0, -1}},
		{"nan feature", [][]float64{{1}, {math.NaN()}}, []float64{0, 1}},
		{"inf feature", [][]float64{{math.Inf(1)}, {2}}, []float64{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRows(tt.rows, tt.labels)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrInvalidInput))
		})
	}
}

func TestCheckCompatible_ColumnMismatch(t *testing.T) {
	train, err := FromRows([][]float64{{1, 2}, {3, 4}}, []float64{0, 1})
	require.NoError(t, err)
	test, err := FromRows([][]float64{{1}, {3}}, []float64{0, 1})
	require.NoError(t, err)

	err = CheckCompatible(train, test)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput))

	assert.NoError(t, CheckCompatible(train, train))
}

func TestSubset_CopiesRows(t *testing.T) {
	d, err := FromRows([][]float64{{1, 1}, {2, 2}, {3, 3}}, []float64{0, 1, 0})
	require.NoError(t, err)

	sub := d.Subset([]int{2, 0})
	assert.Equal(t, []float64{3, 3}, sub.X.RawRowView(0))
	assert.Equal(t, []float64{0, 0}, sub.Y)

	sub.X.Set(0, 0, 99)
	assert.Equal(t, 3.0, d.X.At(2, 0))
}

func TestSubset_Empty(t *testing.T) {
	d, err := FromRows([][]float64{{1, 1}, {2, 2}}, []float64{0, 1})
	require.NoError(t, err)

	var sub Dataset
	require.NotPanics(t, func() { sub = d.Subset(nil) })
	assert.Equal(t, 0, sub.Rows())
	assert.Empty(t, sub.Y)
	assert.ErrorIs(t, sub.Validate(), errs.ErrInvalidInput)
}

func TestSaveLoad(t *testing.T) {
	d, err := FromRows([][]float64{{0.5, -1}, {1.5, 2}, {3, 0}}, []float64{1, 0, 1})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "train.npy")
	require.NoError(t, Save(path, d))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d.Y, loaded.Y)
	assert.Equal(t, d.X.RawMatrix().Data, loaded.X.RawMatrix().Data)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.npy"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrPersistence))
}

func TestStratifiedKFold(t *testing.T) {
	y := make([]float64, 30)
	for i := 0; i < 12; i++ {
		y[i] = 1
	}

	folds := StratifiedKFold(y, 3, 42)
	require.Len(t, folds, 3)

	var all []int
	for _, fold := range folds {
		assert.Len(t, fold, 10)
		pos := 0
		for _, i := range fold {
			if y[i] == 1 {
				pos++
			}
		}
		assert.Equal(t, 4, pos, "each fold keeps the class ratio")
		all = append(all, fold...)
	}
	sort.Ints(all)
	for i, v := range all {
		assert.Equal(t, i, v)
	}

	assert.Equal(t, folds, StratifiedKFold(y, 3, 42), "same seed, same folds")
}

func TestTrainIndices(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4}, TrainIndices(5, []int{1, 3}))
}
