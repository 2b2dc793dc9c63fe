// Package dataset holds the transformed train/test arrays consumed by the
// model search. A Dataset is a feature matrix plus an aligned binary label
// vector; it is treated as read-only once loaded and may be shared across
// concurrent trials.
package dataset

import (
	"fmt"
	"math"

	"network-security/internal/errs"

	"gonum.org/v1/gonum/mat"
)

// Dataset is a feature matrix with one label per row.
type Dataset struct {
	X *mat.Dense
	Y []float64
}

// TransformationArtifact is the record produced by the data transformation
// stage: paths to the transformed arrays and the fitted preprocessor.
type TransformationArtifact struct {
	TrainPath        string `yaml:"trainPath" json:"transformed_train_file_path"`
	TestPath         string `yaml:"testPath" json:"transformed_test_file_path"`
	PreprocessorPath string `yaml:"preprocessorPath" json:"transformed_object_file_path"`
}

// FromRows builds a Dataset from row slices. Rows are copied.
func FromRows(rows [][]float64, labels []float64) (Dataset, error) {
	if len(rows) == 0 {
		return Dataset{}, errs.Newf(errs.ErrInvalidInput, origin("from_rows", ""), "no rows")
	}
	cols := len(rows[0])
	if cols == 0 {
		return Dataset{}, errs.Newf(errs.ErrInvalidInput, origin("from_rows", ""), "rows have no columns")
	}
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return Dataset{}, errs.Newf(errs.ErrInvalidInput, origin("from_rows", fmt.Sprintf("row=%d", i)),
				"expected %d columns, got %d", cols, len(r))
		}
		data = append(data, r...)
	}
	d := Dataset{
		X: mat.NewDense(len(rows), cols, data),
		Y: append([]float64(nil), labels...),
	}
	if err := d.Validate(); err != nil {
		return Dataset{}, err
	}
	return d, nil
}

// Rows returns the number of samples.
func (d Dataset) Rows() int {
	if d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// Cols returns the number of features.
func (d Dataset) Cols() int {
	if d.X == nil {
		return 0
	}
	_, c := d.X.Dims()
	return c
}

// Validate checks that labels are non-empty, aligned with the matrix, binary,
// and that every feature value is finite.
func (d Dataset) Validate() error {
	if d.X == nil || len(d.Y) == 0 {
		return errs.Newf(errs.ErrInvalidInput, origin("validate", ""), "empty dataset")
	}
	if d.Rows() != len(d.Y) {
		return errs.Newf(errs.ErrInvalidInput, origin("validate", ""),
			"%d rows but %d labels", d.Rows(), len(d.Y))
	}
	for i, y := range d.Y {
		if y != 0 && y != 1 {
			return errs.Newf(errs.ErrInvalidInput, origin("validate", fmt.Sprintf("label[%d]", i)),
				"labels must be 0 or 1, got %v", y)
		}
	}
	for i := 0; i < d.Rows(); i++ {
		for j, v := range d.X.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errs.Newf(errs.ErrInvalidInput, origin("validate", fmt.Sprintf("x[%d][%d]", i, j)),
					"non-finite feature value %v", v)
			}
		}
	}
	return nil
}

// CheckCompatible validates both splits and requires identical column counts.
func CheckCompatible(train, test Dataset) error {
	if err := train.Validate(); err != nil {
		return fmt.Errorf("train set: %w", err)
	}
	if err := test.Validate(); err != nil {
		return fmt.Errorf("test set: %w", err)
	}
	if train.Cols() != test.Cols() {
		return errs.Newf(errs.ErrInvalidInput, origin("check_compatible", ""),
			"train has %d columns, test has %d", train.Cols(), test.Cols())
	}
	return nil
}

// Subset returns the rows at idx as a new Dataset sharing no memory with d.
// An empty idx yields an empty Dataset with a nil matrix.
func (d Dataset) Subset(idx []int) Dataset {
	if len(idx) == 0 {
		return Dataset{Y: []float64{}}
	}
	cols := d.Cols()
	x := mat.NewDense(len(idx), cols, nil)
	y := make([]float64, len(idx))
	for i, src := range idx {
		x.SetRow(i, d.X.RawRowView(src))
		y[i] = d.Y[src]
	}
	return Dataset{X: x, Y: y}
}

// Positives returns the number of rows labelled 1.
func (d Dataset) Positives() int {
	n := 0
	for _, y := range d.Y {
		if y == 1 {
			n++
		}
	}
	return n
}

func origin(op, input string) errs.Origin {
	return errs.Origin{Component: "dataset", Operation: op, Input: input}
}
