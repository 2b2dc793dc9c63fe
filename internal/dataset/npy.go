package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"network-security/internal/errs"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Load reads a transformed .npy array whose last column is the label.
func Load(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, errs.New(errs.ErrPersistence, origin("load", path), err)
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return Dataset{}, errs.New(errs.ErrPersistence, origin("load", path), fmt.Errorf("decode npy: %w", err))
	}

	r, c := m.Dims()
	if c < 2 {
		return Dataset{}, errs.Newf(errs.ErrInvalidInput, origin("load", path),
			"array needs at least one feature column and a label column, got %d columns", c)
	}

	d := Dataset{
		X: mat.DenseCopyOf(m.Slice(0, r, 0, c-1)),
		Y: mat.Col(nil, c-1, &m),
	}
	if err := d.Validate(); err != nil {
		return Dataset{}, fmt.Errorf("load %s: %w", path, err)
	}
	return d, nil
}

// Save writes d as a single .npy array with the label appended as the last
// column, the layout Load expects.
func Save(path string, d Dataset) error {
	r, c := d.Rows(), d.Cols()
	m := mat.NewDense(r, c+1, nil)
	m.Slice(0, r, 0, c).(*mat.Dense).Copy(d.X)
	m.SetCol(c, d.Y)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.New(errs.ErrPersistence, origin("save", path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.ErrPersistence, origin("save", path), err)
	}
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return errs.New(errs.ErrPersistence, origin("save", path), fmt.Errorf("encode npy: %w", err))
	}
	if err := f.Close(); err != nil {
		return errs.New(errs.ErrPersistence, origin("save", path), err)
	}
	return nil
}
