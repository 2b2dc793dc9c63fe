package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"network-security/internal/errs"
	"network-security/internal/model"
	"network-security/internal/preprocess"
)

// NetworkModel applies the preprocessing pipeline then the classifier.
type NetworkModel struct {
	Preprocessor *preprocess.Pipeline
	Model        model.Classifier
}

var _ Predictor = (*NetworkModel)(nil)

type networkModelFile struct {
	Preprocessor *preprocess.Pipeline `json:"preprocessor,omitempty"`
	Model        json.RawMessage      `json:"model"`
}

// Predict transforms raw and labels every row.
func (n *NetworkModel) Predict(raw *mat.Dense) ([]float64, error) {
	if n.Model == nil {
		return nil, errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "ml", Operation: "predict"}, "no model loaded")
	}
	if raw == nil || raw.IsEmpty() {
		return nil, errs.Newf(errs.ErrInvalidInput, errs.Origin{Component: "ml", Operation: "predict"}, "no rows to predict")
	}
	x := raw
	if n.Preprocessor != nil {
		var err error
		if x, err = n.Preprocessor.Transform(raw); err != nil {
			return nil, err
		}
	}
	return n.Model.Predict(x), nil
}

// MarshalJSON encodes the pipeline and the family-tagged model.
func (n *NetworkModel) MarshalJSON() ([]byte, error) {
	if n.Model == nil {
		return nil, fmt.Errorf("network model has no classifier")
	}
	body, err := model.Marshal(n.Model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(networkModelFile{Preprocessor: n.Preprocessor, Model: body})
}

// UnmarshalJSON decodes a model written by MarshalJSON.
func (n *NetworkModel) UnmarshalJSON(data []byte) error {
	var f networkModelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode network model: %w", err)
	}
	c, err := model.Unmarshal(f.Model)
	if err != nil {
		return err
	}
	if f.Preprocessor != nil {
		if err := f.Preprocessor.Validate(); err != nil {
			return err
		}
	}
	n.Preprocessor = f.Preprocessor
	n.Model = c
	return nil
}

// Save writes the model to path atomically.
func (n *NetworkModel) Save(path string) error {
	data, err := json.Marshal(n)
	if err != nil {
		return errs.New(errs.ErrPersistence, errs.Origin{Component: "ml", Operation: "save", Input: path}, err)
	}
	return writeFileAtomic(path, data)
}

// LoadNetworkModel reads a model written by Save.
func LoadNetworkModel(path string) (*NetworkModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.ErrPersistence, errs.Origin{Component: "ml", Operation: "load", Input: path}, err)
	}
	var n NetworkModel
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, errs.New(errs.ErrPersistence, errs.Origin{Component: "ml", Operation: "load", Input: path}, err)
	}
	return &n, nil
}

// writeFileAtomic writes data to a temp file in path's directory and
// renames it over path. Missing parent directories are created.
func writeFileAtomic(path string, data []byte) error {
	o := errs.Origin{Component: "ml", Operation: "write", Input: path}
	if path == "" {
		return errs.Newf(errs.ErrPersistence, o, "empty path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.ErrPersistence, o, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errs.New(errs.ErrPersistence, o, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.New(errs.ErrPersistence, o, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.New(errs.ErrPersistence, o, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errs.New(errs.ErrPersistence, o, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errs.New(errs.ErrPersistence, o, err)
	}
	return nil
}
