package main

import (
	"flag"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"network-security/internal/dataset"
	"network-security/internal/preprocess"
)

// Generates phishing-style URL feature vectors (each feature in {-1, 0, 1})
// and writes a transformation artifact the trainer can consume: transformed
// train/test arrays, the fitted preprocessor and an untransformed copy of
// the test split for cmd/evaluate.
func main() {
	var (
		outDir   = flag.String("out", "artifacts/data_transformation", "Output directory")
		rows     = flag.Int("rows", 2000, "Number of samples")
		features = flag.Int("features", 30, "Number of features")
		testFrac = flag.Float64("test-fraction", 0.2, "Fraction of samples held out for testing")
		noise    = flag.Float64("noise", 0.05, "Fraction of labels flipped")
		seed     = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rnd := rand.New(rand.NewSource(*seed))
	weights := make([]float64, *features)
	for j := range weights {
		weights[j] = rnd.NormFloat64()
	}

	all := make([][]float64, *rows)
	labels := make([]float64, *rows)
	for i := range all {
		row := make([]float64, *features)
		score := 0.0
		for j := range row {
			row[j] = float64(rnd.Intn(3) - 1)
			score += weights[j] * row[j]
		}
		if score > 0 {
			labels[i] = 1
		}
		if rnd.Float64() < *noise {
			labels[i] = 1 - labels[i]
		}
		all[i] = row
	}

	nTest := int(float64(*rows) * *testFrac)
	if nTest < 1 || nTest >= *rows {
		log.Fatal().Int("test_rows", nTest).Msg("test fraction leaves an empty split")
	}
	train, err := dataset.FromRows(all[nTest:], labels[nTest:])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build train split")
	}
	test, err := dataset.FromRows(all[:nTest], labels[:nTest])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build test split")
	}

	pre := fitScaler(train.X)
	transformedDir := filepath.Join(*outDir, "transformed")
	objectDir := filepath.Join(*outDir, "transformed_object")
	for _, dir := range []string{transformedDir, objectDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("Failed to create output directory")
		}
	}

	write := func(name string, d dataset.Dataset, transform bool) {
		if transform {
			x, err := pre.Transform(d.X)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to transform split")
			}
			d = dataset.Dataset{X: x, Y: d.Y}
		}
		path := filepath.Join(transformedDir, name)
		if err := dataset.Save(path, d); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to write array")
		}
		log.Info().Str("path", path).Int("rows", d.Rows()).Int("positives", d.Positives()).Msg("Wrote array")
	}
	write("train.npy", train, true)
	write("test.npy", test, true)
	write("raw_test.npy", test, false)

	prePath := filepath.Join(objectDir, "preprocessing.json")
	if err := pre.Save(prePath); err != nil {
		log.Fatal().Err(err).Msg("Failed to write preprocessor")
	}
	log.Info().Str("path", prePath).Int("features", *features).Msg("Sample data generated")
}

// fitScaler imputes with column means and standardises each column.
func fitScaler(x *mat.Dense) *preprocess.Pipeline {
	r, c := x.Dims()
	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean[j], scale[j] = stat.MeanStdDev(col, nil)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return preprocess.NewPipeline(c, preprocess.Imputer(mean), preprocess.Scaler(mean, scale))
}
