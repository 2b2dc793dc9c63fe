package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"network-security/internal/cfg"
	"network-security/internal/dataset"
	"network-security/internal/ml"
)

func main() {
	var (
		dataPath  = flag.String("data", "", "Labelled .npy array of raw, untransformed features")
		modelPath = flag.String("model", "", "Combined model file (defaults to the active version, then the configured model path)")
		version   = flag.String("version", "", "Evaluate this stored version instead of the active one")
		list      = flag.Bool("list", false, "List stored model versions and exit")
		rollback  = flag.Bool("rollback", false, "Activate the previous stored version and exit")
		logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var versions *ml.ModelManager
	if config.Trainer.ModelsDir != "" {
		versions, err = ml.NewModelManager(config.Trainer.ModelsDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open model versions")
		}
	}

	switch {
	case *list:
		printVersions(versions)
		return
	case *rollback:
		if versions == nil {
			log.Fatal().Msg("MODELS_DIR is not configured")
		}
		if err := versions.Rollback(); err != nil {
			log.Fatal().Err(err).Msg("Rollback failed")
		}
		log.Info().Str("version", versions.GetCurrentVersion().Version).Msg("Rolled back model version")
		return
	}

	path := resolveModelPath(*modelPath, *version, versions, config.Trainer.ModelPath)
	if *dataPath == "" {
		log.Fatal().Msg("-data is required")
	}

	nm, err := ml.LoadNetworkModel(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model")
	}
	d, err := dataset.Load(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}

	ev, err := ml.Evaluate(nm, d)
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}

	fmt.Println("=== Evaluation ===")
	fmt.Printf("Model:     %s (%s)\n", path, nm.Model.Family())
	fmt.Printf("Data:      %s\n", *dataPath)
	fmt.Printf("Samples:   %d (%d phishing)\n", ev.Samples, ev.Positives)
	fmt.Printf("Accuracy:  %.4f\n", ev.Accuracy)
	fmt.Printf("F1:        %.4f\n", ev.Report.F1)
	fmt.Printf("Precision: %.4f\n", ev.Report.Precision)
	fmt.Printf("Recall:    %.4f\n", ev.Report.Recall)
	fmt.Println("==================")
}

func resolveModelPath(explicit, version string, versions *ml.ModelManager, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if versions == nil {
		if version != "" {
			log.Fatal().Msg("MODELS_DIR is not configured")
		}
		return fallback
	}
	if version != "" {
		for _, v := range versions.ListVersions() {
			if v.Version == version {
				return v.Path
			}
		}
		log.Fatal().Str("version", version).Msg("Unknown model version")
	}
	if current := versions.GetCurrentVersion(); current != nil {
		return current.Path
	}
	return fallback
}

func printVersions(versions *ml.ModelManager) {
	if versions == nil {
		fmt.Println("No model versions (MODELS_DIR is not configured)")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tACTIVE\tFAMILY\tTEST SCORE\tCREATED")
	for _, v := range versions.ListVersions() {
		active := ""
		if v.IsActive {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\n",
			v.Version, active, v.Metrics.Family, v.Metrics.TestScore, v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}
