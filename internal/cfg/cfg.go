package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"network-security/internal/dataset"
)

// Settings is the full configuration of one training invocation.
type Settings struct {
	Data    dataset.TransformationArtifact
	Trainer TrainerConfig

	Metric  string
	CVFolds int
	Workers int
	Seed    int64
	Timeout time.Duration

	TrackingURI      string
	TrackingUsername string
	TrackingPassword string
	ExperimentName   string
	TrackingDBPath   string
	TrackingTimeout  time.Duration
	PushgatewayURL   string
	PushJob          string
	Candidates       []CandidateConfig
}

// TrainerConfig holds the output locations and the quality gate thresholds.
type TrainerConfig struct {
	ModelPath     string  `yaml:"modelPath"`
	FinalModelDir string  `yaml:"finalModelDir"`
	ModelsDir     string  `yaml:"modelsDir"`
	MinAccuracy   float64 `yaml:"minAccuracy"`
	MaxGap        float64 `yaml:"maxGap"`
}

// CandidateConfig declares a model family and its grid in YAML.
type CandidateConfig struct {
	Family string           `yaml:"family"`
	Grid   map[string][]any `yaml:"grid"`
}

type ConfigFile struct {
	Data dataset.TransformationArtifact `yaml:"data"`

	Trainer struct {
		ModelPath     string   `yaml:"modelPath"`
		FinalModelDir string   `yaml:"finalModelDir"`
		ModelsDir     string   `yaml:"modelsDir"`
		MinAccuracy   *float64 `yaml:"minAccuracy"`
		MaxGap        *float64 `yaml:"maxGap"`
	} `yaml:"trainer"`

	Search struct {
		Metric  string `yaml:"metric"`
		CVFolds *int   `yaml:"cvFolds"`
		Workers int    `yaml:"workers"`
		Seed    int64  `yaml:"seed"`
		Timeout string `yaml:"timeout"`
	} `yaml:"search"`

	Tracking struct {
		URI        string `yaml:"uri"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		Experiment string `yaml:"experiment"`
		DBPath     string `yaml:"dbPath"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"tracking"`

	Metrics struct {
		PushgatewayURL string `yaml:"pushgatewayURL"`
		Job            string `yaml:"job"`
	} `yaml:"metrics"`

	Candidates []CandidateConfig `yaml:"candidates"`
}

const (
	defaultTrainPath        = "artifacts/data_transformation/transformed/train.npy"
	defaultTestPath         = "artifacts/data_transformation/transformed/test.npy"
	defaultPreprocessorPath = "artifacts/data_transformation/transformed_object/preprocessing.json"
	defaultModelPath        = "artifacts/model_trainer/trained_model/model.json"
	defaultFinalModelDir    = "final_model"
	defaultModelsDir        = "artifacts/models"
	defaultTrackingDB       = "artifacts/tracking.db"
	defaultExperiment       = "network-security"
	defaultPushJob          = "network_security_trainer"
	defaultMinAccuracy      = 0.6
	defaultMaxGap           = 0.05
	defaultCVFolds          = 3
)

// Load reads an optional .env file, then YAML when CONFIG_FILE is set
// (environment variables still override it), else environment variables.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := parseDurationOr(config.Search.Timeout, 0)
	if err != nil {
		return Settings{}, fmt.Errorf("search.timeout: %w", err)
	}
	trackingTimeout, err := parseDurationOr(config.Tracking.Timeout, 10*time.Second)
	if err != nil {
		return Settings{}, fmt.Errorf("tracking.timeout: %w", err)
	}

	settings := Settings{
		Data: dataset.TransformationArtifact{
			TrainPath:        getEnvOrDefault("TRAIN_FILE_PATH", orDefault(config.Data.TrainPath, defaultTrainPath)),
			TestPath:         getEnvOrDefault("TEST_FILE_PATH", orDefault(config.Data.TestPath, defaultTestPath)),
			PreprocessorPath: getEnvOrDefault("PREPROCESSOR_PATH", orDefault(config.Data.PreprocessorPath, defaultPreprocessorPath)),
		},
		Trainer: TrainerConfig{
			ModelPath:     getEnvOrDefault("MODEL_PATH", orDefault(config.Trainer.ModelPath, defaultModelPath)),
			FinalModelDir: getEnvOrDefault("FINAL_MODEL_DIR", orDefault(config.Trainer.FinalModelDir, defaultFinalModelDir)),
			ModelsDir:     getEnvOrDefault("MODELS_DIR", orDefault(config.Trainer.ModelsDir, defaultModelsDir)),
			MinAccuracy:   getFloatOrDefault("MIN_ACCURACY", derefOr(config.Trainer.MinAccuracy, defaultMinAccuracy)),
			MaxGap:        getFloatOrDefault("MAX_GAP", derefOr(config.Trainer.MaxGap, defaultMaxGap)),
		},
		Metric:           getEnvOrDefault("SEARCH_METRIC", orDefault(config.Search.Metric, "accuracy")),
		CVFolds:          getIntOrDefault("CV_FOLDS", derefOr(config.Search.CVFolds, defaultCVFolds)),
		Workers:          getIntOrDefault("SEARCH_WORKERS", config.Search.Workers),
		Seed:             int64(getIntOrDefault("SEARCH_SEED", int(config.Search.Seed))),
		Timeout:          getDurationOrDefault("SEARCH_TIMEOUT", timeout),
		TrackingURI:      getEnvOrDefault("MLFLOW_TRACKING_URI", config.Tracking.URI),
		TrackingUsername: getEnvOrDefault("MLFLOW_TRACKING_USERNAME", config.Tracking.Username),
		TrackingPassword: getEnvOrDefault("MLFLOW_TRACKING_PASSWORD", config.Tracking.Password),
		ExperimentName:   getEnvOrDefault("MLFLOW_EXPERIMENT_NAME", orDefault(config.Tracking.Experiment, defaultExperiment)),
		TrackingDBPath:   getEnvOrDefault("TRACKING_DB_PATH", orDefault(config.Tracking.DBPath, defaultTrackingDB)),
		TrackingTimeout:  getDurationOrDefault("TRACKING_TIMEOUT", trackingTimeout),
		PushgatewayURL:   getEnvOrDefault("PUSHGATEWAY_URL", config.Metrics.PushgatewayURL),
		PushJob:          getEnvOrDefault("PUSH_JOB", orDefault(config.Metrics.Job, defaultPushJob)),
		Candidates:       config.Candidates,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Data: dataset.TransformationArtifact{
			TrainPath:        getEnvOrDefault("TRAIN_FILE_PATH", defaultTrainPath),
			TestPath:         getEnvOrDefault("TEST_FILE_PATH", defaultTestPath),
			PreprocessorPath: getEnvOrDefault("PREPROCESSOR_PATH", defaultPreprocessorPath),
		},
		Trainer: TrainerConfig{
			ModelPath:     getEnvOrDefault("MODEL_PATH", defaultModelPath),
			FinalModelDir: getEnvOrDefault("FINAL_MODEL_DIR", defaultFinalModelDir),
			ModelsDir:     getEnvOrDefault("MODELS_DIR", defaultModelsDir),
			MinAccuracy:   getFloatOrDefault("MIN_ACCURACY", defaultMinAccuracy),
			MaxGap:        getFloatOrDefault("MAX_GAP", defaultMaxGap),
		},
		Metric:           getEnvOrDefault("SEARCH_METRIC", "accuracy"),
		CVFolds:          getIntOrDefault("CV_FOLDS", defaultCVFolds),
		Workers:          getIntOrDefault("SEARCH_WORKERS", 0),
		Seed:             int64(getIntOrDefault("SEARCH_SEED", 0)),
		Timeout:          getDurationOrDefault("SEARCH_TIMEOUT", 0),
		TrackingURI:      os.Getenv("MLFLOW_TRACKING_URI"), // optional
		TrackingUsername: os.Getenv("MLFLOW_TRACKING_USERNAME"),
		TrackingPassword: os.Getenv("MLFLOW_TRACKING_PASSWORD"),
		ExperimentName:   getEnvOrDefault("MLFLOW_EXPERIMENT_NAME", defaultExperiment),
		TrackingDBPath:   getEnvOrDefault("TRACKING_DB_PATH", defaultTrackingDB),
		TrackingTimeout:  getDurationOrDefault("TRACKING_TIMEOUT", 10*time.Second),
		PushgatewayURL:   os.Getenv("PUSHGATEWAY_URL"),
		PushJob:          getEnvOrDefault("PUSH_JOB", defaultPushJob),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring malformed duration")
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring malformed integer")
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring malformed float")
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func derefOr[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}

func parseDurationOr(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

// validateSettings range-checks every value.
func validateSettings(settings *Settings) error {
	if settings.Data.TrainPath == "" || settings.Data.TestPath == "" {
		return fmt.Errorf("train and test file paths are required")
	}
	if settings.Data.PreprocessorPath == "" {
		return fmt.Errorf("preprocessor path is required")
	}
	if settings.Trainer.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.Trainer.MinAccuracy < 0 || settings.Trainer.MinAccuracy > 1 {
		return fmt.Errorf("min accuracy must be between 0 and 1, got %f", settings.Trainer.MinAccuracy)
	}
	if settings.Trainer.MaxGap < 0 || settings.Trainer.MaxGap > 1 {
		return fmt.Errorf("max gap must be between 0 and 1, got %f", settings.Trainer.MaxGap)
	}

	switch settings.Metric {
	case "accuracy", "f1", "r2":
	default:
		return fmt.Errorf("metric must be accuracy, f1 or r2, got %q", settings.Metric)
	}
	if settings.CVFolds < 0 || settings.CVFolds > 20 {
		return fmt.Errorf("cv folds must be between 0 and 20, got %d", settings.CVFolds)
	}
	if settings.CVFolds == 1 {
		return fmt.Errorf("cv folds must be 0 (disabled) or at least 2")
	}
	if settings.Workers < 0 || settings.Workers > 256 {
		return fmt.Errorf("workers must be between 0 (all CPUs) and 256, got %d", settings.Workers)
	}
	if settings.Timeout < 0 {
		return fmt.Errorf("search timeout cannot be negative, got %v", settings.Timeout)
	}
	if settings.TrackingTimeout < time.Second || settings.TrackingTimeout > 5*time.Minute {
		return fmt.Errorf("tracking timeout must be between 1s and 5m, got %v", settings.TrackingTimeout)
	}
	if settings.TrackingURI == "" && settings.TrackingDBPath == "" {
		return fmt.Errorf("either a tracking URI or a tracking db path is required")
	}
	if (settings.TrackingUsername == "") != (settings.TrackingPassword == "") {
		return fmt.Errorf("tracking username and password must be set together")
	}

	for i, c := range settings.Candidates {
		if c.Family == "" {
			return fmt.Errorf("candidate %d: family is required", i)
		}
		for name, values := range c.Grid {
			if len(values) == 0 {
				return fmt.Errorf("candidate %s: parameter %s has no values", c.Family, name)
			}
		}
	}
	return nil
}
