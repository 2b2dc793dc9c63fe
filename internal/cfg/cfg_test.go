package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.Trainer.MinAccuracy != 0.6 {
					t.Errorf("expected default MinAccuracy 0.6, got %f", settings.Trainer.MinAccuracy)
				}
				if settings.Trainer.MaxGap != 0.05 {
					t.Errorf("expected default MaxGap 0.05, got %f", settings.Trainer.MaxGap)
				}
				if settings.Trainer.ModelPath != "artifacts/model_trainer/trained_model/model.json" {
					t.Errorf("unexpected default ModelPath %s", settings.Trainer.ModelPath)
				}
				if settings.Trainer.FinalModelDir != "final_model" {
					t.Errorf("expected default FinalModelDir final_model, got %s", settings.Trainer.FinalModelDir)
				}
				if settings.CVFolds != 3 {
					t.Errorf("expected default CVFolds 3, got %d", settings.CVFolds)
				}
				if settings.Metric != "accuracy" {
					t.Errorf("expected default metric accuracy, got %s", settings.Metric)
				}
				if settings.TrackingURI != "" {
					t.Errorf("expected no tracking URI, got %s", settings.TrackingURI)
				}
				if settings.TrackingTimeout != 10*time.Second {
					t.Errorf("expected default TrackingTimeout 10s, got %v", settings.TrackingTimeout)
				}
			},
		},
		{
			name: "overrides",
			envVars: map[string]string{
				"TRAIN_FILE_PATH":          "data/train.npy",
				"MIN_ACCURACY":             "0.8",
				"MAX_GAP":                  "0.1",
				"CV_FOLDS":                 "0",
				"SEARCH_WORKERS":           "4",
				"SEARCH_TIMEOUT":           "2m",
				"SEARCH_METRIC":            "f1",
				"MLFLOW_TRACKING_URI":      "https://dagshub.com/u/network-security.mlflow",
				"MLFLOW_TRACKING_USERNAME": "u",
				"MLFLOW_TRACKING_PASSWORD": "p",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Data.TrainPath != "data/train.npy" {
					t.Errorf("expected TrainPath data/train.npy, got %s", settings.Data.TrainPath)
				}
				if settings.Trainer.MinAccuracy != 0.8 {
					t.Errorf("expected MinAccuracy 0.8, got %f", settings.Trainer.MinAccuracy)
				}
				if settings.CVFolds != 0 {
					t.Errorf("expected CVFolds 0, got %d", settings.CVFolds)
				}
				if settings.Workers != 4 {
					t.Errorf("expected Workers 4, got %d", settings.Workers)
				}
				if settings.Timeout != 2*time.Minute {
					t.Errorf("expected Timeout 2m, got %v", settings.Timeout)
				}
				if settings.Metric != "f1" {
					t.Errorf("expected metric f1, got %s", settings.Metric)
				}
				if settings.TrackingUsername != "u" || settings.TrackingPassword != "p" {
					t.Error("expected tracking credentials from environment")
				}
			},
		},
		{
			name:    "min accuracy out of range",
			envVars: map[string]string{"MIN_ACCURACY": "1.5"},
			wantErr: true,
		},
		{
			name:    "single cv fold",
			envVars: map[string]string{"CV_FOLDS": "1"},
			wantErr: true,
		},
		{
			name:    "unknown metric",
			envVars: map[string]string{"SEARCH_METRIC": "auc"},
			wantErr: true,
		},
		{
			name:    "username without password",
			envVars: map[string]string{"MLFLOW_TRACKING_USERNAME": "u"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := loadFromEnv()
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadFromEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
data:
  trainPath: "transformed/train.npy"
  testPath: "transformed/test.npy"
  preprocessorPath: "transformed/preprocessing.json"
trainer:
  modelPath: "out/model.json"
  minAccuracy: 0.7
  maxGap: 0
search:
  metric: "r2"
  cvFolds: 5
  workers: 2
  seed: 42
  timeout: "30m"
tracking:
  experiment: "phishing"
  dbPath: "out/runs.db"
candidates:
  - family: "decision_tree"
    grid:
      criterion: ["gini", "entropy"]
  - family: "knn"
    grid:
      n_neighbors: [3, 5]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	settings, err := loadFromYAML(configPath)
	if err != nil {
		t.Fatalf("loadFromYAML() error = %v", err)
	}

	if settings.Data.TestPath != "transformed/test.npy" {
		t.Errorf("expected TestPath from YAML, got %s", settings.Data.TestPath)
	}
	if settings.Trainer.ModelPath != "out/model.json" {
		t.Errorf("expected ModelPath from YAML, got %s", settings.Trainer.ModelPath)
	}
	if settings.Trainer.MinAccuracy != 0.7 {
		t.Errorf("expected MinAccuracy 0.7, got %f", settings.Trainer.MinAccuracy)
	}
	if settings.Trainer.MaxGap != 0 {
		t.Errorf("expected explicit MaxGap 0 to be kept, got %f", settings.Trainer.MaxGap)
	}
	if settings.Trainer.FinalModelDir != "final_model" {
		t.Errorf("expected default FinalModelDir, got %s", settings.Trainer.FinalModelDir)
	}
	if settings.CVFolds != 5 || settings.Workers != 2 || settings.Seed != 42 {
		t.Errorf("unexpected search settings: folds=%d workers=%d seed=%d", settings.CVFolds, settings.Workers, settings.Seed)
	}
	if settings.Timeout != 30*time.Minute {
		t.Errorf("expected Timeout 30m, got %v", settings.Timeout)
	}
	if settings.ExperimentName != "phishing" {
		t.Errorf("expected experiment phishing, got %s", settings.ExperimentName)
	}
	if len(settings.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(settings.Candidates))
	}
	if settings.Candidates[1].Family != "knn" || len(settings.Candidates[1].Grid["n_neighbors"]) != 2 {
		t.Errorf("unexpected candidate %+v", settings.Candidates[1])
	}
}

func TestLoadFromYAML_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("trainer:\n  minAccuracy: 0.7\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("MIN_ACCURACY", "0.9")

	settings, err := loadFromYAML(configPath)
	if err != nil {
		t.Fatalf("loadFromYAML() error = %v", err)
	}
	if settings.Trainer.MinAccuracy != 0.9 {
		t.Errorf("expected env override 0.9, got %f", settings.Trainer.MinAccuracy)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := loadFromYAML(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	tests := map[string]string{
		"malformed":      "trainer: [",
		"bad timeout":    "search:\n  timeout: soon\n",
		"empty grid":     "candidates:\n  - family: knn\n    grid:\n      n_neighbors: []\n",
		"missing family": "candidates:\n  - grid:\n      n_neighbors: [3]\n",
		"negative gap":   "trainer:\n  maxGap: -0.1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, strings.ReplaceAll(name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			if _, err := loadFromYAML(path); err == nil {
				t.Errorf("expected error for %s config", name)
			}
		})
	}
}

func TestLoad_UsesConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("search:\n  workers: 3\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", configPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if settings.Workers != 3 {
		t.Errorf("expected Workers 3 from config file, got %d", settings.Workers)
	}
}
