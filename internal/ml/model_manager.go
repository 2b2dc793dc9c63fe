package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"network-security/internal/model"
)

// ModelVersion represents a persisted combined model.
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics summarises how a version scored when it was selected.
type ModelMetrics struct {
	Family          model.Family `json:"family"`
	Params          model.Params `json:"params,omitempty"`
	TrainScore      float64      `json:"train_score"`
	TestScore       float64      `json:"test_score"`
	F1Score         float64      `json:"f1_score"`
	Precision       float64      `json:"precision"`
	Recall          float64      `json:"recall"`
	TrainingSamples int          `json:"training_samples"`
}

// ModelManager handles model versioning and rollback. Versions are kept
// newest first.
type ModelManager struct {
	mu           sync.Mutex
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	current      string
}

// NewModelManager creates a manager backed by modelsDir/model_versions.json.
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if modelsDir == "" {
		return nil, fmt.Errorf("models directory is required")
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models directory: %w", err)
	}

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, "model_versions.json"),
		versions:     make([]ModelVersion, 0),
	}

	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load model versions, starting fresh")
	}

	return mm, nil
}

// AddVersion records a new inactive version of the model at modelPath.
func (mm *ModelManager) AddVersion(modelPath string, metrics ModelMetrics) (ModelVersion, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	now := time.Now()
	return mm.add(newVersionID(now), modelPath, now, metrics)
}

// Store writes data as a new version file under the models directory and
// records it as an inactive version.
func (mm *ModelManager) Store(data []byte, metrics ModelMetrics) (ModelVersion, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	id := newVersionID(now)
	path := filepath.Join(mm.modelsDir, id+".json")
	if err := writeFileAtomic(path, data); err != nil {
		return ModelVersion{}, err
	}
	return mm.add(id, path, now, metrics)
}

func newVersionID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.Format("20060102-150405"), uuid.NewString()[:8])
}

func (mm *ModelManager) add(id, path string, now time.Time, metrics ModelMetrics) (ModelVersion, error) {
	version := ModelVersion{
		Version:   id,
		Path:      path,
		CreatedAt: now,
		Metrics:   metrics,
	}

	mm.versions = append(mm.versions, version)
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})

	return version, mm.saveVersions()
}

// ActivateVersion makes version the only active one.
func (mm *ModelManager) ActivateVersion(version string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.activate(version)
}

func (mm *ModelManager) activate(version string) error {
	found := false
	for i := range mm.versions {
		mm.versions[i].IsActive = mm.versions[i].Version == version
		found = found || mm.versions[i].IsActive
	}
	if !found {
		return fmt.Errorf("version %s not found", version)
	}
	mm.current = version
	return mm.saveVersions()
}

// Rollback activates the version created before the active one.
func (mm *ModelManager) Rollback() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(mm.versions) {
		return fmt.Errorf("no previous version available")
	}

	return mm.activate(mm.versions[currentIdx+1].Version)
}

// GetCurrentVersion returns the active version, or nil.
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for i := range mm.versions {
		if mm.versions[i].Version == mm.current {
			v := mm.versions[i]
			return &v
		}
	}
	return nil
}

// ListVersions returns a copy of all versions, newest first.
func (mm *ModelManager) ListVersions() []ModelVersion {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return append([]ModelVersion(nil), mm.versions...)
}

func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}

	for _, v := range mm.versions {
		if v.IsActive {
			mm.current = v.Version
			break
		}
	}
	return nil
}

func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(mm.versionsFile, data)
}
