package tracking

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const apiPrefix = "/api/2.0/mlflow/"

// MLflowTracker logs runs to an MLflow tracking server.
type MLflowTracker struct {
	base       string
	experiment string
	rest       *resty.Client

	mu           sync.Mutex
	experimentID string
}

// NewMLflow creates a tracker for the server at uri. username and password
// enable basic auth when set.
func NewMLflow(uri, experiment, username, password string, timeout time.Duration) *MLflowTracker {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	if username != "" {
		r.SetBasicAuth(username, password)
	}
	return &MLflowTracker{
		base:       strings.TrimRight(uri, "/"),
		experiment: experiment,
		rest:       r,
	}
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metricEntry struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// LogRun creates a run in the configured experiment, logs its params,
// metrics and tags in one batch and marks it finished.
func (t *MLflowTracker) LogRun(ctx context.Context, run Run) error {
	expID, err := t.ensureExperiment(ctx)
	if err != nil {
		return err
	}

	var created struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	err = t.post(ctx, "runs/create", map[string]any{
		"experiment_id": expID,
		"run_name":      run.Name,
		"start_time":    run.StartTime.UnixMilli(),
	}, &created)
	if err != nil {
		return err
	}
	runID := created.Run.Info.RunID
	if runID == "" {
		return fmt.Errorf("mlflow: runs/create returned no run id")
	}

	ts := run.EndTime.UnixMilli()
	batch := map[string]any{
		"run_id":  runID,
		"params":  sortedPairs(run.Params),
		"tags":    sortedPairs(run.Tags),
		"metrics": metricEntries(run.Metrics, ts),
	}
	if err := t.post(ctx, "runs/log-batch", batch, nil); err != nil {
		return err
	}

	return t.post(ctx, "runs/update", map[string]any{
		"run_id":   runID,
		"status":   "FINISHED",
		"end_time": ts,
	}, nil)
}

func (t *MLflowTracker) ensureExperiment(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.experimentID != "" {
		return t.experimentID, nil
	}

	var found struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	apiErr := &apiError{}
	resp, err := t.rest.R().
		SetContext(ctx).
		SetQueryParam("experiment_name", t.experiment).
		SetResult(&found).
		SetError(apiErr).
		Get(t.base + apiPrefix + "experiments/get-by-name")
	if err != nil {
		return "", fmt.Errorf("mlflow: experiments/get-by-name: request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK && found.Experiment.ExperimentID != "":
		t.experimentID = found.Experiment.ExperimentID
	case resp.StatusCode() == http.StatusNotFound || apiErr.ErrorCode == "RESOURCE_DOES_NOT_EXIST":
		var created struct {
			ExperimentID string `json:"experiment_id"`
		}
		if err := t.post(ctx, "experiments/create", map[string]string{"name": t.experiment}, &created); err != nil {
			return "", err
		}
		if created.ExperimentID == "" {
			return "", fmt.Errorf("mlflow: experiments/create returned no experiment id")
		}
		t.experimentID = created.ExperimentID
	default:
		return "", fmt.Errorf("mlflow: experiments/get-by-name: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	return t.experimentID, nil
}

func (t *MLflowTracker) post(ctx context.Context, endpoint string, body, result any) error {
	req := t.rest.R().SetContext(ctx).SetBody(body)
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Post(t.base + apiPrefix + endpoint)
	if err != nil {
		return fmt.Errorf("mlflow: %s: request failed: %w", endpoint, err)
	}
	if resp.IsError() {
		return fmt.Errorf("mlflow: %s: status %d, body: %s", endpoint, resp.StatusCode(), resp.String())
	}
	return nil
}

func sortedPairs(m map[string]string) []keyValue {
	out := make([]keyValue, 0, len(m))
	for k, v := range m {
		out = append(out, keyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func metricEntries(m map[string]float64, ts int64) []metricEntry {
	out := make([]metricEntry, 0, len(m))
	for k, v := range m {
		out = append(out, metricEntry{Key: k, Value: v, Timestamp: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
