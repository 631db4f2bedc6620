package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const manifestKind = "osdu:wks:Manifest:1.0.0"

// RunStatus is the workflow service's view of one ingestion run.
type RunStatus struct {
	RunID          string `json:"runId"`
	Status         string `json:"status"`
	StartTimeStamp int64  `json:"startTimeStamp"`
	EndTimeStamp   int64  `json:"endTimeStamp"`
}

// Finished reports whether the run reached a terminal state.
func (s RunStatus) Finished() bool { return s.Status != "running" && s.Status != "submitted" }

func typedManifest(records []any, dataType DataType) map[string]any {
	return map[string]any{
		"kind":           manifestKind,
		string(dataType): records,
	}
}

func (c *Client) workflowRequest(manifest any) map[string]any {
	return map[string]any{
		"executionContext": map[string]any{
			"Payload": map[string]any{
				"AppKey":            "test-app",
				"data-partition-id": c.cfg.DataPartition,
			},
			"manifest": manifest,
		},
	}
}

// SubmitWorkflow posts one manifest payload to the workflow service and
// returns the run id it was assigned.
func (c *Client) SubmitWorkflow(ctx context.Context, manifest any) (string, error) {
	var resp struct {
		RunID string `json:"runId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.WorkflowURL, c.workflowRequest(manifest), &resp); err != nil {
		return "", fmt.Errorf("submit workflow: %w", err)
	}
	return resp.RunID, nil
}

// WorkflowStatus fetches the current state of a run.
func (c *Client) WorkflowStatus(ctx context.Context, runID string) (RunStatus, error) {
	var st RunStatus
	if err := c.doJSON(ctx, http.MethodGet, c.cfg.WorkflowURL+"/"+runID, nil, &st); err != nil {
		return st, fmt.Errorf("workflow status %s: %w", runID, err)
	}
	if st.RunID == "" {
		st.RunID = runID
	}
	return st, nil
}

// Ingestor walks manifest directories and submits their contents as
// batched workflow runs, journaling every run id it receives.
type Ingestor struct {
	Client    *Client
	Journal   *Journal
	BatchSize int
	Group     string

	// InjectNamespace substitutes the data partition for the {{NAMESPACE}}
	// placeholder in standard reference manifests.
	InjectNamespace bool

	// Locations maps uploaded dataset file names to their platform ids,
	// required for work-product ingestion.
	Locations map[string]FileLocation

	// AsWorkProduct wraps each manifest in the generic manifest kind
	// instead of a typed section.
	AsWorkProduct bool
}

func (in *Ingestor) batchSize() int {
	if in.BatchSize <= 0 {
		return 1
	}
	return in.BatchSize
}

// IngestDirectory submits every recognized manifest below dir.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		doc, err := LoadDocument(path, in.Client.cfg.DataPartition, in.InjectNamespace)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		return in.ingestDocument(ctx, doc)
	})
}

// SequenceEntry names one manifest file in an ingestion-sequence listing.
type SequenceEntry struct {
	FileName string `json:"FileName"`
}

// IngestSequence submits manifests in the order given by a sequence file,
// which matters for reference data with cross-record dependencies.
func (in *Ingestor) IngestSequence(ctx context.Context, dir, sequenceFile string) error {
	raw, err := os.ReadFile(sequenceFile)
	if err != nil {
		return fmt.Errorf("read ingestion sequence: %w", err)
	}
	var sequence []SequenceEntry
	if err := json.Unmarshal(raw, &sequence); err != nil {
		return fmt.Errorf("parse ingestion sequence: %w", err)
	}

	for _, entry := range sequence {
		path := filepath.Join(dir, filepath.FromSlash(entry.FileName))
		doc, err := LoadDocument(path, in.Client.cfg.DataPartition, true)
		if err != nil {
			return err
		}
		if doc == nil {
			in.Client.log.Warn("nothing to ingest", "path", path)
			continue
		}
		if err := in.ingestDocument(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (in *Ingestor) ingestDocument(ctx context.Context, doc *Document) error {
	switch doc.Type {
	case ReferenceData, MasterData:
		records := PrepareRecords(doc.Records, in.Client.cfg)
		return in.submitBatches(ctx, records, doc.Type)
	case WorkProductData:
		if len(in.Locations) == 0 {
			return fmt.Errorf("a dataset location map is required for work-product ingestion")
		}
		work, err := PrepareWorkProduct(doc.Work, in.Locations, DirectoryName(doc.Path), in.Client.cfg)
		if err != nil {
			return fmt.Errorf("%s: %w", doc.Path, err)
		}
		manifest := typedManifest([]any{work}, WorkProductData)
		if in.AsWorkProduct {
			return in.submit(ctx, []any{manifest})
		}
		return in.submit(ctx, manifest)
	}
	return nil
}

func (in *Ingestor) submitBatches(ctx context.Context, records []any, dataType DataType) error {
	size := in.batchSize()
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		if err := in.submit(ctx, typedManifest(records[start:end], dataType)); err != nil {
			return err
		}
	}
	return nil
}

func (in *Ingestor) submit(ctx context.Context, manifest any) error {
	runID, err := in.Client.SubmitWorkflow(ctx, manifest)
	if err != nil {
		return err
	}
	in.Client.log.Info("workflow submitted", "run_id", runID)
	if in.Journal != nil {
		if err := in.Journal.Record(runID, in.Group); err != nil {
			return err
		}
	}
	return nil
}

// CheckRuns polls the workflow service once for every journaled run in the
// group and writes the observed states back to the journal.
func CheckRuns(ctx context.Context, c *Client, j *Journal, group string) ([]RunStatus, error) {
	ids, err := j.RunIDs(group)
	if err != nil {
		return nil, err
	}

	var out []RunStatus
	for _, id := range ids {
		st, err := c.WorkflowStatus(ctx, id)
		if err != nil {
			c.log.Error("unable to fetch run status", "run_id", id, "error", err)
			out = append(out, RunStatus{RunID: id, Status: "unknown"})
			continue
		}
		if st.Finished() {
			c.log.Info("workflow finished", "run_id", id, "status", st.Status)
		}
		if err := j.UpdateStatus(st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// WaitRuns polls until every journaled run in the group reaches a terminal
// state, sleeping between rounds.
func WaitRuns(ctx context.Context, c *Client, j *Journal, group string, interval time.Duration) ([]RunStatus, error) {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		statuses, err := CheckRuns(ctx, c, j, group)
		if err != nil {
			return nil, err
		}
		running := 0
		for _, st := range statuses {
			if !st.Finished() {
				running++
			}
		}
		if running == 0 {
			return statuses, nil
		}
		c.log.Info("waiting for workflow runs", "running", running)
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return statuses, ctx.Err()
		}
	}
}

// Report aggregates journaled run outcomes for one group.
type Report struct {
	Group          string  `json:"data_type"`
	TimeTakenMin   float64 `json:"time_taken_in_minutes"`
	RunsSuccessful int     `json:"ingestion_runs_successful"`
	RunsFailed     int     `json:"ingestion_runs_failed"`
	RunsIncomplete int     `json:"ingestion_runs_incomplete"`
	AvgRunSeconds  float64 `json:"avg_time_taken_per_dag_run_in_seconds"`
}

// ComputeReport summarizes the journal rows of one group: success and
// failure counts, wall-clock span, and average per-run duration.
func ComputeReport(j *Journal, group string) (Report, error) {
	rep := Report{Group: group}
	runs, err := j.Runs(group)
	if err != nil {
		return rep, err
	}

	var (
		totalSec   float64
		minStart   int64
		maxEnd     int64
		haveWindow bool
	)
	for _, r := range runs {
		switch r.Status {
		case "finished":
			rep.RunsSuccessful++
			if r.StartTime != nil && r.EndTime != nil {
				totalSec += float64(*r.EndTime-*r.StartTime) / 1000
				if !haveWindow || *r.StartTime < minStart {
					minStart = *r.StartTime
				}
				if *r.EndTime > maxEnd {
					maxEnd = *r.EndTime
				}
				haveWindow = true
			}
		case "failed":
			rep.RunsFailed++
		default:
			rep.RunsIncomplete++
		}
	}
	if rep.RunsSuccessful > 0 {
		rep.AvgRunSeconds = totalSec / float64(rep.RunsSuccessful)
	}
	if haveWindow {
		rep.TimeTakenMin = float64(maxEnd-minStart) / (60 * 1000)
	}
	return rep, nil
}
