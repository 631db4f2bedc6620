package ingest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DataType names the top-level section of a manifest file that carries the
// records to ingest.
type DataType string

const (
	ReferenceData   DataType = "ReferenceData"
	MasterData      DataType = "MasterData"
	WorkProductData DataType = "Data"
)

// Document is one manifest file classified by its payload section.
type Document struct {
	Path    string
	Type    DataType
	Records []any          // ReferenceData / MasterData entries
	Work    map[string]any // Data subtree for work-product manifests
}

// FileLocation records where an uploaded dataset landed, keyed by file name
// in the location map produced by the upload command.
type FileLocation struct {
	FileID            string `json:"file_id"`
	FileSource        string `json:"file_source"`
	FileRecordVersion string `json:"file_record_version"`
	Description       string `json:"Description"`
}

// LoadDocument reads and classifies one manifest file. Non-JSON files and
// manifests without a recognized payload section yield a nil Document.
// When injectNamespace is set, the {{NAMESPACE}} placeholder is replaced by
// the data partition before classification.
func LoadDocument(path, partition string, injectNamespace bool) (*Document, error) {
	if !strings.HasSuffix(path, ".json") {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if injectNamespace {
		raw = []byte(strings.ReplaceAll(string(raw), "{{NAMESPACE}}", partition))
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("manifest %s is empty", path)
	}

	if records, ok := doc[string(ReferenceData)].([]any); ok && len(records) > 0 {
		return &Document{Path: path, Type: ReferenceData, Records: records}, nil
	}
	if records, ok := doc[string(MasterData)].([]any); ok && len(records) > 0 {
		return &Document{Path: path, Type: MasterData, Records: records}, nil
	}
	if work, ok := doc[string(WorkProductData)].(map[string]any); ok {
		return &Document{Path: path, Type: WorkProductData, Work: work}, nil
	}
	return nil, nil
}

// rewriteWellKnownIDs maps the generic osdu record-id namespaces and
// surrogate keys onto the configured data partition.
func rewriteWellKnownIDs(s, partition string) string {
	s = strings.ReplaceAll(s, "osdu:reference-data", partition+":reference-data")
	s = strings.ReplaceAll(s, "osdu:master-data", partition+":master-data")
	return s
}

// PrepareRecords stamps ids, legal tags and ACLs onto reference or master
// data records in place and returns them.
func PrepareRecords(records []any, cfg Config) []any {
	for _, r := range records {
		datum, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := datum["id"].(string); ok {
			id = strings.ReplaceAll(id, "{{NAMESPACE}}", cfg.DataPartition)
			datum["id"] = rewriteWellKnownIDs(id, cfg.DataPartition)
		}
		stampLegalACL(datum, cfg)
	}
	return records
}

// PrepareWorkProduct resolves a work-product manifest against the dataset
// location map: surrogate keys become real ids, the first dataset points at
// the uploaded file, and the component references the file at its uploaded
// version. A missing location entry leaves the manifest unresolved.
func PrepareWorkProduct(work map[string]any, locations map[string]FileLocation, baseDir string, cfg Config) (map[string]any, error) {
	raw, err := json.Marshal(work)
	if err != nil {
		return nil, fmt.Errorf("encode work product: %w", err)
	}
	s := rewriteWellKnownIDs(string(raw), cfg.DataPartition)
	s = strings.ReplaceAll(s, "surrogate-key:file-1", "surrogate-key:dataset--1:0:0")
	s = strings.ReplaceAll(s, "surrogate-key:wpc-1", "surrogate-key:wpc--1:0:0")
	if err := json.Unmarshal([]byte(s), &work); err != nil {
		return nil, fmt.Errorf("decode work product: %w", err)
	}

	wp, _ := work["WorkProduct"].(map[string]any)
	if wp == nil {
		return nil, fmt.Errorf("work-product manifest has no WorkProduct section")
	}
	stampLegalACL(wp, cfg)
	components, _ := work["WorkProductComponents"].([]any)
	for _, c := range components {
		if m, ok := c.(map[string]any); ok {
			stampLegalACL(m, cfg)
		}
	}
	datasets, _ := work["Datasets"].([]any)
	for _, d := range datasets {
		if m, ok := d.(map[string]any); ok {
			stampLegalACL(m, cfg)
		}
	}

	data, _ := wp["data"].(map[string]any)
	name, _ := data["Name"].(string)
	loc, ok := locations[name]
	if !ok {
		return nil, fmt.Errorf("no uploaded dataset found for %q", name)
	}

	if len(datasets) > 0 {
		ds := datasets[0].(map[string]any)
		ds["id"] = loc.FileID
		if fsi := dig(ds, "data", "DatasetProperties", "FileSourceInfo"); fsi != nil {
			fsi["FileSource"] = loc.FileSource
			delete(fsi, "PreloadFilePath")
		}
	}
	if len(components) > 0 {
		if refs := dig(components[0].(map[string]any), "data"); refs != nil {
			if ids, ok := refs["Datasets"].([]any); ok && len(ids) > 0 {
				ids[0] = loc.FileID + ":" + loc.FileRecordVersion
			}
		}
	}
	if _, ok := wp["id"]; !ok {
		wp["id"] = WorkProductID(cfg.DataPartition, baseDir, name)
	}
	return work, nil
}

// WorkProductID derives a deterministic work-product record id from the
// source directory and file name.
func WorkProductID(partition, baseDir, fileName string) string {
	return fmt.Sprintf("%s:work-product--WorkProduct:%s-%s", partition, baseDir, fileName)
}

// DirectoryName returns the URL-escaped name of the directory holding path.
func DirectoryName(path string) string {
	return url.QueryEscape(filepath.Base(filepath.Dir(path)))
}

func stampLegalACL(datum map[string]any, cfg Config) {
	legal, ok := datum["legal"].(map[string]any)
	if !ok {
		legal = map[string]any{}
		datum["legal"] = legal
	}
	legal["legaltags"] = []any{cfg.LegalTag}
	legal["otherRelevantDataCountries"] = []any{"US"}

	acl, ok := datum["acl"].(map[string]any)
	if !ok {
		acl = map[string]any{}
		datum["acl"] = acl
	}
	acl["viewers"] = []any{cfg.ACLViewer}
	acl["owners"] = []any{cfg.ACLOwner}
}

func dig(m map[string]any, keys ...string) map[string]any {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}
