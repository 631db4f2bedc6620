package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// searchQuery builds the id lookup posted to the search service for one
// verification batch.
func searchQuery(recordIDs []string) map[string]any {
	terms := make([]string, len(recordIDs))
	for i, id := range recordIDs {
		terms[i] = fmt.Sprintf("id:%q", id)
	}
	return map[string]any{
		"kind":           "*:*:*:*.*.*",
		"returnedFields": []string{"id"},
		"offset":         0,
		"query":          strings.Join(terms, " OR "),
		"limit":          len(recordIDs),
	}
}

// VerifyIDs asks the search service which of the given record ids exist and
// splits them into found and missing.
func (c *Client) VerifyIDs(ctx context.Context, recordIDs []string) (found, missing []string, err error) {
	if len(recordIDs) == 0 {
		return nil, nil, nil
	}

	var resp struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.SearchURL, searchQuery(recordIDs), &resp); err != nil {
		return nil, nil, fmt.Errorf("search records: %w", err)
	}

	got := map[string]bool{}
	for _, r := range resp.Results {
		got[r.ID] = true
		found = append(found, r.ID)
	}
	for _, id := range recordIDs {
		if !got[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		c.log.Error("records not found in search", "count", len(missing), "ids", missing)
	}
	return found, missing, nil
}

// recordID normalizes a manifest record id for lookup against the
// configured data partition.
func (c *Client) recordID(id string) string {
	id = strings.ReplaceAll(id, "{{NAMESPACE}}", c.cfg.DataPartition)
	return rewriteWellKnownIDs(id, c.cfg.DataPartition)
}

// documentRecordIDs extracts the searchable record ids of one classified
// manifest document.
func (c *Client) documentRecordIDs(doc *Document) []string {
	var ids []string
	switch doc.Type {
	case ReferenceData, MasterData:
		for _, r := range doc.Records {
			datum, ok := r.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := datum["id"].(string); ok {
				ids = append(ids, c.recordID(id))
			}
		}
	case WorkProductData:
		wp, _ := doc.Work["WorkProduct"].(map[string]any)
		if wp == nil {
			return nil
		}
		if id, ok := wp["id"].(string); ok {
			ids = append(ids, c.recordID(id))
		} else if data, ok := wp["data"].(map[string]any); ok {
			if name, ok := data["Name"].(string); ok {
				ids = append(ids, WorkProductID(c.cfg.DataPartition, DirectoryName(doc.Path), name))
			}
		}
	}
	return ids
}

// VerifyDirectory checks every manifest below dir against the search
// service in batches and returns the found and missing record ids.
func (c *Client) VerifyDirectory(ctx context.Context, dir string, batchSize int) (found, missing []string, err error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	var pending []string
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		f, m, err := c.VerifyIDs(ctx, pending)
		if err != nil {
			return err
		}
		found = append(found, f...)
		missing = append(missing, m...)
		pending = nil
		return nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return werr
		}
		doc, err := LoadDocument(path, c.cfg.DataPartition, false)
		if err != nil || doc == nil {
			return err
		}
		pending = append(pending, c.documentRecordIDs(doc)...)
		if len(pending) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return found, missing, err
	}
	return found, missing, flush()
}

// VerifySequence checks the manifests named by an ingestion-sequence
// listing, in order.
func (c *Client) VerifySequence(ctx context.Context, dir, sequenceFile string, batchSize int) (found, missing []string, err error) {
	raw, err := os.ReadFile(sequenceFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read ingestion sequence: %w", err)
	}
	var sequence []SequenceEntry
	if err := json.Unmarshal(raw, &sequence); err != nil {
		return nil, nil, fmt.Errorf("parse ingestion sequence: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	for _, entry := range sequence {
		path := filepath.Join(dir, filepath.FromSlash(entry.FileName))
		doc, err := LoadDocument(path, c.cfg.DataPartition, false)
		if err != nil {
			return found, missing, err
		}
		if doc == nil {
			continue
		}
		ids := c.documentRecordIDs(doc)
		for start := 0; start < len(ids); start += batchSize {
			end := start + batchSize
			if end > len(ids) {
				end = len(ids)
			}
			f, m, err := c.VerifyIDs(ctx, ids[start:end])
			if err != nil {
				return found, missing, err
			}
			found = append(found, f...)
			missing = append(missing, m...)
		}
	}
	return found, missing, nil
}

// DeleteIDs removes records from storage one by one. A 404 counts as
// success, since the goal is the record being gone.
func (c *Client) DeleteIDs(ctx context.Context, ids []string) (deleted, failed []string) {
	for _, id := range ids {
		endpoint := c.cfg.StorageURL + "/" + url.PathEscape(id)
		err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
		if err != nil {
			var se *StatusError
			// 404 means already gone. Retries exhaust on it first, so
			// inspect the final status.
			if errors.As(err, &se) && se.Code == http.StatusNotFound {
				deleted = append(deleted, id)
				continue
			}
			c.log.Warn("failed to delete record", "id", id, "error", err)
			failed = append(failed, id)
			continue
		}
		deleted = append(deleted, id)
	}
	return deleted, failed
}

// DeleteDirectory removes every record referenced by the manifests below
// dir from storage.
func (c *Client) DeleteDirectory(ctx context.Context, dir string) (deleted, failed []string, err error) {
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return werr
		}
		doc, err := LoadDocument(path, c.cfg.DataPartition, false)
		if err != nil || doc == nil {
			return err
		}
		del, fail := c.DeleteIDs(ctx, c.documentRecordIDs(doc))
		deleted = append(deleted, del...)
		failed = append(failed, fail...)
		c.log.Info("deleted manifest records", "path", path, "count", len(del))
		return nil
	})
	return deleted, failed, err
}
