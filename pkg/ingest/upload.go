package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// datasetExtensions lists the file types picked up by directory uploads.
var datasetExtensions = map[string]bool{
	".pdf": true,
	".csv": true,
	".las": true,
	".txt": true,
}

// Uploader pushes dataset files to blob storage through signed URLs and
// registers their metadata, producing the location map that work-product
// ingestion consumes.
type Uploader struct {
	Client  *Client
	Workers int
}

func (u *Uploader) workers() int {
	if u.Workers > 0 {
		return u.Workers
	}
	return 2 * runtime.NumCPU()
}

// UploadDirectory uploads every recognized dataset file below dir in
// parallel. It returns the location map of successful uploads and the
// paths that failed.
func (u *Uploader) UploadDirectory(ctx context.Context, dir string) (map[string]FileLocation, []string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return werr
		}
		if datasetExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	u.Client.log.Info("uploading dataset files", "count", len(paths), "workers", u.workers())

	type result struct {
		name string
		loc  FileLocation
		path string
		err  error
	}

	jobs := make(chan string)
	results := make(chan result)
	var wg sync.WaitGroup
	for i := 0; i < u.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				loc, err := u.uploadFile(ctx, path)
				results <- result{name: filepath.Base(path), loc: loc, path: path, err: err}
			}
		}()
	}
	go func() {
		for _, p := range paths {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	locations := map[string]FileLocation{}
	var failed []string
	for r := range results {
		if r.err != nil {
			u.Client.log.Error("file upload failed", "path", r.path, "error", r.err)
			failed = append(failed, r.path)
			continue
		}
		u.Client.log.Info("file upload completed", "path", r.path)
		locations[r.name] = r.loc
	}
	return locations, failed, nil
}

func (u *Uploader) uploadFile(ctx context.Context, path string) (FileLocation, error) {
	c := u.Client
	var loc FileLocation

	var uploadURL struct {
		Location struct {
			SignedURL  string `json:"SignedURL"`
			FileSource string `json:"FileSource"`
		} `json:"Location"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.cfg.FileURL+"/files/uploadURL", nil, &uploadURL); err != nil {
		return loc, fmt.Errorf("request upload url: %w", err)
	}

	if err := putBlob(ctx, c.http, uploadURL.Location.SignedURL, path); err != nil {
		return loc, fmt.Errorf("upload blob: %w", err)
	}

	name := filepath.Base(path)
	meta := fileMetadata(uploadURL.Location.FileSource, name, DirectoryName(path), c.cfg)
	var metaResp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.FileURL+"/files/metadata", meta, &metaResp); err != nil {
		return loc, fmt.Errorf("register metadata: %w", err)
	}

	var versions struct {
		Versions []json.Number `json:"versions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.cfg.StorageURL+"/versions/"+metaResp.ID, nil, &versions); err != nil {
		return loc, fmt.Errorf("fetch record version: %w", err)
	}
	if len(versions.Versions) == 0 {
		return loc, fmt.Errorf("record %s has no versions", metaResp.ID)
	}

	return FileLocation{
		FileID:            metaResp.ID,
		FileSource:        uploadURL.Location.FileSource,
		FileRecordVersion: versions.Versions[0].String(),
		Description:       DirectoryName(path),
	}, nil
}

// putBlob streams a local file to a signed block-blob URL. The signed URL
// already carries authorization, so no platform headers are attached.
func putBlob(ctx context.Context, hc *http.Client, signedURL, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, f)
	if err != nil {
		return err
	}
	req.ContentLength = info.Size()
	req.Header.Set("x-ms-blob-type", "BlockBlob")
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("blob store returned %d", resp.StatusCode)
	}
	return nil
}

func fileMetadata(fileSource, fileName, description string, cfg Config) map[string]any {
	fileType := strings.ToUpper(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if fileType == "LAS" {
		fileType = "LAS2"
	}
	return map[string]any{
		"kind": "osdu:wks:dataset--File.Generic:1.0.0",
		"acl": map[string]any{
			"viewers": []any{cfg.ACLViewer},
			"owners":  []any{cfg.ACLOwner},
		},
		"legal": map[string]any{
			"legaltags":                  []any{cfg.LegalTag},
			"otherRelevantDataCountries": []any{"US"},
			"status":                     "compliant",
		},
		"data": map[string]any{
			"Description":        description,
			"SchemaFormatTypeID": fmt.Sprintf("osdu:reference-data--SchemaFormatType:%s:", fileType),
			"DatasetProperties": map[string]any{
				"FileSourceInfo": map[string]any{
					"FileSource": fileSource,
					"Name":       fileName,
				},
			},
			"Name": fileName,
		},
	}
}

// LoadLocations reads a dataset location map written by a previous upload.
func LoadLocations(path string) (map[string]FileLocation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read location map: %w", err)
	}
	var m map[string]FileLocation
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse location map: %w", err)
	}
	return m, nil
}

// SaveLocations writes the dataset location map for later ingestion runs.
func SaveLocations(path string, locations map[string]FileLocation) error {
	data, err := json.MarshalIndent(locations, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
