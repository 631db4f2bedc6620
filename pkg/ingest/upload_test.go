package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestUploadDirectory(t *testing.T) {
	var blobBody atomic.Value
	var metadata atomic.Value

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("GET /files/uploadURL", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"Location": {"SignedURL": %q, "FileSource": "/osdu-user/source.las"}}`, srv.URL+"/blob")
	})
	mux.HandleFunc("PUT /blob", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-ms-blob-type") != "BlockBlob" {
			t.Errorf("blob type header = %q", r.Header.Get("x-ms-blob-type"))
		}
		body, _ := io.ReadAll(r.Body)
		blobBody.Store(string(body))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /files/metadata", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		json.NewDecoder(r.Body).Decode(&m)
		metadata.Store(m)
		fmt.Fprint(w, `{"id": "opendes:dataset--File.Generic:abc"}`)
	})
	mux.HandleFunc("GET /versions/{id...}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"versions": [1693405681234567]}`)
	})

	dir := filepath.Join(t.TempDir(), "welllogs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "curve.las"), []byte("~VERSION"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := testClient(Config{
		FileURL:    srv.URL,
		StorageURL: srv.URL,
		LegalTag:   "tag",
		ACLViewer:  "v@x",
		ACLOwner:   "o@x",
	})
	up := &Uploader{Client: client, Workers: 2}
	locations, failed, err := up.UploadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("UploadDirectory: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("failed = %v", failed)
	}
	if len(locations) != 1 {
		t.Fatalf("locations = %v", locations)
	}

	loc := locations["curve.las"]
	if loc.FileID != "opendes:dataset--File.Generic:abc" {
		t.Errorf("file id = %q", loc.FileID)
	}
	if loc.FileSource != "/osdu-user/source.las" {
		t.Errorf("file source = %q", loc.FileSource)
	}
	if loc.FileRecordVersion != "1693405681234567" {
		t.Errorf("record version = %q", loc.FileRecordVersion)
	}
	if loc.Description != "welllogs" {
		t.Errorf("description = %q", loc.Description)
	}
	if got := blobBody.Load(); got != "~VERSION" {
		t.Errorf("blob body = %q", got)
	}

	meta := metadata.Load().(map[string]any)
	if meta["kind"] != "osdu:wks:dataset--File.Generic:1.0.0" {
		t.Errorf("metadata kind = %v", meta["kind"])
	}
	data := meta["data"].(map[string]any)
	if data["SchemaFormatTypeID"] != "osdu:reference-data--SchemaFormatType:LAS2:" {
		t.Errorf("format type = %v", data["SchemaFormatTypeID"])
	}
	if data["Name"] != "curve.las" {
		t.Errorf("name = %v", data["Name"])
	}
}

func TestLocationMapRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.json")
	in := map[string]FileLocation{
		"curve.las": {
			FileID:            "opendes:dataset--File.Generic:abc",
			FileSource:        "/osdu-user/source.las",
			FileRecordVersion: "42",
			Description:       "welllogs",
		},
	}
	if err := SaveLocations(path, in); err != nil {
		t.Fatalf("SaveLocations: %v", err)
	}
	out, err := LoadLocations(path)
	if err != nil {
		t.Fatalf("LoadLocations: %v", err)
	}
	if out["curve.las"] != in["curve.las"] {
		t.Errorf("round trip = %+v", out["curve.las"])
	}
}
