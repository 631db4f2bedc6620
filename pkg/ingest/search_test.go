package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVerifyIDsSplitsFoundAndMissing(t *testing.T) {
	var query map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&query)
		fmt.Fprint(w, `{"results": [{"id": "opendes:reference-data--X:a:"}]}`)
	}))
	defer srv.Close()

	client := testClient(Config{SearchURL: srv.URL})
	found, missing, err := client.VerifyIDs(context.Background(), []string{
		"opendes:reference-data--X:a:",
		"opendes:reference-data--X:b:",
	})
	if err != nil {
		t.Fatalf("VerifyIDs: %v", err)
	}
	if len(found) != 1 || found[0] != "opendes:reference-data--X:a:" {
		t.Errorf("found = %v", found)
	}
	if len(missing) != 1 || missing[0] != "opendes:reference-data--X:b:" {
		t.Errorf("missing = %v", missing)
	}

	if query["kind"] != "*:*:*:*.*.*" {
		t.Errorf("kind = %v", query["kind"])
	}
	q, _ := query["query"].(string)
	if !strings.Contains(q, `id:"opendes:reference-data--X:a:" OR id:"opendes:reference-data--X:b:"`) {
		t.Errorf("query = %q", q)
	}
	if query["limit"] != float64(2) {
		t.Errorf("limit = %v", query["limit"])
	}
}

func TestVerifyDirectoryRewritesRecordIDs(t *testing.T) {
	var q string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		q, _ = body["query"].(string)
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeManifest(t, dir, "ref.json", `{"ReferenceData": [
		{"id": "osdu:reference-data--X:a:"},
		{"id": "{{NAMESPACE}}:reference-data--X:b:"}
	]}`)

	client := testClient(Config{SearchURL: srv.URL})
	found, missing, err := client.VerifyDirectory(context.Background(), dir, 10)
	if err != nil {
		t.Fatalf("VerifyDirectory: %v", err)
	}
	if len(found) != 0 || len(missing) != 2 {
		t.Errorf("found = %v, missing = %v", found, missing)
	}
	if !strings.Contains(q, `id:"opendes:reference-data--X:a:"`) {
		t.Errorf("query missed namespace rewrite: %q", q)
	}
	if !strings.Contains(q, `id:"opendes:reference-data--X:b:"`) {
		t.Errorf("query missed placeholder injection: %q", q)
	}
}

func TestDeleteIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		switch {
		case strings.Contains(r.URL.Path, "gone"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "locked"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client := testClient(Config{StorageURL: srv.URL})
	deleted, failed := client.DeleteIDs(context.Background(), []string{
		"opendes:reference-data--X:live:",
		"opendes:reference-data--X:gone:",
		"opendes:reference-data--X:locked:",
	})
	if len(deleted) != 2 {
		t.Errorf("deleted = %v", deleted)
	}
	if len(failed) != 1 || !strings.Contains(failed[0], "locked") {
		t.Errorf("failed = %v", failed)
	}
}
