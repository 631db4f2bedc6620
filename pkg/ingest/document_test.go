package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDocumentClassification(t *testing.T) {
	dir := t.TempDir()

	ref := writeManifest(t, dir, "ref.json", `{"ReferenceData": [{"id": "a"}]}`)
	doc, err := LoadDocument(ref, "opendes", false)
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil || doc.Type != ReferenceData || len(doc.Records) != 1 {
		t.Errorf("reference doc = %+v", doc)
	}

	master := writeManifest(t, dir, "master.json", `{"MasterData": [{"id": "b"}]}`)
	doc, err = LoadDocument(master, "opendes", false)
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil || doc.Type != MasterData {
		t.Errorf("master doc = %+v", doc)
	}

	work := writeManifest(t, dir, "wp.json", `{"Data": {"WorkProduct": {}}}`)
	doc, err = LoadDocument(work, "opendes", false)
	if err != nil {
		t.Fatal(err)
	}
	if doc == nil || doc.Type != WorkProductData {
		t.Errorf("work-product doc = %+v", doc)
	}

	other := filepath.Join(dir, "readme.txt")
	if err := os.WriteFile(other, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err = LoadDocument(other, "opendes", false)
	if err != nil || doc != nil {
		t.Errorf("non-json: doc = %v, err = %v", doc, err)
	}

	unknown := writeManifest(t, dir, "unknown.json", `{"Other": true}`)
	doc, err = LoadDocument(unknown, "opendes", false)
	if err != nil || doc != nil {
		t.Errorf("unrecognized: doc = %v, err = %v", doc, err)
	}
}

func TestPrepareRecords(t *testing.T) {
	cfg := Config{DataPartition: "opendes", LegalTag: "tag", ACLViewer: "v@x", ACLOwner: "o@x"}
	records := []any{
		map[string]any{"id": "osdu:reference-data--X:a:"},
		map[string]any{"id": "{{NAMESPACE}}:master-data--Well:b"},
	}

	out := PrepareRecords(records, cfg)
	first := out[0].(map[string]any)
	if first["id"] != "opendes:reference-data--X:a:" {
		t.Errorf("id = %v", first["id"])
	}
	legal := first["legal"].(map[string]any)
	if legal["legaltags"].([]any)[0] != "tag" {
		t.Errorf("legal = %v", legal)
	}
	if legal["otherRelevantDataCountries"].([]any)[0] != "US" {
		t.Errorf("legal = %v", legal)
	}
	acl := first["acl"].(map[string]any)
	if acl["viewers"].([]any)[0] != "v@x" || acl["owners"].([]any)[0] != "o@x" {
		t.Errorf("acl = %v", acl)
	}
	second := out[1].(map[string]any)
	if second["id"] != "opendes:master-data--Well:b" {
		t.Errorf("id = %v", second["id"])
	}
}

func TestPrepareWorkProduct(t *testing.T) {
	cfg := Config{DataPartition: "opendes", LegalTag: "tag", ACLViewer: "v@x", ACLOwner: "o@x"}
	work := map[string]any{
		"WorkProduct": map[string]any{
			"data": map[string]any{"Name": "curve.las"},
		},
		"WorkProductComponents": []any{
			map[string]any{
				"id": "surrogate-key:wpc-1",
				"data": map[string]any{
					"Datasets": []any{"surrogate-key:file-1"},
				},
			},
		},
		"Datasets": []any{
			map[string]any{
				"id": "surrogate-key:file-1",
				"data": map[string]any{
					"DatasetProperties": map[string]any{
						"FileSourceInfo": map[string]any{
							"PreloadFilePath": "/preload/curve.las",
						},
					},
				},
			},
		},
	}
	locations := map[string]FileLocation{
		"curve.las": {
			FileID:            "opendes:dataset--File.Generic:abc",
			FileSource:        "/osdu-user/source.las",
			FileRecordVersion: "42",
		},
	}

	out, err := PrepareWorkProduct(work, locations, "welllogs", cfg)
	if err != nil {
		t.Fatalf("PrepareWorkProduct: %v", err)
	}

	wp := out["WorkProduct"].(map[string]any)
	if wp["id"] != "opendes:work-product--WorkProduct:welllogs-curve.las" {
		t.Errorf("work product id = %v", wp["id"])
	}
	if wp["legal"].(map[string]any)["legaltags"].([]any)[0] != "tag" {
		t.Errorf("work product legal missing")
	}

	ds := out["Datasets"].([]any)[0].(map[string]any)
	if ds["id"] != "opendes:dataset--File.Generic:abc" {
		t.Errorf("dataset id = %v", ds["id"])
	}
	fsi := ds["data"].(map[string]any)["DatasetProperties"].(map[string]any)["FileSourceInfo"].(map[string]any)
	if fsi["FileSource"] != "/osdu-user/source.las" {
		t.Errorf("file source = %v", fsi["FileSource"])
	}
	if _, ok := fsi["PreloadFilePath"]; ok {
		t.Errorf("preload path should be dropped")
	}

	wpc := out["WorkProductComponents"].([]any)[0].(map[string]any)
	if wpc["id"] != "surrogate-key:wpc--1:0:0" {
		t.Errorf("component id = %v", wpc["id"])
	}
	refs := wpc["data"].(map[string]any)["Datasets"].([]any)
	if refs[0] != "opendes:dataset--File.Generic:abc:42" {
		t.Errorf("component dataset ref = %v", refs[0])
	}
}

func TestPrepareWorkProductMissingLocation(t *testing.T) {
	cfg := Config{DataPartition: "opendes"}
	work := map[string]any{
		"WorkProduct": map[string]any{
			"data": map[string]any{"Name": "absent.las"},
		},
	}
	if _, err := PrepareWorkProduct(work, map[string]FileLocation{}, "dir", cfg); err == nil {
		t.Fatal("expected error for missing location entry")
	}
}
