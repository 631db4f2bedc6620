package manifest

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readManifest(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return m
}

func TestGeneratePerRowFiles(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "wells.csv")
	tplPath := filepath.Join(dir, "well.json")
	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0o755)

	// Leading UTF-8 BOM and a trailing empty row.
	writeFile(t, csvPath, "\xef\xbb\xbfwellname,uwi_1,uwi_2\nA-1,42,43\nB-2,7,\n,,\n")
	writeFile(t, tplPath, `{
		"kind": "osdu:wks:master-data--Well:1.0.0",
		"data": {
			"Name": "{{WellName}}",
			"Aliases": [{"AliasName": "{{UWI}}"}]
		}
	}`)

	res, err := Generate(csvPath, tplPath, outDir, Options{}, testLogger())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Written != 2 || res.EmptyRows != 1 || res.FailedRows != 0 {
		t.Fatalf("result = %+v", res)
	}

	m1 := readManifest(t, filepath.Join(outDir, "wells_1.json"))
	if m1["data"].(map[string]any)["Name"] != "A-1" {
		t.Errorf("row 1 Name = %v", m1["data"])
	}
	aliases := m1["data"].(map[string]any)["Aliases"].([]any)
	if len(aliases) != 2 {
		t.Errorf("row 1 aliases = %v", aliases)
	}

	m2 := readManifest(t, filepath.Join(outDir, "wells_2.json"))
	aliases2 := m2["data"].(map[string]any)["Aliases"].([]any)
	if len(aliases2) != 1 {
		t.Errorf("row 2 aliases = %v", aliases2)
	}
}

func TestGenerateFilenameDirectiveAndCollisions(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "wells.csv")
	tplPath := filepath.Join(dir, "well.json")
	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0o755)

	writeFile(t, csvPath, "wellname,file\nA-1,out.json\nB-2,OUT.json\nC-3,sub/dir.json\n")
	writeFile(t, tplPath, `{
		"$filename": "{{file}}",
		"data": {"Name": "{{WellName}}"}
	}`)

	res, err := Generate(csvPath, tplPath, outDir, Options{}, testLogger())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Written != 3 {
		t.Fatalf("result = %+v", res)
	}

	if _, err := os.Stat(filepath.Join(outDir, "out.json")); err != nil {
		t.Error("first file should keep its name")
	}
	// Case-insensitive collision gets a numeric suffix before the extension.
	if _, err := os.Stat(filepath.Join(outDir, "OUT_1.json")); err != nil {
		t.Error("colliding file should be suffixed")
	}
	// Path separators cannot escape the output directory.
	if _, err := os.Stat(filepath.Join(outDir, "sub-dir.json")); err != nil {
		t.Error("separators in $filename should be replaced")
	}

	m := readManifest(t, filepath.Join(outDir, "out.json"))
	if _, ok := m["$filename"]; ok {
		t.Error("$filename must not appear in the manifest")
	}
}

func TestGenerateGroupFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "fields.csv")
	tplPath := filepath.Join(dir, "field.json")
	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0o755)

	writeFile(t, csvPath, "name\nAlpha\nBeta\n")
	writeFile(t, tplPath, `{
		"$array_parent": "ReferenceData",
		"$kind_parent": "osdu:wks:Manifest:1.0.0",
		"data": {"Name": "{{name}}"}
	}`)

	res, err := Generate(csvPath, tplPath, outDir, Options{GroupFile: "all"}, testLogger())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Written != 2 {
		t.Fatalf("result = %+v", res)
	}

	group := readManifest(t, filepath.Join(outDir, "all.json"))
	if group["kind"] != "osdu:wks:Manifest:1.0.0" {
		t.Errorf("kind = %v", group["kind"])
	}
	items := group["ReferenceData"].([]any)
	if len(items) != 2 {
		t.Fatalf("grouped items = %v", items)
	}
	if items[0].(map[string]any)["data"].(map[string]any)["Name"] != "Alpha" {
		t.Errorf("item 0 = %v", items[0])
	}
}

func TestGenerateGroupWithoutArrayParentFails(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "a.csv")
	tplPath := filepath.Join(dir, "t.json")
	writeFile(t, csvPath, "name\nA\n")
	writeFile(t, tplPath, `{"data": {"Name": "{{name}}"}}`)

	_, err := Generate(csvPath, tplPath, dir, Options{GroupFile: "all"}, testLogger())
	if err == nil {
		t.Error("grouping without an array parent must fail")
	}
}

func TestGenerateObjectParentWrapping(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "w.csv")
	tplPath := filepath.Join(dir, "t.json")
	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0o755)

	writeFile(t, csvPath, "name\nA-1\n")
	writeFile(t, tplPath, `{
		"$object_parent": "Data.WorkProduct",
		"data": {"Name": "{{name}}"}
	}`)

	if _, err := Generate(csvPath, tplPath, outDir, Options{}, testLogger()); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	m := readManifest(t, filepath.Join(outDir, "w_1.json"))
	wp := m["Data"].(map[string]any)["WorkProduct"].(map[string]any)
	if wp["data"].(map[string]any)["Name"] != "A-1" {
		t.Errorf("wrapped manifest = %v", m)
	}
}

func TestGenerateReservedKeysConsumed(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "w.csv")
	tplPath := filepath.Join(dir, "t.json")
	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0o755)

	writeFile(t, csvPath, "name\nA-1\n")
	writeFile(t, tplPath, `{
		"$ID": "osdu:wks:master-data--Well:1.0.0",
		"$array_parent": "MasterData",
		"$kind_parent": "osdu:wks:Manifest:1.0.0",
		"data": {"Name": "{{name}}"}
	}`)

	res, err := Generate(csvPath, tplPath, outDir, Options{}, testLogger())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Written != 1 {
		t.Fatalf("result = %+v", res)
	}

	m := readManifest(t, filepath.Join(outDir, "w_1.json"))
	if m["kind"] != "osdu:wks:Manifest:1.0.0" {
		t.Errorf("kind = %v", m["kind"])
	}
	items := m["MasterData"].([]any)
	if len(items) != 1 {
		t.Fatalf("wrapped items = %v", items)
	}
	inner := items[0].(map[string]any)
	if inner["data"].(map[string]any)["Name"] != "A-1" {
		t.Errorf("inner manifest = %v", inner)
	}
	for _, key := range []string{"$ID", "$id", "$array_parent", "$kind_parent"} {
		if _, ok := inner[key]; ok {
			t.Errorf("directive %s leaked into the manifest", key)
		}
		if _, ok := m[key]; ok {
			t.Errorf("directive %s leaked into the wrapper", key)
		}
	}
}

func TestGenerateRowFaultIsolation(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "w.csv")
	tplPath := filepath.Join(dir, "t.json")
	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0o755)

	writeFile(t, csvPath, "depth\n100.5\nnot-a-number\n200\n")
	writeFile(t, tplPath, `{"data": {"Depth": "float({{depth}})"}}`)

	res, err := Generate(csvPath, tplPath, outDir, Options{}, testLogger())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Written != 2 || res.FailedRows != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(outDir, "w_2.json")); !os.IsNotExist(err) {
		t.Error("failed row must not leave a file behind")
	}
}

func TestGenerateNamespaceAndRequired(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "w.csv")
	tplPath := filepath.Join(dir, "t.json")
	outDir := filepath.Join(dir, "out")
	os.MkdirAll(outDir, 0o755)

	writeFile(t, csvPath, "name\nA-1\n")
	writeFile(t, tplPath, `{
		"$required_template": {"kind": "{{NAMESPACE}}:wks:master-data--Well:1.0.0"},
		"data": {"Name": "{{name}}"}
	}`)

	opts := Options{NamespaceName: "{{NAMESPACE}}", NamespaceValue: "opendes"}
	if _, err := Generate(csvPath, tplPath, outDir, opts, testLogger()); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	m := readManifest(t, filepath.Join(outDir, "w_1.json"))
	if m["kind"] != "opendes:wks:master-data--Well:1.0.0" {
		t.Errorf("kind = %v", m["kind"])
	}
}

func TestRowIsEmpty(t *testing.T) {
	if !rowIsEmpty([]string{"", " ", "\t", "\r", "\v\f"}) {
		t.Error("whitespace-only cells must count as empty")
	}
	if rowIsEmpty([]string{"", "A-1"}) {
		t.Error("a row with content is not empty")
	}
}

func TestNamerSuffixing(t *testing.T) {
	n := newNamer(testLogger())
	if got := n.resolve("a.json"); got != "a.json" {
		t.Errorf("first = %q", got)
	}
	if got := n.resolve("A.json"); got != "A_1.json" {
		t.Errorf("case collision = %q", got)
	}
	if got := n.resolve("a.json"); got != "a_1_2.json" {
		t.Errorf("repeated collision = %q", got)
	}
	if got := n.resolve("noext"); got != "noext" {
		t.Errorf("no extension = %q", got)
	}
	if got := n.resolve("noext"); got != "noext_1" {
		t.Errorf("no extension collision = %q", got)
	}
}
