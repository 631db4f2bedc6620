package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/subsurface-tools/dataload/pkg/template"
)

// Reserved template keys. They configure the run and are removed before
// parameter discovery, so they never reach the output manifests.
const (
	keySchemaID     = "$id"
	keySchemaIDAlt  = "$ID"
	keyRequired     = "$required_template"
	keyArrayParent  = "$array_parent"
	keyObjectParent = "$object_parent"
	keyKindParent   = "$kind_parent"
	keyFilename     = "$filename"
)

// Options configures a generation run. Command-line values override the
// corresponding reserved keys found in the template.
type Options struct {
	SchemaDir string

	NamespaceName  string
	NamespaceValue string

	RequiredJSON string // inline JSON object replacing the template's $required_template
	RequiredFile string

	ArrayParent  string
	ObjectParent string
	KindParent   string
	GroupFile    string // when set, manifests aggregate under ArrayParent in one file

	ACLViewer string
	ACLOwner  string
	LegalTag  string
}

// Result summarizes a generation run.
type Result struct {
	Written    int
	EmptyRows  int
	FailedRows int
	Files      []string
}

// Generate reads one CSV file and one JSON template and writes one manifest
// per non-empty data row into outDir, or a single aggregated file when
// opts.GroupFile is set. A row that fails to materialize or validate is
// logged and dropped without aborting the run.
func Generate(csvPath, templatePath, outDir string, opts Options, log *slog.Logger) (Result, error) {
	var res Result

	tpl, err := readJSONObject(templatePath)
	if err != nil {
		return res, err
	}

	schemaID := popString(tpl, keySchemaID)
	if schemaID == "" {
		schemaID = popString(tpl, keySchemaIDAlt)
	}

	required, err := resolveRequired(tpl, opts)
	if err != nil {
		return res, err
	}

	arrayParent := popString(tpl, keyArrayParent)
	if opts.ArrayParent != "" {
		arrayParent = opts.ArrayParent
	}
	objectParent := popString(tpl, keyObjectParent)
	if opts.ObjectParent != "" {
		objectParent = opts.ObjectParent
	}
	kindParent := popString(tpl, keyKindParent)
	if opts.KindParent != "" {
		kindParent = opts.KindParent
	}
	if opts.NamespaceName != "" {
		kindParent = strings.ReplaceAll(kindParent, opts.NamespaceName+":", opts.NamespaceValue+":")
		schemaID = strings.ReplaceAll(schemaID, opts.NamespaceName+":", opts.NamespaceValue+":")
	}

	var (
		groupDoc  map[string]any
		groupPath string
	)
	if opts.GroupFile != "" {
		if arrayParent == "" {
			return res, errors.New("an array parent is required to group manifests into one file")
		}
		name := opts.GroupFile
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}
		groupPath = filepath.Join(outDir, name)
		groupDoc = wrapParent(nil, arrayParent, kindParent, true)
	}

	validator, err := newValidator(schemaID, opts, log)
	if err != nil {
		return res, err
	}

	idx := template.ParseParameters(tpl)
	header, rows, err := readCSV(csvPath)
	if err != nil {
		return res, err
	}
	bindings, err := template.BindColumns(header, idx)
	if err != nil {
		return res, err
	}

	mopts := template.Options{
		ACLViewer: opts.ACLViewer,
		ACLOwner:  opts.ACLOwner,
		LegalTag:  opts.LegalTag,
	}
	csvBase := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	names := newNamer(log)

	for i, row := range rows {
		rowNum := i + 1
		if rowIsEmpty(row) {
			res.EmptyRows++
			continue
		}

		lm, err := template.Materialize(tpl, required, idx, bindings, row, mopts)
		if err != nil {
			log.Error("unable to process data row", "row", rowNum, "error", err)
			res.FailedRows++
			continue
		}
		if opts.NamespaceName != "" {
			out, err := template.ReplaceNamespace(lm, opts.NamespaceName+":", opts.NamespaceValue+":")
			if err != nil {
				log.Error("unable to process data row", "row", rowNum, "error", err)
				res.FailedRows++
				continue
			}
			lm = out.(map[string]any)
		}

		name := fmt.Sprintf("%s_%d.json", csvBase, rowNum)
		if fn, ok := lm[keyFilename].(string); ok && fn != "" {
			name = sanitizeName(fn)
			delete(lm, keyFilename)
		}
		name = names.resolve(name)

		if err := validator.validate(lm); err != nil {
			log.Error("manifest failed schema validation", "row", rowNum, "error", err)
			res.FailedRows++
			continue
		}

		if groupDoc != nil {
			appendToGroup(groupDoc, arrayParent, lm)
			res.Written++
			continue
		}

		out := lm
		if arrayParent != "" {
			out = wrapParent(lm, arrayParent, kindParent, true)
		} else if objectParent != "" {
			out = wrapParent(lm, objectParent, kindParent, false)
		}

		path := filepath.Join(outDir, name)
		if err := writeJSON(path, out); err != nil {
			log.Error("unable to write manifest", "row", rowNum, "error", err)
			os.Remove(path)
			res.FailedRows++
			continue
		}
		res.Written++
		res.Files = append(res.Files, path)
	}

	if groupDoc != nil {
		if err := writeJSON(groupPath, groupDoc); err != nil {
			return res, fmt.Errorf("write group manifest: %w", err)
		}
		res.Files = append(res.Files, groupPath)
	}

	log.Info("generated load manifests", "count", res.Written)
	if res.EmptyRows > 0 {
		log.Info("skipped empty rows", "count", res.EmptyRows)
	}
	return res, nil
}

// popString reads a reserved key as a string and removes it from the
// template so it never reaches parameter discovery or the output.
func popString(tpl map[string]any, key string) string {
	s, _ := tpl[key].(string)
	delete(tpl, key)
	return s
}

// resolveRequired picks the required-fields template: inline JSON first,
// then a file, then the template's own $required_template key.
func resolveRequired(tpl map[string]any, opts Options) (map[string]any, error) {
	fromTpl, _ := tpl[keyRequired].(map[string]any)
	delete(tpl, keyRequired)

	switch {
	case opts.RequiredJSON != "":
		var m map[string]any
		if err := json.Unmarshal([]byte(opts.RequiredJSON), &m); err != nil {
			return nil, fmt.Errorf("parse required template: %w", err)
		}
		return m, nil
	case opts.RequiredFile != "":
		return readJSONObject(opts.RequiredFile)
	default:
		return fromTpl, nil
	}
}

// wrapParent nests doc under a dotted parent path, optionally as a
// single-element array, with an optional kind at the top level. A nil doc
// with asArray leaves an empty array at the leaf.
func wrapParent(doc map[string]any, parentPath, kind string, asArray bool) map[string]any {
	root := map[string]any{}
	if kind != "" {
		root["kind"] = kind
	}
	parts := strings.Split(parentPath, ".")
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next := map[string]any{}
		cur[strings.TrimSpace(p)] = next
		cur = next
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	if asArray {
		items := []any{}
		if doc != nil {
			items = append(items, doc)
		}
		cur[last] = items
	} else {
		cur[last] = doc
	}
	return root
}

func appendToGroup(groupDoc map[string]any, parentPath string, lm map[string]any) {
	parts := strings.Split(parentPath, ".")
	cur := groupDoc
	for _, p := range parts[:len(parts)-1] {
		cur = cur[strings.TrimSpace(p)].(map[string]any)
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	cur[last] = append(cur[last].([]any), lm)
}

func readJSONObject(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
