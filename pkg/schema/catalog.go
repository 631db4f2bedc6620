// Package schema loads a directory tree of JSON Schema files into an
// in-memory catalog keyed by $id and validates generated manifests against it.
package schema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/subsurface-tools/dataload/pkg/template"
)

// Catalog holds all loaded schemas, read-only after Load, plus a cache of
// compiled validators.
type Catalog struct {
	schemas map[string]map[string]any

	mu       sync.Mutex
	compiler *jsonschema.Compiler
	compiled map[string]*jsonschema.Schema
}

// Load scans dir recursively for .json files and indexes each schema by its
// $id (or $ID). When nsName is non-empty, the token "<nsName>:" is rewritten
// to "<nsValue>:" in every schema before indexing. Among versioned siblings
// whose $id differs only by a trailing integer path segment, the highest
// version is additionally indexed under the versionless id prefix.
func Load(dir, nsName, nsValue string) (*Catalog, error) {
	c := &Catalog{
		schemas:  make(map[string]map[string]any),
		compiled: make(map[string]*jsonschema.Schema),
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", path, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse schema %s: %w", path, err)
		}
		if nsName != "" {
			rewritten, err := template.ReplaceNamespace(doc, nsName+":", nsValue+":")
			if err != nil {
				return fmt.Errorf("schema %s: %w", path, err)
			}
			doc = rewritten.(map[string]any)
		}
		id, _ := doc["$id"].(string)
		if id == "" {
			id, _ = doc["$ID"].(string)
		}
		if id == "" {
			return nil
		}
		relaxTopLevelResource(doc)
		c.schemas[id] = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load schemas from %s: %w", dir, err)
	}

	c.aliasLatestVersions()

	c.compiler = jsonschema.NewCompiler()
	for id, doc := range c.schemas {
		if err := c.compiler.AddResource(id, doc); err != nil {
			return nil, fmt.Errorf("register schema %s: %w", id, err)
		}
	}
	return c, nil
}

// aliasLatestVersions maps each versionless id prefix (ending in "/") to the
// highest trailing-integer version of that schema.
func (c *Catalog) aliasLatestVersions() {
	latestKey := make(map[string]string)
	latestVersion := make(map[string]int)
	for id := range c.schemas {
		parts := strings.Split(id, "/")
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}
		base := strings.Join(parts[:len(parts)-1], "/") + "/"
		if prev, seen := latestVersion[base]; !seen || version > prev {
			latestVersion[base] = version
			latestKey[base] = id
		}
	}
	for base, id := range latestKey {
		c.schemas[base] = c.schemas[id]
	}
}

// relaxTopLevelResource loosens top-level resource schemas (recognized by a
// ResourceHomeRegionID property): required and additionalProperties are
// dropped, and resource/type id patterns accept records without a version.
func relaxTopLevelResource(doc map[string]any) {
	props, _ := doc["properties"].(map[string]any)
	if props == nil {
		return
	}
	if _, ok := props["ResourceHomeRegionID"]; !ok {
		return
	}
	delete(doc, "required")
	delete(doc, "additionalProperties")
	for _, name := range []string{"ResourceTypeID", "ResourceID"} {
		prop, _ := props[name].(map[string]any)
		if prop == nil {
			continue
		}
		if pattern, ok := prop["pattern"].(string); ok {
			prop["pattern"] = strings.ReplaceAll(pattern, ":[0-9]+", ":[0-9]*")
		}
	}
}

// Get returns the raw schema document for an id.
func (c *Catalog) Get(id string) (map[string]any, bool) {
	doc, ok := c.schemas[id]
	return doc, ok
}

// Len returns the number of indexed schema ids, aliases included.
func (c *Catalog) Len() int {
	return len(c.schemas)
}

// IDs returns all indexed schema ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.schemas))
	for id := range c.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
