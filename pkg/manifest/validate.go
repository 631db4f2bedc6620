package manifest

import (
	"log/slog"

	"github.com/subsurface-tools/dataload/pkg/schema"
	"github.com/subsurface-tools/dataload/pkg/template"
)

// rowValidator validates each assembled manifest against the schema named by
// the template's $id, when a schema directory was supplied. A missing schema
// is a warning, not an error: the run proceeds without validation.
type rowValidator struct {
	catalog *schema.Catalog
	doc     map[string]any
	id      string
	enabled bool
}

func newValidator(schemaID string, opts Options, log *slog.Logger) (*rowValidator, error) {
	v := &rowValidator{id: schemaID}
	if opts.SchemaDir == "" || schemaID == "" {
		return v, nil
	}

	cat, err := schema.Load(opts.SchemaDir, opts.NamespaceName, opts.NamespaceValue)
	if err != nil {
		return nil, err
	}
	v.catalog = cat

	doc, ok := cat.Get(schemaID)
	if !ok {
		log.Warn("no schema found", "id", schemaID)
		return v, nil
	}
	v.enabled = true

	// Work-product group templates validate against the Data subtree of the
	// registered schema rather than the full envelope. The subtree gets its
	// own resource key so it does not shadow the registered schema.
	props, _ := doc["properties"].(map[string]any)
	if data, ok := props["Data"].(map[string]any); ok {
		dataProps, _ := data["properties"].(map[string]any)
		if _, ok := dataProps["WorkProduct"]; ok {
			sub := template.Clone(data).(map[string]any)
			sub["$id"] = schemaID + "-workproduct"
			v.doc = sub
			v.id = schemaID + "-workproduct"
		}
	}
	return v, nil
}

func (v *rowValidator) validate(lm map[string]any) error {
	if !v.enabled {
		return nil
	}
	if v.doc != nil {
		return v.catalog.ValidateWith(v.doc, v.id, lm)
	}
	return v.catalog.Validate(lm, v.id)
}
