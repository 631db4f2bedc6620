package schema

import (
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrNotFound is returned when a referenced schema id is absent from the
// catalog. Callers log it as a warning and skip validation.
var ErrNotFound = errors.New("schema not found")

// Validate checks a document against the schema registered under id. All
// catalog schemas are available to the compiler, so cross-schema $refs
// resolve the same way the original resolver store did.
func (c *Catalog) Validate(doc any, id string) error {
	if _, ok := c.schemas[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sch, err := c.compile(id, nil)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("validate against %s: %w", id, err)
	}
	return nil
}

// ValidateWith checks a document against an ad-hoc schema document (such as a
// subtree extracted from a catalog schema), registered under key, with the
// full catalog available for $ref resolution.
func (c *Catalog) ValidateWith(schemaDoc map[string]any, key string, doc any) error {
	sch, err := c.compile(key, schemaDoc)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("validate against %s: %w", key, err)
	}
	return nil
}

func (c *Catalog) compile(id string, extra map[string]any) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.compiled[id]; ok {
		return cached, nil
	}
	if extra != nil {
		if err := c.compiler.AddResource(id, extra); err != nil {
			return nil, fmt.Errorf("register schema %s: %w", id, err)
		}
	}
	compiled, err := c.compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", id, err)
	}
	c.compiled[id] = compiled
	return compiled, nil
}
