package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// packageMetadataSchema covers the fields read from repod management files.
const packageMetadataSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["base", "version"],
  "properties": {
    "base": {"type": "string", "minLength": 1, "pattern": "^[^/\\\\]+$"},
    "version": {"type": "string", "minLength": 1}
  }
}`

type PackageMetadataValidator struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

func (v *PackageMetadataValidator) compile() {
	v.schema, v.err = jsonschema.CompileString("package-metadata.json", packageMetadataSchema)
	if v.err != nil {
		v.err = fmt.Errorf("compile package metadata schema: %w", v.err)
	}
}

// Validate checks a decoded metadata document (maps, slices and scalars).
func (v *PackageMetadataValidator) Validate(ctx context.Context, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.once.Do(v.compile)
	if v.err != nil {
		return v.err
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid package metadata: %w", err)
	}
	return nil
}
