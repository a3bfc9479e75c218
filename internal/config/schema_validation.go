package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	rkillschema "github.com/Paintersrp/rkill/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaResource = "config.v1.json"

var settingsSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaResource, bytes.NewReader(rkillschema.ConfigV1Schema)); err != nil {
		return nil, fmt.Errorf("add settings schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	return schema, nil
})

// validateAgainstSchema checks a decoded YAML document against the embedded
// settings schema. Every failing leaf is reported on its own line.
func validateAgainstSchema(doc map[string]any) error {
	schema, err := settingsSchema()
	if err != nil {
		return fmt.Errorf("load settings schema: %w", err)
	}

	// The validator only understands JSON value types.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("prepare settings for schema validation: %w", err)
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("prepare settings for schema validation: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	vErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	var b strings.Builder
	for _, leaf := range leafErrors(vErr) {
		fmt.Fprintf(&b, "\n- %s: %s", settingsLocation(leaf.InstanceLocation), leaf.Message)
	}
	return fmt.Errorf("schema validation failed:%s", b.String())
}

func leafErrors(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range err.Causes {
		out = append(out, leafErrors(cause)...)
	}
	return out
}

// settingsLocation turns a JSON pointer such as /protect/1 into protect[1].
func settingsLocation(ptr string) string {
	var b strings.Builder
	for _, segment := range strings.Split(strings.Trim(ptr, "/"), "/") {
		if segment == "" {
			continue
		}
		if _, err := strconv.Atoi(segment); err == nil {
			fmt.Fprintf(&b, "[%s]", segment)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	if b.Len() == 0 {
		return "settings"
	}
	return b.String()
}
