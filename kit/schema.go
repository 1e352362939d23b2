package kit

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// InputSchema reflects the JSON schema of T's fields into the plain map
// form mcp.Tool expects. Fields without omitempty are required; use
// `jsonschema:"description=..."` tags for descriptions.
func InputSchema[T any]() map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	data, err := json.Marshal(r.Reflect(&zero))
	if err != nil {
		panic("kit: reflect schema: " + err.Error())
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic("kit: decode schema: " + err.Error())
	}
	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	out["type"] = "object"
	return out
}
