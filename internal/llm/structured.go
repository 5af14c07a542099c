package llm

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Structured output is checked for shape only: JSON types, required keys,
// enums and nesting. Numeric and length bounds in a schema are guidance for
// the model. Callers clamp values into range, so a level of 6 reaches the
// caller instead of burning a retry and degrading the turn.
var rangeKeywords = []string{
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum",
	"minLength", "maxLength", "minItems", "maxItems",
}

type shapeCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

var shapes = &shapeCache{compiled: make(map[string]*jsonschema.Schema)}

// finish turns raw provider output into a Response. Truncated structured
// output and output of the wrong shape are errors.
func finish(req Request, content json.RawMessage, truncated bool, usage Usage, model string) (*Response, error) {
	if req.Schema != nil {
		if truncated {
			return nil, &ErrMaxTokensExceeded{Content: content}
		}
		if err := checkShape(req.Schema, content); err != nil {
			return nil, err
		}
	}

	stop := "end"
	if truncated {
		stop = "max_tokens"
	}
	return &Response{Content: content, Usage: usage, Model: model, StopReason: stop}, nil
}

// checkShape validates raw against the shape of schema. A nil schema
// accepts anything.
func checkShape(schema *Schema, raw json.RawMessage) error {
	if schema == nil {
		return nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &ErrInvalidResponse{Schema: schema.Name, Content: raw, Err: fmt.Errorf("not JSON: %w", err)}
	}

	compiled, err := shapes.get(schema)
	if err != nil {
		return &ErrInvalidResponse{Schema: schema.Name, Content: raw, Err: err}
	}
	if err := compiled.Validate(doc); err != nil {
		return &ErrInvalidResponse{Schema: schema.Name, Content: raw, Err: err}
	}
	return nil
}

func (c *shapeCache) get(schema *Schema) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.compiled[schema.Name]; ok {
		return s, nil
	}

	// Round-trip through JSON so the compiler sees plain maps, slices and
	// float64s rather than the Go literals used in definitions.
	b, err := json.Marshal(shapeOf(schema.Definition))
	if err != nil {
		return nil, fmt.Errorf("encode schema %s: %w", schema.Name, err)
	}
	var def any
	if err := json.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", schema.Name, err)
	}

	url := "mem://" + schema.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", schema.Name, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", schema.Name, err)
	}
	c.compiled[schema.Name] = s
	return s, nil
}

// shapeOf copies def without range keywords, recursing into subschemas.
// Property names are never treated as keywords.
func shapeOf(def map[string]any) map[string]any {
	out := make(map[string]any, len(def))
	for k, v := range def {
		if slices.Contains(rangeKeywords, k) {
			continue
		}
		if props, ok := v.(map[string]any); ok && k == "properties" {
			named := make(map[string]any, len(props))
			for name, p := range props {
				named[name] = shapeValue(p)
			}
			out[k] = named
			continue
		}
		out[k] = shapeValue(v)
	}
	return out
}

func shapeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return shapeOf(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = shapeValue(e)
		}
		return out
	default:
		return v
	}
}
