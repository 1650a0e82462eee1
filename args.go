package pgops

import (
	"encoding/json"
	"math"
)

// ArgType is the declared wire type of a tool argument.
type ArgType string

const (
	ArgString ArgType = "string"
	ArgInt    ArgType = "integer"
	ArgNumber ArgType = "number"
	ArgBool   ArgType = "boolean"
	ArgArray  ArgType = "array"
	ArgObject ArgType = "object"
)

// ArgSpec declares one named, typed parameter of a tool.
type ArgSpec struct {
	Name        string
	Type        ArgType
	Required    bool
	Description string
}

// Args is a validated argument mapping. Getters assume validateArgs has
// already checked presence and type; absent optional arguments yield the
// given default.
type Args map[string]any

func (a Args) String(name, def string) string {
	if v, ok := a[name].(string); ok {
		return v
	}
	return def
}

func (a Args) Bool(name string, def bool) bool {
	if v, ok := a[name].(bool); ok {
		return v
	}
	return def
}

func (a Args) Int(name string, def int) int {
	switch v := a[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

func (a Args) Array(name string) []any {
	if v, ok := a[name].([]any); ok {
		return v
	}
	return nil
}

func (a Args) Object(name string) map[string]any {
	if v, ok := a[name].(map[string]any); ok {
		return v
	}
	return nil
}

// validateArgs checks raw arguments against the tool's declared schema:
// missing required argument or type mismatch yields InvalidArguments naming
// the offending field. Unknown arguments are rejected too — a misspelled
// optional argument silently ignored is worse than an error.
func validateArgs(def *ToolDefinition, raw map[string]any) (Args, *ToolError) {
	known := make(map[string]*ArgSpec, len(def.Args))
	for i := range def.Args {
		known[def.Args[i].Name] = &def.Args[i]
	}

	for name := range raw {
		if _, ok := known[name]; !ok {
			return nil, toolErrorf(KindInvalidArguments, "tool %s: unknown argument %q", def.Name, name)
		}
	}

	args := make(Args, len(raw))
	for i := range def.Args {
		spec := &def.Args[i]
		v, present := raw[spec.Name]
		if !present || v == nil {
			if spec.Required {
				return nil, toolErrorf(KindInvalidArguments, "tool %s: missing required argument %q", def.Name, spec.Name)
			}
			continue
		}
		if !argTypeMatches(spec.Type, v) {
			return nil, toolErrorf(KindInvalidArguments, "tool %s: argument %q must be of type %s", def.Name, spec.Name, spec.Type)
		}
		args[spec.Name] = v
	}
	return args, nil
}

func argTypeMatches(t ArgType, v any) bool {
	switch t {
	case ArgString:
		_, ok := v.(string)
		return ok
	case ArgBool:
		_, ok := v.(bool)
		return ok
	case ArgInt:
		switch n := v.(type) {
		case int:
			return true
		case float64:
			// JSON numbers arrive as float64; accept integral values only.
			return n == math.Trunc(n)
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case ArgNumber:
		switch v.(type) {
		case int, float64, json.Number:
			return true
		}
		return false
	case ArgArray:
		_, ok := v.([]any)
		return ok
	case ArgObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}
