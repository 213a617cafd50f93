package routing

import (
	"fmt"
	"strings"

	"github.com/c360/eventrouter/routing/expression"
)

// ApplyMapping produces the outgoing payload from the incoming one. A
// nil or empty mapping is identity passthrough. String values in the
// template may reference incoming fields as "{field.path}"; a value
// that is exactly one placeholder preserves the referenced value's
// type, otherwise placeholders are interpolated into the string.
// Unresolvable references substitute as nil / empty.
func ApplyMapping(mapping map[string]any, payload map[string]any) map[string]any {
	if len(mapping) == 0 {
		return payload
	}
	out := make(map[string]any, len(mapping))
	for key, value := range mapping {
		out[key] = resolveTemplateValue(value, payload)
	}
	return out
}

func resolveTemplateValue(value any, payload map[string]any) any {
	switch v := value.(type) {
	case string:
		return substitute(v, payload)
	case map[string]any:
		nested := make(map[string]any, len(v))
		for key, item := range v {
			nested[key] = resolveTemplateValue(item, payload)
		}
		return nested
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = resolveTemplateValue(item, payload)
		}
		return items
	default:
		return v
	}
}

// substitute resolves "{path}" placeholders in a template string
func substitute(template string, payload map[string]any) any {
	// Whole-string placeholder keeps the original type
	if len(template) > 2 && strings.HasPrefix(template, "{") && strings.HasSuffix(template, "}") {
		inner := template[1 : len(template)-1]
		if !strings.ContainsAny(inner, "{}") {
			value, _ := expression.LookupField(payload, inner)
			return value
		}
	}

	var sb strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:open])
		path := rest[open+1 : open+closing]
		if value, ok := expression.LookupField(payload, path); ok {
			sb.WriteString(fmt.Sprintf("%v", value))
		}
		rest = rest[open+closing+1:]
	}
	return sb.String()
}

// ForeachItems resolves the foreach path into the payload and returns
// the collection items. A missing path or non-collection value yields
// no items.
func ForeachItems(foreach string, payload map[string]any) []any {
	value, ok := expression.LookupField(payload, foreach)
	if !ok {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	return items
}

// ForeachContext builds the per-item mapping context: the incoming
// payload with item, index, and total bound in.
func ForeachContext(payload map[string]any, item any, index, total int) map[string]any {
	ctx := make(map[string]any, len(payload)+3)
	for key, value := range payload {
		ctx[key] = value
	}
	ctx["item"] = item
	ctx["index"] = index
	ctx["total"] = total
	return ctx
}
