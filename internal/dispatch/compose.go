package dispatch

// Context is the render context of one dispatch: its definition plus its resolved id.
type Context map[string]any

// ID returns the resolved dispatch id.
func (c Context) ID() int64 {
	id, _ := asInt64(c[FieldID])
	return id
}

// String returns a string field, or "" when absent or not a string.
func (c Context) String(field string) string {
	s, _ := c[field].(string)
	return s
}

// IDLookup resolves dispatch names to IDs.
type IDLookup interface {
	Get(name string) (int64, error)
}

// Compose resolves the ID of every definition through ids and returns a context
// per dispatch. The first name without an ID, in sorted order, fails the whole
// composition with CategoryNotFound. defs is not modified.
func Compose(defs Definitions, ids IDLookup) (map[string]Context, error) {
	out := make(map[string]Context, len(defs))
	for _, name := range defs.Names() {
		id, err := ids.Get(name)
		if err != nil {
			return nil, err
		}
		ctx := Context(deepCopyMap(defs[name]))
		ctx[FieldID] = id
		out[name] = ctx
	}
	return out, nil
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case Definition:
		return Definition(deepCopyMap(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
