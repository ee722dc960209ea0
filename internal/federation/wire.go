package federation

// Wire is a raw JSON object from a remote node: not yet validated, shape only
// trusted through the typed accessors below. Dialect mapping functions take
// Wire in and produce Wire out (the canonical field set), so a mapping failure
// is always a *FieldError local to one item.
type Wire map[string]any

func (w Wire) String(key string) (string, error) {
	value, ok := w[key]
	if !ok {
		return "", &FieldError{Field: key, Want: "string"}
	}
	s, ok := value.(string)
	if !ok {
		return "", &FieldError{Field: key, Want: "string", Got: value}
	}
	return s, nil
}

// OptString returns the fallback when the key is absent or null. A present
// non-string value is still a type error.
func (w Wire) OptString(key, fallback string) (string, error) {
	value, ok := w[key]
	if !ok || value == nil {
		return fallback, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", &FieldError{Field: key, Want: "string", Got: value}
	}
	return s, nil
}

func (w Wire) Bool(key string) (bool, error) {
	value, ok := w[key]
	if !ok {
		return false, &FieldError{Field: key, Want: "bool"}
	}
	b, ok := value.(bool)
	if !ok {
		return false, &FieldError{Field: key, Want: "bool", Got: value}
	}
	return b, nil
}

func (w Wire) OptBool(key string, fallback bool) (bool, error) {
	value, ok := w[key]
	if !ok || value == nil {
		return fallback, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, &FieldError{Field: key, Want: "bool", Got: value}
	}
	return b, nil
}

func (w Wire) Object(key string) (Wire, error) {
	value, ok := w[key]
	if !ok {
		return nil, &FieldError{Field: key, Want: "object"}
	}
	obj, err := AsWire(value)
	if err != nil {
		return nil, &FieldError{Field: key, Want: "object", Got: value}
	}
	return obj, nil
}

func (w Wire) Clone() Wire {
	out := make(Wire, len(w))
	for key, value := range w {
		out[key] = value
	}
	return out
}

// AsWire coerces a decoded JSON value into a Wire object.
func AsWire(value any) (Wire, error) {
	switch v := value.(type) {
	case Wire:
		return v, nil
	case map[string]any:
		return Wire(v), nil
	default:
		return nil, &FieldError{Field: "", Want: "object", Got: value}
	}
}

// AsWireList coerces a decoded JSON value into a list of Wire objects,
// skipping nothing: a non-object element fails the whole coercion since the
// caller cannot know which item it lost.
func AsWireList(value any) ([]Wire, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, &FieldError{Field: "", Want: "array", Got: value}
	}
	items := make([]Wire, 0, len(list))
	for _, element := range list {
		item, err := AsWire(element)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
