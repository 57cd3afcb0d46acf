package mesos

import (
	"fmt"
	"strings"
)

// fieldPath is a dotted selector over decoded JSON objects, e.g.
// "framework_info.id.value".
type fieldPath []string

func compileFieldPath(expr string) (fieldPath, error) {
	expr = strings.TrimPrefix(strings.TrimSpace(expr), "$.")
	if expr == "" {
		return nil, fmt.Errorf("field path is empty")
	}
	var p fieldPath
	for _, seg := range strings.Split(expr, ".") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("field path %q has an empty segment", expr)
		}
		p = append(p, seg)
	}
	return p, nil
}

func mustFieldPath(expr string) fieldPath {
	p, err := compileFieldPath(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval walks v and reports whether every segment resolved.
func (p fieldPath) Eval(v any) (any, bool) {
	cur := v
	for _, key := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// String evaluates the path and requires a non-empty string.
func (p fieldPath) String(v any) (string, bool) {
	raw, ok := p.Eval(v)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (p fieldPath) text() string {
	return strings.Join(p, ".")
}
