package descriptor

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Validate checks d for authoring mistakes. Every field reference in the auth
// rule must resolve to a declared field; this is checked here rather than
// when the first request is made.
func Validate(d *Descriptor) error {
	if d == nil {
		return &ValidationError{Reason: "descriptor is nil"}
	}

	name := d.Name
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Reason: "name is required"}
	}
	if name != strings.TrimSpace(name) {
		return &ValidationError{Descriptor: name, Reason: "name must not have surrounding whitespace"}
	}

	declared := make(map[string]bool, len(d.Fields))
	for i, f := range d.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if declared[f.Name] {
			return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("field %q is declared twice", f.Name)}
		}
		declared[f.Name] = true

		if !f.Kind.IsValid() {
			return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("field %q has invalid type %q", f.Name, f.Kind)}
		}
		if f.Default != nil {
			if _, err := Coerce(f, f.Default); err != nil {
				return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("default: %v", err)}
			}
		}
	}

	if d.Auth.Mode != ModeGeneric {
		return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("unsupported authentication type %q", d.Auth.Mode)}
	}

	headers := make([]string, 0, len(d.Auth.Headers))
	for h := range d.Auth.Headers {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	// header names are case-insensitive on the wire
	canonical := make(map[string]string, len(headers))
	for _, h := range headers {
		if !validHeaderName(h) {
			return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("invalid header name %q", h)}
		}
		key := http.CanonicalHeaderKey(h)
		if prev, ok := canonical[key]; ok {
			return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("header %q clashes with %q", h, prev)}
		}
		canonical[key] = h

		tmpl := d.Auth.Headers[h]
		if len(tmpl) == 0 {
			return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("header %q has an empty template", h)}
		}
		for _, seg := range tmpl {
			switch s := seg.(type) {
			case Literal:
				if HasLineBreak(string(s)) {
					return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("header %q contains a line break", h)}
				}
			case FieldRef:
				if !declared[string(s)] {
					return &MalformedTemplateError{Descriptor: name, Header: h, Field: string(s)}
				}
			case nil:
				return &ValidationError{Descriptor: name, Reason: fmt.Sprintf("header %q has an empty segment", h)}
			}
		}
	}

	return nil
}

// validHeaderName accepts RFC 7230 token characters
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-.^_`|~", r):
		default:
			return false
		}
	}
	return true
}
