package descriptor

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind is the value type of a credential field
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// IsValid reports whether k is one of the supported kinds
func (k Kind) IsValid() bool {
	switch k {
	case KindString, KindNumber, KindBoolean:
		return true
	default:
		return false
	}
}

// UnmarshalText lets JSON and TOML decoders reject unknown kinds at parse time
func (k *Kind) UnmarshalText(text []byte) error {
	kind := Kind(text)
	if !kind.IsValid() {
		return fmt.Errorf("invalid field type '%s': must be one of 'string', 'number', 'boolean'", text)
	}
	*k = kind
	return nil
}

// UnmarshalYAML implements custom YAML unmarshaling for Kind
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	return k.UnmarshalText([]byte(str))
}

// Mode selects how an AuthRule is applied
type Mode string

// ModeGeneric injects templated headers into every outgoing request
const ModeGeneric Mode = "generic"

// Descriptor declares one credential type: the fields a user fills in and the
// rule that turns their stored values into request headers.
// A registered Descriptor must be treated as read-only.
type Descriptor struct {
	Name             string
	DisplayName      string
	DocumentationURL string
	Fields           []FieldSpec
	Auth             AuthRule
}

// FieldSpec describes one user-entered value
type FieldSpec struct {
	DisplayName string
	Name        string
	Kind        Kind
	Default     any
	Secret      bool
	Description string
}

// AuthRule maps header names to the template that produces their value
type AuthRule struct {
	Mode    Mode
	Headers map[string]Template
}

// Template is an ordered sequence of literal text and field references
type Template []Segment

// Segment is either a Literal or a FieldRef
type Segment interface {
	segment()
}

// Literal is copied verbatim into the header value
type Literal string

// FieldRef is replaced by the stored value of the named field
type FieldRef string

func (Literal) segment()  {}
func (FieldRef) segment() {}

// Fields returns the names of every field the template references, in order
func (t Template) Fields() []string {
	var names []string
	for _, seg := range t {
		if ref, ok := seg.(FieldRef); ok {
			names = append(names, string(ref))
		}
	}
	return names
}

// String renders the template for display, e.g. `"Bearer " + {apiKey}`
func (t Template) String() string {
	out := ""
	for i, seg := range t {
		if i > 0 {
			out += " + "
		}
		switch s := seg.(type) {
		case Literal:
			out += fmt.Sprintf("%q", string(s))
		case FieldRef:
			out += "{" + string(s) + "}"
		}
	}
	return out
}

// Field returns the field with the given name
func (d *Descriptor) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Clone returns a deep copy of d
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Fields = RenderFields(d)
	if d.Auth.Headers != nil {
		c.Auth.Headers = make(map[string]Template, len(d.Auth.Headers))
		for name, tmpl := range d.Auth.Headers {
			c.Auth.Headers[name] = append(Template(nil), tmpl...)
		}
	}
	return &c
}

// RenderFields returns the fields in display order. The result is a copy; changing it
// does not affect d.
func RenderFields(d *Descriptor) []FieldSpec {
	if d == nil || d.Fields == nil {
		return nil
	}
	fields := make([]FieldSpec, len(d.Fields))
	copy(fields, d.Fields)
	return fields
}
