package descriptor

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/blake2b"
)

// Mask replaces secret values wherever they would otherwise be shown
const Mask = "********"

// Values holds the stored value of each field of one configured credential,
// keyed by field name. Values set through Set are normalized: strings stay
// strings, numbers become float64, booleans become bool.
type Values map[string]any

// Defaults returns fresh values holding each field's default. A field without
// a default gets the zero value of its kind.
func Defaults(d *Descriptor) Values {
	values := make(Values, len(d.Fields))
	for _, f := range d.Fields {
		if f.Default == nil {
			values[f.Name] = zeroValue(f.Kind)
			continue
		}
		v, err := Coerce(f, f.Default)
		if err != nil {
			v = zeroValue(f.Kind)
		}
		values[f.Name] = v
	}
	return values
}

// Set stores raw under name after checking it against the field's kind
func (v Values) Set(d *Descriptor, name string, raw any) error {
	f, ok := d.Field(name)
	if !ok {
		return &UnknownFieldError{Descriptor: d.Name, Field: name}
	}
	val, err := Coerce(f, raw)
	if err != nil {
		return err
	}
	v[name] = val
	return nil
}

// Clone returns a shallow copy; stored values are immutable scalars
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	c := make(Values, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

// String lists field names only, so printing Values never reveals what they hold
func (v Values) String() string {
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)
	return "Values{" + strings.Join(names, ", ") + "}"
}

// GoString keeps %#v as safe as %v
func (v Values) GoString() string {
	return v.String()
}

// HasLineBreak reports whether s contains a CR or LF
func HasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

// Coerce converts raw into the canonical representation of f.Kind
func Coerce(f FieldSpec, raw any) (any, error) {
	mismatch := func() error {
		return &KindMismatchError{Field: f.Name, Kind: f.Kind, Got: describeType(raw)}
	}

	switch f.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch()
		}
		// string values end up in header values
		if HasLineBreak(s) {
			return nil, &InvalidValueError{Field: f.Name, Reason: "value contains a line break"}
		}
		return s, nil

	case KindNumber:
		var n float64
		switch x := raw.(type) {
		case float64:
			n = x
		case float32:
			n = float64(x)
		case int:
			n = float64(x)
		case int8:
			n = float64(x)
		case int16:
			n = float64(x)
		case int32:
			n = float64(x)
		case int64:
			n = float64(x)
		case uint:
			n = float64(x)
		case uint8:
			n = float64(x)
		case uint16:
			n = float64(x)
		case uint32:
			n = float64(x)
		case uint64:
			n = float64(x)
		case json.Number:
			parsed, err := x.Float64()
			if err != nil {
				return nil, mismatch()
			}
			n = parsed
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, mismatch()
			}
			n = parsed
		default:
			return nil, mismatch()
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, mismatch()
		}
		return n, nil

	case KindBoolean:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, mismatch()
			}
			return b, nil
		default:
			return nil, mismatch()
		}

	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("field %q has invalid type %q", f.Name, f.Kind)}
	}
}

// FormatValue renders a stored value the way it is substituted into a header
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Fingerprint returns a short blake2b digest of a value, safe to log in place of a secret
func Fingerprint(v any) string {
	sum := blake2b.Sum256([]byte(FormatValue(v)))
	return "b2:" + hex.EncodeToString(sum[:6])
}

// FieldView is a FieldSpec paired with its current value, ready for display.
// Value is Mask for secret fields that hold something.
type FieldView struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Kind        Kind   `json:"type"`
	Default     any    `json:"default"`
	Secret      bool   `json:"secret"`
	Description string `json:"description,omitempty"`
	Value       any    `json:"value"`
	Configured  bool   `json:"configured"`
}

// FieldViews projects the descriptor's fields in display order with values masked
func FieldViews(d *Descriptor, values Values) []FieldView {
	views := make([]FieldView, 0, len(d.Fields))
	for _, f := range d.Fields {
		val, ok := values[f.Name]
		configured := ok && !isEmpty(val)
		view := FieldView{
			Name:        f.Name,
			DisplayName: f.DisplayName,
			Kind:        f.Kind,
			Default:     f.Default,
			Secret:      f.Secret,
			Description: f.Description,
			Configured:  configured,
		}
		switch {
		case f.Secret && configured:
			view.Value = Mask
		case f.Secret:
			view.Value = ""
		default:
			view.Value = val
		}
		views = append(views, view)
	}
	return views
}

// MaskedValues prints and logs values with secret fields masked. Fields the
// descriptor does not declare are masked too.
type MaskedValues struct {
	Descriptor *Descriptor
	Values     Values
}

// Masked pairs values with the descriptor that says which of them are secret
func Masked(d *Descriptor, values Values) MaskedValues {
	return MaskedValues{Descriptor: d, Values: values}
}

func (m MaskedValues) display(name string) string {
	val := m.Values[name]
	if m.Descriptor != nil {
		if f, ok := m.Descriptor.Field(name); ok && !f.Secret {
			return FormatValue(val)
		}
	}
	if isEmpty(val) {
		return ""
	}
	return Mask
}

func (m MaskedValues) names() []string {
	names := make([]string, 0, len(m.Values))
	for k := range m.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (m MaskedValues) String() string {
	parts := make([]string, 0, len(m.Values))
	for _, name := range m.names() {
		parts = append(parts, name+"="+m.display(name))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// MarshalLogObject implements zapcore.ObjectMarshaler
func (m MaskedValues) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, name := range m.names() {
		enc.AddString(name, m.display(name))
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// IsEmpty reports whether a stored value counts as unset
func IsEmpty(v any) bool {
	return isEmpty(v)
}

func zeroValue(k Kind) any {
	switch k {
	case KindNumber:
		return float64(0)
	case KindBoolean:
		return false
	default:
		return ""
	}
}

func describeType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
