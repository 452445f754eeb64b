package descriptor

import "fmt"

// DuplicateNameError is returned when a descriptor name is already registered
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("credential type %q is already registered", e.Name)
}

// MalformedTemplateError is returned when a header template references a field
// the descriptor does not declare
type MalformedTemplateError struct {
	Descriptor string
	Header     string
	Field      string
}

func (e *MalformedTemplateError) Error() string {
	return fmt.Sprintf("credential type %q: header %q references undeclared field %q",
		e.Descriptor, e.Header, e.Field)
}

// MissingFieldError is returned at request time when a referenced field has no stored value
type MissingFieldError struct {
	Descriptor string
	Header     string
	Field      string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("credential not fully configured: field %q has no value", e.Field)
}

// KindMismatchError is returned when a value does not match its field's kind.
// It never carries the rejected value, which may be a secret.
type KindMismatchError struct {
	Field string
	Kind  Kind
	Got   string
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("field %q expects a %s value, got %s", e.Field, e.Kind, e.Got)
}

// InvalidValueError is returned when a value has the right kind but cannot be
// used, such as a string holding a line break. Like KindMismatchError it never
// carries the value.
type InvalidValueError struct {
	Field  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// UnknownFieldError is returned when a value is stored under a name the descriptor does not declare
type UnknownFieldError struct {
	Descriptor string
	Field      string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("credential type %q has no field %q", e.Descriptor, e.Field)
}

// ValidationError covers every other descriptor authoring mistake
type ValidationError struct {
	Descriptor string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.Descriptor == "" {
		return "invalid credential type: " + e.Reason
	}
	return fmt.Sprintf("invalid credential type %q: %s", e.Descriptor, e.Reason)
}
