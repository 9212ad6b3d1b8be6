package graph

import "fmt"

// FieldKind enumerates the declared type of a schema field.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldInteger
	FieldFloat
	FieldBoolean
	FieldArray
	FieldObject
	FieldEnum
	FieldAny
)

// Validator is a named, out-of-core-registered check invoked by name from
// a FieldDef.Validators list.
type Validator func(value any) error

// FieldDef declares one field of a Schema.
type FieldDef struct {
	Name    string
	Type    FieldKind
	Element *FieldDef // set when Type == FieldArray: the element type
	Object  *Schema   // set when Type == FieldObject: the nested schema
	Enum    []any     // set when Type == FieldEnum

	Required   bool
	Default    any
	HasDefault bool

	MinLength *int
	MaxLength *int
	MinValue  *float64
	MaxValue  *float64

	Validators []string
}

// Schema is an ordered set of field declarations plus a registry of named
// Validators resolvable by the Validators list on a FieldDef.
type Schema struct {
	Fields       []FieldDef
	validators   map[string]Validator
	AllowUnknown bool
}

func NewSchema(allowUnknown bool) *Schema {
	return &Schema{validators: make(map[string]Validator), AllowUnknown: allowUnknown}
}

// RegisterValidator adds a named validator to the out-of-core registry
// this schema resolves FieldDef.Validators names against.
func (s *Schema) RegisterValidator(name string, v Validator) {
	s.validators[name] = v
}

func (s *Schema) AddField(f FieldDef) *Schema {
	s.Fields = append(s.Fields, f)
	return s
}

// ValidationError reports every field-level failure found by Validate, so
// callers see the whole picture rather than the first failure only.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return fmt.Sprintf("%d validation errors: %v", len(e.Errors), e.Errors)
}

// Validate checks state against every declared field: missing+required is
// an error, present+wrong-type is an error, out-of-bounds is an error,
// nested Object fields recurse, Array fields validate each element, and
// named Validators run last. It returns nil
// if state is fully valid.
func (s *Schema) Validate(state State) error {
	var errs []string
	for _, f := range s.Fields {
		v, present := state[f.Name]
		if !present {
			if f.Required {
				errs = append(errs, fmt.Sprintf("field %q is required", f.Name))
			}
			continue
		}
		if err := s.validateField(f, v); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if !s.AllowUnknown {
		declared := make(map[string]bool, len(s.Fields))
		for _, f := range s.Fields {
			declared[f.Name] = true
		}
		for k := range state {
			if !declared[k] {
				errs = append(errs, fmt.Sprintf("unknown field %q", k))
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func (s *Schema) validateField(f FieldDef, v any) error {
	switch f.Type {
	case FieldString:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q: expected string", f.Name)
		}
		if f.MinLength != nil && len(str) < *f.MinLength {
			return fmt.Errorf("field %q: length %d below minimum %d", f.Name, len(str), *f.MinLength)
		}
		if f.MaxLength != nil && len(str) > *f.MaxLength {
			return fmt.Errorf("field %q: length %d above maximum %d", f.Name, len(str), *f.MaxLength)
		}
	case FieldInteger:
		n, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("field %q: expected integer", f.Name)
		}
		if err := checkBounds(f, float64(n)); err != nil {
			return err
		}
	case FieldFloat:
		n, ok := toFloat64(v)
		if !ok {
			return fmt.Errorf("field %q: expected float", f.Name)
		}
		if err := checkBounds(f, n); err != nil {
			return err
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("field %q: expected boolean", f.Name)
		}
	case FieldArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("field %q: expected array", f.Name)
		}
		if f.MinLength != nil && len(arr) < *f.MinLength {
			return fmt.Errorf("field %q: length %d below minimum %d", f.Name, len(arr), *f.MinLength)
		}
		if f.MaxLength != nil && len(arr) > *f.MaxLength {
			return fmt.Errorf("field %q: length %d above maximum %d", f.Name, len(arr), *f.MaxLength)
		}
		if f.Element != nil {
			for i, item := range arr {
				if err := s.validateField(*f.Element, item); err != nil {
					return fmt.Errorf("field %q[%d]: %w", f.Name, i, err)
				}
			}
		}
	case FieldObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q: expected object", f.Name)
		}
		if f.Object != nil {
			if err := f.Object.Validate(State(obj)); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
	case FieldEnum:
		matched := false
		for _, allowed := range f.Enum {
			if allowed == v {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("field %q: value not in enum %v", f.Name, f.Enum)
		}
	case FieldAny:
		// no type check
	}

	for _, name := range f.Validators {
		validator, ok := s.validators[name]
		if !ok {
			return fmt.Errorf("field %q: unknown validator %q", f.Name, name)
		}
		if err := validator(v); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func checkBounds(f FieldDef, n float64) error {
	if f.MinValue != nil && n < *f.MinValue {
		return fmt.Errorf("field %q: value %v below minimum %v", f.Name, n, *f.MinValue)
	}
	if f.MaxValue != nil && n > *f.MaxValue {
		return fmt.Errorf("field %q: value %v above maximum %v", f.Name, n, *f.MaxValue)
	}
	return nil
}

// ApplyDefaults fills any field missing from state whose FieldDef carries
// a default, returning a new State (the input is not mutated).
func (s *Schema) ApplyDefaults(state State) State {
	out := state.Clone()
	for _, f := range s.Fields {
		if _, present := out[f.Name]; !present && f.HasDefault {
			out[f.Name] = f.Default
		}
	}
	return out
}
