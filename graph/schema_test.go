package graph

import "testing"

func TestSchema_RequiredField(t *testing.T) {
	s := NewSchema(false)
	s.AddField(FieldDef{Name: "query", Type: FieldString, Required: true})

	if err := s.Validate(State{}); err == nil {
		t.Error("expected an error for a missing required field")
	}
	if err := s.Validate(State{"query": "hi"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchema_TypeMismatch(t *testing.T) {
	s := NewSchema(true)
	s.AddField(FieldDef{Name: "count", Type: FieldInteger})

	if err := s.Validate(State{"count": "not a number"}); err == nil {
		t.Error("expected a type-mismatch error")
	}
	if err := s.Validate(State{"count": 5}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchema_Bounds(t *testing.T) {
	min := 1.0
	max := 10.0
	s := NewSchema(true)
	s.AddField(FieldDef{Name: "score", Type: FieldFloat, MinValue: &min, MaxValue: &max})

	if err := s.Validate(State{"score": 0.5}); err == nil {
		t.Error("expected a below-minimum error")
	}
	if err := s.Validate(State{"score": 11.0}); err == nil {
		t.Error("expected an above-maximum error")
	}
	if err := s.Validate(State{"score": 5.0}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchema_UnknownFieldRejectedUnlessAllowed(t *testing.T) {
	closed := NewSchema(false)
	closed.AddField(FieldDef{Name: "a", Type: FieldString})
	if err := closed.Validate(State{"a": "x", "b": "y"}); err == nil {
		t.Error("expected an unknown-field error on a closed schema")
	}

	open := NewSchema(true)
	open.AddField(FieldDef{Name: "a", Type: FieldString})
	if err := open.Validate(State{"a": "x", "b": "y"}); err != nil {
		t.Errorf("unexpected error on an open schema: %v", err)
	}
}

func TestSchema_NestedObject(t *testing.T) {
	inner := NewSchema(false)
	inner.AddField(FieldDef{Name: "city", Type: FieldString, Required: true})

	s := NewSchema(true)
	s.AddField(FieldDef{Name: "address", Type: FieldObject, Object: inner})

	if err := s.Validate(State{"address": map[string]any{}}); err == nil {
		t.Error("expected nested validation to surface the missing required field")
	}
	if err := s.Validate(State{"address": map[string]any{"city": "Springfield"}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchema_ArrayElements(t *testing.T) {
	s := NewSchema(true)
	s.AddField(FieldDef{
		Name:    "tags",
		Type:    FieldArray,
		Element: &FieldDef{Type: FieldString},
	})

	if err := s.Validate(State{"tags": []any{"a", 1, "c"}}); err == nil {
		t.Error("expected an element-type error at index 1")
	}
	if err := s.Validate(State{"tags": []any{"a", "b"}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchema_Enum(t *testing.T) {
	s := NewSchema(true)
	s.AddField(FieldDef{Name: "status", Type: FieldEnum, Enum: []any{"pending", "done"}})

	if err := s.Validate(State{"status": "unknown"}); err == nil {
		t.Error("expected an enum-membership error")
	}
	if err := s.Validate(State{"status": "done"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchema_NamedValidator(t *testing.T) {
	s := NewSchema(true)
	s.RegisterValidator("even", func(v any) error {
		n, _ := toInt64(v)
		if n%2 != 0 {
			return errOdd
		}
		return nil
	})
	s.AddField(FieldDef{Name: "n", Type: FieldInteger, Validators: []string{"even"}})

	if err := s.Validate(State{"n": 3}); err == nil {
		t.Error("expected the named validator to reject an odd number")
	}
	if err := s.Validate(State{"n": 4}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	s.AddField(FieldDef{Name: "m", Type: FieldInteger, Validators: []string{"missing"}})
	if err := s.Validate(State{"n": 4, "m": 1}); err == nil {
		t.Error("expected an error referencing the unknown validator")
	}
}

func TestSchema_ApplyDefaults(t *testing.T) {
	s := NewSchema(true)
	s.AddField(FieldDef{Name: "limit", Type: FieldInteger, Default: int64(10), HasDefault: true})

	out := s.ApplyDefaults(State{})
	if v, ok := out.AsInt("limit"); !ok || v != 10 {
		t.Errorf("expected default limit=10 to be applied, got %v", out["limit"])
	}

	out2 := s.ApplyDefaults(State{"limit": int64(99)})
	if v, _ := out2.AsInt("limit"); v != 99 {
		t.Errorf("expected an explicit value to be preserved, got %v", out2["limit"])
	}

	original := State{}
	_ = s.ApplyDefaults(original)
	if _, present := original["limit"]; present {
		t.Error("expected ApplyDefaults not to mutate its input")
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errOdd = testError("must be even")
