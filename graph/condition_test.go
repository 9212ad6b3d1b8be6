package graph

import "testing"

func TestEvaluateCondition(t *testing.T) {
	state := State{
		"status":     "complete",
		"confidence": 0.5,
		"count":      int64(10),
		"tags":       []any{"urgent", "reviewed"},
		"errors":     []any{},
		"active":     true,
		"empty":      "",
	}

	cases := []struct {
		name string
		cond string
		want bool
	}{
		{"eq string match", "eq:status=complete", true},
		{"eq string mismatch", "eq:status=pending", false},
		{"eq unknown field", "eq:missing=complete", false},
		{"gt numeric true", "gt:count>5", true},
		{"gt numeric false", "gt:count>50", false},
		{"lt numeric true", "lt:count<50", true},
		{"contains string", "contains:status:comp", true},
		{"contains array", "contains:tags:urgent", true},
		{"contains array miss", "contains:tags:missing", false},
		{"exists present", "exists:status", true},
		{"exists absent", "exists:nope", false},
		{"fn has_errors empty", "fn:has_errors", false},
		{"fn is_complete", "fn:is_complete", true},
		{"fn needs_review low confidence", "fn:needs_review", true},
		{"fn unknown", "fn:nonexistent", false},
		{"truthy bool", "active", true},
		{"truthy empty string", "empty", false},
		{"truthy missing", "nope", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvaluateCondition(tc.cond, state); got != tc.want {
				t.Errorf("EvaluateCondition(%q) = %v, want %v", tc.cond, got, tc.want)
			}
		})
	}
}

func TestEvaluateComplex(t *testing.T) {
	state := State{"a": true, "b": false}
	if !EvaluateComplex([]string{"a", "a"}, "AND", state) {
		t.Error("expected AND of two true conditions to be true")
	}
	if EvaluateComplex([]string{"a", "b"}, "AND", state) {
		t.Error("expected AND with one false condition to be false")
	}
	if !EvaluateComplex([]string{"a", "b"}, "OR", state) {
		t.Error("expected OR with one true condition to be true")
	}
	if !EvaluateComplex([]string{"a", "b"}, "XOR", state) {
		t.Error("expected XOR with exactly one true condition to be true")
	}
	if EvaluateComplex([]string{"a", "a"}, "XOR", state) {
		t.Error("expected XOR with two true conditions to be false")
	}
	if EvaluateComplex([]string{"a"}, "unknown-op", state) {
		t.Error("expected unknown operator to be false")
	}
}

func TestCompileCondition(t *testing.T) {
	pred := CompileCondition("eq:status=ok")
	if pred(State{"status": "ok"}) != true {
		t.Error("expected compiled predicate to match")
	}
	if pred(State{"status": "bad"}) != false {
		t.Error("expected compiled predicate to reject mismatch")
	}
}

func TestConditionalRouter(t *testing.T) {
	r := NewConditionalRouter()
	r.AddRoute("eq:tier=gold", "gold-path", 10)
	r.AddRoute("exists:tier", "generic-path", 1)

	target, ok := r.Route(State{"tier": "gold"})
	if !ok || target != "gold-path" {
		t.Errorf("expected higher-priority gold-path, got %q, %v", target, ok)
	}

	target, ok = r.Route(State{"tier": "silver"})
	if !ok || target != "generic-path" {
		t.Errorf("expected fallback to generic-path, got %q, %v", target, ok)
	}

	if _, ok := r.Route(State{}); ok {
		t.Error("expected no match when tier key is absent")
	}

	all := r.RouteAll(State{"tier": "gold"})
	if len(all) != 2 {
		t.Errorf("expected both routes to match, got %v", all)
	}
}
