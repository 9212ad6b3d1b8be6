package graph

import "testing"

func TestCostTracker_RecordLLMCall(t *testing.T) {
	ct := NewCostTracker("run-1", "USD")

	if err := ct.RecordLLMCall("gpt-4o", 1000, 500, "nodeA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ct.RecordLLMCall("gpt-4o", 1000, 500, "nodeB"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := ct.GetTotalCost()
	if total <= 0 {
		t.Errorf("expected positive total cost, got %v", total)
	}

	inputTokens, outputTokens := ct.GetTokenUsage()
	if inputTokens != 2000 || outputTokens != 1000 {
		t.Errorf("expected 2000/1000 tokens, got %d/%d", inputTokens, outputTokens)
	}

	history := ct.GetCallHistory()
	if len(history) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(history))
	}
	if history[0].NodeID != "nodeA" || history[1].NodeID != "nodeB" {
		t.Errorf("unexpected call order/attribution: %+v", history)
	}
}

func TestCostTracker_UnknownModelRecordsZeroCost(t *testing.T) {
	ct := NewCostTracker("run-2", "USD")

	if err := ct.RecordLLMCall("some-unlisted-model", 1000, 1000, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct.GetTotalCost() != 0 {
		t.Errorf("expected zero cost for an unlisted model, got %v", ct.GetTotalCost())
	}
}

func TestCostTracker_GetCostByModel(t *testing.T) {
	ct := NewCostTracker("run-3", "USD")

	_ = ct.RecordLLMCall("gpt-4o", 1000, 0, "")
	_ = ct.RecordLLMCall("claude-3-sonnet", 1000, 0, "")
	_ = ct.RecordLLMCall("gpt-4o", 1000, 0, "")

	costs := ct.GetCostByModel()
	if len(costs) != 2 {
		t.Fatalf("expected 2 distinct models, got %d: %+v", len(costs), costs)
	}
	if costs["gpt-4o"] <= costs["claude-3-sonnet"] {
		t.Errorf("expected gpt-4o (two calls) to cost more than claude-3-sonnet (one call): %+v", costs)
	}

	// Mutating the returned map must not affect the tracker's internal state.
	costs["gpt-4o"] = -1
	if fresh := ct.GetCostByModel()["gpt-4o"]; fresh == -1 {
		t.Error("expected GetCostByModel to return a defensive copy")
	}
}

func TestCostTracker_SetCustomPricing(t *testing.T) {
	ct := NewCostTracker("run-4", "USD")
	ct.SetCustomPricing("enterprise-model", 2.00, 8.00)

	if err := ct.RecordLLMCall("enterprise-model", 1_000_000, 1_000_000, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 2.00 + 8.00
	if got := ct.GetTotalCost(); got != want {
		t.Errorf("expected cost %v for custom pricing at 1M tokens each way, got %v", want, got)
	}
}

func TestCostTracker_DisableEnable(t *testing.T) {
	ct := NewCostTracker("run-5", "USD")
	ct.Disable()

	if err := ct.RecordLLMCall("gpt-4o", 1000, 1000, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ct.GetCallHistory()) != 0 {
		t.Error("expected no calls recorded while disabled")
	}

	ct.Enable()
	if err := ct.RecordLLMCall("gpt-4o", 1000, 1000, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ct.GetCallHistory()) != 1 {
		t.Error("expected recording to resume after Enable")
	}
}

func TestCostTracker_Reset(t *testing.T) {
	ct := NewCostTracker("run-6", "USD")
	_ = ct.RecordLLMCall("gpt-4o", 1000, 1000, "")

	ct.Reset()

	if ct.GetTotalCost() != 0 {
		t.Errorf("expected zero total cost after Reset, got %v", ct.GetTotalCost())
	}
	if len(ct.GetCallHistory()) != 0 {
		t.Error("expected empty call history after Reset")
	}
	inputTokens, outputTokens := ct.GetTokenUsage()
	if inputTokens != 0 || outputTokens != 0 {
		t.Errorf("expected zeroed token usage after Reset, got %d/%d", inputTokens, outputTokens)
	}

	// Pricing survives a Reset.
	if err := ct.RecordLLMCall("gpt-4o", 1_000_000, 0, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct.GetTotalCost() <= 0 {
		t.Error("expected pricing table to survive Reset")
	}
}

func TestCostTracker_String(t *testing.T) {
	ct := NewCostTracker("run-7", "USD")
	_ = ct.RecordLLMCall("gpt-4o", 1000, 500, "")

	s := ct.String()
	if s == "" {
		t.Error("expected a non-empty summary string")
	}
}
