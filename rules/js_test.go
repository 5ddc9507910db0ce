//go:build js_eval

package rules

import "testing"

func TestJSEvaluator(t *testing.T) {
	evaluator, err := NewEvaluator(EngineJS, WithFunctionRegistry(lowerRegistry(t)))
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	ctx := RuleContext{Event: sampleEvent()}

	got, err := evaluator.Evaluate(ctx, `level === "debug" && message.indexOf("healthz") >= 0`)
	if err != nil || got != true {
		t.Fatalf("expected true, got %v (%v)", got, err)
	}
	got, err = evaluator.Evaluate(ctx, `lower("ABC")`)
	if err != nil || got != "abc" {
		t.Fatalf("expected registry call, got %v (%v)", got, err)
	}
	if EngineName(evaluator) != EngineJS {
		t.Fatalf("expected js engine name")
	}
}
