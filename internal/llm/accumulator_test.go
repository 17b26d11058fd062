package llm

import "testing"

func TestToolCallAccumulatorMergesFragments(t *testing.T) {
	a := NewToolCallAccumulator()
	a.Add(0, "call_1", "get_weather", `{"loc`)
	a.Add(0, "", "", `ation":"NYC"}`)
	a.Add(1, "call_2", "get_time", `{"tz":"UTC"}`)

	calls := a.Finalize()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "get_weather" {
		t.Fatalf("unexpected first call: %#v", calls[0])
	}
	if calls[0].Arguments["location"] != "NYC" {
		t.Fatalf("expected merged arguments, got %#v", calls[0].Arguments)
	}
	if calls[1].ID != "call_2" || calls[1].Arguments["tz"] != "UTC" {
		t.Fatalf("unexpected second call: %#v", calls[1])
	}
}

func TestToolCallAccumulatorEmpty(t *testing.T) {
	a := NewToolCallAccumulator()
	if calls := a.Finalize(); len(calls) != 0 {
		t.Fatalf("expected no calls, got %#v", calls)
	}
}
