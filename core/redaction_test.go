package core

import "testing"

func TestRedactSensitiveMapPreservesTraceabilityMetadata(t *testing.T) {
	redacted := RedactSensitiveMap(map[string]any{
		"tenant_id":     "tenant_1",
		"token_key_id":  "app-key",
		"access_token":  "secret-token",
		"authorization": "Bearer secret-token",
		"nested":        map[string]any{"refresh_token": "refresh", "account_id": "act_1"},
		"events":        []any{map[string]any{"api_key": "key_1"}},
	})

	if redacted["tenant_id"] != "tenant_1" {
		t.Fatalf("expected tenant_id to remain visible, got %#v", redacted["tenant_id"])
	}
	if redacted["token_key_id"] != "app-key" {
		t.Fatalf("expected token_key_id to remain visible, got %#v", redacted["token_key_id"])
	}
	if redacted["access_token"] != RedactedValue {
		t.Fatalf("expected access_token to be redacted, got %#v", redacted["access_token"])
	}
	if redacted["authorization"] != RedactedValue {
		t.Fatalf("expected authorization to be redacted, got %#v", redacted["authorization"])
	}
	nested, ok := redacted["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested redacted map")
	}
	if nested["refresh_token"] != RedactedValue {
		t.Fatalf("expected nested refresh_token to be redacted, got %#v", nested["refresh_token"])
	}
	if nested["account_id"] != "act_1" {
		t.Fatalf("expected nested account_id to remain visible, got %#v", nested["account_id"])
	}
	events, ok := redacted["events"].([]any)
	if !ok || len(events) != 1 {
		t.Fatalf("expected redacted events slice, got %#v", redacted["events"])
	}
	if event, _ := events[0].(map[string]any); event["api_key"] != RedactedValue {
		t.Fatalf("expected api_key inside slice to be redacted, got %#v", events[0])
	}
}
