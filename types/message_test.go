package types

import "testing"

func TestNewRequest(t *testing.T) {
	m := NewRequest("caller", "worker", "deploy", map[string]any{"env": "staging"})

	if m.ID == "" {
		t.Fatal("expected generated message ID")
	}
	if m.Kind != KindRequest {
		t.Errorf("expected kind %q, got %q", KindRequest, m.Kind)
	}
	if m.Priority != PriorityNormal {
		t.Errorf("expected default priority %q, got %q", PriorityNormal, m.Priority)
	}
	if m.Protocol != ProtocolTag {
		t.Errorf("expected protocol %q, got %q", ProtocolTag, m.Protocol)
	}
	if m.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}
}

func TestMessageCorrelation(t *testing.T) {
	m := NewRequest("a", "b", "x", nil)
	if m.Correlation() != m.ID {
		t.Errorf("expected correlation to default to message ID")
	}

	m2 := m.WithCorrelationID("corr-1")
	if m2.Correlation() != "corr-1" {
		t.Errorf("expected explicit correlation ID, got %q", m2.Correlation())
	}
	// builder must not mutate the original
	if m.CorrelationID != "" {
		t.Error("WithCorrelationID mutated the original message")
	}
}

func TestResponseCorrelation(t *testing.T) {
	m := NewRequest("a", "b", "x", nil)
	resp := NewSuccessResponse(m, map[string]any{"ok": true})

	if resp.MessageID != m.ID {
		t.Errorf("expected message_id %q, got %q", m.ID, resp.MessageID)
	}
	if resp.CorrelationID != m.ID {
		t.Errorf("expected correlation_id %q, got %q", m.ID, resp.CorrelationID)
	}
	if resp.Err() != nil {
		t.Errorf("success response must yield nil error, got %v", resp.Err())
	}

	failed := NewErrorResponse(m, ErrCodeAgentNotReady, "agent not ready")
	if failed.Success {
		t.Error("expected failed response")
	}
	if failed.Data != nil {
		t.Error("failed response must not carry data")
	}
	if got := GetErrorCode(failed.Err()); got != ErrCodeAgentNotReady {
		t.Errorf("expected code %q, got %q", ErrCodeAgentNotReady, got)
	}
}
