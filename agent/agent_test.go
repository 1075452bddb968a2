package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devops-hub/agenthub/types"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	a := New(Config{ID: "a1", Name: "Test Agent", Domain: "ops"})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("failed to start agent: %v", err)
	}
	return a
}

func TestStartOnlyFromInitializing(t *testing.T) {
	a := New(Config{ID: "a1", Name: "Test Agent"})
	if a.State() != StateInitializing {
		t.Fatalf("expected initializing, got %s", a.State())
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if a.State() != StateReady {
		t.Errorf("expected ready, got %s", a.State())
	}

	err := a.Start(context.Background())
	if err == nil {
		t.Fatal("expected error starting twice")
	}
	if !types.IsCode(err, types.ErrCodeInvalidTransition) {
		t.Errorf("expected INVALID_TRANSITION, got %q", types.GetErrorCode(err))
	}
}

func TestStartHookFailureMovesToError(t *testing.T) {
	a := New(Config{ID: "a1"}, WithStartHook(func(ctx context.Context) error {
		return errors.New("boom")
	}))

	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected start to fail")
	}
	if a.State() != StateError {
		t.Errorf("expected error state, got %s", a.State())
	}
}

func TestPauseResume(t *testing.T) {
	a := newTestAgent(t)

	a.Pause()
	if a.State() != StatePaused {
		t.Fatalf("expected paused, got %s", a.State())
	}

	// pausing again is a no-op, not an error
	a.Pause()
	if a.State() != StatePaused {
		t.Fatalf("expected paused, got %s", a.State())
	}

	a.Resume()
	if a.State() != StateReady {
		t.Fatalf("expected ready, got %s", a.State())
	}

	// resume from ready is a no-op
	a.Resume()
	if a.State() != StateReady {
		t.Fatalf("expected ready, got %s", a.State())
	}
}

func TestStopIdempotent(t *testing.T) {
	a := newTestAgent(t)
	ctx := context.Background()

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if a.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", a.State())
	}
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestHandleMessageNotReady(t *testing.T) {
	a := New(Config{ID: "a1"})
	msg := types.NewRequest("caller", "a1", "deploy", nil)

	resp := a.HandleMessage(context.Background(), msg)
	if resp.Success {
		t.Fatal("expected failure while initializing")
	}
	if resp.ErrorCode != types.ErrCodeAgentNotReady {
		t.Errorf("expected AGENT_NOT_READY, got %q", resp.ErrorCode)
	}

	processed, _, _ := a.Stats()
	if processed != 0 {
		t.Errorf("rejected message must not count as processed, got %d", processed)
	}
}

func TestHandleMessageDispatch(t *testing.T) {
	a := newTestAgent(t)
	a.RegisterCapability(types.NewCapability("deploy", "Deploy a service"),
		func(ctx context.Context, msg types.Message) (any, error) {
			return map[string]any{"deployed": msg.Payload["service"]}, nil
		})

	msg := types.NewRequest("caller", "a1", "deploy", map[string]any{"service": "api"})
	resp := a.HandleMessage(context.Background(), msg)

	if !resp.Success {
		t.Fatalf("expected success, got %s: %s", resp.ErrorCode, resp.Error)
	}
	if resp.CorrelationID != msg.ID {
		t.Errorf("expected correlation_id %q, got %q", msg.ID, resp.CorrelationID)
	}
	data := resp.Data.(map[string]any)
	if data["deployed"] != "api" {
		t.Errorf("unexpected handler result: %v", resp.Data)
	}
	if a.State() != StateReady {
		t.Errorf("agent must return to ready, got %s", a.State())
	}

	processed, errs, _ := a.Stats()
	if processed != 1 || errs != 0 {
		t.Errorf("expected 1 processed / 0 errors, got %d / %d", processed, errs)
	}
}

func TestHandleMessageGenericFallback(t *testing.T) {
	a := newTestAgent(t)

	msg := types.NewRequest("caller", "a1", "unregistered", map[string]any{"k": "v"})
	resp := a.HandleMessage(context.Background(), msg)

	if !resp.Success {
		t.Fatalf("generic processor must handle unknown capabilities: %s", resp.Error)
	}
	data := resp.Data.(map[string]any)
	if data["capability"] != "unregistered" {
		t.Errorf("unexpected generic result: %v", resp.Data)
	}
}

func TestHandleMessagePanicRecovery(t *testing.T) {
	a := newTestAgent(t)
	a.RegisterCapability(types.NewCapability("explode", ""),
		func(ctx context.Context, msg types.Message) (any, error) {
			panic("kaboom")
		})

	resp := a.HandleMessage(context.Background(), types.NewRequest("c", "a1", "explode", nil))
	if resp.Success {
		t.Fatal("expected failure from panicking handler")
	}
	if resp.ErrorCode != types.ErrCodeHandlerPanic {
		t.Errorf("expected HANDLER_PANIC, got %q", resp.ErrorCode)
	}
	if a.State() != StateReady {
		t.Errorf("agent must recover to ready, got %s", a.State())
	}

	_, errs, _ := a.Stats()
	if errs != 1 {
		t.Errorf("expected 1 error counted, got %d", errs)
	}
}

func TestHandleMessageTimeout(t *testing.T) {
	a := newTestAgent(t)
	a.RegisterCapability(types.NewCapability("slow", ""),
		func(ctx context.Context, msg types.Message) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp := a.HandleMessage(ctx, types.NewRequest("c", "a1", "slow", nil))
	if resp.Success {
		t.Fatal("expected timeout failure")
	}
	if resp.ErrorCode != types.ErrCodeTimeout {
		t.Errorf("expected TIMEOUT, got %q", resp.ErrorCode)
	}
}

func TestLifecycleHooks(t *testing.T) {
	a := New(Config{ID: "a1"})

	var events []HookEvent
	record := func(evt HookEvent) Hook {
		return func(agentID string) { events = append(events, evt) }
	}
	a.On(HookAgentStarted, record(HookAgentStarted))
	a.On(HookAgentPaused, record(HookAgentPaused))
	a.On(HookAgentResumed, record(HookAgentResumed))
	a.On(HookAgentStopped, record(HookAgentStopped))
	// a panicking hook must not abort the transition
	a.On(HookAgentStarted, func(agentID string) { panic("hook failure") })

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	a.Pause()
	a.Resume()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	want := []HookEvent{HookAgentStarted, HookAgentPaused, HookAgentResumed, HookAgentStopped}
	if len(events) != len(want) {
		t.Fatalf("expected %d hook events, got %d (%v)", len(want), len(events), events)
	}
	for i, evt := range want {
		if events[i] != evt {
			t.Errorf("event %d: expected %s, got %s", i, evt, events[i])
		}
	}
}

func TestCapabilityOverwriteByName(t *testing.T) {
	a := newTestAgent(t)
	a.RegisterCapability(types.NewCapability("deploy", "v1"), nil)
	a.RegisterCapability(types.NewCapability("deploy", "v2"), nil)
	a.RegisterCapability(types.NewCapability("rollback", ""), nil)

	caps := a.Capabilities()
	if len(caps) != 2 {
		t.Fatalf("expected 2 capabilities, got %d", len(caps))
	}
	if caps[0].Description != "v2" {
		t.Errorf("expected overwrite by name, got %q", caps[0].Description)
	}
}
