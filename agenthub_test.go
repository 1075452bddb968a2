package agenthub

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devops-hub/agenthub/agent"
	"github.com/devops-hub/agenthub/config"
	"github.com/devops-hub/agenthub/registry"
	"github.com/devops-hub/agenthub/supervisor"
	"github.com/devops-hub/agenthub/types"
	"github.com/devops-hub/agenthub/workflow"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Registry.EnableSweep = false
	hub, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { hub.Stop(context.Background()) })
	return hub
}

func newEchoAgent(t *testing.T, hub *Hub, id string, capabilities ...string) *agent.Agent {
	t.Helper()
	a := agent.New(agent.Config{ID: id, Name: id, Domain: "ops"}, agent.WithBus(hub.Bus()))
	for _, name := range capabilities {
		capName := name
		a.RegisterCapability(types.NewCapability(capName, ""), func(_ context.Context, msg types.Message) (any, error) {
			return map[string]any{"capability": capName, "payload": msg.Payload}, nil
		})
	}
	require.NoError(t, hub.AddAgent(context.Background(), a))
	return a
}

func TestHubInvoke(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "deploy")

	resp := hub.Invoke(context.Background(), "worker-1", "deploy", map[string]any{"version": "1.0"})
	require.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "deploy", data["capability"])

	resp = hub.Invoke(context.Background(), "ghost", "deploy", nil)
	require.False(t, resp.Success)
	assert.Equal(t, types.ErrCodeAgentNotFound, resp.ErrorCode)

	resp = hub.Invoke(context.Background(), "worker-1", "unknown", nil)
	require.False(t, resp.Success)
	assert.Equal(t, types.ErrCodeUnknownCapability, resp.ErrorCode)
}

func TestHubRoute(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "build")
	newEchoAgent(t, hub, "worker-2", "build")

	resp := hub.Route(context.Background(), "build", map[string]any{"n": 1}, "worker-2")
	require.True(t, resp.Success)

	resp = hub.Route(context.Background(), "paint", nil, "")
	require.False(t, resp.Success)
	assert.Equal(t, types.ErrCodeNoRouteFound, resp.ErrorCode)
}

func TestHubDiscover(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "deploy", "rollback")
	newEchoAgent(t, hub, "worker-2", "scan")

	cards := hub.Discover(context.Background(), &registry.Filter{Capability: "deploy"})
	require.Len(t, cards, 1)
	assert.Equal(t, "worker-1", cards[0].AgentID)

	cards = hub.Discover(context.Background(), &registry.Filter{Domain: "ops"})
	assert.Len(t, cards, 2)
}

func TestHubRunWorkflow(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "fetch", "transform")

	def := &workflow.Definition{
		ID: "etl",
		Steps: []workflow.Step{
			{
				Type: workflow.StepAgentInvocation, AgentID: "worker-1", Capability: "fetch",
				InputMapping: map[string]string{"source": "source"},
				OutputKey:    "fetched",
			},
			{
				Type: workflow.StepAgentInvocation, AgentID: "worker-1", Capability: "transform",
				InputMapping: map[string]string{"data": "fetched.payload"},
				OutputKey:    "transformed",
			},
		},
	}

	exec, err := hub.RunWorkflow(context.Background(), def, map[string]any{"source": "s3://bucket"})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, exec.Status)
	assert.Contains(t, exec.Results, "transformed")
}

func TestHubOrchestrateAndWait(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "ship")

	def := &workflow.Definition{
		ID: "release",
		Steps: []workflow.Step{{
			Type: workflow.StepAgentInvocation, AgentID: "worker-1", Capability: "ship", OutputKey: "out",
		}},
	}
	res, err := hub.Orchestrate(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Equal(t, "started", res.Status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	exec, err := hub.WaitForExecution(ctx, res.ExecutionID, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, exec.Status)
}

func TestHubMonitorObservesInvocations(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "deploy")

	for i := 0; i < 3; i++ {
		resp := hub.Invoke(context.Background(), "worker-1", "deploy", nil)
		require.True(t, resp.Success)
	}

	require.Eventually(t, func() bool {
		metrics, err := hub.Monitor().Metrics("worker-1")
		return err == nil && metrics.Requests == 3
	}, time.Second, 5*time.Millisecond)
}

func TestHubHeartbeat(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "deploy")

	require.NoError(t, hub.Heartbeat(context.Background(), "worker-1", supervisor.StatusHealthy))

	err := hub.Heartbeat(context.Background(), "ghost", supervisor.StatusHealthy)
	assert.Equal(t, types.ErrCodeAgentNotFound, types.GetErrorCode(err))
}

func TestHubRemoveAgent(t *testing.T) {
	hub := newTestHub(t)
	a := newEchoAgent(t, hub, "worker-1", "deploy")

	require.NoError(t, hub.RemoveAgent(context.Background(), "worker-1"))
	assert.Equal(t, agent.StateStopped, a.State())
	assert.Empty(t, hub.Discover(context.Background(), nil))

	err := hub.RemoveAgent(context.Background(), "worker-1")
	assert.Equal(t, types.ErrCodeAgentNotFound, types.GetErrorCode(err))
}

func TestHubSupervisorRouting(t *testing.T) {
	hub := newTestHub(t)
	newEchoAgent(t, hub, "worker-1", "deploy")
	newEchoAgent(t, hub, "worker-2", "deploy", "rollback")

	got, err := hub.Supervisor().RouteTask([]string{"deploy", "rollback"})
	require.NoError(t, err)
	assert.Equal(t, "worker-2", got.AgentID)
}

func TestHubStopIsTerminal(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Registry.EnableSweep = false
	hub, err := New(cfg)
	require.NoError(t, err)
	a := newEchoAgent(t, hub, "worker-1", "deploy")

	require.NoError(t, hub.Stop(context.Background()))
	assert.Equal(t, agent.StateStopped, a.State())

	resp := hub.Invoke(context.Background(), "worker-1", "deploy", nil)
	require.False(t, resp.Success)
	assert.True(t, strings.Contains(resp.Error, "worker-1"))
}
