package router

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devops-hub/agenthub/types"
)

func newTestRouter() *Router {
	r := New(nil)
	r.AddEndpoint(Endpoint{AgentID: "a1", Capabilities: []string{"market-analysis"}, MaxLoad: 10})
	r.AddEndpoint(Endpoint{AgentID: "a2", Capabilities: []string{"market-analysis", "reporting"}, MaxLoad: 10})
	r.AddEndpoint(Endpoint{AgentID: "a3", Capabilities: []string{"deploy"}, MaxLoad: 10})
	return r
}

func TestRoutePreferredAgent(t *testing.T) {
	r := newTestRouter()
	msg := types.NewRequest("c", "", "market-analysis", nil)

	target, err := r.Route(msg, "a2")
	require.NoError(t, err)
	assert.Equal(t, "a2", target)

	// preferred agent at max load falls through to capability selection
	r.UpdateLoad("a2", 10)
	target, err = r.Route(msg, "a2")
	require.NoError(t, err)
	assert.Equal(t, "a1", target)

	// unhealthy preferred agent also falls through
	r.UpdateLoad("a2", 0)
	r.SetHealth("a2", false)
	target, err = r.Route(msg, "a2")
	require.NoError(t, err)
	assert.Equal(t, "a1", target)
}

func TestRoutePatternTable(t *testing.T) {
	r := newTestRouter()
	r.AddPattern(regexp.MustCompile(`^market-.*`), "a2", 10)
	r.AddPattern(regexp.MustCompile(`.*`), "a3", 1)

	// highest priority matching pattern wins
	target, err := r.Route(types.NewRequest("c", "", "market-analysis", nil), "")
	require.NoError(t, err)
	assert.Equal(t, "a2", target)

	// lower priority catch-all handles the rest
	target, err = r.Route(types.NewRequest("c", "", "deploy", nil), "")
	require.NoError(t, err)
	assert.Equal(t, "a3", target)

	// unhealthy pattern target falls through to capability selection
	r.SetHealth("a2", false)
	r.SetHealth("a3", false)
	target, err = r.Route(types.NewRequest("c", "", "market-analysis", nil), "")
	require.NoError(t, err)
	assert.Equal(t, "a1", target)
}

func TestRouteNoRouteFound(t *testing.T) {
	r := newTestRouter()
	for _, id := range []string{"a1", "a2", "a3"} {
		r.SetHealth(id, false)
	}

	_, err := r.Route(types.NewRequest("c", "", "market-analysis", nil), "a1")
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNoRouteFound, types.GetErrorCode(err))
}

func TestLoadBalanceLeastLoaded(t *testing.T) {
	r := newTestRouter()
	r.UpdateLoad("a1", 5)
	r.UpdateLoad("a2", 1)

	target, err := r.LoadBalance("market-analysis", StrategyLeastLoaded)
	require.NoError(t, err)
	assert.Equal(t, "a2", target)
}

func TestLoadBalanceWeighted(t *testing.T) {
	r := New(nil)
	r.AddEndpoint(Endpoint{AgentID: "light", Capabilities: []string{"x"}, MaxLoad: 10, Weight: 1})
	r.AddEndpoint(Endpoint{AgentID: "heavy", Capabilities: []string{"x"}, MaxLoad: 10, Weight: 3})
	r.UpdateLoad("light", 2) // capacity (10-2)*1 = 8
	r.UpdateLoad("heavy", 8) // capacity (10-8)*3 = 6

	target, err := r.LoadBalance("x", StrategyWeighted)
	require.NoError(t, err)
	assert.Equal(t, "light", target)

	r.UpdateLoad("heavy", 5) // capacity (10-5)*3 = 15
	target, err = r.LoadBalance("x", StrategyWeighted)
	require.NoError(t, err)
	assert.Equal(t, "heavy", target)
}

func TestLoadBalanceRoundRobinCycles(t *testing.T) {
	r := New(nil)
	ids := []string{"a1", "a2", "a3"}
	for _, id := range ids {
		r.AddEndpoint(Endpoint{AgentID: id, Capabilities: []string{"x"}, MaxLoad: 10})
	}

	seen := make(map[string]int)
	var order []string
	for i := 0; i < len(ids)+1; i++ {
		target, err := r.LoadBalance("x", StrategyRoundRobin)
		require.NoError(t, err)
		seen[target]++
		order = append(order, target)
	}

	// N calls visit every candidate once; call N+1 repeats the first
	for _, id := range ids {
		assert.GreaterOrEqual(t, seen[id], 1, "candidate %s never selected", id)
	}
	assert.Equal(t, order[0], order[len(ids)], "call N+1 must repeat the first candidate")
}

func TestLoadBalanceEmptyCandidates(t *testing.T) {
	r := newTestRouter()
	_, err := r.LoadBalance("nonexistent", StrategyLeastLoaded)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNoAgentsAvailable, types.GetErrorCode(err))

	// health filtering can empty an otherwise valid candidate set
	r.SetHealth("a3", false)
	_, err = r.LoadBalance("deploy", StrategyRoundRobin)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeNoAgentsAvailable, types.GetErrorCode(err))
}

func TestLoadBalanceNoCapabilityUsesAllEndpoints(t *testing.T) {
	r := newTestRouter()
	r.UpdateLoad("a1", 3)
	r.UpdateLoad("a2", 2)
	r.UpdateLoad("a3", 1)

	target, err := r.LoadBalance("", StrategyLeastLoaded)
	require.NoError(t, err)
	assert.Equal(t, "a3", target)
}

func TestMatchCapabilitiesAll(t *testing.T) {
	r := newTestRouter()

	matches := r.MatchCapabilities([]string{"market-analysis", "reporting"}, MatchAll)
	require.Len(t, matches, 1)
	assert.Equal(t, "a2", matches[0].Endpoint.AgentID)
	assert.Equal(t, 1.0, matches[0].MatchRatio)
}

func TestMatchCapabilitiesAnySortedByRatio(t *testing.T) {
	r := newTestRouter()

	matches := r.MatchCapabilities([]string{"market-analysis", "reporting"}, MatchAny)
	require.Len(t, matches, 2)
	assert.Equal(t, "a2", matches[0].Endpoint.AgentID)
	assert.Equal(t, 1.0, matches[0].MatchRatio)
	assert.Equal(t, "a1", matches[1].Endpoint.AgentID)
	assert.Equal(t, 0.5, matches[1].MatchRatio)
}

func TestRemoveEndpointPurgesRotation(t *testing.T) {
	r := New(nil)
	for _, id := range []string{"a1", "a2"} {
		r.AddEndpoint(Endpoint{AgentID: id, Capabilities: []string{"x"}, MaxLoad: 10})
	}
	_, err := r.LoadBalance("x", StrategyRoundRobin)
	require.NoError(t, err)

	r.RemoveEndpoint("a1")
	for i := 0; i < 3; i++ {
		target, err := r.LoadBalance("x", StrategyRoundRobin)
		require.NoError(t, err)
		assert.Equal(t, "a2", target)
	}
}
