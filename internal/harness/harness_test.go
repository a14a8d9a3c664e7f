package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestBuiltins_Golden(t *testing.T) {
	for _, name := range Builtins() {
		t.Run(name, func(t *testing.T) {
			scenario, err := Builtin(name)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_ReplicasConverge(t *testing.T) {
	scenario := &Scenario{
		Name: "converge",
		List: ListSpec{ID: 3, Kind: KindString, Name: "top"},
		Steps: []Step{
			{Side: SideServer, Op: OpBind},
			{Side: SideClient, Op: OpBind},
			{Side: SideClient, Op: OpAddAll, Values: []any{"a", "b", "c"}},
			{Side: SideServer, Op: OpRemove, Index: intPtr(1)},
			{Side: SideServer, Op: OpSet, Index: intPtr(0), Value: "z"},
		},
		Expect: Expect{
			Server: []string{"z", "c"},
			Client: []string{"z", "c"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 5)
	assert.Equal(t, TraceEvent{Step: 3, Side: SideClient, Op: OpAddAll, Args: "[a, b, c]", Server: 3, Client: 3}, result.Trace[2])
}

func TestRun_ExpectationFailures(t *testing.T) {
	scenario := &Scenario{
		Name: "failures",
		List: ListSpec{ID: 3, Kind: KindString, Name: "top"},
		Steps: []Step{
			{Side: SideServer, Op: OpAdd, Value: "a"},
			{Side: SideServer, Op: OpSet, Index: intPtr(0), Value: "b", Error: "INDEX_OUT_OF_RANGE"},
			{Side: SideServer, Op: OpBind},
			{Side: SideServer, Op: OpBind},
		},
		Expect: Expect{Server: []string{"a"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "expected INDEX_OUT_OF_RANGE")
	assert.Contains(t, result.Errors[1], "ALREADY_BOUND")
	assert.Contains(t, result.Errors[2], "expect.server")
	assert.Equal(t, "ALREADY_BOUND", result.Trace[3].Error)
	// The client never bound, so the server's snapshot is still buffered.
	assert.Empty(t, result.Replicas.Client)
}

func TestRun_ViewPlainValues(t *testing.T) {
	scenario := &Scenario{
		Name: "view-plain",
		List: ListSpec{ID: 4, Kind: KindString, Name: "top"},
		Steps: []Step{
			{Side: SideClient, Op: OpView},
			{Side: SideClient, Op: OpAdd, Value: "x"},
			{Side: SideClient, Op: OpRemove, Index: intPtr(0)},
		},
		Expect: Expect{Log: []string{"start 0", "x", "finish 0"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidStaticID(t *testing.T) {
	scenario := &Scenario{
		Name:  "bad-id",
		List:  ListSpec{ID: 2_000_000, Kind: KindString, Name: "top"},
		Steps: []Step{{Side: SideServer, Op: OpClear}},
	}

	_, err := Run(scenario)
	assert.Error(t, err)
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	scenario, err := Builtin("static-list")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
