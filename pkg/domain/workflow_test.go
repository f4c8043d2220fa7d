package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamBindingJSON(t *testing.T) {
	var ref ResolverRef
	err := json.Unmarshal([]byte(`{
		"name": "Chat",
		"params": {
			"questions": "batch",
			"explicit": {"from": "pool"},
			"model": {"value": "gpt-4o"},
			"strict": {"value": false}
		},
		"results": {"response": "grading"}
	}`), &ref)
	require.NoError(t, err)

	assert.Equal(t, FromPool("batch"), ref.Params["questions"])
	assert.Equal(t, FromPool("pool"), ref.Params["explicit"])
	assert.Equal(t, Static("gpt-4o"), ref.Params["model"])
	assert.Equal(t, Static(false), ref.Params["strict"])
	assert.True(t, ref.Params["questions"].IsReference())
	assert.False(t, ref.Params["strict"].IsReference())

	data, err := json.Marshal(ref.Params["strict"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"value": false}`, string(data))

	var back ParamBinding
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Static(false), back)

	assert.Error(t, json.Unmarshal([]byte(`""`), &back))
	assert.Error(t, json.Unmarshal([]byte(`42`), &back))
}

func TestSortedTasks(t *testing.T) {
	def := &WorkflowDefinition{Tasks: []TaskDefinition{
		{Name: "c", Order: 2},
		{Name: "b", Order: 1},
		{Name: "a", Order: 2},
	}}

	var names []string
	for _, task := range def.SortedTasks() {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.Equal(t, "c", def.Tasks[0].Name, "original order untouched")

	task, ok := def.Task("a")
	assert.True(t, ok)
	assert.Equal(t, 2, task.Order)
	_, ok = def.Task("zzz")
	assert.False(t, ok)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsConfigurationError(ErrUnsatisfiableGraph))
	assert.True(t, IsConfigurationError(ErrPrecondition))
	assert.False(t, IsConfigurationError(ErrExternalService))
	assert.True(t, IsNotFound(ErrRunNotFound))
	assert.False(t, IsNotFound(ErrSchemaMismatch))
	assert.True(t, ExecutionStatusCancelled.Terminal())
	assert.False(t, ExecutionStatusRunning.Terminal())
	assert.True(t, ParamSourceContent.Valid())
	assert.False(t, ParamSource("Other").Valid())
}
