package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/model"
)

func diamondFlow() (map[string]*model.Element, map[string]*model.SequenceFlow) {
	elements := map[string]*model.Element{
		"start": {ID: "start", Kind: model.ElementStartEvent, Outgoing: []string{"f1"}},
		"gw":    {ID: "gw", Kind: model.ElementParallelGateway, Incoming: []string{"f1"}, Outgoing: []string{"f2", "f3"}},
		"a":     {ID: "a", Kind: model.ElementUserTask, Incoming: []string{"f2"}, Outgoing: []string{"f4"}},
		"b":     {ID: "b", Kind: model.ElementUserTask, Incoming: []string{"f3"}, Outgoing: []string{"f5"}},
		"join":  {ID: "join", Kind: model.ElementParallelGateway, Incoming: []string{"f4", "f5"}, Outgoing: []string{"f6"}},
		"end":   {ID: "end", Kind: model.ElementEndEvent, Incoming: []string{"f6"}},
	}
	flows := map[string]*model.SequenceFlow{
		"f1": {ID: "f1", SourceRef: "start", TargetRef: "gw"},
		"f2": {ID: "f2", SourceRef: "gw", TargetRef: "a"},
		"f3": {ID: "f3", SourceRef: "gw", TargetRef: "b"},
		"f4": {ID: "f4", SourceRef: "a", TargetRef: "join"},
		"f5": {ID: "f5", SourceRef: "b", TargetRef: "join"},
		"f6": {ID: "f6", SourceRef: "join", TargetRef: "end"},
	}
	return elements, flows
}

func TestNewProcessDefinition_RejectsFlowWithUnknownSourceRef(t *testing.T) {
	elements := map[string]*model.Element{
		"end": {ID: "end", Kind: model.ElementEndEvent},
	}
	flows := map[string]*model.SequenceFlow{
		"f1": {ID: "f1", SourceRef: "missing", TargetRef: "end"},
	}
	_, err := model.NewProcessDefinition("d1", "k1", 1, "Bad", elements, flows)
	require.Error(t, err)
}

func TestNewProcessDefinition_RejectsFlowWithUnknownTargetRef(t *testing.T) {
	elements := map[string]*model.Element{
		"start": {ID: "start", Kind: model.ElementStartEvent},
	}
	flows := map[string]*model.SequenceFlow{
		"f1": {ID: "f1", SourceRef: "start", TargetRef: "missing"},
	}
	_, err := model.NewProcessDefinition("d1", "k1", 1, "Bad", elements, flows)
	require.Error(t, err)
}

func TestNewProcessDefinition_RootChildrenExcludesContainedElements(t *testing.T) {
	elements := map[string]*model.Element{
		"start": {ID: "start", Kind: model.ElementStartEvent, Outgoing: []string{"f1"}, Children: nil},
		"sub":   {ID: "sub", Kind: model.ElementSubProcess, Incoming: []string{"f1"}, Children: []string{"inner"}},
		"inner": {ID: "inner", Kind: model.ElementUserTask},
	}
	flows := map[string]*model.SequenceFlow{
		"f1": {ID: "f1", SourceRef: "start", TargetRef: "sub"},
	}
	def, err := model.NewProcessDefinition("d1", "k1", 1, "Nested", elements, flows)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"start", "sub"}, def.RootChildren, "inner is contained by sub and must not be a root child")
}

func TestNewProcessDefinition_StartEventIDsExcludesEventTriggeredStarts(t *testing.T) {
	elements := map[string]*model.Element{
		"start":      {ID: "start", Kind: model.ElementStartEvent, TriggeredByEvent: false},
		"eventStart": {ID: "eventStart", Kind: model.ElementStartEvent, TriggeredByEvent: true},
	}
	def, err := model.NewProcessDefinition("d1", "k1", 1, "Starts", elements, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"start"}, def.StartEventIDs)
}

func TestReachable_TrueAcrossMultipleHops(t *testing.T) {
	elements, flows := diamondFlow()
	def, err := model.NewProcessDefinition("d1", "k1", 1, "Diamond", elements, flows)
	require.NoError(t, err)
	require.True(t, def.Reachable("start", "end"))
	require.True(t, def.Reachable("gw", "join"))
}

func TestReachable_FalseAgainstSiblingBranch(t *testing.T) {
	elements, flows := diamondFlow()
	def, err := model.NewProcessDefinition("d1", "k1", 1, "Diamond", elements, flows)
	require.NoError(t, err)
	require.False(t, def.Reachable("a", "b"), "a and b are parallel siblings, neither reaches the other")
}

func TestReachable_FalseForUnknownSource(t *testing.T) {
	elements, flows := diamondFlow()
	def, err := model.NewProcessDefinition("d1", "k1", 1, "Diamond", elements, flows)
	require.NoError(t, err)
	require.False(t, def.Reachable("nonexistent", "end"))
}
