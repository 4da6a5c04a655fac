// Package eventsubprocess implements event sub-process registration and
// triggering (§4.E): classifying child start events, matching an incoming
// event against them, and spawning the sub-process scope.
package eventsubprocess

import (
	"context"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/expr"
	"github.com/r3e-network/flowlayer/engine/model"
)

// ScopeFactory creates a new execution + variable scope for a spawned event
// sub-process instance, returning the new execution's ID and its scope ID.
// Implemented by engine/scheduler, which owns execution/scope creation.
type ScopeFactory func(ctx context.Context, parentExecutionID, startElementID string) (executionID, scopeID string, err error)

// Manager registers and triggers event sub-processes.
type Manager struct {
	spawn ScopeFactory
}

// New constructs a Manager bound to the given scope factory.
func New(spawn ScopeFactory) *Manager {
	return &Manager{spawn: spawn}
}

// StartEvent describes one classified child start event of an event
// sub-process element.
type StartEvent struct {
	ElementID     string
	EventType     model.EventType
	EventName     string
	IsInterrupting bool
	Condition     string // optional conditional-start gating expression
}

// Validate performs the structural checks §4.E requires at deploy time: an
// event sub-process must have at least one start event, and every start
// event must declare a concrete EventType (bare "none" starts aren't valid
// inside an event sub-process — the whole point is reacting to an event).
func Validate(element *model.Element, children []*model.Element) error {
	if element.Kind != model.ElementEventSubProcess {
		return engerr.BpmnError("NotEventSubProcess", "element "+element.ID+" is not an eventSubProcess")
	}
	starts := Register(children)
	if len(starts) == 0 {
		return engerr.BpmnError("NoStartEvent", "eventSubProcess "+element.ID+" has no start event")
	}
	for _, s := range starts {
		if s.EventType == "" {
			return engerr.BpmnError("UntypedStartEvent", "eventSubProcess "+element.ID+" start event "+s.ElementID+" has no event type")
		}
	}
	return nil
}

// Register classifies the event sub-process's child start events.
func Register(children []*model.Element) []StartEvent {
	var starts []StartEvent
	for _, c := range children {
		if c.Kind != model.ElementStartEvent || !c.TriggeredByEvent {
			continue
		}
		starts = append(starts, StartEvent{
			ElementID:      c.ID,
			EventType:      c.EventType,
			EventName:      c.EventName,
			IsInterrupting: c.IsInterrupting,
			Condition:      c.Condition,
		})
	}
	return starts
}

// TriggerResult describes the outcome of successfully matching and
// triggering an event sub-process start event.
type TriggerResult struct {
	ExecutionID    string
	NextElementIDs []string
	IsInterrupting bool
}

// Trigger matches an incoming event against the classified start events; if
// one matches (and its optional conditional gate passes), it spawns a new
// execution via the scope factory, seeds the new scope's "eventData"
// variable, and returns the element to resume from.
func (m *Manager) Trigger(ctx context.Context, parentExecutionID string, starts []StartEvent, eventType model.EventType, eventName string, eventData interface{}, setVar func(scopeID, name string, value interface{}) error, vars map[string]interface{}) (*TriggerResult, error) {
	for _, s := range starts {
		if s.EventType != eventType || s.EventName != eventName {
			continue
		}
		if s.Condition != "" {
			ok, err := expr.EvaluateBool(ctx, s.Condition, vars)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		executionID, scopeID, err := m.spawn(ctx, parentExecutionID, s.ElementID)
		if err != nil {
			return nil, engerr.Internal("spawn event sub-process execution", err)
		}
		if setVar != nil {
			if err := setVar(scopeID, "eventData", eventData); err != nil {
				return nil, err
			}
		}
		return &TriggerResult{
			ExecutionID:    executionID,
			NextElementIDs: []string{s.ElementID},
			IsInterrupting: s.IsInterrupting,
		}, nil
	}
	return nil, nil
}
