package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/r3e-network/flowlayer/engine/model"
	database "github.com/r3e-network/flowlayer/infrastructure/database"
)

// Memory is an in-memory backing store for every repository contract the
// engine depends on. Its own methods are named uniquely per entity (no two
// interfaces the engine declares share a method name with different
// signatures, but Go structs can't overload by parameter type) — the small
// Store adapter types below expose the exact method names each package's
// Repository interface requires, delegating back into Memory. Exists for
// deterministic unit tests; a Postgres-backed implementation satisfies the
// same interfaces in production.
type Memory struct {
	mu sync.Mutex

	definitions      map[string]*model.ProcessDefinition
	definitionsByKey map[string][]*model.ProcessDefinition
	instances        map[string]*model.ProcessInstance
	executions       map[string]*model.Execution
	tasks            map[string]*model.Task

	varScopes map[string]*model.VariableScope
	variables map[string]map[string]*model.Variable

	subscriptions map[string]*model.EventSubscription

	txScopes map[string]*model.TransactionScope

	outbox []*model.LifecycleEvent
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		definitions:      make(map[string]*model.ProcessDefinition),
		definitionsByKey: make(map[string][]*model.ProcessDefinition),
		instances:        make(map[string]*model.ProcessInstance),
		executions:       make(map[string]*model.Execution),
		tasks:            make(map[string]*model.Task),
		varScopes:        make(map[string]*model.VariableScope),
		variables:        make(map[string]map[string]*model.Variable),
		subscriptions:    make(map[string]*model.EventSubscription),
		txScopes:         make(map[string]*model.TransactionScope),
	}
}

// --- ProcessDefinition ---

func (m *Memory) SaveDefinition(ctx context.Context, pd *model.ProcessDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[pd.ID] = pd
	m.definitionsByKey[pd.Key] = append(m.definitionsByKey[pd.Key], pd)
	return nil
}

func (m *Memory) GetDefinition(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pd, ok := m.definitions[id]
	if !ok {
		return nil, database.NewNotFoundError("ProcessDefinition", id)
	}
	return pd, nil
}

func (m *Memory) GetLatestDefinitionByKey(ctx context.Context, key string) (*model.ProcessDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.definitionsByKey[key]
	if len(versions) == 0 {
		return nil, database.NewNotFoundError("ProcessDefinition", key)
	}
	latest := versions[0]
	for _, v := range versions {
		if v.Version > latest.Version {
			latest = v
		}
	}
	return latest, nil
}

// --- ProcessInstance ---

func (m *Memory) CreateInstance(ctx context.Context, pi *model.ProcessInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[pi.ID] = pi
	return nil
}

func (m *Memory) GetInstance(ctx context.Context, id string) (*model.ProcessInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pi, ok := m.instances[id]
	if !ok {
		return nil, database.NewNotFoundError("ProcessInstance", id)
	}
	return pi, nil
}

func (m *Memory) UpdateInstance(ctx context.Context, pi *model.ProcessInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[pi.ID] = pi
	return nil
}

func (m *Memory) ListInstancesByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProcessInstance
	for _, pi := range m.instances {
		if pi.ProcessDefinitionID == processDefinitionID {
			out = append(out, pi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return paginate(out, limit, offset), nil
}

// --- Execution ---

func (m *Memory) CreateExecution(ctx context.Context, e *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ID] = e
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, database.NewNotFoundError("Execution", id)
	}
	return e, nil
}

func (m *Memory) UpdateExecution(ctx context.Context, e *model.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[e.ID] = e
	return nil
}

func (m *Memory) DeleteExecution(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.executions, id)
	return nil
}

func (m *Memory) ListExecutionsByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Execution
	for _, e := range m.executions {
		if e.ProcessInstanceID == processInstanceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) ListExecutionChildren(ctx context.Context, parentExecutionID string) ([]*model.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Execution
	for _, e := range m.executions {
		if e.ParentExecutionID == parentExecutionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- Task ---

func (m *Memory) CreateTask(ctx context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, database.NewNotFoundError("Task", id)
	}
	return t, nil
}

func (m *Memory) UpdateTask(ctx context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *Memory) ListTasksByAssignee(ctx context.Context, assignee string) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, t := range m.tasks {
		if t.Assignee == assignee {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- VariableScope ---

func (m *Memory) CreateVarScope(ctx context.Context, s *model.VariableScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.varScopes[s.ID] = s
	m.variables[s.ID] = make(map[string]*model.Variable)
	return nil
}

func (m *Memory) GetVarScope(ctx context.Context, id string) (*model.VariableScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.varScopes[id]
	if !ok {
		return nil, database.NewNotFoundError("VariableScope", id)
	}
	return s, nil
}

func (m *Memory) VarScopeChildren(ctx context.Context, parentScopeID string) ([]*model.VariableScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.VariableScope
	for _, s := range m.varScopes {
		if s.ParentScopeID == parentScopeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) DeleteVarScope(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.varScopes, id)
	delete(m.variables, id)
	return nil
}

func (m *Memory) SetVariable(ctx context.Context, v *model.Variable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.variables[v.ScopeID] == nil {
		m.variables[v.ScopeID] = make(map[string]*model.Variable)
	}
	m.variables[v.ScopeID][v.Name] = v
	return nil
}

func (m *Memory) GetVariable(ctx context.Context, scopeID, name string) (*model.Variable, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vars, ok := m.variables[scopeID]
	if !ok {
		return nil, false, nil
	}
	v, ok := vars[name]
	return v, ok, nil
}

func (m *Memory) ListVariables(ctx context.Context, scopeID string) ([]*model.Variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vars := m.variables[scopeID]
	out := make([]*model.Variable, 0, len(vars))
	for _, v := range vars {
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) DeleteVariables(ctx context.Context, scopeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.variables, scopeID)
	return nil
}

// --- EventSubscription ---

func (m *Memory) CreateSubscription(ctx context.Context, sub *model.EventSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.ID] = sub
	return nil
}

func (m *Memory) DeleteSubscriptionsByProcessInstance(ctx context.Context, processInstanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subscriptions {
		if s.ProcessInstanceID == processInstanceID {
			delete(m.subscriptions, id)
		}
	}
	return nil
}

func (m *Memory) DeleteSubscriptionsByExecution(ctx context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.subscriptions {
		if s.ExecutionID == executionID {
			delete(m.subscriptions, id)
		}
	}
	return nil
}

func (m *Memory) FindSubscriptionsByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.EventSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.EventSubscription
	for _, s := range m.subscriptions {
		if s.ProcessInstanceID == processInstanceID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) FindSubscriptionsByEventNameAndType(ctx context.Context, eventType model.EventType, eventName string) ([]*model.EventSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.EventSubscription
	for _, s := range m.subscriptions {
		if s.EventType == eventType && s.EventName == eventName {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) FindDueSubscriptions(ctx context.Context, asOf time.Time, limit int) ([]*model.EventSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.EventSubscription
	for _, s := range m.subscriptions {
		if s.EventType == model.EventTimer && !s.DueAt.After(asOf) {
			out = append(out, s)
		}
	}
	return paginate(out, limit, 0), nil
}

func (m *Memory) CountOpenSubscriptions(ctx context.Context) (map[model.EventType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.EventType]int)
	for _, s := range m.subscriptions {
		out[s.EventType]++
	}
	return out, nil
}

// --- TransactionScope ---

func (m *Memory) CreateTxScope(ctx context.Context, s *model.TransactionScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txScopes[s.ID] = s
	return nil
}

func (m *Memory) GetTxScope(ctx context.Context, id string) (*model.TransactionScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.txScopes[id]
	if !ok {
		return nil, database.NewNotFoundError("TransactionScope", id)
	}
	return s, nil
}

func (m *Memory) GetTxScopeByExecution(ctx context.Context, executionID string) (*model.TransactionScope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.txScopes {
		if s.ExecutionID == executionID {
			return s, nil
		}
	}
	return nil, database.NewNotFoundError("TransactionScope", executionID)
}

func (m *Memory) UpdateTxScope(ctx context.Context, s *model.TransactionScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txScopes[s.ID] = s
	return nil
}

func (m *Memory) AppendTxHandler(ctx context.Context, scopeID string, h model.CompensationHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.txScopes[scopeID]
	if !ok {
		return database.NewNotFoundError("TransactionScope", scopeID)
	}
	s.Handlers = append(s.Handlers, h)
	return nil
}

// --- LifecycleEvent / outbox ---

func (m *Memory) Append(ctx context.Context, e *model.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, e)
	return nil
}

// ClaimPending selects up to limit PENDING rows and marks them CLAIMED
// before returning them, mirroring infrastructure/postgres's SELECT ...
// FOR UPDATE SKIP LOCKED claim so a row is never handed out twice without
// an intervening ResetRetryable/MarkFailed/MarkPublished.
func (m *Memory) ClaimPending(ctx context.Context, limit int) ([]*model.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LifecycleEvent
	for _, e := range m.outbox {
		if e.Status == model.OutboxPending {
			e.Status = model.OutboxClaimed
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.outbox {
		if e.ID == id {
			e.Status = model.OutboxPublished
			e.PublishedTime = publishedAt
			return nil
		}
	}
	return database.NewNotFoundError("LifecycleEvent", id)
}

func (m *Memory) MarkFailed(ctx context.Context, id string, retryCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.outbox {
		if e.ID == id {
			e.Status = model.OutboxFailed
			e.RetryCount = retryCount
			return nil
		}
	}
	return database.NewNotFoundError("LifecycleEvent", id)
}

func (m *Memory) ResetRetryable(ctx context.Context, maxRetries int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.outbox {
		if e.Status == model.OutboxFailed && e.RetryCount < maxRetries {
			e.Status = model.OutboxPending
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeadLettered(ctx context.Context, limit int) ([]*model.LifecycleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LifecycleEvent
	for _, e := range m.outbox {
		if e.Status == model.OutboxFailed {
			out = append(out, e)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*model.LifecycleEvent
	n := 0
	for _, e := range m.outbox {
		if e.Status == model.OutboxPublished && e.PublishedTime.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.outbox = kept
	return n, nil
}

func (m *Memory) CountPending(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.outbox {
		if e.Status == model.OutboxPending {
			n++
		}
	}
	return n, nil
}

// --- History (read projection, reuses instance/execution/task storage) ---

func (m *Memory) ActivitiesByInstance(ctx context.Context, processInstanceID string) ([]HistoryActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []HistoryActivity
	for _, e := range m.executions {
		if e.ProcessInstanceID == processInstanceID {
			out = append(out, HistoryActivity{
				ProcessInstanceID: e.ProcessInstanceID,
				ExecutionID:       e.ID,
				ElementID:         e.ElementID,
				StartTime:         e.CreatedAt,
				EndTime:           e.UpdatedAt,
			})
		}
	}
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// --- Store adapters ---
//
// Each adapter embeds *Memory and exposes the exact method set its target
// Repository interface declares, delegating to Memory's uniquely-named
// methods. This is what lets one backing store satisfy several interfaces
// that independently happen to want a method called Create, Get, and so on.

// DefinitionStore adapts Memory to ProcessDefinitionRepository.
type DefinitionStore struct{ *Memory }

func NewDefinitionStore(m *Memory) DefinitionStore { return DefinitionStore{m} }

func (s DefinitionStore) Save(ctx context.Context, pd *model.ProcessDefinition) error {
	return s.Memory.SaveDefinition(ctx, pd)
}
func (s DefinitionStore) Get(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	return s.Memory.GetDefinition(ctx, id)
}
func (s DefinitionStore) GetLatestByKey(ctx context.Context, key string) (*model.ProcessDefinition, error) {
	return s.Memory.GetLatestDefinitionByKey(ctx, key)
}

// InstanceStore adapts Memory to ProcessInstanceRepository.
type InstanceStore struct{ *Memory }

func NewInstanceStore(m *Memory) InstanceStore { return InstanceStore{m} }

func (s InstanceStore) Create(ctx context.Context, pi *model.ProcessInstance) error {
	return s.Memory.CreateInstance(ctx, pi)
}
func (s InstanceStore) Get(ctx context.Context, id string) (*model.ProcessInstance, error) {
	return s.Memory.GetInstance(ctx, id)
}
func (s InstanceStore) Update(ctx context.Context, pi *model.ProcessInstance) error {
	return s.Memory.UpdateInstance(ctx, pi)
}
func (s InstanceStore) ListByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error) {
	return s.Memory.ListInstancesByDefinition(ctx, processDefinitionID, limit, offset)
}

// ExecutionStore adapts Memory to ExecutionRepository.
type ExecutionStore struct{ *Memory }

func NewExecutionStore(m *Memory) ExecutionStore { return ExecutionStore{m} }

func (s ExecutionStore) Create(ctx context.Context, e *model.Execution) error {
	return s.Memory.CreateExecution(ctx, e)
}
func (s ExecutionStore) Get(ctx context.Context, id string) (*model.Execution, error) {
	return s.Memory.GetExecution(ctx, id)
}
func (s ExecutionStore) Update(ctx context.Context, e *model.Execution) error {
	return s.Memory.UpdateExecution(ctx, e)
}
func (s ExecutionStore) Delete(ctx context.Context, id string) error {
	return s.Memory.DeleteExecution(ctx, id)
}
func (s ExecutionStore) ListByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.Execution, error) {
	return s.Memory.ListExecutionsByProcessInstance(ctx, processInstanceID)
}
func (s ExecutionStore) ListChildren(ctx context.Context, parentExecutionID string) ([]*model.Execution, error) {
	return s.Memory.ListExecutionChildren(ctx, parentExecutionID)
}

// TaskStore adapts Memory to TaskRepository.
type TaskStore struct{ *Memory }

func NewTaskStore(m *Memory) TaskStore { return TaskStore{m} }

func (s TaskStore) Create(ctx context.Context, t *model.Task) error {
	return s.Memory.CreateTask(ctx, t)
}
func (s TaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	return s.Memory.GetTask(ctx, id)
}
func (s TaskStore) Update(ctx context.Context, t *model.Task) error {
	return s.Memory.UpdateTask(ctx, t)
}
func (s TaskStore) ListByAssignee(ctx context.Context, assignee string) ([]*model.Task, error) {
	return s.Memory.ListTasksByAssignee(ctx, assignee)
}

// HistoryStore adapts Memory to HistoryRepository.
type HistoryStore struct{ *Memory }

func NewHistoryStore(m *Memory) HistoryStore { return HistoryStore{m} }

func (s HistoryStore) InstancesByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error) {
	return s.Memory.ListInstancesByDefinition(ctx, processDefinitionID, limit, offset)
}
func (s HistoryStore) ActivitiesByInstance(ctx context.Context, processInstanceID string) ([]HistoryActivity, error) {
	return s.Memory.ActivitiesByInstance(ctx, processInstanceID)
}
func (s HistoryStore) TasksByAssignee(ctx context.Context, assignee string) ([]*model.Task, error) {
	return s.Memory.ListTasksByAssignee(ctx, assignee)
}

// VarScopeStore adapts Memory to engine/scope.Repository.
type VarScopeStore struct{ *Memory }

func NewVarScopeStore(m *Memory) VarScopeStore { return VarScopeStore{m} }

func (s VarScopeStore) CreateScope(ctx context.Context, sc *model.VariableScope) error {
	return s.Memory.CreateVarScope(ctx, sc)
}
func (s VarScopeStore) GetScope(ctx context.Context, id string) (*model.VariableScope, error) {
	return s.Memory.GetVarScope(ctx, id)
}
func (s VarScopeStore) ChildrenOf(ctx context.Context, parentScopeID string) ([]*model.VariableScope, error) {
	return s.Memory.VarScopeChildren(ctx, parentScopeID)
}
func (s VarScopeStore) DeleteScope(ctx context.Context, id string) error {
	return s.Memory.DeleteVarScope(ctx, id)
}
func (s VarScopeStore) SetVariable(ctx context.Context, v *model.Variable) error {
	return s.Memory.SetVariable(ctx, v)
}
func (s VarScopeStore) GetVariable(ctx context.Context, scopeID, name string) (*model.Variable, bool, error) {
	return s.Memory.GetVariable(ctx, scopeID, name)
}
func (s VarScopeStore) ListVariables(ctx context.Context, scopeID string) ([]*model.Variable, error) {
	return s.Memory.ListVariables(ctx, scopeID)
}
func (s VarScopeStore) DeleteVariables(ctx context.Context, scopeID string) error {
	return s.Memory.DeleteVariables(ctx, scopeID)
}

// SubscriptionStore adapts Memory to engine/subscription.Repository.
type SubscriptionStore struct{ *Memory }

func NewSubscriptionStore(m *Memory) SubscriptionStore { return SubscriptionStore{m} }

func (s SubscriptionStore) Create(ctx context.Context, sub *model.EventSubscription) error {
	return s.Memory.CreateSubscription(ctx, sub)
}
func (s SubscriptionStore) DeleteByProcessInstance(ctx context.Context, processInstanceID string) error {
	return s.Memory.DeleteSubscriptionsByProcessInstance(ctx, processInstanceID)
}
func (s SubscriptionStore) DeleteByExecution(ctx context.Context, executionID string) error {
	return s.Memory.DeleteSubscriptionsByExecution(ctx, executionID)
}
func (s SubscriptionStore) FindByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.EventSubscription, error) {
	return s.Memory.FindSubscriptionsByProcessInstance(ctx, processInstanceID)
}
func (s SubscriptionStore) FindByEventNameAndType(ctx context.Context, eventType model.EventType, eventName string) ([]*model.EventSubscription, error) {
	return s.Memory.FindSubscriptionsByEventNameAndType(ctx, eventType, eventName)
}
func (s SubscriptionStore) FindDue(ctx context.Context, asOf time.Time, limit int) ([]*model.EventSubscription, error) {
	return s.Memory.FindDueSubscriptions(ctx, asOf, limit)
}
func (s SubscriptionStore) CountOpen(ctx context.Context) (map[model.EventType]int, error) {
	return s.Memory.CountOpenSubscriptions(ctx)
}

// TxScopeStore adapts Memory to engine/compensation.Repository.
type TxScopeStore struct{ *Memory }

func NewTxScopeStore(m *Memory) TxScopeStore { return TxScopeStore{m} }

func (s TxScopeStore) CreateScope(ctx context.Context, sc *model.TransactionScope) error {
	return s.Memory.CreateTxScope(ctx, sc)
}
func (s TxScopeStore) GetScope(ctx context.Context, id string) (*model.TransactionScope, error) {
	return s.Memory.GetTxScope(ctx, id)
}
func (s TxScopeStore) GetScopeByExecution(ctx context.Context, executionID string) (*model.TransactionScope, error) {
	return s.Memory.GetTxScopeByExecution(ctx, executionID)
}
func (s TxScopeStore) UpdateScope(ctx context.Context, sc *model.TransactionScope) error {
	return s.Memory.UpdateTxScope(ctx, sc)
}
func (s TxScopeStore) AppendHandler(ctx context.Context, scopeID string, h model.CompensationHandler) error {
	return s.Memory.AppendTxHandler(ctx, scopeID, h)
}

// OutboxStore adapts Memory to engine/outbox.Repository. Memory's outbox
// methods already match that interface's names one-to-one, so this adapter
// adds no renaming, only the distinct type identity callers wire against.
type OutboxStore struct{ *Memory }

func NewOutboxStore(m *Memory) OutboxStore { return OutboxStore{m} }
