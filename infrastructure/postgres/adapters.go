package postgres

import (
	"context"
	"time"

	"github.com/r3e-network/flowlayer/engine/model"
	"github.com/r3e-network/flowlayer/engine/repository"
)

// The adapter types below give Store's uniquely-named methods the exact
// method names each package's narrow Repository interface expects — the
// same Store-adapter shape engine/repository/memory.go uses, so callers can
// swap Memory for Store without touching the scheduler or managers.

type DefinitionStore struct{ *Store }

func NewDefinitionStore(s *Store) DefinitionStore { return DefinitionStore{s} }

func (a DefinitionStore) Save(ctx context.Context, pd *model.ProcessDefinition) error {
	return a.Store.SaveDefinition(ctx, pd)
}
func (a DefinitionStore) Get(ctx context.Context, id string) (*model.ProcessDefinition, error) {
	return a.Store.GetDefinition(ctx, id)
}
func (a DefinitionStore) GetLatestByKey(ctx context.Context, key string) (*model.ProcessDefinition, error) {
	return a.Store.GetLatestDefinitionByKey(ctx, key)
}

type InstanceStore struct{ *Store }

func NewInstanceStore(s *Store) InstanceStore { return InstanceStore{s} }

func (a InstanceStore) Create(ctx context.Context, pi *model.ProcessInstance) error {
	return a.Store.CreateInstance(ctx, pi)
}
func (a InstanceStore) Get(ctx context.Context, id string) (*model.ProcessInstance, error) {
	return a.Store.GetInstance(ctx, id)
}
func (a InstanceStore) Update(ctx context.Context, pi *model.ProcessInstance) error {
	return a.Store.UpdateInstance(ctx, pi)
}
func (a InstanceStore) ListByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error) {
	return a.Store.ListInstancesByDefinition(ctx, processDefinitionID, limit, offset)
}

type ExecutionStore struct{ *Store }

func NewExecutionStore(s *Store) ExecutionStore { return ExecutionStore{s} }

func (a ExecutionStore) Create(ctx context.Context, e *model.Execution) error {
	return a.Store.CreateExecution(ctx, e)
}
func (a ExecutionStore) Get(ctx context.Context, id string) (*model.Execution, error) {
	return a.Store.GetExecution(ctx, id)
}
func (a ExecutionStore) Update(ctx context.Context, e *model.Execution) error {
	return a.Store.UpdateExecution(ctx, e)
}
func (a ExecutionStore) Delete(ctx context.Context, id string) error {
	return a.Store.DeleteExecution(ctx, id)
}
func (a ExecutionStore) ListByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.Execution, error) {
	return a.Store.ListExecutionsByProcessInstance(ctx, processInstanceID)
}
func (a ExecutionStore) ListChildren(ctx context.Context, parentExecutionID string) ([]*model.Execution, error) {
	return a.Store.ListExecutionChildren(ctx, parentExecutionID)
}

type TaskStore struct{ *Store }

func NewTaskStore(s *Store) TaskStore { return TaskStore{s} }

func (a TaskStore) Create(ctx context.Context, t *model.Task) error { return a.Store.CreateTask(ctx, t) }
func (a TaskStore) Get(ctx context.Context, id string) (*model.Task, error) {
	return a.Store.GetTask(ctx, id)
}
func (a TaskStore) Update(ctx context.Context, t *model.Task) error { return a.Store.UpdateTask(ctx, t) }
func (a TaskStore) ListByAssignee(ctx context.Context, assignee string) ([]*model.Task, error) {
	return a.Store.ListTasksByAssignee(ctx, assignee)
}

type HistoryStore struct{ *Store }

func NewHistoryStore(s *Store) HistoryStore { return HistoryStore{s} }

func (a HistoryStore) InstancesByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error) {
	return a.Store.ListInstancesByDefinition(ctx, processDefinitionID, limit, offset)
}
func (a HistoryStore) ActivitiesByInstance(ctx context.Context, processInstanceID string) ([]repository.HistoryActivity, error) {
	return a.Store.ActivitiesByInstance(ctx, processInstanceID)
}
func (a HistoryStore) TasksByAssignee(ctx context.Context, assignee string) ([]*model.Task, error) {
	return a.Store.ListTasksByAssignee(ctx, assignee)
}

type VarScopeStore struct{ *Store }

func NewVarScopeStore(s *Store) VarScopeStore { return VarScopeStore{s} }

func (a VarScopeStore) CreateScope(ctx context.Context, sc *model.VariableScope) error {
	return a.Store.CreateVarScope(ctx, sc)
}
func (a VarScopeStore) GetScope(ctx context.Context, id string) (*model.VariableScope, error) {
	return a.Store.GetVarScope(ctx, id)
}
func (a VarScopeStore) ChildrenOf(ctx context.Context, parentScopeID string) ([]*model.VariableScope, error) {
	return a.Store.VarScopeChildren(ctx, parentScopeID)
}
func (a VarScopeStore) DeleteScope(ctx context.Context, id string) error {
	return a.Store.DeleteVarScope(ctx, id)
}
func (a VarScopeStore) SetVariable(ctx context.Context, v *model.Variable) error {
	return a.Store.SetVariable(ctx, v)
}
func (a VarScopeStore) GetVariable(ctx context.Context, scopeID, name string) (*model.Variable, bool, error) {
	return a.Store.GetVariable(ctx, scopeID, name)
}
func (a VarScopeStore) ListVariables(ctx context.Context, scopeID string) ([]*model.Variable, error) {
	return a.Store.ListVariables(ctx, scopeID)
}
func (a VarScopeStore) DeleteVariables(ctx context.Context, scopeID string) error {
	return a.Store.DeleteVariables(ctx, scopeID)
}

type SubscriptionStore struct{ *Store }

func NewSubscriptionStore(s *Store) SubscriptionStore { return SubscriptionStore{s} }

func (a SubscriptionStore) Create(ctx context.Context, sub *model.EventSubscription) error {
	return a.Store.CreateSubscription(ctx, sub)
}
func (a SubscriptionStore) DeleteByProcessInstance(ctx context.Context, processInstanceID string) error {
	return a.Store.DeleteSubscriptionsByProcessInstance(ctx, processInstanceID)
}
func (a SubscriptionStore) DeleteByExecution(ctx context.Context, executionID string) error {
	return a.Store.DeleteSubscriptionsByExecution(ctx, executionID)
}
func (a SubscriptionStore) FindByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.EventSubscription, error) {
	return a.Store.FindSubscriptionsByProcessInstance(ctx, processInstanceID)
}
func (a SubscriptionStore) FindByEventNameAndType(ctx context.Context, eventType model.EventType, eventName string) ([]*model.EventSubscription, error) {
	return a.Store.FindSubscriptionsByEventNameAndType(ctx, eventType, eventName)
}
func (a SubscriptionStore) FindDue(ctx context.Context, asOf time.Time, limit int) ([]*model.EventSubscription, error) {
	return a.Store.FindDueSubscriptions(ctx, asOf, limit)
}
func (a SubscriptionStore) CountOpen(ctx context.Context) (map[model.EventType]int, error) {
	return a.Store.CountOpenSubscriptions(ctx)
}

type TxScopeStore struct{ *Store }

func NewTxScopeStore(s *Store) TxScopeStore { return TxScopeStore{s} }

func (a TxScopeStore) CreateScope(ctx context.Context, sc *model.TransactionScope) error {
	return a.Store.CreateTxScope(ctx, sc)
}
func (a TxScopeStore) GetScope(ctx context.Context, id string) (*model.TransactionScope, error) {
	return a.Store.GetTxScope(ctx, id)
}
func (a TxScopeStore) GetScopeByExecution(ctx context.Context, executionID string) (*model.TransactionScope, error) {
	return a.Store.GetTxScopeByExecution(ctx, executionID)
}
func (a TxScopeStore) UpdateScope(ctx context.Context, sc *model.TransactionScope) error {
	return a.Store.UpdateTxScope(ctx, sc)
}
func (a TxScopeStore) AppendHandler(ctx context.Context, scopeID string, h model.CompensationHandler) error {
	return a.Store.AppendTxHandler(ctx, scopeID, h)
}

// OutboxStore adapts Store to engine/outbox.Repository. Store's outbox
// methods already match that interface's names one-to-one.
type OutboxStore struct{ *Store }

func NewOutboxStore(s *Store) OutboxStore { return OutboxStore{s} }
