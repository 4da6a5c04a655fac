package postgres

import (
	"github.com/r3e-network/flowlayer/engine/compensation"
	"github.com/r3e-network/flowlayer/engine/outbox"
	"github.com/r3e-network/flowlayer/engine/repository"
	"github.com/r3e-network/flowlayer/engine/scope"
	"github.com/r3e-network/flowlayer/engine/subscription"
)

// These assertions are the compile-time half of the adapter contract: each
// Store-wrapping type must present the exact method names its owning
// package's narrow Repository interface expects, the same way
// engine/repository/memory.go's adapters do for the in-memory backend.
var (
	_ repository.ProcessDefinitionRepository = DefinitionStore{}
	_ repository.ProcessInstanceRepository   = InstanceStore{}
	_ repository.ExecutionRepository         = ExecutionStore{}
	_ repository.TaskRepository              = TaskStore{}
	_ repository.HistoryRepository           = HistoryStore{}
	_ scope.Repository                       = VarScopeStore{}
	_ subscription.Repository                = SubscriptionStore{}
	_ compensation.Repository                = TxScopeStore{}
	_ outbox.Repository                      = OutboxStore{}
)
