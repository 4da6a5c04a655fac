package scope_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/repository"
	"github.com/r3e-network/flowlayer/engine/scope"
)

func newManager() *scope.Manager {
	mem := repository.NewMemory()
	return scope.New(repository.NewVarScopeStore(mem))
}

func TestGetVariable_ChildOverridesParent(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	root, err := m.CreateScope(ctx, "pi-1", "exec-root", "")
	require.NoError(t, err)
	child, err := m.CreateScope(ctx, "pi-1", "exec-child", root.ID)
	require.NoError(t, err)

	require.NoError(t, m.SetVariable(ctx, root.ID, "x", "root-value"))
	require.NoError(t, m.SetVariable(ctx, child.ID, "x", "child-value"))

	v, ok, err := m.GetVariable(ctx, child.ID, "x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "child-value", v)

	v, ok, err = m.GetVariable(ctx, root.ID, "x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "root-value", v)
}

func TestGetVariable_ResolvesFromAncestorWhenNotLocal(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	root, err := m.CreateScope(ctx, "pi-1", "exec-root", "")
	require.NoError(t, err)
	child, err := m.CreateScope(ctx, "pi-1", "exec-child", root.ID)
	require.NoError(t, err)

	require.NoError(t, m.SetVariable(ctx, root.ID, "onlyOnRoot", 42))

	v, ok, err := m.GetVariable(ctx, child.ID, "onlyOnRoot")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42, v)

	_, ok, err = m.GetVariable(ctx, child.ID, "neverSet")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetVariables_MergesAncestryRootToLeaf(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	root, err := m.CreateScope(ctx, "pi-1", "exec-root", "")
	require.NoError(t, err)
	mid, err := m.CreateScope(ctx, "pi-1", "exec-mid", root.ID)
	require.NoError(t, err)
	leaf, err := m.CreateScope(ctx, "pi-1", "exec-leaf", mid.ID)
	require.NoError(t, err)

	require.NoError(t, m.SetVariable(ctx, root.ID, "a", "root"))
	require.NoError(t, m.SetVariable(ctx, root.ID, "shared", "root"))
	require.NoError(t, m.SetVariable(ctx, mid.ID, "shared", "mid"))
	require.NoError(t, m.SetVariable(ctx, leaf.ID, "b", "leaf"))

	merged, err := m.GetVariables(ctx, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, "root", merged["a"])
	require.Equal(t, "leaf", merged["b"])
	require.Equal(t, "mid", merged["shared"])
}

func TestCreateScope_RejectsMissingParent(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	_, err := m.CreateScope(ctx, "pi-1", "exec-1", "does-not-exist")
	require.Error(t, err)
}

func TestDestroyScope_CascadesToDescendantsAndVariables(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	root, err := m.CreateScope(ctx, "pi-1", "exec-root", "")
	require.NoError(t, err)
	child, err := m.CreateScope(ctx, "pi-1", "exec-child", root.ID)
	require.NoError(t, err)
	require.NoError(t, m.SetVariable(ctx, child.ID, "x", 1))

	require.NoError(t, m.DestroyScope(ctx, root.ID))

	_, _, err = m.GetVariable(ctx, child.ID, "x")
	require.Error(t, err, "the child scope itself should be gone")
}

func TestDestroyScope_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	root, err := m.CreateScope(ctx, "pi-1", "exec-root", "")
	require.NoError(t, err)
	require.NoError(t, m.DestroyScope(ctx, root.ID))
	require.NoError(t, m.DestroyScope(ctx, root.ID), "destroying an already-gone scope is a no-op")
}

func TestCopyVariables_SnapshotsMergedMapIntoDestination(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	root, err := m.CreateScope(ctx, "pi-1", "exec-root", "")
	require.NoError(t, err)
	require.NoError(t, m.SetVariable(ctx, root.ID, "x", "v"))

	dst, err := m.CreateScope(ctx, "pi-1", "exec-sub", "")
	require.NoError(t, err)

	require.NoError(t, m.CopyVariables(ctx, root.ID, dst.ID))

	v, ok, err := m.GetVariable(ctx, dst.ID, "x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}
