package lifecycle

import (
	"context"
	"testing"

	"github.com/newthinker/presetd/internal/autosave"
	"github.com/newthinker/presetd/internal/core"
	"github.com/newthinker/presetd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *store.MemoryStore, *countingRecorder) {
	t.Helper()
	st := store.NewMemoryStore()
	rec := newCountingRecorder()
	m := NewManager(st, Options{
		Recorder: rec,
		Autosave: autosave.Options{Clock: &fakeClock{}},
	})
	t.Cleanup(m.Close)
	return m, st, rec
}

func TestManager_OpenResumes(t *testing.T) {
	m, st, rec := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, ns, "a", emaSet(1)))
	require.NoError(t, st.Save(ctx, ns, "__2__a", emaSet(4).WithActive(true)))

	c, err := m.Open(ctx, ns)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())

	snap := c.Snapshot()
	assert.Equal(t, "__2__a", snap.ActivePresetName)
	assert.True(t, snap.Values.Equal(emaSet(4)))
	assert.Equal(t, 1, rec.session)

	got, err := m.Get(c.ID())
	require.NoError(t, err)
	assert.Same(t, c, got)
}

func TestManager_OneSessionPerNamespace(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	c, err := m.Open(ctx, ns)
	require.NoError(t, err)

	_, err = m.Open(ctx, ns)
	assert.ErrorIs(t, err, core.ErrNamespaceAlreadyInUse)

	require.NoError(t, m.CloseSession(c.ID()))
	_, err = m.Open(ctx, ns)
	assert.NoError(t, err)
}

func TestManager_OpenRejectsEmptyPath(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Open(context.Background(), " ")
	assert.ErrorIs(t, err, core.ErrInvalidName)
}

func TestManager_CloseSession(t *testing.T) {
	m, _, rec := newTestManager(t)
	c, err := m.Open(context.Background(), ns)
	require.NoError(t, err)

	require.NoError(t, m.CloseSession(c.ID()))
	assert.Equal(t, 0, rec.session)

	_, err = m.Get(c.ID())
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.ErrorIs(t, m.CloseSession(c.ID()), core.ErrSessionNotFound)
}

func TestManager_SessionsAndLiveBase(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, "strategies/rsi", "default", emaSet(1)))

	_, err := m.Open(ctx, "strategies/rsi")
	require.NoError(t, err)
	_, err = m.Open(ctx, ns)
	require.NoError(t, err)

	snaps := m.Sessions()
	require.Len(t, snaps, 2)
	assert.Equal(t, "strategies/ema", snaps[0].PresetPath)
	assert.Equal(t, "strategies/rsi", snaps[1].PresetPath)

	base, ok := m.LiveBase("strategies/rsi")
	assert.True(t, ok)
	assert.Equal(t, "default", base)

	_, ok = m.LiveBase(ns)
	assert.False(t, ok, "idle session owns no family")
	_, ok = m.LiveBase("strategies/none")
	assert.False(t, ok)
}
