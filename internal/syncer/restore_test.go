package syncer

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Export / Restore ---

func TestRestore_ReplacesLocalAndMarksDirty(t *testing.T) {
	root := t.TempDir()
	a := newDevice(t, root, "a")
	b := newDevice(t, root, "b")
	ctx := context.Background()

	require.NoError(t, a.local.PutMedia("media_cat", []byte("cat.png")))
	a.edit(t, chatWithImage("c1", "Cats", "media_cat"))

	exp, err := a.engine.Export()
	require.NoError(t, err)

	require.NoError(t, b.local.Chats().Put(models.Chat{ID: "old", Title: "gone"}))
	require.NoError(t, b.engine.Restore(exp.Document, exp.Assets))

	assert.Equal(t, a.entities(t), b.entities(t))
	assert.True(t, b.state.Dirty())
	assert.False(t, b.state.Syncing())

	require.NoError(t, b.engine.Push(ctx))
	assert.False(t, b.state.Dirty())
	assert.NotEmpty(t, remoteDoc(t, b))
}

func TestRestore_KeepsSyncBookkeeping(t *testing.T) {
	root := t.TempDir()
	a := newDevice(t, root, "a")
	ctx := context.Background()

	a.edit(t, models.Chat{ID: "c1", Title: "first"})
	require.NoError(t, a.engine.Push(ctx))
	token := a.state.LastSyncID()

	exp, err := a.engine.Export()
	require.NoError(t, err)
	require.NoError(t, a.engine.Restore(exp.Document, nil))

	raw, err := a.local.Setting("lastSyncId")
	require.NoError(t, err)
	assert.Equal(t, `"`+token+`"`, string(raw))
	assert.Equal(t, token, a.state.LastSyncID())
}

func TestRestore_AcceptsPublishedDocument(t *testing.T) {
	root := t.TempDir()
	a := newDevice(t, root, "a")
	b := newDevice(t, root, "b")

	a.edit(t, models.Chat{ID: "c1", Title: "published"})
	require.NoError(t, a.engine.Push(context.Background()))

	require.NoError(t, b.engine.Restore(remoteDoc(t, a), nil))
	assert.Equal(t, "published", b.chat(t, "c1").Title)
}

func TestRestore_MissingAssetsChangesNothing(t *testing.T) {
	root := t.TempDir()
	a := newDevice(t, root, "a")
	b := newDevice(t, root, "b")

	require.NoError(t, a.local.PutMedia("media_cat", []byte("cat.png")))
	a.edit(t, chatWithImage("c1", "Cats", "media_cat"))

	exp, err := a.engine.Export()
	require.NoError(t, err)

	require.NoError(t, b.local.Chats().Put(models.Chat{ID: "mine", Title: "keep me"}))
	before := b.entities(t)

	err = b.engine.Restore(exp.Document, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMissingAssets))
	assert.Equal(t, before, b.entities(t))
	assert.False(t, b.state.Dirty())
	require.Len(t, b.reporter.missing, 1)
	assert.NotNil(t, b.state.Snapshot().LastError)
}

func TestRestore_RefusedWhileSyncing(t *testing.T) {
	a := newDevice(t, t.TempDir(), "a")
	require.True(t, a.state.BeginSync("push"))

	err := a.engine.Restore([]byte(`{"version":1}`), nil)
	assert.ErrorIs(t, err, apperrors.ErrSyncInProgress)
}
