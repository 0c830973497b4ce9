package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexjbarnes/chatsync/internal/codec"
	"github.com/alexjbarnes/chatsync/internal/config"
	"github.com/alexjbarnes/chatsync/internal/models"
	"github.com/alexjbarnes/chatsync/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testApp(t *testing.T, remoteDir, device string, policy syncer.Policy) *app {
	t.Helper()

	a, err := openApp(&config.Config{
		DataDir:         t.TempDir(),
		RemoteDir:       remoteDir,
		DeviceName:      device,
		UploadBatchSize: 2,
	}, quietLogger, policy, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return a
}

func writeLegacyLock(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sync.lock"), []byte("locked by v0"), 0o644))
}

func remoteChats(t *testing.T, a *app) []string {
	t.Helper()

	doc, err := a.remote.DownloadMetadata(context.Background())
	require.NoError(t, err)
	if doc == nil {
		return nil
	}

	meta, err := codec.Parse(doc)
	require.NoError(t, err)

	var ids []string
	for _, c := range meta.Chats {
		ids = append(ids, c.ID)
	}

	return ids
}

func assertNoLock(t *testing.T, root string) {
	t.Helper()
	_, err := os.Stat(filepath.Join(root, "sync.lock"))
	assert.True(t, os.IsNotExist(err), "lock marker left behind")
}

// --- syncCommand ---

func TestSyncCommand_UnrecognizedLockAnsweredPushForcesPush(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	other := testApp(t, root, "other", syncer.StaticPolicy{})
	require.NoError(t, other.store.Chats().Put(models.Chat{ID: "c1"}))
	require.NoError(t, other.state.MarkDirty())
	require.NoError(t, other.engine.Push(ctx))

	var prompt bytes.Buffer
	a := testApp(t, root, "laptop", newTerminalPolicy(strings.NewReader("push\n"), &prompt))
	require.NoError(t, a.store.Chats().Put(models.Chat{ID: "c2"}))
	writeLegacyLock(t, root)

	var out, errOut bytes.Buffer
	require.NoError(t, syncCommand(ctx, a, "push", false, &out, &errOut))

	assert.Contains(t, prompt.String(), "locked by v0")
	assert.Equal(t, []string{"c2"}, remoteChats(t, a))
	assertNoLock(t, root)
	assert.NotContains(t, errOut.String(), "nothing to publish")
	assert.Contains(t, out.String(), "connected: true")
	assert.False(t, a.state.Dirty())
}

func TestSyncCommand_UnrecognizedLockCancelChangesNothing(t *testing.T) {
	root := t.TempDir()

	var prompt bytes.Buffer
	a := testApp(t, root, "laptop", newTerminalPolicy(strings.NewReader("cancel\n"), &prompt))
	require.NoError(t, a.store.Chats().Put(models.Chat{ID: "c1"}))
	require.NoError(t, a.state.MarkDirty())
	writeLegacyLock(t, root)

	var out, errOut bytes.Buffer
	require.NoError(t, syncCommand(context.Background(), a, "push", false, &out, &errOut))

	assert.Contains(t, errOut.String(), "lock marker removed")
	assert.Empty(t, remoteChats(t, a))
	assertNoLock(t, root)
	assert.True(t, a.state.Dirty())
}

func TestSyncCommand_CleanPushHasNothingToPublish(t *testing.T) {
	a := testApp(t, t.TempDir(), "laptop", syncer.StaticPolicy{})

	var out, errOut bytes.Buffer
	require.NoError(t, syncCommand(context.Background(), a, "push", false, &out, &errOut))

	assert.Contains(t, errOut.String(), "nothing to publish")
	assert.Empty(t, out.String())
}

func TestSyncCommand_PullReportsConnectedState(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	other := testApp(t, root, "other", syncer.StaticPolicy{})
	require.NoError(t, other.store.Chats().Put(models.Chat{ID: "c1"}))
	require.NoError(t, other.state.MarkDirty())
	require.NoError(t, other.engine.Push(ctx))

	a := testApp(t, root, "laptop", syncer.StaticPolicy{})

	var out, errOut bytes.Buffer
	require.NoError(t, syncCommand(ctx, a, "pull", false, &out, &errOut))

	c, err := a.store.Chats().Get("c1")
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Contains(t, out.String(), "connected: true")
	assert.Contains(t, out.String(), "status: idle")
}
