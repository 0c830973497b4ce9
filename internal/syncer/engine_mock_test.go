package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/models"
	"github.com/alexjbarnes/chatsync/internal/remote"
	"github.com/alexjbarnes/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMockDevice(t *testing.T) (*device, *remote.MockStore) {
	t.Helper()

	local, err := store.OpenAt(filepath.Join(t.TempDir(), "mock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	rs := remote.NewMockStore(gomock.NewController(t))

	return newDeviceWith(t, local, rs, nil), rs
}

func TestPush_UploadsAssetsBeforeMetadata(t *testing.T) {
	d, rs := newMockDevice(t)
	anyArg := gomock.Any()

	require.NoError(t, d.local.PutMedia("media_new", []byte("png")))
	d.edit(t, chatWithImage("c1", "Cats", "media_new"))

	gomock.InOrder(
		rs.EXPECT().UploadLockFile(anyArg, remote.OpPush).Return(nil),
		rs.EXPECT().DownloadMetadata(anyArg).Return(nil, nil),
		rs.EXPECT().EnsureAssetsContainerExists(anyArg).Return(nil),
		rs.EXPECT().ListAssets(anyArg).Return(nil, nil),
		rs.EXPECT().UploadAssetsInBatches(anyArg, []remote.Asset{{ID: "media_new", Data: []byte("png")}}, anyArg).
			DoAndReturn(func(_ context.Context, assets []remote.Asset, progress remote.ProgressFunc) error {
				progress(len(assets), len(assets))
				return nil
			}),
		rs.EXPECT().UploadMetadata(anyArg, anyArg).Return(nil),
		rs.EXPECT().DeleteLockFile(anyArg).Return(nil),
	)

	require.NoError(t, d.engine.Push(context.Background()))
	assert.Contains(t, d.reporter.progress, "uploading assets 1/1")
}

func TestPush_DeletesOnlyOrphans(t *testing.T) {
	d, rs := newMockDevice(t)
	anyArg := gomock.Any()

	require.NoError(t, d.local.NamedAssets().Put(models.NamedAsset{ID: "a", Name: "a", Data: []byte("A")}))
	require.NoError(t, d.local.NamedAssets().Put(models.NamedAsset{ID: "c", Name: "c", Data: []byte("C")}))

	require.True(t, d.state.BeginSync("pull"))
	require.NoError(t, d.state.Commit("tok-1"))
	d.state.EndSync(nil)
	require.NoError(t, d.state.MarkDirty())

	gomock.InOrder(
		rs.EXPECT().UploadLockFile(anyArg, remote.OpPush).Return(nil),
		rs.EXPECT().DownloadMetadata(anyArg).Return([]byte(`{"version":1,"syncId":"tok-1"}`), nil),
		rs.EXPECT().EnsureAssetsContainerExists(anyArg).Return(nil),
		rs.EXPECT().ListAssets(anyArg).Return([]string{"a", "b", "c"}, nil),
		rs.EXPECT().DeleteAssets(anyArg, []string{"b"}).Return(nil),
		rs.EXPECT().UploadMetadata(anyArg, anyArg).Return(nil),
		rs.EXPECT().DeleteLockFile(anyArg).Return(nil),
	)

	require.NoError(t, d.engine.Push(context.Background()))
	assert.False(t, d.state.Dirty())
}

func TestPush_MetadataFailureStillReleasesLock(t *testing.T) {
	d, rs := newMockDevice(t)
	anyArg := gomock.Any()
	d.edit(t, models.Chat{ID: "c1"})

	gomock.InOrder(
		rs.EXPECT().UploadLockFile(anyArg, remote.OpPush).Return(nil),
		rs.EXPECT().DownloadMetadata(anyArg).Return(nil, nil),
		rs.EXPECT().EnsureAssetsContainerExists(anyArg).Return(nil),
		rs.EXPECT().ListAssets(anyArg).Return(nil, nil),
		rs.EXPECT().UploadMetadata(anyArg, anyArg).Return(errors.New("503")),
		rs.EXPECT().DeleteLockFile(anyArg).Return(nil),
	)

	err := d.engine.Push(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRemote))
	assert.True(t, d.state.Dirty())
	assert.Empty(t, d.state.LastSyncID())
}

func TestPush_LockFailureSkipsEverything(t *testing.T) {
	d, rs := newMockDevice(t)
	d.edit(t, models.Chat{ID: "c1"})

	rs.EXPECT().UploadLockFile(gomock.Any(), remote.OpPush).Return(errors.New("offline"))

	err := d.engine.Push(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrRemote))
	assert.True(t, d.state.Dirty())
}

func TestPush_WhileSyncingIsNoop(t *testing.T) {
	d, _ := newMockDevice(t)
	d.edit(t, models.Chat{ID: "c1"})

	require.True(t, d.state.BeginSync("pull"))
	require.NoError(t, d.engine.Push(context.Background()))
}

func TestStartup_CheckLockFailure(t *testing.T) {
	d, rs := newMockDevice(t)
	rs.EXPECT().CheckLockFile(gomock.Any()).Return(nil, errors.New("dns"))

	err := d.engine.Startup(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrRemote))
	assert.NotNil(t, d.state.Snapshot().LastError)
}

func TestStartup_PushMarkerForcesDirty(t *testing.T) {
	d, rs := newMockDevice(t)
	anyArg := gomock.Any()

	gomock.InOrder(
		rs.EXPECT().CheckLockFile(anyArg).Return(&remote.LockMarker{Operation: remote.OpPush}, nil),
		rs.EXPECT().UploadLockFile(anyArg, remote.OpPush).Return(nil),
		rs.EXPECT().DownloadMetadata(anyArg).Return(nil, nil),
		rs.EXPECT().EnsureAssetsContainerExists(anyArg).Return(nil),
		rs.EXPECT().ListAssets(anyArg).Return(nil, nil),
		rs.EXPECT().UploadMetadata(anyArg, anyArg).Return(nil),
		rs.EXPECT().DeleteLockFile(anyArg).Return(nil),
	)

	require.NoError(t, d.engine.Startup(context.Background()))
	assert.NotEmpty(t, d.state.LastSyncID())
}
