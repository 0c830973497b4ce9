package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alexjbarnes/chatsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- PlanPush ---

func TestPlanPush_GarbageCollectsOrphans(t *testing.T) {
	required := NewSet("a", "c")
	plan := PlanPush(required, NewSet("a", "c"), NewSet("a", "b", "c"))

	assert.Empty(t, plan.Upload)
	assert.Equal(t, []string{"b"}, plan.Delete)
	assert.Empty(t, plan.Unavailable)
}

func TestPlanPush_UploadsOnlyWhatRemoteLacks(t *testing.T) {
	plan := PlanPush(NewSet("a", "b", "c"), NewSet("a", "b", "c"), NewSet("b"))
	assert.Equal(t, []string{"a", "c"}, plan.Upload)
	assert.Empty(t, plan.Delete)
}

func TestPlanPush_KeepsReferencedRemoteWithoutLocalCopy(t *testing.T) {
	plan := PlanPush(NewSet("a"), NewSet(), NewSet("a"))
	assert.Empty(t, plan.Upload)
	assert.Empty(t, plan.Delete)
	assert.Empty(t, plan.Unavailable)
}

func TestPlanPush_ReportsUnavailable(t *testing.T) {
	plan := PlanPush(NewSet("a", "z"), NewSet("a"), NewSet())
	assert.Equal(t, []string{"a"}, plan.Upload)
	assert.Equal(t, []string{"z"}, plan.Unavailable)
}

func TestPlanPush_LocalOrphanOnRemoteIsKept(t *testing.T) {
	// Held locally but unreferenced: left for a later push to reference.
	plan := PlanPush(NewSet(), NewSet("x"), NewSet("x"))
	assert.Empty(t, plan.Delete)
}

func TestPlanPush_Empty(t *testing.T) {
	plan := PlanPush(NewSet(), NewSet(), NewSet())
	assert.Equal(t, PushPlan{}, plan)
}

// --- PlanPull ---

func TestPlanPull(t *testing.T) {
	plan := PlanPull(NewSet("a", "b", "c", "d"), NewSet("a"), NewSet("c"))
	assert.Equal(t, []string{"b", "d"}, plan.Download)
}

func TestPlanPull_NothingToDo(t *testing.T) {
	plan := PlanPull(NewSet("a"), NewSet("a"), NewSet())
	assert.Empty(t, plan.Download)
}

// --- Set ---

func TestKeysOf(t *testing.T) {
	s := KeysOf(map[string][]byte{"b": nil, "a": nil})
	assert.Equal(t, []string{"a", "b"}, s.Sorted())
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))
}

// --- Fetcher ---

func TestFetcher_SequentialAndTolerant(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := remote.NewMockStore(ctrl)
	ctx := context.Background()

	gomock.InOrder(
		src.EXPECT().DownloadAsset(ctx, "a").Return([]byte("A"), nil),
		src.EXPECT().DownloadAsset(ctx, "b").Return(nil, errors.New("timeout")),
		src.EXPECT().DownloadAsset(ctx, "c").Return(nil, nil),
		src.EXPECT().DownloadAsset(ctx, "d").Return([]byte("D"), nil),
	)

	var attempts []string
	f := NewFetcher(src, quietLogger)
	f.OnFetched = func(id string, _ int, _ error) { attempts = append(attempts, id) }

	fetched, missing, err := f.Fetch(ctx, []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("A"), "d": []byte("D")}, fetched)
	assert.Equal(t, []string{"b", "c"}, missing)
	assert.Equal(t, []string{"a", "b", "c", "d"}, attempts)
}

func TestFetcher_StopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := remote.NewMockStore(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	src.EXPECT().DownloadAsset(ctx, "a").DoAndReturn(func(context.Context, string) ([]byte, error) {
		cancel()
		return []byte("A"), nil
	})

	fetched, missing, err := NewFetcher(src, quietLogger).Fetch(ctx, []string{"a", "b", "c"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fetched, 1)
	assert.Equal(t, []string{"b", "c"}, missing)
}
