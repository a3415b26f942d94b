package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileJobStoreSaveLoadListDelete(t *testing.T) {
	store := NewFileJobStore(t.TempDir())
	ctx := context.Background()

	task := ScheduledTask{TaskID: "t1", Name: "ping", NextRun: time.Now().UTC(), Recurrence: RecurrenceDaily, Enabled: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Save(ctx, task))

	got, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "ping", got.Name)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, store.Delete(ctx, "t1"))
	_, err = store.Load(ctx, "t1")
	require.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestFileJobStoreListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileJobStore(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, ScheduledTask{TaskID: "good", Name: "ok", CreatedAt: time.Now().UTC()}))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
