package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newArchive(t *testing.T) *ResultArchive {
	t.Helper()
	archive, err := NewResultArchive(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func TestArchive_StoreAndList(t *testing.T) {
	archive := newArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.Store(ctx, "collection_result", map[string]string{"target_id": "t-1"}))
	require.NoError(t, archive.Store(ctx, "collection_result", map[string]string{"target_id": "t-2"}))
	require.NoError(t, archive.Store(ctx, "task_output", map[string]string{"task_id": "a-1"}))

	results, err := archive.List(ctx, "collection_result", 0, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, record := range results {
		require.Equal(t, "collection_result", record.Kind)
		require.NotEmpty(t, record.ID)
		require.NotEmpty(t, record.Payload)
		require.False(t, record.CreatedAt.IsZero())
	}

	all, err := archive.List(ctx, "", 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestArchive_ListPagination(t *testing.T) {
	archive := newArchive(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, archive.Store(ctx, "task_output", map[string]int{"n": i}))
	}

	page, err := archive.List(ctx, "task_output", 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)

	page, err = archive.List(ctx, "task_output", 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
}

func TestArchive_Count(t *testing.T) {
	archive := newArchive(t)
	ctx := context.Background()

	count, err := archive.Count(ctx, "")
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, archive.Store(ctx, "alert", map[string]string{"message": "hi"}))
	require.NoError(t, archive.Store(ctx, "alert", map[string]string{"message": "ho"}))
	require.NoError(t, archive.Store(ctx, "task_output", nil))

	count, err = archive.Count(ctx, "alert")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = archive.Count(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestArchive_DeleteBefore(t *testing.T) {
	archive := newArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.Store(ctx, "task_output", map[string]string{"task_id": "old"}))
	cutoff := time.Now().Add(time.Second)

	require.NoError(t, archive.DeleteBefore(ctx, cutoff))

	count, err := archive.Count(ctx, "")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestArchive_UnmarshalablePayload(t *testing.T) {
	archive := newArchive(t)

	err := archive.Store(context.Background(), "bad", make(chan int))
	require.Error(t, err)
}
