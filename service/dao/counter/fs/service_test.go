package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/dao"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	srv, err := New(afs.New(), dir)
	require.NoError(t, err)

	_, err = srv.Load(ctx, "job-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	assert.ErrorIs(t, srv.Save(ctx, &model.Counter{JobKey: "../x"}), dao.ErrInvalidID)
	assert.ErrorIs(t, srv.Save(ctx, nil), dao.ErrNilEntity)

	require.NoError(t, srv.Save(ctx, &model.Counter{JobKey: "job-1", Next: 4}))
	require.NoError(t, srv.Save(ctx, &model.Counter{JobKey: "job-2", Next: 1}))
	_, err = os.Stat(filepath.Join(dir, "job-1.json"))
	require.NoError(t, err, "counter must be stored under the base path")

	reopened, err := New(afs.New(), dir)
	require.NoError(t, err)
	counter, err := reopened.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 4, counter.Next)

	counters, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Len(t, counters, 2)

	assert.NoError(t, reopened.Delete(ctx, "job-1"))
	assert.ErrorIs(t, reopened.Delete(ctx, "job-1"), dao.ErrNotFound)
}

func TestService_URLBase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	srv, err := New(afs.New(), "file://localhost"+dir)
	require.NoError(t, err)
	require.NoError(t, srv.Save(ctx, &model.Counter{JobKey: "job-1", Next: 2}))

	_, err = os.Stat(filepath.Join(dir, "job-1.json"))
	require.NoError(t, err)
	counters, err := srv.List(ctx)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, 2, counters[0].Next)
}
