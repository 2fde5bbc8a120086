package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleryfs/galleryfs/internal/provider/objectstore"
	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

type fakeStore struct {
	albums   []types.Album
	repairs  map[string]*types.RepairReport
	failures map[string]error
	orphans  *objectstore.OrphanReport

	rebuildCalls int
	repairCalls  []string
}

func (f *fakeStore) ListAlbums(_ context.Context, page int) ([]types.Album, error) {
	start := page * types.AlbumPageSize
	if start >= len(f.albums) {
		return []types.Album{}, nil
	}
	end := start + types.AlbumPageSize
	if end > len(f.albums) {
		end = len(f.albums)
	}
	return f.albums[start:end], nil
}

func (f *fakeStore) RebuildIndex(context.Context) (int, error) {
	f.rebuildCalls++
	return len(f.albums), nil
}

func (f *fakeStore) RepairAlbum(_ context.Context, albumID string) (*types.RepairReport, error) {
	f.repairCalls = append(f.repairCalls, albumID)
	if err, ok := f.failures[albumID]; ok {
		return nil, err
	}
	if rr, ok := f.repairs[albumID]; ok {
		return rr, nil
	}
	return &types.RepairReport{AlbumID: albumID, Errors: []string{}}, nil
}

func (f *fakeStore) FindOrphans(context.Context) (*objectstore.OrphanReport, error) {
	if f.orphans != nil {
		return f.orphans, nil
	}
	return &objectstore.OrphanReport{
		OrphanedBinaries: []string{},
		DanglingMetadata: []string{},
	}, nil
}

func newTestRunner(t *testing.T, store *fakeStore) *Runner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := New(store, logger)
	require.NoError(t, err)
	return r
}

func albums(ids ...string) []types.Album {
	out := make([]types.Album, len(ids))
	for i, id := range ids {
		out[i] = types.Album{ID: id}
	}
	return out
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRepairAllAggregates(t *testing.T) {
	store := &fakeStore{
		albums: albums("alb_1", "alb_2", "alb_3"),
		repairs: map[string]*types.RepairReport{
			"alb_1": {AlbumID: "alb_1", Checked: 5, Fixed: 0, Errors: []string{}},
			"alb_2": {AlbumID: "alb_2", Checked: 3, Fixed: 2, Errors: []string{}},
			"alb_3": {AlbumID: "alb_3", Checked: 1, Fixed: 0, Errors: []string{"img_x: unreadable"}},
		},
	}
	r := newTestRunner(t, store)

	report, err := r.RepairAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.RepairedAlbums)
	assert.Equal(t, 9, report.Checked)
	assert.Equal(t, 2, report.Fixed)
	assert.Equal(t, []string{"img_x: unreadable"}, report.Errors)
	assert.Equal(t, []string{"alb_1", "alb_2", "alb_3"}, store.repairCalls)
}

func TestRepairAllContinuesPastFailure(t *testing.T) {
	store := &fakeStore{
		albums: albums("alb_1", "alb_2"),
		failures: map[string]error{
			"alb_1": errors.AlbumNotFound("alb_1"),
		},
	}
	r := newTestRunner(t, store)

	report, err := r.RepairAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.RepairedAlbums)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "alb_1")
	assert.Equal(t, []string{"alb_1", "alb_2"}, store.repairCalls)
}

func TestRepairAllWalksEveryPage(t *testing.T) {
	ids := make([]string, 0, types.AlbumPageSize+7)
	for i := 0; i < types.AlbumPageSize+7; i++ {
		ids = append(ids, types.NewAlbumID())
	}
	store := &fakeStore{albums: albums(ids...)}
	r := newTestRunner(t, store)

	report, err := r.RepairAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.AlbumPageSize+7, report.RepairedAlbums)
}

func TestRunFullPass(t *testing.T) {
	store := &fakeStore{
		albums: albums("alb_1"),
		orphans: &objectstore.OrphanReport{
			Scanned:          12,
			OrphanedBinaries: []string{"albums/alb_1/files/img_lost.jpg"},
			DanglingMetadata: []string{},
		},
	}
	r := newTestRunner(t, store)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, store.rebuildCalls)
	assert.Equal(t, 1, report.IndexedAlbums)
	assert.Equal(t, 1, report.RepairedAlbums)
	require.NotNil(t, report.Orphans)
	assert.Equal(t, []string{"albums/alb_1/files/img_lost.jpg"}, report.Orphans.OrphanedBinaries)
}
