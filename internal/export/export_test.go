package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// fakeProvider implements the read surface the export service consumes.
// Unused contract methods panic via the embedded nil interface.
type fakeProvider struct {
	types.Provider
	albums  []types.Album
	details map[string]*types.AlbumDetail
}

func (f *fakeProvider) ListAlbums(_ context.Context, page int) ([]types.Album, error) {
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

func (f *fakeProvider) GetAlbum(_ context.Context, id string, _ types.AlbumQuery) (*types.AlbumDetail, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, errors.AlbumNotFound(id)
	}
	return d, nil
}

func (f *fakeProvider) AccountInfo(context.Context) (*types.AccountInfo, error) {
	return &types.AccountInfo{Provider: "fake"}, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newImageServer serves deterministic bytes per path and 404 on /missing.
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "bytes-of-%s", r.URL.Path[1:])
	}))
	t.Cleanup(server.Close)
	return server
}

func testImage(server *httptest.Server, id, mime string) types.Image {
	return types.Image{
		ID:       id,
		URL:      server.URL + "/" + id,
		MIMEType: mime,
	}
}

func readArchive(t *testing.T, data []byte) (map[string][]byte, *Manifest) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	files := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = content
	}

	var manifest Manifest
	require.Contains(t, files, "manifest.json")
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	return files, &manifest
}

func TestExportAlbums(t *testing.T) {
	server := newImageServer(t)

	iA := testImage(server, "img_a", "image/jpeg")
	iB := testImage(server, "img_b", "image/png")
	album := types.Album{ID: "alb_vacation", Title: "Vacation 2026", ImageIDs: []string{"img_a", "img_b"}, ImageCount: 2}
	p := &fakeProvider{
		albums: []types.Album{album},
		details: map[string]*types.AlbumDetail{
			"alb_vacation": {Album: album, Images: []types.Image{iA, iB}},
		},
	}

	svc, err := New(p, nil, newTestLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	report, err := svc.ExportAlbums(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Albums)
	assert.Equal(t, 2, report.Images)
	assert.Empty(t, report.Errors)
	assert.Positive(t, report.Bytes)

	files, manifest := readArchive(t, buf.Bytes())
	assert.Equal(t, "fake", manifest.Provider)
	require.Len(t, manifest.Albums, 1)

	entry := manifest.Albums[0]
	assert.Equal(t, "alb_vacation", entry.ID)
	assert.Equal(t, "Vacation 2026", entry.Folder)
	assert.Equal(t, []string{"img_a", "img_b"}, entry.ImageIDs)
	require.Len(t, entry.Images, 2)
	assert.Equal(t, "001_img_a.jpg", entry.Images[0].FileName)
	assert.Equal(t, "002_img_b.png", entry.Images[1].FileName)

	assert.Equal(t, []byte("bytes-of-img_a"), files["Vacation 2026/001_img_a.jpg"])
	assert.Equal(t, []byte("bytes-of-img_b"), files["Vacation 2026/002_img_b.png"])
}

func TestExportEnumeratesAllAlbums(t *testing.T) {
	p := &fakeProvider{details: map[string]*types.AlbumDetail{}}
	for i := 0; i < types.AlbumPageSize+3; i++ {
		id := fmt.Sprintf("alb_%03d", i)
		a := types.Album{ID: id, Title: id}
		p.albums = append(p.albums, a)
		p.details[id] = &types.AlbumDetail{Album: a, Images: []types.Image{}}
	}

	svc, err := New(p, nil, newTestLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	report, err := svc.ExportAlbums(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, types.AlbumPageSize+3, report.Albums)

	_, manifest := readArchive(t, buf.Bytes())
	assert.Len(t, manifest.Albums, types.AlbumPageSize+3)
}

func TestExportContinuesPastDownloadFailure(t *testing.T) {
	server := newImageServer(t)

	good := testImage(server, "img_good", "image/jpeg")
	bad := testImage(server, "missing", "image/jpeg")
	album := types.Album{ID: "alb_mixed", Title: "Mixed", ImageIDs: []string{"missing", "img_good"}}
	p := &fakeProvider{
		albums: []types.Album{album},
		details: map[string]*types.AlbumDetail{
			"alb_mixed": {Album: album, Images: []types.Image{bad, good}},
		},
	}

	svc, err := New(p, nil, newTestLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	report, err := svc.ExportAlbums(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Images)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "missing")

	_, manifest := readArchive(t, buf.Bytes())
	require.Len(t, manifest.Albums, 1)
	require.Len(t, manifest.Albums[0].Images, 1)
	assert.Equal(t, "img_good", manifest.Albums[0].Images[0].ID)
}

func TestExportMissingAlbumFails(t *testing.T) {
	p := &fakeProvider{details: map[string]*types.AlbumDetail{}}

	svc, err := New(p, nil, newTestLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = svc.ExportAlbums(context.Background(), &buf, "alb_nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFolderCollisionDisambiguation(t *testing.T) {
	a1 := types.Album{ID: "alb_1", Title: "Trip"}
	a2 := types.Album{ID: "alb_2", Title: "Trip"}
	p := &fakeProvider{
		albums: []types.Album{a1, a2},
		details: map[string]*types.AlbumDetail{
			"alb_1": {Album: a1, Images: []types.Image{}},
			"alb_2": {Album: a2, Images: []types.Image{}},
		},
	}

	svc, err := New(p, nil, newTestLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = svc.ExportAlbums(context.Background(), &buf)
	require.NoError(t, err)

	_, manifest := readArchive(t, buf.Bytes())
	require.Len(t, manifest.Albums, 2)
	assert.Equal(t, "Trip", manifest.Albums[0].Folder)
	assert.Equal(t, "Trip (alb_2)", manifest.Albums[1].Folder)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Vacation 2026", "Vacation 2026"},
		{"a/b\\c:d", "a_b_c_d"},
		{"..", ""},
		{"  spaced  ", "spaced"},
		{"emoji \U0001F305 ok", "emoji \U0001F305 ok"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitize(tt.in), tt.in)
	}
}

func TestExtForMIME(t *testing.T) {
	assert.Equal(t, ".jpg", extForMIME("image/jpeg"))
	assert.Equal(t, ".gif", extForMIME("IMAGE/GIF"))
	assert.Equal(t, "", extForMIME("application/octet-stream"))
}
