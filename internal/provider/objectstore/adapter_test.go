package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galleryfs/galleryfs/internal/cache"
	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

func newTestAdapter(t *testing.T) (*Adapter, *memBackend, *memSigner) {
	t.Helper()

	backend := newMemBackend()
	signer := &memSigner{}

	store, err := cache.New(nil, nil, nil)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewWithBackend(backend, signer, &Config{}, store, logger)
	return a, backend, signer
}

func uploadTestImage(t *testing.T, a *Adapter, albumID, name string) *types.Image {
	t.Helper()
	img, err := a.UploadImage(context.Background(), types.UploadRequest{
		AlbumID:  albumID,
		FileName: name,
		Data:     []byte("jpeg-bytes-" + name),
	})
	require.NoError(t, err)
	return img
}

func TestCreateAlbum(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	album, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "summer-2026", Title: "Summer"})
	require.NoError(t, err)
	assert.Equal(t, "summer-2026", album.ID)
	assert.Equal(t, types.PrivacyPrivate, album.Privacy)
	assert.Empty(t, album.ImageIDs)
	assert.Zero(t, album.ImageCount)

	// Album document and index entry are both written.
	assert.Contains(t, backend.keys(""), "albums/summer-2026/album.json")
	assert.Contains(t, backend.keys(""), indexKey)

	_, err = a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "summer-2026", Title: "Again"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateAlbumID, errors.CodeOf(err))

	_, err = a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "bad id/slash", Title: "Bad"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidAlbumID, errors.CodeOf(err))
}

func TestCreateAlbumGeneratedID(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	album, err := a.CreateAlbum(context.Background(), types.CreateAlbumRequest{Title: "Untitled"})
	require.NoError(t, err)
	assert.True(t, types.ValidAlbumID(album.ID))
}

func TestUploadAndGetAlbumOrdering(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "trip", Title: "Trip"})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 5; i++ {
		img := uploadTestImage(t, a, "trip", fmt.Sprintf("img-%d.jpg", i))
		ids = append(ids, img.ID)
	}

	detail, err := a.GetAlbum(ctx, "trip", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Equal(t, ids, detail.ImageIDs)
	assert.Equal(t, 5, detail.ImageCount)
	require.Len(t, detail.Images, 5)
	for i, img := range detail.Images {
		assert.Equal(t, ids[i], img.ID)
		assert.Equal(t, "trip", img.OwningAlbum)
		assert.NotEmpty(t, img.URL)
	}
}

func TestGetAlbumQuerySlicing(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "big", Title: "Big"})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 8; i++ {
		img := uploadTestImage(t, a, "big", fmt.Sprintf("p%d.png", i))
		ids = append(ids, img.ID)
	}

	detail, err := a.GetAlbum(ctx, "big", types.AlbumQuery{ImageOffset: 3, ImageLimit: 2})
	require.NoError(t, err)
	// Full membership travels with the album even when the image slice is
	// windowed.
	assert.Len(t, detail.ImageIDs, 8)
	require.Len(t, detail.Images, 2)
	assert.Equal(t, ids[3], detail.Images[0].ID)
	assert.Equal(t, ids[4], detail.Images[1].ID)

	detail, err = a.GetAlbum(ctx, "big", types.AlbumQuery{ImageOffset: 100})
	require.NoError(t, err)
	assert.Empty(t, detail.Images)
}

func TestUpdateAlbumReorder(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "ord", Title: "Ordered"})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		img := uploadTestImage(t, a, "ord", fmt.Sprintf("o%d.jpg", i))
		ids = append(ids, img.ID)
	}

	reordered := []string{ids[2], ids[0], ids[1]}
	album, err := a.UpdateAlbum(ctx, "ord", types.AlbumUpdate{ImageIDs: reordered})
	require.NoError(t, err)
	assert.Equal(t, reordered, album.ImageIDs)

	// Not a permutation: drops a member.
	_, err = a.UpdateAlbum(ctx, "ord", types.AlbumUpdate{ImageIDs: ids[:2]})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidPayload, errors.CodeOf(err))

	// Not a permutation: smuggles in a foreign id.
	_, err = a.UpdateAlbum(ctx, "ord", types.AlbumUpdate{ImageIDs: []string{ids[0], ids[1], "img_x"}})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidPayload, errors.CodeOf(err))
}

func TestCoverImageInvariant(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "cov", Title: "Covers"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "cov", "cover.jpg")

	cover := img.ID
	album, err := a.UpdateAlbum(ctx, "cov", types.AlbumUpdate{CoverImageID: &cover})
	require.NoError(t, err)
	assert.Equal(t, img.ID, album.CoverImageID)

	stranger := "img_not_a_member"
	_, err = a.UpdateAlbum(ctx, "cov", types.AlbumUpdate{CoverImageID: &stranger})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidPayload, errors.CodeOf(err))

	// Deleting the cover image clears the reference.
	require.NoError(t, a.DeleteImage(ctx, img.ID))
	detail, err := a.GetAlbum(ctx, "cov", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Empty(t, detail.CoverImageID)
	assert.Empty(t, detail.ImageIDs)
}

func TestMembershipIdempotence(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "mem", Title: "Members"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "", "loose.jpg")

	first, err := a.AddImagesToAlbum(ctx, "mem", []string{img.ID})
	require.NoError(t, err)
	second, err := a.AddImagesToAlbum(ctx, "mem", []string{img.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ImageIDs, second.ImageIDs)
	assert.Equal(t, first.ImageCount, second.ImageCount)

	detail, err := a.GetAlbum(ctx, "mem", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{img.ID}, detail.ImageIDs)
	require.Len(t, detail.Images, 1)
	assert.Equal(t, "mem", detail.Images[0].OwningAlbum)

	// Removing twice is equally safe.
	_, err = a.RemoveImagesFromAlbum(ctx, "mem", []string{img.ID})
	require.NoError(t, err)
	_, err = a.RemoveImagesFromAlbum(ctx, "mem", []string{img.ID})
	require.NoError(t, err)

	detail, err = a.GetAlbum(ctx, "mem", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Empty(t, detail.ImageIDs)

	// The image survives removal as a standalone.
	got, err := a.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OwningAlbum)
}

func TestAddImagesPartialFailure(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "part", Title: "Partial"})
	require.NoError(t, err)
	good := uploadTestImage(t, a, "", "good.jpg")
	bad := uploadTestImage(t, a, "", "bad.jpg")

	backend.failOn("put", imageMetaKey("part", bad.ID),
		errors.NewError(errors.ErrCodeStorageWrite, "write refused"))

	album, err := a.AddImagesToAlbum(ctx, "part", []string{good.ID, bad.ID})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodePartialFailure, errors.CodeOf(err))
	// The committed state travels with the partial-failure error.
	require.NotNil(t, album)
	assert.Equal(t, []string{good.ID}, album.ImageIDs)

	// Only the successfully repointed image entered the membership list.
	detail, err := a.GetAlbum(ctx, "part", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{good.ID}, detail.ImageIDs)

	// The failed image still reads as standalone.
	got, err := a.GetImage(ctx, bad.ID)
	require.NoError(t, err)
	assert.Empty(t, got.OwningAlbum)
}

func TestAddImageMovesBetweenAlbums(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "src", Title: "Source"})
	require.NoError(t, err)
	_, err = a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "dst", Title: "Destination"})
	require.NoError(t, err)

	img := uploadTestImage(t, a, "src", "mover.jpg")
	_, err = a.AddImagesToAlbum(ctx, "dst", []string{img.ID})
	require.NoError(t, err)

	srcDetail, err := a.GetAlbum(ctx, "src", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Empty(t, srcDetail.ImageIDs)

	dstDetail, err := a.GetAlbum(ctx, "dst", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{img.ID}, dstDetail.ImageIDs)
	require.Len(t, dstDetail.Images, 1)
	assert.Equal(t, "dst", dstDetail.Images[0].OwningAlbum)
}

func TestDeleteAlbumRemovesPrefix(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "gone", Title: "Doomed"})
	require.NoError(t, err)
	uploadTestImage(t, a, "gone", "a.jpg")
	uploadTestImage(t, a, "gone", "b.jpg")

	require.NoError(t, a.DeleteAlbum(ctx, "gone"))
	assert.Empty(t, backend.keys("albums/gone/"))

	_, err = a.GetAlbum(ctx, "gone", types.AlbumQuery{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	err = a.DeleteAlbum(ctx, "gone")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListAlbumsScanFallbackAndRebuild(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{
			ID: fmt.Sprintf("alb-%d", i), Title: fmt.Sprintf("Album %d", i),
		})
		require.NoError(t, err)
	}

	// Losing the index must not lose the albums: listing falls back to a
	// per-album scan.
	require.NoError(t, backend.DeleteObject(ctx, indexKey))
	a.cache.Invalidate(a.cacheKey("index"))
	a.cache.InvalidatePattern(a.cacheKey("albums"))

	albums, err := a.ListAlbums(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, albums, 3)

	n, err := a.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, backend.keys(""), indexKey)

	// Rebuild is idempotent.
	n, err = a.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRenameAlbum(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "old-name", Title: "Renamed"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "old-name", "keep.jpg")

	var stages []types.RenameStage
	err = a.RenameAlbum(ctx, "old-name", "new-name", func(p types.RenameProgress) {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, types.StageDone, stages[len(stages)-1])

	assert.Empty(t, backend.keys("albums/old-name/"))

	detail, err := a.GetAlbum(ctx, "new-name", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Equal(t, "new-name", detail.ID)
	assert.Equal(t, "old-name", detail.LegacyID)
	require.Len(t, detail.Images, 1)
	assert.Equal(t, img.ID, detail.Images[0].ID)
	assert.Equal(t, "new-name", detail.Images[0].OwningAlbum)

	// Old deep links resolve to the new identity.
	resolved, err := a.ResolveLegacyID(ctx, "old-name")
	require.NoError(t, err)
	assert.Equal(t, "new-name", resolved)
}

func TestRenameAbortLeavesSourceIntact(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "stay", Title: "Stays"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "stay", "precious.jpg")

	backend.failOn("copy", imageMetaKey("stay", img.ID),
		errors.NewError(errors.ErrCodeNetworkError, "copy refused"))

	err = a.RenameAlbum(ctx, "stay", "elsewhere", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRenameAborted, errors.CodeOf(err))

	// Source fully readable after the abort.
	detail, err := a.GetAlbum(ctx, "stay", types.AlbumQuery{})
	require.NoError(t, err)
	require.Len(t, detail.Images, 1)
	assert.Equal(t, img.ID, detail.Images[0].ID)
}

func TestRenameValidation(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "one", Title: "One"})
	require.NoError(t, err)
	_, err = a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "two", Title: "Two"})
	require.NoError(t, err)

	err = a.RenameAlbum(ctx, "one", "two", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateAlbumID, errors.CodeOf(err))

	err = a.RenameAlbum(ctx, "one", "bad name!", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidAlbumID, errors.CodeOf(err))

	err = a.RenameAlbum(ctx, "missing", "anywhere", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRepairAlbum(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "rep", Title: "Repairs"})
	require.NoError(t, err)
	kept := uploadTestImage(t, a, "rep", "kept.jpg")
	lost := uploadTestImage(t, a, "rep", "lost.jpg")

	// Corrupt state: delete one member's document behind the album's back.
	require.NoError(t, backend.DeleteObject(ctx, imageMetaKey("rep", lost.ID)))
	a.cache.InvalidatePattern("rep")

	report, err := a.RepairAlbum(ctx, "rep")
	require.NoError(t, err)
	assert.Equal(t, "rep", report.AlbumID)
	assert.GreaterOrEqual(t, report.Fixed, 1)
	assert.Empty(t, report.Errors)

	detail, err := a.GetAlbum(ctx, "rep", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, detail.ImageIDs)
	assert.Equal(t, 1, detail.ImageCount)
}

func TestStandaloneImages(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	img := uploadTestImage(t, a, "", "solo.gif")
	assert.True(t, img.Animated)
	assert.Empty(t, img.OwningAlbum)

	got, err := a.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)
	assert.Equal(t, "image/gif", got.MIMEType)

	images, err := a.ListImages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, img.ID, images[0].ID)

	title := "Renamed solo"
	updated, err := a.UpdateImage(ctx, img.ID, types.ImageUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	require.NoError(t, a.DeleteImage(ctx, img.ID))
	_, err = a.GetImage(ctx, img.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestSignedURLReuse(t *testing.T) {
	a, _, signer := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "urls", Title: "URLs"})
	require.NoError(t, err)
	uploadTestImage(t, a, "urls", "pic.jpg")

	before := signer.callCount()
	require.GreaterOrEqual(t, before, 1)
	_, err = a.GetAlbum(ctx, "urls", types.AlbumQuery{})
	require.NoError(t, err)
	_, err = a.GetAlbum(ctx, "urls", types.AlbumQuery{})
	require.NoError(t, err)

	// Unexpired presigned URLs are reused, not re-signed per read.
	assert.Equal(t, before, signer.callCount())
}

func TestPublicBaseURL(t *testing.T) {
	backend := newMemBackend()
	store, err := cache.New(nil, nil, nil)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewWithBackend(backend, nil, &Config{PublicBaseURL: "https://cdn.example/"}, store, logger)

	img, err := a.UploadImage(context.Background(), types.UploadRequest{
		FileName: "pub.jpg", Data: []byte("x"),
	})
	require.NoError(t, err)
	assert.Contains(t, img.URL, "https://cdn.example/")
	assert.Contains(t, img.URL, "library/files/")
}

func TestCapabilitiesAndAuth(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	assert.True(t, a.Supports(types.CapabilityRename))
	assert.True(t, a.Supports(types.CapabilityLegacyResolve))
	assert.False(t, a.Supports(types.Capability("time_travel")))

	assert.True(t, a.IsAuthenticated())
	assert.NoError(t, a.Authenticate(context.Background()))
	assert.NoError(t, a.RefreshCredentials(context.Background()))

	info, err := a.AccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "objectstore", info.Provider)
	assert.True(t, info.Authenticated)
}

func TestMembershipMovesBinaryWithImage(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "trip", Title: "Trip"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "", "loose.jpg")

	_, err = a.AddImagesToAlbum(ctx, "trip", []string{img.ID})
	require.NoError(t, err)

	// The binary follows the image into the owning album's prefix.
	_, err = backend.GetObject(ctx, imageDataKey("trip", img.ID, ".jpg"))
	require.NoError(t, err)
	_, err = backend.GetObject(ctx, imageDataKey("", img.ID, ".jpg"))
	require.Error(t, err)

	got, err := a.GetImage(ctx, img.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.URL)

	// Removal moves it back to the standalone library.
	_, err = a.RemoveImagesFromAlbum(ctx, "trip", []string{img.ID})
	require.NoError(t, err)
	_, err = backend.GetObject(ctx, imageDataKey("", img.ID, ".jpg"))
	require.NoError(t, err)
	_, err = backend.GetObject(ctx, imageDataKey("trip", img.ID, ".jpg"))
	require.Error(t, err)
}

func TestDeleteAlbumSparesMovedImages(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "old", Title: "Old"})
	require.NoError(t, err)
	_, err = a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "new", Title: "New"})
	require.NoError(t, err)

	img := uploadTestImage(t, a, "old", "mover.jpg")
	_, err = a.AddImagesToAlbum(ctx, "new", []string{img.ID})
	require.NoError(t, err)

	require.NoError(t, a.DeleteAlbum(ctx, "old"))

	// The moved image's bytes live under the new owner and survive the
	// old album's deletion.
	detail, err := a.GetAlbum(ctx, "new", types.AlbumQuery{})
	require.NoError(t, err)
	require.Len(t, detail.Images, 1)
	assert.NotEmpty(t, detail.Images[0].URL)
	_, err = backend.GetObject(ctx, imageDataKey("new", img.ID, ".jpg"))
	require.NoError(t, err)
}

func TestRenameAlbumWithAdoptedStandaloneImage(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "src", Title: "Source"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "", "adopted.jpg")
	_, err = a.AddImagesToAlbum(ctx, "src", []string{img.ID})
	require.NoError(t, err)

	require.NoError(t, a.RenameAlbum(ctx, "src", "dst", nil))

	detail, err := a.GetAlbum(ctx, "dst", types.AlbumQuery{})
	require.NoError(t, err)
	require.Len(t, detail.Images, 1)
	assert.NotEmpty(t, detail.Images[0].URL)
	_, err = backend.GetObject(ctx, imageDataKey("dst", img.ID, ".jpg"))
	require.NoError(t, err)
}

func TestRenameLeavesOutOfPrefixBinaryAlone(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "src", Title: "Source"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "", "kept.jpg")

	// Hand-build an older layout: the membership document sits under the
	// album while the binary stayed in the library.
	doc := imageDoc{Image: *img, DataKey: imageDataKey("", img.ID, ".jpg")}
	doc.OwningAlbum = "src"
	data, err := json.Marshal(&doc)
	require.NoError(t, err)
	require.NoError(t, backend.PutObject(ctx, imageMetaKey("src", img.ID), data))
	require.NoError(t, backend.DeleteObject(ctx, imageMetaKey("", img.ID)))

	album, err := a.getAlbumDoc(ctx, "src")
	require.NoError(t, err)
	album.ImageIDs = append(album.ImageIDs, img.ID)
	require.NoError(t, a.putAlbumDoc(ctx, album))

	require.NoError(t, a.RenameAlbum(ctx, "src", "dst", nil))

	// The out-of-prefix data key is left untouched, not mangled onto the
	// new prefix, and the binary is still readable through it.
	detail, err := a.GetAlbum(ctx, "dst", types.AlbumQuery{})
	require.NoError(t, err)
	require.Len(t, detail.Images, 1)
	assert.NotEmpty(t, detail.Images[0].URL)
	_, err = backend.GetObject(ctx, imageDataKey("", img.ID, ".jpg"))
	require.NoError(t, err)
}

func TestDeleteAlbumFailureKeepsAlbumDocument(t *testing.T) {
	a, backend, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "frag", Title: "Fragile"})
	require.NoError(t, err)
	img := uploadTestImage(t, a, "frag", "stuck.jpg")

	backend.failOn("delete", imageDataKey("frag", img.ID, ".jpg"),
		errors.NewError(errors.ErrCodeStorageWrite, "delete refused"))

	err = a.DeleteAlbum(ctx, "frag")
	require.Error(t, err)

	// The album document goes last, so a mid-sequence failure leaves the
	// album readable and repairable.
	a.cache.InvalidatePattern("frag")
	detail, err := a.GetAlbum(ctx, "frag", types.AlbumQuery{})
	require.NoError(t, err)
	assert.Equal(t, "frag", detail.ID)
}

func TestCoverURLResolvedOutsideSlice(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	_, err := a.CreateAlbum(ctx, types.CreateAlbumRequest{ID: "win", Title: "Windowed"})
	require.NoError(t, err)
	first := uploadTestImage(t, a, "win", "one.jpg")
	uploadTestImage(t, a, "win", "two.jpg")
	uploadTestImage(t, a, "win", "three.jpg")

	cover := first.ID
	_, err = a.UpdateAlbum(ctx, "win", types.AlbumUpdate{CoverImageID: &cover})
	require.NoError(t, err)

	detail, err := a.GetAlbum(ctx, "win", types.AlbumQuery{ImageOffset: 2})
	require.NoError(t, err)
	require.Len(t, detail.Images, 1)
	assert.NotEmpty(t, detail.CoverURL)
}
