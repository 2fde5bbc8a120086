package objectstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/galleryfs/galleryfs/internal/cache"
	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// imageDoc is the stored form of an image's metadata. DataKey points at the
// binary object so a rename can repoint it alongside OwningAlbum.
type imageDoc struct {
	types.Image
	DataKey string `json:"dataKey"`
}

// decodeImageDoc parses a stored image document and resolves its URLs from
// the binary object key.
func (a *Adapter) decodeImageDoc(ctx context.Context, data []byte) (*types.Image, error) {
	var doc imageDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageRead, "image document unparseable", err).
			WithComponent(component)
	}

	url, err := a.resolveURL(ctx, doc.DataKey)
	if err != nil {
		return nil, err
	}
	doc.Image.URL = url
	doc.Image.ThumbURL = url
	return &doc.Image, nil
}

func (a *Adapter) putImageDoc(ctx context.Context, doc *imageDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	key := imageMetaKey(doc.OwningAlbum, doc.ID)
	if err := a.backend.PutObject(ctx, key, data); err != nil {
		return err
	}
	a.cache.Invalidate(a.cacheKey("image", doc.ID))
	return nil
}

// locateImage finds an image document by id alone. Standalone images are
// checked first, then each album's metadata prefix in index order.
func (a *Adapter) locateImage(ctx context.Context, imageID string) (*imageDoc, string, error) {
	// Standalone first: a single probe covers images outside any album.
	key := imageMetaKey("", imageID)
	data, err := a.backend.GetObject(ctx, key)
	if err == nil {
		var doc imageDoc
		if uerr := json.Unmarshal(data, &doc); uerr != nil {
			return nil, "", errors.Wrap(errors.ErrCodeStorageRead, "image document unparseable", uerr).
				WithComponent(component).WithTarget(imageID)
		}
		return &doc, key, nil
	}
	if !errors.IsNotFound(err) {
		return nil, "", err
	}

	albums, err := a.allAlbums(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, album := range albums {
		if !contains(album.ImageIDs, imageID) {
			continue
		}
		key := imageMetaKey(album.ID, imageID)
		data, err := a.backend.GetObject(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				// Membership references an id with no document. Left
				// for RepairAlbum to reconcile.
				a.logger.Warn("album references image without metadata",
					"album", album.ID, "image", imageID)
				continue
			}
			return nil, "", err
		}
		var doc imageDoc
		if uerr := json.Unmarshal(data, &doc); uerr != nil {
			return nil, "", errors.Wrap(errors.ErrCodeStorageRead, "image document unparseable", uerr).
				WithComponent(component).WithTarget(imageID)
		}
		return &doc, key, nil
	}

	return nil, "", errors.ImageNotFound(imageID).WithComponent(component)
}

// UploadImage stores a new image. Write ordering is binary first, metadata
// second, album membership last, so a failure at any step leaves no dangling
// references.
func (a *Adapter) UploadImage(ctx context.Context, req types.UploadRequest) (*types.Image, error) {
	if len(req.Data) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidPayload, "upload payload is empty").
			WithComponent(component).WithOperation("UploadImage")
	}

	var album *types.Album
	if req.AlbumID != "" {
		var err error
		album, err = a.getAlbumDoc(ctx, req.AlbumID)
		if err != nil {
			return nil, err
		}
	}

	id := types.NewImageID()
	ext := extOf(req.FileName)
	dataKey := imageDataKey(req.AlbumID, id, ext)

	if err := a.backend.PutObject(ctx, dataKey, req.Data); err != nil {
		return nil, err
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = detectContentType(req.FileName)
	}

	doc := &imageDoc{
		Image: types.Image{
			ID:          id,
			Title:       req.Title,
			Description: req.Description,
			Size:        int64(len(req.Data)),
			MIMEType:    mimeType,
			CreatedAt:   time.Now(),
			Animated:    mimeType == "image/gif",
			OwningAlbum: req.AlbumID,
		},
		DataKey: dataKey,
	}
	if err := a.putImageDoc(ctx, doc); err != nil {
		// Best effort rollback of the binary; an orphaned binary is
		// harmless and cleaned up by maintenance.
		if derr := a.backend.DeleteObject(ctx, dataKey); derr != nil {
			a.logger.Warn("orphaned binary after failed metadata write",
				"key", dataKey, "error", derr)
		}
		return nil, err
	}

	if album != nil {
		album.ImageIDs = append(album.ImageIDs, id)
		if err := a.putAlbumDoc(ctx, album); err != nil {
			return nil, err
		}
		a.upsertIndexEntry(ctx, album)
	}

	url, err := a.resolveURL(ctx, dataKey)
	if err != nil {
		return nil, err
	}
	img := doc.Image
	img.URL = url
	img.ThumbURL = url
	return &img, nil
}

// GetImage returns a single image by id regardless of album placement.
func (a *Adapter) GetImage(ctx context.Context, id string) (*types.Image, error) {
	return cache.Cached(ctx, a.cache, a.cacheKey("image", id),
		cache.Options{TTL: cache.TTLDefault}, func(ctx context.Context) (*types.Image, error) {
			return a.getImage(ctx, id)
		})
}

func (a *Adapter) getImage(ctx context.Context, id string) (*types.Image, error) {
	doc, _, err := a.locateImage(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := a.resolveURL(ctx, doc.DataKey)
	if err != nil {
		return nil, err
	}
	img := doc.Image
	img.URL = url
	img.ThumbURL = url
	return &img, nil
}

// UpdateImage applies a partial metadata update.
func (a *Adapter) UpdateImage(ctx context.Context, id string, upd types.ImageUpdate) (*types.Image, error) {
	doc, _, err := a.locateImage(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		doc.Title = *upd.Title
	}
	if upd.Description != nil {
		doc.Description = *upd.Description
	}

	if err := a.putImageDoc(ctx, doc); err != nil {
		return nil, err
	}

	url, err := a.resolveURL(ctx, doc.DataKey)
	if err != nil {
		return nil, err
	}
	img := doc.Image
	img.URL = url
	img.ThumbURL = url
	return &img, nil
}

// DeleteImage removes an image's binary, its metadata document, and any album
// membership reference to it. Deleting the cover image clears the album's
// cover.
func (a *Adapter) DeleteImage(ctx context.Context, id string) error {
	doc, metaKey, err := a.locateImage(ctx, id)
	if err != nil {
		return err
	}

	if err := a.backend.DeleteObject(ctx, doc.DataKey); err != nil {
		return err
	}
	if err := a.backend.DeleteObject(ctx, metaKey); err != nil {
		return err
	}

	if doc.OwningAlbum != "" {
		album, err := a.getAlbumDoc(ctx, doc.OwningAlbum)
		if err != nil {
			if errors.IsNotFound(err) {
				// Owning album already gone; nothing to unlink.
				a.cache.Invalidate(a.cacheKey("image", id))
				return nil
			}
			return err
		}
		album.ImageIDs = remove(album.ImageIDs, id)
		if album.CoverImageID == id {
			album.CoverImageID = ""
		}
		if err := a.putAlbumDoc(ctx, album); err != nil {
			return err
		}
		a.upsertIndexEntry(ctx, album)
	}

	a.cache.Invalidate(a.cacheKey("image", id))
	a.dropURLs(doc.DataKey)
	return nil
}

// ListImages returns one page of standalone images, sorted by id for a
// stable paging order.
func (a *Adapter) ListImages(ctx context.Context, page int) ([]types.Image, error) {
	objects, err := a.backend.ListObjects(ctx, metaPrefix(""), 0)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	if page < 0 {
		page = 0
	}
	start := page * types.AlbumPageSize
	if start >= len(keys) {
		return []types.Image{}, nil
	}
	end := start + types.AlbumPageSize
	if end > len(keys) {
		end = len(keys)
	}
	keys = keys[start:end]

	docs, err := a.backend.GetObjects(ctx, keys)
	if err != nil {
		return nil, err
	}

	images := make([]types.Image, 0, len(keys))
	for _, key := range keys {
		data, ok := docs[key]
		if !ok {
			continue
		}
		img, err := a.decodeImageDoc(ctx, data)
		if err != nil {
			a.logger.Warn("standalone image metadata unparseable",
				"key", key, "error", err)
			continue
		}
		images = append(images, *img)
	}
	return images, nil
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
