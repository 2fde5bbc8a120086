package objectstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// AddImagesToAlbum adds the given images to the album's membership. Ids
// already present are skipped, so the operation is idempotent. Each image's
// owning reference is rewritten first; only images whose rewrite succeeded
// enter the membership list, so a failed rewrite can never leave the album
// referencing an image that still points elsewhere. Rewrite failures are
// collected into a partial-failure error; the committed album state is
// returned alongside it so callers see what actually took.
func (a *Adapter) AddImagesToAlbum(ctx context.Context, albumID string, imageIDs []string) (*types.Album, error) {
	album, err := a.getAlbumDoc(ctx, albumID)
	if err != nil {
		return nil, err
	}

	var added, failed []string
	for _, id := range imageIDs {
		if contains(album.ImageIDs, id) || contains(added, id) {
			continue
		}
		if err := a.repointImage(ctx, id, albumID); err != nil {
			a.logger.Warn("failed to repoint image into album",
				"album", albumID, "image", id, "error", err)
			failed = append(failed, id)
			continue
		}
		added = append(added, id)
	}
	if len(added) > 0 {
		album.ImageIDs = append(album.ImageIDs, added...)
		if err := a.putAlbumDoc(ctx, album); err != nil {
			return nil, err
		}
		a.upsertIndexEntry(ctx, album)
	}

	if len(failed) > 0 {
		return album, errors.NewError(errors.ErrCodePartialFailure,
			fmt.Sprintf("%d of %d image(s) not added to album: %v", len(failed), len(added)+len(failed), failed)).
			WithComponent(component).WithOperation("AddImagesToAlbum").WithTarget(albumID)
	}
	return album, nil
}

// RemoveImagesFromAlbum removes the given images from the album's membership.
// Ids not present are skipped. Each removed image's owning reference is
// cleared first; an image whose detach failed stays in the membership list so
// list and reference never disagree. Removing the cover image clears the
// cover. Removed images become standalone: their documents and binaries move
// to the library prefix.
func (a *Adapter) RemoveImagesFromAlbum(ctx context.Context, albumID string, imageIDs []string) (*types.Album, error) {
	album, err := a.getAlbumDoc(ctx, albumID)
	if err != nil {
		return nil, err
	}

	var removed, failed []string
	for _, id := range imageIDs {
		if !contains(album.ImageIDs, id) || contains(removed, id) {
			continue
		}
		if err := a.detachImage(ctx, albumID, id); err != nil {
			a.logger.Warn("failed to detach image from album",
				"album", albumID, "image", id, "error", err)
			failed = append(failed, id)
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		for _, id := range removed {
			album.ImageIDs = remove(album.ImageIDs, id)
			if album.CoverImageID == id {
				album.CoverImageID = ""
			}
		}
		if err := a.putAlbumDoc(ctx, album); err != nil {
			return nil, err
		}
		a.upsertIndexEntry(ctx, album)
	}

	if len(failed) > 0 {
		return album, errors.NewError(errors.ErrCodePartialFailure,
			fmt.Sprintf("%d of %d image(s) not removed from album: %v", len(failed), len(removed)+len(failed), failed)).
			WithComponent(component).WithOperation("RemoveImagesFromAlbum").WithTarget(albumID)
	}
	return album, nil
}

// repointImage moves an image's metadata document and binary under albumID's
// prefix and sets its owning reference. The binary is copied before anything
// destructive happens; relocating it keeps every member object inside its
// owning album's prefix, which album delete and rename depend on.
func (a *Adapter) repointImage(ctx context.Context, imageID, albumID string) error {
	doc, oldKey, err := a.locateImage(ctx, imageID)
	if err != nil {
		return err
	}
	if doc.OwningAlbum == albumID {
		return nil
	}

	oldDataKey := doc.DataKey
	newDataKey := imageDataKey(albumID, imageID, extOf(oldDataKey))
	if oldDataKey != newDataKey {
		if err := a.backend.CopyObject(ctx, oldDataKey, newDataKey); err != nil {
			return err
		}
		doc.DataKey = newDataKey
	}

	// Unlink from the previous owner so the image belongs to exactly one
	// album at a time.
	if doc.OwningAlbum != "" {
		if prev, err := a.getAlbumDoc(ctx, doc.OwningAlbum); err == nil {
			prev.ImageIDs = remove(prev.ImageIDs, imageID)
			if prev.CoverImageID == imageID {
				prev.CoverImageID = ""
			}
			if err := a.putAlbumDoc(ctx, prev); err != nil {
				return err
			}
			a.upsertIndexEntry(ctx, prev)
		} else if !errors.IsNotFound(err) {
			return err
		}
	}

	doc.OwningAlbum = albumID
	if err := a.putImageDoc(ctx, doc); err != nil {
		return err
	}
	if oldKey != imageMetaKey(albumID, imageID) {
		if err := a.backend.DeleteObject(ctx, oldKey); err != nil {
			return err
		}
	}
	if oldDataKey != newDataKey {
		if err := a.backend.DeleteObject(ctx, oldDataKey); err != nil {
			// The target copy is authoritative; a leftover source binary
			// is material for the orphan scan, not a failed move.
			a.logger.Warn("source binary not deleted after move",
				"image", imageID, "key", oldDataKey, "error", err)
		}
		a.dropURLs(oldDataKey)
	}
	return nil
}

// detachImage moves an image's metadata document and binary to the standalone
// library prefix and clears its owning reference.
func (a *Adapter) detachImage(ctx context.Context, albumID, imageID string) error {
	oldKey := imageMetaKey(albumID, imageID)
	data, err := a.backend.GetObject(ctx, oldKey)
	if err != nil {
		if errors.IsNotFound(err) {
			// Reference without document; nothing to move.
			return nil
		}
		return err
	}

	var doc imageDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.ErrCodeStorageRead, "image document unparseable", err).
			WithComponent(component).WithTarget(imageID)
	}

	oldDataKey := doc.DataKey
	newDataKey := imageDataKey("", imageID, extOf(oldDataKey))
	if oldDataKey != newDataKey {
		if err := a.backend.CopyObject(ctx, oldDataKey, newDataKey); err != nil {
			return err
		}
		doc.DataKey = newDataKey
	}

	doc.OwningAlbum = ""
	if err := a.putImageDoc(ctx, &doc); err != nil {
		return err
	}
	if err := a.backend.DeleteObject(ctx, oldKey); err != nil {
		return err
	}
	if oldDataKey != newDataKey {
		if err := a.backend.DeleteObject(ctx, oldDataKey); err != nil {
			a.logger.Warn("source binary not deleted after move",
				"image", imageID, "key", oldDataKey, "error", err)
		}
		a.dropURLs(oldDataKey)
	}
	return nil
}

// RepairAlbum reconciles one album's membership list against the metadata
// documents actually present under its prefix. Membership entries without a
// document are dropped; documents without a membership entry are appended;
// owning references are rewritten to match. Cover references to missing
// members are cleared.
func (a *Adapter) RepairAlbum(ctx context.Context, albumID string) (*types.RepairReport, error) {
	album, err := a.getAlbumDoc(ctx, albumID)
	if err != nil {
		return nil, err
	}

	report := &types.RepairReport{AlbumID: albumID}

	objects, err := a.backend.ListObjects(ctx, metaPrefix(albumID), 0)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(objects))
	for _, obj := range objects {
		if id := imageIDFromMetaKey(obj.Key); id != "" {
			present[id] = true
		}
	}

	// Drop membership entries whose document is gone.
	kept := album.ImageIDs[:0]
	for _, id := range album.ImageIDs {
		report.Checked++
		if present[id] {
			kept = append(kept, id)
			continue
		}
		report.Fixed++
		a.logger.Info("repair: dropping dangling membership entry",
			"album", albumID, "image", id)
	}
	album.ImageIDs = kept

	// Append documents the membership list does not know about.
	for id := range present {
		if contains(album.ImageIDs, id) {
			continue
		}
		report.Checked++
		report.Fixed++
		album.ImageIDs = append(album.ImageIDs, id)
		a.logger.Info("repair: adopting unlisted image document",
			"album", albumID, "image", id)
	}

	if album.CoverImageID != "" && !contains(album.ImageIDs, album.CoverImageID) {
		album.CoverImageID = ""
		report.Fixed++
	}

	// Rewrite owning references that drifted.
	for _, id := range album.ImageIDs {
		data, err := a.backend.GetObject(ctx, imageMetaKey(albumID, id))
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("read %s: %v", id, err))
			continue
		}
		var doc imageDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("parse %s: %v", id, err))
			continue
		}
		if doc.OwningAlbum == albumID {
			continue
		}
		doc.OwningAlbum = albumID
		if err := a.putImageDoc(ctx, &doc); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("rewrite %s: %v", id, err))
			continue
		}
		report.Fixed++
	}

	if err := a.putAlbumDoc(ctx, album); err != nil {
		return nil, err
	}
	a.upsertIndexEntry(ctx, album)
	return report, nil
}
