package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// RenameAlbum changes an album's identity by copying every object under the
// source prefix to the target prefix, rewriting the documents that embed the
// album id, verifying the copy, and only then deleting the source. Every
// stage before deletion is abort-safe: a failure leaves the source intact and
// at worst a partial target prefix, which a retry of the rename or a
// RebuildIndex pass cleans up.
func (a *Adapter) RenameAlbum(ctx context.Context, oldID, newID string, progress types.ProgressFunc) error {
	emit := func(stage types.RenameStage, pct float64, detail string) {
		if progress != nil {
			progress(types.RenameProgress{Stage: stage, Percent: pct, Detail: detail})
		}
	}
	abort := func(stage types.RenameStage, err error) error {
		a.logger.Error("album rename aborted, source left intact",
			"old", oldID, "new", newID, "stage", stage, "error", err)
		return errors.Wrap(errors.ErrCodeRenameAborted,
			fmt.Sprintf("rename %s -> %s aborted during %s", oldID, newID, stage), err).
			WithComponent(component).WithOperation("RenameAlbum")
	}

	// Stage 1: validate target id and check both endpoints.
	emit(types.StageValidating, 0, "")
	if !types.ValidAlbumID(newID) {
		return errors.NewError(errors.ErrCodeInvalidAlbumID,
			fmt.Sprintf("album id %q is not a valid identifier", newID)).
			WithComponent(component).WithOperation("RenameAlbum")
	}
	album, err := a.getAlbumDoc(ctx, oldID)
	if err != nil {
		return err
	}
	if _, err := a.backend.HeadObject(ctx, albumMetaKey(newID)); err == nil {
		return errors.NewError(errors.ErrCodeDuplicateAlbumID,
			fmt.Sprintf("album id %q already exists", newID)).
			WithComponent(component).WithOperation("RenameAlbum")
	} else if !errors.IsNotFound(err) {
		return abort(types.StageValidating, err)
	}

	sources, err := a.backend.ListObjects(ctx, albumPrefix(oldID), 0)
	if err != nil {
		return abort(types.StageValidating, err)
	}

	// Stage 2: copy binaries and peripheral objects. Documents embedding
	// the album id are rewritten in later stages, so the stale copies made
	// here are overwritten, not kept.
	total := len(sources)
	for i, obj := range sources {
		dst := rewriteAlbumPrefix(obj.Key, oldID, newID)
		if err := a.backend.CopyObject(ctx, obj.Key, dst); err != nil {
			return abort(types.StageCopying, err)
		}
		emit(types.StageCopying, float64(i+1)/float64(total)*100, obj.Key)
	}

	// Stage 3: write the target album document under its new identity.
	emit(types.StageWritingTarget, 0, "")
	renamed := *album
	renamed.ID = newID
	if renamed.LegacyID == "" {
		// Keep old deep links working after the identity change.
		renamed.LegacyID = oldID
	}
	if err := a.putAlbumDoc(ctx, &renamed); err != nil {
		return abort(types.StageWritingTarget, err)
	}

	// Stage 4: repoint each member image document at the new album.
	for i, imageID := range renamed.ImageIDs {
		key := imageMetaKey(newID, imageID)
		data, err := a.backend.GetObject(ctx, key)
		if err != nil {
			return abort(types.StageRepointing, err)
		}
		var doc imageDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return abort(types.StageRepointing, err)
		}
		doc.OwningAlbum = newID
		// Older documents may carry a binary outside the album prefix; only
		// keys the copy stage actually moved get rewritten.
		if strings.HasPrefix(doc.DataKey, albumPrefix(oldID)) {
			doc.DataKey = rewriteAlbumPrefix(doc.DataKey, oldID, newID)
		}
		if err := a.putImageDoc(ctx, &doc); err != nil {
			return abort(types.StageRepointing, err)
		}
		emit(types.StageRepointing, float64(i+1)/float64(len(renamed.ImageIDs))*100, imageID)
	}

	// Stage 5: verify the target before anything is deleted.
	emit(types.StageVerifying, 0, "")
	for _, obj := range sources {
		dst := rewriteAlbumPrefix(obj.Key, oldID, newID)
		if _, err := a.backend.HeadObject(ctx, dst); err != nil {
			return abort(types.StageVerifying, err)
		}
	}

	// Stage 6: delete the source prefix directly, not through DeleteAlbum,
	// so cache and index handling stays under this protocol's control.
	for i, obj := range sources {
		if err := a.backend.DeleteObject(ctx, obj.Key); err != nil {
			// Past the point of no return: the target is complete, so
			// leftovers are reported but the rename stands.
			a.logger.Warn("rename: source object not deleted",
				"key", obj.Key, "error", err)
		}
		emit(types.StageDeletingSource, float64(i+1)/float64(total)*100, obj.Key)
	}

	// Stage 7: swap the index entry.
	emit(types.StageUpdatingIndex, 0, "")
	a.removeIndexEntry(ctx, oldID)
	a.upsertIndexEntry(ctx, &renamed)

	a.cache.InvalidatePattern(oldID)
	a.cache.InvalidatePattern(newID)
	a.dropURLs(albumPrefix(oldID))

	emit(types.StageDone, 100, "")
	return nil
}
