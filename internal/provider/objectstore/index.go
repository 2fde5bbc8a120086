package objectstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// indexSchemaVersion is bumped when the index document layout changes; a
// version mismatch is treated like a corrupt index and triggers the scan
// fallback.
const indexSchemaVersion = 1

// indexDoc is the single derived document mapping every album id to its full
// metadata, kept purely as a performance cache over the per-album documents.
type indexDoc struct {
	Schema    int                    `json:"schema"`
	UpdatedAt time.Time              `json:"updatedAt"`
	Albums    map[string]types.Album `json:"albums"`
}

// IndexOutcome reports the auxiliary result of a best-effort index update so
// the deliberate swallowing is visible to callers instead of hidden in a log
// statement.
type IndexOutcome struct {
	Updated bool
	Err     error
}

// loadIndex reads and parses the album index document.
func (a *Adapter) loadIndex(ctx context.Context) (*indexDoc, error) {
	data, err := a.backend.GetObject(ctx, indexKey)
	if err != nil {
		return nil, err
	}

	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexNotFound, "album index unparseable", err)
	}
	if doc.Schema != indexSchemaVersion {
		return nil, errors.NewError(errors.ErrCodeIndexNotFound, "album index schema mismatch")
	}
	if doc.Albums == nil {
		doc.Albums = make(map[string]types.Album)
	}
	return &doc, nil
}

func (a *Adapter) saveIndex(ctx context.Context, doc *indexDoc) error {
	doc.Schema = indexSchemaVersion
	doc.UpdatedAt = time.Now()

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return a.backend.PutObject(ctx, indexKey, data)
}

// upsertIndexEntry updates one album's entry in the index after a mutation.
// The index is a derived artifact: failure here is reported in the outcome
// and logged, never propagated, because correctness of the per-album
// documents is what matters.
func (a *Adapter) upsertIndexEntry(ctx context.Context, album *types.Album) IndexOutcome {
	return a.mutateIndex(ctx, "upsert", album.ID, func(doc *indexDoc) {
		doc.Albums[album.ID] = *album
	})
}

// removeIndexEntry removes one album's entry from the index, best-effort.
func (a *Adapter) removeIndexEntry(ctx context.Context, albumID string) IndexOutcome {
	return a.mutateIndex(ctx, "remove", albumID, func(doc *indexDoc) {
		delete(doc.Albums, albumID)
	})
}

func (a *Adapter) mutateIndex(ctx context.Context, op, albumID string, mutate func(*indexDoc)) IndexOutcome {
	doc, err := a.loadIndex(ctx)
	if err != nil {
		if !errors.IsNotFound(err) {
			a.logger.Warn("album index update skipped", "op", op, "album", albumID, "error", err)
			return IndexOutcome{Err: err}
		}
		// No index yet: start one from this mutation alone. The next
		// rebuild fills in the rest.
		doc = &indexDoc{Albums: make(map[string]types.Album)}
	}

	mutate(doc)

	if err := a.saveIndex(ctx, doc); err != nil {
		a.logger.Warn("album index write failed", "op", op, "album", albumID, "error", err)
		return IndexOutcome{Err: err}
	}

	a.cache.Invalidate(a.cacheKey("index"))
	return IndexOutcome{Updated: true}
}

// RebuildIndex reconstructs the album index from scratch by enumerating every
// album-folder prefix and re-reading every album metadata document. It is the
// authoritative recovery path after index corruption, idempotent and safe to
// run at any time. Returns the number of albums indexed.
func (a *Adapter) RebuildIndex(ctx context.Context) (int, error) {
	albums, err := a.scanAlbums(ctx)
	if err != nil {
		return 0, err
	}

	doc := &indexDoc{Albums: make(map[string]types.Album, len(albums))}
	for _, album := range albums {
		doc.Albums[album.ID] = album
	}

	if err := a.saveIndex(ctx, doc); err != nil {
		return 0, errors.Wrap(errors.ErrCodeStorageWrite, "index rebuild write failed", err).
			WithComponent("objectstore").WithOperation("RebuildIndex")
	}

	a.cache.Invalidate(a.cacheKey("index"))
	a.logger.Info("album index rebuilt", "albums", len(albums))
	return len(albums), nil
}

// scanAlbums enumerates every album metadata document directly, bypassing the
// index. This is the fallback read path and the rebuild source.
func (a *Adapter) scanAlbums(ctx context.Context) ([]types.Album, error) {
	objects, err := a.backend.ListObjects(ctx, albumRoot, 0)
	if err != nil {
		return nil, err
	}

	var metaKeys []string
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/"+albumDocName) {
			metaKeys = append(metaKeys, obj.Key)
		}
	}
	if len(metaKeys) == 0 {
		return []types.Album{}, nil
	}

	docs, err := a.backend.GetObjects(ctx, metaKeys)
	if err != nil {
		return nil, err
	}

	albums := make([]types.Album, 0, len(docs))
	for key, data := range docs {
		var album types.Album
		if err := json.Unmarshal(data, &album); err != nil {
			a.logger.Warn("skipping unparseable album document", "key", key, "error", err)
			continue
		}
		albums = append(albums, album)
	}
	return albums, nil
}

// allAlbums returns every album, preferring the index (one read) over the
// per-album scan (N reads). A missing or corrupt index falls back to the scan
// and flags that the index should be rebuilt.
func (a *Adapter) allAlbums(ctx context.Context) ([]types.Album, error) {
	doc, err := a.loadIndex(ctx)
	if err == nil {
		albums := make([]types.Album, 0, len(doc.Albums))
		for _, album := range doc.Albums {
			albums = append(albums, album)
		}
		return albums, nil
	}

	if !errors.IsNotFound(err) {
		return nil, err
	}

	a.logger.Warn("album index missing or corrupt, scanning album documents; consider RebuildIndex", "error", err)
	return a.scanAlbums(ctx)
}
