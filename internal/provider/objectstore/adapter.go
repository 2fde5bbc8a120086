package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/galleryfs/galleryfs/internal/cache"
	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

const component = "objectstore"

// Config represents object-store adapter configuration.
type Config struct {
	Backend *BackendConfig `yaml:"backend"`

	// PublicBaseURL, when set, maps object keys to URLs by concatenation
	// instead of presigning.
	PublicBaseURL string `yaml:"public_base_url"`

	// SignedURLTTL is the lifetime of presigned URLs.
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
}

// Adapter implements types.Provider over a flat object store. It satisfies
// types.AlbumRenamer and types.LegacyResolver as optional capabilities.
type Adapter struct {
	backend types.Backend
	signer  types.URLSigner
	cache   *cache.Store
	logger  *slog.Logger

	publicBaseURL string
	signedURLTTL  time.Duration

	urlMu    sync.Mutex
	urlCache map[string]signedURL
}

// Interface conformance.
var (
	_ types.Provider       = (*Adapter)(nil)
	_ types.AlbumRenamer   = (*Adapter)(nil)
	_ types.LegacyResolver = (*Adapter)(nil)
)

// New constructs the adapter with a real S3 backend.
func New(ctx context.Context, cfg *Config, store *cache.Store, logger *slog.Logger, collector types.MetricsCollector) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrCodeValidationFailed, "objectstore config is required").
			WithComponent(component)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := NewS3Backend(ctx, cfg.Backend, logger, collector)
	if err != nil {
		return nil, err
	}

	return NewWithBackend(backend, backend, cfg, store, logger), nil
}

// NewWithBackend constructs the adapter over any Backend implementation.
// signer may be nil when cfg.PublicBaseURL is set.
func NewWithBackend(backend types.Backend, signer types.URLSigner, cfg *Config, store *cache.Store, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}

	return &Adapter{
		backend:       backend,
		signer:        signer,
		cache:         store,
		logger:        logger,
		publicBaseURL: cfg.PublicBaseURL,
		signedURLTTL:  ttl,
		urlCache:      make(map[string]signedURL),
	}
}

// Supports reports the adapter's optional capabilities.
func (a *Adapter) Supports(c types.Capability) bool {
	switch c {
	case types.CapabilityRename, types.CapabilityLegacyResolve:
		return true
	}
	return false
}

func (a *Adapter) cacheKey(parts ...string) string {
	key := "objectstore"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// --- album documents ---

func (a *Adapter) getAlbumDoc(ctx context.Context, id string) (*types.Album, error) {
	data, err := a.backend.GetObject(ctx, albumMetaKey(id))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.AlbumNotFound(id).WithComponent(component)
		}
		return nil, err
	}

	var album types.Album
	if err := json.Unmarshal(data, &album); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageRead, "album document unparseable", err).
			WithComponent(component).WithTarget(id)
	}
	return &album, nil
}

func (a *Adapter) putAlbumDoc(ctx context.Context, album *types.Album) error {
	album.ImageCount = len(album.ImageIDs)

	data, err := json.Marshal(album)
	if err != nil {
		return err
	}
	if err := a.backend.PutObject(ctx, albumMetaKey(album.ID), data); err != nil {
		return err
	}

	a.cache.Invalidate(a.cacheKey("album", album.ID))
	a.cache.InvalidatePattern(a.cacheKey("albums"))
	return nil
}

// ListAlbums returns one page of albums in reverse-creation order, preferring
// the index document over a per-album scan.
func (a *Adapter) ListAlbums(ctx context.Context, page int) ([]types.Album, error) {
	albums, err := cache.Cached(ctx, a.cache, a.cacheKey("albums", "all"),
		cache.Options{TTL: cache.TTLShort}, a.allAlbums)
	if err != nil {
		return nil, err
	}

	sort.Slice(albums, func(i, j int) bool {
		return albums[i].CreatedAt.After(albums[j].CreatedAt)
	})

	if page < 0 {
		page = 0
	}
	start := page * types.AlbumPageSize
	if start >= len(albums) {
		return []types.Album{}, nil
	}
	end := start + types.AlbumPageSize
	if end > len(albums) {
		end = len(albums)
	}
	return albums[start:end], nil
}

// GetAlbum returns the album plus the slice of its ordered image list
// selected by q. Member image metadata documents are fetched with a
// fan-out batch bounded by the requested slice size.
func (a *Adapter) GetAlbum(ctx context.Context, id string, q types.AlbumQuery) (*types.AlbumDetail, error) {
	album, err := a.getAlbumDoc(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := q.Slice(album.ImageIDs)
	images := make([]types.Image, 0, len(ids))

	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, imageID := range ids {
			keys[i] = imageMetaKey(id, imageID)
		}

		docs, err := a.backend.GetObjects(ctx, keys)
		if err != nil {
			return nil, err
		}

		// Preserve the album's stored ordering, not the batch arrival
		// order.
		for i, imageID := range ids {
			data, ok := docs[keys[i]]
			if !ok {
				a.logger.Warn("member image metadata missing",
					"album", id, "image", imageID)
				continue
			}
			img, err := a.decodeImageDoc(ctx, data)
			if err != nil {
				a.logger.Warn("member image metadata unparseable",
					"album", id, "image", imageID, "error", err)
				continue
			}
			images = append(images, *img)
		}
	}

	detail := &types.AlbumDetail{Album: *album, Images: images}
	if album.CoverImageID != "" {
		for i := range images {
			if images[i].ID == album.CoverImageID {
				detail.CoverURL = images[i].URL
				break
			}
		}
		// The cover may fall outside the requested slice; resolve it from
		// its own document so windowed reads still carry a cover URL.
		if detail.CoverURL == "" {
			if cover, err := a.getImage(ctx, album.CoverImageID); err == nil {
				detail.CoverURL = cover.URL
			} else {
				a.logger.Warn("cover image unresolvable",
					"album", id, "image", album.CoverImageID, "error", err)
			}
		}
	}
	return detail, nil
}

// CreateAlbum creates a new, empty album. Custom ids are validated and
// checked for collisions before anything is written.
func (a *Adapter) CreateAlbum(ctx context.Context, req types.CreateAlbumRequest) (*types.Album, error) {
	id := req.ID
	if id == "" {
		id = types.NewAlbumID()
	} else {
		if !types.ValidAlbumID(id) {
			return nil, errors.NewError(errors.ErrCodeInvalidAlbumID,
				fmt.Sprintf("album id %q is not a valid identifier", id)).
				WithComponent(component).WithOperation("CreateAlbum")
		}
		if _, err := a.backend.HeadObject(ctx, albumMetaKey(id)); err == nil {
			return nil, errors.NewError(errors.ErrCodeDuplicateAlbumID,
				fmt.Sprintf("album id %q already exists", id)).
				WithComponent(component).WithOperation("CreateAlbum")
		} else if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	privacy := req.Privacy
	if privacy == "" {
		privacy = types.PrivacyPrivate
	}
	if !privacy.Valid() {
		return nil, errors.NewError(errors.ErrCodeInvalidPayload,
			fmt.Sprintf("unknown privacy level %q", req.Privacy)).
			WithComponent(component).WithOperation("CreateAlbum")
	}

	album := &types.Album{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Privacy:     privacy,
		EventDate:   req.EventDate,
		ImageIDs:    []string{},
		CreatedAt:   time.Now(),
	}

	if err := a.putAlbumDoc(ctx, album); err != nil {
		return nil, err
	}

	a.upsertIndexEntry(ctx, album)
	return album, nil
}

// UpdateAlbum applies a partial update. A non-nil ImageIDs reorders the
// authoritative list and must be a permutation of the current membership.
func (a *Adapter) UpdateAlbum(ctx context.Context, id string, upd types.AlbumUpdate) (*types.Album, error) {
	album, err := a.getAlbumDoc(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		album.Title = *upd.Title
	}
	if upd.Description != nil {
		album.Description = *upd.Description
	}
	if upd.Privacy != nil {
		if !upd.Privacy.Valid() {
			return nil, errors.NewError(errors.ErrCodeInvalidPayload,
				fmt.Sprintf("unknown privacy level %q", *upd.Privacy)).
				WithComponent(component).WithOperation("UpdateAlbum").WithTarget(id)
		}
		album.Privacy = *upd.Privacy
	}
	if upd.EventDate != nil {
		album.EventDate = upd.EventDate
	}
	if upd.CoverImageID != nil {
		cover := *upd.CoverImageID
		if cover != "" && !contains(album.ImageIDs, cover) {
			return nil, errors.NewError(errors.ErrCodeInvalidPayload,
				fmt.Sprintf("cover image %q is not an album member", cover)).
				WithComponent(component).WithOperation("UpdateAlbum").WithTarget(id)
		}
		album.CoverImageID = cover
	}
	if upd.ImageIDs != nil {
		if !samePermutation(album.ImageIDs, upd.ImageIDs) {
			return nil, errors.NewError(errors.ErrCodeInvalidPayload,
				"imageIds must be a permutation of the current membership").
				WithComponent(component).WithOperation("UpdateAlbum").WithTarget(id)
		}
		album.ImageIDs = append([]string(nil), upd.ImageIDs...)
	}

	if err := a.putAlbumDoc(ctx, album); err != nil {
		return nil, err
	}

	a.upsertIndexEntry(ctx, album)
	return album, nil
}

// DeleteAlbum removes the member objects under the album's prefix, then the
// album document, then the index entry. The album document goes last so a
// mid-sequence failure leaves the album readable and repairable.
func (a *Adapter) DeleteAlbum(ctx context.Context, id string) error {
	if _, err := a.getAlbumDoc(ctx, id); err != nil {
		return err
	}

	objects, err := a.backend.ListObjects(ctx, albumPrefix(id), 0)
	if err != nil {
		return err
	}
	docKey := albumMetaKey(id)
	for _, obj := range objects {
		if obj.Key == docKey {
			continue
		}
		if err := a.backend.DeleteObject(ctx, obj.Key); err != nil {
			return errors.Wrap(errors.ErrCodeStorageWrite, "album delete incomplete", err).
				WithComponent(component).WithOperation("DeleteAlbum").WithTarget(id)
		}
	}
	if err := a.backend.DeleteObject(ctx, docKey); err != nil {
		return errors.Wrap(errors.ErrCodeStorageWrite, "album delete incomplete", err).
			WithComponent(component).WithOperation("DeleteAlbum").WithTarget(id)
	}

	a.removeIndexEntry(ctx, id)
	a.cache.InvalidatePattern(id)
	a.dropURLs(albumPrefix(id))
	return nil
}

// ResolveLegacyID maps a legacy external identifier to the current album id.
func (a *Adapter) ResolveLegacyID(ctx context.Context, legacyID string) (string, error) {
	albums, err := a.allAlbums(ctx)
	if err != nil {
		return "", err
	}
	for _, album := range albums {
		if album.LegacyID == legacyID {
			return album.ID, nil
		}
	}
	return "", errors.NewError(errors.ErrCodeAlbumNotFound,
		fmt.Sprintf("no album with legacy id %q", legacyID)).
		WithComponent(component).WithOperation("ResolveLegacyID")
}

// --- authentication surface ---

// IsAuthenticated always reports true: the adapter runs behind a server-side
// proxy boundary and holds backend credentials from configuration.
func (a *Adapter) IsAuthenticated() bool { return true }

// Authenticate verifies the backend connection.
func (a *Adapter) Authenticate(ctx context.Context) error {
	return a.backend.HealthCheck(ctx)
}

// RefreshCredentials is a no-op; backend credentials are static.
func (a *Adapter) RefreshCredentials(ctx context.Context) error { return nil }

// AccountInfo returns a diagnostic summary of the store.
func (a *Adapter) AccountInfo(ctx context.Context) (*types.AccountInfo, error) {
	albums, err := a.allAlbums(ctx)
	if err != nil {
		return nil, err
	}
	return &types.AccountInfo{
		Provider:      "objectstore",
		Authenticated: true,
		AlbumCount:    len(albums),
		Details: map[string]string{
			"public_base_url": a.publicBaseURL,
		},
	}, nil
}

// --- helpers ---

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// samePermutation reports whether a and b hold the same ids, in any order.
func samePermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}
