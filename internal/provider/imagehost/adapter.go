package imagehost

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/galleryfs/galleryfs/internal/cache"
	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// albumResource is the host's album wire shape.
type albumResource struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Cover       string          `json:"cover"`
	CoverURL    string          `json:"cover_url"`
	Privacy     string          `json:"privacy"`
	Datetime    int64           `json:"datetime"`
	ImagesCount int             `json:"images_count"`
	Views       int64           `json:"views"`
	Images      []imageResource `json:"images"`
}

// imageResource is the host's image wire shape.
type imageResource struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Type        string `json:"type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Size        int64  `json:"size"`
	Views       int64  `json:"views"`
	Datetime    int64  `json:"datetime"`
	Animated    bool   `json:"animated"`
	AlbumID     string `json:"album_id"`
}

// accountResource is the host's account summary wire shape.
type accountResource struct {
	URL        string `json:"url"`
	Reputation int64  `json:"reputation"`
	Created    int64  `json:"created"`
}

// Adapter implements types.Provider over the REST image host. It satisfies
// types.LegacyResolver; rename is not supported by the host.
type Adapter struct {
	client *client
	cache  *cache.Store
	logger *slog.Logger
}

var (
	_ types.Provider       = (*Adapter)(nil)
	_ types.LegacyResolver = (*Adapter)(nil)
)

// New constructs the image-host adapter.
func New(cfg *Config, store *cache.Store, logger *slog.Logger) (*Adapter, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.NewError(errors.ErrCodeValidationFailed, "imagehost base URL is required").
			WithComponent(component)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client: newClient(cfg, logger),
		cache:  store,
		logger: logger,
	}, nil
}

// Supports reports the adapter's optional capabilities. The host has no
// rename primitive and copying every image through the public internet to
// fake one is not worth it.
func (a *Adapter) Supports(c types.Capability) bool {
	return c == types.CapabilityLegacyResolve
}

func (a *Adapter) cacheKey(parts ...string) string {
	key := "imagehost"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// --- privacy mapping ---

func privacyFromHost(p string) types.Privacy {
	switch p {
	case "public":
		return types.PrivacyPublic
	case "hidden":
		return types.PrivacyUnlisted
	case "secret":
		return types.PrivacyPrivate
	}
	return types.PrivacyPrivate
}

func privacyToHost(p types.Privacy) string {
	switch p {
	case types.PrivacyPublic:
		return "public"
	case types.PrivacyUnlisted:
		return "hidden"
	}
	return "secret"
}

// --- wire mapping ---

func (r *albumResource) toAlbum() types.Album {
	album := types.Album{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		CoverImageID: r.Cover,
		CoverURL:     r.CoverURL,
		ImageCount:   r.ImagesCount,
		CreatedAt:    time.Unix(r.Datetime, 0),
		Privacy:      privacyFromHost(r.Privacy),
		Views:        r.Views,
		LegacyID:     r.ID,
	}
	for _, img := range r.Images {
		album.ImageIDs = append(album.ImageIDs, img.ID)
	}
	if album.ImageIDs == nil {
		album.ImageIDs = []string{}
	}
	if len(album.ImageIDs) > 0 {
		album.ImageCount = len(album.ImageIDs)
	}
	return album
}

func (r *imageResource) toImage() types.Image {
	return types.Image{
		ID:          r.ID,
		URL:         r.Link,
		ThumbURL:    r.Link,
		Title:       r.Title,
		Description: r.Description,
		Size:        r.Size,
		MIMEType:    r.Type,
		Width:       r.Width,
		Height:      r.Height,
		CreatedAt:   time.Unix(r.Datetime, 0),
		Views:       r.Views,
		Animated:    r.Animated,
		OwningAlbum: r.AlbumID,
	}
}

// --- albums ---

// ListAlbums returns one page of the account's albums in reverse-creation
// order.
func (a *Adapter) ListAlbums(ctx context.Context, page int) ([]types.Album, error) {
	if page < 0 {
		page = 0
	}
	return cache.Cached(ctx, a.cache, a.cacheKey("albums", strconv.Itoa(page)),
		cache.Options{TTL: cache.TTLShort}, func(ctx context.Context) ([]types.Album, error) {
			var resources []albumResource
			resource := fmt.Sprintf("account/me/albums/%d", page)
			if err := a.client.do(ctx, http.MethodGet, resource, nil, &resources); err != nil {
				return nil, err
			}
			albums := make([]types.Album, 0, len(resources))
			for i := range resources {
				albums = append(albums, resources[i].toAlbum())
			}
			return albums, nil
		})
}

// GetAlbum returns the album and the query's slice of its ordered images. The
// host returns full albums; slicing happens locally.
func (a *Adapter) GetAlbum(ctx context.Context, id string, q types.AlbumQuery) (*types.AlbumDetail, error) {
	resource, err := cache.Cached(ctx, a.cache, a.cacheKey("album", id),
		cache.Options{TTL: cache.TTLDefault}, func(ctx context.Context) (*albumResource, error) {
			var res albumResource
			if err := a.client.do(ctx, http.MethodGet, "album/"+url.PathEscape(id), nil, &res); err != nil {
				return nil, translateNotFound(err, id)
			}
			return &res, nil
		})
	if err != nil {
		return nil, err
	}

	album := resource.toAlbum()
	detail := &types.AlbumDetail{Album: album}
	for _, imageID := range q.Slice(album.ImageIDs) {
		for i := range resource.Images {
			if resource.Images[i].ID == imageID {
				detail.Images = append(detail.Images, resource.Images[i].toImage())
				break
			}
		}
	}
	if detail.Images == nil {
		detail.Images = []types.Image{}
	}
	return detail, nil
}

// CreateAlbum creates a new, empty album. Identifiers are host-assigned;
// requesting a custom id is a validation error.
func (a *Adapter) CreateAlbum(ctx context.Context, req types.CreateAlbumRequest) (*types.Album, error) {
	if req.ID != "" {
		return nil, errors.NewError(errors.ErrCodeInvalidAlbumID,
			"the image host assigns album ids; custom ids are not supported").
			WithComponent(component).WithOperation("CreateAlbum")
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

	body := map[string]string{
		"title":       req.Title,
		"description": req.Description,
		"privacy":     privacyToHost(privacy),
	}
	var created albumResource
	if err := a.client.do(ctx, http.MethodPost, "album", body, &created); err != nil {
		return nil, err
	}

	a.cache.InvalidatePattern(a.cacheKey("albums"))

	album := created.toAlbum()
	album.Title = req.Title
	album.Description = req.Description
	album.Privacy = privacy
	if album.CreatedAt.IsZero() || created.Datetime == 0 {
		album.CreatedAt = time.Now()
	}
	album.EventDate = req.EventDate
	return &album, nil
}

// UpdateAlbum applies a partial update. Reordering validates the new id list
// against current membership before any network write.
func (a *Adapter) UpdateAlbum(ctx context.Context, id string, upd types.AlbumUpdate) (*types.Album, error) {
	body := map[string]any{}
	if upd.Title != nil {
		body["title"] = *upd.Title
	}
	if upd.Description != nil {
		body["description"] = *upd.Description
	}
	if upd.Privacy != nil {
		if !upd.Privacy.Valid() {
			return nil, errors.NewError(errors.ErrCodeInvalidPayload,
				fmt.Sprintf("unknown privacy level %q", *upd.Privacy)).
				WithComponent(component).WithOperation("UpdateAlbum").WithTarget(id)
		}
		body["privacy"] = privacyToHost(*upd.Privacy)
	}

	var current *types.AlbumDetail
	if upd.ImageIDs != nil || upd.CoverImageID != nil {
		var err error
		current, err = a.GetAlbum(ctx, id, types.AlbumQuery{ImageLimit: 1})
		if err != nil {
			return nil, err
		}
	}
	if upd.ImageIDs != nil {
		if !samePermutation(current.ImageIDs, upd.ImageIDs) {
			return nil, errors.NewError(errors.ErrCodeInvalidPayload,
				"imageIds must be a permutation of the current membership").
				WithComponent(component).WithOperation("UpdateAlbum").WithTarget(id)
		}
		body["ids"] = strings.Join(upd.ImageIDs, ",")
	}
	if upd.CoverImageID != nil {
		cover := *upd.CoverImageID
		members := current.ImageIDs
		if upd.ImageIDs != nil {
			members = upd.ImageIDs
		}
		if cover != "" && !containsID(members, cover) {
			return nil, errors.NewError(errors.ErrCodeInvalidPayload,
				fmt.Sprintf("cover image %q is not an album member", cover)).
				WithComponent(component).WithOperation("UpdateAlbum").WithTarget(id)
		}
		body["cover"] = cover
	}

	if err := a.client.do(ctx, http.MethodPut, "album/"+url.PathEscape(id), body, nil); err != nil {
		return nil, err
	}

	a.invalidateAlbum(id)
	detail, err := a.GetAlbum(ctx, id, types.AlbumQuery{ImageLimit: 1})
	if err != nil {
		return nil, err
	}
	return &detail.Album, nil
}

// DeleteAlbum removes an album. The host keeps member images as standalone.
func (a *Adapter) DeleteAlbum(ctx context.Context, id string) error {
	if err := a.client.do(ctx, http.MethodDelete, "album/"+url.PathEscape(id), nil, nil); err != nil {
		return translateNotFound(err, id)
	}
	a.invalidateAlbum(id)
	return nil
}

// ResolveLegacyID verifies a legacy album id is still addressable and returns
// the current id. Host ids are stable, so this is a checked identity map.
func (a *Adapter) ResolveLegacyID(ctx context.Context, legacyID string) (string, error) {
	detail, err := a.GetAlbum(ctx, legacyID, types.AlbumQuery{ImageLimit: 1})
	if err != nil {
		return "", err
	}
	return detail.ID, nil
}

// --- images ---

// ListImages returns one page of the account's images.
func (a *Adapter) ListImages(ctx context.Context, page int) ([]types.Image, error) {
	if page < 0 {
		page = 0
	}
	return cache.Cached(ctx, a.cache, a.cacheKey("images", strconv.Itoa(page)),
		cache.Options{TTL: cache.TTLShort}, func(ctx context.Context) ([]types.Image, error) {
			var resources []imageResource
			resource := fmt.Sprintf("account/me/images/%d", page)
			if err := a.client.do(ctx, http.MethodGet, resource, nil, &resources); err != nil {
				return nil, err
			}
			images := make([]types.Image, 0, len(resources))
			for i := range resources {
				images = append(images, resources[i].toImage())
			}
			return images, nil
		})
}

// GetImage returns a single image by id.
func (a *Adapter) GetImage(ctx context.Context, id string) (*types.Image, error) {
	return cache.Cached(ctx, a.cache, a.cacheKey("image", id),
		cache.Options{TTL: cache.TTLDefault}, func(ctx context.Context) (*types.Image, error) {
			var res imageResource
			if err := a.client.do(ctx, http.MethodGet, "image/"+url.PathEscape(id), nil, &res); err != nil {
				return nil, translateImageNotFound(err, id)
			}
			img := res.toImage()
			return &img, nil
		})
}

// UploadImage uploads image bytes as base64, optionally directly into an
// album.
func (a *Adapter) UploadImage(ctx context.Context, req types.UploadRequest) (*types.Image, error) {
	if len(req.Data) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidPayload, "upload payload is empty").
			WithComponent(component).WithOperation("UploadImage")
	}

	body := map[string]string{
		"image":       base64.StdEncoding.EncodeToString(req.Data),
		"type":        "base64",
		"name":        req.FileName,
		"title":       req.Title,
		"description": req.Description,
	}
	if req.AlbumID != "" {
		body["album"] = req.AlbumID
	}

	var created imageResource
	if err := a.client.do(ctx, http.MethodPost, "upload", body, &created); err != nil {
		return nil, err
	}

	if req.AlbumID != "" {
		a.invalidateAlbum(req.AlbumID)
	}
	a.cache.InvalidatePattern(a.cacheKey("images"))

	img := created.toImage()
	if req.AlbumID != "" && img.OwningAlbum == "" {
		img.OwningAlbum = req.AlbumID
	}
	return &img, nil
}

// UpdateImage applies a partial metadata update.
func (a *Adapter) UpdateImage(ctx context.Context, id string, upd types.ImageUpdate) (*types.Image, error) {
	body := map[string]string{}
	if upd.Title != nil {
		body["title"] = *upd.Title
	}
	if upd.Description != nil {
		body["description"] = *upd.Description
	}

	if err := a.client.do(ctx, http.MethodPut, "image/"+url.PathEscape(id), body, nil); err != nil {
		return nil, translateImageNotFound(err, id)
	}

	a.cache.Invalidate(a.cacheKey("image", id))
	return a.GetImage(ctx, id)
}

// DeleteImage removes an image. The host unlinks it from any album itself.
func (a *Adapter) DeleteImage(ctx context.Context, id string) error {
	if err := a.client.do(ctx, http.MethodDelete, "image/"+url.PathEscape(id), nil, nil); err != nil {
		return translateImageNotFound(err, id)
	}
	a.cache.Invalidate(a.cacheKey("image", id))
	a.cache.InvalidatePattern(a.cacheKey("images"))
	a.cache.InvalidatePattern(a.cacheKey("album"))
	return nil
}

// --- membership ---

// AddImagesToAlbum adds images to an album's membership. Already-member ids
// are filtered out locally, so repeated calls are no-ops.
func (a *Adapter) AddImagesToAlbum(ctx context.Context, albumID string, imageIDs []string) (*types.Album, error) {
	detail, err := a.GetAlbum(ctx, albumID, types.AlbumQuery{ImageLimit: 1})
	if err != nil {
		return nil, err
	}

	var toAdd []string
	for _, id := range imageIDs {
		if !containsID(detail.ImageIDs, id) && !containsID(toAdd, id) {
			toAdd = append(toAdd, id)
		}
	}
	if len(toAdd) == 0 {
		return &detail.Album, nil
	}

	body := map[string]string{"ids": strings.Join(toAdd, ",")}
	resource := "album/" + url.PathEscape(albumID) + "/add"
	if err := a.client.do(ctx, http.MethodPost, resource, body, nil); err != nil {
		return nil, err
	}

	a.invalidateAlbum(albumID)
	detail, err = a.GetAlbum(ctx, albumID, types.AlbumQuery{ImageLimit: 1})
	if err != nil {
		return nil, err
	}
	return &detail.Album, nil
}

// RemoveImagesFromAlbum removes images from an album's membership. Images
// themselves survive as standalone.
func (a *Adapter) RemoveImagesFromAlbum(ctx context.Context, albumID string, imageIDs []string) (*types.Album, error) {
	detail, err := a.GetAlbum(ctx, albumID, types.AlbumQuery{ImageLimit: 1})
	if err != nil {
		return nil, err
	}

	var toRemove []string
	for _, id := range imageIDs {
		if containsID(detail.ImageIDs, id) && !containsID(toRemove, id) {
			toRemove = append(toRemove, id)
		}
	}
	if len(toRemove) == 0 {
		return &detail.Album, nil
	}

	body := map[string]string{"ids": strings.Join(toRemove, ",")}
	resource := "album/" + url.PathEscape(albumID) + "/remove_images"
	if err := a.client.do(ctx, http.MethodPost, resource, body, nil); err != nil {
		return nil, err
	}

	a.invalidateAlbum(albumID)
	detail, err = a.GetAlbum(ctx, albumID, types.AlbumQuery{ImageLimit: 1})
	if err != nil {
		return nil, err
	}
	return &detail.Album, nil
}

// --- authentication surface ---

// IsAuthenticated reports whether a bearer token is held locally. It does not
// verify the token against the host; Authenticate does.
func (a *Adapter) IsAuthenticated() bool {
	return a.client.token() != ""
}

// Authenticate verifies the current token by fetching the account summary.
func (a *Adapter) Authenticate(ctx context.Context) error {
	if a.client.token() == "" {
		return errors.NewError(errors.ErrCodeCredentialsMissing, "no access token configured").
			WithComponent(component)
	}
	var account accountResource
	return a.client.do(ctx, http.MethodGet, "account/me", nil, &account)
}

// RefreshCredentials exchanges the refresh token for a new access token.
func (a *Adapter) RefreshCredentials(ctx context.Context) error {
	return a.client.refresh(ctx)
}

// AccountInfo returns the host account summary.
func (a *Adapter) AccountInfo(ctx context.Context) (*types.AccountInfo, error) {
	var account accountResource
	if err := a.client.do(ctx, http.MethodGet, "account/me", nil, &account); err != nil {
		return nil, err
	}
	return &types.AccountInfo{
		Provider:      "imagehost",
		Username:      account.URL,
		Authenticated: a.IsAuthenticated(),
		Details: map[string]string{
			"reputation": strconv.FormatInt(account.Reputation, 10),
		},
	}, nil
}

// --- helpers ---

func (a *Adapter) invalidateAlbum(id string) {
	a.cache.Invalidate(a.cacheKey("album", id))
	a.cache.InvalidatePattern(a.cacheKey("albums"))
}

func translateNotFound(err error, albumID string) error {
	if errors.IsNotFound(err) {
		return errors.AlbumNotFound(albumID).WithComponent(component).WithCause(err)
	}
	return err
}

func translateImageNotFound(err error, imageID string) error {
	if errors.IsNotFound(err) {
		return errors.ImageNotFound(imageID).WithComponent(component).WithCause(err)
	}
	return err
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

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
