package types

import (
	"context"
	"time"
)

// Provider is the storage contract every backend adapter implements. All
// methods take a context and may fail; failures carry structured error codes
// from pkg/errors. No method silently swallows an error except where a
// contract explicitly names a best-effort side channel (index maintenance).
type Provider interface {
	// ListAlbums returns one page of albums in reverse-creation order.
	// Pages are zero-based and hold AlbumPageSize entries; the final page
	// may be short. Callers must not assume an upper bound on total count.
	ListAlbums(ctx context.Context, page int) ([]Album, error)

	// GetAlbum returns the album and a contiguous slice of its ordered
	// image list selected by q. A zero AlbumQuery returns every image.
	GetAlbum(ctx context.Context, id string, q AlbumQuery) (*AlbumDetail, error)

	// CreateAlbum creates a new, empty album. A requested custom id is
	// validated and rejected before any network call if malformed or
	// already taken.
	CreateAlbum(ctx context.Context, req CreateAlbumRequest) (*Album, error)

	// UpdateAlbum applies a partial update. A non-nil ImageIDs field
	// reorders the authoritative image list; it never appends.
	UpdateAlbum(ctx context.Context, id string, upd AlbumUpdate) (*Album, error)

	// DeleteAlbum removes the album, its member objects, and its index
	// entry.
	DeleteAlbum(ctx context.Context, id string) error

	// ListImages returns one page of the account's images.
	ListImages(ctx context.Context, page int) ([]Image, error)

	// GetImage returns a single image by id.
	GetImage(ctx context.Context, id string) (*Image, error)

	// UploadImage stores a new image, standalone or directly in an album.
	UploadImage(ctx context.Context, req UploadRequest) (*Image, error)

	// UpdateImage applies a partial metadata update.
	UpdateImage(ctx context.Context, id string, upd ImageUpdate) (*Image, error)

	// DeleteImage removes the image bytes, its metadata document, and the
	// membership reference held by its owning album.
	DeleteImage(ctx context.Context, id string) error

	// AddImagesToAlbum adds the given ids to the album's membership and
	// points each image's owning-album reference at the album. Adding an
	// already-member id is a no-op, not an error.
	AddImagesToAlbum(ctx context.Context, albumID string, imageIDs []string) (*Album, error)

	// RemoveImagesFromAlbum is the mirror of AddImagesToAlbum. Removing a
	// non-member id is a no-op. Removing the album's cover image clears
	// the cover reference.
	RemoveImagesFromAlbum(ctx context.Context, albumID string, imageIDs []string) (*Album, error)

	// IsAuthenticated reports whether the adapter currently holds a valid
	// credential. Exact semantics are adapter-specific.
	IsAuthenticated() bool

	// Authenticate establishes an authenticated session.
	Authenticate(ctx context.Context) error

	// RefreshCredentials renews the current credential if the adapter's
	// backend supports renewal.
	RefreshCredentials(ctx context.Context) error

	// AccountInfo returns an opaque diagnostic payload about the account.
	AccountInfo(ctx context.Context) (*AccountInfo, error)

	// Supports reports whether the provider implements the given optional
	// capability. When it returns true the corresponding capability
	// interface assertion is guaranteed to succeed.
	Supports(c Capability) bool
}

// AlbumRenamer is the optional capability of changing an album's identity
// while preserving all content and relationships. Guarded by
// CapabilityRename.
type AlbumRenamer interface {
	// RenameAlbum moves every object, metadata document, and reference
	// from oldID to newID. progress may be nil. Any failure before the
	// destructive stage leaves the source album intact.
	RenameAlbum(ctx context.Context, oldID, newID string, progress ProgressFunc) error
}

// LegacyResolver is the optional capability of mapping a legacy external
// identifier to the current album id. Guarded by CapabilityLegacyResolve.
type LegacyResolver interface {
	ResolveLegacyID(ctx context.Context, legacyID string) (string, error)
}

// Backend defines the interface for flat object storage backends. The
// object-store adapter builds its entire album system on these operations;
// keeping them behind an interface lets the consistency protocols be tested
// against an in-memory implementation with failure injection.
type Backend interface {
	// Object operations
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
	DeleteObject(ctx context.Context, key string) error
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)

	// Batch operations
	GetObjects(ctx context.Context, keys []string) (map[string][]byte, error)
	PutObjects(ctx context.Context, objects map[string][]byte) error

	// List operations
	ListObjects(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)

	// Health check
	HealthCheck(ctx context.Context) error
}

// URLSigner generates a time-limited signed URL granting temporary read
// access to a private object. Backends with a public base URL do not need it.
type URLSigner interface {
	SignGetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// MetricsCollector defines the metrics collection interface.
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(key string, size int64)
	RecordCacheMiss(key string, size int64)
	RecordError(operation string, err error)
}
