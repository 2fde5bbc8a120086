package types

import (
	"time"
)

// Privacy represents an album's visibility setting.
type Privacy string

// Privacy levels supported by all providers.
const (
	PrivacyPublic   Privacy = "public"
	PrivacyPrivate  Privacy = "private"
	PrivacyUnlisted Privacy = "unlisted"
)

// Valid reports whether p is a known privacy level.
func (p Privacy) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyPrivate, PrivacyUnlisted:
		return true
	}
	return false
}

// AlbumPageSize is the fixed number of albums returned per page by
// Provider.ListAlbums. It is a provider-contract constant, not configurable.
const AlbumPageSize = 50

// Album represents a named, ordered collection of images in the normalized model.
type Album struct {
	// ID is an opaque identifier, provider-assigned or user-chosen.
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// CoverImageID references an id in ImageIDs, or is empty.
	CoverImageID string `json:"coverImageId,omitempty"`
	CoverURL     string `json:"coverUrl,omitempty"`

	// ImageIDs is the authoritative ordered image-id list. Ordering is the
	// user-controlled display order. ImageCount must equal len(ImageIDs)
	// after any successful mutation.
	ImageIDs   []string `json:"imageIds"`
	ImageCount int      `json:"imageCount"`

	CreatedAt time.Time `json:"createdAt"`

	// EventDate is a user-assigned calendar date, distinct from CreatedAt.
	EventDate *time.Time `json:"eventDate,omitempty"`

	Privacy Privacy `json:"privacy"`
	Views   int64   `json:"views,omitempty"`

	// LegacyID is an identifier from a previous hosting system, kept for
	// backward-compatible deep links.
	LegacyID string `json:"legacyId,omitempty"`

	// Metadata is an opaque provider-specific bag. Providers round-trip it,
	// consumers must not interpret it.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AlbumDetail is an Album plus its ordered image entities. The image sequence
// follows the album's ImageIDs ordering, possibly sliced by an AlbumQuery.
type AlbumDetail struct {
	Album
	Images []Image `json:"images"`
}

// Image represents a single image in the normalized model.
type Image struct {
	// ID is an opaque, provider-assigned identifier.
	ID  string `json:"id"`
	URL string `json:"url"`

	// ThumbURL may equal URL when the provider has no distinct thumbnail.
	ThumbURL string `json:"thumbUrl,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`

	CreatedAt time.Time `json:"createdAt"`
	Views     int64     `json:"views,omitempty"`
	Animated  bool      `json:"animated"`

	// OwningAlbum names the album this image currently belongs to, or is
	// empty for standalone images. It must match exactly one album's
	// ImageIDs membership; a mismatch is a corruption state.
	OwningAlbum string `json:"owningAlbum,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// AlbumQuery selects a contiguous slice of an album's ordered image list.
// A zero value returns the full list.
type AlbumQuery struct {
	// ImageOffset is the zero-based position of the first image returned.
	ImageOffset int
	// ImageLimit caps the number of images returned; 0 means no limit.
	ImageLimit int
}

// Slice applies the query to an ordered id list.
func (q AlbumQuery) Slice(ids []string) []string {
	if q.ImageOffset >= len(ids) {
		return nil
	}
	start := q.ImageOffset
	if start < 0 {
		start = 0
	}
	end := len(ids)
	if q.ImageLimit > 0 && start+q.ImageLimit < end {
		end = start + q.ImageLimit
	}
	return ids[start:end]
}

// CreateAlbumRequest carries the fields for creating a new, empty album.
type CreateAlbumRequest struct {
	// ID optionally requests a user-chosen identifier; empty means
	// provider-assigned.
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Privacy     Privacy    `json:"privacy,omitempty"`
	EventDate   *time.Time `json:"eventDate,omitempty"`
}

// AlbumUpdate carries a partial album update. Nil pointer fields are left
// untouched. A non-nil ImageIDs reorders the authoritative image list; it must
// be a permutation of the current membership.
type AlbumUpdate struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Privacy      *Privacy   `json:"privacy,omitempty"`
	CoverImageID *string    `json:"coverImageId,omitempty"`
	EventDate    *time.Time `json:"eventDate,omitempty"`
	ImageIDs     []string   `json:"imageIds,omitempty"`
}

// UploadRequest carries the payload for a new image upload.
type UploadRequest struct {
	// AlbumID optionally places the image directly into an album.
	AlbumID     string `json:"albumId,omitempty"`
	FileName    string `json:"fileName"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MIMEType    string `json:"mimeType"`
	Data        []byte `json:"-"`
}

// ImageUpdate carries a partial image metadata update.
type ImageUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AccountInfo is an opaque diagnostic/account-summary payload. Field presence
// is adapter-specific.
type AccountInfo struct {
	Provider      string            `json:"provider"`
	Username      string            `json:"username,omitempty"`
	Authenticated bool              `json:"authenticated"`
	AlbumCount    int               `json:"albumCount,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// Capability identifies an optional provider feature.
type Capability string

// Optional capabilities. Absence of a capability is distinguishable from
// failure: Supports returns false and the operation is never attempted.
const (
	// CapabilityRename indicates the provider can change an album's
	// identity while preserving content and relationships.
	CapabilityRename Capability = "rename_album"

	// CapabilityLegacyResolve indicates the provider can map a legacy
	// external identifier to a current album id.
	CapabilityLegacyResolve Capability = "legacy_resolve"
)

// RenameStage labels one phase of the multi-stage album rename protocol.
type RenameStage string

// Rename stages in execution order. Every stage before DeletingSource is
// abort-safe: the source album remains intact and readable.
const (
	StageValidating     RenameStage = "validating"
	StageCopying        RenameStage = "copying"
	StageWritingTarget  RenameStage = "writing_target"
	StageRepointing     RenameStage = "repointing"
	StageVerifying      RenameStage = "verifying"
	StageDeletingSource RenameStage = "deleting_source"
	StageUpdatingIndex  RenameStage = "updating_index"
	StageDone           RenameStage = "done"
)

// RenameProgress is one progress event emitted during an album rename.
type RenameProgress struct {
	Stage   RenameStage `json:"stage"`
	Percent float64     `json:"percent"`
	Detail  string      `json:"detail,omitempty"`
}

// ProgressFunc receives incremental progress events from long-running
// operations. Callbacks run synchronously from the operation and must not
// block.
type ProgressFunc func(RenameProgress)

// RepairReport summarizes a metadata reconciliation pass over one album.
type RepairReport struct {
	AlbumID string   `json:"albumId"`
	Checked int      `json:"checked"`
	Fixed   int      `json:"fixed"`
	Errors  []string `json:"errors"`
}

// ObjectInfo represents metadata about a stored object.
type ObjectInfo struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"content_type"`
	Metadata     map[string]string `json:"metadata"`
}

// CacheStats represents cache performance statistics.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Stale       uint64  `json:"stale"`
	Evictions   uint64  `json:"evictions"`
	Entries     int     `json:"entries"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}
