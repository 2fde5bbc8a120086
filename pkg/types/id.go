package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity id prefixes. Ids are generated as {prefix}_{timestamp}_{random} so
// they are globally unique without coordination between callers.
const (
	AlbumIDPrefix = "album"
	ImageIDPrefix = "img"
)

// albumIDPattern constrains user-chosen album identifiers: they become object
// key segments, so the character set is deliberately narrow.
var albumIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// NewID generates a new entity id with the given prefix.
func NewID(prefix string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), random)
}

// NewAlbumID generates a provider-assigned album id.
func NewAlbumID() string { return NewID(AlbumIDPrefix) }

// NewImageID generates a provider-assigned image id.
func NewImageID() string { return NewID(ImageIDPrefix) }

// ValidAlbumID reports whether id is acceptable as a user-chosen album
// identifier.
func ValidAlbumID(id string) bool {
	return albumIDPattern.MatchString(id)
}
