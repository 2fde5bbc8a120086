package objectstore

import (
	"path"
	"strings"
)

// Key templates for the three document families plus binary objects. Every
// component of the system, including out-of-process maintenance tools, must
// derive keys through these helpers so the families stay consistent.
const (
	albumRoot   = "albums/"
	libraryRoot = "library/"
	indexKey    = "albums/index.json"

	albumDocName = "album.json"
	metaDirName  = "meta"
	filesDirName = "files"
)

// albumPrefix returns the key prefix containing every object belonging to an
// album.
func albumPrefix(albumID string) string {
	return albumRoot + albumID + "/"
}

// albumMetaKey returns the key of an album's metadata document.
func albumMetaKey(albumID string) string {
	return albumPrefix(albumID) + albumDocName
}

// imageMetaKey returns the key of an image's metadata document. An empty
// albumID addresses the standalone library.
func imageMetaKey(albumID, imageID string) string {
	return contentPrefix(albumID) + metaDirName + "/" + imageID + ".json"
}

// imageDataKey returns the key of an image's binary object. ext includes the
// leading dot and may be empty.
func imageDataKey(albumID, imageID, ext string) string {
	return contentPrefix(albumID) + filesDirName + "/" + imageID + ext
}

// metaPrefix returns the key prefix of an album's image metadata documents.
func metaPrefix(albumID string) string {
	return contentPrefix(albumID) + metaDirName + "/"
}

func contentPrefix(albumID string) string {
	if albumID == "" {
		return libraryRoot
	}
	return albumPrefix(albumID)
}

// albumIDFromPrefix extracts the album id from a key under albums/, or ""
// when the key does not match.
func albumIDFromPrefix(key string) string {
	rest, ok := strings.CutPrefix(key, albumRoot)
	if !ok {
		return ""
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return id
}

// imageIDFromMetaKey extracts the image id from a metadata document key, or
// "" when the key is not one.
func imageIDFromMetaKey(key string) string {
	base := path.Base(key)
	id, ok := strings.CutSuffix(base, ".json")
	if !ok {
		return ""
	}
	return id
}

// extOf returns the lower-cased file extension of name including the leading
// dot, or "" when name has none.
func extOf(name string) string {
	return strings.ToLower(path.Ext(name))
}

// rewriteAlbumPrefix maps a key under oldID's prefix to the corresponding key
// under newID's prefix.
func rewriteAlbumPrefix(key, oldID, newID string) string {
	return albumPrefix(newID) + strings.TrimPrefix(key, albumPrefix(oldID))
}
