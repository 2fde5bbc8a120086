/*
Package objectstore adapts an S3-compatible object store, which has no native
album concept, to the types.Provider contract.

Albums, images, and the album index exist only as conventionally-keyed JSON
documents plus binary objects:

	albums/{albumID}/album.json          album metadata (authoritative)
	albums/{albumID}/meta/{imageID}.json per-image metadata
	albums/{albumID}/files/{imageID}.ext image bytes
	albums/index.json                    derived album index
	library/meta/{imageID}.json          standalone image metadata
	library/files/{imageID}.ext          standalone image bytes

The store offers no multi-key atomicity, so every multi-document mutation is a
manually sequenced series of writes ordered so that partial failure leaves the
system diagnosable and repairable: new/derived state is always written and
verified before old/authoritative state is destroyed.

The album index is a derived, rebuildable view, never a source of truth.
Index maintenance after album mutations is best-effort; failures are logged
and counted but never fail the primary operation. RebuildIndex reconstructs it
from the per-album documents at any time.
*/
package objectstore
