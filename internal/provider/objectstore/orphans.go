package objectstore

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/galleryfs/galleryfs/pkg/types"
)

// OrphanReport lists referential-integrity defects found by a full key-space
// scan. An orphaned binary has image bytes but no metadata document; dangling
// metadata describes an image whose bytes are gone.
type OrphanReport struct {
	Scanned          int      `json:"scanned"`
	OrphanedBinaries []string `json:"orphanedBinaries"`
	DanglingMetadata []string `json:"danglingMetadata"`
}

// FindOrphans scans every album folder and the standalone library, pairing
// binary objects with their metadata documents. It only reads; fixing what it
// finds is a separate, deliberate step.
func (a *Adapter) FindOrphans(ctx context.Context) (*OrphanReport, error) {
	report := &OrphanReport{
		OrphanedBinaries: []string{},
		DanglingMetadata: []string{},
	}

	for _, root := range []string{albumRoot, libraryRoot} {
		objects, err := a.backend.ListObjects(ctx, root, 0)
		if err != nil {
			return nil, err
		}
		report.Scanned += len(objects)
		a.pairObjects(objects, report)
	}

	sort.Strings(report.OrphanedBinaries)
	sort.Strings(report.DanglingMetadata)

	if len(report.OrphanedBinaries) > 0 || len(report.DanglingMetadata) > 0 {
		a.logger.Warn("orphan scan found defects",
			"scanned", report.Scanned,
			"orphaned_binaries", len(report.OrphanedBinaries),
			"dangling_metadata", len(report.DanglingMetadata))
	}
	return report, nil
}

// pairObjects matches files/ entries against meta/ entries per content prefix
// and records the unmatched side.
func (a *Adapter) pairObjects(objects []types.ObjectInfo, report *OrphanReport) {
	// binaries and metas keyed by "{contentPrefix}\x00{imageID}"
	binaries := make(map[string]string)
	metas := make(map[string]string)

	for _, obj := range objects {
		prefix, kind, name := splitContentKey(obj.Key)
		switch kind {
		case filesDirName:
			id := strings.TrimSuffix(name, path.Ext(name))
			binaries[prefix+"\x00"+id] = obj.Key
		case metaDirName:
			if id := imageIDFromMetaKey(obj.Key); id != "" {
				metas[prefix+"\x00"+id] = obj.Key
			}
		}
	}

	for pair, key := range binaries {
		if _, ok := metas[pair]; !ok {
			report.OrphanedBinaries = append(report.OrphanedBinaries, key)
		}
	}
	for pair, key := range metas {
		if _, ok := binaries[pair]; !ok {
			report.DanglingMetadata = append(report.DanglingMetadata, key)
		}
	}
}

// splitContentKey decomposes a key into its content prefix, the directory kind
// ("meta" or "files", "" otherwise), and the object name.
func splitContentKey(key string) (prefix, kind, name string) {
	dir, name := path.Split(key)
	trimmed := strings.TrimSuffix(dir, "/")
	parent, last := path.Split(trimmed)
	if last == metaDirName || last == filesDirName {
		return parent, last, name
	}
	return dir, "", name
}
