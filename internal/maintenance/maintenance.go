// Package maintenance is the operational repair surface over an object-store
// backed gallery: album-index rebuild, per-album metadata reconciliation, and
// orphan detection. It drives the same adapter code paths the running
// application uses, so key templates and consistency ordering stay identical.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/galleryfs/galleryfs/internal/provider/objectstore"
	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

const component = "maintenance"

// Store is the repair surface the runner drives. *objectstore.Adapter
// satisfies it.
type Store interface {
	ListAlbums(ctx context.Context, page int) ([]types.Album, error)
	RebuildIndex(ctx context.Context) (int, error)
	RepairAlbum(ctx context.Context, albumID string) (*types.RepairReport, error)
	FindOrphans(ctx context.Context) (*objectstore.OrphanReport, error)
}

// Runner executes maintenance passes.
type Runner struct {
	store  Store
	logger *slog.Logger
}

// Report aggregates the results of a full maintenance pass.
type Report struct {
	IndexedAlbums  int                       `json:"indexedAlbums"`
	RepairedAlbums int                       `json:"repairedAlbums"`
	Checked        int                       `json:"checked"`
	Fixed          int                       `json:"fixed"`
	Orphans        *objectstore.OrphanReport `json:"orphans"`
	Errors         []string                  `json:"errors"`
}

// New creates a maintenance runner over the given store.
func New(store Store, logger *slog.Logger) (*Runner, error) {
	if store == nil {
		return nil, errors.NewError(errors.ErrCodeValidationFailed, "store is required").
			WithComponent(component)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:  store,
		logger: logger.With("component", component),
	}, nil
}

// RebuildIndex reconstructs the album index from the per-album documents.
func (r *Runner) RebuildIndex(ctx context.Context) (int, error) {
	count, err := r.store.RebuildIndex(ctx)
	if err != nil {
		return 0, err
	}
	r.logger.Info("index rebuilt", "albums", count)
	return count, nil
}

// RepairAll reconciles membership references for every album. Per-album
// failures are collected, not fatal, so one corrupt album cannot block the
// pass.
func (r *Runner) RepairAll(ctx context.Context) (*Report, error) {
	report := &Report{Errors: []string{}}

	for page := 0; ; page++ {
		albums, err := r.store.ListAlbums(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, album := range albums {
			rr, err := r.store.RepairAlbum(ctx, album.ID)
			if err != nil {
				r.logger.Warn("album repair failed", "album", album.ID, "error", err)
				report.Errors = append(report.Errors,
					fmt.Sprintf("%s: %v", album.ID, err))
				continue
			}
			report.RepairedAlbums++
			report.Checked += rr.Checked
			report.Fixed += rr.Fixed
			report.Errors = append(report.Errors, rr.Errors...)
		}
		if len(albums) < types.AlbumPageSize {
			break
		}
	}

	r.logger.Info("repair pass complete",
		"albums", report.RepairedAlbums,
		"checked", report.Checked,
		"fixed", report.Fixed,
		"errors", len(report.Errors))
	return report, nil
}

// FindOrphans scans for binaries without metadata and metadata without
// binaries.
func (r *Runner) FindOrphans(ctx context.Context) (*objectstore.OrphanReport, error) {
	return r.store.FindOrphans(ctx)
}

// Run executes a full maintenance pass: repair every album, rebuild the index
// from the repaired documents, then scan for orphans. Repair runs first so the
// rebuilt index reflects corrected membership.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report, err := r.RepairAll(ctx)
	if err != nil {
		return nil, err
	}

	indexed, err := r.RebuildIndex(ctx)
	if err != nil {
		return nil, err
	}
	report.IndexedAlbums = indexed

	orphans, err := r.store.FindOrphans(ctx)
	if err != nil {
		return nil, err
	}
	report.Orphans = orphans
	return report, nil
}
