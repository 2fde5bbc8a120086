// Package provider selects and constructs the configured storage backend
// behind the common provider contract.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/galleryfs/galleryfs/internal/cache"
	"github.com/galleryfs/galleryfs/internal/provider/imagehost"
	"github.com/galleryfs/galleryfs/internal/provider/objectstore"
	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// Known backend types.
const (
	TypeImageHost   = "imagehost"
	TypeObjectStore = "objectstore"
)

// Config represents provider selection and per-backend settings.
type Config struct {
	// Type selects the backend: "imagehost" or "objectstore".
	Type string `yaml:"type"`

	ImageHost   *imagehost.Config   `yaml:"imagehost"`
	ObjectStore *objectstore.Config `yaml:"objectstore"`
}

// New constructs the configured backend adapter. The cache store is shared
// by all adapters and owned by the caller.
func New(ctx context.Context, cfg *Config, store *cache.Store, logger *slog.Logger, collector types.MetricsCollector) (types.Provider, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrCodeValidationFailed, "provider config is required")
	}

	switch cfg.Type {
	case TypeImageHost:
		return imagehost.New(cfg.ImageHost, store, logger)
	case TypeObjectStore:
		return objectstore.New(ctx, cfg.ObjectStore, store, logger, collector)
	default:
		return nil, errors.NewError(errors.ErrCodeValidationFailed,
			fmt.Sprintf("unknown provider type %q", cfg.Type))
	}
}

// RenameAlbum invokes the rename capability when the provider has it.
// Providers without the capability yield a distinct capability-unsupported
// error, not a failure of the operation itself.
func RenameAlbum(ctx context.Context, p types.Provider, oldID, newID string, progress types.ProgressFunc) error {
	renamer, ok := p.(types.AlbumRenamer)
	if !ok || !p.Supports(types.CapabilityRename) {
		return errors.NewError(errors.ErrCodeCapabilityUnsupported,
			"this provider cannot rename albums")
	}
	return renamer.RenameAlbum(ctx, oldID, newID, progress)
}

// ResolveLegacyID invokes the legacy-resolution capability when the provider
// has it.
func ResolveLegacyID(ctx context.Context, p types.Provider, legacyID string) (string, error) {
	resolver, ok := p.(types.LegacyResolver)
	if !ok || !p.Supports(types.CapabilityLegacyResolve) {
		return "", errors.NewError(errors.ErrCodeCapabilityUnsupported,
			"this provider cannot resolve legacy identifiers")
	}
	return resolver.ResolveLegacyID(ctx, legacyID)
}
