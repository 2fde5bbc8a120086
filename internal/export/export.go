// Package export packages albums into a portable ZIP archive. It consumes
// only the read surface of the storage contract: paginated album listing,
// per-album image batch fetch, and the image URLs the adapters resolve.
package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

const component = "export"

// Config represents export service settings.
type Config struct {
	// RequestTimeout bounds each image download.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxPages caps album enumeration as a runaway guard; 0 means no cap.
	MaxPages int `yaml:"max_pages"`
}

// Service produces ZIP exports from any storage provider.
type Service struct {
	provider   types.Provider
	httpClient *http.Client
	logger     *slog.Logger
	maxPages   int
}

// Manifest is the machine-readable table of contents written at the archive
// root. It preserves ordering and ids so an archive can be re-imported.
type Manifest struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Provider    string          `json:"provider,omitempty"`
	Albums      []ManifestAlbum `json:"albums"`
}

// ManifestAlbum records one exported album and its ordered contents.
type ManifestAlbum struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Folder   string            `json:"folder"`
	ImageIDs []string          `json:"imageIds"`
	Images   []ManifestImage   `json:"images"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ManifestImage records one exported image entry.
type ManifestImage struct {
	ID       string            `json:"id"`
	FileName string            `json:"fileName"`
	Title    string            `json:"title,omitempty"`
	MIMEType string            `json:"mimeType"`
	Size     int64             `json:"size"`
	Width    int               `json:"width,omitempty"`
	Height   int               `json:"height,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Report summarizes one export run. Per-image download failures are counted
// and listed but do not abort the run.
type Report struct {
	Albums int      `json:"albums"`
	Images int      `json:"images"`
	Bytes  int64    `json:"bytes"`
	Errors []string `json:"errors"`
}

// New creates an export service over the given provider.
func New(p types.Provider, config *Config, logger *slog.Logger) (*Service, error) {
	if p == nil {
		return nil, errors.NewError(errors.ErrCodeValidationFailed, "provider is required").
			WithComponent(component)
	}
	if config == nil {
		config = &Config{}
	}
	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		provider:   p,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", component),
		maxPages:   config.MaxPages,
	}, nil
}

// ExportAlbums writes a ZIP archive of the named albums to w. With no ids it
// exports every album in the account. The archive holds one folder per album
// plus a manifest.json at the root.
func (s *Service) ExportAlbums(ctx context.Context, w io.Writer, albumIDs ...string) (*Report, error) {
	if len(albumIDs) == 0 {
		all, err := s.allAlbumIDs(ctx)
		if err != nil {
			return nil, err
		}
		albumIDs = all
	}

	zw := zip.NewWriter(w)
	report := &Report{Errors: []string{}}
	manifest := Manifest{
		GeneratedAt: time.Now().UTC(),
		Albums:      []ManifestAlbum{},
	}
	if info, err := s.provider.AccountInfo(ctx); err == nil {
		manifest.Provider = info.Provider
	}

	folders := map[string]int{}
	for _, id := range albumIDs {
		entry, err := s.exportAlbum(ctx, zw, id, folders, report)
		if err != nil {
			zw.Close()
			return nil, err
		}
		manifest.Albums = append(manifest.Albums, *entry)
		report.Albums++
	}

	if err := s.writeManifest(zw, &manifest); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, errors.NewError(errors.ErrCodeOperationFailed, "failed to finalize archive").
			WithComponent(component).WithCause(err)
	}

	s.logger.Info("export complete",
		"albums", report.Albums,
		"images", report.Images,
		"bytes", report.Bytes,
		"errors", len(report.Errors))
	return report, nil
}

// exportAlbum writes one album folder and returns its manifest entry.
func (s *Service) exportAlbum(ctx context.Context, zw *zip.Writer, albumID string, folders map[string]int, report *Report) (*ManifestAlbum, error) {
	detail, err := s.provider.GetAlbum(ctx, albumID, types.AlbumQuery{})
	if err != nil {
		return nil, err
	}

	folder := uniqueFolder(folders, detail.Title, detail.ID)
	entry := &ManifestAlbum{
		ID:       detail.ID,
		Title:    detail.Title,
		Folder:   folder,
		ImageIDs: detail.ImageIDs,
		Images:   []ManifestImage{},
		Metadata: detail.Metadata,
	}

	for i, img := range detail.Images {
		name := imageFileName(i, img)
		n, err := s.writeImage(ctx, zw, folder+"/"+name, img)
		if err != nil {
			s.logger.Warn("image download failed",
				"album", albumID, "image", img.ID, "error", err)
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s/%s: %v", albumID, img.ID, err))
			continue
		}
		entry.Images = append(entry.Images, ManifestImage{
			ID:       img.ID,
			FileName: name,
			Title:    img.Title,
			MIMEType: img.MIMEType,
			Size:     img.Size,
			Width:    img.Width,
			Height:   img.Height,
			Metadata: img.Metadata,
		})
		report.Images++
		report.Bytes += n
	}
	return entry, nil
}

// writeImage streams one image's bytes into the archive.
func (s *Service) writeImage(ctx context.Context, zw *zip.Writer, path string, img types.Image) (int64, error) {
	if img.URL == "" {
		return 0, errors.NewError(errors.ErrCodeInvalidPayload, "image has no URL").
			WithComponent(component).WithTarget(img.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, errors.NewError(errors.ErrCodeNetworkError, "image download failed").
			WithComponent(component).WithTarget(img.ID).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.NewError(errors.ErrCodeOperationFailed,
			fmt.Sprintf("image download returned status %d", resp.StatusCode)).
			WithComponent(component).WithTarget(img.ID)
	}

	fw, err := zw.Create(path)
	if err != nil {
		return 0, err
	}
	return io.Copy(fw, resp.Body)
}

// writeManifest serializes the manifest at the archive root.
func (s *Service) writeManifest(zw *zip.Writer, m *Manifest) error {
	fw, err := zw.Create("manifest.json")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// allAlbumIDs walks the paginated album listing to completion.
func (s *Service) allAlbumIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for page := 0; ; page++ {
		if s.maxPages > 0 && page >= s.maxPages {
			break
		}
		albums, err := s.provider.ListAlbums(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, a := range albums {
			ids = append(ids, a.ID)
		}
		if len(albums) < types.AlbumPageSize {
			break
		}
	}
	return ids, nil
}

// uniqueFolder derives a filesystem-safe folder name from the album title,
// disambiguating collisions with the album id.
func uniqueFolder(seen map[string]int, title, id string) string {
	name := sanitize(title)
	if name == "" {
		name = id
	}
	seen[name]++
	if seen[name] > 1 {
		name = name + " (" + id + ")"
	}
	return name
}

// sanitize strips characters that are unsafe in archive member paths.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case r < 0x20:
			// skip control characters
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(strings.Trim(b.String(), "."))
}

// imageFileName names an archive member with a stable order prefix so
// extracted folders sort in display order.
func imageFileName(index int, img types.Image) string {
	base := img.ID
	if img.Title != "" {
		base = sanitize(img.Title)
		if base == "" {
			base = img.ID
		}
	}
	return fmt.Sprintf("%03d_%s%s", index+1, base, extForMIME(img.MIMEType))
}

// extForMIME maps the common image MIME types to file extensions.
func extForMIME(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ""
	}
}
