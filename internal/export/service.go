// Package export resolves photo IDs into metadata and builds downloadable archives.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/metrics"
	"github.com/pysugar/photopick/internal/upstream"
)

const (
	DefaultItemTimeout = 30 * time.Second
	resolveConcurrency = 4
)

// Archive is a zip of the photos that could be fetched.
type Archive struct {
	Data     []byte
	Included []string
	Skipped  []string
}

// File is a single downloaded photo.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Service struct {
	logger      *zap.Logger
	metrics     *metrics.Metrics
	itemTimeout time.Duration
	now         func() time.Time
}

func New(logger *zap.Logger, mt *metrics.Metrics, itemTimeout time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if itemTimeout <= 0 {
		itemTimeout = DefaultItemTimeout
	}
	return &Service{logger: logger, metrics: mt, itemTimeout: itemTimeout, now: time.Now}
}

// ResolveMany returns one entry per id, in order. Lookups that fail yield a
// placeholder rather than an error.
func (s *Service) ResolveMany(ctx context.Context, p upstream.Provider, ids []string) []upstream.MediaItem {
	out := make([]upstream.MediaItem, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(gctx, s.itemTimeout)
			defer cancel()

			item, err := p.GetFile(itemCtx, id)
			if err != nil {
				s.logger.Warn("resolve photo failed",
					zap.String("provider", p.ID()),
					zap.String("photo_id", id),
					zap.Error(err))
				out[i] = placeholder(id)
				return nil
			}
			out[i] = *item
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func placeholder(id string) upstream.MediaItem {
	return upstream.MediaItem{ID: id, Filename: "photo_" + id + ".jpg"}
}

// ExportArchive fetches ids one at a time and zips whatever succeeds.
func (s *Service) ExportArchive(ctx context.Context, p upstream.Provider, ids []string) (*Archive, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("no photo ids provided")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := newNameSet()
	seen := make(map[string]struct{}, len(ids))
	archive := &Archive{}

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file, err := s.fetch(ctx, p, id)
		if err != nil {
			s.logger.Warn("skipping photo in export",
				zap.String("provider", p.ID()),
				zap.String("photo_id", id),
				zap.Error(err))
			archive.Skipped = append(archive.Skipped, id)
			s.metrics.ObserveExportItem(metrics.ExportSkipped)
			continue
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names.unique(file.Name),
			Method:   zip.Deflate,
			Modified: s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("create zip entry for %s: %w", id, err)
		}
		if _, err := w.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write zip entry for %s: %w", id, err)
		}
		archive.Included = append(archive.Included, id)
		s.metrics.ObserveExportItem(metrics.ExportIncluded)
	}

	if len(archive.Included) == 0 {
		return nil, apperr.NotFound(p.ID(), "no photos could be retrieved")
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	archive.Data = buf.Bytes()

	s.logger.Info("export archive built",
		zap.String("provider", p.ID()),
		zap.Int("included", len(archive.Included)),
		zap.Int("skipped", len(archive.Skipped)),
		zap.Int("bytes", len(archive.Data)))
	return archive, nil
}

// Download fetches a single photo. Unlike ExportArchive, errors are returned as-is.
func (s *Service) Download(ctx context.Context, p upstream.Provider, id string) (*File, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("photo id is required")
	}
	return s.fetch(ctx, p, id)
}

func (s *Service) fetch(ctx context.Context, p upstream.Provider, id string) (*File, error) {
	ctx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	item, err := p.GetFile(ctx, id)
	if err != nil {
		return nil, asTimeout(p.ID(), err)
	}
	content, err := p.FetchContent(ctx, *item)
	if err != nil {
		return nil, asTimeout(p.ID(), err)
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = item.MimeType
	}
	mime := item.MimeType
	if mime == "" {
		mime = contentType
	}
	return &File{Name: entryName(item.Filename, id, mime), ContentType: contentType, Data: content.Data}, nil
}

var idSanitizer = strings.NewReplacer("/", "_", `\`, "_")

// entryName reduces an upstream filename to a bare base name. Names that
// reduce to nothing usable become photo_<id>.<ext>.
func entryName(filename, id, mime string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return fmt.Sprintf("photo_%s.%s", idSanitizer.Replace(id), upstream.ExtensionFor(mime))
	}
	return name
}

// asTimeout promotes bare deadline errors into the taxonomy.
func asTimeout(provider string, err error) error {
	if apperr.KindOf(err) == "" && errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(provider, err)
	}
	return err
}

type nameSet map[string]int

func newNameSet() nameSet { return nameSet{} }

// unique returns name, or "base (n).ext" when name was already taken.
func (s nameSet) unique(name string) string {
	if _, taken := s[name]; !taken {
		s[name] = 1
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := s[name]; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, taken := s[candidate]; !taken {
			s[name] = n + 1
			s[candidate] = 1
			return candidate
		}
	}
}
