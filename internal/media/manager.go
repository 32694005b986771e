// Package media validates uploaded report images and moves them in and out of
// object storage. Storage failures never fail the calling request: uploads
// report the files that did not make it, removals report whether the remote
// object was deleted.
package media

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/report"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/communityconnect/connect/backend/go-services/pkg/metrics"
	"github.com/google/uuid"
)

const (
	MaxFiles    = 5
	MaxFileSize = 5 << 20
	KeyPrefix   = "reports/"
	PresignTTL  = time.Hour
	opTimeout   = 30 * time.Second
)

// Storage is the object store behind the manager.
type Storage interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by storages that can hand out temporary URLs.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// File is one uploaded file as received at the HTTP boundary.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type UploadResult struct {
	Images []report.Image
	Failed []string
}

type Manager struct {
	store Storage
	now   func() time.Time
}

// NewManager returns a manager over store. A nil store is allowed: every
// upload then fails softly and every removal reports false.
func NewManager(store Storage) *Manager {
	return &Manager{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (m *Manager) Available() bool { return m != nil && m.store != nil }

// Validate rejects the batch if it is too large or any file breaks the
// size or type limits. Nothing is transferred before Validate passes.
func (m *Manager) Validate(files []File) error {
	if len(files) > MaxFiles {
		return apperr.Validation("Too many files", fmt.Sprintf("At most %d images may be uploaded at once", MaxFiles))
	}
	var errs []string
	for _, f := range files {
		if f.Size > MaxFileSize {
			errs = append(errs, fmt.Sprintf("%s exceeds the %d MB size limit", f.Name, MaxFileSize>>20))
		}
		if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
			errs = append(errs, fmt.Sprintf("%s is not an image; only image/* files are allowed", f.Name))
		}
	}
	if len(errs) > 0 {
		return apperr.Validation("Invalid upload", errs...)
	}
	return nil
}

// Upload transfers each file under a fresh key. Files that fail are listed
// in Failed and do not abort the batch.
func (m *Manager) Upload(ctx context.Context, files []File) UploadResult {
	res := UploadResult{Images: []report.Image{}}
	for _, f := range files {
		img, err := m.uploadOne(ctx, f)
		if err != nil {
			logger.Warnf("image upload %s failed: %v", f.Name, err)
			metrics.ImageOperations.WithLabelValues("upload", "failed").Inc()
			res.Failed = append(res.Failed, f.Name)
			continue
		}
		metrics.ImageOperations.WithLabelValues("upload", "ok").Inc()
		res.Images = append(res.Images, img)
	}
	return res
}

func (m *Manager) uploadOne(ctx context.Context, f File) (report.Image, error) {
	if !m.Available() {
		return report.Image{}, apperr.Upstream("image storage is not configured", nil)
	}
	rc, err := f.Open()
	if err != nil {
		return report.Image{}, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	key := KeyPrefix + uuid.NewString() + strings.ToLower(filepath.Ext(f.Name))
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	u, err := m.store.Upload(ctx, key, rc, f.Size, f.ContentType)
	if err != nil {
		return report.Image{}, apperr.Upstream("image upload failed", err)
	}
	return report.Image{URL: u, PublicID: key, UploadedAt: m.now()}, nil
}

// Remove deletes the stored object and reports whether that succeeded.
func (m *Manager) Remove(ctx context.Context, publicID string) bool {
	if !m.Available() || publicID == "" {
		metrics.ImageOperations.WithLabelValues("delete", "skipped").Inc()
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, publicID); err != nil {
		logger.Warnf("image delete %s failed: %v", publicID, err)
		metrics.ImageOperations.WithLabelValues("delete", "failed").Inc()
		return false
	}
	metrics.ImageOperations.WithLabelValues("delete", "ok").Inc()
	return true
}

// DownloadURL returns a presigned URL for img when the storage supports it,
// and the stored URL otherwise.
func (m *Manager) DownloadURL(ctx context.Context, img report.Image) string {
	if !m.Available() {
		return img.URL
	}
	p, ok := m.store.(Presigner)
	if !ok || img.PublicID == "" {
		return img.URL
	}
	u, err := p.PresignedURL(ctx, img.PublicID, PresignTTL)
	if err != nil {
		logger.Debugf("presign %s: %v", img.PublicID, err)
		return img.URL
	}
	return u
}
