package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

// LocalMediaStore persists evidence media on disk and hands out public URLs
// rooted at publicBaseURL. The HTTP layer serves baseDir at that URL.
type LocalMediaStore struct {
	baseDir       string
	publicBaseURL string
	now           func() time.Time
}

// NewLocalMediaStore ensures the base directory exists and returns a handle.
func NewLocalMediaStore(baseDir, publicBaseURL string) (*LocalMediaStore, error) {
	if baseDir == "" {
		baseDir = "./media"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &LocalMediaStore{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}, nil
}

// BaseDir exposes the directory the store writes into.
func (s *LocalMediaStore) BaseDir() string {
	return s.baseDir
}

// Upload writes data under a unique key and returns its durable public URL.
func (s *LocalMediaStore) Upload(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("upload %s: empty file", filename)
	}
	key := s.objectKey(filename)
	target := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("prepare media directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return s.publicBaseURL + "/" + key, nil
}

// Delete removes the object behind a URL previously returned by Upload.
// Missing objects are not an error.
func (s *LocalMediaStore) Delete(ctx context.Context, publicURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := s.keyFromURL(publicURL)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

func (s *LocalMediaStore) objectKey(filename string) string {
	safe := unsafeFilenameChars.ReplaceAllString(filepath.Base(filename), "_")
	if safe == "" || safe == "." {
		safe = "upload"
	}
	now := s.now().UTC()
	return fmt.Sprintf("evidence/%s/%s-%s", now.Format("2006/01"), uuid.NewString(), safe)
}

func (s *LocalMediaStore) keyFromURL(publicURL string) (string, error) {
	if !strings.HasPrefix(publicURL, s.publicBaseURL+"/") {
		return "", fmt.Errorf("media url %q not owned by this store", publicURL)
	}
	raw := strings.TrimPrefix(publicURL, s.publicBaseURL+"/")
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("decode media url: %w", err)
	}
	key := path.Clean(unescaped)
	if key == "." || key == ".." || strings.HasPrefix(key, "../") || path.IsAbs(key) {
		return "", fmt.Errorf("media url %q escapes store", publicURL)
	}
	return key, nil
}
