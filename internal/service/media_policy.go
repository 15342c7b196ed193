package service

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

// MediaKind classifies an upload for quota purposes.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaPolicy bounds the attachments of a single submission.
type MediaPolicy struct {
	MaxImages     int
	MaxVideos     int
	MaxImageBytes int64
	MaxVideoBytes int64
}

// DefaultMediaPolicy allows three images of 10 MB and one video of 30 MB.
func DefaultMediaPolicy() MediaPolicy {
	return MediaPolicy{
		MaxImages:     3,
		MaxVideos:     1,
		MaxImageBytes: 10 << 20,
		MaxVideoBytes: 30 << 20,
	}
}

// Classify resolves the media kind from the declared or sniffed content type.
func Classify(upload dto.MediaUpload) (MediaKind, string, bool) {
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(upload.Data)
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaImage, contentType, true
	case strings.HasPrefix(contentType, "video/"):
		return MediaVideo, contentType, true
	default:
		return "", contentType, false
	}
}

// Validate checks counts, kinds and sizes. It returns a ValidationError
// naming the first violation.
func (p MediaPolicy) Validate(uploads []dto.MediaUpload) error {
	images, videos := 0, 0
	for _, upload := range uploads {
		size := upload.Size
		if size <= 0 {
			size = int64(len(upload.Data))
		}
		if size == 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file %q is empty", upload.Filename))
		}
		kind, contentType, ok := Classify(upload)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file %q has unsupported type %s", upload.Filename, contentType))
		}
		switch kind {
		case MediaImage:
			images++
			if size > p.MaxImageBytes {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("image %q exceeds %d MB", upload.Filename, p.MaxImageBytes>>20))
			}
		case MediaVideo:
			videos++
			if size > p.MaxVideoBytes {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("video %q exceeds %d MB", upload.Filename, p.MaxVideoBytes>>20))
			}
		}
	}
	if images > p.MaxImages {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d images allowed", p.MaxImages))
	}
	if videos > p.MaxVideos {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d video allowed", p.MaxVideos))
	}
	return nil
}
